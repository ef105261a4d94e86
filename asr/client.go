// Package asr streams microphone audio to the xfyun IAT (iat-api.xfyun.cn)
// speech recognition endpoint and yields incremental transcription results.
package asr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/lightwhite-top/VoiceCoding/config"
)

// DefaultURL is the xfyun IAT WebSocket endpoint.
const DefaultURL = "wss://iat-api.xfyun.cn/v2/iat"

// Transport-level error classes. Both dial errors and mid-stream errors
// wrap one of these so the orchestrator can classify without string
// matching.
var (
	// ErrAuth means the endpoint rejected the credentials or signature.
	ErrAuth = errors.New("asr authentication rejected")
	// ErrConnect means the endpoint could not be reached.
	ErrConnect = errors.New("asr connect failed")
	// ErrStream means the established stream failed before the final result.
	ErrStream = errors.New("asr stream failed")
)

// Result is one recognition hypothesis. Text is always the full current
// hypothesis for the session, never a delta; a later Result replaces an
// earlier one wholesale. Seq is monotonic per session and IsFinal marks
// the last Result the session will produce.
type Result struct {
	Text    string
	IsFinal bool
	Seq     int
}

// ClientConfig holds recognition parameters sent in the opening frame.
type ClientConfig struct {
	URL      string
	Language string
	Domain   string
	Accent   string
}

// Client dials one recognition session per recording.
type Client struct {
	cfg ClientConfig
}

// NewClient creates a client. Zero-value fields fall back to the
// endpoint defaults (Mandarin dictation).
func NewClient(cfg ClientConfig) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Language == "" {
		cfg.Language = "zh_cn"
	}
	if cfg.Domain == "" {
		cfg.Domain = "iat"
	}
	if cfg.Accent == "" {
		cfg.Accent = "mandarin"
	}
	return &Client{cfg: cfg}
}

// Dial opens a streaming session authenticated with creds. The ctx
// bounds the handshake only; the session then lives until CloseStream
// completes or Close tears it down.
func (c *Client) Dial(ctx context.Context, creds config.Credentials) (*Session, error) {
	u, err := signedURL(c.cfg.URL, creds, authDate())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	conn, resp, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrAuth, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	s := &Session{
		conn:    conn,
		appID:   creds.AppID,
		cfg:     c.cfg,
		results: make(chan Result, 16),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Session is one open recognition stream. All methods are safe for use
// from a single sender goroutine concurrent with the internal reader.
type Session struct {
	conn  *websocket.Conn
	appID string
	cfg   ClientConfig

	results chan Result

	mu        sync.Mutex
	sentFirst bool
	streamEnd bool
	closed    bool

	done chan struct{}
	err  error
}

// Results returns the result stream. It is closed after the final
// result, or after a stream failure (check Err in that case).
func (s *Session) Results() <-chan Result {
	return s.results
}

// Err reports the terminal stream error, if any. Valid only after the
// Results channel has been closed.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Close tears down the transport. Safe to call at any time and more
// than once; a normal close after the final result reports no error.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.conn.Close(websocket.StatusNormalClosure, "session done")
}
