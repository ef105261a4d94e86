package asr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"nhooyr.io/websocket"
)

// Send uploads one PCM frame in capture order.
func (s *Session) Send(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.streamEnd {
		return fmt.Errorf("%w: send after stream end", ErrStream)
	}
	return s.sendFrameLocked(ctx, pcm)
}

// CloseStream sends the explicit end-of-stream marker so the endpoint
// flushes its final hypothesis. The transport stays open; the final
// result arrives on Results and the caller then calls Close.
//
// A session that never sent audio still performs the full exchange: the
// opening frame goes out with empty audio so the endpoint answers
// (with an empty transcript) instead of dropping the connection.
func (s *Session) CloseStream(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.streamEnd {
		return nil
	}

	if !s.sentFirst {
		if err := s.sendFrameLocked(ctx, nil); err != nil {
			return err
		}
	}

	frame := clientFrame{
		Data: frameData{
			Status:   statusLast,
			Format:   audioFormat,
			Encoding: "raw",
		},
	}
	if err := s.writeLocked(ctx, frame); err != nil {
		return err
	}
	s.streamEnd = true
	return nil
}

func (s *Session) sendFrameLocked(ctx context.Context, pcm []byte) error {
	frame := clientFrame{
		Data: frameData{
			Status:   statusMid,
			Format:   audioFormat,
			Encoding: "raw",
			Audio:    base64.StdEncoding.EncodeToString(pcm),
		},
	}
	if !s.sentFirst {
		frame.Data.Status = statusFirst
		frame.Common = &commonParams{AppID: s.appID}
		frame.Business = &businessParams{
			Language: s.cfg.Language,
			Domain:   s.cfg.Domain,
			Accent:   s.cfg.Accent,
			Dwa:      "wpgs",
		}
	}

	if err := s.writeLocked(ctx, frame); err != nil {
		return err
	}
	s.sentFirst = true
	return nil
}

func (s *Session) writeLocked(ctx context.Context, frame clientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: write frame: %v", ErrStream, err)
	}
	return nil
}

// isAuthCode reports whether an endpoint result code indicates a
// credential problem rather than a transient stream failure. 10105 and
// 10107 are invalid-appid classes, 10313 an appid mismatch, 11200 and
// 11201 license and quota rejections.
func isAuthCode(code int) bool {
	switch code {
	case 10105, 10107, 10313, 11200, 11201:
		return true
	}
	return false
}

// readLoop receives server messages until the final result, a protocol
// error, or transport teardown. It owns the results channel.
func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.results)

	tr := newTranscript()
	seq := 0

	for {
		_, data, err := s.conn.Read(context.Background())
		if err != nil {
			s.mu.Lock()
			wasClosed := s.closed
			s.mu.Unlock()
			if !wasClosed {
				s.err = fmt.Errorf("%w: read: %v", ErrStream, err)
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Error("asr: malformed server message", "error", err)
			s.err = fmt.Errorf("%w: decode server message: %v", ErrStream, err)
			return
		}

		if msg.Code != 0 {
			class := ErrStream
			if isAuthCode(msg.Code) {
				class = ErrAuth
			}
			s.err = fmt.Errorf("%w: endpoint code %d: %s", class, msg.Code, msg.Message)
			return
		}
		if msg.Data == nil {
			continue
		}

		final := msg.Data.Status == statusLast
		text := tr.String()
		if msg.Data.Result != nil {
			text = tr.apply(msg.Data.Result)
		} else if !final {
			continue
		}

		res := Result{Text: text, IsFinal: final, Seq: seq}
		seq++

		select {
		case s.results <- res:
		default:
			// Consumer lagging on an intermediate hypothesis; superseded
			// anyway. Final results always block until delivered.
			if final {
				s.results <- res
			} else {
				slog.Debug("asr: dropped stale partial", "seq", res.Seq)
			}
		}

		if final {
			slog.Debug("asr: final result", "sid", msg.Sid, "chars", len(text))
			return
		}
	}
}
