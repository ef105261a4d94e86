// Package orchestrator binds hotkey events, audio capture, the streaming
// recognition session and window injection into one end-to-end
// voice-to-text-to-send state machine.
package orchestrator

import (
	"context"
	"time"

	"github.com/lightwhite-top/VoiceCoding/asr"
	"github.com/lightwhite-top/VoiceCoding/audiocapture"
	"github.com/lightwhite-top/VoiceCoding/config"
	"github.com/lightwhite-top/VoiceCoding/inject"
)

// State of the single active session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
	StateInjecting
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateInjecting:
		return "injecting"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Reason classifies a session failure for the one error notification
// emitted per failed session.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonRegistration: the global hotkey could not be claimed at startup.
	ReasonRegistration
	// ReasonDevice: no usable audio input device.
	ReasonDevice
	// ReasonAuth: the recognition endpoint rejected the credentials.
	ReasonAuth
	// ReasonConnect: the recognition endpoint was unreachable.
	ReasonConnect
	// ReasonStream: the recognition stream failed or timed out mid-session.
	ReasonStream
	// ReasonNoSpeech: the session completed but produced no text.
	// Informational, not a failure of the machinery.
	ReasonNoSpeech
	// ReasonWindowNotFound: no window matched the configured title.
	ReasonWindowNotFound
	// ReasonInjection: focusing, pasting or the commit keystroke failed.
	ReasonInjection
)

func (r Reason) String() string {
	switch r {
	case ReasonRegistration:
		return "hotkey registration failed"
	case ReasonDevice:
		return "microphone unavailable"
	case ReasonAuth:
		return "authentication rejected"
	case ReasonConnect:
		return "recognition service unreachable"
	case ReasonStream:
		return "recognition stream failed"
	case ReasonNoSpeech:
		return "no speech detected"
	case ReasonWindowNotFound:
		return "target window not found"
	case ReasonInjection:
		return "injection failed"
	}
	return ""
}

// StatusKind identifies a notification to the shell.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusRecording
	StatusTranscribing
	StatusInjecting
	StatusSuccess
	StatusError
)

// Status is one state-change notification. Exactly one terminal status
// (Success or Error) is emitted per session.
type Status struct {
	Kind   StatusKind
	Reason Reason // set only for StatusError
	Text   string // final text on StatusSuccess
}

// Notifier receives status notifications. Calls are made from the
// orchestrator goroutine and must not block for long.
type Notifier interface {
	Notify(Status)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Status)

func (f NotifierFunc) Notify(s Status) { f(s) }

// RecordStream is one finite recording produced by a Recorder.
type RecordStream interface {
	Frames() <-chan audiocapture.Frame
	End()
}

// Recorder opens the microphone for one session at a time.
type Recorder interface {
	Begin(ctx context.Context) (RecordStream, error)
}

// RecogSession is one open streaming recognition exchange.
type RecogSession interface {
	Send(ctx context.Context, pcm []byte) error
	CloseStream(ctx context.Context) error
	Results() <-chan asr.Result
	Err() error
	Close() error
}

// Recognizer dials one recognition session per recording.
type Recognizer interface {
	Dial(ctx context.Context, creds config.Credentials) (RecogSession, error)
}

// Injector delivers text plus the commit keystroke to the target window.
type Injector interface {
	Inject(spec inject.TargetSpec, text string) error
}

// Settings is the read-only snapshot taken at each Idle-to-Recording
// transition. It never changes mid-session.
type Settings struct {
	Credentials config.Credentials
	Target      inject.TargetSpec
}

// SettingsFunc supplies the snapshot.
type SettingsFunc func() Settings

// Config holds orchestrator tuning.
type Config struct {
	Settings SettingsFunc

	// DialTimeout bounds the recognition handshake.
	DialTimeout time.Duration
	// FinalizeTimeout bounds the wait for the final result after
	// end-of-stream has been sent.
	FinalizeTimeout time.Duration
	// SendTimeout bounds a single frame upload.
	SendTimeout time.Duration
}

// Session is one recording-to-injection attempt. Owned exclusively by
// the orchestrator; dropped once a terminal state has been reported.
type Session struct {
	ID          string
	Start       time.Time
	FrameCount  int
	PartialText string
	FinalText   string
	Err         error
}
