package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lightwhite-top/VoiceCoding/asr"
	"github.com/lightwhite-top/VoiceCoding/audiocapture"
	"github.com/lightwhite-top/VoiceCoding/hotkey"
	"github.com/lightwhite-top/VoiceCoding/inject"
)

// Orchestrator runs the session state machine. All state is owned by the
// single Run goroutine; no field is touched from outside it except the
// reset channel.
type Orchestrator struct {
	cfg    Config
	rec    Recorder
	recog  Recognizer
	inj    Injector
	notify Notifier

	state State
	a     *active
	reset chan struct{}
}

// active bundles the runtime resources of the one in-flight session.
type active struct {
	sess     *Session
	settings Settings

	stream RecordStream
	recog  RecogSession

	frames  <-chan audiocapture.Frame
	results <-chan asr.Result

	timer   *time.Timer
	timeout <-chan time.Time

	injectDone chan error

	lastSeq      int
	released     bool
	streamClosed bool
	finalDone    bool
}

// New creates an orchestrator around the given collaborators.
func New(cfg Config, rec Recorder, recog Recognizer, inj Injector, n Notifier) *Orchestrator {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.FinalizeTimeout == 0 {
		cfg.FinalizeTimeout = 4 * time.Second
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Orchestrator{
		cfg:    cfg,
		rec:    rec,
		recog:  recog,
		inj:    inj,
		notify: n,
		reset:  make(chan struct{}, 1),
	}
}

// Reset forces any in-flight session back to idle without a terminal
// notification. Used by the shell's manual reset action.
func (o *Orchestrator) Reset() {
	select {
	case o.reset <- struct{}{}:
	default:
	}
}

// Run consumes hotkey events until the channel closes or ctx is done.
// It never returns because of a single session's failure.
func (o *Orchestrator) Run(ctx context.Context, events <-chan hotkey.Event) error {
	o.state = StateIdle
	o.notify.Notify(Status{Kind: StatusIdle})

	for {
		var (
			frames     <-chan audiocapture.Frame
			results    <-chan asr.Result
			timeout    <-chan time.Time
			injectDone <-chan error
		)
		if o.a != nil {
			frames = o.a.frames
			results = o.a.results
			timeout = o.a.timeout
			injectDone = o.a.injectDone
		}

		select {
		case <-ctx.Done():
			o.releaseActive()
			return ctx.Err()

		case <-o.reset:
			if o.a != nil {
				slog.Info("manual reset", "session", o.a.sess.ID, "state", o.state)
				o.releaseActive()
				o.toIdle()
			}

		case ev, ok := <-events:
			if !ok {
				o.releaseActive()
				return nil
			}
			switch ev.Kind {
			case hotkey.Pressed:
				o.onPressed(ctx)
			case hotkey.Released:
				o.onReleased(ctx)
			}

		case f, ok := <-frames:
			if !ok {
				o.onFramesClosed(ctx)
				continue
			}
			o.onFrame(ctx, f)

		case r, ok := <-results:
			if !ok {
				o.onResultsClosed()
				continue
			}
			o.onResult(r)

		case <-timeout:
			slog.Warn("final result timeout", "session", o.a.sess.ID, "wait", o.cfg.FinalizeTimeout)
			o.fail(ReasonStream, errors.New("timed out waiting for final result"))

		case err := <-injectDone:
			o.onInjectDone(err)
		}
	}
}

// State returns the last state set by the Run goroutine. Meaningful for
// logging only; Run owns all transitions.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) onPressed(ctx context.Context) {
	if o.state != StateIdle || o.a != nil {
		slog.Debug("hotkey press ignored", "state", o.state)
		return
	}

	settings := o.cfg.Settings()
	sess := &Session{ID: uuid.NewString(), Start: time.Now()}
	slog.Info("session started", "session", sess.ID)

	stream, err := o.rec.Begin(ctx)
	if err != nil {
		o.reportStartFailure(sess, ReasonDevice, err)
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, o.cfg.DialTimeout)
	recog, err := o.recog.Dial(dialCtx, settings.Credentials)
	cancel()
	if err != nil {
		stream.End()
		o.reportStartFailure(sess, classifyDial(err), err)
		return
	}

	o.a = &active{
		sess:     sess,
		settings: settings,
		stream:   stream,
		recog:    recog,
		frames:   stream.Frames(),
		results:  recog.Results(),
		lastSeq:  -1,
	}
	o.state = StateRecording
	o.notify.Notify(Status{Kind: StatusRecording})
}

func (o *Orchestrator) onReleased(ctx context.Context) {
	if o.a == nil || o.a.released {
		slog.Debug("hotkey release ignored", "state", o.state)
		return
	}
	if o.state != StateRecording {
		return
	}

	o.a.released = true
	o.a.stream.End()
	o.state = StateFinalizing
	o.notify.Notify(Status{Kind: StatusTranscribing})

	// The frame channel may still hold captured audio; end-of-stream is
	// sent only after it drains so upload order is preserved.
	if o.a.frames == nil {
		o.sendEndOfStream(ctx)
	}
}

func (o *Orchestrator) onFrame(ctx context.Context, f audiocapture.Frame) {
	sendCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
	err := o.a.recog.Send(sendCtx, f.PCM)
	cancel()
	if err != nil {
		o.fail(classifyStream(err), err)
		return
	}
	o.a.sess.FrameCount++
}

func (o *Orchestrator) onFramesClosed(ctx context.Context) {
	o.a.frames = nil
	if o.a.released {
		o.sendEndOfStream(ctx)
	}
	// Without a release the capture hit its duration cap; the session
	// finalizes when the user lets go of the hotkey.
}

func (o *Orchestrator) sendEndOfStream(ctx context.Context) {
	if o.a.streamClosed {
		return
	}

	csCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
	err := o.a.recog.CloseStream(csCtx)
	cancel()
	if err != nil && !o.a.finalDone {
		o.fail(classifyStream(err), err)
		return
	}
	o.a.streamClosed = true

	if o.a.finalDone {
		o.decideFinal()
		return
	}

	o.a.timer = time.NewTimer(o.cfg.FinalizeTimeout)
	o.a.timeout = o.a.timer.C
}

func (o *Orchestrator) onResult(r asr.Result) {
	a := o.a
	if r.Seq < a.lastSeq {
		slog.Debug("discarding out-of-order result", "seq", r.Seq, "last", a.lastSeq)
		return
	}
	a.lastSeq = r.Seq

	if !r.IsFinal {
		a.sess.PartialText = r.Text
		return
	}

	a.finalDone = true
	a.sess.FinalText = r.Text
	if o.state == StateFinalizing && a.streamClosed {
		o.decideFinal()
	}
}

func (o *Orchestrator) onResultsClosed() {
	a := o.a
	a.results = nil
	if a.finalDone || o.state == StateInjecting {
		return
	}
	err := a.recog.Err()
	if err == nil {
		err = errors.New("recognition stream ended without final result")
	}
	o.fail(classifyStream(err), err)
}

func (o *Orchestrator) decideFinal() {
	a := o.a
	o.stopTimer()

	text := strings.TrimSpace(a.sess.FinalText)
	if text == "" {
		o.fail(ReasonNoSpeech, nil)
		return
	}
	a.sess.FinalText = text

	o.state = StateInjecting
	o.notify.Notify(Status{Kind: StatusInjecting})

	// The recognition exchange is complete; release the transport before
	// touching window focus.
	_ = a.recog.Close()

	a.injectDone = make(chan error, 1)
	spec, txt := a.settings.Target, text
	go func() {
		a.injectDone <- o.inj.Inject(spec, txt)
	}()
}

func (o *Orchestrator) onInjectDone(err error) {
	sess := o.a.sess
	if err != nil {
		o.fail(classifyInject(err), err)
		return
	}

	slog.Info("session complete", "session", sess.ID, "frames", sess.FrameCount, "chars", len(sess.FinalText))
	o.notify.Notify(Status{Kind: StatusSuccess, Text: sess.FinalText})
	o.a = nil
	o.toIdle()
}

// fail emits the session's single terminal error notification, releases
// everything, and resets to idle. Partial text is deliberately discarded,
// never injected: an admittedly incomplete transcript must not be sent
// silently.
func (o *Orchestrator) fail(reason Reason, err error) {
	a := o.a
	if a != nil {
		a.sess.Err = err
		if a.sess.PartialText != "" {
			slog.Info("discarding partial transcript", "session", a.sess.ID, "chars", len(a.sess.PartialText))
		}
		slog.Warn("session failed", "session", a.sess.ID, "reason", reason, "error", err)
	}

	o.releaseActive()
	o.state = StateErrored
	o.notify.Notify(Status{Kind: StatusError, Reason: reason})
	o.toIdle()
}

func (o *Orchestrator) reportStartFailure(sess *Session, reason Reason, err error) {
	slog.Warn("session failed to start", "session", sess.ID, "reason", reason, "error", err)
	o.state = StateErrored
	o.notify.Notify(Status{Kind: StatusError, Reason: reason})
	o.toIdle()
}

func (o *Orchestrator) toIdle() {
	o.state = StateIdle
	o.notify.Notify(Status{Kind: StatusIdle})
}

func (o *Orchestrator) releaseActive() {
	a := o.a
	if a == nil {
		return
	}
	o.stopTimer()
	a.stream.End()
	_ = a.recog.Close()
	o.a = nil
}

func (o *Orchestrator) stopTimer() {
	if o.a != nil && o.a.timer != nil {
		o.a.timer.Stop()
		o.a.timer = nil
		o.a.timeout = nil
	}
}

func classifyDial(err error) Reason {
	switch {
	case errors.Is(err, asr.ErrAuth):
		return ReasonAuth
	case errors.Is(err, audiocapture.ErrDeviceUnavailable):
		return ReasonDevice
	default:
		return ReasonConnect
	}
}

func classifyStream(err error) Reason {
	if errors.Is(err, asr.ErrAuth) {
		return ReasonAuth
	}
	return ReasonStream
}

func classifyInject(err error) Reason {
	if errors.Is(err, inject.ErrWindowNotFound) {
		return ReasonWindowNotFound
	}
	return ReasonInjection
}
