package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lightwhite-top/VoiceCoding/asr"
	"github.com/lightwhite-top/VoiceCoding/audiocapture"
	"github.com/lightwhite-top/VoiceCoding/config"
	"github.com/lightwhite-top/VoiceCoding/hotkey"
	"github.com/lightwhite-top/VoiceCoding/inject"
)

type fakeStream struct {
	frames chan audiocapture.Frame
	once   sync.Once
	ended  bool
	mu     sync.Mutex
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan audiocapture.Frame, 64)}
}

func (s *fakeStream) Frames() <-chan audiocapture.Frame { return s.frames }

func (s *fakeStream) End() {
	s.once.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		close(s.frames)
	})
}

func (s *fakeStream) wasEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// push must only be called before the stream is ended.
func (s *fakeStream) push(seq uint64, pcm []byte) {
	s.frames <- audiocapture.Frame{Seq: seq, PCM: pcm, Captured: time.Now()}
}

type fakeRecorder struct {
	mu       sync.Mutex
	beginErr error
	streams  []*fakeStream
}

func (r *fakeRecorder) Begin(context.Context) (RecordStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	s := newFakeStream()
	r.streams = append(r.streams, s)
	return s, nil
}

func (r *fakeRecorder) last() *fakeStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.streams) == 0 {
		return nil
	}
	return r.streams[len(r.streams)-1]
}

type fakeRecogSession struct {
	mu           sync.Mutex
	sent         [][]byte
	results      chan asr.Result
	streamErr    error
	eosSent      bool
	closed       bool
	sendErr      error
	finished     bool
	onEndOfStream func(*fakeRecogSession)
}

func newFakeRecogSession() *fakeRecogSession {
	return &fakeRecogSession{results: make(chan asr.Result, 16)}
}

func (s *fakeRecogSession) Send(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *fakeRecogSession) CloseStream(context.Context) error {
	s.mu.Lock()
	s.eosSent = true
	cb := s.onEndOfStream
	s.mu.Unlock()
	if cb != nil {
		cb(s)
	}
	return nil
}

func (s *fakeRecogSession) Results() <-chan asr.Result { return s.results }

func (s *fakeRecogSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamErr
}

func (s *fakeRecogSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeRecogSession) push(r asr.Result) {
	s.results <- r
}

// finish delivers the final result and closes the result stream.
func (s *fakeRecogSession) finish(text string, seq int) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()
	s.results <- asr.Result{Text: text, IsFinal: true, Seq: seq}
	close(s.results)
}

// failStream closes the result stream with a terminal error.
func (s *fakeRecogSession) failStream(err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.streamErr = err
	s.mu.Unlock()
	close(s.results)
}

func (s *fakeRecogSession) sentFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeRecogSession) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeRecogSession) sawEndOfStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eosSent
}

type fakeRecognizer struct {
	mu       sync.Mutex
	dialErr  error
	dials    int
	onDial   func(*fakeRecogSession)
	sessions []*fakeRecogSession
}

func (r *fakeRecognizer) Dial(_ context.Context, _ config.Credentials) (RecogSession, error) {
	r.mu.Lock()
	r.dials++
	if r.dialErr != nil {
		err := r.dialErr
		r.mu.Unlock()
		return nil, err
	}
	s := newFakeRecogSession()
	if r.onDial != nil {
		r.onDial(s)
	}
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
	return s, nil
}

func (r *fakeRecognizer) dialCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

func (r *fakeRecognizer) last() *fakeRecogSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil
	}
	return r.sessions[len(r.sessions)-1]
}

type injectCall struct {
	spec inject.TargetSpec
	text string
}

type fakeInjector struct {
	mu    sync.Mutex
	err   error
	calls []injectCall
}

func (i *fakeInjector) Inject(spec inject.TargetSpec, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, injectCall{spec: spec, text: text})
	return i.err
}

func (i *fakeInjector) callCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.calls)
}

func (i *fakeInjector) lastCall() injectCall {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[len(i.calls)-1]
}

type harness struct {
	events   chan hotkey.Event
	statuses chan Status
	rec      *fakeRecorder
	recog    *fakeRecognizer
	inj      *fakeInjector
	orch     *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		events:   make(chan hotkey.Event, 16),
		statuses: make(chan Status, 64),
		rec:      &fakeRecorder{},
		recog:    &fakeRecognizer{},
		inj:      &fakeInjector{},
	}

	if cfg.Settings == nil {
		cfg.Settings = func() Settings {
			return Settings{
				Credentials: config.Credentials{AppID: "app", APIKey: "key", APISecret: "secret"},
				Target:      inject.TargetSpec{TitleSubstring: "opencode", Commit: inject.CommitEnter},
			}
		}
	}
	if cfg.FinalizeTimeout == 0 {
		cfg.FinalizeTimeout = time.Second
	}

	o := New(cfg, h.rec, h.recog, h.inj, NotifierFunc(func(s Status) { h.statuses <- s }))
	h.orch = o

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, h.events) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("orchestrator did not stop")
		}
	})

	// Initial idle notification.
	h.await(t, StatusIdle)
	return h
}

func (h *harness) press()   { h.events <- hotkey.Event{Kind: hotkey.Pressed} }
func (h *harness) release() { h.events <- hotkey.Event{Kind: hotkey.Released} }

// await consumes statuses until one of the wanted kind arrives.
func (h *harness) await(t *testing.T, kind StatusKind) Status {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.statuses:
			if s.Kind == kind {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v", kind)
		}
	}
}

func TestHappyPath(t *testing.T) {
	h := newHarness(t, Config{})
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("hello world", 3) }
	}

	h.press()
	h.await(t, StatusRecording)

	stream := h.rec.last()
	for i := 0; i < 3; i++ {
		stream.push(uint64(i), []byte{byte(i), byte(i)})
	}
	sess := h.recog.last()
	sess.push(asr.Result{Text: "hello", Seq: 0})
	sess.push(asr.Result{Text: "hello wor", Seq: 1})
	sess.push(asr.Result{Text: "hello world", Seq: 2})

	h.release()
	h.await(t, StatusTranscribing)
	h.await(t, StatusInjecting)
	got := h.await(t, StatusSuccess)

	if got.Text != "hello world" {
		t.Errorf("success text = %q, want %q", got.Text, "hello world")
	}
	if n := h.inj.callCount(); n != 1 {
		t.Fatalf("injector called %d times, want 1", n)
	}
	call := h.inj.lastCall()
	if call.text != "hello world" {
		t.Errorf("injected text = %q, want %q", call.text, "hello world")
	}
	if call.spec.Commit != inject.CommitEnter {
		t.Errorf("commit mode = %v, want CommitEnter", call.spec.Commit)
	}
	if call.spec.TitleSubstring != "opencode" {
		t.Errorf("title substring = %q, want %q", call.spec.TitleSubstring, "opencode")
	}

	h.await(t, StatusIdle)

	if n := sess.sentFrames(); n != 3 {
		t.Errorf("frames uploaded = %d, want 3", n)
	}
	if !sess.sawEndOfStream() {
		t.Error("end-of-stream marker was not sent")
	}
	if !sess.wasClosed() {
		t.Error("recognition transport was not closed")
	}
}

func TestSecondPressWhileActiveIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("ok", 0) }
	}

	h.press()
	h.await(t, StatusRecording)

	// Pressing again while recording must not open a second session.
	h.press()
	h.press()

	h.release()
	h.await(t, StatusSuccess)
	h.await(t, StatusIdle)

	if n := h.recog.dialCount(); n != 1 {
		t.Errorf("dial count = %d, want 1", n)
	}
}

func TestOutOfOrderResultsDiscarded(t *testing.T) {
	h := newHarness(t, Config{})
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("fresh", 6) }
	}

	h.press()
	h.await(t, StatusRecording)

	sess := h.recog.last()
	sess.push(asr.Result{Text: "hello world", Seq: 5})
	// A stale final with a lower sequence must be discarded, not applied.
	sess.push(asr.Result{Text: "stale", IsFinal: true, Seq: 2})

	h.release()
	got := h.await(t, StatusSuccess)
	if got.Text != "fresh" {
		t.Errorf("success text = %q, want %q (stale final must not win)", got.Text, "fresh")
	}
	if h.inj.lastCall().text != "fresh" {
		t.Errorf("injected text = %q, want %q", h.inj.lastCall().text, "fresh")
	}
}

func TestZeroFramesEndsNoSpeech(t *testing.T) {
	h := newHarness(t, Config{})
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("", 0) }
	}

	h.press()
	h.await(t, StatusRecording)
	h.release()

	got := h.await(t, StatusError)
	if got.Reason != ReasonNoSpeech {
		t.Errorf("reason = %v, want ReasonNoSpeech", got.Reason)
	}
	if n := h.inj.callCount(); n != 0 {
		t.Errorf("injector called %d times, want 0", n)
	}

	sess := h.recog.last()
	if !sess.sawEndOfStream() {
		t.Error("end-of-stream must be sent even with zero frames")
	}
	if n := sess.sentFrames(); n != 0 {
		t.Errorf("frames uploaded = %d, want 0", n)
	}
	h.await(t, StatusIdle)
}

func TestWindowNotFound(t *testing.T) {
	h := newHarness(t, Config{})
	h.inj.err = inject.ErrWindowNotFound
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("hello", 0) }
	}

	h.press()
	h.await(t, StatusRecording)
	h.release()

	got := h.await(t, StatusError)
	if got.Reason != ReasonWindowNotFound {
		t.Errorf("reason = %v, want ReasonWindowNotFound", got.Reason)
	}
	h.await(t, StatusIdle)
}

func TestFinalizeTimeoutClassifiedAsStreamError(t *testing.T) {
	h := newHarness(t, Config{FinalizeTimeout: 50 * time.Millisecond})
	// End-of-stream is acknowledged but no final result ever arrives.

	h.press()
	h.await(t, StatusRecording)
	h.rec.last().push(0, []byte{1, 2})
	h.release()
	h.await(t, StatusTranscribing)

	got := h.await(t, StatusError)
	if got.Reason != ReasonStream {
		t.Errorf("reason = %v, want ReasonStream", got.Reason)
	}

	if !h.rec.last().wasEnded() {
		t.Error("capture stream not released after timeout")
	}
	if !h.recog.last().wasClosed() {
		t.Error("recognition transport not released after timeout")
	}
	if n := h.inj.callCount(); n != 0 {
		t.Errorf("injector called %d times, want 0", n)
	}
	h.await(t, StatusIdle)
}

func TestDialAuthFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.recog.dialErr = fmt.Errorf("%w: handshake status 401", asr.ErrAuth)

	h.press()
	got := h.await(t, StatusError)
	if got.Reason != ReasonAuth {
		t.Errorf("reason = %v, want ReasonAuth", got.Reason)
	}
	if !h.rec.last().wasEnded() {
		t.Error("capture stream not released after dial failure")
	}
	h.await(t, StatusIdle)
}

func TestDeviceUnavailable(t *testing.T) {
	h := newHarness(t, Config{})
	h.rec.beginErr = fmt.Errorf("%w: open stream", audiocapture.ErrDeviceUnavailable)

	h.press()
	got := h.await(t, StatusError)
	if got.Reason != ReasonDevice {
		t.Errorf("reason = %v, want ReasonDevice", got.Reason)
	}
	if n := h.recog.dialCount(); n != 0 {
		t.Errorf("dial count = %d, want 0 (no dial without a device)", n)
	}
	h.await(t, StatusIdle)
}

func TestMidRecordingStreamFailureDiscardsPartial(t *testing.T) {
	h := newHarness(t, Config{})

	h.press()
	h.await(t, StatusRecording)

	sess := h.recog.last()
	sess.push(asr.Result{Text: "partial text", Seq: 0})
	sess.failStream(fmt.Errorf("%w: connection reset", asr.ErrStream))

	got := h.await(t, StatusError)
	if got.Reason != ReasonStream {
		t.Errorf("reason = %v, want ReasonStream", got.Reason)
	}
	// Policy: partial text is never injected as a fallback.
	if n := h.inj.callCount(); n != 0 {
		t.Errorf("injector called %d times, want 0", n)
	}
	if !h.rec.last().wasEnded() {
		t.Error("capture stream not released after stream failure")
	}
	h.await(t, StatusIdle)
}

func TestExactlyOneTerminalPerPress(t *testing.T) {
	h := newHarness(t, Config{})
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("round", 0) }
	}

	const rounds = 3
	terminals := 0
	for i := 0; i < rounds; i++ {
		h.press()
		h.await(t, StatusRecording)
		h.release()

		deadline := time.After(2 * time.Second)
	wait:
		for {
			select {
			case s := <-h.statuses:
				if s.Kind == StatusSuccess || s.Kind == StatusError {
					terminals++
				}
				if s.Kind == StatusIdle {
					break wait
				}
			case <-deadline:
				t.Fatalf("round %d: no terminal status", i)
			}
		}
	}

	if terminals != rounds {
		t.Errorf("terminal notifications = %d, want %d", terminals, rounds)
	}
	if n := h.recog.dialCount(); n != rounds {
		t.Errorf("dial count = %d, want %d", n, rounds)
	}
}

func TestReleasedWhileIdleIgnored(t *testing.T) {
	h := newHarness(t, Config{})

	h.release()
	h.release()

	// The machine must still accept a normal session afterwards.
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("ok", 0) }
	}
	h.press()
	h.await(t, StatusRecording)
	h.release()
	h.await(t, StatusSuccess)
}

func TestResetAbandonsSession(t *testing.T) {
	h := newHarness(t, Config{})

	h.press()
	h.await(t, StatusRecording)

	h.orch.Reset()
	h.await(t, StatusIdle)

	if !h.rec.last().wasEnded() {
		t.Error("capture stream not released by reset")
	}
	if !h.recog.last().wasClosed() {
		t.Error("recognition transport not released by reset")
	}
	if n := h.inj.callCount(); n != 0 {
		t.Errorf("injector called %d times, want 0", n)
	}

	// The machine accepts a fresh session afterwards.
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("again", 0) }
	}
	h.press()
	h.await(t, StatusRecording)
	h.release()
	h.await(t, StatusSuccess)
}

func TestFramesForwardedInOrder(t *testing.T) {
	h := newHarness(t, Config{})
	h.recog.onDial = func(s *fakeRecogSession) {
		s.onEndOfStream = func(s *fakeRecogSession) { s.finish("ok", 0) }
	}

	h.press()
	h.await(t, StatusRecording)

	stream := h.rec.last()
	for i := 0; i < 10; i++ {
		stream.push(uint64(i), []byte{byte(i)})
	}
	h.release()
	h.await(t, StatusSuccess)

	sess := h.recog.last()
	if n := sess.sentFrames(); n != 10 {
		t.Fatalf("frames uploaded = %d, want 10", n)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for i, pcm := range sess.sent {
		if len(pcm) != 1 || pcm[0] != byte(i) {
			t.Fatalf("frame %d out of order: %v", i, pcm)
		}
	}
}
