// Package audiocapture records microphone audio as fixed-size PCM frames.
//
// The output format is fixed to what the recognition endpoint expects:
// 16 kHz, mono, signed 16-bit little-endian, 1280-byte frames (40 ms).
package audiocapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

// Audio profile required by the recognition endpoint.
const (
	SampleRate = 16000
	Channels   = 1

	// FrameBytes is the fixed upload frame size: 640 samples, 40 ms.
	FrameBytes = 1280

	// readSamples is the portaudio read buffer size in samples.
	readSamples = 1024
)

// ErrDeviceUnavailable is returned when no input device can be opened.
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// ErrAlreadyCapturing is returned when Begin is called while a previous
// stream is still open.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// Frame is one immutable chunk of captured PCM.
type Frame struct {
	Seq      uint64
	PCM      []byte
	Captured time.Time
}

// Config holds capture configuration.
type Config struct {
	// MaxDuration caps a single recording; the stream self-terminates
	// when it elapses. Zero means 60 seconds.
	MaxDuration time.Duration

	// DumpDir, when non-empty, writes each completed recording to a WAV
	// file in that directory. Debug aid.
	DumpDir string
}

// Capture opens the default microphone on demand and produces one frame
// stream per recording.
type Capture struct {
	cfg Config

	mu     sync.Mutex
	active *Stream
}

// New creates a capture instance.
func New(cfg Config) *Capture {
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 60 * time.Second
	}
	return &Capture{cfg: cfg}
}

// Begin opens the default input device and starts producing frames.
// The stream ends when End is called, the duration cap elapses, or ctx
// is cancelled; each Begin yields a fresh, non-restartable stream.
func (c *Capture) Begin(ctx context.Context) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrAlreadyCapturing
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: init: %v", ErrDeviceUnavailable, err)
	}

	in := make([]int16, readSamples)
	pa, err := portaudio.OpenDefaultStream(Channels, 0, float64(SampleRate), len(in), in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open stream: %v", ErrDeviceUnavailable, err)
	}
	if err := pa.Start(); err != nil {
		_ = pa.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}

	s := &Stream{
		frames: make(chan Frame, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		onDone: func() { c.release() },
	}
	c.active = s

	go s.run(ctx, pa, in, c.cfg)

	slog.Info("audio capture started", "sample_rate", SampleRate, "frame_bytes", FrameBytes)
	return s, nil
}

func (c *Capture) release() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

// Stream is one recording: a finite sequence of frames in capture order.
type Stream struct {
	frames chan Frame
	onDone func()

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Frames returns the frame sequence. The channel closes once the stream
// has ended and all captured audio has been delivered.
func (s *Stream) Frames() <-chan Frame {
	return s.frames
}

// End terminates the stream. It is safe to call more than once; it does
// not wait for delivery of buffered frames.
func (s *Stream) End() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Stream) run(ctx context.Context, pa *portaudio.Stream, in []int16, cfg Config) {
	defer close(s.done)
	defer s.onDone()
	defer func() {
		_ = pa.Stop()
		_ = pa.Close()
		_ = portaudio.Terminate()
		close(s.frames)
	}()

	ck := newChunker(FrameBytes)
	deadline := time.Now().Add(cfg.MaxDuration)
	var dump []byte

	deliver := func(frames []Frame) bool {
		for _, f := range frames {
			if cfg.DumpDir != "" {
				dump = append(dump, f.PCM...)
			}
			select {
			case s.frames <- f:
			case <-s.stop:
				return false
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-s.stop:
			s.finish(ck, deliver, dump, cfg.DumpDir)
			return
		case <-ctx.Done():
			s.finish(ck, deliver, dump, cfg.DumpDir)
			return
		default:
		}

		if time.Now().After(deadline) {
			slog.Warn("recording hit duration cap", "max", cfg.MaxDuration)
			s.finish(ck, deliver, dump, cfg.DumpDir)
			return
		}

		if err := pa.Read(); err != nil {
			slog.Error("audio read", "error", err)
			s.finish(ck, deliver, dump, cfg.DumpDir)
			return
		}

		if !deliver(ck.push(pcmBytes(in), time.Now())) {
			s.finish(ck, deliver, dump, cfg.DumpDir)
			return
		}
	}
}

func (s *Stream) finish(ck *chunker, deliver func([]Frame) bool, dump []byte, dumpDir string) {
	if f, ok := ck.flush(time.Now()); ok {
		if dumpDir != "" {
			dump = append(dump, f.PCM...)
		}
		select {
		case s.frames <- f:
		default:
		}
	}
	if dumpDir != "" && len(dump) > 0 {
		path := filepath.Join(dumpDir, uuid.NewString()+".wav")
		if err := writeWAV(path, dump); err != nil {
			slog.Error("dump recording", "error", err, "path", path)
		} else {
			slog.Debug("dumped recording", "path", path, "bytes", len(dump))
		}
	}
}

// pcmBytes converts int16 samples to little-endian bytes.
func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}
