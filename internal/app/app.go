// Package app wires configuration, hotkey, capture, recognition and
// injection together into the running application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/lightwhite-top/VoiceCoding/asr"
	"github.com/lightwhite-top/VoiceCoding/audiocapture"
	"github.com/lightwhite-top/VoiceCoding/config"
	"github.com/lightwhite-top/VoiceCoding/hotkey"
	"github.com/lightwhite-top/VoiceCoding/inject"
	"github.com/lightwhite-top/VoiceCoding/internal/notify"
	"github.com/lightwhite-top/VoiceCoding/internal/orchestrator"
)

// Service owns the application components. Construction is cheap; the
// real work starts in Run.
type Service struct {
	mu  sync.Mutex
	cfg *config.Config

	monitor *hotkey.Monitor
	orch    *orchestrator.Orchestrator
	notify  orchestrator.Notifier

	version string
}

// New creates the service. extra notifiers (tray tooltip and the like)
// are fanned out alongside desktop toasts.
func New(version string, extra ...orchestrator.Notifier) *Service {
	notifiers := append([]orchestrator.Notifier{notify.New()}, extra...)
	return &Service{
		version: version,
		notify:  fanOut(notifiers),
	}
}

// Version returns the application version.
func (s *Service) Version() string {
	return s.version
}

// Run loads configuration, registers the hotkey and drives sessions
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = &config.Config{}
	}
	s.setConfig(cfg)

	if !cfg.Configured() {
		slog.Warn("xfyun credentials missing; sessions will fail until configured")
		s.notify.Notify(orchestrator.Status{Kind: orchestrator.StatusError, Reason: orchestrator.ReasonAuth})
	}

	monitor, err := hotkey.New(cfg.Hotkey)
	if err != nil {
		return fmt.Errorf("parse hotkey %q: %w", cfg.Hotkey, err)
	}
	events, err := monitor.Start()
	if err != nil {
		slog.Error("hotkey registration", "combo", cfg.Hotkey, "error", err)
		s.notify.Notify(orchestrator.Status{Kind: orchestrator.StatusError, Reason: orchestrator.ReasonRegistration})
		return fmt.Errorf("register hotkey: %w", err)
	}
	s.monitor = monitor
	defer monitor.Stop()

	capture := audiocapture.New(captureConfig(cfg))
	recog := asr.NewClient(asr.ClientConfig{})

	s.orch = orchestrator.New(
		orchestrator.Config{
			Settings:        s.settings,
			DialTimeout:     cfg.DialTimeout(),
			FinalizeTimeout: cfg.FinalizeTimeout(),
		},
		recorder{capture},
		recognizer{recog},
		inject.New(),
		s.notify,
	)

	slog.Info("ready", "version", s.version, "hotkey", cfg.Hotkey, "window", cfg.WindowTitle)
	return s.orch.Run(ctx, events)
}

// OpenSettings opens the config file in the platform's default editor,
// creating it with defaults first if it does not exist yet.
func (s *Service) OpenSettings() {
	path, err := config.Path()
	if err != nil {
		slog.Error("config path", "error", err)
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s.mu.Lock()
		cfg := s.cfg
		s.mu.Unlock()
		if cfg != nil {
			if err := cfg.Save(); err != nil {
				slog.Error("write config", "error", err)
			}
		}
	}
	if err := openPath(path); err != nil {
		slog.Error("open config", "path", path, "error", err)
	}
}

// Reset abandons any in-flight session.
func (s *Service) Reset() {
	if s.orch != nil {
		s.orch.Reset()
	}
}

// Shutdown releases the global hook. Session resources are released by
// Run's context cancellation.
func (s *Service) Shutdown() {
	if s.monitor != nil {
		s.monitor.Stop()
	}
}

// ReloadConfig re-reads the config file. Credentials and the target
// window take effect on the next session; the hotkey itself needs a
// restart.
func (s *Service) ReloadConfig() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("reload config", "error", err)
		return
	}
	s.setConfig(cfg)
	slog.Info("config reloaded", "window", cfg.WindowTitle, "send_key", cfg.SendKey)
}

func (s *Service) setConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// settings snapshots per-session parameters at hotkey press time.
func (s *Service) settings() orchestrator.Settings {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return orchestrator.Settings{
		Credentials: cfg.Credentials(),
		Target: inject.TargetSpec{
			TitleSubstring: cfg.WindowTitle,
			Commit:         inject.ParseCommitMode(cfg.SendKey),
		},
	}
}

func captureConfig(cfg *config.Config) audiocapture.Config {
	return audiocapture.Config{
		MaxDuration: config.DefaultMaxRecording,
		DumpDir:     cfg.DumpAudioDir,
	}
}

// recorder and recognizer adapt the concrete constructors to the
// orchestrator's interfaces.
type recorder struct{ c *audiocapture.Capture }

func (r recorder) Begin(ctx context.Context) (orchestrator.RecordStream, error) {
	st, err := r.c.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

type recognizer struct{ c *asr.Client }

func (r recognizer) Dial(ctx context.Context, creds config.Credentials) (orchestrator.RecogSession, error) {
	sess, err := r.c.Dial(ctx, creds)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// fanOut delivers each status to every notifier in order.
type fanOut []orchestrator.Notifier

func (f fanOut) Notify(s orchestrator.Status) {
	for _, n := range f {
		n.Notify(s)
	}
}
