package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/lightwhite-top/VoiceCoding/internal/app"
	"github.com/lightwhite-top/VoiceCoding/internal/tray"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("VOICECODING_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))
	slog.Info("starting app", "version", version, "commit", commit, "date", date)

	svc := app.New(version, tray.StatusNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		slog.Info("signal received, shutting down")
		cancel()
		tray.Quit()
	}()

	// systray wants the main goroutine; the session loop runs beside it
	// and tears the tray down when it exits.
	tray.Run(tray.Handlers{
		OnSettings: svc.OpenSettings,
		OnReload:   svc.ReloadConfig,
		OnReset:    svc.Reset,
		OnQuit: func() {
			svc.Shutdown()
			cancel()
		},
	}, func() {
		go func() {
			err := svc.Run(ctx)
			if err != nil && ctx.Err() == nil {
				// Startup failure (hotkey taken, bad combo). Leave the
				// tray up so the user sees the state and can quit or
				// fix the config.
				slog.Error("run", "error", err)
				return
			}
			tray.Quit()
		}()
	})
}
