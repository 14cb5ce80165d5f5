package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/httplog/v2"

	"github.com/finchlake/transcribeq/config"
	"github.com/finchlake/transcribeq/internal/client"
)

func main() {
	var cfg config.ClientConfig
	if err := env.Parse(&cfg); err != nil {
		slog.Error("Failed to parse config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(logLevel)
	logger := httplog.NewLogger("transcribeclient", httplog.Options{
		LogLevel: logLevel,
	})
	slog.SetDefault(logger.Logger)

	pending := mustParseDuration(cfg.PollPendingInterval, 15*time.Second)
	processing := mustParseDuration(cfg.PollProcessingInterval, 5*time.Second)
	fast := mustParseDuration(cfg.PollFastInterval, 2*time.Second)
	backoff := mustParseDuration(cfg.AdmissionBackoff, 5*time.Second)

	p := client.New(client.Config{
		ServerURL:          cfg.ServerURL,
		OutputDir:          cfg.OutputDir,
		Password:           cfg.BundlePassword,
		DefaultModel:       cfg.DefaultModel,
		FFmpegBin:          cfg.FFmpegBin,
		PendingInterval:    pending,
		ProcessingInterval: processing,
		FastInterval:       fast,
		AdmissionBackoff:   backoff,
		KeepScratch:        cfg.KeepScratch,
		MaxWaiters:         cfg.MaxWaiters,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Warn("interrupt received, cancelling run")
		cancel()
	}()

	if err := p.Run(ctx, cfg.ScanDir); err != nil {
		slog.Error("run finished with failures", "err", err)
		os.Exit(1)
	}

	slog.Info("run finished, all files succeeded")
}

// mustParseDuration parses s, falling back to def (and logging the
// problem) on a malformed env value rather than failing startup over it.
func mustParseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("invalid duration, using default", "value", s, "default", def)
		return def
	}
	return d
}
