package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/httplog/v2"

	"github.com/finchlake/transcribeq/config"
	"github.com/finchlake/transcribeq/internal/httpapi"
	"github.com/finchlake/transcribeq/internal/progress"
	"github.com/finchlake/transcribeq/internal/registry"
	"github.com/finchlake/transcribeq/internal/store"
	"github.com/finchlake/transcribeq/internal/transcriber"
	"github.com/finchlake/transcribeq/internal/worker"
)

func main() {
	slog.Info("Starting app")

	var cfg config.ServerConfig
	if err := env.Parse(&cfg); err != nil {
		slog.Error("Failed to parse config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(logLevel)
	logger := httplog.NewLogger("transcribeserver", httplog.Options{
		LogLevel: logLevel,
	})
	slog.SetDefault(logger.Logger)

	retention := time.Duration(cfg.RetentionHours) * time.Hour
	st, err := store.New(cfg.UploadsDir, cfg.WorkDir, cfg.ResultsDir, retention)
	if err != nil {
		slog.Error("Failed to set up artifact store", "error", err)
		os.Exit(1)
	}

	reg := registry.New(cfg.PoolCapacity)
	driver := transcriber.New(cfg.WhisperBin)
	hub := progress.NewHub()

	w := worker.New(reg, st, driver, cfg.BundlePassword, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	sweeper := worker.NewSweeper(reg, st, worker.SweepInterval(retention))
	go sweeper.Run(ctx)

	allowed := make(map[string]struct{})
	for _, m := range strings.Split(cfg.AllowedModels, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			allowed[m] = struct{}{}
		}
	}

	r := httpapi.NewRouter(logger, httpapi.Deps{
		Registry: reg,
		Store:    st,
		Progress: hub,
		Config: httpapi.Config{
			AllowedModels:  allowed,
			DefaultModel:   cfg.DefaultModel,
			MaxBundleBytes: cfg.MaxBundleBytes,
		},
	})

	httpServer := http.Server{
		Addr:    cfg.ServerAddr,
		Handler: r,
	}

	go func() {
		slog.Info("Starting HTTP Server", "addr", cfg.ServerAddr)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server shutdown unexpected", "err", err)
		}
		slog.Info("HTTP Server finished")
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error:", "err", err)
	}

	slog.Info("App finished")
}
