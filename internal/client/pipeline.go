// Package client implements the Client Pipeline (C8): scan, convert,
// bundle, admission-gated submit, adaptive poll, save, cleanup. The main
// loop is serial (one video converted/submitted at a time); each
// accepted task is handed to its own background waiter goroutine, whose
// polling is bounded by a semaphore the way alnah-go-transcript/internal/transcribe/transcriber.go
// bounds its parallel chunk transcription — here the bounded resource is
// concurrent in-flight HTTP waiters, not CPU.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/finchlake/transcribeq/internal/bundle"
)

// Config configures one Pipeline run.
type Config struct {
	ServerURL    string
	OutputDir    string // empty: save alongside the source video
	Password     string
	DefaultModel string
	FFmpegBin    string

	PendingInterval    time.Duration
	ProcessingInterval time.Duration
	FastInterval       time.Duration
	AdmissionBackoff   time.Duration

	KeepScratch bool
	MaxWaiters  int64 // 0 means unbounded
}

// Pipeline drives one full scan-convert-submit-wait run.
type Pipeline struct {
	cfg Config
	api *serverClient
	sem *semaphore.Weighted
}

// New returns a Pipeline for the given configuration.
func New(cfg Config) *Pipeline {
	limit := cfg.MaxWaiters
	if limit <= 0 {
		limit = math.MaxInt64
	}
	return &Pipeline{
		cfg: cfg,
		api: newServerClient(cfg.ServerURL),
		sem: semaphore.NewWeighted(limit),
	}
}

// runStats tallies per-file outcomes across one Run so its exit behavior
// (spec.md §6: "0 if all non-skipped files succeeded, non-zero otherwise")
// can be reported to the caller without the waiter goroutines sharing
// anything but atomic counters.
type runStats struct {
	failed int64
}

func (s *runStats) markFailed() { atomic.AddInt64(&s.failed, 1) }

// Run scans scanDir and processes every eligible video, returning once
// every submitted task's waiter has finished (spec.md §4.8 step 9,
// "Drain"). It never aborts early on a per-file failure — those are
// logged and the file is skipped (spec.md §4.8, "Failure policy") — but
// Run itself reports a non-nil error if any non-skipped file ultimately
// failed, so cmd/transcribeclient can set its process exit code.
func (p *Pipeline) Run(ctx context.Context, scanDir string) error {
	videos, err := Scan(scanDir)
	if err != nil {
		return err
	}
	slog.Info("scan complete", "videos", len(videos))

	scratchRoot, err := os.MkdirTemp("", "transcribeclient-")
	if err != nil {
		return err
	}
	defer func() {
		if !p.cfg.KeepScratch {
			os.RemoveAll(scratchRoot)
		}
	}()

	stats := &runStats{}

	var wg sync.WaitGroup
	for _, video := range videos {
		if hasSiblingSRT(video) {
			slog.Info("skipping, subtitle already present", "video", video)
			continue
		}

		taskID, err := p.submitOne(ctx, video, scratchRoot)
		if err != nil {
			slog.Error("submit failed", "video", video, "err", err)
			stats.markFailed()
			continue
		}

		wg.Add(1)
		go func(taskID, video string) {
			defer wg.Done()
			p.waitAndSave(ctx, taskID, video, stats)
		}(taskID, video)
	}

	wg.Wait()

	if n := atomic.LoadInt64(&stats.failed); n > 0 {
		return fmt.Errorf("client: %d file(s) failed", n)
	}
	return nil
}

// submitOne converts, bundles, and admission-gated-submits a single video,
// returning the task id used (derived from the video's stem).
func (p *Pipeline) submitOne(ctx context.Context, videoPath, scratchRoot string) (string, error) {
	taskID := taskIDFor(videoPath)
	scratchDir := filepath.Join(scratchRoot, taskID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", err
	}

	audioPath, err := ConvertToOgg(ctx, p.cfg.FFmpegBin, videoPath, scratchDir)
	if err != nil {
		return "", err
	}

	meta := bundle.Metadata{TaskID: taskID, Model: p.cfg.DefaultModel}
	data, err := bundle.Pack(p.cfg.Password, meta, audioPath)
	if err != nil {
		return "", err
	}
	bundlePath := filepath.Join(scratchDir, taskID+".bundle")
	if err := os.WriteFile(bundlePath, data, 0o644); err != nil {
		return "", err
	}

	if err := p.admitWithBackoff(ctx, taskID, bundlePath); err != nil {
		return "", err
	}
	return taskID, nil
}

// admitWithBackoff implements spec.md §4.8 step 5: check /pool/status
// before every submit attempt, sleeping admissionBackoff between retries
// while the pool is full.
func (p *Pipeline) admitWithBackoff(ctx context.Context, taskID, bundlePath string) error {
	for {
		ps, err := p.api.poolStatus(ctx)
		if err != nil {
			return err
		}
		if !ps.IsFull {
			err := p.api.submit(ctx, taskID, p.cfg.DefaultModel, p.cfg.Password, bundlePath)
			if err == nil {
				return nil
			}
			if err != ErrPoolFull {
				return err
			}
			// fall through to backoff: server disagreed with our pool
			// view in the gap between the two requests.
		}

		select {
		case <-time.After(p.cfg.AdmissionBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func taskIDFor(videoPath string) string {
	return filepath.Base(videoPath[:len(videoPath)-len(filepath.Ext(videoPath))])
}
