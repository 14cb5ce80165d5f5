package client

import (
	"context"
	"log/slog"
	"time"
)

const (
	stateQueued     = "QUEUED"
	stateProcessing = "PROCESSING"
	stateCompleted  = "COMPLETED"
	stateFailed     = "FAILED"
	stateCancelled  = "CANCELLED"
)

// waitAndSave polls a submitted task's status at an interval chosen by
// its current state (spec.md §4.8 step 6, "adaptive poll") and, once
// COMPLETED, downloads and saves the subtitle beside its source video
// (or under OutputDir when one is configured).
// It acquires the pipeline's waiter semaphore for its whole lifetime so
// the number of concurrently in-flight waiters stays bounded.
func (p *Pipeline) waitAndSave(ctx context.Context, taskID, videoPath string, stats *runStats) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		slog.Error("waiter could not acquire slot", "task_id", taskID, "err", err)
		stats.markFailed()
		return
	}
	defer p.sem.Release(1)

	log := slog.With("task_id", taskID, "video", videoPath)

	for {
		st, err := p.api.status(ctx, taskID)
		if err != nil {
			log.Error("poll status failed", "err", err)
			stats.markFailed()
			return
		}

		switch st.State {
		case stateQueued:
			if !sleepOrDone(ctx, p.cfg.PendingInterval) {
				stats.markFailed()
				return
			}
		case stateProcessing:
			if !sleepOrDone(ctx, p.cfg.ProcessingInterval) {
				stats.markFailed()
				return
			}
		case stateCompleted:
			p.fetchAndSave(ctx, taskID, videoPath, log, stats)
			return
		case stateFailed:
			code, msg := "", ""
			if st.Error != nil {
				code, msg = st.Error.Code, st.Error.Message
			}
			log.Error("task failed", "code", code, "message", msg)
			stats.markFailed()
			return
		case stateCancelled:
			log.Warn("task was cancelled")
			stats.markFailed()
			return
		default:
			log.Warn("unknown task state", "state", st.State)
			if !sleepOrDone(ctx, p.cfg.FastInterval) {
				stats.markFailed()
				return
			}
		}
	}
}

func (p *Pipeline) fetchAndSave(ctx context.Context, taskID, videoPath string, log *slog.Logger, stats *runStats) {
	data, err := p.api.downloadResult(ctx, taskID)
	if err != nil {
		log.Error("download result failed", "err", err)
		stats.markFailed()
		return
	}

	dst := srtPathFor(videoPath)
	if p.cfg.OutputDir != "" {
		dst = outputPath(p.cfg.OutputDir, videoPath)
	}
	if err := saveSRT(dst, data); err != nil {
		log.Error("save srt failed", "err", err)
		stats.markFailed()
		return
	}
	log.Info("saved subtitle", "path", dst)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
