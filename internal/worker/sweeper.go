package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/finchlake/transcribeq/internal/registry"
	"github.com/finchlake/transcribeq/internal/store"
)

// Sweeper periodically evicts expired results from both the artifact
// store and the registry (SPEC_FULL.md §4.6). It runs as a second
// goroutine alongside the Worker Loop so retention never competes with
// the single-task-at-a-time transcription path for the registry mutex
// any longer than a handful of map lookups.
type Sweeper struct {
	Registry *registry.Registry
	Store    *store.Store
	Interval time.Duration
}

// NewSweeper returns a Sweeper running at the given interval, which the
// caller derives with SweepInterval.
func NewSweeper(reg *registry.Registry, st *store.Store, interval time.Duration) *Sweeper {
	return &Sweeper{Registry: reg, Store: st, Interval: interval}
}

// Run blocks, sweeping on every tick, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Store.Sweep(time.Now(), func(taskID string) {
				s.Registry.ExpireResult(taskID)
				slog.Info("swept expired result", "task_id", taskID)
			})
		case <-ctx.Done():
			return
		}
	}
}

// SweepInterval derives the sweeper's tick interval from the retention
// window, matching SPEC_FULL.md §4.6's min(retention/24, 1h) guidance,
// with a floor of one minute.
func SweepInterval(retention time.Duration) time.Duration {
	quarter := retention / 24
	if quarter > time.Hour {
		return time.Hour
	}
	if quarter < time.Minute {
		return time.Minute
	}
	return quarter
}
