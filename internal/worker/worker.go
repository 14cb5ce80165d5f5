// Package worker implements the Worker Loop (C6): a single goroutine
// that drains the Task Registry's queue one task at a time, unpacking
// its bundle, running it through the Transcriber Driver, and recording
// the outcome. It is modeled on the teacher's
// internal/onboard/orchestrator.go background-goroutine-with-state-machine
// shape: a one-slot wake channel instead of a polling ticker, a single
// in-flight task at a time, context-driven shutdown.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/finchlake/transcribeq/internal/bundle"
	"github.com/finchlake/transcribeq/internal/progress"
	"github.com/finchlake/transcribeq/internal/registry"
	"github.com/finchlake/transcribeq/internal/store"
	"github.com/finchlake/transcribeq/internal/transcriber"
)

// Worker drains the Registry's queue and drives each task to completion.
type Worker struct {
	Registry *registry.Registry
	Store    *store.Store
	Driver   *transcriber.Driver
	Password string
	Progress *progress.Hub // optional; nil disables the progress stream

	// CancelPollInterval controls how often Run checks a claimed task's
	// CancelRequested flag while the transcriber is running. Exposed for
	// tests; defaults applied by New.
	CancelPollInterval time.Duration
}

// New returns a Worker wired to the given collaborators. hub may be nil.
func New(reg *registry.Registry, st *store.Store, driver *transcriber.Driver, password string, hub *progress.Hub) *Worker {
	return &Worker{
		Registry:           reg,
		Store:              st,
		Driver:             driver,
		Password:           password,
		Progress:           hub,
		CancelPollInterval: 500 * time.Millisecond,
	}
}

// Run blocks, processing one task at a time, until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	wake := w.Registry.Wake()
	for {
		task, ok := w.Registry.ClaimNext(time.Now())
		if !ok {
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		w.process(ctx, task)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (w *Worker) process(ctx context.Context, task *registry.Task) {
	log := slog.With("task_id", task.ID, "model", task.Model)
	log.Info("claimed task")

	workDir, err := w.Store.OpenWorkDir(task.ID)
	if err != nil {
		w.fail(task.ID, "storage.io", err, log)
		return
	}
	w.Registry.SetWorkDir(task.ID, workDir)
	defer func() {
		if err := w.Store.DropWorkDir(task.ID); err != nil {
			log.Error("drop workdir", "err", err)
		}
	}()

	bundleData, err := os.ReadFile(task.BundlePath)
	if err != nil {
		w.fail(task.ID, "storage.io", fmt.Errorf("read bundle: %w", err), log)
		return
	}

	unpacked, err := bundle.Unpack(w.Password, bundleData, workDir)
	if err != nil {
		w.fail(task.ID, bundleErrorCode(err), err, log)
		return
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go w.watchCancellation(runCtx, cancelRun, task.ID)

	srtPath, err := w.Driver.Run(runCtx, transcriber.Request{
		AudioPath: unpacked.AudioPath,
		Model:     task.Model,
		OutputDir: workDir,
	}, func(line string) {
		if w.Progress != nil {
			w.Progress.Publish(task.ID, line)
		}
	})
	if err != nil {
		w.fail(task.ID, transcriberErrorCode(err), err, log)
		return
	}

	desc, err := w.Store.PublishResult(task.ID, srtPath, time.Now())
	if err != nil {
		w.fail(task.ID, "storage.io", err, log)
		return
	}

	if err := w.Registry.Complete(task.ID, *desc, time.Now()); err != nil {
		log.Error("record completion", "err", err)
	}
	if err := w.Store.RemoveUpload(task.ID); err != nil {
		log.Error("remove upload", "err", err)
	}
	if w.Progress != nil {
		w.Progress.Close(task.ID)
	}
	log.Info("task completed", "result", desc.Path)
}

// watchCancellation cancels runCtx as soon as the registry observes a
// cancellation request for taskID, or stops when runCtx is done on its
// own (task finished normally).
func (w *Worker) watchCancellation(runCtx context.Context, cancelRun context.CancelFunc, taskID string) {
	ticker := time.NewTicker(w.CancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			if w.Registry.IsCancelRequested(taskID) {
				cancelRun()
				return
			}
		}
	}
}

func (w *Worker) fail(taskID, code string, cause error, log *slog.Logger) {
	log.Error("task failed", "code", code, "err", cause)
	taskErr := registry.TaskError{Code: code, Message: cause.Error()}
	if err := w.Registry.Fail(taskID, taskErr, time.Now()); err != nil {
		log.Error("record failure", "err", err)
	}
	if err := w.Store.RemoveUpload(taskID); err != nil {
		log.Error("remove upload after failure", "err", err)
	}
	if w.Progress != nil {
		w.Progress.Close(taskID)
	}
}

func bundleErrorCode(err error) string {
	switch {
	case errors.Is(err, bundle.ErrAuth):
		return "bundle.auth"
	case errors.Is(err, bundle.ErrSchema):
		return "bundle.schema"
	case errors.Is(err, bundle.ErrFormat):
		return "bundle.format"
	case errors.Is(err, bundle.ErrEncoding):
		return "bundle.format"
	default:
		return "internal"
	}
}

func transcriberErrorCode(err error) string {
	switch {
	case errors.Is(err, transcriber.ErrNoOutput):
		return "transcriber.no_output"
	case errors.Is(err, transcriber.ErrAmbiguousOutput):
		return "transcriber.ambiguous_output"
	case errors.Is(err, transcriber.ErrCancelled):
		return "transcriber.exit_error"
	default:
		var exitErr *transcriber.ExitError
		if errors.As(err, &exitErr) {
			return "transcriber.exit_error"
		}
		return "internal"
	}
}
