package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finchlake/transcribeq/internal/registry"
)

// eventsHandler implements the supplementary GET /tasks/{id}/events stream
// (SPEC_FULL.md §4.7/C9). It reuses the teacher's own hand-rolled
// flush-per-event technique from its voice-assistant handler rather than
// a third-party SSE server library (see DESIGN.md).
type eventsHandler struct {
	deps Deps
}

func (h *eventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.deps.Registry.Status(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown task_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "unable to read task")
		return
	}

	if h.deps.Progress == nil {
		writeError(w, http.StatusNotFound, "not_found", "progress stream disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	lines, unsubscribe := h.deps.Progress.Subscribe(id)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				slog.Debug("events stream write failed", "task_id", id, "err", err)
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
