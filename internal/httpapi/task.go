package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finchlake/transcribeq/internal/registry"
)

type taskHandler struct {
	deps Deps
}

// ServeHTTP implements DELETE /tasks/{id}: cancellation for a non-terminal
// task, full eviction for a terminal one. Unknown ids are treated as
// already-deleted, matching the idempotent contract in spec.md §4.7.
func (h *taskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.deps.Registry.Status(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		slog.Error("read task before delete", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "unable to read task")
		return
	}

	switch task.State {
	case registry.Queued, registry.Processing:
		if err := h.deps.Registry.Cancel(id, h.deps.now()); err != nil {
			slog.Error("cancel task", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "unable to cancel task")
			return
		}
	default:
		if evicted, ok := h.deps.Registry.Evict(id); ok {
			cleanupEvicted(h.deps, evicted)
		}
	}

	if h.deps.Progress != nil {
		h.deps.Progress.Close(id)
	}
	w.WriteHeader(http.StatusNoContent)
}
