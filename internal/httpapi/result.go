package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finchlake/transcribeq/internal/registry"
	"github.com/finchlake/transcribeq/internal/store"
)

type resultHandler struct {
	deps Deps
}

// ServeHTTP implements GET /tasks/{id}/result — the result descriptor.
func (h *resultHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.deps.Registry.Status(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown task_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "unable to read task")
		return
	}

	if task.State != registry.Completed || task.Result == nil {
		writeError(w, http.StatusConflict, "not_ready", "task has not completed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":    task.ID,
		"srt_size":   task.Result.Size,
		"created_at": task.Result.CreatedAt,
		"expires_at": task.Result.ExpiresAt,
	})
}

// ServeDownload implements GET /tasks/{id}/result/download.
func (h *resultHandler) ServeDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.deps.Registry.Status(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown task_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "unable to read task")
		return
	}
	if task.State != registry.Completed || task.Result == nil {
		writeError(w, http.StatusConflict, "not_ready", "task has not completed")
		return
	}

	f, err := h.deps.Store.OpenResult(id)
	if err != nil {
		if errors.Is(err, store.ErrResultNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "result expired or removed")
			return
		}
		slog.Error("open result", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "unable to open result")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.srt"`, id))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		slog.Error("stream result", "err", err)
	}
}

// ServeDelete implements DELETE /tasks/{id}/result. Idempotent.
func (h *resultHandler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Store.DeleteResult(id); err != nil {
		slog.Error("delete result", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "unable to delete result")
		return
	}
	h.deps.Registry.ClearResult(id)
	w.WriteHeader(http.StatusNoContent)
}
