package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finchlake/transcribeq/internal/registry"
)

type statusHandler struct {
	deps Deps
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.deps.Registry.Status(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown task_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "unable to read status")
		return
	}

	body := map[string]any{
		"task_id":      task.ID,
		"state":        string(task.State),
		"submitted_at": task.SubmittedAt,
	}
	if task.StartedAt != nil {
		body["started_at"] = *task.StartedAt
	}
	if task.FinishedAt != nil {
		body["finished_at"] = *task.FinishedAt
	}
	if task.Err != nil {
		body["error"] = map[string]string{"code": task.Err.Code, "message": task.Err.Message}
	}

	writeJSON(w, http.StatusOK, body)
}
