package httpapi

import (
	"net/http"

	"github.com/finchlake/transcribeq/internal/registry"
)

type poolHandler struct {
	deps Deps
}

func (h *poolHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, poolViewJSON(h.deps.Registry.PoolView()))
}

// poolViewJSON renders a Pool Status the way spec.md §6 shapes both
// GET /pool/status and the `pool` field of a 429 pool_full response.
func poolViewJSON(view registry.PoolStatus) map[string]any {
	return map[string]any{
		"is_full":          view.IsFull,
		"current_size":     view.CurrentQueueDepth + view.ProcessingCount,
		"max_size":         view.Capacity,
		"processing_count": view.ProcessingCount,
	}
}
