// Package httpapi implements the HTTP Surface (C7): request parsing and
// validation, mapping of domain errors onto the HTTP status codes fixed
// by SPEC_FULL.md §6, and wiring of the chi router the way the teacher's
// cmd/raspi-agent-backend/main.go wires its own handlers — one narrow
// handler struct per concern, composed with httplog request logging.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"

	"github.com/finchlake/transcribeq/internal/progress"
	"github.com/finchlake/transcribeq/internal/registry"
	"github.com/finchlake/transcribeq/internal/store"
)

// Config carries the values every handler needs beyond its ports.
type Config struct {
	AllowedModels  map[string]struct{}
	DefaultModel   string
	MaxBundleBytes int64
}

// Deps bundles the ports and config shared across handlers.
type Deps struct {
	Registry *registry.Registry
	Store    *store.Store
	Progress *progress.Hub // optional; nil disables GET /tasks/{id}/events
	Config   Config
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewRouter builds the chi router exposing every endpoint in SPEC_FULL.md §4.7.
func NewRouter(logger *httplog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))

	submit := &submitHandler{deps: deps}
	status := &statusHandler{deps: deps}
	result := &resultHandler{deps: deps}
	task := &taskHandler{deps: deps}
	pool := &poolHandler{deps: deps}
	events := &eventsHandler{deps: deps}

	r.Post("/tasks/submit", submit.ServeHTTP)
	r.Get("/tasks/{id}/status", status.ServeHTTP)
	r.Get("/tasks/{id}/result", result.ServeHTTP)
	r.Get("/tasks/{id}/result/download", result.ServeDownload)
	r.Delete("/tasks/{id}/result", result.ServeDelete)
	r.Delete("/tasks/{id}", task.ServeHTTP)
	r.Get("/tasks/{id}/events", events.ServeHTTP)
	r.Get("/pool/status", pool.ServeHTTP)
	r.Get("/health", handleHealth)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
