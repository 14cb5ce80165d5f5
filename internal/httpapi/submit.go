package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/internals"

	"github.com/finchlake/transcribeq/internal/registry"
)

const (
	taskFileField   = "task_file"
	maxTaskIDLength = 128
)

// submitFields mirrors the multipart fields validated before admission,
// following the teacher's localSignup/localSignupSchema pattern of
// binding raw form values to a small struct before running a zog schema
// over it.
type submitFields struct {
	TaskID string
	Model  string
}

var submitSchema = z.Struct(z.Shape{
	"TaskID": z.String().
		Min(1, z.Message("task_id is required")).
		Max(maxTaskIDLength, z.Message("task_id must be at most 128 characters")),
	"Model": z.String(),
}).TestFunc(func(val any, ctx internals.Ctx) bool {
	fields, ok := val.(*submitFields)
	if !ok {
		return false
	}
	return isPrintableASCII(fields.TaskID)
}, z.Message("task_id must be printable ASCII"))

func isPrintableASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

type submitHandler struct {
	deps Deps
}

func (h *submitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.deps.Config.MaxBundleBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed multipart body or bundle too large")
		return
	}
	defer r.MultipartForm.RemoveAll()

	fields := submitFields{
		TaskID: r.FormValue("task_id"),
		Model:  r.FormValue("model"),
	}
	if fields.Model == "" {
		fields.Model = h.deps.Config.DefaultModel
	}

	if issues := submitSchema.Validate(&fields); issues != nil {
		slog.Warn("submit validation failed", "err", issues)
		writeError(w, http.StatusBadRequest, "bad_request", "invalid task_id or model")
		return
	}

	if _, ok := h.deps.Config.AllowedModels[fields.Model]; !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "model not in allow-list")
		return
	}

	password := r.FormValue("password")
	if password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "password is required")
		return
	}

	file, _, err := r.FormFile(taskFileField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing "+taskFileField)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("read submitted bundle", "err", err)
		writeError(w, http.StatusBadRequest, "bad_request", "unable to read bundle")
		return
	}

	// The password is only used server-side by the worker when it unpacks
	// the bundle; the submit handler never validates it against the
	// bundle contents (that would require a full unpack on the hot
	// request path, against spec.md §5's "no handler holds the registry
	// lock across I/O"). It is carried on the task record only implicitly
	// — the server is configured with a single shared BUNDLE_PASSWORD, so
	// nothing from the request is stored.
	_ = password

	// Stage the bundle under a name no task_id addresses yet. A rejected
	// submission (409 conflict, 429 pool full) must never touch the
	// bytes an already-accepted task_id's record points at, so the
	// rename into uploads/<task_id>.bundle only happens after Admit
	// actually accepts this submission.
	stagedPath, err := h.deps.Store.StageBundle(data)
	if err != nil {
		slog.Error("stage bundle", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "unable to store bundle")
		return
	}

	now := h.deps.now()
	evicted, err := h.deps.Registry.Admit(fields.TaskID, fields.Model, h.deps.Store.BundlePath(fields.TaskID), now)
	if err != nil {
		if discardErr := h.deps.Store.DiscardBundle(stagedPath); discardErr != nil {
			slog.Error("discard staged bundle after rejected admit", "err", discardErr)
		}
		if errors.Is(err, registry.ErrConflict) {
			writeError(w, http.StatusConflict, "conflict", "task_id already queued or processing")
			return
		}
		if errors.Is(err, registry.ErrCapacity) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": "pool_full",
				"pool":  poolViewJSON(h.deps.Registry.PoolView()),
			})
			return
		}
		slog.Error("admit task", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "unable to admit task")
		return
	}
	if evicted != nil {
		cleanupEvicted(h.deps, evicted)
	}

	if _, err := h.deps.Store.CommitBundle(stagedPath, fields.TaskID); err != nil {
		slog.Error("commit staged bundle", "err", err)
		if failErr := h.deps.Registry.Fail(fields.TaskID, registry.TaskError{Code: "storage.io", Message: err.Error()}, now); failErr != nil {
			slog.Error("fail task after commit failure", "err", failErr)
		}
		writeError(w, http.StatusInternalServerError, "internal", "unable to store bundle")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":     fields.TaskID,
		"accepted_at": now.Format(time.RFC3339),
	})
}

// cleanupEvicted removes the on-disk artifacts of a task record Admit
// displaced on resubmission (spec.md §4.4, "evict it and its artifacts").
func cleanupEvicted(deps Deps, evicted *registry.Task) {
	if evicted.Result != nil {
		if err := deps.Store.DeleteResult(evicted.ID); err != nil {
			slog.Error("cleanup evicted result", "task_id", evicted.ID, "err", err)
		}
	}
}
