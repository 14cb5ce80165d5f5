package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/httplog/v2"

	"github.com/finchlake/transcribeq/internal/progress"
	"github.com/finchlake/transcribeq/internal/registry"
	"github.com/finchlake/transcribeq/internal/store"
)

func newTestDeps(t *testing.T, capacity int) (Deps, *registry.Registry, *store.Store) {
	t.Helper()
	root := t.TempDir()
	st, err := store.New(
		filepath.Join(root, "uploads"),
		filepath.Join(root, "work"),
		filepath.Join(root, "results"),
		time.Hour,
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reg := registry.New(capacity)
	deps := Deps{
		Registry: reg,
		Store:    st,
		Progress: progress.NewHub(),
		Config: Config{
			AllowedModels:  map[string]struct{}{"small": {}, "medium": {}},
			DefaultModel:   "small",
			MaxBundleBytes: 1 << 20,
		},
	}
	return deps, reg, st
}

func buildSubmitBody(t *testing.T, taskID, model, password string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if taskID != "" {
		mw.WriteField("task_id", taskID)
	}
	if model != "" {
		mw.WriteField("model", model)
	}
	mw.WriteField("password", password)

	part, err := mw.CreateFormFile(taskFileField, "bundle.bin")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(audio)

	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSubmitAccepted(t *testing.T) {
	deps, _, _ := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	body, contentType := buildSubmitBody(t, "T1", "small", "pw", []byte("bundle-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/tasks/submit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSubmitRejectsUnknownModel(t *testing.T) {
	deps, _, _ := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	body, contentType := buildSubmitBody(t, "T1", "giant", "pw", []byte("bundle-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/tasks/submit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitConflictOnDuplicateInFlight(t *testing.T) {
	deps, reg, _ := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	body1, ct1 := buildSubmitBody(t, "T3", "small", "pw", []byte("a"))
	req1 := httptest.NewRequest(http.MethodPost, "/tasks/submit", body1)
	req1.Header.Set("Content-Type", ct1)
	rec1 := httptest.NewRecorder()
	r.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusAccepted {
		t.Fatalf("first submit expected 202, got %d", rec1.Code)
	}

	body2, ct2 := buildSubmitBody(t, "T3", "small", "pw", []byte("b"))
	req2 := httptest.NewRequest(http.MethodPost, "/tasks/submit", body2)
	req2.Header.Set("Content-Type", ct2)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate in-flight submit, got %d", rec2.Code)
	}

	task, err := reg.Status("T3")
	if err != nil {
		t.Fatalf("status T3: %v", err)
	}
	data, err := os.ReadFile(task.BundlePath)
	if err != nil {
		t.Fatalf("read in-flight bundle: %v", err)
	}
	if string(data) != "a" {
		t.Fatalf("expected in-flight task's bundle untouched by rejected resubmission, got %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(task.BundlePath))
	if err != nil {
		t.Fatalf("read uploads dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".stage-") {
			t.Fatalf("expected rejected submission's staged bundle to be discarded, found %s", e.Name())
		}
	}
}

func TestSubmitRejectsWhenPoolFull(t *testing.T) {
	deps, reg, _ := newTestDeps(t, 1)
	r := NewRouter(httplog.NewLogger("test"), deps)

	reg.Admit("T1", "small", "/up/T1", time.Now())

	body, contentType := buildSubmitBody(t, "T2", "small", "pw", []byte("bundle-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/tasks/submit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"error":"pool_full"`)) {
		t.Fatalf("expected pool_full error body, got %s", rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"is_full":true`)) {
		t.Fatalf("expected pool view embedded in body, got %s", rec.Body.String())
	}

	if _, err := reg.Status("T2"); err != registry.ErrNotFound {
		t.Fatalf("expected T2 never admitted, got err=%v", err)
	}
}

func TestPoolStatusReflectsCapacity(t *testing.T) {
	deps, reg, _ := newTestDeps(t, 1)
	r := NewRouter(httplog.NewLogger("test"), deps)

	reg.Admit("T1", "small", "/up/T1", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/pool/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"is_full":true`)) {
		t.Fatalf("expected is_full true in body: %s", rec.Body.String())
	}
}

func TestStatusUnknownTaskIs404(t *testing.T) {
	deps, _, _ := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	req := httptest.NewRequest(http.MethodGet, "/tasks/nope/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestResultNotReadyIs409(t *testing.T) {
	deps, reg, _ := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	reg.Admit("T1", "small", "/up/T1", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/tasks/T1/result", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestResultDownloadAfterCompletion(t *testing.T) {
	deps, reg, st := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	reg.Admit("T1", "small", "/up/T1", time.Now())
	task, _ := reg.ClaimNext(time.Now())

	srtPath := filepath.Join(t.TempDir(), "out.srt")
	writeFile(t, srtPath, "1\n00:00:00,000 --> 00:00:01,000\nhello\n")
	desc, err := st.PublishResult(task.ID, srtPath, time.Now())
	if err != nil {
		t.Fatalf("publish result: %v", err)
	}
	if err := reg.Complete(task.ID, *desc, time.Now()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/tasks/T1/result/download", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/x-subrip" {
		t.Fatalf("unexpected content type: %s", rec.Header().Get("Content-Type"))
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("hello")) {
		t.Fatalf("expected subtitle body, got %s", rec.Body.String())
	}
}

func TestDeleteQueuedTaskCancels(t *testing.T) {
	deps, reg, _ := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	reg.Admit("T5", "small", "/up/T5", time.Now())

	req := httptest.NewRequest(http.MethodDelete, "/tasks/T5", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	status, _ := reg.Status("T5")
	if status.State != registry.Cancelled {
		t.Fatalf("expected CANCELLED, got %s", status.State)
	}
}

func TestDeleteUnknownTaskIsIdempotent(t *testing.T) {
	deps, _, _ := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	req := httptest.NewRequest(http.MethodDelete, "/tasks/ghost", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	deps, _, _ := newTestDeps(t, 10)
	r := NewRouter(httplog.NewLogger("test"), deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}
