// Package store implements the Artifact Store (C2): the on-disk layout
// for inbound bundles, per-task scratch working directories, and
// completed subtitle artifacts, plus retention sweeping.
//
// All publish-style writes follow the write-to-temp-then-rename idiom so
// that partial writes are never observable as complete artifacts
// (SPEC_FULL.md §4.2), the same pattern the rest of the retrieval pack
// uses for its own on-disk block stores.
package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ResultDescriptor describes a published subtitle artifact.
type ResultDescriptor struct {
	Path      string
	Size      int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store owns the three filesystem roots described in SPEC_FULL.md §4.2.
type Store struct {
	uploadsDir string
	workDir    string
	resultsDir string
	retention  time.Duration
}

// New creates the three roots if they do not already exist and returns a
// Store configured with the given retention window.
func New(uploadsDir, workDir, resultsDir string, retention time.Duration) (*Store, error) {
	for _, dir := range []string{uploadsDir, workDir, resultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create root %s: %w", dir, err)
		}
	}
	return &Store{
		uploadsDir: uploadsDir,
		workDir:    workDir,
		resultsDir: resultsDir,
		retention:  retention,
	}, nil
}

func (s *Store) uploadPath(taskID string) string {
	return filepath.Join(s.uploadsDir, taskID+".bundle")
}

// BundlePath returns the final, task-keyed location a staged bundle
// lands at once CommitBundle is called, without creating anything.
func (s *Store) BundlePath(taskID string) string {
	return s.uploadPath(taskID)
}

func (s *Store) workDirPath(taskID string) string {
	return filepath.Join(s.workDir, taskID)
}

func (s *Store) resultPath(taskID string) string {
	return filepath.Join(s.resultsDir, taskID+".srt")
}

// PutBundle atomically writes data as the inbound bundle for taskID and
// returns its path.
func (s *Store) PutBundle(taskID string, data []byte) (string, error) {
	dst := s.uploadPath(taskID)
	if err := atomicWrite(dst, data); err != nil {
		return "", fmt.Errorf("store: put bundle: %w", err)
	}
	return dst, nil
}

// StageBundle writes data to a scratch file under the uploads root that
// is not addressed by any task_id, so staging a submission never touches
// another task's bundle. Callers accept or discard the stage with
// CommitBundle/DiscardBundle once admission has been decided.
func (s *Store) StageBundle(data []byte) (string, error) {
	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("store: stage bundle: %w", err)
	}
	tmp := filepath.Join(s.uploadsDir, fmt.Sprintf(".stage-%s.bundle", uuid.NewString()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("store: stage bundle: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("store: stage bundle: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("store: stage bundle: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("store: stage bundle: %w", err)
	}
	return tmp, nil
}

// CommitBundle renames a staged bundle (from StageBundle) into its
// final, task-keyed location. Only call this once admission for taskID
// has actually succeeded — committing before that is what let a
// rejected submission clobber an in-flight task's accepted bundle.
func (s *Store) CommitBundle(stagedPath, taskID string) (string, error) {
	dst := s.uploadPath(taskID)
	if err := os.Rename(stagedPath, dst); err != nil {
		return "", fmt.Errorf("store: commit bundle: %w", err)
	}
	return dst, nil
}

// DiscardBundle removes a staged bundle that was never committed, e.g.
// because admission was rejected with ErrConflict or ErrCapacity.
// Idempotent.
func (s *Store) DiscardBundle(stagedPath string) error {
	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: discard bundle: %w", err)
	}
	return nil
}

// RemoveUpload deletes the inbound bundle file for taskID. Idempotent.
func (s *Store) RemoveUpload(taskID string) error {
	err := os.Remove(s.uploadPath(taskID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: remove upload: %w", err)
	}
	return nil
}

// OpenWorkDir creates an exclusive scratch directory for the task and
// returns its path. It refuses to reuse a directory that is already open
// for the same task_id (SPEC_FULL.md §5: "no two workers may share a
// working directory; the store refuses re-use before deletion") —
// callers must DropWorkDir first.
func (s *Store) OpenWorkDir(taskID string) (string, error) {
	dir := s.workDirPath(taskID)
	if _, err := os.Stat(dir); err == nil {
		return "", ErrWorkDirBusy
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("store: stat workdir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: open workdir: %w", err)
	}
	return dir, nil
}

// DropWorkDir recursively removes the task's scratch directory. Idempotent.
func (s *Store) DropWorkDir(taskID string) error {
	if err := os.RemoveAll(s.workDirPath(taskID)); err != nil {
		return fmt.Errorf("store: drop workdir: %w", err)
	}
	return nil
}

// PublishResult moves srtPath into the results root under a stable,
// task-keyed filename and returns its descriptor. The move is performed
// by copy-then-rename so it works across filesystem boundaries (the
// working directory and results root may be on different mounts) while
// still presenting an atomic rename within the results root itself.
func (s *Store) PublishResult(taskID string, srtPath string, now time.Time) (*ResultDescriptor, error) {
	data, err := os.ReadFile(srtPath)
	if err != nil {
		return nil, fmt.Errorf("store: read srt: %w", err)
	}

	dst := s.resultPath(taskID)
	if err := atomicWrite(dst, data); err != nil {
		return nil, fmt.Errorf("store: publish result: %w", err)
	}

	return &ResultDescriptor{
		Path:      dst,
		Size:      int64(len(data)),
		CreatedAt: now,
		ExpiresAt: now.Add(s.retention),
	}, nil
}

// DeleteResult removes the published subtitle artifact for taskID.
// Idempotent.
func (s *Store) DeleteResult(taskID string) error {
	err := os.Remove(s.resultPath(taskID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete result: %w", err)
	}
	return nil
}

// OpenResult opens the published subtitle artifact for streaming download.
func (s *Store) OpenResult(taskID string) (io.ReadCloser, error) {
	f, err := os.Open(s.resultPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("store: open result: %w", err)
	}
	return f, nil
}

// Sweep removes result files whose expiry has passed. It logs failures
// for individual files but never returns an error — a single bad file
// must not stop the sweep of the rest (spec.md §7).
func (s *Store) Sweep(now time.Time, expired func(taskID string)) {
	entries, err := os.ReadDir(s.resultsDir)
	if err != nil {
		slog.Error("sweep: list results dir", "err", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			slog.Error("sweep: stat result", "file", e.Name(), "err", err)
			continue
		}
		taskID := taskIDFromResultFilename(e.Name())
		// ExpiresAt is not persisted on disk, so expiry is judged from
		// the file's mtime plus retention. Every result file past that
		// point is removed, whether or not the registry still holds a
		// record for it (e.g. after a server restart); the expired
		// callback lets the caller drop that record.
		if now.Sub(info.ModTime()) <= s.retention {
			continue
		}
		if err := s.DeleteResult(taskID); err != nil {
			slog.Error("sweep: delete result", "task", taskID, "err", err)
			continue
		}
		if expired != nil {
			expired(taskID)
		}
	}
}

func taskIDFromResultFilename(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// atomicWrite writes data to a temp file alongside dst and renames it
// into place, so a reader never observes a partially written file.
func atomicWrite(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(dst), uuid.NewString()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
