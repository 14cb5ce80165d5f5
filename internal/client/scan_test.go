package client

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanFindsVideosInSortedOrder(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "b.mp4"), "b")
	mustWrite(t, filepath.Join(root, "a.mkv"), "a")
	mustWrite(t, filepath.Join(root, "notes.txt"), "ignore me")
	os.MkdirAll(filepath.Join(root, "sub"), 0o755)
	mustWrite(t, filepath.Join(root, "sub", "c.mov"), "c")

	got, err := Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 videos, got %v", got)
	}
	if got[0] >= got[1] || got[1] >= got[2] {
		t.Fatalf("expected sorted order, got %v", got)
	}
}

func TestHasSiblingSRT(t *testing.T) {
	root := t.TempDir()
	video := filepath.Join(root, "movie.mp4")
	mustWrite(t, video, "video")

	if hasSiblingSRT(video) {
		t.Fatalf("expected no sibling srt yet")
	}

	mustWrite(t, filepath.Join(root, "movie.srt"), "subs")
	if !hasSiblingSRT(video) {
		t.Fatalf("expected sibling srt to be detected")
	}
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
