package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// saveSRT writes data as path's sibling subtitle, atomically (spec.md
// §4.8 step 7), using the same write-to-temp-then-rename idiom as the
// server's Artifact Store.
func saveSRT(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.NewString()))

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("client: write temp srt: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("client: rename srt into place: %w", err)
	}
	return nil
}

func srtPathFor(videoPath string) string {
	stem := videoPath[:len(videoPath)-len(filepath.Ext(videoPath))]
	return stem + ".srt"
}

// outputPath places the subtitle for videoPath under outputDir instead
// of alongside the source, keeping only the basename.
func outputPath(outputDir, videoPath string) string {
	base := filepath.Base(videoPath)
	stem := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(outputDir, stem+".srt")
}
