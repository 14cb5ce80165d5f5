package client

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// videoExtensions is the fixed set scanned for, per spec.md §4.8 step 1.
var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".mov": {}, ".avi": {}, ".webm": {}, ".m4v": {},
}

// Scan recursively enumerates root for video files in stable (sorted
// path) order.
func Scan(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

// hasSiblingSRT reports whether videoPath already has a stem-matching
// .srt file beside it (spec.md §4.8 step 2).
func hasSiblingSRT(videoPath string) bool {
	stem := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	_, err := os.Stat(stem + ".srt")
	return err == nil
}
