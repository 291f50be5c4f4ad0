package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupTemps removes files created by DownloadToFile in dir that are
// older than maxAge. It returns the number of files removed.
func CleanupTemps(dir string, maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.IsDir() {
			if path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(info.Name(), TempPrefix) {
			return nil
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	return removed
}
