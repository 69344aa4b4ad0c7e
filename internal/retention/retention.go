// Package retention bounds disk usage of the download directory and
// the length of the applied-wallpaper history.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/wallshift/internal/download"
	"github.com/ppiankov/wallshift/internal/history"
)

// Enforce keeps the limit most-recently-modified files in dir and
// deletes the rest. Partial downloads left by an interrupted run are
// always deleted. Individual delete failures are logged, not fatal.
// Returns the number of files removed.
func Enforce(dir string, limit int) (int, error) {
	stale, err := Stale(dir, limit)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range stale {
		if remove(p) {
			removed++
		}
	}
	return removed, nil
}

// Stale returns the paths Enforce would delete: partial downloads plus
// every complete file beyond the limit most-recently-modified.
func Stale(dir string, limit int) ([]string, error) {
	if limit < 0 {
		return nil, errors.New("limit must not be negative")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	type file struct {
		path    string
		modTime time.Time
	}

	var stale []string
	var files []file
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if strings.HasSuffix(e.Name(), download.PartSuffix) {
			stale = append(stale, full)
			continue
		}
		info, err := e.Info()
		if err != nil {
			slog.Warn("skipping unreadable file",
				slog.String("path", full),
				slog.String("error", err.Error()),
			)
			continue
		}
		files = append(files, file{path: full, modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	for i := limit; i < len(files); i++ {
		stale = append(stale, files[i].path)
	}

	return stale, nil
}

// EnforceHistory trims the history store to its limit most-recent
// entries and deletes the files the evicted entries pointed at.
// Already-missing files are not an error. Returns the number of files
// removed from disk.
func EnforceHistory(ctx context.Context, store *history.Store, limit int) (int, error) {
	paths, err := store.EvictOldestBeyond(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("evict history: %w", err)
	}

	removed := 0
	for _, p := range paths {
		if remove(p) {
			removed++
		}
	}
	return removed, nil
}

func remove(path string) bool {
	err := os.Remove(path)
	if err == nil {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not remove file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	return false
}
