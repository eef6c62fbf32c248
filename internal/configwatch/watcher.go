// Package configwatch re-applies a configuration file when it changes on disk.
package configwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// ReloadFunc re-reads the file and applies it. A returned error leaves the
// running configuration untouched.
type ReloadFunc func() error

// Watch calls reload after the file at path settles following a write,
// create or rename, until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// editors replacing the file through a rename keep being observed.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, reload ReloadFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("configwatch: resolve %s: %w", path, err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("configwatch: resolve %s: %w", path, err)
	}
	abs = filepath.Join(dir, filepath.Base(abs))

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configwatch: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("configwatch: watch %s: %w", dir, err)
	}

	logger.Info("configwatch: started", slog.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("configwatch: stopped")
			return nil

		case <-fire:
			if err := reload(); err != nil {
				logger.Warn("configwatch: reload rejected, keeping current config",
					slog.String("path", abs), slog.String("error", err.Error()))
				continue
			}
			logger.Info("configwatch: reloaded", slog.String("path", abs))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("configwatch: error", slog.String("error", watchErr.Error()))
		}
	}
}
