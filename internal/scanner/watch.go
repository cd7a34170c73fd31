package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces a burst of filesystem events into a single
// Wake() no more than once per window, matching the original client's use
// of inotify/kqueue purely as a responsiveness hint, not a source of
// truth the scanner trusts blindly.
const defaultDebounce = 250 * time.Millisecond

// Watch recursively registers fsnotify watches under root and calls
// e.Wake() whenever activity is observed, debounced to at most once per
// window. It blocks until ctx is canceled or the watcher fails to start.
func Watch(ctx context.Context, e *Engine, root string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addRecursive(w, root); err != nil {
		return err
	}

	timer := time.NewTimer(defaultDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				// A new directory may itself need watching; best-effort,
				// errors here (e.g. the path vanished already) are not fatal.
				_ = w.Add(ev.Name)
			}

			if !pending {
				pending = true

				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}

				timer.Reset(defaultDebounce)
			}

		case <-timer.C:
			if pending {
				pending = false
				e.Wake()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warn("scanner: fsnotify error", "error", err)
		}
	}
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable subtrees rather than aborting the whole watch
		}

		if info.IsDir() {
			return w.Add(path)
		}

		return nil
	})
}
