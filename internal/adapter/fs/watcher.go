package fs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// PointerWatcher calls onChange when the file named target inside dir is
// created or replaced. Bursts of events within the debounce window collapse
// into one call.
type PointerWatcher struct {
	dir      string
	target   string
	debounce time.Duration
	logger   *slog.Logger
}

func NewPointerWatcher(dir, target string, logger *slog.Logger) *PointerWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PointerWatcher{
		dir:      dir,
		target:   target,
		debounce: defaultDebounce,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled or the watcher fails.
func (w *PointerWatcher) Run(ctx context.Context, onChange func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// The pointer is replaced by rename, so watch the directory, not the file.
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != w.target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "dir", w.dir, "error", err)
		case <-timer.C:
			onChange(ctx)
		}
	}
}
