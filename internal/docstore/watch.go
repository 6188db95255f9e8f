package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last event before it
// inspects the document.
const DefaultDebounce = 250 * time.Millisecond

// Watch calls onChange whenever the document is replaced or modified by
// something other than this FileStore. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself because
// atomic writes replace the inode.
func (f *FileStore) Watch(ctx context.Context, debounce time.Duration, logger *slog.Logger, onChange func(context.Context)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching post document", "path", f.path)

	base := filepath.Base(f.path)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("post document watcher error", "error", err)

		case <-timer.C:
			data, err := os.ReadFile(f.path)
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("post document removed, keeping cached posts", "path", f.path)
				continue
			}
			if err != nil {
				logger.Warn("read post document", "path", f.path, "error", err)
				continue
			}
			if !f.changed(data) {
				continue
			}
			logger.Info("post document changed on disk", "path", f.path)
			onChange(ctx)
		}
	}
}
