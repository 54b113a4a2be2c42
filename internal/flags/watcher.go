package flags

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the set whenever the flag file changes on disk, invoking
// onReload (if non-nil) after each successful reload. It blocks until ctx
// is cancelled, so callers run it in its own goroutine. Reload failures
// are logged and skipped; the previous state stays in effect.
//
// The parent directory is watched rather than the file itself because many
// editors and config pushers replace the file via rename, which would
// otherwise drop the watch.
func Watch(ctx context.Context, path string, set *Set, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := set.LoadFile(path); err != nil {
				slog.Error("flag reload failed", "path", path, "error", err)
				continue
			}
			slog.Info("flags reloaded", "path", path)
			if onReload != nil {
				onReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("flag watcher error", "error", err)
		}
	}
}
