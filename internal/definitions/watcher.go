package definitions

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 500 * time.Millisecond

// Watch re-applies the definition directory whenever one of its YAML files changes.
// Removing a file does not unpublish its feed.
func (r *Registry) Watch(ctx context.Context, dir, defaultDID string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	r.logger.Info("Watching definition files", zap.String("dir", dir))

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDefinitionChange(event) {
				continue
			}
			if !pending {
				timer.Reset(watchDebounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Definition watch error", zap.Error(err))
		case <-timer.C:
			pending = false
			if _, err := r.ApplyDir(ctx, dir, defaultDID); err != nil {
				r.logger.Error("Failed to reload definitions", zap.Error(err))
			}
		}
	}
}

func isDefinitionChange(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	switch filepath.Ext(event.Name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
