package registry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever a manifest source changes on disk, and
// blocks until ctx is cancelled. A reload failure keeps the previous
// configuration and is logged as a warning; only watcher setup errors are
// returned.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, base := range []string{r.opts.ConfigDir, r.opts.ClientsConfigPath, r.opts.UserDir} {
		if base == "" {
			continue
		}
		base = expandHome(base)
		if info, err := os.Stat(base); err == nil {
			if info.Mode().IsRegular() {
				base = filepath.Dir(base)
			}
			if err := watcher.Add(base); err != nil {
				slog.Warn("cannot watch configuration path", "path", base, "error", err)
			}
		}
	}

	// Editors fire bursts of events per save; coalesce them.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("configuration watcher error", "error", err)
		case <-pending:
			pending = nil
			if err := r.Reload(); err != nil {
				slog.Warn("configuration reload failed, keeping previous configuration", "error", err)
			} else {
				slog.Info("configuration reloaded", "clients", r.ListClients())
			}
		}
	}
}
