package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/linkscan/internal/logfields"
)

// DefaultWatchDebounce coalesces bursts of file events into one reload.
const DefaultWatchDebounce = 2 * time.Second

// Watch reloads the catalog whenever content changes under the root. It
// blocks until ctx is done.
func (c *FSCatalog) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			slog.Debug("Closing catalog watcher failed", logfields.Error(cerr))
		}
	}()

	if err := addDirs(w, c.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.root, err)
	}
	slog.Info("Watching content directory", logfields.Path(c.root))

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				// New directories need their own watch.
				_ = addDirs(w, ev.Name)
			}
			if !relevant(ev) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := c.Reload(ctx); err != nil {
				slog.Error("Content reload failed", logfields.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("Content watcher error", logfields.Error(err))
		}
	}
}

func addDirs(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return isContentFile(ev.Name) || filepath.Ext(ev.Name) == ""
}
