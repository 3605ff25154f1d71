package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/steadystate/havoc/pkg/log"
)

// debounce window for editors that fire several events per save
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever the file changes, until ctx is
// cancelled. A reload that fails validation is logged and discarded,
// the previously loaded definitions stay in force.
func (c *Catalog) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("unable to create catalog watcher, %v", err)
	}
	defer watcher.Close()

	// watch the directory, most editors save by rename which drops a
	// watch on the file itself
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Errorf("unable to watch catalog directory, %v", err)
	}
	log.Infof("[Catalog]: Watching %v for changes", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("catalog watcher error: %v", err)
		case <-pending:
			pending = nil
			if err := c.LoadFile(path); err != nil {
				log.Errorf("catalog reload rejected, keeping previous definitions: %v", err)
			}
		}
	}
}
