package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches the policy file and reloads the store on change.
type Reloader struct {
	watcher *fsnotify.Watcher
	store   *Store
	path    string
	log     logrus.FieldLogger
}

// NewReloader creates a file watcher for path. The parent directory is
// watched so editors that replace the file by rename are picked up.
func NewReloader(store *Store, path string, log logrus.FieldLogger) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("reloader: empty policy path")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	return &Reloader{
		watcher: watcher,
		store:   store,
		path:    filepath.Clean(path),
		log:     log,
	}, nil
}

// Run watches for file changes and reloads policy. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait after the last write before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.WithError(err).Warn("policy watcher error")
		}
	}
}

func (r *Reloader) reload() {
	if err := r.store.Reload(r.path); err != nil {
		r.log.WithError(err).WithField("path", r.path).Error("policy hot-reload failed, keeping previous config")
		return
	}
	r.log.WithFields(logrus.Fields{
		"path": r.path,
		"hash": r.store.Hash(),
	}).Info("policy reloaded")
}
