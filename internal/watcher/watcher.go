// Package watcher reloads JSON collections that are edited outside the
// running process.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"ainotebook/internal/logging"
	"ainotebook/internal/store"
)

// Watcher monitors the data files of cached collections
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	files     map[string]store.CachedFile // cleaned path -> collection
	dirs      []string
	logger    *logging.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher creates a watcher for files. Directories are watched rather
// than the files themselves because the store replaces files by rename.
func NewWatcher(files []store.CachedFile, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithContext("error", err.Error()).Error("failed to create fsnotify watcher")
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		files:     make(map[string]store.CachedFile, len(files)),
		logger:    logger,
	}
	seen := make(map[string]bool)
	for _, f := range files {
		path := filepath.Clean(f.Path())
		w.files[path] = f
		if dir := filepath.Dir(path); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w, nil
}

// Start adds the data directories and runs the event loop until ctx is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Debug("starting data file watcher")

	for _, dir := range w.dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			w.logger.WithFields(map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			}).Error("failed to watch data directory")
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.logger.WithContext("dir", dir).Debug("watching data directory")
	}

	w.wg.Add(1)
	go w.eventLoop(ctx)

	w.logger.WithContext("file_count", len(w.files)).Info("data file watcher started")
	return nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsWatcher.Close()
	})
	w.wg.Wait()
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.closeOnce.Do(func() { w.fsWatcher.Close() })
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.WithContext("error", err.Error()).Error("watcher error")
		}
	}
}

// handleEvent drops the cache of the collection behind event.Name.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	f, ok := w.files[filepath.Clean(event.Name)]
	if !ok {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	logger := w.logger.WithFields(map[string]interface{}{
		"collection": f.Name(),
		"event_type": event.Op.String(),
	})
	// the store's own writes leave the file as it last saw it
	if !f.Invalidate() {
		logger.Debug("file unchanged since last store access")
		return
	}
	logger.Debug("collection invalidated")
}
