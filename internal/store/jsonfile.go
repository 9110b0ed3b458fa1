package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ainotebook/internal/logging"
)

// FileCollection keeps a collection as a JSON array in a single file.
//
// A cached collection reads the file once and serves later reads from memory;
// an uncached one re-reads the file on every call. Either way each mutation
// rewrites the whole file through a temp file and rename, and a per-collection
// mutex serializes the read-modify-write cycle.
type FileCollection[T Record] struct {
	name   string
	path   string
	cached bool
	seed   func() []T
	logger *logging.Logger

	mu     sync.Mutex
	items  []T
	loaded bool
	// disk is the file as last read or written by this collection.
	disk fileState
}

type fileState struct {
	size    int64
	modTime time.Time
	known   bool
}

func statFile(path string) (fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}, err
	}
	return fileState{size: info.Size(), modTime: info.ModTime(), known: true}, nil
}

// NewFileCollection creates a collection backed by path. seed supplies the
// records written when the file does not exist yet and may be nil.
func NewFileCollection[T Record](name, path string, cached bool, seed func() []T, logger *logging.Logger) *FileCollection[T] {
	return &FileCollection[T]{
		name:   name,
		path:   path,
		cached: cached,
		seed:   seed,
		logger: logger.WithContext("collection", name),
	}
}

// Name returns the collection name.
func (c *FileCollection[T]) Name() string { return c.name }

// Path returns the backing file.
func (c *FileCollection[T]) Path() string { return c.path }

// Invalidate drops the cached copy so the next call re-reads the file. It
// reports false, keeping the cache, when the file on disk is still the one
// this collection last read or wrote.
func (c *FileCollection[T]) Invalidate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disk.known {
		if current, err := statFile(c.path); err == nil && current == c.disk {
			return false
		}
	}
	c.items = nil
	c.loaded = false
	c.disk = fileState{}
	return true
}

func (c *FileCollection[T]) List(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	items, _ := c.loadLocked()
	return cloneItems(items), nil
}

func (c *FileCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	items, _ := c.loadLocked()
	if i := indexOf(items, id); i >= 0 {
		return items[i], nil
	}
	return zero, ErrNotFound
}

func (c *FileCollection[T]) Create(ctx context.Context, build func([]T) (T, error)) (T, error) {
	var rec T
	err := c.modify(ctx, func(items []T) ([]T, error) {
		next, created, err := applyCreate(items, build)
		rec = created
		return next, err
	})
	return rec, err
}

func (c *FileCollection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	return c.UpdateChecked(ctx, id, ignoreSnapshot(mutate))
}

func (c *FileCollection[T]) UpdateChecked(ctx context.Context, id string, mutate func([]T, *T) error) (T, error) {
	var rec T
	err := c.modify(ctx, func(items []T) ([]T, error) {
		next, updated, err := applyUpdate(items, id, mutate)
		rec = updated
		return next, err
	})
	return rec, err
}

func (c *FileCollection[T]) Delete(ctx context.Context, id string) (T, error) {
	var rec T
	err := c.modify(ctx, func(items []T) ([]T, error) {
		next, removed, err := applyDelete(items, id)
		rec = removed
		return next, err
	})
	return rec, err
}

func (c *FileCollection[T]) DeleteWhere(ctx context.Context, match func(T) bool) (int, error) {
	var n int
	err := c.modify(ctx, func(items []T) ([]T, error) {
		var next []T
		next, n = applyDeleteWhere(items, match)
		return next, nil
	})
	return n, err
}

func (c *FileCollection[T]) ReplaceAll(ctx context.Context, items []T) error {
	return c.modify(ctx, func([]T) ([]T, error) {
		return cloneItems(items), nil
	})
}

func (c *FileCollection[T]) modify(ctx context.Context, fn func([]T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.loadLocked()
	if err != nil {
		return fmt.Errorf("%s file is unreadable, refusing to overwrite it: %w", c.name, err)
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	if err := c.persistLocked(next); err != nil {
		return err
	}
	if c.cached {
		c.items = next
		c.loaded = true
	}
	return nil
}

// loadLocked returns the current records. A missing file is initialised with
// the seed. An unreadable or corrupt file is logged and returned as empty
// together with the read error; it is not cached, so the next call retries.
func (c *FileCollection[T]) loadLocked() ([]T, error) {
	if c.cached && c.loaded {
		return c.items, nil
	}

	items, state, err := c.readFile()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		items = nil
		if c.seed != nil {
			items = c.seed()
		}
		if err := c.persistLocked(items); err != nil {
			c.logger.WithContext("error", err.Error()).Error("failed to write initial %s file", c.name)
		}
	case err != nil:
		c.logger.WithContext("error", err.Error()).Warn("failed to load %s, treating as empty", c.name)
		return nil, err
	default:
		c.disk = state
	}

	if c.cached {
		c.items = items
		c.loaded = true
	}
	return items, nil
}

// readFile stats before reading, so a write racing the read leaves a stale
// state behind and the next Invalidate reloads.
func (c *FileCollection[T]) readFile() ([]T, fileState, error) {
	state, err := statFile(c.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fileState{}, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fileState{}, fmt.Errorf("decode %s: %w", c.path, err)
	}
	return items, state, nil
}

func (c *FileCollection[T]) persistLocked(items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.name, err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("save %s: %w", c.name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save %s: %w", c.name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save %s: %w", c.name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", c.name, err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("save %s: %w", c.name, err)
	}
	c.disk, _ = statFile(c.path)
	return nil
}
