package store

import (
	"context"
	"sync"
)

// MemoryCollection keeps records in process memory only. Contents are lost
// on restart.
type MemoryCollection[T Record] struct {
	mu    sync.Mutex
	items []T
}

// NewMemoryCollection creates a collection holding a copy of seed.
func NewMemoryCollection[T Record](seed []T) *MemoryCollection[T] {
	return &MemoryCollection[T]{items: cloneItems(seed)}
}

func (c *MemoryCollection[T]) List(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneItems(c.items), nil
}

func (c *MemoryCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOf(c.items, id); i >= 0 {
		return c.items[i], nil
	}
	return zero, ErrNotFound
}

func (c *MemoryCollection[T]) Create(ctx context.Context, build func([]T) (T, error)) (T, error) {
	var rec T
	err := c.modify(ctx, func(items []T) ([]T, error) {
		next, created, err := applyCreate(items, build)
		rec = created
		return next, err
	})
	return rec, err
}

func (c *MemoryCollection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	return c.UpdateChecked(ctx, id, ignoreSnapshot(mutate))
}

func (c *MemoryCollection[T]) UpdateChecked(ctx context.Context, id string, mutate func([]T, *T) error) (T, error) {
	var rec T
	err := c.modify(ctx, func(items []T) ([]T, error) {
		next, updated, err := applyUpdate(items, id, mutate)
		rec = updated
		return next, err
	})
	return rec, err
}

func (c *MemoryCollection[T]) Delete(ctx context.Context, id string) (T, error) {
	var rec T
	err := c.modify(ctx, func(items []T) ([]T, error) {
		next, removed, err := applyDelete(items, id)
		rec = removed
		return next, err
	})
	return rec, err
}

func (c *MemoryCollection[T]) DeleteWhere(ctx context.Context, match func(T) bool) (int, error) {
	var n int
	err := c.modify(ctx, func(items []T) ([]T, error) {
		var next []T
		next, n = applyDeleteWhere(items, match)
		return next, nil
	})
	return n, err
}

func (c *MemoryCollection[T]) ReplaceAll(ctx context.Context, items []T) error {
	return c.modify(ctx, func([]T) ([]T, error) {
		return cloneItems(items), nil
	})
}

func (c *MemoryCollection[T]) modify(ctx context.Context, fn func([]T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(c.items)
	if err != nil {
		return err
	}
	c.items = next
	return nil
}
