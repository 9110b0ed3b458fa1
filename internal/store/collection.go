package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Record is anything stored in a Collection.
type Record interface {
	GetID() string
}

// Collection is an ordered set of records keyed by id. Every mutation runs
// under the collection's lock and is persisted before it returns.
type Collection[T Record] interface {
	// List returns all records in insertion order.
	List(ctx context.Context) ([]T, error)
	// Get returns the record with id or ErrNotFound.
	Get(ctx context.Context, id string) (T, error)
	// Create calls build with a snapshot of the collection and appends the
	// record it returns. build runs under the lock, so uniqueness checks and
	// id allocation inside it cannot race with other writers.
	Create(ctx context.Context, build func(existing []T) (T, error)) (T, error)
	// Update applies mutate to the record with id and stores the result.
	Update(ctx context.Context, id string, mutate func(*T) error) (T, error)
	// UpdateChecked is Update with a snapshot of the whole collection, taken
	// under the same lock, passed to mutate. Uniqueness checks against other
	// records belong there.
	UpdateChecked(ctx context.Context, id string, mutate func(existing []T, rec *T) error) (T, error)
	// Delete removes the record with id and returns it.
	Delete(ctx context.Context, id string) (T, error)
	// DeleteWhere removes every record matching match and returns the count.
	DeleteWhere(ctx context.Context, match func(T) bool) (int, error)
	// ReplaceAll overwrites the whole collection.
	ReplaceAll(ctx context.Context, items []T) error
}

// NextSequentialID returns one more than the largest numeric id in items.
// Non-numeric ids count as zero.
func NextSequentialID[T Record](items []T) string {
	max := 0
	for _, item := range items {
		if n, err := strconv.Atoi(item.GetID()); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

func indexOf[T Record](items []T, id string) int {
	for i, item := range items {
		if item.GetID() == id {
			return i
		}
	}
	return -1
}

func cloneItems[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// The apply helpers implement the collection operations over a slice for the
// slice-backed collections. They never modify their input.

func applyCreate[T Record](items []T, build func([]T) (T, error)) ([]T, T, error) {
	rec, err := build(cloneItems(items))
	if err != nil {
		var zero T
		return nil, zero, err
	}
	if rec.GetID() == "" {
		var zero T
		return nil, zero, fmt.Errorf("create: record has no id")
	}
	if indexOf(items, rec.GetID()) >= 0 {
		var zero T
		return nil, zero, fmt.Errorf("create: duplicate id %q", rec.GetID())
	}
	next := append(cloneItems(items), rec)
	return next, rec, nil
}

func applyUpdate[T Record](items []T, id string, mutate func([]T, *T) error) ([]T, T, error) {
	var zero T
	i := indexOf(items, id)
	if i < 0 {
		return nil, zero, ErrNotFound
	}
	rec := items[i]
	if err := mutate(cloneItems(items), &rec); err != nil {
		return nil, zero, err
	}
	if rec.GetID() != id {
		return nil, zero, fmt.Errorf("update: id of %q may not change", id)
	}
	next := cloneItems(items)
	next[i] = rec
	return next, rec, nil
}

func applyDelete[T Record](items []T, id string) ([]T, T, error) {
	var zero T
	i := indexOf(items, id)
	if i < 0 {
		return nil, zero, ErrNotFound
	}
	removed := items[i]
	next := make([]T, 0, len(items)-1)
	next = append(next, items[:i]...)
	next = append(next, items[i+1:]...)
	return next, removed, nil
}

func applyDeleteWhere[T Record](items []T, match func(T) bool) ([]T, int) {
	next := make([]T, 0, len(items))
	for _, item := range items {
		if !match(item) {
			next = append(next, item)
		}
	}
	return next, len(items) - len(next)
}

// ignoreSnapshot adapts an Update mutation to UpdateChecked.
func ignoreSnapshot[T any](mutate func(*T) error) func([]T, *T) error {
	return func(_ []T, rec *T) error { return mutate(rec) }
}
