// Package store provides the generic concurrent keyed store backing every
// entity collection. It is the single source of truth for entity state;
// concurrency safety is the store's contract, not an implicit global.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"ecosweep.org/internal/ids"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
)

// Entity is anything the store can hold. Clone must return a deep copy so
// callers never share mutable state (sets, slices) with the store.
type Entity[T any] interface {
	Key() string
	Clone() T
}

// NewID returns a fresh sortable identifier for a new entity.
func NewID() string { return ids.New() }

// Memory implements the store contract in process. All mutations run under a
// single write lock, so a mutator passed to Update executes as one critical
// section: read-check-write sequences (capacity checks, status transitions)
// cannot interleave.
type Memory[T Entity[T]] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewMemory creates an empty store.
func NewMemory[T Entity[T]]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

// Create inserts the entity under its key. Fails with ErrExists on collision.
func (s *Memory[T]) Create(ctx context.Context, item T) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	key := item.Key()
	if _, ok := s.items[key]; ok {
		return zero, ErrExists
	}
	s.items[key] = item.Clone()
	return item, nil
}

// Get returns a copy of the entity with the given id.
func (s *Memory[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return zero, ErrNotFound
	}
	return item.Clone(), nil
}

// All returns copies of every stored entity ordered by key. ULID keys sort by
// creation time, so the order is stable and chronological.
func (s *Memory[T]) All(ctx context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Find returns copies of entities matching the predicate, ordered by key.
func (s *Memory[T]) Find(ctx context.Context, pred func(T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, item := range s.items {
		if pred(item.Clone()) {
			out = append(out, item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Update applies mutate to the entity under the write lock and persists the
// result atomically. If mutate returns an error nothing is written and the
// error is passed through unchanged.
func (s *Memory[T]) Update(ctx context.Context, id string, mutate func(T) (T, error)) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok {
		return zero, ErrNotFound
	}
	next, err := mutate(current.Clone())
	if err != nil {
		return zero, err
	}
	s.items[id] = next.Clone()
	return next, nil
}

// Delete removes the entity. Fails with ErrNotFound if it is absent.
func (s *Memory[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Len reports the number of stored entities.
func (s *Memory[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
