// Package memblob implements [blob.Store] in process memory. Intended for
// tests and single-process development runs.
package memblob

import (
	"context"
	"fmt"
	"sync"

	"github.com/wagmirep/lahstats/pkg/blob"
)

// Store is an in-memory [blob.Store]. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ blob.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Put implements [blob.Store].
func (s *Store) Put(ctx context.Context, ref string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.objects[ref] = cp
	s.mu.Unlock()
	return nil
}

// Get implements [blob.Store].
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.objects[ref]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("memblob: %q: %w", ref, blob.ErrNotFound)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
