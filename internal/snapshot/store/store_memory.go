// Package store persists named snapshot blobs.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"lexaudit/pkg/platform/sentinel"
)

// InMemoryStore keeps snapshots for the lifetime of the process. It backs
// tests and deployments without Redis.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string][]byte)}
}

// Save writes every part under one lock so readers never see a mix of old
// and new parts.
func (s *InMemoryStore) Save(_ context.Context, parts map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, data := range parts {
		s.blobs[name] = slices.Clone(data)
	}
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(data), nil
}

// Names lists the stored parts.
func (s *InMemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.blobs))
}
