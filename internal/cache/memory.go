package cache

import (
	"context"
	"sync"

	"fidchannels/backend"
)

// MemoryStore keeps entries in a process-wide map guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[backend.FID]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[backend.FID]Entry)}
}

// Get returns the entry for key.
func (s *MemoryStore) Get(_ context.Context, key backend.FID) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

// Put replaces the entry for entry.Key.
func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key backend.FID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
