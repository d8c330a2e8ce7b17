package index

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It is the default
// backend: nothing outlives the process and every request replaces the
// whole set anyway.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Replace swaps the stored record set.
func (s *MemoryStore) Replace(_ context.Context, recs []Record) error {
	cp := make([]Record, len(recs))
	copy(cp, recs)

	s.mu.Lock()
	s.recs = cp
	s.mu.Unlock()
	return nil
}

// Records returns a copy of the current record set.
func (s *MemoryStore) Records(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return out, nil
}
