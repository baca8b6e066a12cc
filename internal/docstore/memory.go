package docstore

import (
	"context"
	"sync"
)

// MemoryStore keeps collections in process memory. Used by tests and the
// "memory" backend.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Document),
	}
}

func (s *MemoryStore) Find(_ context.Context, collection string, q Query) ([]Document, error) {
	s.mu.RLock()
	candidates := make([]Document, len(s.collections[collection]))
	copy(candidates, s.collections[collection])
	s.mu.RUnlock()

	return filterDocs(candidates, q)
}

func (s *MemoryStore) Upsert(_ context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collection] = upsertDocs(s.collections[collection], docs)
	return nil
}

func (s *MemoryStore) Insert(_ context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collection] = append(s.collections[collection], docs...)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Count returns the number of documents held for collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// upsertDocs replaces documents with matching IDs in place and appends the rest.
func upsertDocs(existing []Document, docs []Document) []Document {
	index := make(map[string]int, len(existing))
	for i, d := range existing {
		index[d.ID] = i
	}
	for _, d := range docs {
		if i, ok := index[d.ID]; ok {
			existing[i] = d
			continue
		}
		index[d.ID] = len(existing)
		existing = append(existing, d)
	}
	return existing
}
