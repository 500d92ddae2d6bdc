package store

import (
	"context"
	"sync"
)

// DocumentStore is the remote document store boundary. Documents reaching
// it carry encrypted envelopes on their sensitive fields; the store treats
// them as opaque.
type DocumentStore interface {
	Put(ctx context.Context, collection, id string, doc map[string]any) error
	Get(ctx context.Context, collection, id string) (map[string]any, error)
	Delete(ctx context.Context, collection, id string) error
}

// MemoryDocumentStore is the test double. PutErr, when set, is consulted
// before every write so tests can inject remote failures mid-migration.
type MemoryDocumentStore struct {
	mu     sync.Mutex
	docs   map[string]map[string]any
	PutErr func(collection, id string) error
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]map[string]any)}
}

func docKey(collection, id string) string { return collection + "/" + id }

func (m *MemoryDocumentStore) Put(_ context.Context, collection, id string, doc map[string]any) error {
	if m.PutErr != nil {
		if err := m.PutErr(collection, id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]any, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	m.docs[docKey(collection, id)] = cp
	return nil
}

func (m *MemoryDocumentStore) Get(_ context.Context, collection, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docKey(collection, id)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make(map[string]any, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	return cp, nil
}

func (m *MemoryDocumentStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, docKey(collection, id))
	return nil
}

// Len reports the number of stored documents. Test helper.
func (m *MemoryDocumentStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}
