package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// SnapshotEntry is one pre-authentication record awaiting migration.
// Doc holds the plaintext document as decoded JSON.
type SnapshotEntry struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Doc        map[string]any `json:"doc"`
}

// SnapshotStore holds the guest snapshot: plaintext, device-local, and
// transient. It exists only between first data entry and a successful
// migration, after which Clear removes it entirely.
type SnapshotStore interface {
	Load(ctx context.Context) ([]SnapshotEntry, error)
	Append(ctx context.Context, e SnapshotEntry) error
	Clear(ctx context.Context) error
}

// FileSnapshotStore keeps the snapshot in a single 0600 JSON file.
type FileSnapshotStore struct {
	mu   sync.Mutex
	path string
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (f *FileSnapshotStore) Load(_ context.Context) ([]SnapshotEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *FileSnapshotStore) loadLocked() ([]SnapshotEntry, error) {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read snapshot: %w", err)
	}
	var entries []SnapshotEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return entries, nil
}

func (f *FileSnapshotStore) Append(_ context.Context, e SnapshotEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.loadLocked()
	if err != nil {
		return err
	}
	entries = append(entries, e)
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, b, 0600)
}

func (f *FileSnapshotStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemorySnapshotStore is the test double.
type MemorySnapshotStore struct {
	mu      sync.Mutex
	entries []SnapshotEntry
}

func NewMemorySnapshotStore() *MemorySnapshotStore { return &MemorySnapshotStore{} }

func (m *MemorySnapshotStore) Load(_ context.Context) ([]SnapshotEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SnapshotEntry(nil), m.entries...), nil
}

func (m *MemorySnapshotStore) Append(_ context.Context, e SnapshotEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemorySnapshotStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}
