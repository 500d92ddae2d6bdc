// Package store holds the persistence boundaries of the crypto core: the
// device-local key store, the plaintext guest snapshot, and the remote
// document store. Implementations are swappable; tests use the in-memory
// ones.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"daybook-crypto/internal/keywrap"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrMalformedData = errors.New("store: malformed data")
)

// KeyRecordStore persists one Protected Key Record per user on this device.
// Records survive restarts but are never synced across devices.
type KeyRecordStore interface {
	Get(ctx context.Context, userID string) (keywrap.Record, error)
	Put(ctx context.Context, userID string, rec keywrap.Record) error
	Delete(ctx context.Context, userID string) error
}

// FileKeyRecordStore keeps one JSON file per user under a 0700 directory.
type FileKeyRecordStore struct{ dir string }

func NewFileKeyRecordStore(dir string) *FileKeyRecordStore {
	_ = os.MkdirAll(dir, 0700)
	return &FileKeyRecordStore{dir: dir}
}

func (f *FileKeyRecordStore) path(userID string) string {
	// File names derive from a hash so arbitrary user ids stay path-safe.
	sum := sha256.Sum256([]byte(userID))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:8])+".key.json")
}

func (f *FileKeyRecordStore) Get(_ context.Context, userID string) (keywrap.Record, error) {
	var rec keywrap.Record
	b, err := os.ReadFile(f.path(userID))
	if os.IsNotExist(err) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("store: read key record: %w", err)
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if len(rec.WrappedKey.Ciphertext) == 0 || rec.Mode == "" {
		return rec, fmt.Errorf("%w: incomplete key record", ErrMalformedData)
	}
	return rec, nil
}

func (f *FileKeyRecordStore) Put(_ context.Context, userID string, rec keywrap.Record) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path(userID), b, 0600)
}

func (f *FileKeyRecordStore) Delete(_ context.Context, userID string) error {
	err := os.Remove(f.path(userID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemoryKeyRecordStore is the test double.
type MemoryKeyRecordStore struct {
	mu   sync.Mutex
	recs map[string]keywrap.Record
}

func NewMemoryKeyRecordStore() *MemoryKeyRecordStore {
	return &MemoryKeyRecordStore{recs: make(map[string]keywrap.Record)}
}

func (m *MemoryKeyRecordStore) Get(_ context.Context, userID string) (keywrap.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[userID]
	if !ok {
		return keywrap.Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryKeyRecordStore) Put(_ context.Context, userID string, rec keywrap.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[userID] = rec
	return nil
}

func (m *MemoryKeyRecordStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, userID)
	return nil
}
