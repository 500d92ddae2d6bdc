// Package migrate moves plaintext guest data into encrypted form once a
// master key exists. A run is atomic from the caller's perspective: the
// snapshot is cleared only after every record is written and verified
// remotely, so an interrupted or failed run can always be replayed.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"daybook-crypto/internal/crypto"
	"daybook-crypto/internal/fieldcrypt"
	"daybook-crypto/internal/keyring"
	"daybook-crypto/internal/store"
)

var ErrMigrationWrite = errors.New("migrate: remote write failed")

// Migrator encrypts and uploads one user's guest snapshot.
type Migrator struct {
	keys      *keyring.Manager
	snapshots store.SnapshotStore
	docs      store.DocumentStore
	specs     map[string][]fieldcrypt.FieldSpec // field specs per collection
	log       *zap.Logger
}

func New(keys *keyring.Manager, snapshots store.SnapshotStore, docs store.DocumentStore, specs map[string][]fieldcrypt.FieldSpec, log *zap.Logger) *Migrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{keys: keys, snapshots: snapshots, docs: docs, specs: specs, log: log}
}

// Run migrates every snapshot entry. Requires the keyring to be Ready; a
// locked keyring fails before anything is written. On any failure the
// documents written so far in this run are removed again and the snapshot
// is left intact.
func (m *Migrator) Run(ctx context.Context) error {
	key, err := m.keys.ActiveKey()
	if err != nil {
		return err
	}
	defer crypto.Zero(key)

	entries, err := m.snapshots.Load(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	m.log.Info("migration started", zap.Int("records", len(entries)))

	written := make([]store.SnapshotEntry, 0, len(entries))
	rollback := func() {
		// Compensation must proceed even when the run's context is gone.
		rctx := context.WithoutCancel(ctx)
		for _, e := range written {
			if derr := m.docs.Delete(rctx, e.Collection, e.ID); derr != nil {
				m.log.Warn("rollback delete failed",
					zap.String("collection", e.Collection),
					zap.String("id", e.ID),
					zap.Error(derr))
			}
		}
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			rollback()
			return err
		}
		enc, err := fieldcrypt.EncryptFields(e.Doc, m.specs[e.Collection], key)
		if err != nil {
			rollback()
			return fmt.Errorf("migrate: encrypt %s/%s: %w", e.Collection, e.ID, err)
		}
		if err := m.docs.Put(ctx, e.Collection, e.ID, enc); err != nil {
			rollback()
			return fmt.Errorf("%w: %s/%s: %v", ErrMigrationWrite, e.Collection, e.ID, err)
		}
		// Read back to confirm the write is durable before counting it.
		if _, err := m.docs.Get(ctx, e.Collection, e.ID); err != nil {
			rollback()
			return fmt.Errorf("%w: verify %s/%s: %v", ErrMigrationWrite, e.Collection, e.ID, err)
		}
		written = append(written, e)
	}

	// Every record is durably remote; only now may the plaintext go.
	if err := m.snapshots.Clear(ctx); err != nil {
		return fmt.Errorf("migrate: clear snapshot: %w", err)
	}
	m.log.Info("migration finished", zap.Int("records", len(written)))
	return nil
}
