// Package keyring owns the in-memory master key and its lifecycle. A
// Manager is constructed per user and passed down to callers explicitly;
// there is no process-global key holder.
package keyring

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"daybook-crypto/internal/crypto"
	"daybook-crypto/internal/keywrap"
	"daybook-crypto/internal/phrase"
	"daybook-crypto/internal/platform"
	"daybook-crypto/internal/store"
)

// Status is the key lifecycle state for one user on this device.
type Status int

const (
	// StatusMissing: no Protected Key Record exists; only generation is valid.
	StatusMissing Status = iota
	// StatusLocked: a record exists but no master key is held in memory.
	StatusLocked
	// StatusReady: the master key is held in memory and usable.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusLocked:
		return "locked"
	case StatusReady:
		return "ready"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var (
	ErrKeyExists         = errors.New("keyring: a protected key record already exists")
	ErrNoKey             = errors.New("keyring: no protected key record for this user")
	ErrNotReady          = errors.New("keyring: master key is not unlocked")
	ErrWrongPassphrase   = errors.New("keyring: wrong passphrase")
	ErrCorruptedKeyStore = errors.New("keyring: protected key record is corrupted")
)

// WrapChoice selects how the generated master key is protected at rest.
// Declining a passphrase is an explicit choice, not a missing argument.
type WrapChoice interface{ wrapMode() keywrap.Mode }

// Passphrase wraps the master key under an argon2id-derived key.
type Passphrase string

func (Passphrase) wrapMode() keywrap.Mode { return keywrap.ModePassphrase }

// DeviceBound wraps the master key under a locally generated device key.
type DeviceBound struct{}

func (DeviceBound) wrapMode() keywrap.Mode { return keywrap.ModeDevice }

// Manager holds the master key for one user. All lifecycle transitions are
// serialized under its mutex; ActiveKey is safe to call concurrently with
// encrypt/decrypt work.
type Manager struct {
	mu       sync.Mutex
	userID   string
	records  store.KeyRecordStore
	keychain platform.Keychain
	log      *zap.Logger

	master []byte // nil unless Ready
}

func NewManager(userID string, records store.KeyRecordStore, kc platform.Keychain, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		userID:   userID,
		records:  records,
		keychain: kc,
		log:      log.With(zap.String("user", userID)),
	}
}

// Status never fails: an unreadable record still reports Locked, so the UI
// can attempt an unlock and receive the precise error.
func (m *Manager) Status(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.master != nil {
		return StatusReady
	}
	if _, err := m.loadRecord(ctx); errors.Is(err, ErrNoKey) {
		return StatusMissing
	}
	return StatusLocked
}

// GenerateAndStore creates a fresh 256-bit master key, persists its
// Protected Key Record, transitions to Ready, and returns the one-time
// recovery phrase. The phrase is never persisted by this package.
func (m *Manager) GenerateAndStore(ctx context.Context, choice WrapChoice) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.master != nil {
		return "", ErrKeyExists
	}
	if _, err := m.loadRecord(ctx); err == nil {
		return "", ErrKeyExists
	} else if !errors.Is(err, ErrNoKey) {
		return "", err
	}

	master := make([]byte, crypto.KeySize)
	if _, err := rand.Read(master); err != nil {
		return "", fmt.Errorf("keyring: generate master key: %w", err)
	}

	var rec keywrap.Record
	var err error
	switch c := choice.(type) {
	case Passphrase:
		rec, err = keywrap.WrapWithPassphrase(master, string(c))
	case DeviceBound:
		var deviceKey []byte
		deviceKey, err = platform.LoadOrCreateDeviceKey(m.keychain, m.userID)
		if err == nil {
			rec, err = keywrap.WrapWithDeviceKey(master, deviceKey)
			crypto.Zero(deviceKey)
		}
	default:
		err = fmt.Errorf("keyring: unknown wrap choice %T", choice)
	}
	if err != nil {
		crypto.Zero(master)
		return "", err
	}

	words, err := phrase.FromEntropy(master)
	if err != nil {
		crypto.Zero(master)
		return "", err
	}
	if err := m.records.Put(ctx, m.userID, rec); err != nil {
		crypto.Zero(master)
		return "", fmt.Errorf("keyring: store key record: %w", err)
	}

	m.adopt(master)
	m.log.Info("master key generated", zap.String("mode", string(rec.Mode)))
	return words, nil
}

// UnlockWithPassphrase unwraps the stored record. A wrong passphrase is a
// retryable ErrWrongPassphrase; the state stays Locked. Attempt limiting is
// the caller's concern.
func (m *Manager) UnlockWithPassphrase(ctx context.Context, passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.master != nil {
		return nil
	}
	rec, err := m.loadRecord(ctx)
	if err != nil {
		return err
	}
	master, err := keywrap.UnwrapWithPassphrase(rec, passphrase)
	if errors.Is(err, crypto.ErrAuthentication) {
		return ErrWrongPassphrase
	}
	if err != nil {
		return err
	}
	m.adopt(master)
	m.log.Info("unlocked with passphrase")
	return nil
}

// UnlockWithDeviceKey unwraps a device-bound record using the keychain.
func (m *Manager) UnlockWithDeviceKey(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.master != nil {
		return nil
	}
	rec, err := m.loadRecord(ctx)
	if err != nil {
		return err
	}
	deviceKey, err := m.keychain.Load(m.userID)
	if err != nil {
		return fmt.Errorf("keyring: device key: %w", err)
	}
	defer crypto.Zero(deviceKey)
	master, err := keywrap.UnwrapWithDeviceKey(rec, deviceKey)
	if errors.Is(err, crypto.ErrAuthentication) {
		return fmt.Errorf("%w: device key does not open this record", ErrCorruptedKeyStore)
	}
	if err != nil {
		return err
	}
	m.adopt(master)
	m.log.Info("unlocked with device key")
	return nil
}

// UnlockWithRecoveryPhrase decodes the phrase back to the master key. The
// record's check value guards against a well-formed phrase for a different
// key; that case is also reported as an invalid phrase.
func (m *Manager) UnlockWithRecoveryPhrase(ctx context.Context, words string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.master != nil {
		return nil
	}
	rec, err := m.loadRecord(ctx)
	if err != nil {
		return err
	}
	master, err := phrase.ToEntropy(words)
	if err != nil {
		return err
	}
	if !keywrap.VerifyMasterKey(rec, master) {
		crypto.Zero(master)
		return fmt.Errorf("%w: phrase does not match this key", phrase.ErrInvalidPhrase)
	}
	m.adopt(master)
	m.log.Info("unlocked with recovery phrase")
	return nil
}

// Lock wipes the in-memory master key and returns to Locked.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discard()
	m.log.Info("locked")
}

// ActiveKey returns a copy of the master key for encrypt/decrypt work.
// Callers must not retain it beyond the operation at hand.
func (m *Manager) ActiveKey() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.master == nil {
		return nil, ErrNotReady
	}
	return append([]byte(nil), m.master...), nil
}

// RotatePassphrase re-wraps the master key under a new passphrase and a
// fresh salt. Data envelopes are untouched; only the Protected Key Record
// changes. Requires Ready and a passphrase-mode record.
func (m *Manager) RotatePassphrase(ctx context.Context, oldPassphrase, newPassphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.master == nil {
		return ErrNotReady
	}
	rec, err := m.loadRecord(ctx)
	if err != nil {
		return err
	}
	if _, err := keywrap.UnwrapWithPassphrase(rec, oldPassphrase); err != nil {
		if errors.Is(err, crypto.ErrAuthentication) {
			return ErrWrongPassphrase
		}
		return err
	}
	return m.rewrapLocked(ctx, newPassphrase)
}

// RewrapWithPassphrase replaces the stored record with a passphrase-mode
// wrap of the current master key. Intended for use right after a
// recovery-phrase unlock, when the old passphrase is gone for good.
func (m *Manager) RewrapWithPassphrase(ctx context.Context, passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.master == nil {
		return ErrNotReady
	}
	return m.rewrapLocked(ctx, passphrase)
}

func (m *Manager) rewrapLocked(ctx context.Context, passphrase string) error {
	rec, err := keywrap.WrapWithPassphrase(m.master, passphrase)
	if err != nil {
		return err
	}
	if err := m.records.Put(ctx, m.userID, rec); err != nil {
		return fmt.Errorf("keyring: store key record: %w", err)
	}
	m.log.Info("key record rewrapped")
	return nil
}

// loadRecord maps store errors to the lifecycle taxonomy: absence is
// ErrNoKey, unreadable data is ErrCorruptedKeyStore. The record is never
// deleted on error; phrase-based recovery stays possible.
func (m *Manager) loadRecord(ctx context.Context) (keywrap.Record, error) {
	rec, err := m.records.Get(ctx, m.userID)
	if errors.Is(err, store.ErrNotFound) {
		return rec, ErrNoKey
	}
	if errors.Is(err, store.ErrMalformedData) {
		return rec, fmt.Errorf("%w: %v", ErrCorruptedKeyStore, err)
	}
	if err != nil {
		return rec, fmt.Errorf("keyring: load key record: %w", err)
	}
	return rec, nil
}

func (m *Manager) adopt(master []byte) {
	_ = crypto.LockMemory(master) // best effort
	m.master = master
}

func (m *Manager) discard() {
	if m.master == nil {
		return
	}
	crypto.Zero(m.master)
	_ = crypto.UnlockMemory(m.master)
	m.master = nil
}
