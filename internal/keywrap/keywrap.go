// Package keywrap protects the master key at rest. A wrapping key is derived
// from a user passphrase with argon2id, or taken from a locally generated
// device key when the user declines a passphrase. Either way the stored
// record is an AEAD envelope; the master key is never written in the clear.
package keywrap

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	"daybook-crypto/internal/crypto"
)

// Mode records which secret wraps the master key.
type Mode string

const (
	ModePassphrase Mode = "passphrase"
	ModeDevice     Mode = "device"
)

const SaltSize = 32

// checkSentinel is encrypted under the master key at setup. Decrypting it
// proves a candidate key (e.g. one recovered from a phrase) matches this
// record without exposing the key itself.
var checkSentinel = []byte("daybook/key-check/v1")

var ErrWrongMode = errors.New("keywrap: record wrapped under a different mode")

// Params are the argon2id work factors. They are persisted per record so
// they can be raised later without breaking existing records.
type Params struct {
	M uint32 `json:"m"` // KiB
	T uint32 `json:"t"`
	P uint8  `json:"p"`
}

// DefaultParams is tuned for interactive unlock on end-user devices.
func DefaultParams() Params {
	return Params{M: 64 * 1024, T: 3, P: 4}
}

// Record is the Protected Key Record persisted in the local key store.
// It is opaque without the wrapping secret.
type Record struct {
	WrappedKey crypto.Envelope `json:"wrappedKey"`
	Check      crypto.Envelope `json:"check"`
	Salt       []byte          `json:"salt"`
	KDF        Params          `json:"kdf"`
	Mode       Mode            `json:"mode"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// DeriveWrappingKey stretches a passphrase into a 256-bit wrapping key.
func DeriveWrappingKey(passphrase string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.T, p.M, p.P, crypto.KeySize)
}

// NewSalt draws a fresh random salt. Salts are never reused across records
// or passphrase changes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keywrap: salt: %w", err)
	}
	return salt, nil
}

// WrapWithPassphrase builds a passphrase-mode record for master.
func WrapWithPassphrase(master []byte, passphrase string) (Record, error) {
	salt, err := NewSalt()
	if err != nil {
		return Record{}, err
	}
	p := DefaultParams()
	wk := DeriveWrappingKey(passphrase, salt, p)
	defer crypto.Zero(wk)
	return newRecord(master, wk, salt, p, ModePassphrase)
}

// WrapWithDeviceKey builds a device-mode record for master. The device key
// lives in the platform keychain; the salt and KDF fields are unused but a
// salt is still stored so the record shape stays uniform.
func WrapWithDeviceKey(master, deviceKey []byte) (Record, error) {
	salt, err := NewSalt()
	if err != nil {
		return Record{}, err
	}
	return newRecord(master, deviceKey, salt, Params{}, ModeDevice)
}

func newRecord(master, wrappingKey, salt []byte, p Params, mode Mode) (Record, error) {
	wrapped, err := crypto.Encrypt(wrappingKey, master)
	if err != nil {
		return Record{}, fmt.Errorf("keywrap: wrap: %w", err)
	}
	check, err := crypto.Encrypt(master, checkSentinel)
	if err != nil {
		return Record{}, fmt.Errorf("keywrap: check value: %w", err)
	}
	return Record{
		WrappedKey: wrapped,
		Check:      check,
		Salt:       salt,
		KDF:        p,
		Mode:       mode,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// UnwrapWithPassphrase recovers the master key from a passphrase-mode
// record. A wrong passphrase surfaces as crypto.ErrAuthentication.
func UnwrapWithPassphrase(rec Record, passphrase string) ([]byte, error) {
	if rec.Mode != ModePassphrase {
		return nil, ErrWrongMode
	}
	wk := DeriveWrappingKey(passphrase, rec.Salt, rec.KDF)
	defer crypto.Zero(wk)
	return crypto.Decrypt(wk, rec.WrappedKey)
}

// UnwrapWithDeviceKey recovers the master key from a device-mode record.
func UnwrapWithDeviceKey(rec Record, deviceKey []byte) ([]byte, error) {
	if rec.Mode != ModeDevice {
		return nil, ErrWrongMode
	}
	return crypto.Decrypt(deviceKey, rec.WrappedKey)
}

// VerifyMasterKey reports whether candidate is the master key this record
// was created for, by opening the record's check value.
func VerifyMasterKey(rec Record, candidate []byte) bool {
	pt, err := crypto.Decrypt(candidate, rec.Check)
	if err != nil {
		return false
	}
	defer crypto.Zero(pt)
	return string(pt) == string(checkSentinel)
}
