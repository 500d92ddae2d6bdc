package platform

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Keychain holds the locally generated device key that wraps the master key
// when the user declines a passphrase. The file implementation is the
// portable default; OS keystore variants can be added via build tags.
type Keychain interface {
	Store(keyID string, key []byte) error
	Load(keyID string) ([]byte, error)
}

var ErrKeychainMiss = errors.New("platform: key not found in keychain")

type fileKeychain struct{ dir string }

// NewFileKeychain keeps keys as 0600 files under a 0700 directory.
func NewFileKeychain(dir string) Keychain {
	_ = os.MkdirAll(dir, 0700)
	return fileKeychain{dir: dir}
}

func (f fileKeychain) path(keyID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, keyID)
	return filepath.Join(f.dir, safe+".dk")
}

func (f fileKeychain) Store(keyID string, key []byte) error {
	enc := base64.StdEncoding.EncodeToString(key)
	return os.WriteFile(f.path(keyID), []byte(enc), 0600)
}

func (f fileKeychain) Load(keyID string) ([]byte, error) {
	b, err := os.ReadFile(f.path(keyID))
	if os.IsNotExist(err) {
		return nil, ErrKeychainMiss
	}
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("platform: decode device key: %w", err)
	}
	return key, nil
}

// LoadOrCreateDeviceKey returns the device key for keyID, generating and
// storing a fresh 32-byte key on first use.
func LoadOrCreateDeviceKey(kc Keychain, keyID string) ([]byte, error) {
	key, err := kc.Load(keyID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrKeychainMiss) {
		return nil, err
	}
	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := kc.Store(keyID, key); err != nil {
		return nil, err
	}
	return key, nil
}
