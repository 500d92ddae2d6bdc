package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize = 32
	IVSize  = 12 // 96-bit nonce, shared by both AEAD versions

	// VersionGCM is AES-256-GCM, the current format.
	VersionGCM = 1
	// VersionChaCha is ChaCha20-Poly1305, kept for data written by builds
	// that used it. Decrypt dispatches on the envelope version so an
	// algorithm change never strands old ciphertext.
	VersionChaCha = 2

	CurrentVersion = VersionGCM
)

var (
	ErrAuthentication = errors.New("crypto: message authentication failed")
	ErrBadKey         = errors.New("crypto: key must be 32 bytes")
	ErrBadEnvelope    = errors.New("crypto: malformed envelope")
)

// Envelope is the authenticated-encryption output bundle. The AEAD tag is
// carried at the tail of Ciphertext. Envelopes are created by Encrypt,
// consumed by Decrypt, and never mutated.
type Envelope struct {
	Ciphertext []byte `json:"ct"`
	IV         []byte `json:"iv"`
	Version    int    `json:"v"`
}

// Encrypt seals plaintext under a 256-bit key with a fresh random 96-bit IV.
// Two calls with identical inputs produce different IVs and ciphertexts.
func Encrypt(key, plaintext []byte) (Envelope, error) {
	return encryptVersion(key, plaintext, CurrentVersion)
}

func encryptVersion(key, plaintext []byte, version int) (Envelope, error) {
	aead, err := newAEAD(key, version)
	if err != nil {
		return Envelope{}, err
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, err
	}
	ct := aead.Seal(nil, iv, plaintext, nil)
	return Envelope{Ciphertext: ct, IV: iv, Version: version}, nil
}

// Decrypt opens an envelope, failing with ErrAuthentication on any tag
// mismatch (wrong key, corruption, tampering). There is no partial output.
func Decrypt(key []byte, env Envelope) ([]byte, error) {
	if len(env.IV) != IVSize {
		return nil, ErrBadEnvelope
	}
	aead, err := newAEAD(key, env.Version)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return pt, nil
}

// EncryptString seals a UTF-8 string.
func EncryptString(key []byte, s string) (Envelope, error) {
	return Encrypt(key, []byte(s))
}

// DecryptString opens an envelope holding a UTF-8 string.
func DecryptString(key []byte, env Envelope) (string, error) {
	pt, err := Decrypt(key, env)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func newAEAD(key []byte, version int) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrBadKey
	}
	switch version {
	case VersionGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case VersionChaCha:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: version %d", ErrBadEnvelope, version)
	}
}

// AsMap renders the envelope in its document form: {ct, iv, v} with
// base64-encoded byte fields. This is the shape stored on encrypted fields.
func (e Envelope) AsMap() map[string]any {
	return map[string]any{
		"ct": base64.StdEncoding.EncodeToString(e.Ciphertext),
		"iv": base64.StdEncoding.EncodeToString(e.IV),
		"v":  e.Version,
	}
}

// ParseValue reports whether a decoded document value has the envelope
// shape, and returns the envelope if so. Anything else (legacy plaintext,
// partial maps, wrong-length IVs) is not an envelope and callers must pass
// it through untouched.
func ParseValue(v any) (Envelope, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 3 {
		return Envelope{}, false
	}
	ctStr, ok1 := m["ct"].(string)
	ivStr, ok2 := m["iv"].(string)
	if !ok1 || !ok2 {
		return Envelope{}, false
	}
	var version int
	switch n := m["v"].(type) {
	case int:
		version = n
	case int32:
		version = int(n)
	case int64:
		version = int(n)
	case float64:
		version = int(n)
	default:
		return Envelope{}, false
	}
	ct, err := base64.StdEncoding.DecodeString(ctStr)
	if err != nil {
		return Envelope{}, false
	}
	iv, err := base64.StdEncoding.DecodeString(ivStr)
	if err != nil || len(iv) != IVSize {
		return Envelope{}, false
	}
	return Envelope{Ciphertext: ct, IV: iv, Version: version}, true
}
