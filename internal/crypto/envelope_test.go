package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"
)

func randBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randBytes(t, KeySize)
	pt := randBytes(t, 4096)
	env, err := Encrypt(key, pt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if env.Version != CurrentVersion {
		t.Fatalf("version = %d, want %d", env.Version, CurrentVersion)
	}
	if len(env.IV) != IVSize {
		t.Fatalf("iv length = %d, want %d", len(env.IV), IVSize)
	}
	out, err := Decrypt(key, env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, out) {
		t.Fatal("plaintext mismatch")
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	key := randBytes(t, KeySize)
	env, err := Encrypt(key, nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	out, err := Decrypt(key, env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty plaintext, got %d bytes", len(out))
	}
}

func TestEncryptFreshIV(t *testing.T) {
	key := randBytes(t, KeySize)
	pt := []byte("same input")
	e1, err := Encrypt(key, pt)
	if err != nil {
		t.Fatalf("encrypt1: %v", err)
	}
	e2, err := Encrypt(key, pt)
	if err != nil {
		t.Fatalf("encrypt2: %v", err)
	}
	if bytes.Equal(e1.IV, e2.IV) {
		t.Fatal("expected distinct IVs for repeated encryption")
	}
	if bytes.Equal(e1.Ciphertext, e2.Ciphertext) {
		t.Fatal("expected distinct ciphertexts for repeated encryption")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := randBytes(t, KeySize)
	env, err := Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	other := randBytes(t, KeySize)
	if _, err := Decrypt(other, env); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := randBytes(t, KeySize)
	env, err := Encrypt(key, []byte("hello"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	for i := range env.Ciphertext {
		mut := env
		mut.Ciphertext = append([]byte(nil), env.Ciphertext...)
		mut.Ciphertext[i] ^= 0x01
		if _, err := Decrypt(key, mut); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("ciphertext bit flip at %d: expected ErrAuthentication, got %v", i, err)
		}
	}
}

func TestDecryptTamperedIV(t *testing.T) {
	key := randBytes(t, KeySize)
	env, err := Encrypt(key, []byte("hello"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	for i := range env.IV {
		mut := env
		mut.IV = append([]byte(nil), env.IV...)
		mut.IV[i] ^= 0x01
		if _, err := Decrypt(key, mut); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("iv bit flip at %d: expected ErrAuthentication, got %v", i, err)
		}
	}
}

func TestDecryptBadEnvelope(t *testing.T) {
	key := randBytes(t, KeySize)
	env, err := Encrypt(key, []byte("x"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	short := env
	short.IV = env.IV[:IVSize-1]
	if _, err := Decrypt(key, short); !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope for short IV, got %v", err)
	}
	unknown := env
	unknown.Version = 99
	if _, err := Decrypt(key, unknown); !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope for unknown version, got %v", err)
	}
}

func TestBadKeySize(t *testing.T) {
	if _, err := Encrypt([]byte("short"), []byte("pt")); !errors.Is(err, ErrBadKey) {
		t.Fatalf("expected ErrBadKey, got %v", err)
	}
}

func TestVersionDispatch(t *testing.T) {
	key := randBytes(t, KeySize)
	pt := []byte("cross-version data")
	env, err := encryptVersion(key, pt, VersionChaCha)
	if err != nil {
		t.Fatalf("encrypt chacha: %v", err)
	}
	out, err := Decrypt(key, env)
	if err != nil {
		t.Fatalf("decrypt chacha envelope: %v", err)
	}
	if !bytes.Equal(pt, out) {
		t.Fatal("chacha plaintext mismatch")
	}

	// The same bytes must not open under the wrong version.
	env.Version = VersionGCM
	if _, err := Decrypt(key, env); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication across versions, got %v", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	key := randBytes(t, KeySize)
	env, err := EncryptString(key, "grüß gott ✓")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	s, err := DecryptString(key, env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if s != "grüß gott ✓" {
		t.Fatalf("unexpected string %q", s)
	}
}

func TestParseValue(t *testing.T) {
	key := randBytes(t, KeySize)
	env, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Round-trip through JSON the way a stored document would.
	raw, err := json.Marshal(env.AsMap())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := ParseValue(decoded)
	if !ok {
		t.Fatal("expected envelope shape to be detected")
	}
	pt, err := Decrypt(key, got)
	if err != nil {
		t.Fatalf("decrypt parsed: %v", err)
	}
	if string(pt) != "payload" {
		t.Fatalf("unexpected plaintext %q", pt)
	}

	notEnvelopes := []any{
		"plain string",
		42.0,
		nil,
		map[string]any{"ct": "AAAA", "iv": "AAAA"},                             // missing v
		map[string]any{"ct": "AAAA", "iv": "!!!", "v": 1.0},                    // bad base64
		map[string]any{"ct": "AAAA", "iv": "AAAA", "v": 1.0},                   // short iv
		map[string]any{"ct": "AAAA", "iv": "AAAA", "v": "1"},                   // non-numeric v
		map[string]any{"ct": "AAAA", "iv": "AAAA", "v": 1.0, "extra": "field"}, // extra key
	}
	for i, v := range notEnvelopes {
		if _, ok := ParseValue(v); ok {
			t.Fatalf("case %d: plaintext value misdetected as envelope", i)
		}
	}
}
