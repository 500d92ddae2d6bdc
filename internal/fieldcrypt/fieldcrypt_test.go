package fieldcrypt

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"daybook-crypto/internal/crypto"
)

var journalSpecs = []FieldSpec{
	{Name: "title", Encoding: EncodingString},
	{Name: "body", Encoding: EncodingString},
	{Name: "tags", Encoding: EncodingJSON},
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	doc := map[string]any{
		"title":     "dentist",
		"body":      "routine checkup",
		"tags":      []any{"health", "calendar"},
		"createdAt": "2024-05-01T10:00:00Z", // undeclared, stays plaintext
		"pinned":    true,                   // undeclared
	}

	enc, err := EncryptFields(doc, journalSpecs, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	for _, f := range []string{"title", "body", "tags"} {
		if _, ok := crypto.ParseValue(enc[f]); !ok {
			t.Fatalf("field %q not replaced by an envelope: %v", f, enc[f])
		}
	}
	if enc["createdAt"] != doc["createdAt"] || enc["pinned"] != doc["pinned"] {
		t.Fatal("undeclared fields were not passed through")
	}

	dec, err := DecryptFields(enc, journalSpecs, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !reflect.DeepEqual(doc, dec) {
		t.Fatalf("round trip mismatch:\n got %v\nwant %v", dec, doc)
	}
}

func TestNilAndAbsentFields(t *testing.T) {
	key := testKey(t)
	doc := map[string]any{
		"title": nil, // declared but nil: no envelope
		// body absent entirely
		"tags": []any{"a"},
	}
	enc, err := EncryptFields(doc, journalSpecs, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc["title"] != nil {
		t.Fatalf("nil field gained a value: %v", enc["title"])
	}
	if _, ok := enc["body"]; ok {
		t.Fatal("absent field appeared in output")
	}
	dec, err := DecryptFields(enc, journalSpecs, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !reflect.DeepEqual(doc, dec) {
		t.Fatalf("round trip mismatch: %v", dec)
	}
}

func TestLegacyPlaintextPassthrough(t *testing.T) {
	key := testKey(t)
	// A document written before encryption was enabled.
	doc := map[string]any{
		"title": "old plaintext entry",
		"body":  "never encrypted",
		"tags":  []any{"legacy"},
	}
	dec, err := DecryptFields(doc, journalSpecs, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !reflect.DeepEqual(doc, dec) {
		t.Fatalf("plaintext document altered: %v", dec)
	}
}

func TestMixedEncryptedAndPlaintext(t *testing.T) {
	key := testKey(t)
	env, err := crypto.EncryptString(key, "encrypted half")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	doc := map[string]any{
		"title": "still plaintext",
		"body":  env.AsMap(),
	}
	dec, err := DecryptFields(doc, journalSpecs, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if dec["title"] != "still plaintext" || dec["body"] != "encrypted half" {
		t.Fatalf("unexpected result: %v", dec)
	}
}

func TestWrongKeyBlocksField(t *testing.T) {
	key := testKey(t)
	doc := map[string]any{"title": "secret"}
	enc, err := EncryptFields(doc, journalSpecs, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptFields(enc, journalSpecs, testKey(t)); !errors.Is(err, crypto.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestInputNotMutated(t *testing.T) {
	key := testKey(t)
	doc := map[string]any{"title": "original", "other": 1}
	if _, err := EncryptFields(doc, journalSpecs, key); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if doc["title"] != "original" {
		t.Fatal("EncryptFields mutated its input")
	}
}

func TestStringFieldTypeMismatch(t *testing.T) {
	key := testKey(t)
	doc := map[string]any{"title": 123}
	if _, err := EncryptFields(doc, journalSpecs, key); err == nil {
		t.Fatal("expected error for non-string value in string-encoded field")
	}
}

func TestJSONFieldStructuredValue(t *testing.T) {
	key := testKey(t)
	specs := []FieldSpec{{Name: "profile", Encoding: EncodingJSON}}
	doc := map[string]any{
		"profile": map[string]any{
			"name":  "Ada",
			"age":   36.0,
			"roles": []any{"friend", "colleague"},
		},
	}
	enc, err := EncryptFields(doc, specs, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	dec, err := DecryptFields(enc, specs, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !reflect.DeepEqual(doc, dec) {
		t.Fatalf("structured value mismatch: %v", dec)
	}
}

func TestEncodingJSONTags(t *testing.T) {
	raw := `[{"field":"body","encoding":"string"},{"field":"tags","encoding":"json"}]`
	var specs []FieldSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []FieldSpec{
		{Name: "body", Encoding: EncodingString},
		{Name: "tags", Encoding: EncodingJSON},
	}
	if !reflect.DeepEqual(specs, want) {
		t.Fatalf("specs = %+v", specs)
	}
	if err := json.Unmarshal([]byte(`[{"field":"x","encoding":"base85"}]`), &specs); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
	out, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("marshal = %s, want %s", out, raw)
	}
}
