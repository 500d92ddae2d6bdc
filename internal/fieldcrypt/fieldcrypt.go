// Package fieldcrypt applies envelope encryption to declared fields of
// structured documents. Undeclared fields pass through untouched, and
// decryption tolerates plaintext values written before encryption was
// enabled.
package fieldcrypt

import (
	"encoding/json"
	"errors"
	"fmt"

	"daybook-crypto/internal/crypto"
)

// Encoding selects how a field value is serialized before encryption.
type Encoding int

const (
	// EncodingString encrypts the value as its UTF-8 bytes.
	EncodingString Encoding = iota
	// EncodingJSON marshals the value to JSON before encryption and
	// parses it back after decryption.
	EncodingJSON
)

var encodingNames = map[Encoding]string{
	EncodingString: "string",
	EncodingJSON:   "json",
}

func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

func (e Encoding) MarshalJSON() ([]byte, error) {
	s, ok := encodingNames[e]
	if !ok {
		return nil, fmt.Errorf("fieldcrypt: unknown encoding %d", int(e))
	}
	return json.Marshal(s)
}

func (e *Encoding) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "string":
		*e = EncodingString
	case "json":
		*e = EncodingJSON
	default:
		return fmt.Errorf("fieldcrypt: unknown encoding %q", s)
	}
	return nil
}

// FieldSpec declares one sensitive field of a document type.
type FieldSpec struct {
	Name     string   `json:"field"`
	Encoding Encoding `json:"encoding"`
}

var errNotString = errors.New("fieldcrypt: string-encoded field is not a string")

// EncryptFields returns a copy of doc with every declared, present,
// non-nil field replaced by an encrypted envelope. All other fields are
// copied through unchanged; doc itself is never mutated.
func EncryptFields(doc map[string]any, specs []FieldSpec, key []byte) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, spec := range specs {
		v, ok := doc[spec.Name]
		if !ok || v == nil {
			// Absent data gets no envelope.
			continue
		}
		var pt []byte
		switch spec.Encoding {
		case EncodingString:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: field %q", errNotString, spec.Name)
			}
			pt = []byte(s)
		case EncodingJSON:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("fieldcrypt: marshal field %q: %w", spec.Name, err)
			}
			pt = b
		default:
			return nil, fmt.Errorf("fieldcrypt: field %q: unknown encoding %d", spec.Name, int(spec.Encoding))
		}
		env, err := crypto.Encrypt(key, pt)
		if err != nil {
			return nil, fmt.Errorf("fieldcrypt: encrypt field %q: %w", spec.Name, err)
		}
		out[spec.Name] = env.AsMap()
	}
	return out, nil
}

// DecryptFields is the inverse of EncryptFields. Declared fields whose
// values have the envelope shape are decrypted; declared fields holding
// plaintext (documents written before encryption was enabled) pass through
// unchanged. A failed decrypt surfaces crypto.ErrAuthentication; the
// field never degrades to garbage output.
func DecryptFields(doc map[string]any, specs []FieldSpec, key []byte) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, spec := range specs {
		v, ok := doc[spec.Name]
		if !ok || v == nil {
			continue
		}
		env, ok := crypto.ParseValue(v)
		if !ok {
			continue
		}
		pt, err := crypto.Decrypt(key, env)
		if err != nil {
			return nil, fmt.Errorf("fieldcrypt: decrypt field %q: %w", spec.Name, err)
		}
		switch spec.Encoding {
		case EncodingString:
			out[spec.Name] = string(pt)
		case EncodingJSON:
			var decoded any
			if err := json.Unmarshal(pt, &decoded); err != nil {
				return nil, fmt.Errorf("fieldcrypt: parse field %q: %w", spec.Name, err)
			}
			out[spec.Name] = decoded
		default:
			return nil, fmt.Errorf("fieldcrypt: field %q: unknown encoding %d", spec.Name, int(spec.Encoding))
		}
	}
	return out, nil
}
