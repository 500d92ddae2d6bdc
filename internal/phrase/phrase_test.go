package phrase

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		entropy := make([]byte, EntropySize)
		if _, err := rand.Read(entropy); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}
		p, err := FromEntropy(entropy)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if n := len(strings.Fields(p)); n != WordCount {
			t.Fatalf("word count = %d, want %d", n, WordCount)
		}
		got, err := ToEntropy(p)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(entropy, got) {
			t.Fatal("entropy mismatch after round trip")
		}
	}
}

func TestKnownVector(t *testing.T) {
	// Standard BIP39 vector for 32 zero bytes.
	entropy := make([]byte, EntropySize)
	want := strings.TrimSpace(strings.Repeat("abandon ", 23)) + " art"
	got, err := FromEntropy(entropy)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != want {
		t.Fatalf("phrase = %q, want %q", got, want)
	}
}

func TestNormalizedInput(t *testing.T) {
	entropy := make([]byte, EntropySize)
	if _, err := rand.Read(entropy); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	p, err := FromEntropy(entropy)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	messy := "  " + strings.ToUpper(strings.ReplaceAll(p, " ", "\t \n")) + "  "
	got, err := ToEntropy(messy)
	if err != nil {
		t.Fatalf("decode messy input: %v", err)
	}
	if !bytes.Equal(entropy, got) {
		t.Fatal("entropy mismatch for normalized input")
	}
}

func TestRejectsBadPhrases(t *testing.T) {
	// Fixed entropy keeps every mutation deterministic.
	p, err := FromEntropy(make([]byte, EntropySize))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	words := strings.Fields(p)

	swapped := append([]string(nil), words...)
	swapped[0] = "zoo"
	cases := map[string]string{
		"changed word": strings.Join(swapped, " "),
		"missing word": strings.Join(words[:WordCount-1], " "),
		"extra word":   p + " abandon",
		"unknown word": strings.Join(append(append([]string(nil), words[:WordCount-1]...), "notaword"), " "),
		"empty":        "",
		"garbage":      "definitely not a phrase",
	}
	for name, input := range cases {
		if _, err := ToEntropy(input); !errors.Is(err, ErrInvalidPhrase) {
			t.Errorf("%s: expected ErrInvalidPhrase, got %v", name, err)
		}
	}
}

func TestRejectsBadEntropySize(t *testing.T) {
	if _, err := FromEntropy(make([]byte, 16)); err == nil {
		t.Fatal("expected error for 128-bit entropy")
	}
}
