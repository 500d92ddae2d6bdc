// Package phrase maps 256-bit key entropy to a 24-word recovery phrase and
// back, using the BIP39 english wordlist and checksum.
package phrase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const (
	// WordCount is fixed: 24 words encode 256 bits of entropy plus an
	// 8-bit checksum. Shorter or longer phrases are rejected outright.
	WordCount   = 24
	EntropySize = 32
)

var ErrInvalidPhrase = errors.New("phrase: invalid recovery phrase")

// FromEntropy encodes raw master-key entropy as a recovery phrase.
// The phrase is shown to the user once and never persisted.
func FromEntropy(entropy []byte) (string, error) {
	if len(entropy) != EntropySize {
		return "", fmt.Errorf("phrase: entropy must be %d bytes, got %d", EntropySize, len(entropy))
	}
	m, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("phrase: encode: %w", err)
	}
	return m, nil
}

// ToEntropy decodes a recovery phrase back to key entropy. Input is
// case-insensitive and whitespace-normalized; a wrong word count, a word
// outside the wordlist, or a checksum mismatch yields ErrInvalidPhrase.
func ToEntropy(raw string) ([]byte, error) {
	norm := Normalize(raw)
	if len(strings.Fields(norm)) != WordCount {
		return nil, fmt.Errorf("%w: expected %d words", ErrInvalidPhrase, WordCount)
	}
	entropy, err := bip39.EntropyFromMnemonic(norm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhrase, err)
	}
	return entropy, nil
}

// Normalize lowercases a phrase and collapses all whitespace runs to single
// spaces. It does not alter word count.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
