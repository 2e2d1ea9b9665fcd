// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mnemonic implements BIP39 mnemonic sentences: generation from
// secure entropy, checksum validation and PBKDF2 seed stretching.
package mnemonic

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"github.com/yyforyongyu/btcsigner/internal/zero"
	"github.com/yyforyongyu/btcsigner/pkg/codec"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// SeedSize is the length of a seed stretched from a mnemonic.
	SeedSize = 64

	// pbkdf2Iterations is the BIP39 PBKDF2-HMAC-SHA512 iteration count.
	pbkdf2Iterations = 2048

	// saltPrefix is prepended to the passphrase to form the PBKDF2 salt.
	saltPrefix = "mnemonic"

	// bitsPerWord is the number of entropy+checksum bits each word encodes.
	bitsPerWord = 11
)

var (
	// ErrInvalidWordCount is returned when a mnemonic with a word count
	// other than 12 or 24 is requested or supplied.
	ErrInvalidWordCount = errors.New("invalid word count")

	// ErrInvalidMnemonic is returned when a seed is requested for a
	// mnemonic that does not validate.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrUnknownWord is returned when a word is not part of the BIP39
	// English wordlist.
	ErrUnknownWord = errors.New("word not in wordlist")

	// ErrChecksumMismatch is returned when the checksum bits carried by the
	// final word do not match the entropy.
	ErrChecksumMismatch = errors.New("mnemonic checksum mismatch")
)

// Mnemonic is a normalized BIP39 sentence: lower case words separated by a
// single space.
type Mnemonic string

// Words returns the words of the mnemonic.
func (m Mnemonic) Words() []string {
	return strings.Fields(string(m))
}

// Seed is the 64-byte value stretched from a mnemonic and passphrase. It
// should be wiped with Zero as soon as the keys derived from it are no longer
// needed.
type Seed [SeedSize]byte

// Bytes returns the seed as a slice sharing the seed's memory.
func (s *Seed) Bytes() []byte {
	return s[:]
}

// Zero wipes the seed.
func (s *Seed) Zero() {
	zero.Bytea64((*[64]byte)(s))
}

// entropyBits maps the supported word counts to their entropy size.
func entropyBits(words int) (int, error) {
	switch words {
	case 12:
		return 128, nil
	case 24:
		return 256, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidWordCount, words)
	}
}

// normalize applies the BIP39 NFKD normalization and collapses whitespace.
// Words are lower cased since the wordlist only contains lower case words.
func normalize(s string) string {
	s = norm.NFKD.String(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Generate creates a new mnemonic of the given word count from the system's
// secure random source. Only 12 and 24 words are supported.
func Generate(wordCount int) (Mnemonic, error) {
	bits, err := entropyBits(wordCount)
	if err != nil {
		return "", err
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("unable to read entropy: %w", err)
	}
	defer zero.Bytes(entropy)

	return FromEntropy(entropy)
}

// FromEntropy encodes 16 or 32 bytes of entropy as a mnemonic.
func FromEntropy(entropy []byte) (Mnemonic, error) {
	switch len(entropy) * 8 {
	case 128, 256:
	default:
		return "", fmt.Errorf("%w: %d bits of entropy",
			ErrInvalidWordCount, len(entropy)*8)
	}

	sentence, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", err
	}

	return Mnemonic(sentence), nil
}

// Decode parses a mnemonic and returns its entropy after verifying the word
// count, every word and the checksum. Errors identify the offending word by
// position only so that mnemonic words never end up in logs.
func Decode(sentence string) ([]byte, error) {
	words := strings.Fields(normalize(sentence))

	entBits, err := entropyBits(len(words))
	if err != nil {
		return nil, err
	}
	csBits := entBits / 32

	// Pack the 11-bit word indexes into a big-endian bit string of
	// entropy followed by checksum.
	packed := make([]byte, (len(words)*bitsPerWord+7)/8)
	defer zero.Bytes(packed)

	for i, word := range words {
		idx, ok := bip39.GetWordIndex(word)
		if !ok {
			return nil, fmt.Errorf("%w: word %d", ErrUnknownWord,
				i+1)
		}

		for b := 0; b < bitsPerWord; b++ {
			if idx&(1<<(bitsPerWord-1-b)) == 0 {
				continue
			}

			bit := i*bitsPerWord + b
			packed[bit/8] |= 0x80 >> (bit % 8)
		}
	}

	entropy := make([]byte, entBits/8)
	copy(entropy, packed)

	checksum := packed[entBits/8] >> (8 - csBits)
	expected := codec.SHA256(entropy)[0] >> (8 - csBits)
	if checksum != expected {
		zero.Bytes(entropy)
		return nil, ErrChecksumMismatch
	}

	return entropy, nil
}

// Validate reports whether the sentence is a valid 12 or 24 word BIP39
// mnemonic. It never fails; any structural problem yields false.
func Validate(sentence string) bool {
	entropy, err := Decode(sentence)
	if err != nil {
		return false
	}
	zero.Bytes(entropy)

	return true
}

// Parse validates a sentence and returns it in normalized form.
func Parse(sentence string) (Mnemonic, error) {
	if !Validate(sentence) {
		return "", ErrInvalidMnemonic
	}

	return Mnemonic(normalize(sentence)), nil
}

// ToSeed stretches a mnemonic and optional passphrase into a 64-byte seed
// using PBKDF2-HMAC-SHA512 with 2048 iterations and the salt
// "mnemonic"+passphrase. The result is deterministic.
func ToSeed(sentence, passphrase string) (*Seed, error) {
	entropy, err := Decode(sentence)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMnemonic, err)
	}
	zero.Bytes(entropy)

	password := []byte(normalize(sentence))
	defer zero.Bytes(password)

	salt := []byte(saltPrefix + norm.NFKD.String(passphrase))
	defer zero.Bytes(salt)

	key := pbkdf2.Key(password, salt, pbkdf2Iterations, SeedSize,
		sha512.New)
	defer zero.Bytes(key)

	var seed Seed
	copy(seed[:], key)

	return &seed, nil
}
