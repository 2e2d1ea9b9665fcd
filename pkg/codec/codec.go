// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package codec provides the stateless byte-level primitives used across the
// signer: variable length integers, fixed width integer encoding, the bitcoin
// hash functions, Base58Check and the BIP173/BIP350 segwit address encoding.
//
// Every function in this package is pure and safe for concurrent use.
package codec

import "errors"

var (
	// ErrMalformedSerialization is returned when an encoded value can not be
	// decoded, for example because of a bad base58 or bech32 checksum, a
	// wrong length or invalid characters.
	ErrMalformedSerialization = errors.New("malformed serialization")

	// ErrChecksumMismatch is returned when a Base58Check checksum does not
	// match its payload. It always wraps ErrMalformedSerialization.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrHRPMismatch is returned when a bech32 string carries a different
	// human readable part than the one expected. It always wraps
	// ErrMalformedSerialization.
	ErrHRPMismatch = errors.New("bech32 human readable part mismatch")

	// ErrInvalidWitnessProgram is returned when a witness version or
	// program violates the BIP141 length rules.
	ErrInvalidWitnessProgram = errors.New("invalid witness program")
)
