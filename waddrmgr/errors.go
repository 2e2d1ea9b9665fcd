// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import "errors"

var (
	// ErrUnknownPurpose is returned when a BIP43 purpose does not map to a
	// supported address scheme.
	ErrUnknownPurpose = errors.New("unknown derivation purpose")

	// ErrUnknownScheme is returned for an AddressScheme value outside the
	// defined set.
	ErrUnknownScheme = errors.New("unknown address scheme")

	// ErrUnsupportedAddressFormat is returned when an address or script
	// can not be mapped to a supported output type.
	ErrUnsupportedAddressFormat = errors.New("unsupported address format")

	// ErrInvalidPathShape is returned when a derivation path does not have
	// the purpose'/coin'/account'/branch/index layout.
	ErrInvalidPathShape = errors.New("invalid derivation path shape")

	// ErrWrongNetwork is returned when an address or key belongs to a
	// different network than the one requested.
	ErrWrongNetwork = errors.New("address is for another network")

	// ErrInvalidPubKey is returned when a public key is not a valid
	// compressed secp256k1 point.
	ErrInvalidPubKey = errors.New("invalid compressed public key")

	// ErrTooManyAddresses is returned when a range of child indexes would
	// overflow.
	ErrTooManyAddresses = errors.New("too many addresses")

	// ErrInvalidBranch is returned for a branch other than ExternalBranch
	// and InternalBranch.
	ErrInvalidBranch = errors.New("invalid branch")
)
