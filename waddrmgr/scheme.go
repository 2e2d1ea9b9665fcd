// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"
)

// AddressScheme is the script type an account derives addresses for. Each
// scheme owns one BIP43 purpose.
type AddressScheme uint8

const (
	// Legacy is BIP44, pay-to-pubkey-hash.
	Legacy AddressScheme = iota

	// NestedSegwit is BIP49, pay-to-witness-pubkey-hash nested in
	// pay-to-script-hash.
	NestedSegwit

	// NativeSegwit is BIP84, bech32 pay-to-witness-pubkey-hash.
	NativeSegwit
)

const (
	// PurposeBIP44 is the purpose of legacy accounts.
	PurposeBIP44 uint32 = 44

	// PurposeBIP49 is the purpose of nested segwit accounts.
	PurposeBIP49 uint32 = 49

	// PurposeBIP84 is the purpose of native segwit accounts.
	PurposeBIP84 uint32 = 84
)

// Schemes returns every supported scheme.
func Schemes() []AddressScheme {
	return []AddressScheme{Legacy, NestedSegwit, NativeSegwit}
}

// String returns a human readable name of the scheme.
func (s AddressScheme) String() string {
	switch s {
	case Legacy:
		return "legacy"
	case NestedSegwit:
		return "p2sh-segwit"
	case NativeSegwit:
		return "native-segwit"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// Purpose returns the BIP43 purpose of the scheme.
func (s AddressScheme) Purpose() (uint32, error) {
	switch s {
	case Legacy:
		return PurposeBIP44, nil
	case NestedSegwit:
		return PurposeBIP49, nil
	case NativeSegwit:
		return PurposeBIP84, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownScheme, uint8(s))
	}
}

// SchemeFromPurpose maps a BIP43 purpose back to its scheme. The purpose may
// carry the hardened bit. Unsupported purposes, including taproot's 86, are
// an error; a new purpose gets a new scheme, never a default.
func SchemeFromPurpose(purpose uint32) (AddressScheme, error) {
	switch purpose &^ hardenedKeyStart {
	case PurposeBIP44:
		return Legacy, nil
	case PurposeBIP49:
		return NestedSegwit, nil
	case PurposeBIP84:
		return NativeSegwit, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownPurpose,
			purpose&^hardenedKeyStart)
	}
}

// ParseScheme returns the scheme with the given name as produced by String.
func ParseScheme(name string) (AddressScheme, error) {
	for _, s := range Schemes() {
		if s.String() == name {
			return s, nil
		}
	}

	switch name {
	case "p2pkh", "bip44":
		return Legacy, nil
	case "p2sh-p2wpkh", "bip49":
		return NestedSegwit, nil
	case "p2wpkh", "bip84":
		return NativeSegwit, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}
