// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash160Size is the length of a RIPEMD160(SHA256(x)) digest.
const Hash160Size = 20

// Hash160 returns RIPEMD160(SHA256(b)).
func Hash160(b []byte) []byte {
	return btcutil.Hash160(b)
}

// SHA256 returns the single SHA256 digest of b.
func SHA256(b []byte) []byte {
	return chainhash.HashB(b)
}

// DoubleSHA256 returns SHA256(SHA256(b)).
func DoubleSHA256(b []byte) []byte {
	return chainhash.DoubleHashB(b)
}

// DoubleSHA256H returns SHA256(SHA256(b)) as a chainhash.Hash.
func DoubleSHA256H(b []byte) chainhash.Hash {
	return chainhash.DoubleHashH(b)
}
