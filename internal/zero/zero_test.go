// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package zero

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

// TestBytes checks that every byte of the slice is cleared.
func TestBytes(t *testing.T) {
	t.Parallel()

	b := bytes.Repeat([]byte{0xa5}, 97)
	Bytes(b)

	require.Equal(t, make([]byte, 97), b)
}

// TestBytea checks the fixed size array variants.
func TestBytea(t *testing.T) {
	t.Parallel()

	var (
		a32 [32]byte
		a64 [64]byte
	)
	copy(a32[:], bytes.Repeat([]byte{1}, 32))
	copy(a64[:], bytes.Repeat([]byte{1}, 64))

	Bytea32(&a32)
	Bytea64(&a64)

	require.Equal(t, [32]byte{}, a32)
	require.Equal(t, [64]byte{}, a64)
}

// TestPrivateKey checks that a private key scalar is cleared and that a nil
// key is tolerated.
func TestPrivateKey(t *testing.T) {
	t.Parallel()

	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	PrivateKey(key)
	require.True(t, key.Key.IsZero())

	require.NotPanics(t, func() { PrivateKey(nil) })
}
