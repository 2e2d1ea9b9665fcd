// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yyforyongyu/btcsigner/hdkey"
	"github.com/yyforyongyu/btcsigner/mnemonic"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
)

// testMnemonic is the BIP39 sentence of 128 zero bits of entropy.
const testMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

// testMaster returns the master node of testMnemonic for net.
func testMaster(t *testing.T, net netparams.Network) *hdkey.ExtendedKey {
	t.Helper()

	seed, err := mnemonic.ToSeed(testMnemonic, "")
	require.NoError(t, err)
	t.Cleanup(seed.Zero)

	master, err := hdkey.NewMaster(seed.Bytes(), net)
	require.NoError(t, err)

	return master
}

// testAccount returns account 0 of the scheme for testMnemonic.
func testAccount(t *testing.T, scheme AddressScheme,
	net netparams.Network) *Account {

	t.Helper()

	acct, err := NewAccount(testMaster(t, net), scheme, 0)
	require.NoError(t, err)

	return acct
}
