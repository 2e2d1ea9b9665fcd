// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"context"
	"math"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"github.com/yyforyongyu/btcsigner/hdkey"
	"github.com/yyforyongyu/btcsigner/mnemonic"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
)

// TestKnownAddresses checks the first receive and change addresses of
// testMnemonic for every scheme against published wallet output.
func TestKnownAddresses(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		scheme  AddressScheme
		net     netparams.Network
		xpub    string
		receive []string
		change  string
	}{{
		name:   "bip84 mainnet",
		scheme: NativeSegwit,
		net:    netparams.MainNet,
		xpub: "xpub6CatWdiZiodmUeTDp8LT5or8nmbKNcuyvz7WyksVFkKB4RHwCD3X" +
			"yuvPEbvqAQY3rAPshWcMLoP2fMFMKHPJ4ZeZXYVUhLv1VMrjPC7PW6V",
		receive: []string{
			"bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu",
			"bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g",
		},
		change: "bc1q8c6fshw2dlwun7ekn9qwf37cu2rn755upcp6el",
	}, {
		name:   "bip84 testnet",
		scheme: NativeSegwit,
		net:    netparams.TestNet,
		xpub: "tpubDC8msFGeGuwnKG9Upg7DM2b4DaRqg3CUZa5g8v2SRQ6K4NSkxUgd" +
			"7HsL2XVWbVm39yBA4LAxysQAm397zwQSQoQgewGiYZqrA9DsP4zbQ1M",
		receive: []string{
			"tb1q6rz28mcfaxtmd6v789l9rrlrusdprr9pqcpvkl",
		},
	}, {
		name:   "bip44 mainnet",
		scheme: Legacy,
		net:    netparams.MainNet,
		xpub: "xpub6BosfCnifzxcFwrSzQiqu2DBVTshkCXacvNsWGYJVVhhawA7d4R5" +
			"WSWGFNbi8Aw6ZRc1brxMyWMzG3DSSSSoekkudhUd9yLb6qx39T9nMdj",
		receive: []string{
			"1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA",
			"1Ak8PffB2meyfYnbXZR9EGfLfFZVpzJvQP",
		},
		change: "1J3J6EvPrv8q6AC3VCjWV45Uf3nssNMRtH",
	}, {
		name:   "bip49 mainnet",
		scheme: NestedSegwit,
		net:    netparams.MainNet,
		xpub: "xpub6C6nQwHaWbSrzs5tZ1q7m5R9cPK9eYpNMFesiXsYrgc1P8bvLLAe" +
			"t9JfHjYXKjToD8cBRswJXXbbFpXgwsswVPAZzKMa1jUp2kVkGVUaJa7",
		receive: []string{
			"37VucYSaXLCAsxYyAPfbSi9eh4iEcbShgf",
			"3LtMnn87fqUeHBUG414p9CWwnoV6E2pNKS",
		},
	}, {
		name:    "bip49 testnet",
		scheme:  NestedSegwit,
		net:     netparams.TestNet,
		receive: []string{"2Mww8dCYPUpKHofjgcXcBCEGmniw9CoaiD2"},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			acct := testAccount(t, tc.scheme, tc.net)
			if tc.xpub != "" {
				require.Equal(t, tc.xpub, acct.XPub())
			}

			for i, want := range tc.receive {
				addr, err := acct.DeriveAddress(
					ExternalBranch, uint32(i),
				)
				require.NoError(t, err)
				require.Equal(t, want, addr.Address)
			}

			if tc.change == "" {
				return
			}

			addr, err := acct.DeriveAddress(InternalBranch, 0)
			require.NoError(t, err)
			require.Equal(t, tc.change, addr.Address)
		})
	}
}

// TestDeriveAddresses verifies that the parallel DeriveAddresses produces the
// same results as deriving every address on its own through the full path
// from the master node.
func TestDeriveAddresses(t *testing.T) {
	t.Parallel()

	master := testMaster(t, netparams.MainNet)
	acct, err := NewAccount(master, NativeSegwit, 0)
	require.NoError(t, err)

	type testCase struct {
		name       string
		branch     uint32
		startIndex uint32
		count      uint32
	}

	tests := []testCase{
		{
			name:       "External Branch, Index 0-4",
			branch:     ExternalBranch,
			startIndex: 0,
			count:      5,
		},
		{
			name:       "Internal Branch, Index 10-14",
			branch:     InternalBranch,
			startIndex: 10,
			count:      5,
		},
		{
			name:       "Large Batch",
			branch:     ExternalBranch,
			startIndex: 100,
			count:      50,
		},
		{
			name:       "Single Address",
			branch:     ExternalBranch,
			startIndex: 1000,
			count:      1,
		},
		{
			name:       "Zero Addresses",
			branch:     ExternalBranch,
			startIndex: 0,
			count:      0,
		},
	}

	// assertBaseline derives every address from the private master node
	// along its full path and compares it to the batch result.
	assertBaseline := func(t *testing.T, tc testCase,
		addrs []*ManagedAddress) {

		t.Helper()

		for i := range tc.count {
			index := tc.startIndex + i

			path, err := AddressPath(
				acct.Path(), tc.branch == InternalBranch, index,
			)
			require.NoError(t, err)
			require.Equal(t, path, addrs[i].Path)

			key, err := master.DerivePath(path)
			require.NoError(t, err)

			expected, err := EncodeNativeSegwit(
				key.PubKeyBytes(), netparams.MainNet,
			)
			require.NoError(t, err)
			require.Equal(t, expected, addrs[i].Address,
				"address mismatch at index %d", index)
			require.Equal(t, index, addrs[i].Index)
			require.Equal(t, tc.branch, addrs[i].Branch)
		}
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			addrs, err := acct.DeriveAddresses(
				context.Background(), tc.branch, tc.startIndex,
				tc.count,
			)
			require.NoError(t, err)
			require.Len(t, addrs, int(tc.count))

			assertBaseline(t, tc, addrs)
		})
	}
}

// TestDeriveAddressesOverflow verifies that DeriveAddresses returns an error
// when the requested range of child indexes overflows.
func TestDeriveAddressesOverflow(t *testing.T) {
	t.Parallel()

	// Arrange: a watch-only account is enough since the range check runs
	// before any derivation.
	acct := testAccount(t, NativeSegwit, netparams.MainNet)

	// Act: request a range with startIndex + count > math.MaxUint32.
	startIndex := uint32(math.MaxUint32 - 5)
	count := uint32(10)
	_, err := acct.DeriveAddresses(
		context.Background(), ExternalBranch, startIndex, count,
	)

	// Assert: the overflow error is returned.
	require.ErrorIs(t, err, ErrTooManyAddresses)
	require.Contains(t, err.Error(), "child index overflow")

	// Ranges reaching into the hardened indexes are rejected as well.
	_, err = acct.DeriveAddresses(
		context.Background(), ExternalBranch, hardenedKeyStart-1, 2,
	)
	require.ErrorIs(t, err, ErrTooManyAddresses)

	_, err = acct.DeriveAddress(ExternalBranch, hardenedKeyStart)
	require.ErrorIs(t, err, ErrTooManyAddresses)
}

// TestDeriveAddressesCanceled checks that a canceled context stops the batch.
func TestDeriveAddressesCanceled(t *testing.T) {
	t.Parallel()

	acct := testAccount(t, NativeSegwit, netparams.MainNet)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := acct.DeriveAddresses(ctx, ExternalBranch, 0, 20)
	require.ErrorIs(t, err, context.Canceled)
}

// TestDeriveAddressInvalidBranch checks that only branches 0 and 1 are used.
func TestDeriveAddressInvalidBranch(t *testing.T) {
	t.Parallel()

	acct := testAccount(t, Legacy, netparams.MainNet)

	_, err := acct.DeriveAddress(2, 0)
	require.ErrorIs(t, err, ErrInvalidBranch)
}

// TestDeriveAddressDeterministic checks that repeated derivations agree and
// that consecutive indexes differ.
func TestDeriveAddressDeterministic(t *testing.T) {
	t.Parallel()

	first := testAccount(t, NativeSegwit, netparams.MainNet)
	second := testAccount(t, NativeSegwit, netparams.MainNet)
	require.Equal(t, first.XPub(), second.XPub())

	a0, err := first.DeriveAddress(ExternalBranch, 0)
	require.NoError(t, err)
	b0, err := second.DeriveAddress(ExternalBranch, 0)
	require.NoError(t, err)
	require.Equal(t, a0, b0)

	a1, err := first.DeriveAddress(ExternalBranch, 1)
	require.NoError(t, err)
	require.NotEqual(t, a0.Address, a1.Address)
}

// TestParseAccount checks restoring a watch-only account from its xpub.
func TestParseAccount(t *testing.T) {
	t.Parallel()

	for _, scheme := range Schemes() {
		for _, net := range netparams.All() {
			acct := testAccount(t, scheme, net)

			restored, err := ParseAccount(acct.XPub(), acct.Path(), net)
			require.NoError(t, err)
			require.Equal(t, scheme, restored.Scheme())
			require.Equal(t, acct.Index(), restored.Index())
			require.Equal(t, acct.XPub(), restored.XPub())
			require.Equal(t, "account-0", restored.Name())

			want, err := acct.DeriveAddress(ExternalBranch, 3)
			require.NoError(t, err)
			got, err := restored.DeriveAddress(ExternalBranch, 3)
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	}
}

// TestParseAccountErrors checks the validation done when restoring an
// account.
func TestParseAccountErrors(t *testing.T) {
	t.Parallel()

	acct := testAccount(t, NativeSegwit, netparams.MainNet)

	mustPath := func(s string) hdkey.Path {
		p, err := hdkey.ParsePath(s)
		require.NoError(t, err)

		return p
	}

	testCases := []struct {
		name string
		xpub string
		path hdkey.Path
		net  netparams.Network
		err  error
	}{{
		name: "taproot purpose",
		xpub: acct.XPub(),
		path: mustPath("m/86'/0'/0'"),
		net:  netparams.MainNet,
		err:  ErrUnknownPurpose,
	}, {
		name: "address path",
		xpub: acct.XPub(),
		path: mustPath("m/84'/0'/0'/0/0"),
		net:  netparams.MainNet,
		err:  ErrInvalidPathShape,
	}, {
		name: "testnet coin type",
		xpub: acct.XPub(),
		path: mustPath("m/84'/1'/0'"),
		net:  netparams.MainNet,
		err:  ErrWrongNetwork,
	}, {
		name: "account index mismatch",
		xpub: acct.XPub(),
		path: mustPath("m/84'/0'/1'"),
		net:  netparams.MainNet,
		err:  ErrInvalidPathShape,
	}, {
		name: "xpub on testnet",
		xpub: acct.XPub(),
		path: mustPath("m/84'/1'/0'"),
		net:  netparams.TestNet,
		err:  hdkey.ErrWrongNetwork,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseAccount(tc.xpub, tc.path, tc.net)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

// TestNewAccountRequiresPrivateMaster checks that hardened account derivation
// fails on a neutered master node.
func TestNewAccountRequiresPrivateMaster(t *testing.T) {
	t.Parallel()

	master := testMaster(t, netparams.MainNet)

	_, err := NewAccount(master.Neuter(), NativeSegwit, 0)
	require.ErrorIs(t, err, hdkey.ErrHardenedFromPublic)

	child, err := master.Derive(0)
	require.NoError(t, err)

	_, err = NewAccount(child, NativeSegwit, 0)
	require.ErrorIs(t, err, ErrInvalidPathShape)
}

// TestAccountMatchesHDKeychain compares derived addresses with addresses built
// from btcutil's hdkeychain for random seeds.
func TestAccountMatchesHDKeychain(t *testing.T) {
	t.Parallel()

	m, err := mnemonic.Generate(24)
	require.NoError(t, err)

	seed, err := mnemonic.ToSeed(string(m), "TREZOR")
	require.NoError(t, err)
	defer seed.Zero()

	master, err := hdkey.NewMaster(seed.Bytes(), netparams.TestNet)
	require.NoError(t, err)

	acct, err := NewAccount(master, Legacy, 2)
	require.NoError(t, err)

	ref, err := hdkeychain.NewMaster(seed.Bytes(), &chaincfg.TestNet3Params)
	require.NoError(t, err)

	for _, idx := range []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 1,
		hdkeychain.HardenedKeyStart + 2,
		ExternalBranch, 9,
	} {
		ref, err = ref.Derive(idx)
		require.NoError(t, err)
	}

	refAddr, err := ref.Address(&chaincfg.TestNet3Params)
	require.NoError(t, err)

	addr, err := acct.DeriveAddress(ExternalBranch, 9)
	require.NoError(t, err)
	require.Equal(t, refAddr.EncodeAddress(), addr.Address)
}
