// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/stretchr/testify/require"
	"github.com/yyforyongyu/btcsigner/hdkey"
	"github.com/yyforyongyu/btcsigner/mnemonic"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

var (
	errMock      = errors.New("mock error")
	errBroadcast = errors.New("broadcast fail")
)

// testMnemonic is the BIP39 sentence of 128 zero bits of entropy.
const testMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

// testNet is the network used throughout the wallet tests.
var testNet = netparams.MainNet

// testLookahead is the number of addresses per branch of test key rings.
const testLookahead = 5

// testMaster returns the master node of testMnemonic.
func testMaster(t *testing.T) *hdkey.ExtendedKey {
	t.Helper()

	seed, err := mnemonic.ToSeed(testMnemonic, "")
	require.NoError(t, err)
	t.Cleanup(seed.Zero)

	master, err := hdkey.NewMaster(seed.Bytes(), testNet)
	require.NoError(t, err)

	return master
}

// testKeyRing returns a key ring of account 0 of the scheme.
func testKeyRing(t *testing.T, scheme waddrmgr.AddressScheme) *KeyRing {
	t.Helper()

	keys, err := NewKeyRing(
		t.Context(), testMaster(t), scheme, 0, testLookahead,
	)
	require.NoError(t, err)
	t.Cleanup(keys.Zero)

	return keys
}

// testAddress returns the external address at index of keys.
func testAddress(t *testing.T, keys *KeyRing,
	index uint32) *waddrmgr.ManagedAddress {

	t.Helper()

	addrs := keys.Addresses(waddrmgr.ExternalBranch)
	require.Greater(t, len(addrs), int(index))

	return addrs[index]
}

// testOutPoint returns a distinct outpoint for every id.
func testOutPoint(id byte) wire.OutPoint {
	var op wire.OutPoint
	op.Hash[0] = id
	op.Hash[31] = 0xaa
	op.Index = uint32(id) % 3

	return op
}

// testUTXO returns a confirmed output of amount paying to addr.
func testUTXO(id byte, addr *waddrmgr.ManagedAddress,
	amount btcutil.Amount) wtxmgr.UTXO {

	return wtxmgr.UTXO{
		OutPoint:      testOutPoint(id),
		Address:       addr.Address,
		Amount:        amount,
		PkScript:      bytes.Clone(addr.PkScript),
		Confirmations: 6,
	}
}

// foreignScript returns a P2WPKH script not owned by any test key ring.
func foreignScript(t *testing.T, id byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(bytes.Repeat([]byte{id}, 20)).
		Script()
	require.NoError(t, err)

	return script
}

// foreignAddress returns the address of foreignScript.
func foreignAddress(t *testing.T, id byte) string {
	t.Helper()

	addr, err := waddrmgr.ExtractAddress(foreignScript(t, id), testNet)
	require.NoError(t, err)

	return addr
}

// testStore returns a store holding utxos.
func testStore(t *testing.T, utxos ...wtxmgr.UTXO) *wtxmgr.Store {
	t.Helper()

	store, err := wtxmgr.NewStore(utxos...)
	require.NoError(t, err)

	return store
}

// prevOutData returns the scripts and values of the outputs spent by utx.
func prevOutData(prevOuts []wtxmgr.UTXO) ([][]byte, []btcutil.Amount) {
	scripts := make([][]byte, 0, len(prevOuts))
	values := make([]btcutil.Amount, 0, len(prevOuts))
	for _, prevOut := range prevOuts {
		scripts = append(scripts, prevOut.PkScript)
		values = append(values, prevOut.Amount)
	}

	return scripts, values
}

// validateMsgTx executes the scripts of every input of tx.
func validateMsgTx(tx *wire.MsgTx, prevScripts [][]byte,
	inputValues []btcutil.Amount) error {

	inputFetcher, err := txauthor.TXPrevOutFetcher(
		tx, prevScripts, inputValues,
	)
	if err != nil {
		return err
	}

	hashCache := txscript.NewTxSigHashes(tx, inputFetcher)
	for i, prevScript := range prevScripts {
		vm, err := txscript.NewEngine(
			prevScript, tx, i, txscript.StandardVerifyFlags, nil,
			hashCache, int64(inputValues[i]), inputFetcher,
		)
		if err != nil {
			return fmt.Errorf("cannot create script engine: %w", err)
		}

		if err := vm.Execute(); err != nil {
			return fmt.Errorf("cannot validate input %d: %w", i, err)
		}
	}

	return nil
}
