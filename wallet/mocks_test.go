// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/mock"
	"github.com/yyforyongyu/btcsigner/chain"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

var (
	_ KeySource       = (*mockKeySource)(nil)
	_ chain.Interface = (*mockChain)(nil)
)

// mockKeySource is a mock implementation of KeySource.
type mockKeySource struct {
	mock.Mock
}

func (m *mockKeySource) PrivKey(pkScript []byte) (*btcec.PrivateKey, error) {
	args := m.Called(pkScript)

	key, _ := args.Get(0).(*btcec.PrivateKey)

	return key, args.Error(1)
}

// mockChain is a mock implementation of chain.Interface.
type mockChain struct {
	mock.Mock
}

func (m *mockChain) EstimateFeeRate(ctx context.Context,
	targetBlocks uint32) (btcunit.SatPerVByte, error) {

	args := m.Called(ctx, targetBlocks)
	return args.Get(0).(btcunit.SatPerVByte), args.Error(1)
}

func (m *mockChain) ListUnspent(ctx context.Context,
	minConfs uint32) ([]wtxmgr.UTXO, error) {

	args := m.Called(ctx, minConfs)

	utxos, _ := args.Get(0).([]wtxmgr.UTXO)

	return utxos, args.Error(1)
}

func (m *mockChain) Broadcast(ctx context.Context,
	txHex string) (chainhash.Hash, error) {

	args := m.Called(ctx, txHex)
	return args.Get(0).(chainhash.Hash), args.Error(1)
}
