// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yyforyongyu/btcsigner/chain"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

// paymentRequest returns a request paying amount to the foreign script 0x42.
func paymentRequest(t *testing.T, amount btcutil.Amount) *SpendRequest {
	t.Helper()

	return &SpendRequest{
		Outputs: []wire.TxOut{{
			Value:    int64(amount),
			PkScript: foreignScript(t, 0x42),
		}},
	}
}

// TestSpendScenario spends the first receive address of the abandon wallet
// end to end: 100,000 sats to a 50,000 sat payment at the slow estimate of
// 10 sat/vB, then publishes the result.
func TestSpendScenario(t *testing.T) {
	t.Parallel()

	// Arrange.
	keys := testKeyRing(t, waddrmgr.NativeSegwit)
	coin := testUTXO(1, testAddress(t, keys, 0), 100_000)
	require.Equal(t, "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu",
		coin.Address)

	backend, err := chain.NewSnapshot(
		[]wtxmgr.UTXO{coin},
		map[uint32]btcunit.SatPerVByte{
			1: btcunit.NewSatPerVByte(25),
			6: btcunit.NewSatPerVByte(10),
		},
		keys.IsMine,
	)
	require.NoError(t, err)

	spender := NewSpender(backend, keys)

	// Act.
	signed, err := spender.Spend(t.Context(), paymentRequest(t, 50_000))
	require.NoError(t, err)

	// Assert: The payment comes first and the change goes to the first
	// internal address.
	tx := signed.Tx()
	require.Len(t, tx.TxIn, 1)
	require.Equal(t, coin.OutPoint, tx.TxIn[0].PreviousOutPoint)
	require.Len(t, tx.TxOut, 2)
	require.EqualValues(t, 50_000, tx.TxOut[0].Value)
	require.Equal(t, foreignScript(t, 0x42), tx.TxOut[0].PkScript)
	require.EqualValues(t, 47_740, tx.TxOut[1].Value)
	require.Equal(t, 1, signed.ChangeIndex())

	changeAddr, err := waddrmgr.ExtractAddress(tx.TxOut[1].PkScript, testNet)
	require.NoError(t, err)
	require.Equal(t, "bc1q8c6fshw2dlwun7ekn9qwf37cu2rn755upcp6el",
		changeAddr)

	require.Equal(t, btcutil.Amount(2260), signed.Fee())
	require.True(t, signed.FeeRate().GreaterThan(btcunit.NewSatPerVByte(10)))
	requireValid(t, signed)

	// Act: Publish it.
	txid, err := spender.Broadcast(t.Context(), signed)
	require.NoError(t, err)

	// Assert: The coin is spent and the change is tracked.
	require.Equal(t, signed.TxID(), txid)
	require.Len(t, backend.Published(), 1)

	unspent, err := backend.ListUnspent(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	require.Equal(t, wire.OutPoint{Hash: txid, Index: 1},
		unspent[0].OutPoint)
	require.Equal(t, changeAddr, unspent[0].Address)

	// Spending the same coin again fails for lack of confirmed funds.
	_, err = spender.Spend(t.Context(), &SpendRequest{
		Outputs: paymentRequest(t, 50_000).Outputs,
		Inputs:  &InputsPolicy{MinConfs: 1},
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

// TestSpendFeeRate checks where the fee rate of a request comes from.
func TestSpendFeeRate(t *testing.T) {
	t.Parallel()

	keys := testKeyRing(t, waddrmgr.NativeSegwit)
	coin := testUTXO(1, testAddress(t, keys, 0), 100_000)

	testCases := []struct {
		name    string
		setup   func(m *mockChain)
		modify  func(req *SpendRequest)
		wantFee btcutil.Amount
		err     error
	}{
		{
			name: "explicit rate skips the estimator",
			modify: func(req *SpendRequest) {
				req.FeeRate = fn.Some(btcunit.NewSatPerVByte(2))
			},
			wantFee: 452,
		},
		{
			name: "normal preset",
			setup: func(m *mockChain) {
				m.On("EstimateFeeRate", mock.Anything, uint32(3)).
					Return(btcunit.NewSatPerVByte(5), nil)
			},
			modify: func(req *SpendRequest) {
				req.FeePreset = FeeNormal
			},
			wantFee: 1130,
		},
		{
			name: "estimator failure",
			setup: func(m *mockChain) {
				m.On("EstimateFeeRate", mock.Anything, uint32(6)).
					Return(btcunit.ZeroSatPerVByte, errMock)
			},
			modify: func(*SpendRequest) {},
			err:    errMock,
		},
		{
			name: "zero explicit rate",
			modify: func(req *SpendRequest) {
				req.FeeRate = fn.Some(btcunit.ZeroSatPerVByte)
			},
			err: ErrMissingFeeRate,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange.
			backend := &mockChain{}
			backend.On("ListUnspent", mock.Anything, uint32(0)).
				Return([]wtxmgr.UTXO{coin}, nil).Maybe()
			if tc.setup != nil {
				tc.setup(backend)
			}

			req := paymentRequest(t, 50_000)
			tc.modify(req)

			// Act.
			utx, err := NewSpender(backend, keys).CreateTransaction(
				t.Context(), req,
			)

			// Assert.
			backend.AssertExpectations(t)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantFee, utx.Fee())
			if tc.setup == nil {
				backend.AssertNotCalled(
					t, "EstimateFeeRate", mock.Anything,
					mock.Anything,
				)
			}
		})
	}
}

// TestCreateTransactionOwnership checks that only the account's outputs are
// spent and that they are labeled with their addresses.
func TestCreateTransactionOwnership(t *testing.T) {
	t.Parallel()

	// Arrange: A foreign output larger than the payment and a small owned
	// one.
	keys := testKeyRing(t, waddrmgr.NativeSegwit)
	owned := testUTXO(1, testAddress(t, keys, 2), 60_000)
	owned.Address = ""

	foreign := wtxmgr.UTXO{
		OutPoint:      testOutPoint(2),
		Amount:        500_000,
		PkScript:      foreignScript(t, 7),
		Confirmations: 10,
	}

	backend := &mockChain{}
	backend.On("ListUnspent", mock.Anything, uint32(0)).
		Return([]wtxmgr.UTXO{foreign, owned}, nil)

	spender := NewSpender(backend, keys)
	req := paymentRequest(t, 50_000)
	req.FeeRate = fn.Some(btcunit.NewSatPerVByte(1))

	// Act.
	utx, err := spender.CreateTransaction(t.Context(), req)
	require.NoError(t, err)

	// Assert.
	prevOuts := utx.PrevOuts()
	require.Len(t, prevOuts, 1)
	require.Equal(t, owned.OutPoint, prevOuts[0].OutPoint)
	require.Equal(t, testAddress(t, keys, 2).Address, prevOuts[0].Address)

	// More than the owned output can pay.
	_, err = spender.CreateTransaction(t.Context(), &SpendRequest{
		Outputs: paymentRequest(t, 100_000).Outputs,
		FeeRate: fn.Some(btcunit.NewSatPerVByte(1)),
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

// TestCreateTransactionErrors checks the failures before coin selection.
func TestCreateTransactionErrors(t *testing.T) {
	t.Parallel()

	keys := testKeyRing(t, waddrmgr.NativeSegwit)

	backend := &mockChain{}
	backend.On("ListUnspent", mock.Anything, uint32(0)).
		Return(nil, errMock)

	spender := NewSpender(backend, keys)

	_, err := spender.CreateTransaction(t.Context(), nil)
	require.ErrorIs(t, err, ErrNilTxIntent)

	req := paymentRequest(t, 1_000)
	req.FeeRate = fn.Some(btcunit.NewSatPerVByte(1))
	_, err = spender.CreateTransaction(t.Context(), req)
	require.ErrorIs(t, err, errMock)
}

// TestSpendChangeAddress checks the explicit and indexed change addresses.
func TestSpendChangeAddress(t *testing.T) {
	t.Parallel()

	keys := testKeyRing(t, waddrmgr.NativeSegwit)
	coin := testUTXO(1, testAddress(t, keys, 0), 100_000)

	backend := &mockChain{}
	backend.On("ListUnspent", mock.Anything, uint32(0)).
		Return([]wtxmgr.UTXO{coin}, nil)

	spender := NewSpender(backend, keys)

	// An explicit address wins.
	req := paymentRequest(t, 50_000)
	req.FeeRate = fn.Some(btcunit.NewSatPerVByte(1))
	req.ChangeAddress = fn.Some(foreignAddress(t, 9))

	utx, err := spender.CreateTransaction(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, foreignScript(t, 9),
		utx.Tx().TxOut[utx.ChangeIndex()].PkScript)

	// Otherwise the internal address at ChangeIndex is used.
	req.ChangeAddress = fn.None[string]()
	req.ChangeIndex = 3

	utx, err = spender.CreateTransaction(t.Context(), req)
	require.NoError(t, err)

	want, err := keys.ChangeAddress(3)
	require.NoError(t, err)
	require.Equal(t, want.PkScript,
		utx.Tx().TxOut[utx.ChangeIndex()].PkScript)
}

// TestSpendBIP69 checks that the options of a request apply to building.
func TestSpendBIP69(t *testing.T) {
	t.Parallel()

	keys := testKeyRing(t, waddrmgr.NestedSegwit)
	coins := []wtxmgr.UTXO{
		testUTXO(9, testAddress(t, keys, 0), 30_000),
		testUTXO(3, testAddress(t, keys, 1), 40_000),
	}

	backend, err := chain.NewSnapshot(coins, nil, keys.IsMine)
	require.NoError(t, err)

	req := paymentRequest(t, 65_000)
	req.FeeRate = fn.Some(btcunit.NewSatPerVByte(1))
	req.Options = []TxOption{WithBIP69(), WithRBF()}

	signed, err := NewSpender(backend, keys).Spend(t.Context(), req)
	require.NoError(t, err)
	requireValid(t, signed)

	tx := signed.Tx()
	require.Len(t, tx.TxIn, 2)
	require.Equal(t, coins[1].OutPoint, tx.TxIn[0].PreviousOutPoint)
	for _, txIn := range tx.TxIn {
		require.Equal(t, SequenceRBF, txIn.Sequence)
	}
}

// TestSpenderBroadcast checks the outcomes of publishing.
func TestSpenderBroadcast(t *testing.T) {
	t.Parallel()

	keys, utx := signerFixture(t, waddrmgr.NativeSegwit, 1, 1)
	signed, err := SignTx(t.Context(), utx, keys)
	require.NoError(t, err)

	testCases := []struct {
		name string
		txid chainhash.Hash
		err  error
		want error
	}{
		{
			name: "success",
			txid: signed.TxID(),
		},
		{
			name: "rejected",
			err:  errBroadcast,
			want: errBroadcast,
		},
		{
			name: "unexpected txid",
			txid: chainhash.Hash{1},
			want: ErrTxIDMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange.
			backend := &mockChain{}
			backend.On("Broadcast", mock.Anything, signed.Hex()).
				Return(tc.txid, tc.err).Once()

			// Act.
			txid, err := NewSpender(backend, keys).Broadcast(
				t.Context(), signed,
			)

			// Assert.
			backend.AssertExpectations(t)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
				require.Equal(t, chainhash.Hash{}, txid)

				return
			}

			require.NoError(t, err)
			require.Equal(t, signed.TxID(), txid)
		})
	}
}

// TestSpenderCreatePsbt checks that the exported packet describes the
// created transaction.
func TestSpenderCreatePsbt(t *testing.T) {
	t.Parallel()

	keys := testKeyRing(t, waddrmgr.NativeSegwit)
	coin := testUTXO(1, testAddress(t, keys, 0), 100_000)

	backend := &mockChain{}
	backend.On("ListUnspent", mock.Anything, uint32(0)).
		Return([]wtxmgr.UTXO{coin}, nil)
	backend.On("EstimateFeeRate", mock.Anything, uint32(1)).
		Return(btcunit.NewSatPerVByte(10), nil)

	req := paymentRequest(t, 50_000)
	req.FeePreset = FeeFast

	packet, err := NewSpender(backend, keys).CreatePsbt(t.Context(), req)
	require.NoError(t, err)

	require.Len(t, packet.Inputs, 1)
	require.EqualValues(t, 100_000, packet.Inputs[0].WitnessUtxo.Value)
	require.Len(t, packet.Outputs, 2)
	require.Len(t, packet.Outputs[1].Bip32Derivation, 1)
	require.EqualValues(t, 47_740, packet.UnsignedTx.TxOut[1].Value)
}
