// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// UtxoReader is the read side of a UTXO store. Returned outputs are copies;
// callers may keep and modify them.
type UtxoReader interface {
	// UnspentOutputs returns every unspent output with at least minConfs
	// confirmations, ordered by outpoint.
	UnspentOutputs(minConfs uint32) []UTXO

	// FetchUTXO returns the unspent output at op.
	FetchUTXO(op wire.OutPoint) (UTXO, error)

	// Balance returns the sum of the outputs UnspentOutputs would
	// return.
	Balance(minConfs uint32) btcutil.Amount
}

// TxStore is a UtxoReader that also tracks the outputs spent and created by
// the wallet's own unconfirmed transactions.
type TxStore interface {
	UtxoReader

	// InsertUtxo adds an output to the store.
	InsertUtxo(u UTXO) error

	// InsertUnconfirmed records a transaction created by the wallet: the
	// outputs it spends are removed and the outputs paying to the wallet,
	// as decided by isMine, are added with zero confirmations.
	InsertUnconfirmed(tx *wire.MsgTx, isMine IsMineFunc) error
}

// IsMineFunc reports whether a script belongs to the wallet and, if so, the
// address it encodes.
type IsMineFunc func(pkScript []byte) (string, bool)
