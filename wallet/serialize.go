// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
)

// SerializeTx returns the network encoding of tx. Transactions with witness
// data are encoded as described by BIP144.
func SerializeTx(tx *wire.MsgTx) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))

	// Writes to a bytes.Buffer never fail.
	_ = tx.Serialize(buf)

	return buf.Bytes()
}

// SerializeTxNoWitness returns the encoding of tx without witness data, the
// preimage of its txid.
func SerializeTxNoWitness(tx *wire.MsgTx) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSizeStripped()))
	_ = tx.SerializeNoWitness(buf)

	return buf.Bytes()
}

// TxHash returns the txid of tx.
func TxHash(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}

// WitnessHash returns the wtxid of tx. It equals the txid when tx carries no
// witness data.
func WitnessHash(tx *wire.MsgTx) chainhash.Hash {
	return tx.WitnessHash()
}

// TxWeight returns the BIP141 weight of tx.
func TxWeight(tx *wire.MsgTx) btcunit.WeightUnit {
	return btcunit.CalcWeight(
		tx.SerializeSizeStripped(), tx.SerializeSize(),
	)
}
