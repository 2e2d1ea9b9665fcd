// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrTxIDMismatch is returned when a broadcaster reports a txid other than
// the one of the published transaction.
var ErrTxIDMismatch = errors.New("broadcast returned unexpected txid")

// TxPublisher provides an interface for publishing transactions.
type TxPublisher interface {
	// Broadcast broadcasts a signed transaction to the network.
	Broadcast(ctx context.Context, tx *SignedTx) (chainhash.Hash, error)
}

// A compile time check to ensure that Spender implements the interface.
var _ TxPublisher = (*Spender)(nil)

// Broadcast hands the transaction to the chain backend and checks the txid it
// reports.
func (s *Spender) Broadcast(ctx context.Context,
	tx *SignedTx) (chainhash.Hash, error) {

	txid := tx.TxID()

	got, err := s.chain.Broadcast(ctx, tx.Hex())
	if err != nil {
		log.Errorf("%v: broadcast failed: %v", txid, err)

		return chainhash.Hash{}, fmt.Errorf("broadcast %v: %w", txid,
			err)
	}

	if got != txid {
		return chainhash.Hash{}, fmt.Errorf("%w: got %v, want %v",
			ErrTxIDMismatch, got, txid)
	}

	log.Infof("Broadcast transaction %v", txid)

	return txid, nil
}
