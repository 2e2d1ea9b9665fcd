// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// InsertUnconfirmed records an unmined transaction created by the wallet. It
// removes the previous outputs referenced by the inputs and adds the outputs
// paying to the wallet as unconfirmed credits.
func (s *Store) InsertUnconfirmed(tx *wire.MsgTx, isMine IsMineFunc) error {
	txHash := tx.TxHash()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unmined[txHash]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateTx, txHash)
	}

	// Check every input first so a failure leaves the store untouched.
	for _, input := range tx.TxIn {
		if _, ok := s.unspent[input.PreviousOutPoint]; !ok {
			return fmt.Errorf("%w: %v spent by %v", ErrUnknownOutput,
				input.PreviousOutPoint, txHash)
		}
	}

	log.Infof("Inserting unconfirmed transaction %v", txHash)

	for _, input := range tx.TxIn {
		delete(s.unspent, input.PreviousOutPoint)
	}

	for i, txOut := range tx.TxOut {
		if isMine == nil {
			break
		}

		addr, ok := isMine(txOut.PkScript)
		if !ok {
			continue
		}

		op := wire.OutPoint{Hash: txHash, Index: uint32(i)}
		credit := UTXO{
			OutPoint: op,
			Address:  addr,
			Amount:   btcutil.Amount(txOut.Value),
			PkScript: txOut.PkScript,
		}
		s.unspent[op] = credit.Copy()

		log.Debugf("Added unconfirmed credit %v of %v", op,
			credit.Amount)
	}

	s.unmined[txHash] = struct{}{}

	return nil
}
