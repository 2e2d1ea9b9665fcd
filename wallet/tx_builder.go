// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

// UnsignedTx is a transaction ready to be signed together with the outputs it
// spends. It is immutable; accessors return copies.
type UnsignedTx struct {
	tx          *wire.MsgTx
	prevOuts    []wtxmgr.UTXO
	changeIndex int
}

// BuildTx builds an unsigned transaction spending inputs to outputs. Inputs
// and outputs keep the order they are given in unless WithBIP69 is passed.
//
// The options WithVersion, WithLockTime, WithSequence, WithRBF and WithBIP69
// apply.
func BuildTx(inputs []wtxmgr.UTXO, outputs []*wire.TxOut,
	opts ...TxOption) (*UnsignedTx, error) {

	return buildTx(inputs, outputs, -1, applyTxOptions(opts))
}

// BuildFromPlan builds the unsigned transaction of a spend plan.
func BuildFromPlan(plan *SpendPlan, opts ...TxOption) (*UnsignedTx, error) {
	return buildTx(
		plan.Inputs, plan.Outputs, plan.ChangeIndex,
		applyTxOptions(opts),
	)
}

// buildTx validates the inputs and outputs and assembles the transaction.
func buildTx(inputs []wtxmgr.UTXO, outputs []*wire.TxOut, changeIndex int,
	o *txOptions) (*UnsignedTx, error) {

	if len(inputs) == 0 {
		return nil, ErrMissingInputs
	}

	if len(outputs) == 0 {
		return nil, ErrNoTxOutputs
	}

	var totalIn, totalOut btcutil.Amount
	prevScripts := make([][]byte, 0, len(inputs))
	seen := make(map[wire.OutPoint]struct{}, len(inputs))
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}

		if _, ok := seen[in.OutPoint]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicatedUtxo,
				in.OutPoint)
		}
		seen[in.OutPoint] = struct{}{}

		totalIn += in.Amount
		prevScripts = append(prevScripts, in.PkScript)
	}

	// Only inputs the signer knows how to spend are accepted.
	if _, err := countInputs(prevScripts); err != nil {
		return nil, err
	}

	for i, out := range outputs {
		if err := checkRecipient(out); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}

		totalOut += btcutil.Amount(out.Value)
	}

	if totalIn < totalOut {
		return nil, &InsufficientFundsError{Shortfall: totalOut - totalIn}
	}

	tx := wire.NewMsgTx(o.version)
	tx.LockTime = o.lockTime

	sequence := o.inputSequence()
	prevOuts := make([]wtxmgr.UTXO, 0, len(inputs))
	for _, in := range inputs {
		txIn := wire.NewTxIn(&in.OutPoint, nil, nil)
		txIn.Sequence = sequence
		tx.AddTxIn(txIn)

		prevOuts = append(prevOuts, in.Copy())
	}

	for _, out := range outputs {
		tx.AddTxOut(wire.NewTxOut(out.Value, bytes.Clone(out.PkScript)))
	}

	utx := &UnsignedTx{
		tx:          tx,
		prevOuts:    prevOuts,
		changeIndex: changeIndex,
	}

	if o.bip69 {
		utx.sortBIP69()
	}

	log.Debugf("Built unsigned transaction with %d inputs and %d "+
		"outputs, fee=%v", len(tx.TxIn), len(tx.TxOut), totalIn-totalOut)

	return utx, nil
}

// sortBIP69 sorts inputs and outputs as described by BIP69 and moves the
// spent outputs and the change index along.
func (u *UnsignedTx) sortBIP69() {
	var change *wire.TxOut
	if u.changeIndex >= 0 {
		change = u.tx.TxOut[u.changeIndex]
	}

	txsort.InPlaceSort(u.tx)

	byOutPoint := make(map[wire.OutPoint]wtxmgr.UTXO, len(u.prevOuts))
	for _, prevOut := range u.prevOuts {
		byOutPoint[prevOut.OutPoint] = prevOut
	}
	for i, txIn := range u.tx.TxIn {
		u.prevOuts[i] = byOutPoint[txIn.PreviousOutPoint]
	}

	for i, out := range u.tx.TxOut {
		if out == change {
			u.changeIndex = i
		}
	}
}

// Tx returns a copy of the unsigned transaction.
func (u *UnsignedTx) Tx() *wire.MsgTx {
	return u.tx.Copy()
}

// PrevOuts returns the outputs spent by each input, in input order.
func (u *UnsignedTx) PrevOuts() []wtxmgr.UTXO {
	prevOuts := make([]wtxmgr.UTXO, 0, len(u.prevOuts))
	for _, prevOut := range u.prevOuts {
		prevOuts = append(prevOuts, prevOut.Copy())
	}

	return prevOuts
}

// ChangeIndex returns the position of the change output, -1 if there is none.
func (u *UnsignedTx) ChangeIndex() int {
	return u.changeIndex
}

// TotalInput returns the value of the spent outputs.
func (u *UnsignedTx) TotalInput() btcutil.Amount {
	var total btcutil.Amount
	for _, prevOut := range u.prevOuts {
		total += prevOut.Amount
	}

	return total
}

// TotalOutput returns the value of the created outputs.
func (u *UnsignedTx) TotalOutput() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range u.tx.TxOut {
		total += btcutil.Amount(out.Value)
	}

	return total
}

// Fee returns the fee paid by the transaction.
func (u *UnsignedTx) Fee() btcutil.Amount {
	return u.TotalInput() - u.TotalOutput()
}

// PrevOutFetcher returns a fetcher of the spent outputs for script
// validation.
func (u *UnsignedTx) PrevOutFetcher() *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, prevOut := range u.prevOuts {
		fetcher.AddPrevOut(prevOut.OutPoint, prevOut.TxOut())
	}

	return fetcher
}
