// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// sigHashMask selects the base type of a signature hash type.
const sigHashMask = 0x1f

var (
	// ErrInvalidSigHashType is returned when signing with a hash type
	// other than ALL, NONE or SINGLE, optionally with ANYONECANPAY.
	ErrInvalidSigHashType = errors.New("invalid signature hash type")

	// ErrInputIndex is returned for an input index outside the
	// transaction.
	ErrInputIndex = errors.New("input index out of range")
)

// checkSigHashType rejects hash types the wallet does not sign with.
func checkSigHashType(hashType txscript.SigHashType) error {
	if hashType&^(sigHashMask|txscript.SigHashAnyOneCanPay) != 0 {
		return fmt.Errorf("%w: 0x%x", ErrInvalidSigHashType,
			uint32(hashType))
	}

	switch hashType & sigHashMask {
	case txscript.SigHashAll, txscript.SigHashNone, txscript.SigHashSingle:
		return nil

	default:
		return fmt.Errorf("%w: 0x%x", ErrInvalidSigHashType,
			uint32(hashType))
	}
}

// checkInputIndex rejects indexes outside tx's inputs.
func checkInputIndex(tx *wire.MsgTx, idx int) error {
	if idx < 0 || idx >= len(tx.TxIn) {
		return fmt.Errorf("%w: %d of %d inputs", ErrInputIndex, idx,
			len(tx.TxIn))
	}

	return nil
}

// LegacySigHash returns the pre-segwit signature hash of input idx, which
// commits to a copy of tx where input idx carries subScript.
//
// As in the original client, SIGHASH_SINGLE without a matching output signs
// the hash 1.
func LegacySigHash(tx *wire.MsgTx, idx int, subScript []byte,
	hashType txscript.SigHashType) (chainhash.Hash, error) {

	if err := checkInputIndex(tx, idx); err != nil {
		return chainhash.Hash{}, err
	}

	hash, err := txscript.CalcSignatureHash(subScript, hashType, tx, idx)
	if err != nil {
		return chainhash.Hash{}, err
	}

	return toHash(hash), nil
}

// SigHashMidstate holds the BIP143 hashes shared by every input of a
// transaction. They do not depend on signatures, so one midstate serves all
// inputs.
type SigHashMidstate struct {
	hashes *txscript.TxSigHashes
}

// NewSigHashMidstate computes the BIP143 midstate of tx.
func NewSigHashMidstate(tx *wire.MsgTx) *SigHashMidstate {
	// The segwit v0 hashes only depend on tx. A prev out fetcher that
	// never reports a taproot output makes txscript always compute them.
	fetcher := txscript.NewCannedPrevOutputFetcher(nil, 0)

	return &SigHashMidstate{
		hashes: txscript.NewTxSigHashes(tx, fetcher),
	}
}

// HashPrevOuts returns the double SHA256 of every input's outpoint.
func (m *SigHashMidstate) HashPrevOuts() chainhash.Hash {
	return m.hashes.HashPrevOutsV0
}

// HashSequence returns the double SHA256 of every input's sequence.
func (m *SigHashMidstate) HashSequence() chainhash.Hash {
	return m.hashes.HashSequenceV0
}

// HashOutputs returns the double SHA256 of every output.
func (m *SigHashMidstate) HashOutputs() chainhash.Hash {
	return m.hashes.HashOutputsV0
}

// WitnessV0SigHash returns the BIP143 signature hash of input idx spending
// amount with scriptCode. For P2WPKH the script code is the P2PKH script of
// the key hash. A nil midstate is computed from tx.
func WitnessV0SigHash(tx *wire.MsgTx, mid *SigHashMidstate, idx int,
	scriptCode []byte, amount btcutil.Amount,
	hashType txscript.SigHashType) (chainhash.Hash, error) {

	if err := checkInputIndex(tx, idx); err != nil {
		return chainhash.Hash{}, err
	}

	if mid == nil {
		mid = NewSigHashMidstate(tx)
	}

	hash, err := txscript.CalcWitnessSigHash(
		scriptCode, mid.hashes, hashType, tx, idx, int64(amount),
	)
	if err != nil {
		return chainhash.Hash{}, err
	}

	return toHash(hash), nil
}

// toHash copies a digest returned by txscript into a chainhash.Hash.
func toHash(digest []byte) chainhash.Hash {
	var hash chainhash.Hash
	copy(hash[:], digest)

	return hash
}
