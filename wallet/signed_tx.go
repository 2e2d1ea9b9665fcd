// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

// ErrInvalidSignature is returned when an input's signature does not verify.
var ErrInvalidSignature = errors.New("invalid signature")

// SignedTx is a fully signed transaction and the outputs it spends.
type SignedTx struct {
	tx          *wire.MsgTx
	prevOuts    []wtxmgr.UTXO
	changeIndex int
}

// Tx returns a copy of the signed transaction.
func (s *SignedTx) Tx() *wire.MsgTx {
	return s.tx.Copy()
}

// PrevOuts returns the outputs spent by each input, in input order.
func (s *SignedTx) PrevOuts() []wtxmgr.UTXO {
	prevOuts := make([]wtxmgr.UTXO, 0, len(s.prevOuts))
	for _, prevOut := range s.prevOuts {
		prevOuts = append(prevOuts, prevOut.Copy())
	}

	return prevOuts
}

// ChangeIndex returns the position of the change output, -1 if there is none.
func (s *SignedTx) ChangeIndex() int {
	return s.changeIndex
}

// TxID returns the transaction id.
func (s *SignedTx) TxID() chainhash.Hash {
	return TxHash(s.tx)
}

// WTxID returns the witness transaction id.
func (s *SignedTx) WTxID() chainhash.Hash {
	return WitnessHash(s.tx)
}

// Weight returns the weight of the transaction.
func (s *SignedTx) Weight() btcunit.WeightUnit {
	return TxWeight(s.tx)
}

// VSize returns the virtual size of the transaction.
func (s *SignedTx) VSize() btcunit.VByte {
	return s.Weight().ToVB()
}

// Fee returns the fee paid by the transaction.
func (s *SignedTx) Fee() btcutil.Amount {
	var fee btcutil.Amount
	for _, prevOut := range s.prevOuts {
		fee += prevOut.Amount
	}
	for _, out := range s.tx.TxOut {
		fee -= btcutil.Amount(out.Value)
	}

	return fee
}

// FeeRate returns the fee rate actually paid.
func (s *SignedTx) FeeRate() btcunit.SatPerVByte {
	return btcunit.CalcSatPerVByte(s.Fee(), s.VSize())
}

// Serialize returns the network encoding of the transaction.
func (s *SignedTx) Serialize() []byte {
	return SerializeTx(s.tx)
}

// Hex returns the network encoding of the transaction as hex, the form
// handed to a broadcast service.
func (s *SignedTx) Hex() string {
	return hex.EncodeToString(s.Serialize())
}

// Verify checks every input's signature against the public key it reveals
// and that the key controls the spent output.
func (s *SignedTx) Verify() error {
	mid := NewSigHashMidstate(s.tx)
	for idx := range s.tx.TxIn {
		if err := s.verifyInput(mid, idx); err != nil {
			return fmt.Errorf("input %d: %w", idx, err)
		}
	}

	return nil
}

// verifyInput checks the signature of input idx.
func (s *SignedTx) verifyInput(mid *SigHashMidstate, idx int) error {
	prevOut := s.prevOuts[idx]
	txIn := s.tx.TxIn[idx]

	addrType, err := waddrmgr.ClassifyScript(prevOut.PkScript)
	if err != nil {
		return err
	}

	var sig, pubKey []byte
	switch addrType {
	case waddrmgr.PubKeyHash:
		pushes, err := txscript.PushedData(txIn.SignatureScript)
		if err != nil {
			return err
		}
		if len(pushes) != 2 || len(txIn.Witness) != 0 {
			return fmt.Errorf("%w: malformed p2pkh spend",
				ErrInvalidSignature)
		}
		sig, pubKey = pushes[0], pushes[1]

	case waddrmgr.ScriptHash, waddrmgr.WitnessPubKeyHash:
		if len(txIn.Witness) != 2 {
			return fmt.Errorf("%w: malformed witness",
				ErrInvalidSignature)
		}
		sig, pubKey = txIn.Witness[0], txIn.Witness[1]

	default:
		return fmt.Errorf("%w: cannot spend %v",
			waddrmgr.ErrUnsupportedAddressFormat, addrType)
	}

	if _, err := checkKeyControls(prevOut.PkScript, pubKey); err != nil {
		return err
	}

	switch addrType {
	case waddrmgr.ScriptHash:
		redeemScript, err := waddrmgr.NestedWitnessScript(pubKey)
		if err != nil {
			return err
		}

		pushes, err := txscript.PushedData(txIn.SignatureScript)
		if err != nil {
			return err
		}
		if len(pushes) != 1 || !bytes.Equal(pushes[0], redeemScript) {
			return fmt.Errorf("%w: redeem script mismatch",
				ErrInvalidSignature)
		}

	case waddrmgr.WitnessPubKeyHash:
		if len(txIn.SignatureScript) != 0 {
			return fmt.Errorf("%w: native witness spend with "+
				"signature script", ErrInvalidSignature)
		}
	}

	if len(sig) == 0 {
		return fmt.Errorf("%w: empty signature", ErrInvalidSignature)
	}
	hashType := txscript.SigHashType(sig[len(sig)-1])
	if err := checkSigHashType(hashType); err != nil {
		return err
	}

	parsedSig, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return err
	}

	var hash chainhash.Hash
	if addrType == waddrmgr.PubKeyHash {
		hash, err = LegacySigHash(s.tx, idx, prevOut.PkScript, hashType)
	} else {
		var scriptCode []byte
		scriptCode, err = waddrmgr.PkScriptForPubKey(
			pubKey, waddrmgr.Legacy,
		)
		if err != nil {
			return err
		}

		hash, err = WitnessV0SigHash(
			s.tx, mid, idx, scriptCode, prevOut.Amount, hashType,
		)
	}
	if err != nil {
		return err
	}

	if !parsedSig.Verify(hash[:], key) {
		return ErrInvalidSignature
	}

	return nil
}
