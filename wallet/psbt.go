// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
)

// ErrPsbtNeedsPrevTx is returned when exporting a PSBT spending a legacy
// output. Such inputs need the full previous transaction, which the wallet
// does not track.
var ErrPsbtNeedsPrevTx = errors.New("psbt input needs previous transaction")

// DerivationSource returns the BIP32 derivation of the key behind a script.
type DerivationSource interface {
	// Derivation returns the derivation of the key behind pkScript and
	// whether it is known.
	Derivation(pkScript []byte) (*psbt.Bip32Derivation, bool)
}

// ExportPsbt returns a PSBT of the unsigned transaction for an external
// signer. Inputs carry their witness UTXO, sighash type and key derivation;
// nested segwit inputs also carry the redeem script. The change output
// carries its key derivation.
func ExportPsbt(utx *UnsignedTx, derivations DerivationSource,
	opts ...TxOption) (*psbt.Packet, error) {

	o := applyTxOptions(opts)
	if err := checkSigHashType(o.hashType); err != nil {
		return nil, err
	}

	packet, err := psbt.NewFromUnsignedTx(utx.Tx())
	if err != nil {
		return nil, err
	}

	for idx, prevOut := range utx.prevOuts {
		in := &packet.Inputs[idx]
		if err := addInputInfo(in, prevOut.TxOut(), derivations,
			o.hashType); err != nil {

			return nil, fmt.Errorf("input %d: %w", idx, err)
		}
	}

	if utx.changeIndex >= 0 {
		txOut := utx.tx.TxOut[utx.changeIndex]
		derivation, ok := derivations.Derivation(txOut.PkScript)
		if !ok {
			return nil, fmt.Errorf("change output %d: %w",
				utx.changeIndex, ErrMissingPrivateKey)
		}

		packet.Outputs[utx.changeIndex].Bip32Derivation =
			[]*psbt.Bip32Derivation{derivation}
	}

	return packet, nil
}

// addInputInfo fills in the data a signer needs for a segwit v0 input.
func addInputInfo(in *psbt.PInput, utxo *wire.TxOut,
	derivations DerivationSource, hashType txscript.SigHashType) error {

	addrType, err := waddrmgr.ClassifyScript(utxo.PkScript)
	if err != nil {
		return err
	}

	switch addrType {
	case waddrmgr.PubKeyHash:
		return ErrPsbtNeedsPrevTx

	case waddrmgr.ScriptHash, waddrmgr.WitnessPubKeyHash:

	default:
		return fmt.Errorf("%w: cannot spend %v",
			waddrmgr.ErrUnsupportedAddressFormat, addrType)
	}

	derivation, ok := derivations.Derivation(utxo.PkScript)
	if !ok {
		return ErrMissingPrivateKey
	}

	in.WitnessUtxo = &wire.TxOut{
		Value:    utxo.Value,
		PkScript: bytes.Clone(utxo.PkScript),
	}
	in.SighashType = hashType
	in.Bip32Derivation = []*psbt.Bip32Derivation{derivation}

	// Nested inputs reveal the witness program as redeem script.
	if addrType == waddrmgr.ScriptHash {
		redeemScript, err := waddrmgr.NestedWitnessScript(
			derivation.PubKey,
		)
		if err != nil {
			return err
		}
		in.RedeemScript = redeemScript
	}

	return nil
}

// ExportPsbtBase64 returns ExportPsbt encoded as base64.
func ExportPsbtBase64(utx *UnsignedTx, derivations DerivationSource,
	opts ...TxOption) (string, error) {

	packet, err := ExportPsbt(utx, derivations, opts...)
	if err != nil {
		return "", err
	}

	return packet.B64Encode()
}

// PsbtPrevOutputFetcher returns a txscript.PrevOutFetcher built from the
// witness UTXOs of a PSBT packet.
func PsbtPrevOutputFetcher(packet *psbt.Packet) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range packet.UnsignedTx.TxIn {
		in := packet.Inputs[idx]

		// Skip any input that has no UTXO.
		if in.WitnessUtxo == nil {
			continue
		}

		fetcher.AddPrevOut(txIn.PreviousOutPoint, in.WitnessUtxo)
	}

	return fetcher
}
