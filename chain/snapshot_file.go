// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

// SnapshotFile is the JSON document a Snapshot is loaded from.
//
//	{
//	  "utxos": [{"txid": "...", "vout": 0, "address": "bc1q...",
//	             "value": 100000, "confirmations": 6}],
//	  "fee_rates": {"1": 20, "3": 10, "6": 2.5}
//	}
type SnapshotFile struct {
	UTXOs []UTXOEntry `json:"utxos"`

	// FeeRates maps confirmation targets to sat/vB.
	FeeRates map[uint32]float64 `json:"fee_rates"`
}

// UTXOEntry is one output of a SnapshotFile. ScriptPubKey is optional and is
// computed from Address when empty.
type UTXOEntry struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Address       string `json:"address"`
	Value         int64  `json:"value"`
	ScriptPubKey  string `json:"script_pub_key,omitempty"`
	Confirmations uint32 `json:"confirmations"`
}

// toUTXO converts the entry, resolving the script from the address.
func (e *UTXOEntry) toUTXO(net netparams.Network) (wtxmgr.UTXO, error) {
	hash, err := chainhash.NewHashFromStr(e.TxID)
	if err != nil {
		return wtxmgr.UTXO{}, fmt.Errorf("txid %q: %w", e.TxID, err)
	}

	pkScript, err := waddrmgr.PayToAddrScript(e.Address, net)
	if err != nil {
		return wtxmgr.UTXO{}, fmt.Errorf("address of %v:%d: %w", hash,
			e.Vout, err)
	}

	if e.ScriptPubKey != "" {
		given, err := hex.DecodeString(e.ScriptPubKey)
		if err != nil {
			return wtxmgr.UTXO{}, fmt.Errorf("script of %v:%d: %w",
				hash, e.Vout, err)
		}

		if !bytes.Equal(given, pkScript) {
			return wtxmgr.UTXO{}, fmt.Errorf("%w: script of %v:%d "+
				"does not pay to %s",
				waddrmgr.ErrUnsupportedAddressFormat, hash,
				e.Vout, e.Address)
		}
	}

	return wtxmgr.UTXO{
		OutPoint:      wire.OutPoint{Hash: *hash, Index: e.Vout},
		Address:       e.Address,
		Amount:        btcutil.Amount(e.Value),
		PkScript:      pkScript,
		Confirmations: e.Confirmations,
	}, nil
}

// LoadSnapshot reads a SnapshotFile from r and builds a Snapshot for net.
func LoadSnapshot(r io.Reader, net netparams.Network,
	isMine wtxmgr.IsMineFunc) (*Snapshot, error) {

	var file SnapshotFile

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	utxos := make([]wtxmgr.UTXO, 0, len(file.UTXOs))
	for i := range file.UTXOs {
		u, err := file.UTXOs[i].toUTXO(net)
		if err != nil {
			return nil, err
		}

		utxos = append(utxos, u)
	}

	feeRates := make(map[uint32]btcunit.SatPerVByte, len(file.FeeRates))
	for target, rate := range file.FeeRates {
		feeRates[target] = btcunit.SatPerVByteFromFloat(rate)
	}

	log.Infof("Loaded snapshot with %d outputs and %d fee estimates",
		len(utxos), len(feeRates))

	return NewSnapshot(utxos, feeRates, isMine)
}
