// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

// Snapshot is an in-memory chain backend: a fixed set of fee estimates and a
// UTXO store. Broadcast transactions are recorded and applied to the store
// instead of being sent to the network. It is used for offline signing and in
// tests.
type Snapshot struct {
	store    *wtxmgr.Store
	feeRates map[uint32]btcunit.SatPerVByte
	isMine   wtxmgr.IsMineFunc

	mu        sync.Mutex
	published []*wire.MsgTx
}

// A compile-time assertion to ensure that Snapshot implements Interface.
var _ Interface = (*Snapshot)(nil)

// NewSnapshot creates a snapshot from outputs and fee estimates keyed by
// confirmation target. isMine decides which outputs of broadcast
// transactions are added back to the store and may be nil.
func NewSnapshot(utxos []wtxmgr.UTXO,
	feeRates map[uint32]btcunit.SatPerVByte,
	isMine wtxmgr.IsMineFunc) (*Snapshot, error) {

	store, err := wtxmgr.NewStore(utxos...)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		store:    store,
		feeRates: maps.Clone(feeRates),
		isMine:   isMine,
	}, nil
}

// EstimateFeeRate returns the rate of the largest configured target that is
// not above targetBlocks, so a request is never answered with a slower
// estimate than asked for.
func (s *Snapshot) EstimateFeeRate(_ context.Context,
	targetBlocks uint32) (btcunit.SatPerVByte, error) {

	targets := slices.Sorted(maps.Keys(s.feeRates))

	var (
		rate  btcunit.SatPerVByte
		found bool
	)
	for _, target := range targets {
		if target > targetBlocks {
			break
		}

		rate, found = s.feeRates[target], true
	}

	if !found {
		return btcunit.ZeroSatPerVByte, fmt.Errorf("%w: target %d",
			ErrNoFeeEstimate, targetBlocks)
	}

	log.Debugf("Fee estimate for %d blocks: %v", targetBlocks, rate)

	return rate, nil
}

// ListUnspent returns the outputs of the store with at least minConfs
// confirmations.
func (s *Snapshot) ListUnspent(ctx context.Context,
	minConfs uint32) ([]wtxmgr.UTXO, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.store.UnspentOutputs(minConfs), nil
}

// Balance returns the value of the outputs with at least minConfs
// confirmations.
func (s *Snapshot) Balance(minConfs uint32) btcutil.Amount {
	return s.store.Balance(minConfs)
}

// Broadcast decodes the transaction, removes the outputs it spends from the
// store and records it.
func (s *Snapshot) Broadcast(ctx context.Context,
	txHex string) (chainhash.Hash, error) {

	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, err
	}

	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: %w",
			ErrInvalidTransaction, err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: %w",
			ErrInvalidTransaction, err)
	}

	if err := s.store.InsertUnconfirmed(tx, s.isMine); err != nil {
		return chainhash.Hash{}, err
	}

	s.mu.Lock()
	s.published = append(s.published, tx)
	s.mu.Unlock()

	txid := tx.TxHash()
	log.Infof("Published transaction %v", txid)

	return txid, nil
}

// Published returns the transactions broadcast so far.
func (s *Snapshot) Published() []*wire.MsgTx {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.published)
}
