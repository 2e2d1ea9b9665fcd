// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain defines the chain data collaborators the signer consumes: fee
// estimates, spendable outputs and transaction broadcast. Network retries
// and backoff belong to the implementations, not to the signer.
package chain

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

var (
	// ErrNoFeeEstimate is returned when no fee rate is known for a
	// confirmation target.
	ErrNoFeeEstimate = errors.New("no fee estimate available")

	// ErrInvalidTransaction is returned when a broadcast transaction can
	// not be decoded.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// FeeEstimator provides fee rates for confirmation targets.
type FeeEstimator interface {
	// EstimateFeeRate returns the fee rate expected to confirm a
	// transaction within targetBlocks blocks.
	EstimateFeeRate(ctx context.Context,
		targetBlocks uint32) (btcunit.SatPerVByte, error)
}

// UtxoSource provides the wallet's spendable outputs.
type UtxoSource interface {
	// ListUnspent returns the unspent outputs with at least minConfs
	// confirmations. The result is a snapshot owned by the caller.
	ListUnspent(ctx context.Context, minConfs uint32) ([]wtxmgr.UTXO,
		error)
}

// Broadcaster publishes signed transactions.
type Broadcaster interface {
	// Broadcast publishes a serialized transaction given in hex and
	// returns its txid.
	Broadcast(ctx context.Context, txHex string) (chainhash.Hash, error)
}

// Interface bundles every collaborator.
type Interface interface {
	FeeEstimator
	UtxoSource
	Broadcaster
}
