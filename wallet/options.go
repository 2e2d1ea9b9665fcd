// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// DefaultTxVersion is the version of transactions built by the wallet.
	DefaultTxVersion int32 = 2

	// SequenceFinal is the default input sequence. It disables both
	// replace-by-fee signaling and the lock time when no lock time is set.
	SequenceFinal = wire.MaxTxInSequenceNum

	// SequenceLockTime is used when a lock time is set and no explicit
	// sequence is requested, so that the lock time is enforced.
	SequenceLockTime = wire.MaxTxInSequenceNum - 1

	// SequenceRBF is the highest sequence number signaling opt-in
	// replace-by-fee as defined by BIP125.
	SequenceRBF = wire.MaxTxInSequenceNum - 2
)

// TxOption configures coin selection, transaction building and signing.
// Options that do not apply to a step are ignored by it, so the same set can
// be passed through an entire spend.
type TxOption func(*txOptions)

// txOptions holds the knobs set by TxOption values.
type txOptions struct {
	version   int32
	lockTime  uint32
	sequence  fn.Option[uint32]
	bip69     bool
	sizeModel SizeModel
	dustLimit btcutil.Amount
	hashType  txscript.SigHashType
}

// defaultTxOptions returns version 2 transactions without lock time, inputs
// and outputs in caller order, the simple size model, the 546 sat dust limit
// and SIGHASH_ALL signatures.
func defaultTxOptions() *txOptions {
	return &txOptions{
		version:   DefaultTxVersion,
		sequence:  fn.None[uint32](),
		sizeModel: SizeModelSimple,
		dustLimit: DustLimit,
		hashType:  txscript.SigHashAll,
	}
}

// applyTxOptions returns the defaults with opts applied in order.
func applyTxOptions(opts []TxOption) *txOptions {
	o := defaultTxOptions()
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// inputSequence returns the sequence number every input is built with.
func (o *txOptions) inputSequence() uint32 {
	if o.lockTime != 0 {
		return o.sequence.UnwrapOr(SequenceLockTime)
	}

	return o.sequence.UnwrapOr(SequenceFinal)
}

// WithVersion sets the transaction version.
func WithVersion(version int32) TxOption {
	return func(o *txOptions) {
		o.version = version
	}
}

// WithLockTime sets the transaction lock time.
func WithLockTime(lockTime uint32) TxOption {
	return func(o *txOptions) {
		o.lockTime = lockTime
	}
}

// WithSequence sets the sequence number of every input.
func WithSequence(sequence uint32) TxOption {
	return func(o *txOptions) {
		o.sequence = fn.Some(sequence)
	}
}

// WithRBF signals opt-in replace-by-fee on every input.
func WithRBF() TxOption {
	return WithSequence(SequenceRBF)
}

// WithBIP69 sorts inputs and outputs as described by BIP69 once the
// transaction is built. Without it, inputs and outputs keep the order they
// were supplied in, with change appended last.
func WithBIP69() TxOption {
	return func(o *txOptions) {
		o.bip69 = true
	}
}

// WithSizeModel selects how virtual sizes are estimated during coin
// selection.
func WithSizeModel(model SizeModel) TxOption {
	return func(o *txOptions) {
		o.sizeModel = model
	}
}

// WithDustLimit sets the value a change output must exceed to be created.
func WithDustLimit(limit btcutil.Amount) TxOption {
	return func(o *txOptions) {
		o.dustLimit = limit
	}
}

// WithSigHashType sets the signature hash type used to sign every input.
func WithSigHashType(hashType txscript.SigHashType) TxOption {
	return func(o *txOptions) {
		o.hashType = hashType
	}
}
