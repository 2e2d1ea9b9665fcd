// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/yyforyongyu/btcsigner/chain"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
)

var (
	// ErrFeeRateTooLarge is returned when a transaction is created with a
	// fee rate that is larger than the configured max allowed fee rate.
	// The default max fee rate is 1000 sat/vb.
	ErrFeeRateTooLarge = errors.New("fee rate too large")

	// ErrMissingFeeRate is returned when a transaction is created without
	// a fee rate.
	ErrMissingFeeRate = errors.New("missing fee rate")

	// ErrUnknownFeePreset is returned for a fee preset outside the
	// enumeration.
	ErrUnknownFeePreset = errors.New("unknown fee preset")

	// ErrUnknownSizeModel is returned for a size model outside the
	// enumeration.
	ErrUnknownSizeModel = errors.New("unknown size model")
)

const (
	// DustLimit is the value a change output must exceed to be created.
	// Smaller change is added to the fee instead.
	DustLimit btcutil.Amount = 546

	// simpleBaseSize is the fixed overhead of the simple size model:
	// version, lock time, counts and the segwit marker.
	simpleBaseSize = 10

	// simpleLegacyInputSize is the simple model's size of a P2PKH input.
	simpleLegacyInputSize = 180

	// simpleSegwitInputSize is the simple model's size of a P2WPKH or
	// P2SH-P2WPKH input.
	simpleSegwitInputSize = 148

	// simpleOutputSize is the simple model's size of any output.
	simpleOutputSize = 34
)

// DefaultMaxFeeRate is the highest fee rate the wallet considers sane.
//
//nolint:mnd // 1000 sat/vb default max fee.
var DefaultMaxFeeRate = btcunit.NewSatPerVByte(1000)

// checkFeeRate rejects zero and insane fee rates.
func checkFeeRate(rate btcunit.SatPerVByte) error {
	if rate.LessThanOrEqual(btcunit.ZeroSatPerVByte) {
		return ErrMissingFeeRate
	}

	// Ensure the fee rate is not "insane". This prevents users from
	// accidentally paying exorbitant fees.
	if rate.GreaterThan(DefaultMaxFeeRate) {
		return fmt.Errorf("%w: fee rate of %s is too high, "+
			"max sane fee rate is %s", ErrFeeRateTooLarge,
			rate, DefaultMaxFeeRate)
	}

	return nil
}

// FeePreset names a confirmation target.
type FeePreset uint8

const (
	// FeeSlow targets confirmation within 6 blocks.
	FeeSlow FeePreset = iota

	// FeeNormal targets confirmation within 3 blocks.
	FeeNormal

	// FeeFast targets confirmation in the next block.
	FeeFast
)

// TargetBlocks returns the confirmation target of the preset.
func (p FeePreset) TargetBlocks() (uint32, error) {
	switch p {
	case FeeSlow:
		return 6, nil
	case FeeNormal:
		return 3, nil
	case FeeFast:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownFeePreset, uint8(p))
	}
}

// String returns the name of the preset.
func (p FeePreset) String() string {
	switch p {
	case FeeSlow:
		return "slow"
	case FeeNormal:
		return "normal"
	case FeeFast:
		return "fast"
	default:
		return fmt.Sprintf("FeePreset(%d)", uint8(p))
	}
}

// ParseFeePreset parses a preset name as returned by String.
func ParseFeePreset(s string) (FeePreset, error) {
	for _, p := range []FeePreset{FeeSlow, FeeNormal, FeeFast} {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownFeePreset, s)
}

// Rate asks the estimator for the preset's fee rate. Rates the wallet would
// refuse to build a transaction with are reported as errors here already.
func (p FeePreset) Rate(ctx context.Context,
	estimator chain.FeeEstimator) (btcunit.SatPerVByte, error) {

	target, err := p.TargetBlocks()
	if err != nil {
		return btcunit.ZeroSatPerVByte, err
	}

	rate, err := estimator.EstimateFeeRate(ctx, target)
	if err != nil {
		return btcunit.ZeroSatPerVByte, fmt.Errorf("estimate %v fee "+
			"rate: %w", p, err)
	}

	if err := checkFeeRate(rate); err != nil {
		return btcunit.ZeroSatPerVByte, err
	}

	log.Debugf("Using fee rate %v for %v target of %d blocks", rate, p,
		target)

	return rate, nil
}

// SizeModel selects how transaction virtual sizes are estimated before
// signing.
type SizeModel uint8

const (
	// SizeModelSimple charges 10 vbytes of overhead, 180 per P2PKH input,
	// 148 per segwit input and 34 per output.
	SizeModelSimple SizeModel = iota

	// SizeModelExact uses worst case script and witness sizes per input
	// and the real size of every output.
	SizeModelExact
)

// String returns the name of the size model.
func (m SizeModel) String() string {
	switch m {
	case SizeModelSimple:
		return "simple"
	case SizeModelExact:
		return "exact"
	default:
		return fmt.Sprintf("SizeModel(%d)", uint8(m))
	}
}

// inputCounts tallies spendable inputs by script type.
type inputCounts struct {
	p2pkh  int
	nested int
	p2wpkh int
}

// countInputs classifies the scripts of the outputs being spent. Only the
// script types the signer can spend are accepted.
func countInputs(prevScripts [][]byte) (inputCounts, error) {
	var counts inputCounts
	for i, script := range prevScripts {
		addrType, err := waddrmgr.ClassifyScript(script)
		if err != nil {
			return counts, fmt.Errorf("input %d: %w", i, err)
		}

		switch addrType {
		case waddrmgr.PubKeyHash:
			counts.p2pkh++
		case waddrmgr.ScriptHash:
			counts.nested++
		case waddrmgr.WitnessPubKeyHash:
			counts.p2wpkh++
		default:
			return counts, fmt.Errorf("input %d: %w: cannot spend %v",
				i, waddrmgr.ErrUnsupportedAddressFormat,
				addrType)
		}
	}

	return counts, nil
}

// EstimateVSize estimates the virtual size of a signed transaction spending
// outputs with the given scripts to the given outputs.
func (m SizeModel) EstimateVSize(prevScripts [][]byte,
	outputs []*wire.TxOut) (btcunit.VByte, error) {

	counts, err := countInputs(prevScripts)
	if err != nil {
		return 0, err
	}

	switch m {
	case SizeModelSimple:
		size := simpleBaseSize +
			counts.p2pkh*simpleLegacyInputSize +
			(counts.nested+counts.p2wpkh)*simpleSegwitInputSize +
			len(outputs)*simpleOutputSize

		return btcunit.VByte(size), nil

	case SizeModelExact:
		size := txsizes.EstimateVirtualSize(
			counts.p2pkh, 0, counts.p2wpkh, counts.nested,
			outputs, 0,
		)

		return btcunit.VByte(size), nil

	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownSizeModel, uint8(m))
	}
}
