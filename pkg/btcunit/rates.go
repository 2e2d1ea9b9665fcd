// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit provides a set of types for dealing with bitcoin units.
package btcunit

import (
	"math"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// kilo is a generic multiplier for kilo units.
	kilo = 1000

	// floatStringPrecision is the number of decimal places to use when
	// converting a fee rate to a string. We use 3 decimal places to ensure
	// that low fee rates (e.g., 1 sat/kvb = 0.001 sat/vbyte) are displayed
	// with sufficient precision and not rounded to zero.
	floatStringPrecision = 3
)

// ZeroSatPerVByte is a fee rate of 0 sat/vb.
var ZeroSatPerVByte = NewSatPerVByte(0)

// SatPerVByte represents a fee rate in sat/vbyte. The rate is kept as an
// exact rational so fractional rates reported by fee estimators (for example
// 1.5 sat/vb) do not lose precision before a fee is computed.
type SatPerVByte struct {
	rate *big.Rat
}

// NewSatPerVByte creates a new fee rate of a whole number of sat/vb.
func NewSatPerVByte(rate btcutil.Amount) SatPerVByte {
	return SatPerVByte{rate: big.NewRat(int64(rate), 1)}
}

// CalcSatPerVByte calculates the fee rate paid by a fee over a virtual size.
// A zero size yields a zero rate.
func CalcSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	if vb == 0 {
		return ZeroSatPerVByte
	}

	return SatPerVByte{rate: big.NewRat(
		int64(fee), safeUint64ToInt64(uint64(vb)),
	)}
}

// SatPerVByteFromFloat converts a floating point sat/vb rate, as returned by
// fee estimation services, to a fee rate. Negative and non-finite values
// yield a zero rate.
func SatPerVByteFromFloat(rate float64) SatPerVByte {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return ZeroSatPerVByte
	}

	r := new(big.Rat)
	r.SetFloat64(rate)

	return SatPerVByte{rate: r}
}

// NewSatPerKVByte converts a sat/kvb rate, the unit used by bitcoind and the
// txrules package, to a sat/vb rate.
func NewSatPerKVByte(rate btcutil.Amount) SatPerVByte {
	return SatPerVByte{rate: big.NewRat(int64(rate), kilo)}
}

// val returns the rational rate, treating the zero value as zero.
func (s SatPerVByte) val() *big.Rat {
	if s.rate == nil {
		return new(big.Rat)
	}

	return s.rate
}

// FeeForVSize returns the fee for the given virtual size. Fractional
// satoshis are rounded up so the resulting transaction never pays less than
// the requested rate.
func (s SatPerVByte) FeeForVSize(vb VByte) btcutil.Amount {
	fee := new(big.Rat).Mul(
		s.val(), new(big.Rat).SetInt64(safeUint64ToInt64(uint64(vb))),
	)

	// Apply the ceiling division formula:
	// (numerator + denominator - 1) / denominator.
	num := new(big.Int).Add(fee.Num(), fee.Denom())
	num.Sub(num, big.NewInt(1))
	num.Div(num, fee.Denom())

	return btcutil.Amount(num.Int64())
}

// FeeForWeight returns the fee for the given weight.
func (s SatPerVByte) FeeForWeight(wu WeightUnit) btcutil.Amount {
	return s.FeeForVSize(wu.ToVB())
}

// SatPerKVByte returns the rate in sat/kvb truncated to a whole satoshi.
func (s SatPerVByte) SatPerKVByte() btcutil.Amount {
	perKVB := new(big.Rat).Mul(s.val(), big.NewRat(kilo, 1))

	return btcutil.Amount(new(big.Int).Quo(
		perKVB.Num(), perKVB.Denom(),
	).Int64())
}

// Equal returns true if the fee rate is equal to the other fee rate.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.val().Cmp(other.val()) == 0
}

// GreaterThan returns true if the fee rate is greater than the other fee rate.
func (s SatPerVByte) GreaterThan(other SatPerVByte) bool {
	return s.val().Cmp(other.val()) > 0
}

// LessThanOrEqual returns true if the fee rate is less than or equal to the
// other fee rate.
func (s SatPerVByte) LessThanOrEqual(other SatPerVByte) bool {
	return s.val().Cmp(other.val()) <= 0
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return s.val().FloatString(floatStringPrecision) + " sat/vb"
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at math.MaxInt64.
// In practice the values being converted are transaction sizes, which are
// limited by consensus rules and are not expected to overflow an int64.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
