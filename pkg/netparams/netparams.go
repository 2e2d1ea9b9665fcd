// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netparams maps the networks supported by the signer to the btcd
// chain parameters that carry their version bytes, bech32 prefixes and
// SLIP-44 coin types.
package netparams

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// ErrUnknownNetwork is returned when a network identifier is not one of the
// supported networks.
var ErrUnknownNetwork = errors.New("unknown network")

// Network identifies the bitcoin network keys and addresses are created for.
type Network uint8

const (
	// MainNet is the bitcoin main network.
	MainNet Network = iota

	// TestNet is the bitcoin test network (version 3).
	TestNet

	// RegTest is the bitcoin regression test network.
	RegTest
)

// String returns the canonical name of the network.
func (n Network) String() string {
	switch n {
	case MainNet:
		return "mainnet"
	case TestNet:
		return "testnet"
	case RegTest:
		return "regtest"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

// Params returns the chain parameters of the network. Every supported network
// is matched explicitly; anything else is an error rather than a silent
// fallback to the main network.
func (n Network) Params() (*chaincfg.Params, error) {
	switch n {
	case MainNet:
		return &chaincfg.MainNetParams, nil
	case TestNet:
		return &chaincfg.TestNet3Params, nil
	case RegTest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownNetwork, n)
	}
}

// CoinType returns the unhardened SLIP-44 coin type used in BIP44 style
// derivation paths: 0 for the main network and 1 for every test network.
func (n Network) CoinType() (uint32, error) {
	params, err := n.Params()
	if err != nil {
		return 0, err
	}

	return params.HDCoinType, nil
}

// IsTestNet returns true for networks whose coins have no value.
func (n Network) IsTestNet() bool {
	return n != MainNet
}

// Parse returns the network with the given name. The names accepted are the
// ones produced by String plus the common aliases used by bitcoind.
func Parse(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", "main", "bitcoin":
		return MainNet, nil
	case "testnet", "testnet3", "test":
		return TestNet, nil
	case "regtest", "simnet":
		return RegTest, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}

// All returns every supported network.
func All() []Network {
	return []Network{MainNet, TestNet, RegTest}
}
