// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hdkey implements BIP32 hierarchical deterministic extended keys on
// top of btcutil's hdkeychain: master key generation from a seed, hardened
// and normal child derivation, neutering and the xprv/xpub Base58Check
// serialization. Keys are bound to a netparams.Network and parsing is
// stricter than hdkeychain's.
package hdkey

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/yyforyongyu/btcsigner/internal/zero"
	"github.com/yyforyongyu/btcsigner/pkg/codec"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
)

const (
	// HardenedKeyStart is the index at which hardened children start.
	HardenedKeyStart uint32 = hdkeychain.HardenedKeyStart

	// MinSeedBytes is the minimum seed length accepted by NewMaster.
	MinSeedBytes = hdkeychain.MinSeedBytes

	// MaxSeedBytes is the maximum seed length accepted by NewMaster.
	MaxSeedBytes = hdkeychain.MaxSeedBytes

	// ChainCodeSize is the length of a chain code.
	ChainCodeSize = 32

	// FingerprintSize is the length of a key fingerprint.
	FingerprintSize = 4

	// serializedKeyLen is the length of the payload following the four
	// version bytes: depth, parent fingerprint, child index, chain code
	// and the 33-byte key.
	serializedKeyLen = 1 + FingerprintSize + 4 + ChainCodeSize + 33

	// versionLen is the length of the serialized version prefix.
	versionLen = 4
)

var (
	// ErrHardenedFromPublic is returned when a hardened child is requested
	// from a public (neutered) extended key.
	ErrHardenedFromPublic = hdkeychain.ErrDeriveHardFromPublic

	// ErrInvalidChild is returned for the rare child index whose
	// derivation yields an invalid key. Callers should move on to the
	// next index.
	ErrInvalidChild = hdkeychain.ErrInvalidChild

	// ErrUnusableSeed is returned when a seed produces an invalid master
	// key.
	ErrUnusableSeed = hdkeychain.ErrUnusableSeed

	// ErrInvalidSeedLen is returned when a seed is shorter than
	// MinSeedBytes or longer than MaxSeedBytes.
	ErrInvalidSeedLen = hdkeychain.ErrInvalidSeedLen

	// ErrDeriveBeyondMaxDepth is returned when deriving below depth 255.
	ErrDeriveBeyondMaxDepth = hdkeychain.ErrDeriveBeyondMaxDepth

	// ErrNotPrivate is returned when a private key is requested from a
	// public extended key.
	ErrNotPrivate = hdkeychain.ErrNotPrivExtKey

	// ErrInvalidKey is returned when a serialized extended key carries an
	// invalid key, an unknown version or inconsistent metadata.
	ErrInvalidKey = errors.New("invalid extended key")

	// ErrWrongNetwork is returned by ParseForNetwork when the version
	// bytes belong to another network.
	ErrWrongNetwork = errors.New("extended key is for another network")
)

// ExtendedKey is a node of a BIP32 tree bound to a network. It holds either a
// private key, from which the public key is computed, or only a compressed
// public key.
type ExtendedKey struct {
	net netparams.Network
	key *hdkeychain.ExtendedKey
}

// NewMaster creates the master node for a seed as described in BIP32. The
// seed must be between 16 and 64 bytes.
func NewMaster(seed []byte, net netparams.Network) (*ExtendedKey, error) {
	params, err := net.Params()
	if err != nil {
		return nil, err
	}

	key, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, err
	}

	return &ExtendedKey{net: net, key: key}, nil
}

// Network returns the network the key was created for.
func (k *ExtendedKey) Network() netparams.Network {
	return k.net
}

// Depth returns the number of derivation steps between the master node and
// this key.
func (k *ExtendedKey) Depth() uint8 {
	return k.key.Depth()
}

// ChildIndex returns the index this key was derived at. Hardened indexes
// include HardenedKeyStart. The master node reports 0.
func (k *ExtendedKey) ChildIndex() uint32 {
	return k.key.ChildIndex()
}

// ParentFingerprint returns the fingerprint of the parent key, zero for the
// master node.
func (k *ExtendedKey) ParentFingerprint() [FingerprintSize]byte {
	var fp [FingerprintSize]byte
	binary.BigEndian.PutUint32(fp[:], k.key.ParentFingerprint())

	return fp
}

// ChainCode returns a copy of the chain code.
func (k *ExtendedKey) ChainCode() [ChainCodeSize]byte {
	var cc [ChainCodeSize]byte
	copy(cc[:], k.key.ChainCode())

	return cc
}

// IsPrivate reports whether the key carries private key material.
func (k *ExtendedKey) IsPrivate() bool {
	return k.key.IsPrivate()
}

// isZeroed reports whether Zero was called on the key.
func (k *ExtendedKey) isZeroed() bool {
	return len(k.key.Version()) == 0
}

// PubKeyBytes returns the 33-byte compressed public key, nil once the key
// has been zeroed.
func (k *ExtendedKey) PubKeyBytes() []byte {
	if k.isZeroed() {
		return nil
	}

	pub, err := k.key.ECPubKey()
	if err != nil {
		return nil
	}

	return pub.SerializeCompressed()
}

// Fingerprint returns the first four bytes of HASH160 of the public key.
func (k *ExtendedKey) Fingerprint() [FingerprintSize]byte {
	var fp [FingerprintSize]byte
	copy(fp[:], codec.Hash160(k.PubKeyBytes()))

	return fp
}

// ECPubKey returns the public key.
func (k *ExtendedKey) ECPubKey() (*btcec.PublicKey, error) {
	return k.key.ECPubKey()
}

// ECPrivKey returns the private key. The returned key is a copy that the
// caller should clear with zero.PrivateKey once done.
func (k *ExtendedKey) ECPrivKey() (*btcec.PrivateKey, error) {
	return k.key.ECPrivKey()
}

// version returns the serialization version bytes of the key's network.
func version(net netparams.Network, private bool) ([]byte, error) {
	params, err := net.Params()
	if err != nil {
		return nil, err
	}

	if private {
		return bytes.Clone(params.HDPrivateKeyID[:]), nil
	}

	return bytes.Clone(params.HDPublicKeyID[:]), nil
}

// Neuter returns the public extended key for k. The result never shares
// memory with k, so zeroing one leaves the other intact.
func (k *ExtendedKey) Neuter() *ExtendedKey {
	// The version always comes from a known network.
	ver, _ := version(k.net, false)
	fp := k.ParentFingerprint()

	return &ExtendedKey{
		net: k.net,
		key: hdkeychain.NewExtendedKey(
			ver, k.PubKeyBytes(), k.key.ChainCode(), fp[:],
			k.key.Depth(), k.key.ChildIndex(), false,
		),
	}
}

// clone returns a deep copy of k.
func (k *ExtendedKey) clone() (*ExtendedKey, error) {
	if !k.IsPrivate() {
		return k.Neuter(), nil
	}

	priv, err := k.key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	defer zero.PrivateKey(priv)

	fp := k.ParentFingerprint()

	return &ExtendedKey{
		net: k.net,
		key: hdkeychain.NewExtendedKey(
			bytes.Clone(k.key.Version()), priv.Serialize(),
			k.key.ChainCode(), fp[:], k.key.Depth(),
			k.key.ChildIndex(), true,
		),
	}, nil
}

// Derive returns the child at index i. Indexes at or above HardenedKeyStart
// request hardened derivation, which needs a private key.
func (k *ExtendedKey) Derive(i uint32) (*ExtendedKey, error) {
	child, err := k.key.Derive(i)
	if err != nil {
		return nil, err
	}

	// A private child whose scalar sums to zero is as unusable as an
	// overflowing tweak.
	if child.IsPrivate() {
		priv, err := child.ECPrivKey()
		if err != nil {
			return nil, err
		}
		isZero := priv.Key.IsZero()
		zero.PrivateKey(priv)

		if isZero {
			child.Zero()
			return nil, ErrInvalidChild
		}
	}

	return &ExtendedKey{net: k.net, key: child}, nil
}

// DeriveChild is a convenience wrapper around Derive taking the hardened
// flag separately. The index must be below HardenedKeyStart.
func (k *ExtendedKey) DeriveChild(index uint32,
	hardened bool) (*ExtendedKey, error) {

	if index >= HardenedKeyStart {
		return nil, fmt.Errorf("%w: child index %d out of range",
			ErrInvalidPath, index)
	}

	if hardened {
		index += HardenedKeyStart
	}

	return k.Derive(index)
}

// DerivePath walks the path starting at k. Private key material of the
// intermediate nodes is wiped. The returned key is always a new key, so the
// caller may zero it without affecting k, also for an empty path.
func (k *ExtendedKey) DerivePath(path Path) (*ExtendedKey, error) {
	if len(path) == 0 {
		return k.clone()
	}

	current := k
	for level, idx := range path {
		next, err := current.Derive(idx)
		if current != k {
			current.Zero()
		}
		if err != nil {
			return nil, fmt.Errorf("derive %v at level %d: %w",
				path, level, err)
		}

		current = next
	}

	return current, nil
}

// Zero wipes the private key and chain code. The key is unusable after this
// call.
func (k *ExtendedKey) Zero() {
	k.key.Zero()
}

// Equal reports whether two extended keys encode the same node.
func (k *ExtendedKey) Equal(other *ExtendedKey) bool {
	if k == nil || other == nil {
		return k == other
	}

	if k.net != other.net || k.IsPrivate() != other.IsPrivate() ||
		k.Depth() != other.Depth() ||
		k.ChildIndex() != other.ChildIndex() ||
		k.ParentFingerprint() != other.ParentFingerprint() ||
		k.ChainCode() != other.ChainCode() ||
		!bytes.Equal(k.PubKeyBytes(), other.PubKeyBytes()) {

		return false
	}

	if !k.IsPrivate() {
		return true
	}

	ours, err := k.key.ECPrivKey()
	if err != nil {
		return false
	}
	defer zero.PrivateKey(ours)

	theirs, err := other.key.ECPrivKey()
	if err != nil {
		return false
	}
	defer zero.PrivateKey(theirs)

	return ours.Key.Equals(&theirs.Key)
}

// String returns the Base58Check xprv/xpub (tprv/tpub on test networks)
// serialization. A zeroed key serializes to the empty string.
func (k *ExtendedKey) String() string {
	if len(k.PubKeyBytes()) == 0 {
		return ""
	}

	return k.key.String()
}

// Parse decodes a serialized extended key. The network is detected from the
// version bytes. The test network and regression test network share version
// bytes, such keys are reported as netparams.TestNet.
func Parse(s string) (*ExtendedKey, error) {
	ver, payload, err := codec.Base58CheckDecode(s, versionLen)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(payload)

	for _, net := range netparams.All() {
		params, err := net.Params()
		if err != nil {
			return nil, err
		}

		if private, ok := matchVersion(ver, params); ok {
			return decode(s, net, private, payload)
		}
	}

	return nil, fmt.Errorf("%w: unknown version %x", ErrInvalidKey, ver)
}

// ParseForNetwork decodes a serialized extended key and checks that it
// belongs to net.
func ParseForNetwork(s string, net netparams.Network) (*ExtendedKey,
	error) {

	params, err := net.Params()
	if err != nil {
		return nil, err
	}

	ver, payload, err := codec.Base58CheckDecode(s, versionLen)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(payload)

	private, ok := matchVersion(ver, params)
	if !ok {
		return nil, fmt.Errorf("%w: version %x is not %v",
			ErrWrongNetwork, ver, net)
	}

	return decode(s, net, private, payload)
}

// matchVersion reports whether ver is an extended key version of params and
// whether it denotes a private key.
func matchVersion(ver []byte, params *chaincfg.Params) (bool, bool) {
	switch {
	case bytes.Equal(ver, params.HDPrivateKeyID[:]):
		return true, true

	case bytes.Equal(ver, params.HDPublicKeyID[:]):
		return false, true

	default:
		return false, false
	}
}

// decode validates the 74-byte payload following the version and hands the
// serialized key s to hdkeychain. Checks beyond hdkeychain's: the key type
// must match the version, and a master key must not carry a parent
// fingerprint or child index.
func decode(s string, net netparams.Network, private bool,
	payload []byte) (*ExtendedKey, error) {

	if len(payload) != serializedKeyLen {
		return nil, fmt.Errorf("%w: payload is %d bytes, want %d",
			codec.ErrMalformedSerialization, len(payload),
			serializedKeyLen)
	}

	depth := payload[0]
	parentFP := payload[1:5]
	childNum := binary.BigEndian.Uint32(payload[5:9])
	keyData := payload[41:]

	if depth == 0 && (!bytes.Equal(parentFP, make([]byte, 4)) ||
		childNum != 0) {

		return nil, fmt.Errorf("%w: master key with parent fingerprint "+
			"or child index", ErrInvalidKey)
	}

	if !private {
		if _, err := secp256k1.ParsePubKey(keyData); err != nil {
			return nil, fmt.Errorf("%w: bad public key: %w",
				ErrInvalidKey, err)
		}
	} else if keyData[0] != 0x00 {
		return nil, fmt.Errorf("%w: private key prefix %#x",
			ErrInvalidKey, keyData[0])
	}

	key, err := hdkeychain.NewKeyFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	return &ExtendedKey{net: net, key: key}, nil
}
