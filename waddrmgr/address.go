// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/yyforyongyu/btcsigner/pkg/codec"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
)

// AddressType identifies the output script an address pays to.
type AddressType uint8

const (
	// PubKeyHash is a base58 pay-to-pubkey-hash address.
	PubKeyHash AddressType = iota

	// ScriptHash is a base58 pay-to-script-hash address.
	ScriptHash

	// WitnessPubKeyHash is a version 0 witness address with a 20-byte
	// program.
	WitnessPubKeyHash

	// WitnessScriptHash is a version 0 witness address with a 32-byte
	// program.
	WitnessScriptHash

	// WitnessFuture is a witness address of version 1 or higher. These
	// can be paid to but not spent from.
	WitnessFuture
)

// String returns the script type name.
func (t AddressType) String() string {
	switch t {
	case PubKeyHash:
		return "p2pkh"
	case ScriptHash:
		return "p2sh"
	case WitnessPubKeyHash:
		return "p2wpkh"
	case WitnessScriptHash:
		return "p2wsh"
	case WitnessFuture:
		return "witness_unknown"
	default:
		return fmt.Sprintf("address_type(%d)", uint8(t))
	}
}

// AddressInfo is a decoded address.
type AddressInfo struct {
	// Type is the script type of the address.
	Type AddressType

	// Network is the network the address belongs to.
	Network netparams.Network

	// WitnessVersion is the witness version of segwit addresses.
	WitnessVersion byte

	// Program is the 20-byte hash of base58 addresses or the witness
	// program of segwit addresses.
	Program []byte

	// PkScript is the output script paying to the address.
	PkScript []byte
}

// checkPubKey verifies that pubKey is a valid compressed public key.
func checkPubKey(pubKey []byte) error {
	if !btcec.IsCompressedPubKey(pubKey) {
		return fmt.Errorf("%w: %d bytes", ErrInvalidPubKey, len(pubKey))
	}

	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}

	return nil
}

// NestedWitnessScript returns the P2SH redeem script 0x00 0x14 <hash160> that
// wraps a P2WPKH program for pubKey.
func NestedWitnessScript(pubKey []byte) ([]byte, error) {
	if err := checkPubKey(pubKey); err != nil {
		return nil, err
	}

	return payToWitnessScript(0, codec.Hash160(pubKey))
}

// EncodeLegacy returns the P2PKH address of a compressed public key.
func EncodeLegacy(pubKey []byte, net netparams.Network) (string, error) {
	params, err := net.Params()
	if err != nil {
		return "", err
	}

	if err := checkPubKey(pubKey); err != nil {
		return "", err
	}

	return codec.Base58CheckEncode(
		[]byte{params.PubKeyHashAddrID}, codec.Hash160(pubKey),
	), nil
}

// EncodeP2SHSegwit returns the P2SH-P2WPKH address of a compressed public
// key: the script hash of 0x00 0x14 <hash160(pubKey)>.
func EncodeP2SHSegwit(pubKey []byte, net netparams.Network) (string, error) {
	params, err := net.Params()
	if err != nil {
		return "", err
	}

	redeemScript, err := NestedWitnessScript(pubKey)
	if err != nil {
		return "", err
	}

	return codec.Base58CheckEncode(
		[]byte{params.ScriptHashAddrID}, codec.Hash160(redeemScript),
	), nil
}

// EncodeNativeSegwit returns the bech32 P2WPKH address of a compressed public
// key.
func EncodeNativeSegwit(pubKey []byte, net netparams.Network) (string,
	error) {

	params, err := net.Params()
	if err != nil {
		return "", err
	}

	if err := checkPubKey(pubKey); err != nil {
		return "", err
	}

	return codec.EncodeSegWitAddress(
		params.Bech32HRPSegwit, 0, codec.Hash160(pubKey),
	)
}

// EncodeAddress returns the address of pubKey for the scheme.
func EncodeAddress(pubKey []byte, scheme AddressScheme,
	net netparams.Network) (string, error) {

	switch scheme {
	case Legacy:
		return EncodeLegacy(pubKey, net)
	case NestedSegwit:
		return EncodeP2SHSegwit(pubKey, net)
	case NativeSegwit:
		return EncodeNativeSegwit(pubKey, net)
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownScheme, uint8(scheme))
	}
}

// PkScriptForPubKey returns the output script the scheme's address for pubKey
// pays to.
func PkScriptForPubKey(pubKey []byte, scheme AddressScheme) ([]byte, error) {
	if err := checkPubKey(pubKey); err != nil {
		return nil, err
	}

	hash := codec.Hash160(pubKey)

	switch scheme {
	case Legacy:
		return payToPubKeyHashScript(hash)

	case NestedSegwit:
		redeemScript, err := payToWitnessScript(0, hash)
		if err != nil {
			return nil, err
		}

		return payToScriptHashScript(codec.Hash160(redeemScript))

	case NativeSegwit:
		return payToWitnessScript(0, hash)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, uint8(scheme))
	}
}

// DecodeAddress decodes a recipient address for net. P2PKH, P2SH and all
// witness versions are recognized; addresses of another supported network
// fail with ErrWrongNetwork.
func DecodeAddress(addr string, net netparams.Network) (*AddressInfo,
	error) {

	params, err := net.Params()
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(addr)
	if strings.HasPrefix(lower, params.Bech32HRPSegwit+"1") {
		return decodeSegWit(addr, params.Bech32HRPSegwit, net)
	}

	for _, other := range netparams.All() {
		otherParams, _ := other.Params()
		if otherParams.Bech32HRPSegwit == params.Bech32HRPSegwit {
			continue
		}

		if strings.HasPrefix(lower, otherParams.Bech32HRPSegwit+"1") {
			return nil, fmt.Errorf("%w: %s address used on %v",
				ErrWrongNetwork, other, net)
		}
	}

	version, payload, err := codec.Base58CheckDecode(addr, 1)
	if err != nil {
		return nil, err
	}

	if len(payload) != codec.Hash160Size {
		return nil, fmt.Errorf("%w: base58 payload is %d bytes",
			ErrUnsupportedAddressFormat, len(payload))
	}

	info := &AddressInfo{
		Network: net,
		Program: payload,
	}

	switch version[0] {
	case params.PubKeyHashAddrID:
		info.Type = PubKeyHash
		info.PkScript, err = payToPubKeyHashScript(payload)

	case params.ScriptHashAddrID:
		info.Type = ScriptHash
		info.PkScript, err = payToScriptHashScript(payload)

	default:
		if isOtherNetworkVersion(version[0], net) {
			return nil, fmt.Errorf("%w: version %#x on %v",
				ErrWrongNetwork, version[0], net)
		}

		return nil, fmt.Errorf("%w: base58 version %#x",
			ErrUnsupportedAddressFormat, version[0])
	}
	if err != nil {
		return nil, err
	}

	return info, nil
}

// isOtherNetworkVersion reports whether a base58 version byte belongs to a
// supported network other than net.
func isOtherNetworkVersion(version byte, net netparams.Network) bool {
	for _, other := range netparams.All() {
		if other == net {
			continue
		}

		params, _ := other.Params()
		if version == params.PubKeyHashAddrID ||
			version == params.ScriptHashAddrID {

			return true
		}
	}

	return false
}

// decodeSegWit decodes a bech32 or bech32m address.
func decodeSegWit(addr, hrp string, net netparams.Network) (*AddressInfo,
	error) {

	version, program, err := codec.DecodeSegWitAddress(hrp, addr)
	if err != nil {
		return nil, err
	}

	info := &AddressInfo{
		Network:        net,
		WitnessVersion: version,
		Program:        program,
	}

	switch {
	case version == 0 && len(program) == codec.Hash160Size:
		info.Type = WitnessPubKeyHash
	case version == 0:
		info.Type = WitnessScriptHash
	default:
		info.Type = WitnessFuture
	}

	info.PkScript, err = payToWitnessScript(version, program)
	if err != nil {
		return nil, err
	}

	return info, nil
}

// PayToAddrScript returns the output script paying to addr on net.
func PayToAddrScript(addr string, net netparams.Network) ([]byte, error) {
	info, err := DecodeAddress(addr, net)
	if err != nil {
		return nil, err
	}

	return info.PkScript, nil
}

// ExtractAddress returns the address a standard output script pays to.
// Scripts that are not P2PKH, P2SH or witness programs fail with
// ErrUnsupportedAddressFormat.
func ExtractAddress(pkScript []byte, net netparams.Network) (string, error) {
	params, err := net.Params()
	if err != nil {
		return "", err
	}

	switch {
	case txscript.IsPayToPubKeyHash(pkScript):
		return codec.Base58CheckEncode(
			[]byte{params.PubKeyHashAddrID}, pkScript[3:23],
		), nil

	case txscript.IsPayToScriptHash(pkScript):
		return codec.Base58CheckEncode(
			[]byte{params.ScriptHashAddrID}, pkScript[2:22],
		), nil

	case txscript.IsWitnessProgram(pkScript):
		version, program, err := txscript.ExtractWitnessProgramInfo(
			pkScript,
		)
		if err != nil {
			return "", err
		}

		return codec.EncodeSegWitAddress(
			params.Bech32HRPSegwit, byte(version), program,
		)
	}

	return "", fmt.Errorf("%w: script %x", ErrUnsupportedAddressFormat,
		pkScript)
}

// ClassifyScript returns the address type of an output script.
func ClassifyScript(pkScript []byte) (AddressType, error) {
	switch {
	case txscript.IsPayToPubKeyHash(pkScript):
		return PubKeyHash, nil

	case txscript.IsPayToScriptHash(pkScript):
		return ScriptHash, nil

	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return WitnessPubKeyHash, nil

	case txscript.IsPayToWitnessScriptHash(pkScript):
		return WitnessScriptHash, nil

	case txscript.IsWitnessProgram(pkScript):
		return WitnessFuture, nil
	}

	return 0, fmt.Errorf("%w: script %x", ErrUnsupportedAddressFormat,
		pkScript)
}

func payToPubKeyHashScript(hash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func payToScriptHashScript(hash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUAL).
		Script()
}

func payToWitnessScript(version byte, program []byte) ([]byte, error) {
	op := byte(txscript.OP_0)
	if version > 0 {
		op = txscript.OP_1 + version - 1
	}

	return txscript.NewScriptBuilder().
		AddOp(op).
		AddData(program).
		Script()
}
