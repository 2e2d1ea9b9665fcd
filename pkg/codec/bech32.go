// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	// maxWitnessVersion is the highest witness version defined by BIP141.
	maxWitnessVersion = 16

	// minWitnessProgramLen and maxWitnessProgramLen bound the witness
	// program length for every version.
	minWitnessProgramLen = 2
	maxWitnessProgramLen = 40

	// witnessV0PubKeyHashLen and witnessV0ScriptHashLen are the only
	// program lengths allowed for version 0.
	witnessV0PubKeyHashLen = 20
	witnessV0ScriptHashLen = 32
)

// validateWitnessProgram applies the BIP141 version and length rules.
func validateWitnessProgram(version byte, program []byte) error {
	if version > maxWitnessVersion {
		return fmt.Errorf("%w: version %d", ErrInvalidWitnessProgram,
			version)
	}

	if len(program) < minWitnessProgramLen ||
		len(program) > maxWitnessProgramLen {

		return fmt.Errorf("%w: program length %d",
			ErrInvalidWitnessProgram, len(program))
	}

	if version == 0 && len(program) != witnessV0PubKeyHashLen &&
		len(program) != witnessV0ScriptHashLen {

		return fmt.Errorf("%w: v0 program length %d",
			ErrInvalidWitnessProgram, len(program))
	}

	return nil
}

// EncodeSegWitAddress encodes a witness program as a segwit address. Version
// 0 programs use the BIP173 bech32 checksum, higher versions the BIP350
// bech32m checksum.
func EncodeSegWitAddress(hrp string, version byte,
	program []byte) (string, error) {

	if err := validateWitnessProgram(version, program); err != nil {
		return "", err
	}

	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, len(converted)+1)
	data = append(data, version)
	data = append(data, converted...)

	if version == 0 {
		return bech32.Encode(hrp, data)
	}

	return bech32.EncodeM(hrp, data)
}

// DecodeSegWitAddress decodes a segwit address and returns its witness
// version and program. The checksum variant must match the witness version
// and the human readable part must equal hrp.
func DecodeSegWitAddress(hrp, addr string) (byte, []byte, error) {
	gotHRP, data, checksumVersion, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bech32: %v",
			ErrMalformedSerialization, err)
	}

	if gotHRP != strings.ToLower(hrp) {
		return 0, nil, fmt.Errorf("%w: %w: want %q, got %q",
			ErrMalformedSerialization, ErrHRPMismatch, hrp, gotHRP)
	}

	if len(data) < 1 {
		return 0, nil, fmt.Errorf("%w: empty bech32 data",
			ErrMalformedSerialization)
	}

	version := data[0]
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bech32 padding: %v",
			ErrMalformedSerialization, err)
	}

	if err := validateWitnessProgram(version, program); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrMalformedSerialization,
			err)
	}

	switch {
	case version == 0 && checksumVersion != bech32.Version0:
		return 0, nil, fmt.Errorf("%w: witness v0 requires bech32",
			ErrMalformedSerialization)

	case version != 0 && checksumVersion != bech32.VersionM:
		return 0, nil, fmt.Errorf("%w: witness v%d requires bech32m",
			ErrMalformedSerialization, version)
	}

	return version, program, nil
}
