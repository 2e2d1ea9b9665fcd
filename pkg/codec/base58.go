// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// checksumSize is the number of double-SHA256 bytes appended by Base58Check.
const checksumSize = 4

// Base58CheckEncode encodes version||payload followed by the first four bytes
// of its double-SHA256. Unlike base58.CheckEncode the version may be longer
// than one byte, which BIP32 extended keys require.
func Base58CheckEncode(version, payload []byte) string {
	buf := make([]byte, 0, len(version)+len(payload)+checksumSize)
	buf = append(buf, version...)
	buf = append(buf, payload...)
	buf = append(buf, DoubleSHA256(buf)[:checksumSize]...)

	return base58.Encode(buf)
}

// Base58CheckDecode reverses Base58CheckEncode. versionLen is the number of
// leading bytes returned as the version.
func Base58CheckDecode(s string, versionLen int) ([]byte, []byte, error) {
	decoded := base58.Decode(s)

	// base58.Decode returns an empty slice on invalid characters.
	if len(decoded) < versionLen+checksumSize {
		return nil, nil, fmt.Errorf("%w: base58 string too short or "+
			"contains invalid characters", ErrMalformedSerialization)
	}

	body := decoded[:len(decoded)-checksumSize]
	cksum := decoded[len(decoded)-checksumSize:]
	if !bytes.Equal(DoubleSHA256(body)[:checksumSize], cksum) {
		return nil, nil, fmt.Errorf("%w: base58: %w",
			ErrMalformedSerialization, ErrChecksumMismatch)
	}

	return body[:versionLen], body[versionLen:], nil
}
