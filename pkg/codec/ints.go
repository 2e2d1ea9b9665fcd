// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// varIntPver is the protocol version passed to the wire varint routines. The
// encoding does not depend on it.
const varIntPver = 0

// WriteVarInt serializes val to w using the bitcoin compact size encoding.
func WriteVarInt(w io.Writer, val uint64) error {
	return wire.WriteVarInt(w, varIntPver, val)
}

// ReadVarInt reads a compact size integer from r. Non-canonical encodings are
// rejected.
func ReadVarInt(r io.Reader) (uint64, error) {
	val, err := wire.ReadVarInt(r, varIntPver)
	if err != nil {
		return 0, fmt.Errorf("%w: varint: %v",
			ErrMalformedSerialization, err)
	}

	return val, nil
}

// VarIntSize returns the number of bytes val occupies once encoded.
func VarIntSize(val uint64) int {
	return wire.VarIntSerializeSize(val)
}

// AppendVarInt appends the compact size encoding of val to dst.
func AppendVarInt(dst []byte, val uint64) []byte {
	var buf bytes.Buffer
	buf.Grow(VarIntSize(val))

	// Writing into a bytes.Buffer never fails.
	_ = WriteVarInt(&buf, val)

	return append(dst, buf.Bytes()...)
}

// AppendVarBytes appends the compact size length of b followed by b itself.
func AppendVarBytes(dst, b []byte) []byte {
	dst = AppendVarInt(dst, uint64(len(b)))
	return append(dst, b...)
}

// AppendUint32LE appends v in little-endian byte order.
func AppendUint32LE(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

// AppendUint64LE appends v in little-endian byte order.
func AppendUint64LE(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

// AppendInt32LE appends the two's complement of v in little-endian order.
func AppendInt32LE(dst []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(v))
}

// AppendUint32BE appends v in big-endian byte order, as used by BIP32 child
// indexes.
func AppendUint32BE(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

// Uint32LE decodes a little-endian uint32 from the first four bytes of b.
func Uint32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// Uint32BE decodes a big-endian uint32 from the first four bytes of b.
func Uint32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
