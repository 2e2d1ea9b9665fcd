// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hdkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned when a textual derivation path can not be
// parsed.
var ErrInvalidPath = errors.New("invalid derivation path")

// Path is an ordered list of BIP32 child indexes starting at the master
// node. Hardened segments carry the HardenedKeyStart bit.
type Path []uint32

// Segment describes one level of a derivation path.
type Segment struct {
	// Index is the child number without the hardened bit.
	Index uint32

	// Hardened is true for hardened derivation.
	Hardened bool
}

// NewPath builds a path from segments.
func NewPath(segments ...Segment) (Path, error) {
	path := make(Path, 0, len(segments))
	for _, s := range segments {
		if s.Index >= HardenedKeyStart {
			return nil, fmt.Errorf("%w: segment index %d out of "+
				"range", ErrInvalidPath, s.Index)
		}

		idx := s.Index
		if s.Hardened {
			idx += HardenedKeyStart
		}

		path = append(path, idx)
	}

	return path, nil
}

// ParsePath parses the textual form of a derivation path such as
// m/84'/0'/0'/0/5. Hardened segments may be marked with ', h or H. The bare
// root "m" yields an empty path.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if parts[0] != "m" && parts[0] != "M" {
		return nil, fmt.Errorf("%w: %q must start with m",
			ErrInvalidPath, s)
	}

	path := make(Path, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := false
		switch {
		case strings.HasSuffix(part, "'"),
			strings.HasSuffix(part, "h"),
			strings.HasSuffix(part, "H"):

			hardened = true
			part = part[:len(part)-1]
		}

		parsed, err := strconv.ParseUint(part, 10, 32)
		if err != nil || parsed >= uint64(HardenedKeyStart) {
			return nil, fmt.Errorf("%w: bad segment %q in %q",
				ErrInvalidPath, part, s)
		}

		idx := uint32(parsed)
		if hardened {
			idx += HardenedKeyStart
		}

		path = append(path, idx)
	}

	return path, nil
}

// Segments returns the path as a list of segments.
func (p Path) Segments() []Segment {
	segments := make([]Segment, len(p))
	for i, idx := range p {
		segments[i] = Segment{
			Index:    idx &^ HardenedKeyStart,
			Hardened: idx >= HardenedKeyStart,
		}
	}

	return segments
}

// Child returns a copy of the path extended with the given raw index.
func (p Path) Child(idx uint32) Path {
	child := make(Path, len(p), len(p)+1)
	copy(child, p)

	return append(child, idx)
}

// String returns the textual form of the path using ' for hardened
// segments.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")

	for _, s := range p.Segments() {
		b.WriteString("/")
		b.WriteString(strconv.FormatUint(uint64(s.Index), 10))
		if s.Hardened {
			b.WriteString("'")
		}
	}

	return b.String()
}

// Account returns the first three segments of the path, the account level
// of a BIP44 style path. Shorter paths are returned as a copy.
func (p Path) Account() Path {
	n := min(len(p), 3)
	account := make(Path, n)
	copy(account, p[:n])

	return account
}
