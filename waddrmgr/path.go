// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"

	"github.com/yyforyongyu/btcsigner/hdkey"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
)

const (
	hardenedKeyStart = hdkey.HardenedKeyStart

	// ExternalBranch is the child number of the receive branch.
	ExternalBranch uint32 = 0

	// InternalBranch is the child number of the change branch.
	InternalBranch uint32 = 1

	// accountPathLen is the number of segments of an account path.
	accountPathLen = 3

	// addressPathLen is the number of segments of an address path.
	addressPathLen = 5
)

// DerivationPath is the decoded form of a purpose'/coin'/account'/branch/index
// path. Account, CoinType, Branch and Index are stored without the hardened
// bit.
type DerivationPath struct {
	Scheme   AddressScheme
	CoinType uint32
	Account  uint32
	Branch   uint32
	Index    uint32
}

// AccountPath returns m/purpose'/coin'/account'.
func (d DerivationPath) AccountPath() (hdkey.Path, error) {
	purpose, err := d.Scheme.Purpose()
	if err != nil {
		return nil, err
	}

	return hdkey.NewPath(
		hdkey.Segment{Index: purpose, Hardened: true},
		hdkey.Segment{Index: d.CoinType, Hardened: true},
		hdkey.Segment{Index: d.Account, Hardened: true},
	)
}

// Path returns the full address path.
func (d DerivationPath) Path() (hdkey.Path, error) {
	account, err := d.AccountPath()
	if err != nil {
		return nil, err
	}

	return AddressPath(account, d.Branch == InternalBranch, d.Index)
}

// BuildAccountPath returns m/purpose'/coinType'/account' for the scheme and
// network.
func BuildAccountPath(scheme AddressScheme, net netparams.Network,
	account uint32) (hdkey.Path, error) {

	coinType, err := net.CoinType()
	if err != nil {
		return nil, err
	}

	if account >= hardenedKeyStart {
		return nil, fmt.Errorf("%w: account %d out of range",
			ErrInvalidPathShape, account)
	}

	return DerivationPath{
		Scheme:   scheme,
		CoinType: coinType,
		Account:  account,
	}.AccountPath()
}

// AddressPath appends /branch/index to an account path, branch 1 for change
// and 0 otherwise. Both appended segments are non-hardened.
func AddressPath(accountPath hdkey.Path, isChange bool,
	index uint32) (hdkey.Path, error) {

	if err := checkAccountSegments(accountPath); err != nil {
		return nil, err
	}

	if index >= hardenedKeyStart {
		return nil, fmt.Errorf("%w: address index %d out of range",
			ErrInvalidPathShape, index)
	}

	branch := ExternalBranch
	if isChange {
		branch = InternalBranch
	}

	return accountPath.Account().Child(branch).Child(index), nil
}

// checkAccountSegments verifies that a path has exactly the three hardened
// account level segments.
func checkAccountSegments(path hdkey.Path) error {
	if len(path) != accountPathLen {
		return fmt.Errorf("%w: account path %v has %d segments",
			ErrInvalidPathShape, path, len(path))
	}

	for _, idx := range path {
		if idx < hardenedKeyStart {
			return fmt.Errorf("%w: account path %v must be fully "+
				"hardened", ErrInvalidPathShape, path)
		}
	}

	return nil
}

// ParseDerivationPath decodes an account or address path. Purpose, coin type
// and account must be hardened, branch and index must not be, and the
// purpose must belong to a known scheme.
func ParseDerivationPath(path hdkey.Path) (DerivationPath, error) {
	var d DerivationPath

	switch len(path) {
	case accountPathLen:
		if err := checkAccountSegments(path); err != nil {
			return d, err
		}

	case addressPathLen:
		if err := checkAccountSegments(path[:accountPathLen]); err != nil {
			return d, err
		}

		d.Branch, d.Index = path[3], path[4]
		if d.Branch != ExternalBranch && d.Branch != InternalBranch {
			return d, fmt.Errorf("%w: %v: %w", ErrInvalidPathShape,
				path, ErrInvalidBranch)
		}

		if d.Index >= hardenedKeyStart {
			return d, fmt.Errorf("%w: %v: hardened address index",
				ErrInvalidPathShape, path)
		}

	default:
		return d, fmt.Errorf("%w: %v has %d segments",
			ErrInvalidPathShape, path, len(path))
	}

	scheme, err := SchemeFromPurpose(path[0])
	if err != nil {
		return d, err
	}

	d.Scheme = scheme
	d.CoinType = path[1] - hardenedKeyStart
	d.Account = path[2] - hardenedKeyStart

	return d, nil
}
