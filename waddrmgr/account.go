// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"context"
	"fmt"
	"runtime"

	"github.com/yyforyongyu/btcsigner/hdkey"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
	"golang.org/x/sync/errgroup"
)

// ManagedAddress is an address derived from an account together with the
// data needed to spend from it.
type ManagedAddress struct {
	// Address is the encoded address.
	Address string

	// PkScript is the output script paying to Address.
	PkScript []byte

	// PubKey is the compressed public key behind the address.
	PubKey []byte

	// RedeemScript is the P2SH redeem script of nested segwit addresses,
	// nil otherwise.
	RedeemScript []byte

	// Scheme is the scheme of the owning account.
	Scheme AddressScheme

	// Branch and Index locate the key below the account node.
	Branch uint32
	Index  uint32

	// Path is the full derivation path from the master node.
	Path hdkey.Path
}

// Account is a watch-only view of a BIP44/49/84 account: the account level
// extended public key and the scheme it derives addresses for. Accounts are
// immutable and safe for concurrent use.
type Account struct {
	xpub   *hdkey.ExtendedKey
	path   hdkey.Path
	scheme AddressScheme
	net    netparams.Network
	index  uint32
}

// DeriveAccountKey derives the private account node
// m/purpose'/coinType'/account' from a master node. The caller owns the
// returned key and must Zero it when done.
func DeriveAccountKey(master *hdkey.ExtendedKey, scheme AddressScheme,
	account uint32) (*hdkey.ExtendedKey, hdkey.Path, error) {

	if master.Depth() != 0 {
		return nil, nil, fmt.Errorf("%w: expected a master key, got "+
			"depth %d", ErrInvalidPathShape, master.Depth())
	}

	path, err := BuildAccountPath(scheme, master.Network(), account)
	if err != nil {
		return nil, nil, err
	}

	key, err := master.DerivePath(path)
	if err != nil {
		return nil, nil, err
	}

	return key, path, nil
}

// NewAccount derives account number index of the scheme from a private master
// node. Only the neutered account key is kept.
func NewAccount(master *hdkey.ExtendedKey, scheme AddressScheme,
	index uint32) (*Account, error) {

	acctKey, path, err := DeriveAccountKey(master, scheme, index)
	if err != nil {
		return nil, err
	}
	defer acctKey.Zero()

	log.Debugf("Derived %v account %d at %v", scheme, index, path)

	return &Account{
		xpub:   acctKey.Neuter(),
		path:   path,
		scheme: scheme,
		net:    master.Network(),
		index:  index,
	}, nil
}

// ParseAccount restores an account from its serialized extended public key
// and account path. The scheme is taken from the path's purpose; unknown
// purposes are an error. A serialized private key is accepted and neutered.
func ParseAccount(xpub string, path hdkey.Path,
	net netparams.Network) (*Account, error) {

	if len(path) != accountPathLen {
		return nil, fmt.Errorf("%w: %v is not an account path",
			ErrInvalidPathShape, path)
	}

	d, err := ParseDerivationPath(path)
	if err != nil {
		return nil, err
	}

	coinType, err := net.CoinType()
	if err != nil {
		return nil, err
	}
	if d.CoinType != coinType {
		return nil, fmt.Errorf("%w: coin type %d on %v", ErrWrongNetwork,
			d.CoinType, net)
	}

	key, err := hdkey.ParseForNetwork(xpub, net)
	if err != nil {
		return nil, err
	}

	if key.Depth() != accountPathLen || key.ChildIndex() != path[2] {
		return nil, fmt.Errorf("%w: key at depth %d index %d does not "+
			"match %v", ErrInvalidPathShape, key.Depth(),
			key.ChildIndex(), path)
	}

	pub := key.Neuter()
	if pub != key {
		key.Zero()
	}

	return &Account{
		xpub:   pub,
		path:   path.Account(),
		scheme: d.Scheme,
		net:    net,
		index:  d.Account,
	}, nil
}

// XPub returns the serialized account extended public key.
func (a *Account) XPub() string {
	return a.xpub.String()
}

// Path returns the account derivation path.
func (a *Account) Path() hdkey.Path {
	return a.path.Account()
}

// Scheme returns the account's address scheme.
func (a *Account) Scheme() AddressScheme {
	return a.scheme
}

// Network returns the account's network.
func (a *Account) Network() netparams.Network {
	return a.net
}

// Index returns the account number.
func (a *Account) Index() uint32 {
	return a.index
}

// Name returns the display name of the account.
func (a *Account) Name() string {
	return AccountName(a.index)
}

// branchKey returns the public node of a branch.
func (a *Account) branchKey(branch uint32) (*hdkey.ExtendedKey, error) {
	if branch != ExternalBranch && branch != InternalBranch {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBranch, branch)
	}

	return a.xpub.Derive(branch)
}

// addressFromKey builds the managed address for a derived public node.
func (a *Account) addressFromKey(key *hdkey.ExtendedKey, branch,
	index uint32) (*ManagedAddress, error) {

	pubKey := key.PubKeyBytes()

	addr, err := EncodeAddress(pubKey, a.scheme, a.net)
	if err != nil {
		return nil, err
	}

	pkScript, err := PkScriptForPubKey(pubKey, a.scheme)
	if err != nil {
		return nil, err
	}

	var redeemScript []byte
	if a.scheme == NestedSegwit {
		redeemScript, err = NestedWitnessScript(pubKey)
		if err != nil {
			return nil, err
		}
	}

	return &ManagedAddress{
		Address:      addr,
		PkScript:     pkScript,
		PubKey:       pubKey,
		RedeemScript: redeemScript,
		Scheme:       a.scheme,
		Branch:       branch,
		Index:        index,
		Path:         a.path.Account().Child(branch).Child(index),
	}, nil
}

// DeriveAddress derives the address at branch/index below the account.
func (a *Account) DeriveAddress(branch, index uint32) (*ManagedAddress,
	error) {

	if err := checkIndexRange(index, 1); err != nil {
		return nil, err
	}

	branchKey, err := a.branchKey(branch)
	if err != nil {
		return nil, err
	}

	key, err := branchKey.Derive(index)
	if err != nil {
		return nil, err
	}

	return a.addressFromKey(key, branch, index)
}

// DeriveAddresses derives count consecutive addresses of a branch starting at
// start. Derivation runs in parallel; the result is ordered by index. An index
// whose derivation is invalid (probability below 2^-127) fails the whole
// call.
func (a *Account) DeriveAddresses(ctx context.Context, branch, start,
	count uint32) ([]*ManagedAddress, error) {

	if err := checkIndexRange(start, count); err != nil {
		return nil, err
	}

	branchKey, err := a.branchKey(branch)
	if err != nil {
		return nil, err
	}

	addrs := make([]*ManagedAddress, count)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i := range count {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			index := start + i
			key, err := branchKey.Derive(index)
			if err != nil {
				return fmt.Errorf("derive index %d: %w", index, err)
			}

			addr, err := a.addressFromKey(key, branch, index)
			if err != nil {
				return err
			}

			addrs[i] = addr

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Tracef("Derived %d addresses of %v branch %d from index %d",
		count, a.path, branch, start)

	return addrs, nil
}
