// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/yyforyongyu/btcsigner/hdkey"
	"github.com/yyforyongyu/btcsigner/pkg/codec"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
)

// DefaultLookahead is the number of addresses per branch a key ring derives
// when it is created.
const DefaultLookahead = 20

// ErrKeyRingClosed is returned when a key ring is used after Zero.
var ErrKeyRingClosed = errors.New("key ring is closed")

// A compile time check to ensure KeyRing can serve as a KeySource and a
// DerivationSource.
var (
	_ KeySource        = (*KeyRing)(nil)
	_ DerivationSource = (*KeyRing)(nil)
)

// KeyRing holds the private key of one account and the addresses derived
// from it. It resolves output scripts to the keys controlling them. It is
// safe for concurrent use.
type KeyRing struct {
	account     *waddrmgr.Account
	fingerprint uint32

	mu      sync.RWMutex
	acctKey *hdkey.ExtendedKey
	scripts map[string]*waddrmgr.ManagedAddress
	next    [2]uint32
}

// NewKeyRing derives account number account of the scheme from a private
// master node and the first lookahead addresses of both branches.
func NewKeyRing(ctx context.Context, master *hdkey.ExtendedKey,
	scheme waddrmgr.AddressScheme, account,
	lookahead uint32) (*KeyRing, error) {

	acctKey, path, err := waddrmgr.DeriveAccountKey(master, scheme, account)
	if err != nil {
		return nil, err
	}

	acct, err := waddrmgr.ParseAccount(
		acctKey.Neuter().String(), path, master.Network(),
	)
	if err != nil {
		acctKey.Zero()
		return nil, err
	}

	fp := master.Fingerprint()
	k := &KeyRing{
		account:     acct,
		fingerprint: codec.Uint32LE(fp[:]),
		acctKey:     acctKey,
		scripts:     make(map[string]*waddrmgr.ManagedAddress),
	}

	for _, branch := range []uint32{
		waddrmgr.ExternalBranch, waddrmgr.InternalBranch,
	} {
		if err := k.Extend(ctx, branch, lookahead); err != nil {
			k.Zero()
			return nil, err
		}
	}

	log.Infof("Loaded %v with %d addresses per branch", acct.Name(),
		lookahead)

	return k, nil
}

// Account returns the watch-only account of the key ring.
func (k *KeyRing) Account() *waddrmgr.Account {
	return k.account
}

// Extend derives count more addresses of a branch.
func (k *KeyRing) Extend(ctx context.Context, branch, count uint32) error {
	if count == 0 {
		return nil
	}
	if branch != waddrmgr.ExternalBranch &&
		branch != waddrmgr.InternalBranch {

		return fmt.Errorf("%w: %d", waddrmgr.ErrInvalidBranch, branch)
	}

	k.mu.RLock()
	start := k.next[branch]
	k.mu.RUnlock()

	addrs, err := k.account.DeriveAddresses(ctx, branch, start, count)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, addr := range addrs {
		k.scripts[string(addr.PkScript)] = addr
	}
	k.next[branch] = max(k.next[branch], start+count)

	return nil
}

// Addresses returns the derived addresses of a branch in index order.
func (k *KeyRing) Addresses(branch uint32) []*waddrmgr.ManagedAddress {
	k.mu.RLock()
	defer k.mu.RUnlock()

	addrs := make([]*waddrmgr.ManagedAddress, 0, len(k.scripts))
	for _, addr := range k.scripts {
		if addr.Branch == branch {
			addrs = append(addrs, addr)
		}
	}

	// Indexes are dense, so place each address at its index.
	ordered := make([]*waddrmgr.ManagedAddress, len(addrs))
	for _, addr := range addrs {
		ordered[addr.Index] = addr
	}

	return ordered
}

// ChangeAddress returns the internal address at index.
func (k *KeyRing) ChangeAddress(index uint32) (*waddrmgr.ManagedAddress,
	error) {

	return k.account.DeriveAddress(waddrmgr.InternalBranch, index)
}

// Lookup returns the derived address paying to pkScript.
func (k *KeyRing) Lookup(pkScript []byte) (*waddrmgr.ManagedAddress, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	addr, ok := k.scripts[string(pkScript)]

	return addr, ok
}

// IsMine reports whether pkScript pays to a derived address and returns the
// address. It has the shape of wtxmgr.IsMineFunc.
func (k *KeyRing) IsMine(pkScript []byte) (string, bool) {
	addr, ok := k.Lookup(pkScript)
	if !ok {
		return "", false
	}

	return addr.Address, true
}

// PrivKey returns the private key controlling pkScript. Scripts not paying to
// a derived address fail with ErrMissingPrivateKey.
func (k *KeyRing) PrivKey(pkScript []byte) (*btcec.PrivateKey, error) {
	addr, ok := k.Lookup(pkScript)
	if !ok {
		return nil, ErrMissingPrivateKey
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.acctKey == nil {
		return nil, ErrKeyRingClosed
	}

	branchKey, err := k.acctKey.Derive(addr.Branch)
	if err != nil {
		return nil, err
	}
	defer branchKey.Zero()

	key, err := branchKey.Derive(addr.Index)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	return key.ECPrivKey()
}

// Derivation returns the BIP32 derivation of the key behind pkScript.
func (k *KeyRing) Derivation(pkScript []byte) (*psbt.Bip32Derivation, bool) {
	addr, ok := k.Lookup(pkScript)
	if !ok {
		return nil, false
	}

	return &psbt.Bip32Derivation{
		PubKey:               addr.PubKey,
		MasterKeyFingerprint: k.fingerprint,
		Bip32Path:            addr.Path,
	}, true
}

// Zero wipes the account private key. Key lookups fail afterwards while
// address lookups keep working.
func (k *KeyRing) Zero() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.acctKey != nil {
		k.acctKey.Zero()
		k.acctKey = nil
	}
}
