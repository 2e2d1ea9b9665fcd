// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrUnknownOutput is returned when an outpoint is not an unspent
	// output of the store.
	ErrUnknownOutput = errors.New("unknown output")

	// ErrDuplicateOutput is returned when an outpoint is added twice.
	ErrDuplicateOutput = errors.New("output already exists")

	// ErrDuplicateTx is returned when a transaction is recorded twice.
	ErrDuplicateTx = errors.New("transaction already exists")

	// ErrInvalidOutput is returned for an output without a script or with
	// a non-positive value.
	ErrInvalidOutput = errors.New("invalid output")
)

// UTXO is an unspent transaction output available to the wallet. It is
// supplied by a chain data provider and is read-only to the signer.
type UTXO struct {
	wire.OutPoint

	// Address is the address the output pays to.
	Address string

	// Amount is the value of the output.
	Amount btcutil.Amount

	// PkScript is the output script.
	PkScript []byte

	// Confirmations is the number of blocks the output is buried in, zero
	// for unconfirmed outputs.
	Confirmations uint32
}

// Validate checks that the output can be spent by a transaction.
func (u UTXO) Validate() error {
	if u.Amount <= 0 || u.Amount > btcutil.MaxSatoshi {
		return fmt.Errorf("%w: %v has amount %v", ErrInvalidOutput,
			u.OutPoint, u.Amount)
	}

	if len(u.PkScript) == 0 {
		return fmt.Errorf("%w: %v has no script", ErrInvalidOutput,
			u.OutPoint)
	}

	return nil
}

// Copy returns a deep copy of the output.
func (u UTXO) Copy() UTXO {
	u.PkScript = bytes.Clone(u.PkScript)
	return u
}

// TxOut returns the output as a wire.TxOut.
func (u UTXO) TxOut() *wire.TxOut {
	return wire.NewTxOut(int64(u.Amount), bytes.Clone(u.PkScript))
}

// compareOutPoints orders outpoints by hash then index.
func compareOutPoints(a, b wire.OutPoint) int {
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c
	}

	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	default:
		return 0
	}
}

// Store is an in-memory UTXO set. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	// unspent holds the spendable outputs.
	unspent map[wire.OutPoint]UTXO

	// unmined holds the hashes of the transactions recorded through
	// InsertUnconfirmed.
	unmined map[chainhash.Hash]struct{}
}

// A compile-time assertion to ensure that Store implements the TxStore
// interface.
var _ TxStore = (*Store)(nil)

// NewStore creates a store holding the given outputs. Duplicate or invalid
// outputs are an error.
func NewStore(utxos ...UTXO) (*Store, error) {
	s := &Store{
		unspent: make(map[wire.OutPoint]UTXO, len(utxos)),
		unmined: make(map[chainhash.Hash]struct{}),
	}

	for _, u := range utxos {
		if err := s.InsertUtxo(u); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// InsertUtxo adds an output to the store.
func (s *Store) InsertUtxo(u UTXO) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unspent[u.OutPoint]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateOutput, u.OutPoint)
	}

	s.unspent[u.OutPoint] = u.Copy()

	return nil
}

// UnspentOutputs returns every unspent output with at least minConfs
// confirmations, ordered by outpoint.
func (s *Store) UnspentOutputs(minConfs uint32) []UTXO {
	s.mu.RLock()
	defer s.mu.RUnlock()

	utxos := make([]UTXO, 0, len(s.unspent))
	for _, u := range s.unspent {
		if u.Confirmations < minConfs {
			continue
		}

		utxos = append(utxos, u.Copy())
	}

	slices.SortFunc(utxos, func(a, b UTXO) int {
		return compareOutPoints(a.OutPoint, b.OutPoint)
	})

	return utxos
}

// FetchUTXO returns the unspent output at op.
func (s *Store) FetchUTXO(op wire.OutPoint) (UTXO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.unspent[op]
	if !ok {
		return UTXO{}, fmt.Errorf("%w: %v", ErrUnknownOutput, op)
	}

	return u.Copy(), nil
}

// Balance returns the total value of the unspent outputs with at least
// minConfs confirmations.
func (s *Store) Balance(minConfs uint32) btcutil.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total btcutil.Amount
	for _, u := range s.unspent {
		if u.Confirmations >= minConfs {
			total += u.Amount
		}
	}

	return total
}
