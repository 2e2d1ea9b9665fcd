// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/yyforyongyu/btcsigner/chain"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

// TxCreator creates unsigned transactions from spend requests.
type TxCreator interface {
	// CreateTransaction selects coins for the request and builds the
	// unsigned transaction.
	CreateTransaction(ctx context.Context,
		req *SpendRequest) (*UnsignedTx, error)
}

// A compile time check to ensure that Spender implements the interface.
var _ TxCreator = (*Spender)(nil)

// SpendRequest describes a payment from the key ring's account.
type SpendRequest struct {
	// Outputs are the recipients, kept in this order unless WithBIP69 is
	// passed in Options.
	Outputs []wire.TxOut

	// Inputs selects the coins to spend. Nil selects automatically from
	// every output of the account.
	Inputs Inputs

	// FeeRate is the fee rate to pay. When unset, the rate of FeePreset
	// is asked from the fee estimator.
	FeeRate fn.Option[btcunit.SatPerVByte]

	// FeePreset is used when FeeRate is unset. The zero value is FeeSlow.
	FeePreset FeePreset

	// ChangeAddress receives the change. When unset, the internal
	// address at ChangeIndex of the account is used.
	ChangeAddress fn.Option[string]

	// ChangeIndex is the internal branch index of the default change
	// address.
	ChangeIndex uint32

	// Options tune building and signing.
	Options []TxOption
}

// Spender pays from one account: it lists the account's outputs at a chain
// backend, selects coins, builds and signs the transaction with the key ring.
type Spender struct {
	chain chain.Interface
	keys  *KeyRing
	net   netparams.Network
}

// NewSpender creates a spender for the account of keys.
func NewSpender(backend chain.Interface, keys *KeyRing) *Spender {
	return &Spender{
		chain: backend,
		keys:  keys,
		net:   keys.Account().Network(),
	}
}

// feeRate returns the fee rate of req.
func (s *Spender) feeRate(ctx context.Context,
	req *SpendRequest) (btcunit.SatPerVByte, error) {

	if req.FeeRate.IsSome() {
		rate := req.FeeRate.UnsafeFromSome()
		if err := checkFeeRate(rate); err != nil {
			return btcunit.ZeroSatPerVByte, err
		}

		return rate, nil
	}

	return req.FeePreset.Rate(ctx, s.chain)
}

// changeAddress returns the change address of req.
func (s *Spender) changeAddress(req *SpendRequest) (string, error) {
	if req.ChangeAddress.IsSome() {
		return req.ChangeAddress.UnsafeFromSome(), nil
	}

	addr, err := s.keys.ChangeAddress(req.ChangeIndex)
	if err != nil {
		return "", err
	}

	return addr.Address, nil
}

// ownedOutputs returns a store of the backend's unspent outputs paying to
// the account.
func (s *Spender) ownedOutputs(ctx context.Context) (*wtxmgr.Store, error) {
	unspent, err := s.chain.ListUnspent(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list unspent: %w", err)
	}

	owned := make([]wtxmgr.UTXO, 0, len(unspent))
	for _, utxo := range unspent {
		addr, ok := s.keys.IsMine(utxo.PkScript)
		if !ok {
			log.Tracef("Ignoring foreign output %v", utxo.OutPoint)
			continue
		}

		utxo.Address = addr
		owned = append(owned, utxo)
	}

	return wtxmgr.NewStore(owned...)
}

// CreateTransaction selects coins for the request and builds the unsigned
// transaction.
func (s *Spender) CreateTransaction(ctx context.Context,
	req *SpendRequest) (*UnsignedTx, error) {

	if req == nil {
		return nil, ErrNilTxIntent
	}

	feeRate, err := s.feeRate(ctx, req)
	if err != nil {
		return nil, err
	}

	changeAddr, err := s.changeAddress(req)
	if err != nil {
		return nil, err
	}

	store, err := s.ownedOutputs(ctx)
	if err != nil {
		return nil, err
	}

	intent := &TxIntent{
		Outputs:       req.Outputs,
		Inputs:        req.Inputs,
		ChangeAddress: fn.Some(changeAddr),
		FeeRate:       feeRate,
	}

	plan, err := SelectAndBuildPlan(store, intent, s.net, req.Options...)
	if err != nil {
		return nil, err
	}

	return BuildFromPlan(plan, req.Options...)
}

// Spend creates and signs the transaction of req. Every signature is
// verified before the transaction is returned.
func (s *Spender) Spend(ctx context.Context,
	req *SpendRequest) (*SignedTx, error) {

	utx, err := s.CreateTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	signed, err := SignTx(ctx, utx, s.keys, req.Options...)
	if err != nil {
		return nil, err
	}

	log.Infof("Signed transaction %v spending %d inputs, fee=%v (%v)",
		signed.TxID(), len(signed.prevOuts), signed.Fee(),
		signed.FeeRate())

	return signed, nil
}

// CreatePsbt creates the transaction of req and exports it as a PSBT for an
// external signer.
func (s *Spender) CreatePsbt(ctx context.Context,
	req *SpendRequest) (*psbt.Packet, error) {

	utx, err := s.CreateTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	return ExportPsbt(utx, s.keys, req.Options...)
}
