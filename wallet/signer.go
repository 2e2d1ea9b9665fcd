// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/yyforyongyu/btcsigner/internal/zero"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingPrivateKey is returned when no private key is known for
	// the script an input spends.
	ErrMissingPrivateKey = errors.New("missing private key")

	// ErrKeyMismatch is returned when a private key does not control the
	// script of the input it is used for.
	ErrKeyMismatch = errors.New("private key does not match script")

	// ErrAlreadySigned is returned when an input is signed twice.
	ErrAlreadySigned = errors.New("input already signed")

	// ErrNotFullySigned is returned when a transaction is finalized
	// before every input is signed.
	ErrNotFullySigned = errors.New("transaction not fully signed")
)

// KeySource provides the private keys controlling the scripts being spent.
// Implementations must be safe for concurrent use.
type KeySource interface {
	// PrivKey returns the private key controlling pkScript. The caller
	// owns the key and zeroes it after use. Unknown scripts fail with
	// ErrMissingPrivateKey.
	PrivKey(pkScript []byte) (*btcec.PrivateKey, error)
}

// SignState is the state of a signing session.
type SignState uint8

const (
	// StateUnsigned means no input is signed.
	StateUnsigned SignState = iota

	// StatePartiallySigned means some but not all inputs are signed.
	StatePartiallySigned

	// StateFullySigned means every input is signed and the transaction
	// can be finalized.
	StateFullySigned
)

// String returns the name of the state.
func (s SignState) String() string {
	switch s {
	case StateUnsigned:
		return "unsigned"
	case StatePartiallySigned:
		return "partially signed"
	case StateFullySigned:
		return "fully signed"
	default:
		return fmt.Sprintf("SignState(%d)", uint8(s))
	}
}

// inputScripts is the signature script and witness of one input.
type inputScripts struct {
	sigScript []byte
	witness   wire.TxWitness
}

// SigningSession signs the inputs of an unsigned transaction one by one or
// all at once. Signature hashes are always computed over the unsigned
// transaction, so inputs can be signed in any order and in parallel. It is
// safe for concurrent use.
type SigningSession struct {
	unsigned    *wire.MsgTx
	prevOuts    []wtxmgr.UTXO
	mid         *SigHashMidstate
	hashType    txscript.SigHashType
	changeIndex int

	mu        sync.Mutex
	tx        *wire.MsgTx
	signed    []bool
	numSigned int
}

// NewSigningSession starts signing an unsigned transaction. The option
// WithSigHashType applies.
func NewSigningSession(utx *UnsignedTx,
	opts ...TxOption) (*SigningSession, error) {

	o := applyTxOptions(opts)
	if err := checkSigHashType(o.hashType); err != nil {
		return nil, err
	}

	unsigned := utx.Tx()

	return &SigningSession{
		unsigned:    unsigned,
		prevOuts:    utx.PrevOuts(),
		mid:         NewSigHashMidstate(unsigned),
		hashType:    o.hashType,
		changeIndex: utx.ChangeIndex(),
		tx:          unsigned.Copy(),
		signed:      make([]bool, len(unsigned.TxIn)),
	}, nil
}

// stateLocked returns the state. The caller holds mu.
func (s *SigningSession) stateLocked() SignState {
	switch s.numSigned {
	case 0:
		return StateUnsigned
	case len(s.signed):
		return StateFullySigned
	default:
		return StatePartiallySigned
	}
}

// State returns the current state of the session.
func (s *SigningSession) State() SignState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stateLocked()
}

// IsSigned reports whether input idx is signed.
func (s *SigningSession) IsSigned(idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return idx >= 0 && idx < len(s.signed) && s.signed[idx]
}

// SignInput signs input idx with the key keys returns for its script.
func (s *SigningSession) SignInput(idx int, keys KeySource) error {
	if err := checkInputIndex(s.unsigned, idx); err != nil {
		return err
	}

	if s.IsSigned(idx) {
		return fmt.Errorf("%w: %d", ErrAlreadySigned, idx)
	}

	scripts, err := s.computeInput(idx, keys)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signed[idx] {
		return fmt.Errorf("%w: %d", ErrAlreadySigned, idx)
	}
	s.applyLocked(idx, scripts)

	return nil
}

// SignAll signs every input not signed yet. Inputs are signed in parallel
// and merged in input order once all of them succeeded; on error no input is
// changed.
func (s *SigningSession) SignAll(ctx context.Context, keys KeySource) error {
	s.mu.Lock()
	pending := make([]int, 0, len(s.signed))
	for idx, signed := range s.signed {
		if !signed {
			pending = append(pending, idx)
		}
	}
	s.mu.Unlock()

	results := make([]*inputScripts, len(pending))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, idx := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			scripts, err := s.computeInput(idx, keys)
			if err != nil {
				return err
			}
			results[i] = scripts

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, idx := range pending {
		// The input may have been signed by SignInput meanwhile.
		if s.signed[idx] {
			continue
		}
		s.applyLocked(idx, results[i])
	}

	return nil
}

// applyLocked stores the scripts of input idx. The caller holds mu.
func (s *SigningSession) applyLocked(idx int, scripts *inputScripts) {
	s.tx.TxIn[idx].SignatureScript = scripts.sigScript
	s.tx.TxIn[idx].Witness = scripts.witness
	s.signed[idx] = true
	s.numSigned++

	log.Debugf("Signed input %d, transaction is %v", idx, s.stateLocked())
}

// computeInput fetches the key of input idx and signs it. The key is zeroed
// before returning.
func (s *SigningSession) computeInput(idx int,
	keys KeySource) (*inputScripts, error) {

	prevOut := s.prevOuts[idx]

	privKey, err := keys.PrivKey(prevOut.PkScript)
	if err != nil {
		return nil, fmt.Errorf("input %d: %w", idx, err)
	}
	if privKey == nil {
		return nil, fmt.Errorf("input %d: %w", idx, ErrMissingPrivateKey)
	}
	defer zero.PrivateKey(privKey)

	scripts, err := signInput(
		s.unsigned, s.mid, idx, prevOut, privKey, s.hashType,
	)
	if err != nil {
		return nil, fmt.Errorf("input %d: %w", idx, err)
	}

	return scripts, nil
}

// Finalize returns the signed transaction. Every input must be signed.
func (s *SigningSession) Finalize() (*SignedTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateLocked() != StateFullySigned {
		return nil, fmt.Errorf("%w: %d of %d inputs signed",
			ErrNotFullySigned, s.numSigned, len(s.signed))
	}

	prevOuts := make([]wtxmgr.UTXO, 0, len(s.prevOuts))
	for _, prevOut := range s.prevOuts {
		prevOuts = append(prevOuts, prevOut.Copy())
	}

	return &SignedTx{
		tx:          s.tx.Copy(),
		prevOuts:    prevOuts,
		changeIndex: s.changeIndex,
	}, nil
}

// SignTx signs every input of utx, finalizes the transaction and verifies
// every signature.
func SignTx(ctx context.Context, utx *UnsignedTx, keys KeySource,
	opts ...TxOption) (*SignedTx, error) {

	session, err := NewSigningSession(utx, opts...)
	if err != nil {
		return nil, err
	}

	if err := session.SignAll(ctx, keys); err != nil {
		return nil, err
	}

	signed, err := session.Finalize()
	if err != nil {
		return nil, err
	}

	if err := signed.Verify(); err != nil {
		return nil, err
	}

	return signed, nil
}

// schemeOfScript returns the address scheme whose outputs have the script
// type, for the script types the signer can spend.
func schemeOfScript(addrType waddrmgr.AddressType) (waddrmgr.AddressScheme,
	error) {

	switch addrType {
	case waddrmgr.PubKeyHash:
		return waddrmgr.Legacy, nil
	case waddrmgr.ScriptHash:
		return waddrmgr.NestedSegwit, nil
	case waddrmgr.WitnessPubKeyHash:
		return waddrmgr.NativeSegwit, nil
	default:
		return 0, fmt.Errorf("%w: cannot spend %v",
			waddrmgr.ErrUnsupportedAddressFormat, addrType)
	}
}

// checkKeyControls checks that pubKey is the key behind pkScript and returns
// the script type.
func checkKeyControls(pkScript, pubKey []byte) (waddrmgr.AddressType,
	error) {

	addrType, err := waddrmgr.ClassifyScript(pkScript)
	if err != nil {
		return 0, err
	}

	scheme, err := schemeOfScript(addrType)
	if err != nil {
		return 0, err
	}

	expected, err := waddrmgr.PkScriptForPubKey(pubKey, scheme)
	if err != nil {
		return 0, err
	}

	if !bytes.Equal(expected, pkScript) {
		return 0, ErrKeyMismatch
	}

	return addrType, nil
}

// signHash signs a signature hash with RFC6979 nonces and returns the DER
// signature followed by the hash type byte.
func signHash(privKey *btcec.PrivateKey, hash chainhash.Hash,
	hashType txscript.SigHashType) []byte {

	sig := ecdsa.Sign(privKey, hash[:])
	return append(sig.Serialize(), byte(hashType))
}

// signInput builds the signature script and witness of input idx spending
// prevOut with privKey.
func signInput(tx *wire.MsgTx, mid *SigHashMidstate, idx int,
	prevOut wtxmgr.UTXO, privKey *btcec.PrivateKey,
	hashType txscript.SigHashType) (*inputScripts, error) {

	pubKey := privKey.PubKey().SerializeCompressed()

	addrType, err := checkKeyControls(prevOut.PkScript, pubKey)
	if err != nil {
		return nil, err
	}

	switch addrType {
	// Legacy inputs push the signature and the key.
	case waddrmgr.PubKeyHash:
		hash, err := LegacySigHash(tx, idx, prevOut.PkScript, hashType)
		if err != nil {
			return nil, err
		}

		sigScript, err := txscript.NewScriptBuilder().
			AddData(signHash(privKey, hash, hashType)).
			AddData(pubKey).
			Script()
		if err != nil {
			return nil, err
		}

		return &inputScripts{sigScript: sigScript}, nil

	// Nested inputs push the witness program as redeem script and carry
	// the same witness as native ones.
	case waddrmgr.ScriptHash:
		redeemScript, err := waddrmgr.NestedWitnessScript(pubKey)
		if err != nil {
			return nil, err
		}

		sigScript, err := txscript.NewScriptBuilder().
			AddData(redeemScript).
			Script()
		if err != nil {
			return nil, err
		}

		witness, err := signWitnessV0(
			tx, mid, idx, prevOut, privKey, pubKey, hashType,
		)
		if err != nil {
			return nil, err
		}

		return &inputScripts{sigScript: sigScript, witness: witness}, nil

	default:
		witness, err := signWitnessV0(
			tx, mid, idx, prevOut, privKey, pubKey, hashType,
		)
		if err != nil {
			return nil, err
		}

		return &inputScripts{witness: witness}, nil
	}
}

// signWitnessV0 returns the P2WPKH witness [signature, pubkey] of input idx.
func signWitnessV0(tx *wire.MsgTx, mid *SigHashMidstate, idx int,
	prevOut wtxmgr.UTXO, privKey *btcec.PrivateKey, pubKey []byte,
	hashType txscript.SigHashType) (wire.TxWitness, error) {

	scriptCode, err := waddrmgr.PkScriptForPubKey(pubKey, waddrmgr.Legacy)
	if err != nil {
		return nil, err
	}

	hash, err := WitnessV0SigHash(
		tx, mid, idx, scriptCode, prevOut.Amount, hashType,
	)
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{signHash(privKey, hash, hashType), pubKey}, nil
}
