// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

// addressSecrets is a txauthor.SecretsSource serving private keys by
// address.
type addressSecrets struct {
	params *chaincfg.Params
	keys   map[string]*btcec.PrivateKey
}

var _ txauthor.SecretsSource = (*addressSecrets)(nil)

func (s *addressSecrets) GetKey(addr btcutil.Address) (*btcec.PrivateKey,
	bool, error) {

	key, ok := s.keys[addr.EncodeAddress()]
	if !ok {
		return nil, false, errMock
	}

	return key, true, nil
}

func (s *addressSecrets) GetScript(btcutil.Address) ([]byte, error) {
	return nil, errMock
}

func (s *addressSecrets) ChainParams() *chaincfg.Params {
	return s.params
}

// newAddressSecrets collects the keys of prevOuts from keys.
func newAddressSecrets(t *testing.T, keys *KeyRing,
	prevOuts []wtxmgr.UTXO) *addressSecrets {

	t.Helper()

	params, err := testNet.Params()
	require.NoError(t, err)

	secrets := &addressSecrets{
		params: params,
		keys:   make(map[string]*btcec.PrivateKey),
	}
	for _, prevOut := range prevOuts {
		key, err := keys.PrivKey(prevOut.PkScript)
		require.NoError(t, err)

		secrets.keys[prevOut.Address] = key
	}

	return secrets
}

// signerFixture builds an unsigned transaction spending numIn coins of the
// scheme's test account to numOut foreign outputs.
func signerFixture(t *testing.T, scheme waddrmgr.AddressScheme, numIn,
	numOut int, opts ...TxOption) (*KeyRing, *UnsignedTx) {

	t.Helper()

	keys := testKeyRing(t, scheme)

	inputs := make([]wtxmgr.UTXO, 0, numIn)
	for i := range numIn {
		addr := testAddress(t, keys, uint32(i%testLookahead))
		inputs = append(inputs, testUTXO(
			byte(i+1), addr, btcutil.Amount(20_000+1_000*i),
		))
	}

	outputs := make([]*wire.TxOut, 0, numOut)
	for i := range numOut {
		outputs = append(outputs, wire.NewTxOut(
			int64(10_000+i), foreignScript(t, byte(i)),
		))
	}

	utx, err := BuildTx(inputs, outputs, opts...)
	require.NoError(t, err)

	return keys, utx
}

// requireValid executes the scripts of every input of signed.
func requireValid(t *testing.T, signed *SignedTx) {
	t.Helper()

	prevScripts, values := prevOutData(signed.PrevOuts())
	require.NoError(t, validateMsgTx(signed.Tx(), prevScripts, values))
	require.NoError(t, signed.Verify())
}

// TestSignTxSchemes signs inputs of every scheme and checks the result with
// the script engine and against txauthor.
func TestSignTxSchemes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		scheme      waddrmgr.AddressScheme
		wantWitness bool
		wantScript  bool
	}{
		{
			name:       "p2pkh",
			scheme:     waddrmgr.Legacy,
			wantScript: true,
		},
		{
			name:        "p2sh-p2wpkh",
			scheme:      waddrmgr.NestedSegwit,
			wantWitness: true,
			wantScript:  true,
		},
		{
			name:        "p2wpkh",
			scheme:      waddrmgr.NativeSegwit,
			wantWitness: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange.
			keys, utx := signerFixture(t, tc.scheme, 3, 2)

			// Act.
			signed, err := SignTx(t.Context(), utx, keys)
			require.NoError(t, err)

			// Assert: The scripts are of the expected shape and
			// valid.
			for _, txIn := range signed.Tx().TxIn {
				require.Equal(t, tc.wantScript,
					len(txIn.SignatureScript) > 0)
				require.Equal(t, tc.wantWitness,
					len(txIn.Witness) > 0)
			}
			requireValid(t, signed)

			// RFC6979 nonces make the result byte identical to
			// txauthor signing the same transaction.
			tx := utx.Tx()
			prevScripts, values := prevOutData(utx.PrevOuts())
			err = txauthor.AddAllInputScripts(
				tx, prevScripts, values,
				newAddressSecrets(t, keys, utx.PrevOuts()),
			)
			require.NoError(t, err)

			var want bytes.Buffer
			require.NoError(t, tx.Serialize(&want))
			require.Equal(t, want.Bytes(), signed.Serialize())
			require.Equal(t, tx.TxHash(), signed.TxID())
		})
	}
}

// TestSignTxHashTypes signs with every hash type.
func TestSignTxHashTypes(t *testing.T) {
	t.Parallel()

	for _, scheme := range waddrmgr.Schemes() {
		for _, hashType := range testHashTypes {
			// Two inputs and one output cover SIGHASH_SINGLE without
			// a matching output.
			keys, utx := signerFixture(t, scheme, 2, 1)

			signed, err := SignTx(
				t.Context(), utx, keys, WithSigHashType(hashType),
			)
			require.NoError(t, err, "%v %v", scheme, hashType)
			requireValid(t, signed)

			for _, txIn := range signed.Tx().TxIn {
				sig := txIn.Witness
				if scheme == waddrmgr.Legacy {
					pushes, err := txscript.PushedData(
						txIn.SignatureScript,
					)
					require.NoError(t, err)
					sig = pushes
				}

				require.Equal(t, byte(hashType),
					sig[0][len(sig[0])-1])
			}
		}
	}

	keys, utx := signerFixture(t, waddrmgr.NativeSegwit, 1, 1)
	_, err := SignTx(
		t.Context(), utx, keys, WithSigHashType(txscript.SigHashOld),
	)
	require.ErrorIs(t, err, ErrInvalidSigHashType)
}

// TestSigningSessionStates walks a session through its states.
func TestSigningSessionStates(t *testing.T) {
	t.Parallel()

	// Arrange.
	keys, utx := signerFixture(t, waddrmgr.NativeSegwit, 3, 1)
	session, err := NewSigningSession(utx)
	require.NoError(t, err)
	require.Equal(t, StateUnsigned, session.State())

	_, err = session.Finalize()
	require.ErrorIs(t, err, ErrNotFullySigned)

	// Act: Sign the middle input alone.
	require.NoError(t, session.SignInput(1, keys))

	// Assert.
	require.Equal(t, StatePartiallySigned, session.State())
	require.True(t, session.IsSigned(1))
	require.False(t, session.IsSigned(0))
	require.False(t, session.IsSigned(7))
	require.ErrorIs(t, session.SignInput(1, keys), ErrAlreadySigned)
	require.ErrorIs(t, session.SignInput(3, keys), ErrInputIndex)

	_, err = session.Finalize()
	require.ErrorIs(t, err, ErrNotFullySigned)

	// Act: Sign the rest.
	require.NoError(t, session.SignAll(t.Context(), keys))

	// Assert.
	require.Equal(t, StateFullySigned, session.State())

	signed, err := session.Finalize()
	require.NoError(t, err)
	requireValid(t, signed)

	// Signing again changes nothing.
	require.NoError(t, session.SignAll(t.Context(), keys))
	again, err := session.Finalize()
	require.NoError(t, err)
	require.Equal(t, signed.Serialize(), again.Serialize())
}

// TestSignStateString checks the state names.
func TestSignStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "unsigned", StateUnsigned.String())
	require.Equal(t, "partially signed", StatePartiallySigned.String())
	require.Equal(t, "fully signed", StateFullySigned.String())
	require.Equal(t, "SignState(9)", SignState(9).String())
}

// TestSignMissingPrivateKey checks that an input without a key fails the
// whole signing and leaves every input unsigned.
func TestSignMissingPrivateKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		key  *btcec.PrivateKey
		err  error
	}{
		{
			name: "unknown script",
			err:  ErrMissingPrivateKey,
		},
		{
			name: "nil key without error",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: The key source knows the key of the first
			// input only.
			keys, utx := signerFixture(t, waddrmgr.NativeSegwit, 2, 1)
			prevOuts := utx.PrevOuts()

			key, err := keys.PrivKey(prevOuts[0].PkScript)
			require.NoError(t, err)

			source := &mockKeySource{}
			source.On("PrivKey", prevOuts[0].PkScript).Return(key, nil)
			source.On("PrivKey", prevOuts[1].PkScript).Return(
				tc.key, tc.err,
			)

			session, err := NewSigningSession(utx)
			require.NoError(t, err)

			// Act.
			err = session.SignAll(t.Context(), source)

			// Assert.
			require.ErrorIs(t, err, ErrMissingPrivateKey)
			require.Contains(t, err.Error(), "input 1")
			require.Equal(t, StateUnsigned, session.State())
		})
	}
}

// TestSignKeyMismatch checks that a key not controlling the spent script is
// refused.
func TestSignKeyMismatch(t *testing.T) {
	t.Parallel()

	keys, utx := signerFixture(t, waddrmgr.NativeSegwit, 1, 1)

	// The key of another address of the same account.
	other := testAddress(t, keys, 3)
	wrongKey, err := keys.PrivKey(other.PkScript)
	require.NoError(t, err)

	source := &mockKeySource{}
	source.On("PrivKey", mock.Anything).Return(wrongKey, nil)

	_, err = SignTx(t.Context(), utx, source)
	require.ErrorIs(t, err, ErrKeyMismatch)
}

// TestSignZeroesKeys checks that keys handed to the signer are wiped.
func TestSignZeroesKeys(t *testing.T) {
	t.Parallel()

	keys, utx := signerFixture(t, waddrmgr.NativeSegwit, 1, 1)
	script := utx.PrevOuts()[0].PkScript

	key, err := keys.PrivKey(script)
	require.NoError(t, err)

	source := &mockKeySource{}
	source.On("PrivKey", script).Return(key, nil).Once()

	signed, err := SignTx(t.Context(), utx, source)
	require.NoError(t, err)
	requireValid(t, signed)

	source.AssertExpectations(t)
	require.True(t, key.Key.IsZero())
}

// TestSignTxParallel signs many inputs at once.
func TestSignTxParallel(t *testing.T) {
	t.Parallel()

	keys, utx := signerFixture(t, waddrmgr.NestedSegwit, 40, 3)

	signed, err := SignTx(t.Context(), utx, keys)
	require.NoError(t, err)
	requireValid(t, signed)

	// Inputs are merged in input order.
	for i, txIn := range signed.Tx().TxIn {
		require.Equal(t, utx.PrevOuts()[i].OutPoint,
			txIn.PreviousOutPoint)
	}
}

// TestSignTxCanceled checks that a canceled context stops signing.
func TestSignTxCanceled(t *testing.T) {
	t.Parallel()

	keys, utx := signerFixture(t, waddrmgr.NativeSegwit, 3, 1)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := SignTx(ctx, utx, keys)
	require.ErrorIs(t, err, context.Canceled)
}

// TestSignedTxVerify checks that tampering is detected.
func TestSignedTxVerify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		scheme waddrmgr.AddressScheme
		tamper func(t *testing.T, signed *SignedTx)
		err    error
	}{
		{
			name:   "changed output value",
			scheme: waddrmgr.NativeSegwit,
			tamper: func(_ *testing.T, signed *SignedTx) {
				signed.tx.TxOut[0].Value--
			},
			err: ErrInvalidSignature,
		},
		{
			name:   "changed legacy output value",
			scheme: waddrmgr.Legacy,
			tamper: func(_ *testing.T, signed *SignedTx) {
				signed.tx.TxOut[0].Value--
			},
			err: ErrInvalidSignature,
		},
		{
			name:   "changed spent amount",
			scheme: waddrmgr.NestedSegwit,
			tamper: func(_ *testing.T, signed *SignedTx) {
				signed.prevOuts[0].Amount++
			},
			err: ErrInvalidSignature,
		},
		{
			name:   "swapped public key",
			scheme: waddrmgr.NativeSegwit,
			tamper: func(_ *testing.T, signed *SignedTx) {
				witness := signed.tx.TxIn[0].Witness
				witness[1] = signed.tx.TxIn[1].Witness[1]
			},
			err: ErrKeyMismatch,
		},
		{
			name:   "missing witness",
			scheme: waddrmgr.NativeSegwit,
			tamper: func(_ *testing.T, signed *SignedTx) {
				signed.tx.TxIn[1].Witness = nil
			},
			err: ErrInvalidSignature,
		},
		{
			name:   "nested without redeem script",
			scheme: waddrmgr.NestedSegwit,
			tamper: func(_ *testing.T, signed *SignedTx) {
				signed.tx.TxIn[0].SignatureScript = nil
			},
			err: ErrInvalidSignature,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			keys, utx := signerFixture(t, tc.scheme, 2, 1)
			signed, err := SignTx(t.Context(), utx, keys)
			require.NoError(t, err)

			tc.tamper(t, signed)

			err = signed.Verify()
			require.ErrorIs(t, err, tc.err)
		})
	}
}

// TestSignedTxAccessors checks the derived values of a signed transaction.
func TestSignedTxAccessors(t *testing.T) {
	t.Parallel()

	keys, utx := signerFixture(t, waddrmgr.NativeSegwit, 2, 2)
	signed, err := SignTx(t.Context(), utx, keys)
	require.NoError(t, err)

	tx := signed.Tx()
	require.Equal(t, tx.TxHash(), signed.TxID())
	require.Equal(t, tx.WitnessHash(), signed.WTxID())
	require.NotEqual(t, signed.TxID(), signed.WTxID())

	weight := tx.SerializeSizeStripped()*3 + tx.SerializeSize()
	require.EqualValues(t, weight, signed.Weight())
	require.EqualValues(t, (weight+3)/4, signed.VSize())

	require.Equal(t, utx.Fee(), signed.Fee())
	require.True(t, signed.FeeRate().Equal(
		btcunit.CalcSatPerVByte(signed.Fee(), signed.VSize()),
	))

	raw, err := hex.DecodeString(signed.Hex())
	require.NoError(t, err)

	decoded := wire.NewMsgTx(0)
	require.NoError(t, decoded.Deserialize(bytes.NewReader(raw)))
	require.Equal(t, signed.TxID(), decoded.TxHash())
	require.Equal(t, -1, signed.ChangeIndex())
}

// TestSignErrorIsWrapped checks that signing errors name the input.
func TestSignErrorIsWrapped(t *testing.T) {
	t.Parallel()

	_, utx := signerFixture(t, waddrmgr.NativeSegwit, 1, 1)

	source := &mockKeySource{}
	source.On("PrivKey", mock.Anything).Return(nil, errMock)

	_, err := SignTx(t.Context(), utx, source)
	require.ErrorIs(t, err, errMock)
	require.Contains(t, err.Error(), "input 0")
}
