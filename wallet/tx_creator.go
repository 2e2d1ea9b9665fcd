// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet selects coins, builds and signs transactions for the
// accounts of an HD key tree.
package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
	"github.com/yyforyongyu/btcsigner/wtxmgr"
)

var (
	// ErrManualInputsEmpty is returned when manual inputs are specified but
	// the list is empty.
	ErrManualInputsEmpty = errors.New("manual inputs cannot be empty")

	// ErrDuplicatedUtxo is returned when a UTXO is specified multiple
	// times.
	ErrDuplicatedUtxo = errors.New("duplicated utxo")

	// ErrUnsupportedTxInputs is returned when the `Inputs` field of a
	// TxIntent is not of a supported type.
	ErrUnsupportedTxInputs = errors.New("unsupported tx inputs type")

	// ErrUtxoNotEligible is returned when a UTXO is not eligible to be
	// spent.
	ErrUtxoNotEligible = errors.New("utxo not eligible to spend")

	// ErrNoTxOutputs is returned when a transaction is created without any
	// outputs.
	ErrNoTxOutputs = errors.New("tx has no outputs")

	// ErrUnsupportedCoinSource is returned when the `Source` field of a
	// CoinSelectionPolicy is not of a supported type.
	ErrUnsupportedCoinSource = errors.New("unsupported coin source type")

	// ErrMissingInputs is returned when a transaction is created without
	// any inputs.
	ErrMissingInputs = errors.New("tx has no inputs")

	// ErrNilTxIntent is returned when a nil `TxIntent` is provided.
	ErrNilTxIntent = errors.New("nil TxIntent")

	// ErrInsufficientFunds is matched by every InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMissingChangeAddress is returned when the selected coins leave
	// change above the dust limit but no change address was given.
	ErrMissingChangeAddress = errors.New("missing change address")
)

// InsufficientFundsError is returned when the available coins can not pay
// for the outputs and the fee. It matches ErrInsufficientFunds.
type InsufficientFundsError struct {
	// Shortfall is the amount missing at the requested fee rate.
	Shortfall btcutil.Amount
}

// Error implements the error interface.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%v: short by %v", ErrInsufficientFunds, e.Shortfall)
}

// Is lets errors.Is match the error against ErrInsufficientFunds.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// CoinSelectionStrategy decides the order in which eligible outputs are
// accumulated until the payment and its fee are covered. Outputs it leaves
// out are never spent.
type CoinSelectionStrategy interface {
	// ArrangeCoins returns the outputs to try, in order, at the given fee
	// rate. The input slice is not modified.
	ArrangeCoins(eligible []wtxmgr.UTXO,
		feeRate btcunit.SatPerVByte) ([]wtxmgr.UTXO, error)
}

var (
	// CoinSelectionLargest always picks the largest available utxo to add
	// to the transaction next.
	CoinSelectionLargest CoinSelectionStrategy = &LargestFirstCoinSelector{}

	// CoinSelectionRandom randomly selects the next utxo to add to the
	// transaction. This strategy prevents the creation of ever smaller
	// utxos over time.
	CoinSelectionRandom CoinSelectionStrategy = &RandomCoinSelector{}
)

// TxIntent describes a payment to fund: the recipients, the fee rate, where
// inputs come from and where change goes.
//
// Leaving Inputs nil selects largest-first from every unspent output:
//
//	intent := &TxIntent{
//		Outputs:       outputs,
//		FeeRate:       feeRate,
//		ChangeAddress: fn.Some(changeAddr),
//	}
//
// InputsManual spends exactly the listed outpoints, InputsPolicy selects from
// a pool of coins with a strategy and a confirmation requirement.
type TxIntent struct {
	// Outputs specifies the recipients and amounts for the transaction.
	// This field is required.
	Outputs []wire.TxOut

	// Inputs defines the source of the inputs for the transaction. This
	// must be one of the Inputs implementations (InputsManual or
	// InputsPolicy).
	Inputs Inputs

	// ChangeAddress receives the change. It is only required when the
	// selected coins leave change above the dust limit.
	ChangeAddress fn.Option[string]

	// FeeRate specifies the desired fee rate for the transaction. This
	// field is required.
	FeeRate btcunit.SatPerVByte
}

// Inputs selects between spending an exact list of outputs (InputsManual)
// and letting the selector choose (InputsPolicy).
type Inputs interface {
	// isInputs is a marker method that is part of the sealed interface
	// pattern.
	isInputs()

	// validate performs a series of checks on the input source to ensure
	// it is well-formed before any coin is looked up.
	validate() error
}

// InputsManual implements the Inputs interface and specifies the exact UTXOs
// to be used as transaction inputs. When this is used, all automatic coin
// selection logic is bypassed.
type InputsManual struct {
	// UTXOs is a slice of outpoints to be used as the exact inputs for the
	// transaction, in this order.
	UTXOs []wire.OutPoint
}

// InputsPolicy implements the Inputs interface and specifies the policy
// for coin selection by the wallet.
type InputsPolicy struct {
	// Strategy is the algorithm to use for selecting coins (e.g., largest
	// first, random). If this is nil, CoinSelectionLargest is used.
	Strategy CoinSelectionStrategy

	// MinConfs is the minimum number of confirmations a UTXO must have to
	// be considered eligible for coin selection.
	MinConfs uint32

	// Source specifies the pool of UTXOs to select from. If this is nil,
	// every unspent output is a candidate.
	Source CoinSource
}

// isInputs marks InputsManual as an implementation of the Inputs interface.
func (*InputsManual) isInputs() {}

// validate performs validation on the manual inputs.
func (i *InputsManual) validate() error {
	return validateOutPoints(i.UTXOs)
}

// isInputs marks InputsPolicy as an implementation of the Inputs
// interface.
func (*InputsPolicy) isInputs() {}

// validate performs validation on the input policy.
func (i *InputsPolicy) validate() error {
	switch source := i.Source.(type) {
	case nil:
		return nil

	// If the source is a list of UTXOs, it must not be empty and must not
	// contain duplicates.
	case *CoinSourceUTXOs:
		return validateOutPoints(source.UTXOs)

	case *CoinSourceAddresses:
		if len(source.Addresses) == 0 {
			return fmt.Errorf("%w: no addresses",
				ErrUnsupportedCoinSource)
		}

		return nil

	// Any other source type is unsupported.
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedCoinSource, source)
	}
}

// A compile-time assertion to ensure that all types implementing the Inputs
// interface adhere to it.
var _ Inputs = (*InputsManual)(nil)
var _ Inputs = (*InputsPolicy)(nil)

// CoinSource is a sealed interface that defines the pool of UTXOs available
// for coin selection.
type CoinSource interface {
	// isCoinSource is a marker method that is part of the sealed interface
	// pattern.
	isCoinSource()
}

// CoinSourceUTXOs specifies that the wallet should select coins from a
// specific, predefined list of candidate UTXOs.
type CoinSourceUTXOs struct {
	// UTXOs is a slice of outpoints from which the coin selection
	// algorithm will choose. This list must not be empty.
	UTXOs []wire.OutPoint
}

// CoinSourceAddresses specifies that the wallet should only select coins
// paying to one of the addresses.
type CoinSourceAddresses struct {
	// Addresses lists the eligible addresses. This list must not be
	// empty.
	Addresses []string
}

// isCoinSource marks CoinSourceUTXOs as an implementation of the CoinSource
// interface.
func (*CoinSourceUTXOs) isCoinSource() {}

// isCoinSource marks CoinSourceAddresses as an implementation of the
// CoinSource interface.
func (*CoinSourceAddresses) isCoinSource() {}

// A compile-time assertion to ensure that all types implementing the CoinSource
// interface adhere to it.
var _ CoinSource = (*CoinSourceUTXOs)(nil)
var _ CoinSource = (*CoinSourceAddresses)(nil)

// validateOutPoints checks a slice of `wire.OutPoint`s for emptiness and
// duplicate entries. It returns `ErrManualInputsEmpty` if the slice is empty
// and `ErrDuplicatedUtxo` if any duplicates are found.
func validateOutPoints(outpoints []wire.OutPoint) error {
	if len(outpoints) == 0 {
		return ErrManualInputsEmpty
	}

	seenUTXOs := make(map[wire.OutPoint]struct{})
	for _, utxo := range outpoints {
		if _, ok := seenUTXOs[utxo]; ok {
			return fmt.Errorf("%w: %v", ErrDuplicatedUtxo, utxo)
		}

		seenUTXOs[utxo] = struct{}{}
	}

	return nil
}

// checkRecipient rejects outputs the address encoder does not recognize and
// outputs below the relay dust threshold of their script type.
func checkRecipient(output *wire.TxOut) error {
	if _, err := waddrmgr.ClassifyScript(output.PkScript); err != nil {
		return err
	}

	return txrules.CheckOutput(output, txrules.DefaultRelayFeePerKb)
}

// validateTxIntent performs a series of checks on a TxIntent to ensure it is
// well-formed. This function is for validation only and does not modify the
// TxIntent.
//
// The following checks are performed:
//   - The intent must have at least one output.
//   - Each output must pay to a known script type and must not be dust.
//   - The input source itself is validated via the `validate` method.
//   - The fee rate must be positive and sane.
func validateTxIntent(intent *TxIntent, inputs Inputs) error {
	// The intent must have at least one output.
	if len(intent.Outputs) == 0 {
		return ErrNoTxOutputs
	}

	for i := range intent.Outputs {
		if err := checkRecipient(&intent.Outputs[i]); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}

	if err := inputs.validate(); err != nil {
		return err
	}

	return checkFeeRate(intent.FeeRate)
}

// NewOutput returns an output paying amount to addr on net.
func NewOutput(addr string, amount btcutil.Amount,
	net netparams.Network) (wire.TxOut, error) {

	pkScript, err := waddrmgr.PayToAddrScript(addr, net)
	if err != nil {
		return wire.TxOut{}, err
	}

	return wire.TxOut{Value: int64(amount), PkScript: pkScript}, nil
}

// SpendPlan is the result of coin selection: the coins to spend, the outputs
// to create and the fee they leave. The sum of the inputs always equals the
// sum of the outputs plus the fee.
type SpendPlan struct {
	// Inputs are the selected coins in spending order.
	Inputs []wtxmgr.UTXO

	// Outputs are the recipients in intent order followed by the change
	// output, if any.
	Outputs []*wire.TxOut

	// ChangeIndex is the position of the change output in Outputs, or -1
	// when the change was folded into the fee.
	ChangeIndex int

	// Fee is the fee paid by the plan, including any folded change.
	Fee btcutil.Amount

	// FeeRate is the requested fee rate.
	FeeRate btcunit.SatPerVByte

	// VSize is the estimated virtual size of the signed transaction.
	VSize btcunit.VByte
}

// TotalInput returns the sum of the selected coins.
func (p *SpendPlan) TotalInput() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range p.Inputs {
		total += in.Amount
	}

	return total
}

// TotalOutput returns the sum of the outputs, change included.
func (p *SpendPlan) TotalOutput() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range p.Outputs {
		total += btcutil.Amount(out.Value)
	}

	return total
}

// Change returns the change output value, zero when there is none.
func (p *SpendPlan) Change() btcutil.Amount {
	if p.ChangeIndex < 0 {
		return 0
	}

	return btcutil.Amount(p.Outputs[p.ChangeIndex].Value)
}

// SelectAndBuildPlan selects coins from utxos that pay for the intent's
// outputs at its fee rate. Change above the dust limit goes to the intent's
// change address; smaller change is added to the fee. When the coins fall
// short an InsufficientFundsError carrying the shortfall is returned.
//
// The options WithSizeModel and WithDustLimit apply.
func SelectAndBuildPlan(utxos wtxmgr.UtxoReader, intent *TxIntent,
	net netparams.Network, opts ...TxOption) (*SpendPlan, error) {

	// Check that the intent is not nil.
	if intent == nil {
		return nil, ErrNilTxIntent
	}

	// If no input source is specified, an auto coin selection over every
	// unspent output will be used.
	inputs := intent.Inputs
	if inputs == nil {
		log.Debug("No input source specified, using default policy " +
			"for automatic coin selection")

		inputs = &InputsPolicy{}
	}

	if err := validateTxIntent(intent, inputs); err != nil {
		return nil, err
	}

	changeScript, err := resolveChangeScript(intent.ChangeAddress, net)
	if err != nil {
		return nil, err
	}

	o := applyTxOptions(opts)
	selector := &coinSelector{
		recipients:   copyOutputs(intent.Outputs),
		feeRate:      intent.FeeRate,
		changeScript: changeScript,
		sizeModel:    o.sizeModel,
		dustLimit:    o.dustLimit,
	}
	for _, out := range selector.recipients {
		selector.target += btcutil.Amount(out.Value)
	}

	var plan *SpendPlan
	switch inputs := inputs.(type) {
	case *InputsManual:
		plan, err = selector.selectManual(utxos, inputs)

	case *InputsPolicy:
		plan, err = selector.selectPolicy(utxos, inputs)

	default:
		return nil, ErrUnsupportedTxInputs
	}
	if err != nil {
		return nil, err
	}

	log.Debugf("Selected %d inputs worth %v for %d outputs: fee=%v, "+
		"vsize=%v, change=%v", len(plan.Inputs), plan.TotalInput(),
		len(plan.Outputs), plan.Fee, plan.VSize, plan.Change())

	return plan, nil
}

// resolveChangeScript decodes the optional change address.
func resolveChangeScript(addr fn.Option[string],
	net netparams.Network) (fn.Option[[]byte], error) {

	if addr.IsNone() {
		return fn.None[[]byte](), nil
	}

	pkScript, err := waddrmgr.PayToAddrScript(addr.UnsafeFromSome(), net)
	if err != nil {
		return fn.None[[]byte](), fmt.Errorf("change address: %w", err)
	}

	return fn.Some(pkScript), nil
}

// copyOutputs returns pointers to deep copies of outputs.
func copyOutputs(outputs []wire.TxOut) []*wire.TxOut {
	copied := make([]*wire.TxOut, 0, len(outputs))
	for _, out := range outputs {
		copied = append(copied, wire.NewTxOut(
			out.Value, bytes.Clone(out.PkScript),
		))
	}

	return copied
}

// coinSelector funds a fixed set of recipients.
type coinSelector struct {
	recipients   []*wire.TxOut
	target       btcutil.Amount
	feeRate      btcunit.SatPerVByte
	changeScript fn.Option[[]byte]
	sizeModel    SizeModel
	dustLimit    btcutil.Amount
}

// selectManual funds the recipients with exactly the listed coins.
func (c *coinSelector) selectManual(utxos wtxmgr.UtxoReader,
	inputs *InputsManual) (*SpendPlan, error) {

	selected := make([]wtxmgr.UTXO, 0, len(inputs.UTXOs))
	for _, outpoint := range inputs.UTXOs {
		utxo, err := utxos.FetchUTXO(outpoint)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUtxoNotEligible,
				outpoint)
		}

		selected = append(selected, utxo)
	}

	plan, shortfall, err := c.plan(selected)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, &InsufficientFundsError{Shortfall: shortfall}
	}

	return plan, nil
}

// selectPolicy adds coins in the order chosen by the policy's strategy until
// the recipients and the fee are paid for.
func (c *coinSelector) selectPolicy(utxos wtxmgr.UtxoReader,
	policy *InputsPolicy) (*SpendPlan, error) {

	// Fall back to the default coin selection strategy if none is supplied.
	strategy := policy.Strategy
	if strategy == nil {
		strategy = CoinSelectionLargest
	}

	eligible, err := getEligibleUTXOs(utxos, policy.Source, policy.MinConfs)
	if err != nil {
		return nil, err
	}

	arranged, err := strategy.ArrangeCoins(eligible, c.feeRate)
	if err != nil {
		return nil, err
	}

	// With no candidate at all the shortfall is the amount plus the fee
	// of a transaction without inputs.
	_, shortfall, err := c.plan(nil)
	if err != nil {
		return nil, err
	}

	selected := make([]wtxmgr.UTXO, 0, len(arranged))
	for _, coin := range arranged {
		selected = append(selected, coin)

		var plan *SpendPlan
		plan, shortfall, err = c.plan(selected)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			return plan, nil
		}
	}

	return nil, &InsufficientFundsError{Shortfall: shortfall}
}

// plan tries to fund the recipients with the selected coins. When the coins
// fall short it returns a nil plan and the shortfall.
func (c *coinSelector) plan(selected []wtxmgr.UTXO) (*SpendPlan,
	btcutil.Amount, error) {

	var total btcutil.Amount
	prevScripts := make([][]byte, 0, len(selected))
	for _, utxo := range selected {
		total += utxo.Amount
		prevScripts = append(prevScripts, utxo.PkScript)
	}

	vsize, err := c.sizeModel.EstimateVSize(prevScripts, c.recipients)
	if err != nil {
		return nil, 0, err
	}

	fee := c.feeRate.FeeForVSize(vsize)
	if total < c.target+fee {
		return nil, c.target + fee - total, nil
	}

	// The coins pay for the recipients. Find out whether what is left
	// after paying for an extra change output is worth keeping. Without a
	// change address a P2WPKH output is assumed.
	changeScript := c.changeScript.UnwrapOr(
		make([]byte, txsizes.P2WPKHPkScriptSize),
	)
	changeOutput := wire.NewTxOut(0, changeScript)

	withChange := make([]*wire.TxOut, 0, len(c.recipients)+1)
	withChange = append(withChange, c.recipients...)
	withChange = append(withChange, changeOutput)

	changeVSize, err := c.sizeModel.EstimateVSize(prevScripts, withChange)
	if err != nil {
		return nil, 0, err
	}

	changeFee := c.feeRate.FeeForVSize(changeVSize)
	change := total - c.target - changeFee

	if change <= c.dustLimit {
		log.Tracef("Folding %v of excess into the fee", total-c.target-fee)

		return &SpendPlan{
			Inputs:      selected,
			Outputs:     c.recipients,
			ChangeIndex: -1,
			Fee:         total - c.target,
			FeeRate:     c.feeRate,
			VSize:       vsize,
		}, 0, nil
	}

	if c.changeScript.IsNone() {
		return nil, 0, fmt.Errorf("%w: %v of change is due",
			ErrMissingChangeAddress, change)
	}

	changeOutput.Value = int64(change)

	return &SpendPlan{
		Inputs:      selected,
		Outputs:     withChange,
		ChangeIndex: len(c.recipients),
		Fee:         changeFee,
		FeeRate:     c.feeRate,
		VSize:       changeVSize,
	}, 0, nil
}

// getEligibleUTXOs returns the unspent outputs of source with at least
// minConfs confirmations. A nil source means every unspent output.
func getEligibleUTXOs(utxos wtxmgr.UtxoReader, source CoinSource,
	minConfs uint32) ([]wtxmgr.UTXO, error) {

	// Dispatch based on the type of the coin source.
	switch source := source.(type) {
	case nil:
		return utxos.UnspentOutputs(minConfs), nil

	case *CoinSourceUTXOs:
		return getEligibleUTXOsFromList(utxos, source, minConfs)

	case *CoinSourceAddresses:
		allowed := make(map[string]struct{}, len(source.Addresses))
		for _, addr := range source.Addresses {
			allowed[addr] = struct{}{}
		}

		unspent := utxos.UnspentOutputs(minConfs)
		eligible := make([]wtxmgr.UTXO, 0, len(unspent))
		for _, utxo := range unspent {
			if _, ok := allowed[utxo.Address]; ok {
				eligible = append(eligible, utxo)
			}
		}

		return eligible, nil

	// Any other source type is unsupported.
	default:
		return nil, ErrUnsupportedCoinSource
	}
}

// getEligibleUTXOsFromList returns a slice of eligible UTXOs from a specified
// list of outpoints.
func getEligibleUTXOsFromList(utxos wtxmgr.UtxoReader,
	source *CoinSourceUTXOs, minConfs uint32) ([]wtxmgr.UTXO, error) {

	eligible := make([]wtxmgr.UTXO, 0, len(source.UTXOs))
	for _, outpoint := range source.UTXOs {
		utxo, err := utxos.FetchUTXO(outpoint)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUtxoNotEligible,
				outpoint)
		}

		// A UTXO is only eligible if it has reached the required
		// number of confirmations.
		if utxo.Confirmations < minConfs {
			log.Warnf("Skipping user-specified UTXO %v "+
				"because it has %d confs but needs %d",
				utxo.OutPoint, utxo.Confirmations, minConfs)

			continue
		}

		eligible = append(eligible, utxo)
	}

	return eligible, nil
}

// inputYieldsPositively reports whether spending utxo adds more value than
// the fee for its own input at feeRate. The smallest input size of its
// script type is used, so a borderline input may still cost slightly more
// than it adds.
func inputYieldsPositively(utxo *wtxmgr.UTXO,
	feeRate btcunit.SatPerVByte) bool {

	inputSize := txsizes.GetMinInputVirtualSize(utxo.PkScript)
	inputFee := feeRate.FeeForVSize(btcunit.VByte(inputSize))

	return inputFee < utxo.Amount
}

// sortByAmount is a generic sortable type for sorting coins by their amount.
type sortByAmount []wtxmgr.UTXO

func (s sortByAmount) Len() int { return len(s) }
func (s sortByAmount) Less(i, j int) bool {
	return s[i].Amount < s[j].Amount
}
func (s sortByAmount) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// LargestFirstCoinSelector is an implementation of the CoinSelectionStrategy
// that always selects the largest coins first. Coins of equal value keep
// their relative order.
type LargestFirstCoinSelector struct{}

// ArrangeCoins takes a list of coins and arranges them according to the
// specified coin selection strategy and fee rate.
func (*LargestFirstCoinSelector) ArrangeCoins(eligible []wtxmgr.UTXO,
	_ btcunit.SatPerVByte) ([]wtxmgr.UTXO, error) {

	arranged := make([]wtxmgr.UTXO, len(eligible))
	copy(arranged, eligible)

	sort.Stable(sort.Reverse(sortByAmount(arranged)))

	return arranged, nil
}

// RandomCoinSelector tries the outputs that pay for themselves in random
// order.
type RandomCoinSelector struct{}

// ArrangeCoins takes a list of coins and arranges them according to the
// specified coin selection strategy and fee rate.
func (*RandomCoinSelector) ArrangeCoins(eligible []wtxmgr.UTXO,
	feeRate btcunit.SatPerVByte) ([]wtxmgr.UTXO, error) {

	// Skip inputs that do not raise the total transaction output
	// value at the requested fee rate.
	positivelyYielding := make([]wtxmgr.UTXO, 0, len(eligible))
	for _, output := range eligible {
		if !inputYieldsPositively(&output, feeRate) {
			continue
		}

		positivelyYielding = append(positivelyYielding, output)
	}

	rand.Shuffle(len(positivelyYielding), func(i, j int) {
		positivelyYielding[i], positivelyYielding[j] =
			positivelyYielding[j], positivelyYielding[i]
	})

	return positivelyYielding, nil
}
