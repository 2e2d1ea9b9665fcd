// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/yyforyongyu/btcsigner/chain"
	"github.com/yyforyongyu/btcsigner/mnemonic"
	"github.com/yyforyongyu/btcsigner/pkg/btcunit"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
	"github.com/yyforyongyu/btcsigner/wallet"
)

var (
	// errInvalidRecipient is returned for a --to value that is not of the
	// form <address>:<satoshis>.
	errInvalidRecipient = errors.New("invalid recipient")

	// errUnknownSizeModel is returned for an unknown --sizemodel value.
	errUnknownSizeModel = errors.New("unknown size model")
)

type newMnemonicCommand struct {
	cfg *config

	Words int `long:"words" description:"Number of words" choice:"12" choice:"24"`
}

func (x *newMnemonicCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"newmnemonic",
		"Generate a new BIP39 mnemonic",
		"Generate a mnemonic from fresh entropy of the operating "+
			"system and print it to standard output",
		x,
	)

	return err
}

func (x *newMnemonicCommand) Execute(_ []string) error {
	m, err := mnemonic.Generate(x.Words)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(x.cfg.out, string(m))

	return err
}

type accountCommand struct {
	cfg *config
	accountOptions
}

func (x *accountCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"account",
		"Print the extended public key of an account",
		"Read a mnemonic from standard input and print the name, "+
			"derivation path and extended public key of the "+
			"selected account",
		x,
	)

	return err
}

func (x *accountCommand) Execute(_ []string) error {
	scheme, err := x.scheme()
	if err != nil {
		return err
	}

	master, err := promptMaster(x.cfg.in, x.cfg.net)
	if err != nil {
		return err
	}
	defer master.Zero()

	acct, err := waddrmgr.NewAccount(master, scheme, x.Account)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(x.cfg.out, "account: %s\npath: %v\nxpub: %s\n",
		acct.Name(), acct.Path(), acct.XPub())

	return err
}

type addressesCommand struct {
	cfg *config
	accountOptions

	XPub   string `long:"xpub" description:"Extended public key of the account; the mnemonic is asked for when empty"`
	Change bool   `long:"change" description:"List change addresses"`
	Start  uint32 `long:"start" description:"Index of the first address"`
	Count  uint32 `long:"count" description:"Number of addresses"`
}

func (x *addressesCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"addresses",
		"List the addresses of an account",
		"Derive and print a range of receive or change addresses "+
			"of an account, from its extended public key or from "+
			"the mnemonic",
		x,
	)

	return err
}

// account restores the selected account from the xpub or the mnemonic.
func (x *addressesCommand) account() (*waddrmgr.Account, error) {
	scheme, err := x.scheme()
	if err != nil {
		return nil, err
	}

	if x.XPub != "" {
		path, err := waddrmgr.BuildAccountPath(
			scheme, x.cfg.net, x.Account,
		)
		if err != nil {
			return nil, err
		}

		return waddrmgr.ParseAccount(x.XPub, path, x.cfg.net)
	}

	master, err := promptMaster(x.cfg.in, x.cfg.net)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	return waddrmgr.NewAccount(master, scheme, x.Account)
}

func (x *addressesCommand) Execute(_ []string) error {
	acct, err := x.account()
	if err != nil {
		return err
	}

	branch := waddrmgr.ExternalBranch
	if x.Change {
		branch = waddrmgr.InternalBranch
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	addrs, err := acct.DeriveAddresses(ctx, branch, x.Start, x.Count)
	if err != nil {
		return err
	}

	for _, addr := range addrs {
		_, err := fmt.Fprintf(x.cfg.out, "%v\t%s\n", addr.Path,
			addr.Address)
		if err != nil {
			return err
		}
	}

	return nil
}

type sendCommand struct {
	cfg *config
	accountOptions

	Snapshot      string   `long:"snapshot" description:"JSON file listing unspent outputs and fee estimates" required:"true"`
	To            []string `long:"to" description:"Recipient as <address>:<satoshis>; may be repeated" required:"true"`
	FeeRate       float64  `long:"feerate" description:"Fee rate in sat/vB; overrides --fee"`
	Fee           string   `long:"fee" description:"Fee estimate to use" choice:"slow" choice:"normal" choice:"fast" default:"slow"`
	MinConf       uint32   `long:"minconf" description:"Minimum confirmations of spent outputs"`
	ChangeAddress string   `long:"changeaddress" description:"Address receiving the change; the account's change address is used when empty"`
	ChangeIndex   uint32   `long:"changeindex" description:"Index of the account's change address"`
	Lookahead     uint32   `long:"lookahead" description:"Addresses per branch searched for spendable outputs"`
	BIP69         bool     `long:"bip69" description:"Sort inputs and outputs as in BIP69"`
	RBF           bool     `long:"rbf" description:"Signal replaceability"`
	LockTime      uint32   `long:"locktime" description:"Transaction lock time"`
	SizeModel     string   `long:"sizemodel" description:"Size estimation used for fees" choice:"simple" choice:"exact" default:"simple"`
	Psbt          bool     `long:"psbt" description:"Print an unsigned PSBT instead of a signed transaction"`
}

func (x *sendCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"send",
		"Create and sign a transaction",
		"Select outputs of the account from the snapshot, pay the "+
			"recipients and print the signed transaction as hex "+
			"or, with --psbt, the unsigned transaction as base64 "+
			"PSBT",
		x,
	)

	return err
}

// parseRecipients converts <address>:<satoshis> values to outputs.
func parseRecipients(values []string,
	net netparams.Network) ([]wire.TxOut, error) {

	outputs := make([]wire.TxOut, 0, len(values))
	for _, value := range values {
		addr, amount, ok := strings.Cut(value, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", errInvalidRecipient,
				value)
		}

		sats, err := strconv.ParseInt(amount, 10, 64)
		if err != nil || sats <= 0 {
			return nil, fmt.Errorf("%w: amount of %q",
				errInvalidRecipient, value)
		}

		pkScript, err := waddrmgr.PayToAddrScript(addr, net)
		if err != nil {
			return nil, err
		}

		outputs = append(outputs, wire.TxOut{
			Value:    sats,
			PkScript: pkScript,
		})
	}

	return outputs, nil
}

// parseSizeModel returns the size model with the given name.
func parseSizeModel(name string) (wallet.SizeModel, error) {
	for _, m := range []wallet.SizeModel{
		wallet.SizeModelSimple, wallet.SizeModelExact,
	} {
		if m.String() == name {
			return m, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", errUnknownSizeModel, name)
}

// request builds the spend request of the command line.
func (x *sendCommand) request() (*wallet.SpendRequest, error) {
	outputs, err := parseRecipients(x.To, x.cfg.net)
	if err != nil {
		return nil, err
	}

	preset, err := wallet.ParseFeePreset(x.Fee)
	if err != nil {
		return nil, err
	}

	model, err := parseSizeModel(x.SizeModel)
	if err != nil {
		return nil, err
	}

	req := &wallet.SpendRequest{
		Outputs:     outputs,
		FeePreset:   preset,
		ChangeIndex: x.ChangeIndex,
		Options: []wallet.TxOption{
			wallet.WithSizeModel(model),
		},
	}

	if x.MinConf > 0 {
		req.Inputs = &wallet.InputsPolicy{MinConfs: x.MinConf}
	}
	if x.FeeRate > 0 {
		req.FeeRate = fn.Some(btcunit.SatPerVByteFromFloat(x.FeeRate))
	}
	if x.ChangeAddress != "" {
		req.ChangeAddress = fn.Some(x.ChangeAddress)
	}
	if x.LockTime > 0 {
		req.Options = append(req.Options, wallet.WithLockTime(x.LockTime))
	}
	if x.RBF {
		req.Options = append(req.Options, wallet.WithRBF())
	}
	if x.BIP69 {
		req.Options = append(req.Options, wallet.WithBIP69())
	}

	return req, nil
}

func (x *sendCommand) Execute(_ []string) error {
	scheme, err := x.scheme()
	if err != nil {
		return err
	}

	req, err := x.request()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	master, err := promptMaster(x.cfg.in, x.cfg.net)
	if err != nil {
		return err
	}

	keys, err := wallet.NewKeyRing(
		ctx, master, scheme, x.Account, x.Lookahead,
	)
	master.Zero()
	if err != nil {
		return err
	}
	defer keys.Zero()

	f, err := os.Open(x.Snapshot)
	if err != nil {
		return err
	}
	defer f.Close()

	backend, err := chain.LoadSnapshot(f, x.cfg.net, keys.IsMine)
	if err != nil {
		return err
	}

	spender := wallet.NewSpender(backend, keys)

	if x.Psbt {
		utx, err := spender.CreateTransaction(ctx, req)
		if err != nil {
			return err
		}

		b64, err := wallet.ExportPsbtBase64(utx, keys, req.Options...)
		if err != nil {
			return err
		}

		log.Infof("Created PSBT spending %d inputs, fee=%v",
			len(utx.PrevOuts()), utx.Fee())

		_, err = fmt.Fprintln(x.cfg.out, b64)

		return err
	}

	signed, err := spender.Spend(ctx, req)
	if err != nil {
		return err
	}

	log.Infof("Transaction %v: vsize=%v, fee=%v, fee rate=%v",
		signed.TxID(), signed.VSize(), signed.Fee(), signed.FeeRate())

	_, err = fmt.Fprintln(x.cfg.out, signed.Hex())

	return err
}
