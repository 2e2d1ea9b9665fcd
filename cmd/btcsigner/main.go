// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command btcsigner derives BIP44/49/84 accounts from a BIP39 mnemonic and
// builds and signs spends of the outputs listed in a UTXO snapshot.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
)

// command is a subcommand that registers itself on the parser.
type command interface {
	flags.Commander

	// Register adds the command to the parser.
	Register(parser *flags.Parser) error
}

// commands returns every subcommand bound to cfg.
func commands(cfg *config) []command {
	return []command{
		&newMnemonicCommand{cfg: cfg, Words: 12},
		&accountCommand{cfg: cfg},
		&addressesCommand{cfg: cfg, Count: 20},
		&sendCommand{cfg: cfg, Lookahead: 20},
	}
}

// run parses args and executes the selected command, writing results to out
// and reading secrets from in.
func run(args []string, in io.Reader, out io.Writer) error {
	cfg := defaultConfig()
	cfg.in = bufio.NewReader(in)
	cfg.out = out

	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	for _, cmd := range commands(cfg) {
		if err := cmd.Register(parser); err != nil {
			return err
		}
	}

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}

		if err := cfg.setup(); err != nil {
			return err
		}
		defer closeLogRotator()

		return cmd.Execute(args)
	}

	_, err := parser.ParseArgs(args)

	return err
}

func main() {
	err := run(os.Args[1:], os.Stdin, os.Stdout)
	if err == nil {
		return
	}

	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
		fmt.Fprintln(os.Stdout, err)
		return
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
