// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yyforyongyu/btcsigner/hdkey"
	"github.com/yyforyongyu/btcsigner/internal/zero"
	"github.com/yyforyongyu/btcsigner/mnemonic"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
	"golang.org/x/term"
)

// readSecret prints prompt to standard error and reads one line. Input from a
// terminal is not echoed.
func readSecret(reader *bufio.Reader, prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)

		return secret, err
	}

	line, err := reader.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return bytes.TrimRight(line, "\r\n"), nil
}

// promptMaster asks for a mnemonic and its passphrase and returns the master
// node of the resulting seed.
func promptMaster(reader *bufio.Reader,
	net netparams.Network) (*hdkey.ExtendedKey, error) {

	sentence, err := readSecret(reader, "Mnemonic: ")
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(sentence)

	passphrase, err := readSecret(reader, "Passphrase (may be empty): ")
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(passphrase)

	return masterFromMnemonic(string(sentence), string(passphrase), net)
}

// masterFromMnemonic stretches the mnemonic and derives the master node.
func masterFromMnemonic(sentence, passphrase string,
	net netparams.Network) (*hdkey.ExtendedKey, error) {

	seed, err := mnemonic.ToSeed(sentence, passphrase)
	if err != nil {
		return nil, err
	}
	defer seed.Zero()

	return hdkey.NewMaster(seed.Bytes(), net)
}
