// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/yyforyongyu/btcsigner/pkg/netparams"
	"github.com/yyforyongyu/btcsigner/waddrmgr"
)

const (
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "btcsigner.log"
	defaultScheme      = "native-segwit"
)

var (
	defaultAppDataDir = btcutil.AppDataDir("btcsigner", false)
	defaultLogDir     = filepath.Join(defaultAppDataDir, defaultLogDirname)
)

// config defines the global options shared by every command.
type config struct {
	Network       string `short:"n" long:"network" description:"Bitcoin network to use" choice:"mainnet" choice:"testnet" choice:"regtest" default:"mainnet"`
	LogDir        string `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool   `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	net netparams.Network
	in  *bufio.Reader
	out io.Writer
}

// defaultConfig returns the configuration before flags are parsed.
func defaultConfig() *config {
	return &config{
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
	}
}

// setup validates the parsed options and initializes logging. It runs before
// every command.
func (c *config) setup() error {
	net, err := netparams.Parse(c.Network)
	if err != nil {
		return err
	}
	c.net = net

	if err := parseAndSetDebugLevels(c.DebugLevel); err != nil {
		return err
	}

	if c.NoFileLogging {
		return nil
	}

	// Logs of different networks are kept apart.
	logFile := filepath.Join(
		cleanAndExpandPath(c.LogDir), net.String(),
		defaultLogFilename,
	)

	return initLogRotator(logFile)
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to the current user's home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: os.ExpandEnv doesn't work with Windows-style %VARIABLE%, but
	// the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// accountOptions selects an account of the wallet.
type accountOptions struct {
	Scheme  string `short:"s" long:"scheme" description:"Address scheme of the account" choice:"legacy" choice:"p2sh-segwit" choice:"native-segwit" default:"native-segwit"`
	Account uint32 `short:"a" long:"account" description:"Account number"`
}

// scheme returns the selected address scheme.
func (o *accountOptions) scheme() (waddrmgr.AddressScheme, error) {
	name := o.Scheme
	if name == "" {
		name = defaultScheme
	}

	scheme, err := waddrmgr.ParseScheme(name)
	if err != nil {
		return 0, fmt.Errorf("invalid scheme: %w", err)
	}

	return scheme, nil
}
