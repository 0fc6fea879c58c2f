// Package main defines the order relay's command line entrypoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/node"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	configFileFlag,
	httpAddressFlag,
	snapshotPathFlag,
	custodyAddressFlag,
	verbosityFlag,
}

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "Path to a YAML configuration file",
	}
	httpAddressFlag = &cli.StringFlag{
		Name:  "http-address",
		Usage: "host:port the HTTP server listens on",
	}
	snapshotPathFlag = &cli.StringFlag{
		Name:  "snapshot-path",
		Usage: "File the relay persists its state snapshot to",
	}
	custodyAddressFlag = &cli.StringFlag{
		Name:  "custody-address",
		Usage: "Custody account depositors fund. A throwaway address is generated when unset",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:    "relay",
		Usage:   "privacy-preserving prediction market order relay",
		Action:  startNode,
		Flags:   appFlags,
		Version: version,
	}
	app.Before = func(cliCtx *cli.Context) error {
		level, err := logrus.ParseLevel(cliCtx.String(verbosityFlag.Name))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func startNode(cliCtx *cli.Context) error {
	if err := configure(cliCtx); err != nil {
		return err
	}
	n, err := node.New(context.Background())
	if err != nil {
		return fmt.Errorf("could not assemble relay node: %w", err)
	}
	n.Start()
	return nil
}

// configure loads the optional config file and overlays flag values on it.
func configure(cliCtx *cli.Context) error {
	cfg := params.DefaultRelayConfig()
	if path := cliCtx.String(configFileFlag.Name); path != "" {
		loaded, err := params.LoadFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if v := cliCtx.String(httpAddressFlag.Name); v != "" {
		cfg.HTTPAddr = v
	}
	if v := cliCtx.String(snapshotPathFlag.Name); v != "" {
		cfg.SnapshotPath = v
	}
	if v := cliCtx.String(custodyAddressFlag.Name); v != "" {
		cfg.CustodyAddress = v
	}
	params.OverrideRelayConfig(cfg)
	return nil
}
