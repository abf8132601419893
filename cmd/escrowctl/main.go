// escrowctl manages the escrow signer keystore, derives vault authorities
// and serves the custody HTTP API.
//
// Usage:
//
//	escrowctl keygen --file signer.cwt
//	escrowctl derive --program <id> escrow vault-0001
//	escrowctl serve
//	escrowctl simulate
package main

import (
	"github.com/AlexZinkM/escrow-custody/internal/logging"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
)

type cli struct {
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"LOG_LEVEL"`
	LogFormat string `help:"Log encoding (json or console)." default:"json" env:"LOG_FORMAT"`

	Keygen   keygenCmd   `cmd:"" help:"Create an encrypted signer keystore."`
	Derive   deriveCmd   `cmd:"" help:"Derive a vault authority from a seed path."`
	Serve    serveCmd    `cmd:"" help:"Serve the custody HTTP API."`
	Simulate simulateCmd `cmd:"" help:"Run a deposit, release and close against an in-memory ledger."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("escrowctl"),
		kong.Description("Custodial token transfers for escrow vaults."),
		kong.UsageOnError(),
	)

	log, err := logging.New(c.LogLevel, c.LogFormat)
	kctx.FatalIfErrorf(err)
	defer log.Sync()

	if err := kctx.Run(log); err != nil {
		log.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
		kctx.Exit(1)
	}
}
