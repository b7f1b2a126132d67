// faucet runs and administers a lamport faucet program on a local ledger.
//
// The node keeps accounts in a badger database (or in memory), executes
// signed instructions against the faucet and System programs, and serves a
// JSON-RPC API with Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildTime = "unknown"
)

const usage = `Usage: faucet <command> [flags]

Commands:
  serve                     Run the JSON-RPC, metrics and health servers
  init                      Create and initialize the faucet account
  request <pubkey>          Pay one distribution to pubkey
  replenish <lamports>      Move lamports from the administrator to the faucet
  balance [pubkey]          Print the balance of pubkey (default: the faucet)
  snapshot export <file>    Write the ledger to a compressed snapshot
  snapshot import <file>    Load a snapshot into the ledger
  keygen                    Write a new keypair file
  version                   Print version information

Run 'faucet <command> --help' for the flags of a command.
`

var errUsage = errors.New("invalid usage")

type command func(ctx context.Context, args []string, out io.Writer) error

var commands = map[string]command{
	"serve":     runServe,
	"init":      runInit,
	"request":   runRequest,
	"replenish": runReplenish,
	"balance":   runBalance,
	"snapshot":  runSnapshot,
	"keygen":    runKeygen,
	"version":   runVersion,
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
			fmt.Fprint(out, usage)
			return nil
		}
		fmt.Fprint(out, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return cmd(ctx, args[1:], out)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runVersion(_ context.Context, _ []string, out io.Writer) error {
	fmt.Fprintf(out, "faucet %s (%s)\n", Version, GitCommit)
	fmt.Fprintf(out, "Build time: %s\n", BuildTime)
	return nil
}
