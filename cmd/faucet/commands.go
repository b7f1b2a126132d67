package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/devwraithe/simple-faucet-token/pkg/client"
	"github.com/devwraithe/simple-faucet-token/pkg/config"
	"github.com/devwraithe/simple-faucet-token/pkg/crypto"
	"github.com/devwraithe/simple-faucet-token/pkg/metrics"
	"github.com/devwraithe/simple-faucet-token/pkg/rpc"
	"github.com/devwraithe/simple-faucet-token/pkg/runtime"
	"github.com/devwraithe/simple-faucet-token/pkg/snapshot"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/faucet"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

func genesis(cfg config.Config, n *node) (runtime.Genesis, error) {
	admin, err := loadOrCreateKeypair(cfg.Faucet.AdminKeypair, n.logger)
	if err != nil {
		return runtime.Genesis{}, fmt.Errorf("admin keypair: %w", err)
	}
	faucetKey, err := loadOrCreateKeypair(cfg.Faucet.FaucetKeypair, n.logger)
	if err != nil {
		return runtime.Genesis{}, fmt.Errorf("faucet keypair: %w", err)
	}
	return runtime.Genesis{
		ProgramID:          n.programID,
		Admin:              admin,
		Faucet:             faucetKey,
		AdminLamports:      types.Lamports(cfg.Faucet.AdminLamports),
		FaucetLamports:     types.Lamports(cfg.Faucet.InitialBalance),
		DistributionAmount: cfg.Faucet.DistributionAmount,
	}, nil
}

func printLogs(out io.Writer, logs []string) {
	for _, line := range logs {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

func runInit(_ context.Context, args []string, out io.Writer) error {
	cfg, log, err := parseConfig(newFlagSet("init", out), args)
	if err != nil {
		return err
	}
	n, err := openNode(cfg, log, nil)
	if err != nil {
		return err
	}
	defer n.Close()

	g, err := genesis(cfg, n)
	if err != nil {
		return err
	}
	res, err := n.exec.Bootstrap(g)
	if res != nil {
		printLogs(out, res.Logs)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Faucet:              %s\n", res.Faucet)
	fmt.Fprintf(out, "Administrator:       %s\n", res.Admin)
	fmt.Fprintf(out, "Balance:             %d lamports\n", res.FaucetBalance)
	fmt.Fprintf(out, "Distribution amount: %d lamports\n", g.DistributionAmount)
	return nil
}

func runServe(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("serve", out)
	bootstrap := fs.Bool("bootstrap", false, "Initialize the faucet on start if its account does not exist")
	cfg, log, err := parseConfig(fs, args)
	if err != nil {
		return err
	}

	m := metrics.New()
	m.SetBuildInfo(Version)

	n, err := openNode(cfg, log, m)
	if err != nil {
		return err
	}
	defer n.Close()

	if *bootstrap {
		if err := bootstrapIfMissing(cfg, n); err != nil {
			return err
		}
	}

	faucetKey, err := faucetPubkey(cfg)
	if err != nil {
		return err
	}
	n.exec.WatchBalance(faucetKey)
	m.SetAccountsCount(n.db.GetAccountsCount())
	if acc, err := n.db.GetAccount(faucetKey); err == nil && acc != nil {
		m.SetFaucetBalance(faucetKey.String(), uint64(acc.Lamports))
	}

	health := metrics.NewHealthChecker()
	rpcCfg := rpc.DefaultServerConfig()
	rpcCfg.Address = cfg.RPC.Addr
	rpcCfg.ReadTimeout = cfg.RPC.ReadTimeout
	rpcCfg.WriteTimeout = cfg.RPC.WriteTimeout
	rpcCfg.AirdropRate = cfg.RPC.AirdropRate
	rpcCfg.AirdropBurst = cfg.RPC.AirdropBurst
	rpcCfg.Logger = log.Named("rpc")
	rpcCfg.Metrics = m
	rpcCfg.Health = health

	server := rpc.NewServer(rpcCfg, n.exec, rpc.FaucetInfo{
		ProgramID: n.programID,
		Faucet:    faucetKey,
		Version:   Version,
	})
	health.RegisterCheck("faucet", server.Handlers().FaucetHealthCheck())

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(m,
			metrics.WithAddr(cfg.Metrics.Addr),
			metrics.WithHealthChecker(health),
			metrics.WithLogger(log.Named("metrics")))
		if err := metricsServer.Start(); err != nil {
			return err
		}
		log.Info("metrics server listening", zap.String("addr", metricsServer.Addr()))
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Stop(stopCtx)
		}()
	}

	log.Info("starting faucet node",
		zap.String("version", Version),
		zap.Stringer("program_id", n.programID),
		zap.Stringer("faucet", faucetKey),
		zap.String("data_dir", cfg.General.DataDir))

	err = server.Start(ctx)
	log.Info("faucet node stopped")
	return err
}

// bootstrapIfMissing runs init when the faucet account does not exist yet.
func bootstrapIfMissing(cfg config.Config, n *node) error {
	g, err := genesis(cfg, n)
	if err != nil {
		return err
	}
	if n.db.HasAccount(g.Faucet.Pubkey()) {
		return nil
	}
	_, err = n.exec.Bootstrap(g)
	return err
}

func runRequest(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("request", out)
	url := fs.String("url", "", "Send through the faucet node at this JSON-RPC URL instead of the local ledger")
	cfg, log, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: request takes exactly one requester pubkey", errUsage)
	}
	requester, err := types.PubkeyFromBase58(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid requester: %w", err)
	}

	if *url != "" {
		res, err := client.New(*url).RequestAirdrop(ctx, requester)
		if err != nil {
			return err
		}
		printLogs(out, res.Logs)
		fmt.Fprintf(out, "Sent %d lamports to %s (balance %d)\n", res.Amount, res.Requester, res.Balance)
		return nil
	}

	n, err := openNode(cfg, log, nil)
	if err != nil {
		return err
	}
	defer n.Close()
	faucetKey, err := faucetPubkey(cfg)
	if err != nil {
		return err
	}

	ix, err := client.ToInstruction(client.NewRequestTokensInstruction(
		client.PublicKey(n.programID), client.PublicKey(faucetKey), client.PublicKey(requester)))
	if err != nil {
		return err
	}
	res, err := n.exec.Execute(&types.SignedInstruction{Instruction: ix})
	printLogs(out, res.Logs)
	if err != nil {
		return describe(err)
	}
	acc, err := n.db.GetAccount(requester)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Balance of %s: %d lamports\n", requester, acc.Lamports)
	return nil
}

func runReplenish(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("replenish", out)
	url := fs.String("url", "", "Send through the faucet node at this JSON-RPC URL instead of the local ledger")
	cfg, log, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: replenish takes exactly one lamport amount", errUsage)
	}
	amount, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", fs.Arg(0), err)
	}

	programID, err := types.PubkeyFromBase58(cfg.Faucet.ProgramID)
	if err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}
	admin, err := crypto.LoadKeypairFile(cfg.Faucet.AdminKeypair)
	if err != nil {
		return fmt.Errorf("failed to load admin keypair: %w", err)
	}
	faucetKey, err := faucetPubkey(cfg)
	if err != nil {
		return err
	}

	ix, err := client.ToInstruction(client.NewReplenishTokensInstruction(
		client.PublicKey(programID), client.PublicKey(faucetKey), client.PublicKey(admin.Pubkey()), amount))
	if err != nil {
		return err
	}
	signed := crypto.SignInstruction(ix, admin)

	if *url != "" {
		res, err := client.New(*url).SendInstruction(ctx, signed)
		if err != nil {
			return err
		}
		printLogs(out, res.Logs)
		return nil
	}

	n, err := openNode(cfg, log, nil)
	if err != nil {
		return err
	}
	defer n.Close()
	res, err := n.exec.Execute(signed)
	printLogs(out, res.Logs)
	if err != nil {
		return describe(err)
	}
	return nil
}

func runBalance(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("balance", out)
	url := fs.String("url", "", "Query the faucet node at this JSON-RPC URL instead of the local ledger")
	cfg, log, err := parseConfig(fs, args)
	if err != nil {
		return err
	}

	var pubkey types.Pubkey
	switch fs.NArg() {
	case 0:
		if pubkey, err = faucetPubkey(cfg); err != nil {
			return err
		}
	case 1:
		if pubkey, err = types.PubkeyFromBase58(fs.Arg(0)); err != nil {
			return fmt.Errorf("invalid pubkey: %w", err)
		}
	default:
		return fmt.Errorf("%w: balance takes at most one pubkey", errUsage)
	}

	var lamports uint64
	if *url != "" {
		if lamports, err = client.New(*url).GetBalance(ctx, pubkey); err != nil {
			return err
		}
	} else {
		n, err := openNode(cfg, log, nil)
		if err != nil {
			return err
		}
		defer n.Close()
		acc, err := n.db.GetAccount(pubkey)
		if err != nil {
			return err
		}
		if acc != nil {
			lamports = uint64(acc.Lamports)
		}
	}

	fmt.Fprintf(out, "%d lamports (%.9f SOL)\n", lamports, types.Lamports(lamports).SOL())
	return nil
}

func runSnapshot(_ context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("snapshot", out)
	cfg, log, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: snapshot takes export|import and a file", errUsage)
	}
	action, path := fs.Arg(0), fs.Arg(1)

	n, err := openNode(cfg, log, nil)
	if err != nil {
		return err
	}
	defer n.Close()

	switch action {
	case "export":
		manifest, err := snapshot.ExportFile(n.db, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d accounts (%d lamports) to %s\n", manifest.AccountsCount, manifest.LamportsTotal, path)
		fmt.Fprintf(out, "Accounts hash: %s\n", manifest.AccountsHash)
	case "import":
		res, err := snapshot.LoadSnapshot(path, n.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Imported %d accounts (%d lamports) from %s\n", res.AccountsLoaded, res.LamportsTotal, path)
		fmt.Fprintf(out, "Accounts hash: %s\n", res.AccountsHash)
	default:
		return fmt.Errorf("%w: unknown snapshot action %q", errUsage, action)
	}
	return nil
}

func runKeygen(_ context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("keygen", out)
	outfile := fs.StringP("outfile", "o", "", "Keypair file to write")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *outfile == "" {
		return fmt.Errorf("%w: --outfile is required", errUsage)
	}
	if !*force {
		if _, err := os.Stat(*outfile); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", *outfile)
		}
	}

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := crypto.SaveKeypairFile(*outfile, kp); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote keypair to %s\n", *outfile)
	fmt.Fprintf(out, "pubkey: %s\n", kp.Pubkey())
	return nil
}

// describe adds the program error name to a failed instruction.
func describe(err error) error {
	var ixErr *runtime.InstructionError
	if errors.As(err, &ixErr) {
		return fmt.Errorf("%w (%s)", err, faucet.ErrorCode(err))
	}
	return err
}
