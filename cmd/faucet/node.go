package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/devwraithe/simple-faucet-token/pkg/accounts"
	"github.com/devwraithe/simple-faucet-token/pkg/config"
	"github.com/devwraithe/simple-faucet-token/pkg/crypto"
	"github.com/devwraithe/simple-faucet-token/pkg/logger"
	"github.com/devwraithe/simple-faucet-token/pkg/metrics"
	"github.com/devwraithe/simple-faucet-token/pkg/runtime"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/faucet"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// newFlagSet returns a flag set carrying the shared configuration flags.
func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	config.RegisterFlags(fs)
	return fs
}

// parseConfig parses args into fs and resolves the configuration.
func parseConfig(fs *pflag.FlagSet, args []string) (config.Config, *zap.Logger, error) {
	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	path, _ := fs.GetString("config")
	cfg, err := config.Load(path, fs)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.General.LogLevel, cfg.General.LogFormat, logger.WithOutputPaths("stderr"))
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

// node is an opened ledger with the faucet program registered.
type node struct {
	db        accounts.AccountsDB
	exec      *runtime.Executor
	programID types.Pubkey
	logger    *zap.Logger
}

func openNode(cfg config.Config, log *zap.Logger, m *metrics.Metrics) (*node, error) {
	programID, err := types.PubkeyFromBase58(cfg.Faucet.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", cfg.Faucet.ProgramID, err)
	}

	var db accounts.AccountsDB
	if cfg.General.DataDir == config.MemoryDataDir {
		db = accounts.NewMemoryDB()
		log.Debug("using in-memory accounts database")
	} else {
		dbPath := filepath.Join(cfg.General.DataDir, "accounts")
		if err := os.MkdirAll(dbPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err = accounts.NewBadgerDB(dbPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open accounts database: %w", err)
		}
		log.Debug("opened accounts database", zap.String("path", dbPath))
	}

	registry := runtime.NewProgramRegistry()
	runtime.RegisterNativePrograms(registry)
	registry.RegisterProgram(programID, "faucet", faucet.New(programID))

	exec := runtime.NewExecutor(db, registry, log)
	exec.SetComputeUnitsLimit(types.ComputeUnits(cfg.Runtime.ComputeUnitLimit))
	exec.SetRent(cfg.Runtime.Rent())
	exec.SetMetrics(m)

	return &node{db: db, exec: exec, programID: programID, logger: log}, nil
}

func (n *node) Close() error {
	err := n.db.Close()
	_ = n.logger.Sync()
	return err
}

// loadOrCreateKeypair loads the keypair at path, writing a new one when the
// file does not exist.
func loadOrCreateKeypair(path string, log *zap.Logger) (*crypto.Keypair, error) {
	kp, err := crypto.LoadKeypairFile(path)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	kp, err = crypto.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveKeypairFile(path, kp); err != nil {
		return nil, err
	}
	log.Info("generated keypair", zap.String("path", path), zap.Stringer("pubkey", kp.Pubkey()))
	return kp, nil
}

// faucetPubkey returns the faucet address from the configured keypair file.
func faucetPubkey(cfg config.Config) (types.Pubkey, error) {
	kp, err := crypto.LoadKeypairFile(cfg.Faucet.FaucetKeypair)
	if err != nil {
		return types.ZeroPubkey, fmt.Errorf("failed to load faucet keypair: %w", err)
	}
	return kp.Pubkey(), nil
}
