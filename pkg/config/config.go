// Package config loads faucet node configuration from defaults, an optional
// config file, FAUCET_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// EnvPrefix is prepended to every environment variable, e.g. FAUCET_RPC_ADDR.
const EnvPrefix = "FAUCET"

// Config holds all node configuration.
type Config struct {
	RPC     RPCConfig     `mapstructure:"rpc"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Faucet  FaucetConfig  `mapstructure:"faucet"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	General GeneralConfig `mapstructure:"general"`
}

// RPCConfig configures the JSON-RPC server.
type RPCConfig struct {
	Addr string `mapstructure:"addr"`

	// AirdropRate is the number of requestAirdrop calls allowed per second
	// for one requester. Zero disables limiting.
	AirdropRate float64 `mapstructure:"airdrop_rate"`
	// AirdropBurst is the limiter bucket size.
	AirdropBurst int `mapstructure:"airdrop_burst"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MetricsConfig configures the Prometheus metrics and health server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// FaucetConfig describes the faucet deployment the node serves.
type FaucetConfig struct {
	// ProgramID is the base58 address of the faucet program.
	ProgramID string `mapstructure:"program_id"`

	FaucetKeypair string `mapstructure:"faucet_keypair"`
	AdminKeypair  string `mapstructure:"admin_keypair"`

	// DistributionAmount is the payout per request used by init.
	DistributionAmount uint64 `mapstructure:"distribution_amount"`
	// InitialBalance is the faucet account balance used by init.
	InitialBalance uint64 `mapstructure:"initial_balance"`
	// AdminLamports are minted to the administrator by init.
	AdminLamports uint64 `mapstructure:"admin_lamports"`
}

// RuntimeConfig holds the execution parameters of the ledger.
type RuntimeConfig struct {
	// ComputeUnitLimit is the compute budget of each top-level instruction.
	ComputeUnitLimit uint64 `mapstructure:"compute_unit_limit"`

	// Rent parameters exposed through the rent sysvar.
	LamportsPerByteYear uint64  `mapstructure:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `mapstructure:"exemption_threshold"`
}

// Rent returns the rent sysvar parameters for c.
func (c RuntimeConfig) Rent() types.Rent {
	return types.Rent{
		LamportsPerByteYear: c.LamportsPerByteYear,
		ExemptionThreshold:  c.ExemptionThreshold,
		BurnPercent:         types.DefaultBurnPercent,
	}
}

// GeneralConfig holds storage and logging settings.
type GeneralConfig struct {
	// DataDir holds the badger ledger. ":memory:" keeps state in memory.
	DataDir   string `mapstructure:"data_dir"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// MemoryDataDir selects the in-memory accounts database.
const MemoryDataDir = ":memory:"

// DefaultProgramID is the faucet program address used when none is configured.
const DefaultProgramID = "Faucet1111111111111111111111111111111111111"

// Default returns the default configuration.
func Default() Config {
	return Config{
		RPC: RPCConfig{
			Addr:         ":8899",
			AirdropRate:  1,
			AirdropBurst: 1,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Faucet: FaucetConfig{
			ProgramID:          DefaultProgramID,
			FaucetKeypair:      filepath.Join(defaultHome(), "faucet-keypair.json"),
			AdminKeypair:       filepath.Join(defaultHome(), "admin-keypair.json"),
			DistributionAmount: 1000,
			InitialBalance:     10_000_000,
			AdminLamports:      1_000_000_000,
		},
		Runtime: RuntimeConfig{
			ComputeUnitLimit:    uint64(types.DefaultComputeUnitsPerInstruction),
			LamportsPerByteYear: types.DefaultLamportsPerByteYear,
			ExemptionThreshold:  types.DefaultExemptionThreshold,
		},
		General: GeneralConfig{
			DataDir:   filepath.Join(defaultHome(), "data"),
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".faucet"
	}
	return filepath.Join(home, ".faucet")
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"rpc-addr":            "rpc.addr",
	"airdrop-rate":        "rpc.airdrop_rate",
	"airdrop-burst":       "rpc.airdrop_burst",
	"metrics":             "metrics.enabled",
	"metrics-addr":        "metrics.addr",
	"program-id":          "faucet.program_id",
	"faucet-keypair":      "faucet.faucet_keypair",
	"admin-keypair":       "faucet.admin_keypair",
	"distribution-amount": "faucet.distribution_amount",
	"initial-balance":     "faucet.initial_balance",
	"admin-lamports":      "faucet.admin_lamports",
	"compute-unit-limit":  "runtime.compute_unit_limit",
	"rent-per-byte-year":  "runtime.lamports_per_byte_year",
	"rent-threshold":      "runtime.exemption_threshold",
	"data-dir":            "general.data_dir",
	"log-level":           "general.log_level",
	"log-format":          "general.log_format",
}

// RegisterFlags adds the configuration flags to fs, using the defaults as
// flag defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a JSON, YAML or TOML config file")
	fs.String("rpc-addr", d.RPC.Addr, "JSON-RPC listen address")
	fs.Float64("airdrop-rate", d.RPC.AirdropRate, "Airdrops per second allowed per requester (0 disables limiting)")
	fs.Int("airdrop-burst", d.RPC.AirdropBurst, "Airdrop burst per requester")
	fs.Bool("metrics", d.Metrics.Enabled, "Serve Prometheus metrics and health")
	fs.String("metrics-addr", d.Metrics.Addr, "Metrics listen address")
	fs.String("program-id", d.Faucet.ProgramID, "Faucet program address (base58)")
	fs.String("faucet-keypair", d.Faucet.FaucetKeypair, "Faucet account keypair file")
	fs.String("admin-keypair", d.Faucet.AdminKeypair, "Administrator keypair file")
	fs.Uint64("distribution-amount", d.Faucet.DistributionAmount, "Lamports paid per request (init)")
	fs.Uint64("initial-balance", d.Faucet.InitialBalance, "Initial faucet balance in lamports (init)")
	fs.Uint64("admin-lamports", d.Faucet.AdminLamports, "Lamports minted to the administrator (init)")
	fs.Uint64("compute-unit-limit", d.Runtime.ComputeUnitLimit, "Compute units available to each instruction")
	fs.Uint64("rent-per-byte-year", d.Runtime.LamportsPerByteYear, "Rent lamports per byte-year")
	fs.Float64("rent-threshold", d.Runtime.ExemptionThreshold, "Rent exemption threshold in years")
	fs.String("data-dir", d.General.DataDir, "Ledger directory, or :memory:")
	fs.String("log-level", d.General.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.General.LogFormat, "Log format (json, console)")
}

// Load resolves the configuration. path may be empty or name a missing file,
// in which case only defaults, environment and flags apply. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return cfg, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// setDefaults registers every key so AutomaticEnv can resolve it on Unmarshal.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("rpc.addr", cfg.RPC.Addr)
	v.SetDefault("rpc.airdrop_rate", cfg.RPC.AirdropRate)
	v.SetDefault("rpc.airdrop_burst", cfg.RPC.AirdropBurst)
	v.SetDefault("rpc.read_timeout", cfg.RPC.ReadTimeout)
	v.SetDefault("rpc.write_timeout", cfg.RPC.WriteTimeout)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("faucet.program_id", cfg.Faucet.ProgramID)
	v.SetDefault("faucet.faucet_keypair", cfg.Faucet.FaucetKeypair)
	v.SetDefault("faucet.admin_keypair", cfg.Faucet.AdminKeypair)
	v.SetDefault("faucet.distribution_amount", cfg.Faucet.DistributionAmount)
	v.SetDefault("faucet.initial_balance", cfg.Faucet.InitialBalance)
	v.SetDefault("faucet.admin_lamports", cfg.Faucet.AdminLamports)
	v.SetDefault("runtime.compute_unit_limit", cfg.Runtime.ComputeUnitLimit)
	v.SetDefault("runtime.lamports_per_byte_year", cfg.Runtime.LamportsPerByteYear)
	v.SetDefault("runtime.exemption_threshold", cfg.Runtime.ExemptionThreshold)
	v.SetDefault("general.data_dir", cfg.General.DataDir)
	v.SetDefault("general.log_level", cfg.General.LogLevel)
	v.SetDefault("general.log_format", cfg.General.LogFormat)
}

// Validate reports settings the node cannot start with.
func (c Config) Validate() error {
	if c.RPC.AirdropRate < 0 {
		return fmt.Errorf("rpc.airdrop_rate must not be negative: %v", c.RPC.AirdropRate)
	}
	if c.RPC.AirdropRate > 0 && c.RPC.AirdropBurst < 1 {
		return fmt.Errorf("rpc.airdrop_burst must be at least 1 when limiting: %d", c.RPC.AirdropBurst)
	}
	if c.Faucet.ProgramID == "" {
		return errors.New("faucet.program_id is required")
	}
	if c.Runtime.ComputeUnitLimit == 0 {
		return errors.New("runtime.compute_unit_limit must be positive")
	}
	if err := c.Runtime.Rent().Validate(); err != nil {
		return fmt.Errorf("runtime rent: %w", err)
	}
	if c.General.DataDir == "" {
		return errors.New("general.data_dir is required")
	}
	return nil
}
