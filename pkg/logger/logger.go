// Package logger builds the zap loggers used across the faucet node.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type optionFunc func(*zap.Config)

// WithEncodeTime sets the time key and encoder.
func WithEncodeTime(timeKey string, timeEncoder zapcore.TimeEncoder) optionFunc {
	return func(cfg *zap.Config) {
		cfg.EncoderConfig.TimeKey = timeKey
		cfg.EncoderConfig.EncodeTime = timeEncoder
	}
}

// WithOutputPaths redirects log output, e.g. to "stderr" or a file path.
func WithOutputPaths(paths ...string) optionFunc {
	return func(cfg *zap.Config) {
		cfg.OutputPaths = paths
	}
}

// New builds a logger at the given level ("debug", "info", "warn", "error")
// in the given format ("json" or "console").
func New(level, format string, opts ...optionFunc) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse logger level: %w", err)
	}

	var cfg zap.Config
	switch format {
	case "", FormatJSON:
		cfg = zap.NewProductionConfig()
	case FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.Build()
}
