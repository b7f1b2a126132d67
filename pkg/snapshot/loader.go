package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/devwraithe/simple-faucet-token/pkg/accounts"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// LoadResult contains the result of loading a snapshot.
type LoadResult struct {
	// Manifest is the snapshot manifest.
	Manifest *SnapshotManifest
	// AccountsLoaded is the number of accounts loaded.
	AccountsLoaded uint64
	// LamportsTotal is the total lamports loaded.
	LamportsTotal uint64
	// AccountsHash is the computed accounts hash.
	AccountsHash types.Hash
	// Verified indicates if the snapshot was verified.
	Verified bool
}

// LoadProgress represents the progress of loading a snapshot.
type LoadProgress struct {
	// Stage is the current loading stage.
	Stage string
	// AccountsProcessed is the number of accounts processed.
	AccountsProcessed uint64
	// AccountsTotal is the total number of accounts (from manifest).
	AccountsTotal uint64
}

// ProgressCallback is called with load progress updates.
type ProgressCallback func(progress LoadProgress)

// LoadConfig contains configuration for loading a snapshot.
type LoadConfig struct {
	// VerifyHashes checks the accounts hash against the manifest before
	// anything is written.
	VerifyHashes bool
	// ProgressCallback is called with progress updates.
	ProgressCallback ProgressCallback
	// BatchSize is the number of accounts written per transaction.
	BatchSize int
}

// DefaultLoadConfig returns a default load configuration.
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{
		VerifyHashes: true,
		BatchSize:    1000,
	}
}

// SnapshotLoader loads snapshots into an AccountsDB.
type SnapshotLoader struct {
	config LoadConfig
	db     accounts.AccountsDB
}

// NewSnapshotLoader creates a new snapshot loader.
func NewSnapshotLoader(db accounts.AccountsDB, config LoadConfig) *SnapshotLoader {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultLoadConfig().BatchSize
	}
	return &SnapshotLoader{
		config: config,
		db:     db,
	}
}

// LoadSnapshot loads a snapshot file into the database.
func LoadSnapshot(path string, db accounts.AccountsDB) (*LoadResult, error) {
	return NewSnapshotLoader(db, DefaultLoadConfig()).LoadFile(path)
}

// LoadFile loads the snapshot at path.
func (l *SnapshotLoader) LoadFile(path string) (*LoadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	return l.Load(file)
}

// Load reads a snapshot from r. The whole snapshot is decoded and, when
// enabled, verified before the first account is written.
func (l *SnapshotLoader) Load(r io.Reader) (*LoadResult, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	manifest, err := readManifest(decoder)
	if err != nil {
		return nil, err
	}

	l.reportProgress("Reading accounts", 0, manifest.AccountsCount)
	refs := make([]types.AccountRef, 0, manifest.AccountsCount)
	var lamports uint64
	for {
		ref, err := readAccount(decoder)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
		lamports += uint64(ref.Account.Lamports)
	}

	result := &LoadResult{
		Manifest:      manifest,
		LamportsTotal: lamports,
		AccountsHash:  accounts.ComputeAccountsHash(refs),
	}

	if uint64(len(refs)) != manifest.AccountsCount {
		return nil, fmt.Errorf("%w: manifest lists %d accounts, archive holds %d",
			ErrInvalidArchive, manifest.AccountsCount, len(refs))
	}
	if l.config.VerifyHashes {
		if result.AccountsHash != manifest.AccountsHash {
			return nil, fmt.Errorf("%w: computed %s, manifest %s",
				ErrHashMismatch, result.AccountsHash, manifest.AccountsHash)
		}
		if lamports != manifest.LamportsTotal {
			return nil, fmt.Errorf("%w: lamports %d, manifest %d", ErrHashMismatch, lamports, manifest.LamportsTotal)
		}
		result.Verified = true
	}

	for start := 0; start < len(refs); start += l.config.BatchSize {
		end := start + l.config.BatchSize
		if end > len(refs) {
			end = len(refs)
		}
		if err := l.db.SetAccounts(refs[start:end]); err != nil {
			return nil, fmt.Errorf("failed to store accounts: %w", err)
		}
		result.AccountsLoaded = uint64(end)
		l.reportProgress("Storing accounts", result.AccountsLoaded, manifest.AccountsCount)
	}

	return result, nil
}

func (l *SnapshotLoader) reportProgress(stage string, processed, total uint64) {
	if l.config.ProgressCallback != nil {
		l.config.ProgressCallback(LoadProgress{
			Stage:             stage,
			AccountsProcessed: processed,
			AccountsTotal:     total,
		})
	}
}
