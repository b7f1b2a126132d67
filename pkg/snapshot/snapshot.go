// Package snapshot exports the ledger's accounts to a zstd-compressed file
// and loads such a file back into an AccountsDB.
//
// File layout (after zstd decompression):
//
//	magic (8) || manifest_len (u32 LE) || manifest (JSON) ||
//	[pubkey (32) || account_len (u32 LE) || account]...
//
// Accounts are encoded with accounts.SerializeAccount, in pubkey order.
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/devwraithe/simple-faucet-token/pkg/accounts"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

var (
	// ErrInvalidManifest is returned when the manifest is malformed.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrInvalidArchive is returned when the archive is malformed.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrHashMismatch is returned when a hash verification fails.
	ErrHashMismatch = errors.New("hash mismatch")
)

// CurrentVersion is the snapshot format version written by Export.
const CurrentVersion = 1

var magic = [8]byte{'F', 'A', 'U', 'C', 'S', 'N', 'A', 'P'}

// maxManifestSize bounds the manifest read from untrusted files.
const maxManifestSize = 1 << 20

// SnapshotManifest contains metadata about a snapshot.
type SnapshotManifest struct {
	Version       uint32     `json:"version"`
	AccountsCount uint64     `json:"accounts_count"`
	LamportsTotal uint64     `json:"lamports_total"`
	AccountsHash  types.Hash `json:"accounts_hash"`
}

// MarshalJSON implements custom JSON marshaling for SnapshotManifest.
func (m *SnapshotManifest) MarshalJSON() ([]byte, error) {
	type Alias SnapshotManifest
	return json.Marshal(&struct {
		AccountsHash string `json:"accounts_hash"`
		*Alias
	}{
		AccountsHash: m.AccountsHash.String(),
		Alias:        (*Alias)(m),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for SnapshotManifest.
func (m *SnapshotManifest) UnmarshalJSON(data []byte) error {
	type Alias SnapshotManifest
	aux := &struct {
		AccountsHash string `json:"accounts_hash"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	hash, err := types.HashFromBase58(aux.AccountsHash)
	if err != nil {
		return fmt.Errorf("invalid accounts hash: %w", err)
	}
	m.AccountsHash = hash
	return nil
}

// Export writes every account in db to w.
func Export(db accounts.AccountsDB, w io.Writer) (*SnapshotManifest, error) {
	var refs []types.AccountRef
	var lamports uint64
	err := db.ForEach(func(pubkey types.Pubkey, account *types.Account) error {
		refs = append(refs, types.AccountRef{Pubkey: pubkey, Account: account})
		lamports += uint64(account.Lamports)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}

	manifest := &SnapshotManifest{
		Version:       CurrentVersion,
		AccountsCount: uint64(len(refs)),
		LamportsTotal: lamports,
		AccountsHash:  accounts.ComputeAccountsHash(refs),
	}
	manifestData, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	var lenBuf [4]byte
	if _, err := encoder.Write(magic[:]); err != nil {
		encoder.Close()
		return nil, err
	}
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(manifestData)))
	if _, err := encoder.Write(lenBuf[:]); err != nil {
		encoder.Close()
		return nil, err
	}
	if _, err := encoder.Write(manifestData); err != nil {
		encoder.Close()
		return nil, err
	}

	for _, ref := range refs {
		data, err := accounts.SerializeAccount(ref.Account)
		if err != nil {
			encoder.Close()
			return nil, err
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
		if _, err := encoder.Write(ref.Pubkey[:]); err != nil {
			encoder.Close()
			return nil, err
		}
		if _, err := encoder.Write(lenBuf[:]); err != nil {
			encoder.Close()
			return nil, err
		}
		if _, err := encoder.Write(data); err != nil {
			encoder.Close()
			return nil, err
		}
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush zstd stream: %w", err)
	}
	return manifest, nil
}

// ExportFile writes a snapshot of db to path.
func ExportFile(db accounts.AccountsDB, path string) (*SnapshotManifest, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	manifest, err := Export(db, file)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close snapshot: %w", err)
	}
	return manifest, nil
}

// readManifest reads the header of a decompressed snapshot stream.
func readManifest(r io.Reader) (*SnapshotManifest, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrInvalidArchive, err)
	}
	if [8]byte(header[0:8]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidArchive)
	}

	size := binary.LittleEndian.Uint32(header[8:12])
	if size > maxManifestSize {
		return nil, fmt.Errorf("%w: manifest of %d bytes", ErrInvalidManifest, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	var manifest SnapshotManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if manifest.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, manifest.Version)
	}
	return &manifest, nil
}

// readAccount reads one account entry. It returns io.EOF at a clean end
// of stream.
func readAccount(r io.Reader) (types.AccountRef, error) {
	var header [types.PubkeyLength + 4]byte
	n, err := io.ReadFull(r, header[:])
	if err == io.EOF && n == 0 {
		return types.AccountRef{}, io.EOF
	}
	if err != nil {
		return types.AccountRef{}, fmt.Errorf("%w: truncated account header", ErrInvalidArchive)
	}

	var ref types.AccountRef
	copy(ref.Pubkey[:], header[:types.PubkeyLength])
	size := binary.LittleEndian.Uint32(header[types.PubkeyLength:])
	if size > accounts.MaxSerializedSize {
		return types.AccountRef{}, fmt.Errorf("%w: account %s of %d bytes", ErrInvalidArchive, ref.Pubkey, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return types.AccountRef{}, fmt.Errorf("%w: truncated account %s", ErrInvalidArchive, ref.Pubkey)
	}
	ref.Account, err = accounts.DeserializeAccount(data)
	if err != nil {
		return types.AccountRef{}, fmt.Errorf("%w: account %s: %v", ErrInvalidArchive, ref.Pubkey, err)
	}
	return ref, nil
}
