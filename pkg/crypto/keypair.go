package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Keypair is an Ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKeypair, SeedSize, len(seed))
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes wraps a 64-byte private key. The trailing 32 bytes must be
// the public key derived from the leading seed.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, PrivateKeySize, len(b))
	}
	derived := ed25519.NewKeyFromSeed(b[:SeedSize])
	if !derived.Equal(ed25519.PrivateKey(b)) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypair)
	}
	return &Keypair{private: derived}, nil
}

// Pubkey returns the public key.
func (kp *Keypair) Pubkey() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], kp.private.Public().(ed25519.PublicKey))
	return pk
}

// PrivateKey returns the underlying ed25519 key.
func (kp *Keypair) PrivateKey() ed25519.PrivateKey {
	return kp.private
}

// Sign signs message.
func (kp *Keypair) Sign(message []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(kp.private, message))
	return sig
}

// LoadKeypairFile reads a keypair stored as a JSON array of 64 bytes.
func LoadKeypairFile(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", path, err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidKeypair, path, err)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: %s: byte %d out of range", ErrInvalidKeypair, path, i)
		}
		b[i] = byte(v)
	}
	return KeypairFromBytes(b)
}

// SaveKeypairFile writes the keypair as a JSON array of 64 bytes with 0600
// permissions, creating parent directories as needed.
func SaveKeypairFile(path string, kp *Keypair) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create keypair dir: %w", err)
		}
	}
	ints := make([]int, len(kp.private))
	for i, b := range kp.private {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write keypair %s: %w", path, err)
	}
	return nil
}
