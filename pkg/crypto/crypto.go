// Package crypto provides the Ed25519 keypair and signature utilities used
// by the faucet runtime, RPC server and CLI.
//
// Signatures are verified with Go's crypto/ed25519. Keypairs are stored on
// disk in the Solana CLI format: a JSON array of the 64 private key bytes.
//
// Example usage:
//
//	kp, _ := crypto.GenerateKeypair()
//	signed := crypto.SignInstruction(ix, kp)
//	err := crypto.VerifyInstruction(signed)
package crypto

import (
	"errors"
	"strconv"
)

// Signature and key sizes for Ed25519.
const (
	// PublicKeySize is the size of an Ed25519 public key in bytes.
	PublicKeySize = 32

	// SignatureSize is the size of an Ed25519 signature in bytes.
	SignatureSize = 64

	// PrivateKeySize is the size of an Ed25519 private key in bytes.
	PrivateKeySize = 64

	// SeedSize is the size of an Ed25519 seed in bytes.
	SeedSize = 32
)

// Common errors returned by the crypto package.
var (
	// ErrInvalidPublicKey is returned when a public key has an invalid format.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")

	// ErrInvalidSignature is returned when a signature has an invalid format.
	ErrInvalidSignature = errors.New("crypto: invalid signature")

	// ErrVerificationFailed is returned when signature verification fails.
	ErrVerificationFailed = errors.New("crypto: signature verification failed")

	// ErrMissingSignature is returned when a signer meta has no signature.
	ErrMissingSignature = errors.New("crypto: missing signature")

	// ErrMissingInstruction is returned when a signed instruction is nil.
	ErrMissingInstruction = errors.New("crypto: missing instruction")

	// ErrInvalidKeypair is returned when a keypair file cannot be decoded.
	ErrInvalidKeypair = errors.New("crypto: invalid keypair")
)

// VerificationError contains details about a signature verification failure.
type VerificationError struct {
	// Index is the index of the signature that failed (for batch verification).
	Index int

	// Pubkey is the base58 representation of the public key.
	Pubkey string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.Pubkey != "" {
		return "crypto: verification failed for pubkey " + e.Pubkey + ": " + e.Err.Error()
	}
	return "crypto: verification failed at index " + strconv.Itoa(e.Index) + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *VerificationError) Unwrap() error {
	return e.Err
}
