package crypto

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// VerifySignature verifies a single Ed25519 signature.
// Returns true if the signature is valid, false otherwise.
//
// Parameters:
//   - pubkey: 32-byte Ed25519 public key
//   - message: the message that was signed
//   - signature: 64-byte Ed25519 signature
//
// Returns false if the public key or signature have invalid lengths.
func VerifySignature(pubkey, message, signature []byte) bool {
	if len(pubkey) != PublicKeySize {
		return false
	}
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}

// BatchVerifier accumulates signature verification requests and verifies
// them together. Batches above a small threshold verify in parallel.
type BatchVerifier struct {
	mu      sync.Mutex
	entries []batchEntry
}

// batchEntry holds a single verification request.
type batchEntry struct {
	pubkey    []byte
	message   []byte
	signature []byte
}

// NewBatchVerifier creates a new batch verifier.
func NewBatchVerifier() *BatchVerifier {
	return &BatchVerifier{
		entries: make([]batchEntry, 0, 64),
	}
}

// Add adds a signature verification request to the batch.
// The pubkey, message, and signature slices are not copied, so they
// must not be modified until Verify() is called.
//
// Returns an error if the pubkey or signature have invalid lengths.
func (bv *BatchVerifier) Add(pubkey, message, signature []byte) error {
	if len(pubkey) != PublicKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(pubkey))
	}
	if len(signature) != SignatureSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(signature))
	}

	bv.mu.Lock()
	bv.entries = append(bv.entries, batchEntry{
		pubkey:    pubkey,
		message:   message,
		signature: signature,
	})
	bv.mu.Unlock()
	return nil
}

// BatchResult contains the results of a batch verification.
type BatchResult struct {
	// AllValid is true if all signatures in the batch are valid.
	AllValid bool

	// Results contains the verification result for each signature.
	// True means valid, false means invalid.
	Results []bool

	// FirstInvalidIndex is the index of the first invalid signature,
	// or -1 if all signatures are valid.
	FirstInvalidIndex int
}

// Verify verifies all signatures in the batch and returns the results.
// Only entries added before Verify started are included.
func (bv *BatchVerifier) Verify() BatchResult {
	bv.mu.Lock()
	entries := make([]batchEntry, len(bv.entries))
	copy(entries, bv.entries)
	bv.mu.Unlock()

	n := len(entries)
	if n == 0 {
		return BatchResult{
			AllValid:          true,
			Results:           nil,
			FirstInvalidIndex: -1,
		}
	}

	results := make([]bool, n)

	// For small batches, verify sequentially
	if n <= 4 {
		allValid := true
		firstInvalid := -1
		for i, e := range entries {
			valid := VerifySignature(e.pubkey, e.message, e.signature)
			results[i] = valid
			if !valid && allValid {
				allValid = false
				firstInvalid = i
			}
		}
		return BatchResult{
			AllValid:          allValid,
			Results:           results,
			FirstInvalidIndex: firstInvalid,
		}
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range entries {
		go func(idx int) {
			defer wg.Done()
			e := entries[idx]
			results[idx] = VerifySignature(e.pubkey, e.message, e.signature)
		}(i)
	}
	wg.Wait()

	allValid := true
	firstInvalid := -1
	for i, valid := range results {
		if !valid && allValid {
			allValid = false
			firstInvalid = i
		}
	}

	return BatchResult{
		AllValid:          allValid,
		Results:           results,
		FirstInvalidIndex: firstInvalid,
	}
}

// SignInstruction signs the instruction message with every keypair given.
func SignInstruction(ix types.Instruction, signers ...*Keypair) *types.SignedInstruction {
	msg := ix.Message()
	signed := &types.SignedInstruction{
		Instruction: ix,
		Signatures:  make(map[types.Pubkey]types.Signature, len(signers)),
	}
	for _, kp := range signers {
		signed.Signatures[kp.Pubkey()] = kp.Sign(msg)
	}
	return signed
}

// VerifyInstruction checks that every signer meta of the instruction carries
// a valid signature over its message. Signatures for pubkeys that are not
// signer metas are ignored.
func VerifyInstruction(signed *types.SignedInstruction) error {
	if signed == nil {
		return ErrMissingInstruction
	}

	signers := signed.Instruction.Signers()
	if len(signers) == 0 {
		return nil
	}

	msg := signed.Instruction.Message()
	bv := NewBatchVerifier()
	for _, pk := range signers {
		sig, ok := signed.Signatures[pk]
		if !ok {
			return &VerificationError{Pubkey: pk.String(), Err: ErrMissingSignature}
		}
		if err := bv.Add(pk[:], msg, sig[:]); err != nil {
			return &VerificationError{Pubkey: pk.String(), Err: err}
		}
	}

	result := bv.Verify()
	if !result.AllValid {
		return &VerificationError{
			Index:  result.FirstInvalidIndex,
			Pubkey: signers[result.FirstInvalidIndex].String(),
			Err:    ErrVerificationFailed,
		}
	}
	return nil
}
