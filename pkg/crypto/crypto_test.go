package crypto

import (
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

func mustKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return kp
}

func TestVerifySignature_Valid(t *testing.T) {
	kp := mustKeypair(t)
	pk := kp.Pubkey()
	message := []byte("test message")
	sig := kp.Sign(message)

	if !VerifySignature(pk[:], message, sig[:]) {
		t.Error("valid signature should verify")
	}
}

func TestVerifySignature_Invalid(t *testing.T) {
	kp := mustKeypair(t)
	other := mustKeypair(t)
	pk := kp.Pubkey()
	otherPk := other.Pubkey()
	message := []byte("test message")
	sig := kp.Sign(message)

	corrupted := sig
	corrupted[0] ^= 0xff

	tests := []struct {
		name   string
		pubkey []byte
		msg    []byte
		sig    []byte
	}{
		{"corrupted signature", pk[:], message, corrupted[:]},
		{"wrong message", pk[:], []byte("other message"), sig[:]},
		{"wrong key", otherPk[:], message, sig[:]},
		{"short key", pk[:31], message, sig[:]},
		{"short signature", pk[:], message, sig[:63]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifySignature(tt.pubkey, tt.msg, tt.sig) {
				t.Error("signature should not verify")
			}
		})
	}
}

func TestBatchVerifier_Empty(t *testing.T) {
	bv := NewBatchVerifier()
	result := bv.Verify()
	if !result.AllValid {
		t.Error("empty batch should be valid")
	}
	if result.FirstInvalidIndex != -1 {
		t.Errorf("expected FirstInvalidIndex -1, got %d", result.FirstInvalidIndex)
	}
}

func TestBatchVerifier_AddRejectsBadLengths(t *testing.T) {
	bv := NewBatchVerifier()
	if err := bv.Add(make([]byte, 31), nil, make([]byte, 64)); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("expected ErrInvalidPublicKey, got %v", err)
	}
	if err := bv.Add(make([]byte, 32), nil, make([]byte, 63)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
	if result := bv.Verify(); len(result.Results) != 0 {
		t.Errorf("rejected entries should not be added, got %d results", len(result.Results))
	}
}

func TestBatchVerifier_MixedValidity(t *testing.T) {
	// Eight entries exercises the parallel path.
	for _, n := range []int{3, 8} {
		bv := NewBatchVerifier()
		for i := 0; i < n; i++ {
			kp := mustKeypair(t)
			pk := kp.Pubkey()
			msg := []byte{byte(i)}
			sig := kp.Sign(msg)
			if i == 2 {
				sig[5] ^= 0x01
			}
			if err := bv.Add(pk[:], msg, sig[:]); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}

		result := bv.Verify()
		if result.AllValid {
			t.Fatalf("n=%d: batch with a bad signature should fail", n)
		}
		if result.FirstInvalidIndex != 2 {
			t.Errorf("n=%d: expected FirstInvalidIndex 2, got %d", n, result.FirstInvalidIndex)
		}
		for i, ok := range result.Results {
			if ok == (i == 2) {
				t.Errorf("n=%d: unexpected result %v at %d", n, ok, i)
			}
		}
	}
}

func TestBatchVerifier_MismatchedMessage(t *testing.T) {
	kp := mustKeypair(t)
	pk := kp.Pubkey()
	sig := kp.Sign([]byte("x"))
	bv := NewBatchVerifier()
	if err := bv.Add(pk[:], []byte("y"), sig[:]); err != nil {
		t.Fatal(err)
	}
	result := bv.Verify()
	if result.AllValid || result.FirstInvalidIndex != 0 {
		t.Errorf("mismatched message should fail at index 0, got %+v", result)
	}
}

func testInstruction(signer, other types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(signer, true),
			types.NewAccountMeta(other, false),
		},
		Data: []byte{2, 0, 0, 0, 100, 0, 0, 0, 0, 0, 0, 0},
	}
}

func TestVerifyInstruction(t *testing.T) {
	signer := mustKeypair(t)
	other := mustKeypair(t)
	ix := testInstruction(signer.Pubkey(), other.Pubkey())

	t.Run("valid", func(t *testing.T) {
		if err := VerifyInstruction(SignInstruction(ix, signer)); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("extra signatures ignored", func(t *testing.T) {
		if err := VerifyInstruction(SignInstruction(ix, signer, other)); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		err := VerifyInstruction(SignInstruction(ix, other))
		if !errors.Is(err, ErrMissingSignature) {
			t.Fatalf("expected ErrMissingSignature, got %v", err)
		}
		var verr *VerificationError
		if !errors.As(err, &verr) || verr.Pubkey != signer.Pubkey().String() {
			t.Errorf("expected VerificationError for signer, got %v", err)
		}
	})

	t.Run("forged signature", func(t *testing.T) {
		signed := SignInstruction(ix, other)
		signed.Signatures[signer.Pubkey()] = signed.Signatures[other.Pubkey()]
		if err := VerifyInstruction(signed); !errors.Is(err, ErrVerificationFailed) {
			t.Errorf("expected ErrVerificationFailed, got %v", err)
		}
	})

	t.Run("tampered data", func(t *testing.T) {
		signed := SignInstruction(ix, signer)
		signed.Instruction.Data = []byte{2, 0, 0, 0, 0xff, 0xff, 0, 0, 0, 0, 0, 0}
		if err := VerifyInstruction(signed); !errors.Is(err, ErrVerificationFailed) {
			t.Errorf("expected ErrVerificationFailed, got %v", err)
		}
	})

	t.Run("nil", func(t *testing.T) {
		if err := VerifyInstruction(nil); !errors.Is(err, ErrMissingInstruction) {
			t.Errorf("expected ErrMissingInstruction, got %v", err)
		}
	})
}

func TestKeypairFileRoundTrip(t *testing.T) {
	kp := mustKeypair(t)
	path := filepath.Join(t.TempDir(), "keys", "admin.json")

	if err := SaveKeypairFile(path, kp); err != nil {
		t.Fatalf("SaveKeypairFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}

	loaded, err := LoadKeypairFile(path)
	if err != nil {
		t.Fatalf("LoadKeypairFile: %v", err)
	}
	if loaded.Pubkey() != kp.Pubkey() {
		t.Error("loaded keypair has a different pubkey")
	}
	if !loaded.PrivateKey().Equal(kp.PrivateKey()) {
		t.Error("loaded keypair has a different private key")
	}
}

func TestLoadKeypairFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	kp := mustKeypair(t)
	mismatched := append([]byte(nil), kp.PrivateKey()...)
	mismatched[40] ^= 0x01

	cases := map[string]string{
		"not json":     "hello",
		"short":        "[1,2,3]",
		"out of range": "[" + repeatInts(63, "0") + ",256]",
		"mismatched":   intsJSON(mismatched),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadKeypairFile(path); !errors.Is(err, ErrInvalidKeypair) {
				t.Errorf("expected ErrInvalidKeypair, got %v", err)
			}
		})
	}

	if _, err := LoadKeypairFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestKeypairFromSeed(t *testing.T) {
	seed := make([]byte, SeedSize)
	seed[0] = 7
	a, err := KeypairFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := KeypairFromSeed(seed)
	if a.Pubkey() != b.Pubkey() {
		t.Error("same seed should give same pubkey")
	}
	want := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	got := a.Pubkey()
	if string(got[:]) != string(want) {
		t.Error("pubkey does not match ed25519 derivation")
	}
	if _, err := KeypairFromSeed(seed[:5]); !errors.Is(err, ErrInvalidKeypair) {
		t.Errorf("expected ErrInvalidKeypair, got %v", err)
	}
}

func TestVerificationError(t *testing.T) {
	err := &VerificationError{Index: 12, Err: ErrVerificationFailed}
	if got := err.Error(); got != "crypto: verification failed at index 12: crypto: signature verification failed" {
		t.Errorf("unexpected message %q", got)
	}
	if !errors.Is(err, ErrVerificationFailed) {
		t.Error("should unwrap to ErrVerificationFailed")
	}
}

func repeatInts(n int, v string) string {
	s := v
	for i := 1; i < n; i++ {
		s += "," + v
	}
	return s
}

func intsJSON(b []byte) string {
	s := "["
	for i, v := range b {
		if i > 0 {
			s += ","
		}
		s += strconv.Itoa(int(v))
	}
	return s + "]"
}
