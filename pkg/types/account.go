package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// Account is the persisted form of a ledger account.
type Account struct {
	Lamports   Lamports // Balance in lamports
	Data       []byte   // Program-owned storage
	Owner      Pubkey   // Program allowed to mutate Data and debit Lamports
	Executable bool     // Is this a program account?
}

// NewAccount creates a new account without data.
func NewAccount(lamports Lamports, owner Pubkey) *Account {
	return &Account{
		Lamports: lamports,
		Owner:    owner,
	}
}

// NewAccountWithData creates a new account with data.
func NewAccountWithData(lamports Lamports, data []byte, owner Pubkey) *Account {
	return &Account{
		Lamports: lamports,
		Data:     data,
		Owner:    owner,
	}
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// DataLen returns the length of account data.
func (a *Account) DataLen() uint64 {
	return uint64(len(a.Data))
}

// IsEmpty returns true if the account has zero lamports and no data.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Equal reports whether two accounts hold the same state.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// Hash computes SHA256(lamports || data || executable || owner || pubkey).
func (a *Account) Hash(pubkey Pubkey) Hash {
	h := sha256.New()

	var lamportsBuf [8]byte
	binary.LittleEndian.PutUint64(lamportsBuf[:], uint64(a.Lamports))
	h.Write(lamportsBuf[:])
	h.Write(a.Data)
	if a.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(a.Owner[:])
	h.Write(pubkey[:])

	var result Hash
	copy(result[:], h.Sum(nil))
	return result
}

// AccountMeta describes an account in an instruction.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// NewAccountMeta returns a writable meta.
func NewAccountMeta(pubkey Pubkey, isSigner bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: isSigner, IsWritable: true}
}

// NewReadonlyAccountMeta returns a read-only meta.
func NewReadonlyAccountMeta(pubkey Pubkey, isSigner bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: isSigner}
}

// AccountDelta represents a change to an account.
type AccountDelta struct {
	Pubkey     Pubkey
	OldAccount *Account // nil if new account
	NewAccount *Account
}

// IsCreation returns true if this is a new account.
func (d *AccountDelta) IsCreation() bool {
	return d.OldAccount == nil && d.NewAccount != nil
}

// AccountRef pairs an account with its address.
type AccountRef struct {
	Pubkey  Pubkey
	Account *Account
}
