package accounts

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// MemoryDB is an in-memory implementation of AccountsDB.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*types.Account
}

// NewMemoryDB creates a new in-memory account database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*types.Account),
	}
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *MemoryDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[pubkey]
	if !exists {
		return nil, nil
	}
	// Return a clone to prevent external modification
	return account.Clone(), nil
}

// SetAccount stores an account.
func (db *MemoryDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	if account == nil {
		return errNilAccount
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts[pubkey] = account.Clone()
	return nil
}

// SetAccounts stores all accounts atomically.
func (db *MemoryDB) SetAccounts(refs []types.AccountRef) error {
	for _, ref := range refs {
		if ref.Account == nil {
			return errNilAccount
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, ref := range refs {
		db.accounts[ref.Pubkey] = ref.Account.Clone()
	}
	return nil
}

// DeleteAccount removes an account.
func (db *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, pubkey)
	return nil
}

// HasAccount returns true if the account exists.
func (db *MemoryDB) HasAccount(pubkey types.Pubkey) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.accounts[pubkey]
	return exists
}

// GetAccountsCount returns the total number of accounts.
func (db *MemoryDB) GetAccountsCount() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.accounts))
}

// ForEach calls fn for every stored account in pubkey order.
func (db *MemoryDB) ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	db.mu.RLock()
	refs := make([]types.AccountRef, 0, len(db.accounts))
	for pubkey, account := range db.accounts {
		refs = append(refs, types.AccountRef{Pubkey: pubkey, Account: account.Clone()})
	}
	db.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool {
		return bytes.Compare(refs[i].Pubkey[:], refs[j].Pubkey[:]) < 0
	})

	for _, ref := range refs {
		if err := fn(ref.Pubkey, ref.Account); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Close closes the database.
func (db *MemoryDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = make(map[types.Pubkey]*types.Account)
	return nil
}

// Ensure MemoryDB implements AccountsDB.
var _ AccountsDB = (*MemoryDB)(nil)
