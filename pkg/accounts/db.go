// Package accounts provides account storage for the ledger.
package accounts

import (
	"errors"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// ErrStopIteration may be returned from a ForEach callback to end the walk
// early without an error.
var ErrStopIteration = errors.New("stop iteration")

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	// SetAccount stores an account.
	SetAccount(pubkey types.Pubkey, account *types.Account) error

	// SetAccounts stores all accounts atomically.
	SetAccounts(refs []types.AccountRef) error

	// DeleteAccount removes an account.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount returns true if the account exists.
	HasAccount(pubkey types.Pubkey) bool

	// GetAccountsCount returns the total number of accounts.
	GetAccountsCount() uint64

	// ForEach calls fn for every stored account in pubkey order.
	ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error

	// Close closes the database.
	Close() error
}
