package accounts

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

const (
	// accountKeyPrefix is the prefix for account keys in BadgerDB.
	accountKeyPrefix = "account:"
)

// BadgerDB is a persistent implementation of AccountsDB using BadgerDB.
type BadgerDB struct {
	db    *badger.DB
	count atomic.Uint64
}

// badgerLogger routes badger's internal logging to zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

// NewBadgerDB creates a new BadgerDB account database at the specified path.
// A nil logger disables badger logging.
func NewBadgerDB(path string, logger *zap.Logger) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	if logger == nil {
		opts.Logger = nil
	} else {
		opts.Logger = badgerLogger{logger.Named("badger").Sugar()}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	bdb := &BadgerDB{
		db: db,
	}

	count, err := bdb.countAccounts()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	bdb.count.Store(count)

	return bdb, nil
}

// makeAccountKey creates the key for an account.
func makeAccountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, len(accountKeyPrefix)+types.PubkeyLength)
	copy(key, accountKeyPrefix)
	copy(key[len(accountKeyPrefix):], pubkey[:])
	return key
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *BadgerDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	key := makeAccountKey(pubkey)
	var account *types.Account

	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			var deserErr error
			account, deserErr = DeserializeAccount(val)
			return deserErr
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// SetAccount stores an account.
func (db *BadgerDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	return db.SetAccounts([]types.AccountRef{{Pubkey: pubkey, Account: account}})
}

// SetAccounts stores all accounts in a single transaction.
func (db *BadgerDB) SetAccounts(refs []types.AccountRef) error {
	values := make([][]byte, len(refs))
	for i, ref := range refs {
		if ref.Account == nil {
			return errNilAccount
		}
		data, err := SerializeAccount(ref.Account)
		if err != nil {
			return fmt.Errorf("failed to serialize account: %w", err)
		}
		values[i] = data
	}

	var created uint64
	err := db.db.Update(func(txn *badger.Txn) error {
		created = 0
		seen := make(map[types.Pubkey]bool, len(refs))
		for i, ref := range refs {
			key := makeAccountKey(ref.Pubkey)

			_, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				if !seen[ref.Pubkey] {
					created++
				}
			case err != nil:
				return err
			}
			seen[ref.Pubkey] = true

			if err := txn.Set(key, values[i]); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to set accounts: %w", err)
	}

	db.count.Add(created)
	return nil
}

// DeleteAccount removes an account.
func (db *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	key := makeAccountKey(pubkey)
	var deleted bool

	err := db.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil // Already deleted
		}
		if err != nil {
			return err
		}

		if err := txn.Delete(key); err != nil {
			return err
		}
		deleted = true
		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if deleted {
		db.count.Add(^uint64(0)) // Decrement by 1
	}
	return nil
}

// HasAccount returns true if the account exists.
func (db *BadgerDB) HasAccount(pubkey types.Pubkey) bool {
	key := makeAccountKey(pubkey)
	var exists bool

	_ = db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		exists = err == nil
		return nil
	})

	return exists
}

// GetAccountsCount returns the total number of accounts.
func (db *BadgerDB) GetAccountsCount() uint64 {
	return db.count.Load()
}

// ForEach calls fn for every stored account in pubkey order.
func (db *BadgerDB) ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(accountKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var pubkey types.Pubkey
			copy(pubkey[:], item.Key()[len(accountKeyPrefix):])

			var account *types.Account
			if err := item.Value(func(val []byte) error {
				var deserErr error
				account, deserErr = DeserializeAccount(val)
				return deserErr
			}); err != nil {
				return fmt.Errorf("account %s: %w", pubkey, err)
			}

			if err := fn(pubkey, account); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, ErrStopIteration) {
		return nil
	}
	return err
}

// Close closes the database.
func (db *BadgerDB) Close() error {
	return db.db.Close()
}

// countAccounts counts all accounts in the database.
func (db *BadgerDB) countAccounts() (uint64, error) {
	var count uint64
	prefix := []byte(accountKeyPrefix)

	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Only need keys for counting
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}

// Ensure BadgerDB implements AccountsDB.
var _ AccountsDB = (*BadgerDB)(nil)
