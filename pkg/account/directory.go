package account

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"go.uber.org/zap"

	"ircxprop/pkg/casemap"
)

const (
	tableAccount = "account"
	indexID      = "id"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableAccount: {
				Name: tableAccount,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}
}

// entry is the row stored in memdb. Rows are never modified after insert;
// the account they point to carries the mutable epoch and properties.
type entry struct {
	Key     string
	Account *Account
}

// Directory holds every known account, keyed by case-folded name.
// It is owned by the server goroutine and is not safe for concurrent writers.
type Directory struct {
	db     *memdb.MemDB
	logger *zap.Logger
	now    func() time.Time
	count  int
}

// NewDirectory creates an empty account directory
func NewDirectory(logger *zap.Logger) (*Directory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create account index: %w", err)
	}

	return &Directory{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Key returns the index key for an account name.
func Key(name string) string {
	return casemap.Fold(name)
}

// Find looks an account up by name. When create is set and the account does
// not exist, a new one stamped with the current time is inserted. The second
// result reports whether the account was created by this call.
func (d *Directory) Find(name string, create bool) (*Account, bool) {
	key := Key(name)

	if acct := d.lookup(key); acct != nil {
		return acct, false
	}
	if !create || name == "" {
		return nil, false
	}

	acct := &Account{Name: name, Key: key, creationTS: d.now().Unix()}
	if err := d.insert(acct); err != nil {
		d.logger.Error("Failed to insert account", zap.String("account", name), zap.Error(err))
		return nil, false
	}

	d.logger.Debug("Created account", zap.String("account", name), zap.Int64("creation_ts", acct.creationTS))
	return acct, true
}

// Restore inserts an account with a known creation time, as read from a
// snapshot. An existing account with the same name is returned unchanged.
func (d *Directory) Restore(name string, creationTS int64) *Account {
	key := Key(name)
	if acct := d.lookup(key); acct != nil {
		return acct
	}

	acct := &Account{Name: name, Key: key, creationTS: creationTS}
	if err := d.insert(acct); err != nil {
		d.logger.Error("Failed to restore account", zap.String("account", name), zap.Error(err))
		return nil
	}
	return acct
}

// Len returns the number of accounts.
func (d *Directory) Len() int {
	return d.count
}

// All returns every account ordered by folded name.
func (d *Directory) All() []*Account {
	txn := d.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableAccount, indexID)
	if err != nil {
		d.logger.Error("Failed to iterate accounts", zap.Error(err))
		return nil
	}

	var out []*Account
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*entry).Account)
	}
	return out
}

func (d *Directory) lookup(key string) *Account {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableAccount, indexID, key)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*entry).Account
}

func (d *Directory) insert(acct *Account) error {
	txn := d.db.Txn(true)
	if err := txn.Insert(tableAccount, &entry{Key: acct.Key, Account: acct}); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	d.count++
	return nil
}
