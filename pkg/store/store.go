// Package store keeps an SQLite snapshot of the account directory so that
// accounts and their properties survive a restart.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ircxprop/pkg/account"
	"ircxprop/pkg/propset"

	_ "modernc.org/sqlite"
)

// AccountRecord is a detached copy of one account.
type AccountRecord struct {
	Name       string
	CreationTS int64
	Props      []propset.Property
}

// Store manages the snapshot database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens (or creates) the database at path and initializes the schema.
func New(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func retryOnContention(ctx context.Context, fn func() error) error {
	return retryOp(ctx, snapshotRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		key         TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		creation_ts INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS account_props (
		account_key TEXT NOT NULL REFERENCES accounts(key) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		name        TEXT NOT NULL,
		value       TEXT NOT NULL,
		set_at      INTEGER NOT NULL,
		setter      TEXT NOT NULL,
		PRIMARY KEY (account_key, name)
	);
	CREATE INDEX IF NOT EXISTS idx_account_props_seq ON account_props(account_key, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Snapshot copies every account in dir. It must run on the goroutine that
// owns the directory; the result can be saved from anywhere.
func Snapshot(dir *account.Directory) []AccountRecord {
	accounts := dir.All()
	out := make([]AccountRecord, 0, len(accounts))
	for _, acct := range accounts {
		rec := AccountRecord{Name: acct.Name, CreationTS: acct.Epoch()}
		for _, p := range acct.Props().All() {
			rec.Props = append(rec.Props, *p)
		}
		out = append(out, rec)
	}
	return out
}

// SaveAccounts replaces the stored snapshot with records.
func (s *Store) SaveAccounts(ctx context.Context, records []AccountRecord) error {
	err := retryOnContention(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM account_props`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
			return err
		}

		for _, rec := range records {
			key := account.Key(rec.Name)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (key, name, creation_ts) VALUES (?, ?, ?)`,
				key, rec.Name, rec.CreationTS); err != nil {
				return err
			}
			for seq, p := range rec.Props {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO account_props (account_key, seq, name, value, set_at, setter)
					 VALUES (?, ?, ?, ?, ?, ?)`,
					key, seq, p.Name, p.Value, p.SetAt, p.Setter); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}

	s.logger.Debug("Saved account snapshot", zap.Int("accounts", len(records)))
	return nil
}

// ListAccounts reads the stored snapshot ordered by account key, with
// properties in their original order.
func (s *Store) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.key, a.name, a.creation_ts, p.name, p.value, p.set_at, p.setter
		 FROM accounts a
		 LEFT JOIN account_props p ON p.account_key = a.key
		 ORDER BY a.key, p.seq`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []AccountRecord
	lastKey := ""
	for rows.Next() {
		var (
			key, name     string
			creationTS    int64
			pName, pValue sql.NullString
			pSetAt        sql.NullInt64
			pSetter       sql.NullString
		)
		if err := rows.Scan(&key, &name, &creationTS, &pName, &pValue, &pSetAt, &pSetter); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if len(out) == 0 || key != lastKey {
			out = append(out, AccountRecord{Name: name, CreationTS: creationTS})
			lastKey = key
		}
		if pName.Valid {
			rec := &out[len(out)-1]
			rec.Props = append(rec.Props, propset.Property{
				Name:   pName.String,
				Value:  pValue.String,
				SetAt:  pSetAt.Int64,
				Setter: pSetter.String,
			})
		}
	}
	return out, rows.Err()
}

// LoadAccounts restores the stored snapshot into dir and returns the number
// of accounts loaded.
func (s *Store) LoadAccounts(ctx context.Context, dir *account.Directory) (int, error) {
	records, err := s.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}

	for _, rec := range records {
		acct := dir.Restore(rec.Name, rec.CreationTS)
		if acct == nil {
			continue
		}
		for _, p := range rec.Props {
			restored := acct.Props().Add(p.Name, p.Value, p.Setter)
			restored.SetAt = p.SetAt
		}
	}

	s.logger.Info("Loaded account snapshot", zap.Int("accounts", len(records)))
	return len(records), nil
}
