package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ircxprop/pkg/account"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ircxprop.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newDirectory(t *testing.T) *account.Directory {
	t.Helper()
	dir, err := account.NewDirectory(zaptest.NewLogger(t))
	require.NoError(t, err)
	return dir
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	src := newDirectory(t)
	alice := src.Restore("Alice", 100)
	alice.Props().Add("passphrase", "hash", "irc.example.org").SetAt = 111
	alice.Props().Add("email", "alice@example.org", "alice!a@host").SetAt = 112
	src.Restore("bob", 200)

	require.NoError(t, s.SaveAccounts(ctx, Snapshot(src)))

	dst := newDirectory(t)
	n, err := s.LoadAccounts(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ := dst.Find("alice", false)
	require.NotNil(t, got)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, int64(100), got.Epoch())

	props := got.Props().All()
	require.Len(t, props, 2)
	assert.Equal(t, "passphrase", props[0].Name)
	assert.Equal(t, int64(111), props[0].SetAt)
	assert.Equal(t, "email", props[1].Name)
	assert.Equal(t, "alice!a@host", props[1].Setter)

	bob, _ := dst.Find("bob", false)
	require.NotNil(t, bob)
	assert.Equal(t, 0, bob.Props().Len())
}

func TestStore_SaveReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first := []AccountRecord{{Name: "old", CreationTS: 1}}
	require.NoError(t, s.SaveAccounts(ctx, first))

	second := []AccountRecord{{Name: "new", CreationTS: 2}}
	require.NoError(t, s.SaveAccounts(ctx, second))

	records, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].Name)
}

func TestStore_ListEmpty(t *testing.T) {
	s := newStore(t)

	records, err := s.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSnapshot_IsDetached(t *testing.T) {
	dir := newDirectory(t)
	acct := dir.Restore("alice", 100)
	acct.Props().Add("email", "before", "x")

	records := Snapshot(dir)
	acct.Props().Add("email", "after", "x")

	require.Len(t, records, 1)
	assert.Equal(t, "before", records[0].Props[0].Value)
}

func TestRetryOp(t *testing.T) {
	cfg := retryConfig{maxRetries: 2, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}

	t.Run("transient then success", func(t *testing.T) {
		calls := 0
		err := retryOp(context.Background(), cfg, func() error {
			calls++
			if calls < 2 {
				return errors.New("database is locked")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent", func(t *testing.T) {
		calls := 0
		err := retryOp(context.Background(), cfg, func() error {
			calls++
			return errors.New("no such table")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := retryOp(context.Background(), cfg, func() error {
			calls++
			return errors.New("database table is locked")
		})
		assert.ErrorContains(t, err, "after 3 attempts")
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := retryConfig{maxRetries: 5, baseDelay: time.Hour, maxDelay: time.Hour}
		calls := 0
		err := retryOp(ctx, slow, func() error {
			calls++
			cancel()
			return errors.New("database is locked")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsTransientSQLiteErr(t *testing.T) {
	assert.False(t, isTransientSQLiteErr(nil))
	assert.True(t, isTransientSQLiteErr(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isTransientSQLiteErr(errors.New("UNIQUE constraint failed")))
}
