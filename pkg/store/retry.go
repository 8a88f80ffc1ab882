package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// SQLite result codes that clear up on their own. The server is the only
// writer, but an `inspect` run or a second process on the same file can
// still hold the lock while a snapshot commits.
const (
	codeBusy           = 5
	codeLocked         = 6
	codeIOErrShortRead = 522
)

type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Snapshots are periodic and not latency sensitive, so they wait longer
// between attempts than an interactive write would.
var snapshotRetryConfig = retryConfig{
	maxRetries: 5,
	baseDelay:  100 * time.Millisecond,
	maxDelay:   2 * time.Second,
}

func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch {
		case code == codeIOErrShortRead:
			return true
		case code&0xff == codeBusy, code&0xff == codeLocked:
			return true
		}
		return false
	}

	// busy_timeout expiry can surface as plain text
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// retryOp runs fn until it succeeds, fails permanently, runs out of attempts
// or ctx ends. Waits grow exponentially with jitter.
func retryOp(ctx context.Context, cfg retryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt == cfg.maxRetries {
			break
		}

		select {
		case <-time.After(backoffDelay(cfg, attempt)):
		case <-ctx.Done():
			return fmt.Errorf("%w (gave up after %d attempts: %v)", ctx.Err(), attempt+1, lastErr)
		}
	}
	return fmt.Errorf("still failing after %d attempts: %w", cfg.maxRetries+1, lastErr)
}

func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}
