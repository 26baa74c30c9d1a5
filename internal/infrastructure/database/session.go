package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session acquisition constants.
const (
	// defaultMaxRetries is the number of acquisition attempts before
	// ErrStoreUnavailable is returned.
	defaultMaxRetries = 3

	// retryBaseDelay is the wait after the first failed attempt; it doubles
	// per attempt up to retryMaxDelay.
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 2 * time.Second

	// probeTimeout bounds the per-attempt liveness probe.
	probeTimeout = 3 * time.Second
)

// Acquire returns a connection from the pool after verifying it with a
// liveness probe (SELECT 1). Up to MaxRetries attempts are made, with an
// exponentially increasing delay between attempts, before the store is
// reported unavailable.
//
// The returned connection must be released with Close; prefer WithConn or
// WithTx, which guarantee release on every exit path.
//
// Returns:
//   - *sql.Conn: Verified connection
//   - error: ErrStoreUnavailable (wrapped with the last probe failure) after
//     exhausting attempts, or the context's error if it is cancelled
func (db *DB) Acquire(ctx context.Context) (*sql.Conn, error) {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 1; attempt <= db.maxRetries; attempt++ {
		conn, err := db.Conn(ctx)
		if err == nil {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			var one int
			err = conn.QueryRowContext(probeCtx, "SELECT 1").Scan(&one)
			cancel()
			if err == nil {
				return conn, nil
			}
			conn.Close() //nolint:errcheck // Probe failed, connection is suspect
		}
		lastErr = err

		if attempt == db.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquiring session: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, lastErr)
}

// AcquireFresh is Acquire for reads that must observe the latest committed
// values. database/sql has no object cache to discard; the guarantee comes
// from running the read on its own verified connection, outside any open
// transaction of the caller's.
func (db *DB) AcquireFresh(ctx context.Context) (*sql.Conn, error) {
	return db.Acquire(ctx)
}

// WithConn acquires a verified connection, passes it to fn and always
// releases it back to the pool, regardless of how fn exits.
func (db *DB) WithConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck // Release back to pool

	return fn(conn)
}

// WithTx acquires a verified connection, begins a transaction, and passes it
// to fn. The transaction is committed if fn returns nil and rolled back
// otherwise; the connection is always released back to the pool.
//
// Transactions take SQLite's write lock immediately (see Open), so fn's reads
// are pessimistically locked against concurrent writers from other processes.
//
// Returns:
//   - error: fn's error (the transaction was rolled back), a commit error,
//     or ErrStoreUnavailable if no session could be acquired
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return db.WithConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return fmt.Errorf("rolling back after %w: %w", err, rbErr)
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
}
