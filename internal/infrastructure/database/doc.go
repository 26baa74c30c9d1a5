// Package database provides resilient SQLite access for the ConsultEase
// central core.
//
// This package manages:
//   - Connection pool setup with WAL mode and immediate write locking
//   - Embedded schema migrations
//   - Session acquisition with liveness probes and bounded retry
//   - Scoped transaction helpers that commit, roll back and release
//     deterministically
//   - Pool health statistics for the observability surface
//
// # Resilience
//
// Every session handed out by Acquire has passed a SELECT 1 probe; transient
// store unavailability is absorbed by up to MaxRetries attempts with capped
// exponential backoff. Only after exhausting attempts does the package
// surface ErrStoreUnavailable, which callers must treat as "operation did not
// complete; current state unchanged".
//
// # Transactions
//
// Connections are opened with _txlock=immediate, so WithTx callers hold the
// database write lock for the whole read-modify-write, the SQLite equivalent
// of SELECT ... FOR UPDATE.
package database
