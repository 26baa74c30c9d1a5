package database

import "errors"

// Domain-specific errors for store access.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrStoreUnavailable is returned when session acquisition exhausts all
	// retry attempts. Callers must treat the associated operation as failed;
	// no partial state has been written.
	ErrStoreUnavailable = errors.New("database: store unavailable after retries")

	// ErrMigrationFailed is returned when a schema migration cannot be applied.
	ErrMigrationFailed = errors.New("database: migration failed")
)
