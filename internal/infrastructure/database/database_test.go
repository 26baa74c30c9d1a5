package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:        filepath.Join(t.TempDir(), "consultease.db"),
		WALMode:     true,
		BusyTimeout: 5,
		PoolSize:    4,
		MaxRetries:  3,
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpenAndHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Path = filepath.Join(filepath.Dir(cfg.Path), "nested", "dir", "consultease.db")

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() with nested path error = %v", err)
	}
	db.Close()
}

func TestStatsSnapshot(t *testing.T) {
	db := openTestDB(t)

	stats := db.Stats()
	if stats.Open < 0 || stats.InUse < 0 {
		t.Errorf("Stats() = %+v, want non-negative counters", stats)
	}
}

func TestAcquireVerifiesConnection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	conn, err := db.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer conn.Close()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		t.Errorf("acquired connection unusable: %v", err)
	}
}

func TestAcquireStoreUnavailable(t *testing.T) {
	db, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	db.Close()

	start := time.Now()
	_, err = db.Acquire(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Acquire() on closed pool error = %v, want ErrStoreUnavailable", err)
	}
	// Three attempts with backoff, not an immediate failure.
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("Acquire() failed after %v, want retries with backoff first", elapsed)
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	db, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := db.Acquire(ctx); err == nil {
		t.Error("Acquire() with cancelled context should fail")
	}
}

func TestWithTxCommit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "CREATE TABLE notes (body TEXT)")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('hello')")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d after commit, want 1", count)
	}
}

func TestWithTxRollbackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE notes (body TEXT)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('doomed')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d after rollback, want 0", count)
	}
}

func TestWithConnReleases(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// More calls than the pool holds; leaks would deadlock or error.
	for i := 0; i < 10; i++ {
		err := db.WithConn(ctx, func(conn *sql.Conn) error {
			var one int
			return conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
		})
		if err != nil {
			t.Fatalf("WithConn(#%d) error = %v", i, err)
		}
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantDesc    string
		wantOK      bool
	}{
		{"20260815_120000_initial_schema.sql", "20260815_120000", "initial_schema", true},
		{"20260901_083000_add_index.sql", "20260901_083000", "add_index", true},
		{"notaversion.sql", "", "", false},
		{"20260815_missing.sql", "", "", false},
	}

	for _, tt := range tests {
		version, desc, ok := parseMigrationFilename(tt.name)
		if version != tt.wantVersion || desc != tt.wantDesc || ok != tt.wantOK {
			t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.name, version, desc, ok, tt.wantVersion, tt.wantDesc, tt.wantOK)
		}
	}
}
