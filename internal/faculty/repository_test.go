package faculty

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the faculty table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE faculty (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			department TEXT NOT NULL DEFAULT '',
			email TEXT,
			ble_id TEXT,
			status INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			last_seen TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_faculty_ble_id ON faculty(ble_id);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testFaculty creates a faculty record for testing.
func testFaculty(id int64, name string) *Faculty {
	return &Faculty{
		ID:         id,
		Name:       name,
		Department: "Computer Science",
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	f := testFaculty(7, "Dr. Reyes")
	ble := "AA:BB:CC:DD:EE:FF"
	f.BLEID = &ble

	if err := repo.Create(ctx, f); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, 7)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Dr. Reyes" {
		t.Errorf("Name = %q, want Dr. Reyes", got.Name)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1 for a new record", got.Version)
	}
	if got.Status {
		t.Error("Status = true, want false for a new record")
	}
	if got.BLEID == nil || *got.BLEID != ble {
		t.Errorf("BLEID = %v, want %q", got.BLEID, ble)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), 99)
	if !errors.Is(err, ErrFacultyNotFound) {
		t.Errorf("GetByID() error = %v, want ErrFacultyNotFound", err)
	}
}

func TestRepositoryCreateDuplicate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testFaculty(7, "Dr. Reyes")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, testFaculty(7, "Dr. Cruz")); !errors.Is(err, ErrFacultyExists) {
		t.Errorf("Create() duplicate error = %v, want ErrFacultyExists", err)
	}
}

func TestRepositoryGetByName(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testFaculty(7, "Dr. Reyes")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByName(ctx, "Dr. Reyes")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got.ID != 7 {
		t.Errorf("ID = %d, want 7", got.ID)
	}

	if _, err := repo.GetByName(ctx, "Nobody"); !errors.Is(err, ErrFacultyNotFound) {
		t.Errorf("GetByName(Nobody) error = %v, want ErrFacultyNotFound", err)
	}
}

func TestRepositoryListOrdered(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, f := range []*Faculty{
		testFaculty(1, "Zamora"),
		testFaculty(2, "Alonzo"),
		testFaculty(3, "Mercado"),
	} {
		if err := repo.Create(ctx, f); err != nil {
			t.Fatalf("Create(%s) error = %v", f.Name, err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"Alonzo", "Mercado", "Zamora"}
	if len(list) != len(want) {
		t.Fatalf("List() returned %d records, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("List()[%d].Name = %q, want %q", i, list[i].Name, name)
		}
	}
}

func TestRepositoryFirstWithBLE(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.FirstWithBLE(ctx); !errors.Is(err, ErrNoLegacyTarget) {
		t.Errorf("FirstWithBLE() on empty table error = %v, want ErrNoLegacyTarget", err)
	}

	if err := repo.Create(ctx, testFaculty(1, "Dr. Cruz")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	withBLE := testFaculty(2, "Dr. Reyes")
	ble := "AA:BB:CC:DD:EE:FF"
	withBLE.BLEID = &ble
	if err := repo.Create(ctx, withBLE); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.FirstWithBLE(ctx)
	if err != nil {
		t.Fatalf("FirstWithBLE() error = %v", err)
	}
	if got.ID != 2 {
		t.Errorf("FirstWithBLE().ID = %d, want 2", got.ID)
	}
}

func TestRepositoryUpdateLastSeen(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testFaculty(7, "Dr. Reyes")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	seen := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	if err := repo.UpdateLastSeen(ctx, 7, seen); err != nil {
		t.Fatalf("UpdateLastSeen() error = %v", err)
	}

	got, err := repo.GetByID(ctx, 7)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d after heartbeat, want unchanged 1", got.Version)
	}

	if err := repo.UpdateLastSeen(ctx, 99, seen); !errors.Is(err, ErrFacultyNotFound) {
		t.Errorf("UpdateLastSeen(99) error = %v, want ErrFacultyNotFound", err)
	}
}

func TestRepositoryTxStatusUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testFaculty(7, "Dr. Reyes")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}

	f, err := repo.GetByIDTx(tx, 7)
	if err != nil {
		t.Fatalf("GetByIDTx() error = %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	f.Status = true
	f.LastSeen = &now
	f.Version++

	if err := repo.ApplyStatusTx(tx, f); err != nil {
		t.Fatalf("ApplyStatusTx() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := repo.GetByID(ctx, 7)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.Status {
		t.Error("Status = false after committed update, want true")
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
}

func TestRepositoryTxRollbackLeavesRowUntouched(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testFaculty(7, "Dr. Reyes")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}

	f, err := repo.GetByIDTx(tx, 7)
	if err != nil {
		t.Fatalf("GetByIDTx() error = %v", err)
	}
	f.Status = true
	f.Version++
	if err := repo.ApplyStatusTx(tx, f); err != nil {
		t.Fatalf("ApplyStatusTx() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	got, err := repo.GetByID(ctx, 7)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status || got.Version != 1 {
		t.Errorf("after rollback: Status = %v, Version = %d; want false, 1", got.Status, got.Version)
	}
}
