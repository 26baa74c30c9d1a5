package faculty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// facultyColumns is the column list shared by every faculty SELECT.
const facultyColumns = `id, name, department, email, ble_id, status, version,
	last_seen, created_at, updated_at`

// Repository defines the interface for faculty persistence operations.
// The SQLite implementation is the production one; tests may substitute
// an in-memory fake.
type Repository interface {
	// GetByID retrieves a faculty by id.
	// Returns ErrFacultyNotFound if no such faculty exists.
	GetByID(ctx context.Context, id int64) (*Faculty, error)

	// GetByName retrieves a faculty by exact name.
	GetByName(ctx context.Context, name string) (*Faculty, error)

	// List retrieves all faculty ordered by name.
	List(ctx context.Context) ([]Faculty, error)

	// FirstWithBLE returns the first faculty with a configured BLE beacon.
	// Legacy desk units do not identify their faculty; this is the
	// attribution fallback. Returns ErrNoLegacyTarget if none is configured.
	FirstWithBLE(ctx context.Context) (*Faculty, error)

	// Create inserts a new faculty.
	// Returns ErrFacultyExists on id collision.
	Create(ctx context.Context, f *Faculty) error

	// UpdateLastSeen records a heartbeat without touching status or version.
	UpdateLastSeen(ctx context.Context, id int64, seen time.Time) error

	// GetByIDTx reads a faculty inside the caller's transaction. With the
	// connection pool's immediate transactions this is a pessimistic locked
	// read: no other writer can touch the row until the transaction ends.
	GetByIDTx(tx *sql.Tx, id int64) (*Faculty, error)

	// ApplyStatusTx writes the mutated status, last_seen and version inside
	// the caller's transaction. The caller has already incremented Version.
	ApplyStatusTx(tx *sql.Tx, f *Faculty) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a faculty by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty WHERE id = ?`

	f, err := scanFaculty(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFacultyNotFound
		}
		return nil, fmt.Errorf("querying faculty by id: %w", err)
	}
	return f, nil
}

// GetByName retrieves a faculty by exact name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty WHERE name = ?`

	f, err := scanFaculty(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFacultyNotFound
		}
		return nil, fmt.Errorf("querying faculty by name: %w", err)
	}
	return f, nil
}

// List retrieves all faculty ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing faculty: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var out []Faculty
	for rows.Next() {
		f, err := scanFaculty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning faculty row: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating faculty rows: %w", err)
	}
	return out, nil
}

// FirstWithBLE returns the first faculty with a configured BLE beacon.
func (r *SQLiteRepository) FirstWithBLE(ctx context.Context) (*Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty
		WHERE ble_id IS NOT NULL ORDER BY id LIMIT 1`

	f, err := scanFaculty(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoLegacyTarget
		}
		return nil, fmt.Errorf("querying BLE faculty: %w", err)
	}
	return f, nil
}

// Create inserts a new faculty.
func (r *SQLiteRepository) Create(ctx context.Context, f *Faculty) error {
	query := `
		INSERT INTO faculty (id, name, department, email, ble_id, status, version, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if f.Version < 1 {
		f.Version = 1
	}

	_, err := r.db.ExecContext(ctx, query,
		f.ID,
		f.Name,
		f.Department,
		nullString(f.Email),
		nullString(f.BLEID),
		boolToInt(f.Status),
		f.Version,
		nullTime(f.LastSeen),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrFacultyExists
		}
		return fmt.Errorf("inserting faculty: %w", err)
	}
	return nil
}

// UpdateLastSeen records a heartbeat timestamp.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, id int64, seen time.Time) error {
	query := `UPDATE faculty SET last_seen = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, formatTime(seen), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking last_seen update: %w", err)
	}
	if n == 0 {
		return ErrFacultyNotFound
	}
	return nil
}

// GetByIDTx reads a faculty inside the caller's transaction.
func (r *SQLiteRepository) GetByIDTx(tx *sql.Tx, id int64) (*Faculty, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty WHERE id = ?`

	f, err := scanFaculty(tx.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFacultyNotFound
		}
		return nil, fmt.Errorf("querying faculty in transaction: %w", err)
	}
	return f, nil
}

// ApplyStatusTx writes the mutated status fields inside the caller's
// transaction.
func (r *SQLiteRepository) ApplyStatusTx(tx *sql.Tx, f *Faculty) error {
	query := `
		UPDATE faculty
		SET status = ?, last_seen = ?, version = ?, updated_at = ?
		WHERE id = ?`

	res, err := tx.Exec(query,
		boolToInt(f.Status),
		nullTime(f.LastSeen),
		f.Version,
		formatTime(time.Now()),
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("updating faculty status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking status update: %w", err)
	}
	if n == 0 {
		return ErrFacultyNotFound
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFaculty reads one faculty row. Timestamps are stored as RFC 3339 text.
func scanFaculty(row rowScanner) (*Faculty, error) {
	var (
		f         Faculty
		email     sql.NullString
		bleID     sql.NullString
		status    int64
		lastSeen  sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(
		&f.ID,
		&f.Name,
		&f.Department,
		&email,
		&bleID,
		&status,
		&f.Version,
		&lastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = status != 0
	if email.Valid {
		f.Email = &email.String
	}
	if bleID.Valid {
		f.BLEID = &bleID.String
	}
	if lastSeen.Valid {
		t, err := parseTime(lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		f.LastSeen = &t
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &f, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
