package consultation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const consultationColumns = `id, message_id, student_name, faculty_id, message,
	status, requested_at, responded_at, busy_at`

// Repository defines the interface for consultation persistence.
type Repository interface {
	// Create inserts a new pending consultation.
	// Returns ErrDuplicateMessageID on message id collision.
	Create(ctx context.Context, c *Consultation) error

	// GetByMessageID retrieves a consultation by its wire message id.
	GetByMessageID(ctx context.Context, messageID string) (*Consultation, error)

	// UpdateStatus moves a pending consultation into a terminal state,
	// stamping responded_at (and busy_at for busy responses). Returns
	// ErrNotPending if the consultation already left pending, making
	// response application idempotent under QoS-1 redelivery.
	UpdateStatus(ctx context.Context, id int64, status Status) error

	// ListByFaculty retrieves a faculty's consultations, newest first.
	ListByFaculty(ctx context.Context, facultyID int64) ([]Consultation, error)

	// CountByStatus reports how many consultations are in each state.
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new pending consultation.
func (r *SQLiteRepository) Create(ctx context.Context, c *Consultation) error {
	query := `
		INSERT INTO consultations (message_id, student_name, faculty_id, message, status, requested_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	if c.Status == "" {
		c.Status = StatusPending
	}
	if c.RequestedAt.IsZero() {
		c.RequestedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, query,
		c.MessageID,
		c.StudentName,
		c.FacultyID,
		c.Message,
		string(c.Status),
		formatTime(c.RequestedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateMessageID
		}
		return fmt.Errorf("inserting consultation: %w", err)
	}

	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading consultation id: %w", err)
	}
	return nil
}

// GetByMessageID retrieves a consultation by its wire message id.
func (r *SQLiteRepository) GetByMessageID(ctx context.Context, messageID string) (*Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE message_id = ?`

	c, err := scanConsultation(r.db.QueryRowContext(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, fmt.Errorf("querying consultation by message id: %w", err)
	}
	return c, nil
}

// UpdateStatus moves a pending consultation into a terminal state.
// The WHERE status = 'pending' guard makes the transition race-free: of two
// concurrent responses, exactly one sees a row change.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	now := formatTime(time.Now())

	var (
		query string
		args  []any
	)
	if status == StatusBusy {
		query = `UPDATE consultations SET status = ?, responded_at = ?, busy_at = ?
			WHERE id = ? AND status = ?`
		args = []any{string(status), now, now, id, string(StatusPending)}
	} else {
		query = `UPDATE consultations SET status = ?, responded_at = ?
			WHERE id = ? AND status = ?`
		args = []any{string(status), now, id, string(StatusPending)}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating consultation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking consultation update: %w", err)
	}
	if n == 0 {
		// Either missing or already terminal; disambiguate for the caller.
		var exists int
		err := r.db.QueryRowContext(ctx,
			"SELECT 1 FROM consultations WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConsultationNotFound
		}
		if err != nil {
			return fmt.Errorf("checking consultation existence: %w", err)
		}
		return ErrNotPending
	}
	return nil
}

// ListByFaculty retrieves a faculty's consultations, newest first.
func (r *SQLiteRepository) ListByFaculty(ctx context.Context, facultyID int64) ([]Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations
		WHERE faculty_id = ? ORDER BY requested_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, facultyID)
	if err != nil {
		return nil, fmt.Errorf("listing consultations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var out []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning consultation row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating consultation rows: %w", err)
	}
	return out, nil
}

// CountByStatus reports how many consultations are in each state.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM consultations GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting consultations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	out := make(map[Status]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		out[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating count rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsultation(row rowScanner) (*Consultation, error) {
	var (
		c           Consultation
		status      string
		requestedAt string
		respondedAt sql.NullString
		busyAt      sql.NullString
	)

	err := row.Scan(
		&c.ID,
		&c.MessageID,
		&c.StudentName,
		&c.FacultyID,
		&c.Message,
		&status,
		&requestedAt,
		&respondedAt,
		&busyAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = Status(status)
	if c.RequestedAt, err = parseTime(requestedAt); err != nil {
		return nil, fmt.Errorf("parsing requested_at: %w", err)
	}
	if respondedAt.Valid {
		t, err := parseTime(respondedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing responded_at: %w", err)
		}
		c.RespondedAt = &t
	}
	if busyAt.Valid {
		t, err := parseTime(busyAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing busy_at: %w", err)
		}
		c.BusyAt = &t
	}
	return &c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
