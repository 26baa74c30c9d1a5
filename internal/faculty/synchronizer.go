package faculty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/consultease/consultease-core/internal/infrastructure/database"
	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
)

// Retry policy for the mutation wrapper. Retries re-enter the whole
// operation, lock acquisition included; they never resume mid-transaction.
const (
	defaultUpdateAttempts = 3
	updateRetryBaseDelay  = 200 * time.Millisecond

	// notifyQoS is the delivery level for status notifications. Retained
	// at-least-once delivery is the convergence mechanism for late
	// subscribers; the sequence number deduplicates redelivery.
	notifyQoS = 1

	// verifyTimeout bounds the post-commit verification read.
	verifyTimeout = 5 * time.Second
)

// Sequencer hands out process-wide monotonically increasing sequence
// numbers for status notifications. Injected so tests can reset or fake it;
// durability across restarts is intentionally not provided (retained
// delivery, not the sequence, is what converges late subscribers).
type Sequencer interface {
	Next() int64
}

// AtomicSequencer is the default Sequencer.
type AtomicSequencer struct {
	n atomic.Int64
}

// Next returns the next sequence number, starting at 1.
func (s *AtomicSequencer) Next() int64 {
	return s.n.Add(1)
}

// Publisher is the outbound messaging surface the synchronizer needs.
// Implemented by mqtt.Service.
type Publisher interface {
	PublishAsync(topic string, payload any, qos byte, retain bool) error
}

// HistoryRecorder receives committed status transitions for long-term
// storage. Optional; a nil recorder disables history.
type HistoryRecorder interface {
	WriteStatusChange(facultyID int64, facultyName string, status, previousStatus bool, version, sequence int64)
}

// Synchronizer applies status changes to faculty records
// effectively-exactly-once under concurrent callers.
//
// Each mutation runs under a per-faculty mutex covering the transaction, the
// post-commit verification, the cache invalidation and the notification
// publish. The mutex map grows by one entry per distinct faculty id seen,
// which is fine for a roster-sized population.
//
// Two concurrent callers for the same faculty serialize on the mutex; two
// processes serialize on the store's immediate transactions. The sequence
// number is assigned inside the critical section, so notification order
// matches commit order for any single faculty.
type Synchronizer struct {
	db        *database.DB
	repo      Repository
	registry  *Registry
	publisher Publisher
	seq       Sequencer
	recorder  HistoryRecorder
	logger    Logger
	topics    mqtt.Topics

	locks sync.Map // faculty id -> *sync.Mutex
}

// NewSynchronizer creates a status synchronizer.
// The registry and recorder may be nil; publisher and sequencer may not.
func NewSynchronizer(db *database.DB, repo Repository, registry *Registry, publisher Publisher, seq Sequencer, logger Logger) *Synchronizer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Synchronizer{
		db:        db,
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		seq:       seq,
		logger:    logger,
	}
}

// SetRecorder attaches an optional status history recorder.
func (s *Synchronizer) SetRecorder(recorder HistoryRecorder) {
	s.recorder = recorder
}

// SetStatus applies a status change to one faculty.
//
// Identical repeated statuses short-circuit: the current record is returned
// unchanged, with no version bump and no notification. This keeps noisy
// presence beacons from inflating version counters.
//
// On an actual transition the record's version advances by one, the change
// is committed, verified by an independent read, the read cache is
// invalidated, and a sequenced retained notification goes out on the system
// notifications topic and the faculty's status_update topic.
//
// Returns:
//   - *Faculty: the record after the operation (changed or not)
//   - error: ErrFacultyNotFound, database.ErrStoreUnavailable, or a
//     commit failure; in every error case no partial state was persisted
func (s *Synchronizer) SetStatus(ctx context.Context, id int64, status bool) (*Faculty, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	var (
		result   *Faculty
		previous bool
		changed  bool
	)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		f, err := s.repo.GetByIDTx(tx, id)
		if err != nil {
			return err
		}

		if f.Status == status {
			result = f
			return nil
		}

		previous = f.Status
		now := time.Now().UTC()
		f.Status = status
		f.LastSeen = &now
		f.Version++

		if err := s.repo.ApplyStatusTx(tx, f); err != nil {
			return err
		}

		result = f
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		s.logger.Debug("faculty status unchanged",
			"faculty_id", id,
			"status", status,
		)
		return result, nil
	}

	s.verifyCommitted(ctx, result)

	if s.registry != nil {
		s.registry.Invalidate(id)
	}

	s.notify(result, previous)

	return result, nil
}

// SetStatusWithRetry wraps SetStatus with a small fixed attempt cap and
// exponential backoff, retrying only store-unavailability. A missing faculty
// is a caller mistake, never retried.
func (s *Synchronizer) SetStatusWithRetry(ctx context.Context, id int64, status bool) (*Faculty, error) {
	var lastErr error
	delay := updateRetryBaseDelay

	for attempt := 1; attempt <= defaultUpdateAttempts; attempt++ {
		f, err := s.SetStatus(ctx, id, status)
		if err == nil {
			return f, nil
		}
		if errors.Is(err, ErrFacultyNotFound) {
			return nil, err
		}
		lastErr = err

		if attempt == defaultUpdateAttempts {
			break
		}
		s.logger.Warn("status update failed, retrying",
			"faculty_id", id,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("updating faculty status: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, lastErr
}

// verifyCommitted re-reads the faculty on a fresh connection, outside the
// committed transaction, and logs a consistency fault on mismatch. The write
// already committed; this detects lost updates, it does not repair them.
func (s *Synchronizer) verifyCommitted(ctx context.Context, want *Faculty) {
	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	conn, err := s.db.AcquireFresh(verifyCtx)
	if err != nil {
		s.logger.Error("post-commit verification read failed",
			"faculty_id", want.ID,
			"error", err,
		)
		return
	}
	defer conn.Close() //nolint:errcheck // Release back to pool

	var status, version int64
	err = conn.QueryRowContext(verifyCtx,
		"SELECT status, version FROM faculty WHERE id = ?", want.ID,
	).Scan(&status, &version)
	if err != nil {
		s.logger.Error("post-commit verification read failed",
			"faculty_id", want.ID,
			"error", err,
		)
		return
	}

	if (status != 0) != want.Status || version != want.Version {
		s.logger.Error("post-commit status mismatch, possible lost update",
			"faculty_id", want.ID,
			"want_status", want.Status,
			"got_status", status != 0,
			"want_version", want.Version,
			"got_version", version,
		)
		return
	}

	s.logger.Debug("post-commit verification passed",
		"faculty_id", want.ID,
		"version", version,
	)
}

// notify publishes the sequenced retained notification for one committed
// transition. Called with the per-faculty mutex held.
func (s *Synchronizer) notify(f *Faculty, previous bool) {
	timestamp := ""
	if f.LastSeen != nil {
		timestamp = f.LastSeen.Format(time.RFC3339)
	}

	n := StatusNotification{
		Type:           "faculty_status",
		FacultyID:      f.ID,
		FacultyName:    f.Name,
		Status:         f.Status,
		PreviousStatus: previous,
		Sequence:       s.seq.Next(),
		Timestamp:      timestamp,
		Version:        f.Version,
	}

	for _, topic := range []string{
		s.topics.SystemNotifications(),
		s.topics.FacultyStatusUpdate(f.ID),
	} {
		if err := s.publisher.PublishAsync(topic, n, notifyQoS, true); err != nil {
			s.logger.Error("publishing status notification",
				"topic", topic,
				"faculty_id", f.ID,
				"error", err,
			)
		}
	}

	if s.recorder != nil {
		s.recorder.WriteStatusChange(f.ID, f.Name, f.Status, previous, f.Version, n.Sequence)
	}

	s.logger.Info("faculty status changed",
		"faculty_id", f.ID,
		"status", f.Status,
		"previous_status", previous,
		"version", f.Version,
		"sequence", n.Sequence,
	)
}

// lockFor returns the mutex for a faculty id, creating it on first use.
// LoadOrStore makes creation race-free: both racers end up with the same
// mutex.
func (s *Synchronizer) lockFor(id int64) *sync.Mutex {
	if mu, ok := s.locks.Load(id); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
