package faculty

import "time"

// Faculty represents one consultation provider and their presence state.
//
// Status is the presence flag (true = available for consultation). Version is
// the optimistic-concurrency counter: it advances by exactly one per
// committed status transition and never otherwise, so a gap or repeat in
// observed versions indicates a lost update.
type Faculty struct {
	ID         int64
	Name       string
	Department string
	Email      *string
	BLEID      *string
	Status     bool
	Version    int64
	LastSeen   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeepCopy returns an independent copy. Cached records are handed out as
// copies so callers can safely modify them.
func (f *Faculty) DeepCopy() *Faculty {
	if f == nil {
		return nil
	}
	out := *f
	if f.Email != nil {
		v := *f.Email
		out.Email = &v
	}
	if f.BLEID != nil {
		v := *f.BLEID
		out.BLEID = &v
	}
	if f.LastSeen != nil {
		v := *f.LastSeen
		out.LastSeen = &v
	}
	return &out
}

// StatusNotification is the payload published after a committed status
// transition, retained on both the system notifications topic and the
// entity-scoped status_update topic.
//
// Sequence totally orders notifications emitted by this process; it is
// assigned while the per-faculty mutex is held, so notification order always
// matches commit order for a given faculty.
type StatusNotification struct {
	Type           string `json:"type"`
	FacultyID      int64  `json:"faculty_id"`
	FacultyName    string `json:"faculty_name"`
	Status         bool   `json:"status"`
	PreviousStatus bool   `json:"previous_status"`
	Sequence       int64  `json:"sequence"`
	Timestamp      string `json:"timestamp"`
	Version        int64  `json:"version"`
}
