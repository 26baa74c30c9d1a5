package faculty

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"
)

// fakeSetter records status mutations routed by the controller.
type fakeSetter struct {
	mu    sync.Mutex
	calls []setterCall
	err   error
}

type setterCall struct {
	id     int64
	status bool
}

func (f *fakeSetter) SetStatusWithRetry(_ context.Context, id int64, status bool) (*Faculty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, setterCall{id: id, status: status})
	return &Faculty{ID: id, Name: "Dr. Reyes", Status: status, Version: 2}, nil
}

func (f *fakeSetter) recorded() []setterCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]setterCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeRepo serves a fixed roster for controller tests.
type fakeRepo struct {
	byID      map[int64]*Faculty
	byName    map[string]*Faculty
	bleTarget *Faculty

	heartbeats []int64
	mu         sync.Mutex
}

func (r *fakeRepo) GetByID(_ context.Context, id int64) (*Faculty, error) {
	if f, ok := r.byID[id]; ok {
		return f.DeepCopy(), nil
	}
	return nil, ErrFacultyNotFound
}

func (r *fakeRepo) GetByName(_ context.Context, name string) (*Faculty, error) {
	if f, ok := r.byName[name]; ok {
		return f.DeepCopy(), nil
	}
	return nil, ErrFacultyNotFound
}

func (r *fakeRepo) List(context.Context) ([]Faculty, error) { return nil, nil }

func (r *fakeRepo) FirstWithBLE(context.Context) (*Faculty, error) {
	if r.bleTarget == nil {
		return nil, ErrNoLegacyTarget
	}
	return r.bleTarget.DeepCopy(), nil
}

func (r *fakeRepo) Create(context.Context, *Faculty) error { return nil }

func (r *fakeRepo) UpdateLastSeen(_ context.Context, id int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats = append(r.heartbeats, id)
	return nil
}

func (r *fakeRepo) GetByIDTx(*sql.Tx, int64) (*Faculty, error) { return nil, ErrFacultyNotFound }
func (r *fakeRepo) ApplyStatusTx(*sql.Tx, *Faculty) error      { return nil }

func newTestController() (*Controller, *fakeSetter, *fakeRepo) {
	setter := &fakeSetter{}
	repo := &fakeRepo{
		byID:   map[int64]*Faculty{7: {ID: 7, Name: "Dr. Reyes"}},
		byName: map[string]*Faculty{"Dr. Reyes": {ID: 7, Name: "Dr. Reyes"}},
	}
	c := NewController(setter, repo, nil, nil)
	return c, setter, repo
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name       string
		payload    any
		wantStatus bool
		wantOK     bool
	}{
		{"object present bool", map[string]any{"present": true}, true, true},
		{"object present string", map[string]any{"present": "true"}, true, true},
		{"object status bool", map[string]any{"status": false}, false, true},
		{"object status string false", map[string]any{"status": "false"}, false, true},
		{"object present wins over status", map[string]any{"present": true, "status": false}, true, true},
		{"bare bool", true, true, true},
		{"bare number one", float64(1), true, true},
		{"bare number zero", float64(0), false, true},
		{"legacy connected", "keychain_connected", true, true},
		{"legacy disconnected", "keychain_disconnected", false, true},
		{"legacy present", "faculty_present", true, true},
		{"legacy absent", "faculty_absent", false, true},
		{"garbage string", "hello", false, false},
		{"empty object", map[string]any{}, false, false},
		{"nil", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := parseStatus(tt.payload)
			if ok != tt.wantOK || status != tt.wantStatus {
				t.Errorf("parseStatus(%v) = (%v, %v), want (%v, %v)",
					tt.payload, status, ok, tt.wantStatus, tt.wantOK)
			}
		})
	}
}

func TestControllerHandleStatus(t *testing.T) {
	c, setter, _ := newTestController()

	err := c.handleStatus("consultease/faculty/7/status", map[string]any{"present": true})
	if err != nil {
		t.Fatalf("handleStatus() error = %v", err)
	}

	calls := setter.recorded()
	if len(calls) != 1 || calls[0].id != 7 || !calls[0].status {
		t.Errorf("recorded calls = %+v, want one call (7, true)", calls)
	}
}

func TestControllerHandleStatusUnknownPayload(t *testing.T) {
	c, setter, _ := newTestController()

	if err := c.handleStatus("consultease/faculty/7/status", "gibberish"); err != nil {
		t.Fatalf("handleStatus() error = %v", err)
	}
	if len(setter.recorded()) != 0 {
		t.Error("unparseable payload should not reach the synchronizer")
	}
}

func TestControllerLegacyStringAttribution(t *testing.T) {
	c, setter, repo := newTestController()
	ble := "AA:BB:CC:DD:EE:FF"
	repo.bleTarget = &Faculty{ID: 3, Name: "Dr. Cruz", BLEID: &ble}

	if err := c.handleLegacyStatus("faculty/status", "keychain_connected"); err != nil {
		t.Fatalf("handleLegacyStatus() error = %v", err)
	}

	calls := setter.recorded()
	if len(calls) != 1 || calls[0].id != 3 || !calls[0].status {
		t.Errorf("recorded calls = %+v, want one call (3, true)", calls)
	}
}

func TestControllerLegacyStringNoTarget(t *testing.T) {
	c, setter, _ := newTestController()

	if err := c.handleLegacyStatus("faculty/status", "keychain_disconnected"); err != nil {
		t.Fatalf("handleLegacyStatus() error = %v, want nil (skipped)", err)
	}
	if len(setter.recorded()) != 0 {
		t.Error("unattributable legacy message should be skipped")
	}
}

func TestControllerLegacyObjectByID(t *testing.T) {
	c, setter, _ := newTestController()

	payload := map[string]any{"faculty_id": float64(7), "status": true}
	if err := c.handleLegacyStatus("faculty/status", payload); err != nil {
		t.Fatalf("handleLegacyStatus() error = %v", err)
	}

	calls := setter.recorded()
	if len(calls) != 1 || calls[0].id != 7 || !calls[0].status {
		t.Errorf("recorded calls = %+v, want one call (7, true)", calls)
	}
}

func TestControllerLegacyObjectByName(t *testing.T) {
	c, setter, _ := newTestController()

	payload := map[string]any{"faculty_name": "Dr. Reyes", "status": false}
	if err := c.handleLegacyStatus("faculty/status", payload); err != nil {
		t.Fatalf("handleLegacyStatus() error = %v", err)
	}

	calls := setter.recorded()
	if len(calls) != 1 || calls[0].id != 7 || calls[0].status {
		t.Errorf("recorded calls = %+v, want one call (7, false)", calls)
	}
}

func TestControllerHeartbeat(t *testing.T) {
	c, setter, repo := newTestController()

	if err := c.handleHeartbeat("consultease/faculty/7/heartbeat", map[string]any{"uptime": 120.0}); err != nil {
		t.Fatalf("handleHeartbeat() error = %v", err)
	}

	repo.mu.Lock()
	beats := len(repo.heartbeats)
	repo.mu.Unlock()
	if beats != 1 {
		t.Errorf("heartbeats recorded = %d, want 1", beats)
	}
	if len(setter.recorded()) != 0 {
		t.Error("heartbeat must not trigger a status mutation")
	}
}

func TestControllerCallbacks(t *testing.T) {
	c, _, _ := newTestController()

	var got *Faculty
	c.RegisterCallback(func(f *Faculty) { got = f })

	if err := c.handleStatus("consultease/faculty/7/status", true); err != nil {
		t.Fatalf("handleStatus() error = %v", err)
	}
	if got == nil || got.ID != 7 || !got.Status {
		t.Errorf("callback received %+v, want faculty 7 with status true", got)
	}
}

func TestControllerUnknownFacultySkipped(t *testing.T) {
	c, setter, _ := newTestController()
	setter.err = ErrFacultyNotFound

	if err := c.handleStatus("consultease/faculty/42/status", true); err != nil {
		t.Errorf("handleStatus() error = %v, want nil for unknown faculty", err)
	}
}
