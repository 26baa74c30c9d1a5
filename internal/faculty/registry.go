package faculty

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides faculty lookups with an in-memory read cache.
//
// The cache is a read-through cache over the Repository, invalidated by the
// Synchronizer after every committed status change so readers never serve a
// pre-transition record once the transition's notification is out.
//
// All public methods are thread-safe. Returned records are deep copies.
type Registry struct {
	repo    Repository
	cache   map[int64]*Faculty
	listOK  bool
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new faculty registry over a repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[int64]*Faculty),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all faculty from the repository into the cache.
// Called on startup and whenever a full reload is cheaper than piecemeal
// invalidation.
func (r *Registry) RefreshCache(ctx context.Context) error {
	list, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading faculty: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[int64]*Faculty, len(list))
	for i := range list {
		f := list[i]
		r.cache[f.ID] = f.DeepCopy()
	}
	r.listOK = true

	r.logger.Info("faculty cache refreshed", "count", len(list))
	return nil
}

// Get retrieves a faculty by id, from cache when possible.
// Returns ErrFacultyNotFound if the faculty does not exist.
func (r *Registry) Get(ctx context.Context, id int64) (*Faculty, error) {
	r.cacheMu.RLock()
	if f, ok := r.cache[id]; ok {
		out := f.DeepCopy()
		r.cacheMu.RUnlock()
		return out, nil
	}
	r.cacheMu.RUnlock()

	f, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[f.ID] = f.DeepCopy()
	r.cacheMu.Unlock()

	return f, nil
}

// List retrieves all faculty, ordered by name as the repository orders them.
// Served from cache only after a full refresh; partial caches fall through
// to the repository.
func (r *Registry) List(ctx context.Context) ([]Faculty, error) {
	r.cacheMu.RLock()
	if r.listOK {
		out := make([]Faculty, 0, len(r.cache))
		for _, f := range r.cache {
			out = append(out, *f.DeepCopy())
		}
		r.cacheMu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}
	r.cacheMu.RUnlock()

	return r.repo.List(ctx)
}

// Invalidate drops a single faculty from the cache. The cached list is
// dropped with it; the next List falls through to the repository.
func (r *Registry) Invalidate(id int64) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	delete(r.cache, id)
	r.listOK = false
	r.logger.Debug("faculty cache invalidated", "faculty_id", id)
}

// InvalidateAll drops the entire cache.
func (r *Registry) InvalidateAll() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[int64]*Faculty)
	r.listOK = false
}
