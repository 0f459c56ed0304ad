package tracking

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultRefreshInterval = 10 * time.Second
	fetchTimeout           = 30 * time.Second
)

// Store periodically projects the external SQLite tracking database into
// memory. Refreshes are reference-counted so multiple UI observers can
// share one background loop.
type Store struct {
	path   string
	logger *slog.Logger

	interval atomic.Int64 // nanoseconds, read live by loop

	mu         sync.Mutex
	projection Projection
	refCount   int
	cancel     context.CancelFunc

	refreshMu    sync.Mutex
	refreshing   bool
	needsRefresh bool
}

// New builds a Store reading from path on the given refresh cadence (zero
// or negative falls back to defaultRefreshInterval). No I/O happens until
// Start.
func New(path string, logger *slog.Logger, interval time.Duration) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	s := &Store{path: path, logger: logger}
	s.interval.Store(int64(interval))
	return s
}

// SetRefreshInterval changes the refresh cadence the running loop polls at.
// Takes effect on the loop's next tick; safe to call concurrently with a
// live Start'd loop.
func (s *Store) SetRefreshInterval(d time.Duration) {
	if d <= 0 {
		d = defaultRefreshInterval
	}
	s.interval.Store(int64(d))
}

func (s *Store) refreshInterval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Snapshot returns a copy of the current projection.
func (s *Store) Snapshot() Projection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projection
}

// SelectProject changes which project's workspaces/plans are projected
// and triggers an immediate refresh.
func (s *Store) SelectProject(id *int64) {
	s.mu.Lock()
	s.projection.SelectedProjectID = id
	s.mu.Unlock()
	s.Refresh()
}

// Start begins the periodic refresh loop if it isn't already running
// (reference-counted: call Stop once per Start).
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refCount++
	if s.refCount > 1 {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(loopCtx)
}

// Stop releases one reference; the loop is cancelled once every caller
// has released.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refCount == 0 {
		return
	}
	s.refCount--
	if s.refCount == 0 && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// loop re-reads the refresh interval on every iteration, so a live config
// reload's SetRefreshInterval call changes the cadence without restarting
// the daemon.
func (s *Store) loop(ctx context.Context) {
	s.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.refreshInterval()):
			s.Refresh()
		}
	}
}

// Refresh runs one projection pass. If a refresh is already in flight, it
// sets needs_refresh so the in-flight pass loops once more after
// completing instead of running concurrently with itself.
func (s *Store) Refresh() {
	s.refreshMu.Lock()
	if s.refreshing {
		s.needsRefresh = true
		s.refreshMu.Unlock()
		return
	}
	s.refreshing = true
	s.refreshMu.Unlock()

	for {
		s.refreshOnce()

		s.refreshMu.Lock()
		if s.needsRefresh {
			s.needsRefresh = false
			s.refreshMu.Unlock()
			continue
		}
		s.refreshing = false
		s.refreshMu.Unlock()
		return
	}
}

func (s *Store) refreshOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	captured := s.Snapshot().SelectedProjectID

	db, err := openReadOnlyConn(s.path)
	if err != nil {
		s.setError(err.Error())
		return
	}
	defer db.Close()

	projects, err := fetchProjects(ctx, db)
	if err != nil {
		s.setError(err.Error())
		return
	}

	s.mu.Lock()
	s.projection.Projects = projects
	s.mu.Unlock()

	if captured == nil {
		s.setLoaded()
		return
	}

	workspaces, err := fetchWorkspaces(ctx, db, *captured)
	if err != nil {
		s.setError(err.Error())
		return
	}
	plans, err := fetchPlans(ctx, db, *captured)
	if err != nil {
		s.setError(err.Error())
		return
	}
	depStatus, err := fetchDependencyStatus(ctx, db, *captured)
	if err != nil {
		s.setError(err.Error())
		return
	}

	now := time.Now()
	for i := range plans {
		hasUnresolved := depStatus[plans[i].UUID]
		plans[i].HasUnresolvedDependency = hasUnresolved
		plans[i].DisplayStatus = deriveDisplayStatus(plans[i].Status, hasUnresolved, plans[i].UpdatedAt, now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !selectionUnchanged(s.projection.SelectedProjectID, captured) {
		s.logger.Debug("tracking: selection changed mid-fetch, discarding result")
		return
	}
	s.projection.Workspaces = workspaces
	s.projection.Plans = plans
	s.projection.LoadState = LoadStateLoaded
	s.projection.LoadError = ""
}

func selectionUnchanged(current, captured *int64) bool {
	if current == nil || captured == nil {
		return current == captured
	}
	return *current == *captured
}

func (s *Store) setError(msg string) {
	s.logger.Warn("tracking: refresh failed", "error", msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projection.LoadState = LoadStateError
	s.projection.LoadError = msg
}

func (s *Store) setLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projection.LoadState = LoadStateLoaded
	s.projection.LoadError = ""
}
