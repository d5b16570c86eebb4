// Package registry keeps the runs of this process addressable by run id and
// session id, and evicts finished runs on a schedule.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/runstate"
)

const (
	// DefaultRetention is how long an observed terminal run is kept.
	DefaultRetention = 10 * time.Minute
	// DefaultMaxRetention is how long any terminal run is kept.
	DefaultMaxRetention = time.Hour
	// DefaultSchedule is the eviction schedule.
	DefaultSchedule = "@every 1m"
)

// Config configures eviction.
type Config struct {
	Retention    time.Duration
	MaxRetention time.Duration
	Schedule     string
}

// DefaultConfig returns the stock eviction settings.
func DefaultConfig() Config {
	return Config{
		Retention:    DefaultRetention,
		MaxRetention: DefaultMaxRetention,
		Schedule:     DefaultSchedule,
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithEvictHook registers fn to be called with every evicted run.
func WithEvictHook(fn func(runstate.Snapshot)) Option {
	return func(r *Registry) {
		r.onEvict = fn
	}
}

// Registry maps run ids and session ids to run states.
type Registry struct {
	cfg     Config
	logger  infralogger.Logger
	now     func() time.Time
	onEvict func(runstate.Snapshot)
	cron    *cron.Cron

	mu       sync.RWMutex
	runs     map[string]*runstate.State
	sessions map[int64]string
}

// New creates an empty registry. Eviction starts with Start.
func New(cfg Config, logger infralogger.Logger, opts ...Option) *Registry {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.MaxRetention < cfg.Retention {
		cfg.MaxRetention = max(DefaultMaxRetention, cfg.Retention)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}

	r := &Registry{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		runs:     make(map[string]*runstate.State),
		sessions: make(map[int64]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return r
}

// Start schedules eviction.
func (r *Registry) Start() error {
	if _, err := r.cron.AddFunc(r.cfg.Schedule, func() { r.Evict() }); err != nil {
		return fmt.Errorf("schedule eviction %q: %w", r.cfg.Schedule, err)
	}
	r.cron.Start()
	r.logger.Info("Run registry eviction scheduled",
		infralogger.String("schedule", r.cfg.Schedule),
		infralogger.Duration("retention", r.cfg.Retention),
		infralogger.Duration("max_retention", r.cfg.MaxRetention),
	)
	return nil
}

// Stop stops the eviction schedule and waits for a running pass.
func (r *Registry) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Add registers st under its run id.
func (r *Registry) Add(st *runstate.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[st.ID()]; exists {
		return fmt.Errorf("run %s already registered", st.ID())
	}
	r.runs[st.ID()] = st
	return nil
}

// BindSession makes the run reachable by its session id.
func (r *Registry) BindSession(sessionID int64, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = runID
}

// Get returns the run with the given id.
func (r *Registry) Get(runID string) (*runstate.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrRunNotFound)
	}
	return st, nil
}

// BySession returns the run attached to a session.
func (r *Registry) BySession(sessionID int64) (*runstate.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runID, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", sessionID, domain.ErrRunNotFound)
	}
	return r.runs[runID], nil
}

// Len returns the number of registered runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Active returns the number of runs that are not terminal.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, st := range r.runs {
		if !runstate.IsTerminal(st.Status()) {
			n++
		}
	}
	return n
}

// ActiveSessions returns the session ids of runs that are not terminal.
func (r *Registry) ActiveSessions() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.sessions))
	for sessionID, runID := range r.sessions {
		if st, ok := r.runs[runID]; ok && !runstate.IsTerminal(st.Status()) {
			ids = append(ids, sessionID)
		}
	}
	return ids
}

// Evict removes terminal runs that were observed and finished more than
// Retention ago, and any terminal run finished more than MaxRetention ago.
// Running runs are never evicted. It returns the number of evicted runs.
func (r *Registry) Evict() int {
	now := r.now()

	r.mu.Lock()
	var evicted []runstate.Snapshot
	for id, st := range r.runs {
		if !r.expired(st, now) {
			continue
		}
		snap := st.Snapshot()
		delete(r.runs, id)
		if snap.SessionID != 0 {
			delete(r.sessions, snap.SessionID)
		}
		evicted = append(evicted, snap)
	}
	r.mu.Unlock()

	for _, snap := range evicted {
		r.logger.Debug("Evicted run",
			infralogger.RunID(snap.RunID),
			infralogger.SessionID(snap.SessionID),
			infralogger.String("status", string(snap.Status)),
		)
		if r.onEvict != nil {
			r.onEvict(snap)
		}
	}
	return len(evicted)
}

func (r *Registry) expired(st *runstate.State, now time.Time) bool {
	if !runstate.IsTerminal(st.Status()) {
		return false
	}
	age := now.Sub(st.FinishedAt())
	if age >= r.cfg.MaxRetention {
		return true
	}
	return st.Observed() && age >= r.cfg.Retention
}
