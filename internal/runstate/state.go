// Package runstate tracks one run from input validation to completion. A
// State is shared between the coordinator that drives the run and any number
// of pollers.
package runstate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// WarningPrefix marks warning messages.
const WarningPrefix = "WARNING: "

// ProgressSource reports the counters of a session.
type ProgressSource interface {
	SessionProgress(ctx context.Context, sessionID int64) (domain.SessionProgress, error)
}

// Canceller stops the outstanding work of a run.
type Canceller interface {
	Cancel()
}

// Snapshot is a consistent copy of a State.
type Snapshot struct {
	RunID      string    `json:"run_id"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	SessionID  int64     `json:"session_id,omitempty"`
	Percent    float64   `json:"percent_complete"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Option configures a State.
type Option func(*State)

// WithTerminalHook registers fn to be called once the run turns terminal.
// Hooks run without the state lock held.
func WithTerminalHook(fn func(Snapshot)) Option {
	return func(s *State) {
		s.onTerminal = append(s.onTerminal, fn)
	}
}

// WithAttachHook registers fn to be called with the session id once a worker
// pool is attached.
func WithAttachHook(fn func(sessionID int64)) Option {
	return func(s *State) {
		s.onAttach = append(s.onAttach, fn)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *State) {
		s.now = now
	}
}

// State is the state machine of one run. All methods are safe for
// concurrent use.
type State struct {
	id     string
	source ProgressSource
	now    func() time.Time

	onTerminal []func(Snapshot)
	onAttach   []func(int64)

	mu         sync.Mutex
	status     Status
	err        error
	msgs       []string
	pool       Canceller
	sessionID  int64
	percent    float64
	observed   bool
	createdAt  time.Time
	finishedAt time.Time
}

// New creates an UNINIT state. source answers progress queries once a
// session is attached.
func New(runID string, source ProgressSource, opts ...Option) *State {
	s := &State{
		id:     runID,
		source: source,
		now:    time.Now,
		status: StatusUninit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	return s
}

// ID returns the run id.
func (s *State) ID() string {
	return s.id
}

// Start moves the run to RUNNING and records msg.
func (s *State) Start(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateTransition(s.status, StatusRunning); err != nil {
		return &domain.IllegalStateError{Op: "start", State: string(s.status)}
	}
	s.status = StatusRunning
	if msg != "" {
		s.msgs = append(s.msgs, msg)
	}
	return nil
}

// AttachWorkerPool records the handle used to cancel the run and the
// session whose counters drive progress.
func (s *State) AttachWorkerPool(pool Canceller, sessionID int64) error {
	s.mu.Lock()
	if s.status != StatusRunning {
		st := s.status
		s.mu.Unlock()
		return &domain.IllegalStateError{Op: "attach worker pool", State: string(st)}
	}
	s.pool = pool
	s.sessionID = sessionID
	hooks := s.onAttach
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(sessionID)
	}
	return nil
}

// Stop ends a non terminal run. A nil reason completes a RUNNING run that has
// no worker pool attached. With a pool attached, or before Start, the run was
// interrupted and is aborted by user. Stop on a terminal run is a no-op.
func (s *State) Stop(reason error) {
	s.mu.Lock()
	if IsTerminal(s.status) {
		s.mu.Unlock()
		return
	}

	if s.pool != nil {
		s.pool.Cancel()
	}
	if reason == nil && (s.pool != nil || s.status == StatusUninit) {
		reason = domain.ErrAbortedByUser
	}

	var fire func()
	if reason != nil {
		fire = s.finishLocked(StatusAborted, reason)
	} else {
		s.msgs = append(s.msgs, "Process completed")
		fire = s.finishLocked(StatusDone, nil)
	}
	s.mu.Unlock()
	fire()
}

// Abort ends the run with err. It is how coordinator failures, including
// invalid input before RUNNING, are recorded.
func (s *State) Abort(err error) {
	if err == nil {
		err = domain.ErrAbortedByUser
	}
	s.Stop(err)
}

// Cancel aborts the run on behalf of the user.
func (s *State) Cancel() {
	s.Stop(domain.ErrAbortedByUser)
}

// Progress returns the percentage of finished targets, rounded down to a
// whole number. When every target is
// finished it terminates the run and returns 100. Terminal runs always
// report 100 without side effects. The session query runs without the lock
// held.
func (s *State) Progress(ctx context.Context) (float64, error) {
	s.mu.Lock()
	if IsTerminal(s.status) {
		s.observed = true
		s.mu.Unlock()
		return 100, nil
	}
	if s.sessionID == 0 {
		p := s.percent
		s.mu.Unlock()
		return p, nil
	}
	sessionID := s.sessionID
	s.mu.Unlock()

	prog, err := s.source.SessionProgress(ctx, sessionID)

	s.mu.Lock()
	if IsTerminal(s.status) {
		s.observed = true
		s.mu.Unlock()
		return 100, nil
	}
	if err != nil {
		p := s.percent
		s.mu.Unlock()
		return p, fmt.Errorf("session progress: %w", err)
	}

	if prog.Done() < prog.Total {
		s.percent = max(s.percent, math.Floor(100*float64(prog.Done())/float64(prog.Total)))
		p := s.percent
		s.mu.Unlock()
		return p, nil
	}

	var fire func()
	switch {
	case prog.DoneFailed > prog.Total:
		fire = s.finishLocked(StatusAborted, fmt.Errorf("%w (internal server error)", domain.ErrNoTargetSucceeded))
	case prog.DoneFailed == prog.Total:
		fire = s.finishLocked(StatusAborted, domain.ErrNoTargetSucceeded)
	default:
		summary := fmt.Sprintf("%d of %d ground motion distributions successfully calculated", prog.DoneOK, prog.Total)
		if prog.DoneOK < prog.Total {
			summary = WarningPrefix + summary
		}
		s.msgs = append(s.msgs, summary)
		fire = s.finishLocked(StatusDone, nil)
	}
	s.observed = true
	s.mu.Unlock()
	fire()
	return 100, nil
}

func (s *State) finishLocked(to Status, err error) func() {
	if ValidateTransition(s.status, to) != nil {
		return func() {}
	}
	s.status = to
	s.err = err
	s.percent = 100
	s.finishedAt = s.now()

	snap := s.snapshotLocked()
	hooks := s.onTerminal
	return func() {
		for _, fn := range hooks {
			fn(snap)
		}
	}
}

// Msg appends messages. Messages sent after the run turned terminal are
// dropped.
func (s *State) Msg(msgs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if IsTerminal(s.status) {
		return
	}
	s.msgs = append(s.msgs, msgs...)
}

// Warning appends messages marked as warnings.
func (s *State) Warning(msgs ...string) {
	warnings := make([]string, len(msgs))
	for i, m := range msgs {
		warnings[i] = WarningPrefix + m
	}
	s.Msg(warnings...)
}

// Msgf appends a formatted message.
func (s *State) Msgf(format string, args ...any) {
	s.Msg(fmt.Sprintf(format, args...))
}

// Drain returns and clears the buffered messages.
func (s *State) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.msgs
	s.msgs = nil
	return out
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the terminal error of an aborted run.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SessionID returns the attached session id, or 0.
func (s *State) SessionID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Observed reports whether a poller has seen the run terminal.
func (s *State) Observed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observed
}

// FinishedAt returns when the run turned terminal, or the zero time.
func (s *State) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		RunID:      s.id,
		Status:     s.status,
		SessionID:  s.sessionID,
		Percent:    s.percent,
		CreatedAt:  s.createdAt,
		FinishedAt: s.finishedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}
