// Package service exposes run submission, polling and cancellation.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/coordinator"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/events"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/observability"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/runstate"
)

// Runner prepares and executes runs.
type Runner interface {
	Validate(event map[string]any) error
	NewState(opts ...runstate.Option) *runstate.State
	Execute(ctx context.Context, st *runstate.State, event map[string]any)
}

// Registry stores run states.
type Registry interface {
	Add(st *runstate.State) error
	BindSession(sessionID int64, runID string)
	Get(runID string) (*runstate.State, error)
	BySession(sessionID int64) (*runstate.State, error)
	Len() int
}

// RunHandle identifies a submitted run.
type RunHandle struct {
	RunID string `json:"run_id"`
}

// PollResult is what a poller sees of a run.
type PollResult struct {
	RunID           string          `json:"run_id"`
	Status          runstate.Status `json:"status"`
	PercentComplete float64         `json:"percent_complete"`
	Messages        []string        `json:"messages"`
	Error           string          `json:"error,omitempty"`
	SessionID       int64           `json:"session_id,omitempty"`
}

// Option configures a RunService.
type Option func(*RunService)

// WithMetrics sets the metrics collector.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *RunService) {
		s.metrics = m
	}
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p coordinator.EventPublisher) Option {
	return func(s *RunService) {
		s.publisher = p
	}
}

// RunService handles run submission, polling and cancellation.
type RunService struct {
	runner    Runner
	runs      Registry
	publisher coordinator.EventPublisher
	metrics   *observability.Metrics
	logger    infralogger.Logger

	wg sync.WaitGroup
}

// NewRunService creates a new run service.
func NewRunService(runner Runner, runs Registry, logger infralogger.Logger, opts ...Option) *RunService {
	s := &RunService{
		runner: runner,
		runs:   runs,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRun validates event and starts its run in the background. Invalid
// input is returned as a ValidationError and registers nothing.
func (s *RunService) SubmitRun(ctx context.Context, event map[string]any) (RunHandle, error) {
	if err := s.runner.Validate(event); err != nil {
		return RunHandle{}, err
	}

	var st *runstate.State
	st = s.runner.NewState(
		runstate.WithAttachHook(func(sessionID int64) {
			s.runs.BindSession(sessionID, st.ID())
		}),
		runstate.WithTerminalHook(s.finished),
	)
	if err := s.runs.Add(st); err != nil {
		return RunHandle{}, fmt.Errorf("register run: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RunsSubmittedTotal.Inc()
		s.metrics.RunsActive.Inc()
		s.metrics.RegistrySize.Set(float64(s.runs.Len()))
	}
	s.logger.Info("Run submitted", infralogger.RunID(st.ID()))

	// The run outlives the request that submitted it.
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runner.Execute(runCtx, st, event)
	}()

	return RunHandle{RunID: st.ID()}, nil
}

// Poll returns the progress of a run, draining its messages. A poll that
// finds every target finished terminates the run.
func (s *RunService) Poll(ctx context.Context, runID string) (PollResult, error) {
	st, err := s.runs.Get(runID)
	if err != nil {
		return PollResult{}, err
	}
	return s.poll(ctx, st), nil
}

// PollSession polls the run that created a session.
func (s *RunService) PollSession(ctx context.Context, sessionID int64) (PollResult, error) {
	st, err := s.runs.BySession(sessionID)
	if err != nil {
		return PollResult{}, err
	}
	return s.poll(ctx, st), nil
}

func (s *RunService) poll(ctx context.Context, st *runstate.State) PollResult {
	percent, progressErr := st.Progress(ctx)
	if progressErr != nil {
		s.logger.Warn("Progress query failed",
			infralogger.RunID(st.ID()),
			infralogger.Error(progressErr),
		)
	}

	msgs := st.Drain()
	if msgs == nil {
		msgs = []string{}
	}
	snap := st.Snapshot()

	return PollResult{
		RunID:           st.ID(),
		Status:          snap.Status,
		PercentComplete: percent,
		Messages:        msgs,
		Error:           snap.Error,
		SessionID:       snap.SessionID,
	}
}

// Cancel aborts a run. Cancelling a terminal run does nothing.
func (s *RunService) Cancel(_ context.Context, runID string) error {
	st, err := s.runs.Get(runID)
	if err != nil {
		return err
	}
	if runstate.IsTerminal(st.Status()) {
		return nil
	}
	st.Cancel()
	s.logger.Info("Run cancelled", infralogger.RunID(runID))
	return nil
}

// Wait blocks until every submitted run has finished dispatching, or ctx
// ends.
func (s *RunService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RunService) finished(snap runstate.Snapshot) {
	if s.metrics != nil {
		s.metrics.RunsFinishedTotal.WithLabelValues(string(snap.Status)).Inc()
		s.metrics.RunsActive.Dec()
	}

	eventType := events.RunCompleted
	if snap.Status == runstate.StatusAborted {
		eventType = events.RunAborted
	}
	if s.publisher != nil {
		s.publisher.PublishAsync(events.RunEvent{
			EventID:   uuid.New(),
			Type:      eventType,
			RunID:     snap.RunID,
			SessionID: snap.SessionID,
			Status:    string(snap.Status),
			Error:     snap.Error,
			Timestamp: time.Now().UTC(),
		})
	}

	s.logger.Info("Run finished",
		infralogger.RunID(snap.RunID),
		infralogger.SessionID(snap.SessionID),
		infralogger.String("status", string(snap.Status)),
		infralogger.String("error", snap.Error),
	)
}
