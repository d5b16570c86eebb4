package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
)

// ErrJobPanicked wraps a panic raised by a job.
var ErrJobPanicked = errors.New("job panicked")

// WorkerState represents the current state of a worker.
type WorkerState int32

const (
	WorkerStateIdle WorkerState = iota
	WorkerStateBusy
)

// String returns the string representation of a worker state.
func (s WorkerState) String() string {
	switch s {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Job is one unit of work. Run receives a context that is cancelled when
// the job's group is cancelled or the job timeout expires.
type Job struct {
	ID  string
	Run func(ctx context.Context) error

	// finish is set by Group and always called once the job leaves the pool.
	finish func(err error)
}

func (j *Job) done(err error) {
	if j.finish != nil {
		j.finish(err)
	}
}

// Worker executes one job at a time.
type Worker struct {
	id         int
	state      atomic.Int32
	jobTimeout time.Duration
	logger     infralogger.Logger

	jobsProcessed atomic.Int64
	jobsSucceeded atomic.Int64
	jobsFailed    atomic.Int64
	jobsPanicked  atomic.Int64
	currentJob    atomic.Pointer[string]
	jobStartedAt  atomic.Int64
}

// NewWorker creates an idle worker.
func NewWorker(id int, jobTimeout time.Duration, logger infralogger.Logger) *Worker {
	w := &Worker{
		id:         id,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
	w.state.Store(int32(WorkerStateIdle))
	return w
}

// ID returns the worker ID.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// tryClaim moves an idle worker to busy.
func (w *Worker) tryClaim() bool {
	return w.state.CompareAndSwap(int32(WorkerStateIdle), int32(WorkerStateBusy))
}

// Process runs job on a claimed worker and releases it afterwards. A panic
// inside the job is recovered and returned as ErrJobPanicked.
func (w *Worker) Process(ctx context.Context, job *Job) (err error) {
	if job == nil || job.Run == nil {
		w.state.Store(int32(WorkerStateIdle))
		return fmt.Errorf("worker %d: job cannot be nil", w.id)
	}
	if w.State() != WorkerStateBusy {
		return fmt.Errorf("worker %d: not claimed, current state: %s", w.id, w.State())
	}

	id := job.ID
	w.currentJob.Store(&id)
	w.jobStartedAt.Store(time.Now().UnixNano())
	defer func() {
		w.currentJob.Store(nil)
		w.jobStartedAt.Store(0)
		w.state.Store(int32(WorkerStateIdle))
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	startTime := time.Now()
	err = w.run(jobCtx, job)
	duration := time.Since(startTime)

	w.jobsProcessed.Add(1)
	if err != nil {
		w.jobsFailed.Add(1)
		w.logger.Debug("worker job failed",
			infralogger.Int("worker_id", w.id),
			infralogger.String("job_id", job.ID),
			infralogger.Duration("duration", duration),
			infralogger.Error(err),
		)
		return fmt.Errorf("worker %d: job %s: %w", w.id, job.ID, err)
	}

	w.jobsSucceeded.Add(1)
	w.logger.Debug("worker job completed",
		infralogger.Int("worker_id", w.id),
		infralogger.String("job_id", job.ID),
		infralogger.Duration("duration", duration),
	)
	return nil
}

func (w *Worker) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			w.jobsPanicked.Add(1)
			w.logger.Error("worker job panicked",
				infralogger.Int("worker_id", w.id),
				infralogger.String("job_id", job.ID),
				infralogger.Any("panic", rec),
				infralogger.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrJobPanicked, rec)
		}
	}()
	return job.Run(ctx)
}

// Stats returns the worker's statistics.
func (w *Worker) Stats() WorkerStats {
	var current string
	if p := w.currentJob.Load(); p != nil {
		current = *p
	}
	var started time.Time
	if ts := w.jobStartedAt.Load(); ts > 0 {
		started = time.Unix(0, ts)
	}

	return WorkerStats{
		ID:            w.id,
		State:         w.State(),
		JobsProcessed: w.jobsProcessed.Load(),
		JobsSucceeded: w.jobsSucceeded.Load(),
		JobsFailed:    w.jobsFailed.Load(),
		JobsPanicked:  w.jobsPanicked.Load(),
		CurrentJobID:  current,
		JobStartedAt:  started,
	}
}

// WorkerStats holds statistics for a worker.
type WorkerStats struct {
	ID            int
	State         WorkerState
	JobsProcessed int64
	JobsSucceeded int64
	JobsFailed    int64
	JobsPanicked  int64
	CurrentJobID  string
	JobStartedAt  time.Time
}

// IsStuck reports whether the worker has been on one job longer than limit.
func (s WorkerStats) IsStuck(limit time.Duration) bool {
	return s.State == WorkerStateBusy && !s.JobStartedAt.IsZero() && time.Since(s.JobStartedAt) > limit
}
