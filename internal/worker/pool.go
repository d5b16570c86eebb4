package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
)

var (
	// ErrPoolNotRunning is returned when submitting to a pool that is not running.
	ErrPoolNotRunning = errors.New("pool is not running")
	// ErrPoolStopping is returned when the pool stops while a submit waits for a slot.
	ErrPoolStopping = errors.New("pool is stopping")
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	PoolStateStopped PoolState = iota
	PoolStateRunning
	PoolStateDraining

	percentageMultiplier = 100
)

// String returns the string representation of a pool state.
func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Pool manages a fixed set of workers shared by all runs.
type Pool struct {
	config  Config
	workers []*Worker
	logger  infralogger.Logger
	state   atomic.Int32
	sem     chan struct{}
	wg      sync.WaitGroup
	stopCh  chan struct{}

	totalJobsProcessed atomic.Int64
	totalJobsSucceeded atomic.Int64
	totalJobsFailed    atomic.Int64
}

// NewPool creates a stopped pool.
func NewPool(cfg Config, logger infralogger.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pool{
		config:  cfg,
		logger:  logger,
		workers: make([]*Worker, cfg.PoolSize),
		sem:     make(chan struct{}, cfg.PoolSize),
		stopCh:  make(chan struct{}),
	}
	for i := range cfg.PoolSize {
		p.workers[i] = NewWorker(i, cfg.JobTimeout, logger)
	}
	p.state.Store(int32(PoolStateStopped))

	return p, nil
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("pool is already running")
	}

	p.logger.Info("Worker pool started", infralogger.Int("pool_size", p.config.PoolSize))
	return nil
}

// Stop rejects new jobs and waits for in-flight ones up to the drain timeout
// or until ctx ends.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return ErrPoolNotRunning
	}

	p.logger.Info("Worker pool draining")
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.config.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop cancelled")
	case <-timer.C:
		p.logger.Warn("Worker pool drain timeout exceeded")
	}

	p.state.Store(int32(PoolStateStopped))
	return nil
}

// Submit waits for a free worker and runs job on it in the background.
// ctx bounds both the wait and the job.
func (p *Pool) Submit(ctx context.Context, job *Job) error {
	if p.State() != PoolStateRunning {
		return ErrPoolNotRunning
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return ErrPoolStopping
	}

	// select picks randomly among ready cases.
	if err := ctx.Err(); err != nil {
		<-p.sem
		return err
	}

	p.dispatch(ctx, job)
	return nil
}

func (p *Pool) dispatch(ctx context.Context, job *Job) {
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()

		w := p.acquireWorker()
		if w == nil {
			// Unreachable while the semaphore and worker count agree.
			p.logger.Error("No idle worker available", infralogger.String("job_id", job.ID))
			job.done(errors.New("no idle worker available"))
			return
		}

		err := w.Process(ctx, job)
		p.totalJobsProcessed.Add(1)
		if err != nil {
			p.totalJobsFailed.Add(1)
		} else {
			p.totalJobsSucceeded.Add(1)
		}
		job.done(err)
	}()
}

func (p *Pool) acquireWorker() *Worker {
	for _, w := range p.workers {
		if w.tryClaim() {
			return w
		}
	}
	return nil
}

// State returns the current pool state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.config.PoolSize
}

// BusyCount returns the number of busy workers.
func (p *Pool) BusyCount() int {
	count := 0
	for _, w := range p.workers {
		if w.State() == WorkerStateBusy {
			count++
		}
	}
	return count
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	workerStats := make([]WorkerStats, len(p.workers))
	busy := 0
	for i, w := range p.workers {
		workerStats[i] = w.Stats()
		if workerStats[i].State == WorkerStateBusy {
			busy++
		}
	}

	return PoolStats{
		State:         p.State(),
		PoolSize:      p.config.PoolSize,
		BusyWorkers:   busy,
		IdleWorkers:   p.config.PoolSize - busy,
		JobsProcessed: p.totalJobsProcessed.Load(),
		JobsSucceeded: p.totalJobsSucceeded.Load(),
		JobsFailed:    p.totalJobsFailed.Load(),
		Workers:       workerStats,
	}
}

// PoolStats holds statistics for the pool.
type PoolStats struct {
	State         PoolState
	PoolSize      int
	BusyWorkers   int
	IdleWorkers   int
	JobsProcessed int64
	JobsSucceeded int64
	JobsFailed    int64
	Workers       []WorkerStats
}

// SuccessRate returns the success rate as a percentage.
func (s PoolStats) SuccessRate() float64 {
	if s.JobsProcessed == 0 {
		return 0
	}
	return float64(s.JobsSucceeded) / float64(s.JobsProcessed) * percentageMultiplier
}

// Healthy reports whether the pool is running and no worker exceeded
// stuckFactor times the job timeout.
func (p *Pool) Healthy() error {
	const stuckFactor = 2
	if p.State() != PoolStateRunning {
		return fmt.Errorf("pool %s", p.State())
	}
	limit := stuckFactor * p.config.JobTimeout
	for _, ws := range p.Stats().Workers {
		if ws.IsStuck(limit) {
			return fmt.Errorf("worker %d stuck on job %s", ws.ID, ws.CurrentJobID)
		}
	}
	return nil
}
