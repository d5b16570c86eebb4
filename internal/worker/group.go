package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
)

// ErrGroupClosed is returned when submitting to a closed or cancelled group.
var ErrGroupClosed = errors.New("job group is closed")

// LostFunc is called for a job whose own error handling never ran: it was
// dropped because the pool stopped, or it panicked.
type LostFunc func(job *Job, err error)

// Group queues the jobs of one run and feeds them to a shared Pool. Submit
// never blocks on pool capacity.
type Group struct {
	id     string
	pool   *Pool
	logger infralogger.Logger
	onLost LostFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   []*Job
	closed  bool
	pending int
	idle    chan struct{}
	wake    chan struct{}

	submitted atomic.Int64
	completed atomic.Int64
	lost      atomic.Int64
	discarded atomic.Int64
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithLostHandler sets the handler for lost jobs.
func WithLostHandler(fn LostFunc) GroupOption {
	return func(g *Group) {
		g.onLost = fn
	}
}

// NewGroup creates a job group bound to ctx. Cancelling ctx cancels the group.
func (p *Pool) NewGroup(ctx context.Context, id string, opts ...GroupOption) *Group {
	gctx, cancel := context.WithCancel(ctx)
	g := &Group{
		id:     id,
		pool:   p,
		logger: p.logger.With(infralogger.String("group_id", id)),
		ctx:    gctx,
		cancel: cancel,
		idle:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}

	go g.feed()
	return g
}

// ID returns the group id.
func (g *Group) ID() string {
	return g.id
}

// Submit queues job.
func (g *Group) Submit(job *Job) error {
	g.mu.Lock()
	if g.closed || g.ctx.Err() != nil {
		g.mu.Unlock()
		return ErrGroupClosed
	}
	job.finish = g.finisher(job)
	g.queue = append(g.queue, job)
	g.pending++
	g.mu.Unlock()

	g.submitted.Add(1)
	g.signal()
	return nil
}

// Close marks the end of submissions. Queued jobs still run.
func (g *Group) Close() {
	g.mu.Lock()
	g.closed = true
	g.checkIdleLocked()
	g.mu.Unlock()
	g.signal()
}

// Cancel discards queued jobs and cancels the context of running ones.
// It is safe to call more than once.
func (g *Group) Cancel() {
	g.cancel()
	g.Close()
}

// Cancelled reports whether Cancel was called or the parent context ended.
func (g *Group) Cancelled() bool {
	return g.ctx.Err() != nil
}

// Wait blocks until the group is closed and every submitted job has left
// the pool, or ctx ends.
func (g *Group) Wait(ctx context.Context) error {
	select {
	case <-g.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GroupStats is a snapshot of a group's counters.
type GroupStats struct {
	Submitted int64
	Completed int64
	Lost      int64
	Discarded int64
}

// Stats returns the group's counters.
func (g *Group) Stats() GroupStats {
	return GroupStats{
		Submitted: g.submitted.Load(),
		Completed: g.completed.Load(),
		Lost:      g.lost.Load(),
		Discarded: g.discarded.Load(),
	}
}

func (g *Group) signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *Group) finisher(job *Job) func(error) {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			if errors.Is(err, ErrJobPanicked) {
				g.markLost(job, err)
			} else {
				g.completed.Add(1)
			}
			g.release(1)
		})
	}
}

func (g *Group) markLost(job *Job, err error) {
	g.lost.Add(1)
	if g.onLost != nil {
		g.onLost(job, err)
	}
}

func (g *Group) release(n int) {
	g.mu.Lock()
	g.pending -= n
	g.checkIdleLocked()
	g.mu.Unlock()
}

func (g *Group) checkIdleLocked() {
	if !g.closed || g.pending > 0 {
		return
	}
	select {
	case <-g.idle:
	default:
		close(g.idle)
	}
}

// next pops the next queued job, waiting for one if needed. It returns
// false once the group is finished or cancelled.
func (g *Group) next() (*Job, bool) {
	for {
		g.mu.Lock()
		if g.ctx.Err() != nil {
			g.mu.Unlock()
			return nil, false
		}
		if len(g.queue) > 0 {
			job := g.queue[0]
			g.queue[0] = nil
			g.queue = g.queue[1:]
			g.mu.Unlock()
			return job, true
		}
		if g.closed {
			g.mu.Unlock()
			return nil, false
		}
		g.mu.Unlock()

		select {
		case <-g.wake:
		case <-g.ctx.Done():
		}
	}
}

func (g *Group) feed() {
	defer g.discardQueued()

	for {
		job, ok := g.next()
		if !ok {
			return
		}

		err := g.pool.Submit(g.ctx, job)
		if err == nil {
			continue
		}
		if g.ctx.Err() != nil {
			g.discarded.Add(1)
			g.release(1)
			return
		}

		g.logger.Warn("Job dropped by worker pool",
			infralogger.String("job_id", job.ID),
			infralogger.Error(err),
		)
		g.markLost(job, err)
		g.release(1)
	}
}

func (g *Group) discardQueued() {
	g.mu.Lock()
	n := len(g.queue)
	g.queue = nil
	g.mu.Unlock()

	if n > 0 {
		g.discarded.Add(int64(n))
		g.logger.Info("Discarded queued jobs", infralogger.Int("count", n))
		g.release(n)
	}
}
