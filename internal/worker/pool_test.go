package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/worker"
)

func newPool(t *testing.T, size int) *worker.Pool {
	t.Helper()

	cfg := worker.DefaultConfig()
	cfg.PoolSize = size
	cfg.DrainTimeout = time.Second
	cfg.JobTimeout = time.Second

	p, err := worker.NewPool(cfg, infralogger.NewNop())
	require.NoError(t, err)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*worker.Config)
		wantErr bool
	}{
		{"defaults", func(*worker.Config) {}, false},
		{"zero pool", func(c *worker.Config) { c.PoolSize = 0 }, true},
		{"huge pool", func(c *worker.Config) { c.PoolSize = 1000 }, true},
		{"zero drain", func(c *worker.Config) { c.DrainTimeout = 0 }, true},
		{"zero job timeout", func(c *worker.Config) { c.JobTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := worker.DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestPool_SubmitNotRunning(t *testing.T) {
	t.Parallel()

	p, err := worker.NewPool(worker.DefaultConfig(), infralogger.NewNop())
	require.NoError(t, err)

	err = p.Submit(t.Context(), &worker.Job{ID: "x", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, worker.ErrPoolNotRunning)
}

func TestGroup_RunsAllJobsWithBoundedConcurrency(t *testing.T) {
	t.Parallel()

	const size, jobs = 3, 20
	p := newPool(t, size)
	g := p.NewGroup(t.Context(), "session-1")

	var running, peak, ran atomic.Int32
	for i := range jobs {
		require.NoError(t, g.Submit(&worker.Job{
			ID: "job-" + string(rune('a'+i)),
			Run: func(context.Context) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				ran.Add(1)
				return nil
			},
		}))
	}
	g.Close()

	require.NoError(t, g.Wait(t.Context()))
	assert.Equal(t, int32(jobs), ran.Load())
	assert.LessOrEqual(t, peak.Load(), int32(size))
	assert.Equal(t, int64(jobs), g.Stats().Completed)
	assert.Equal(t, int64(jobs), p.Stats().JobsProcessed)
}

func TestGroup_FailedJobDoesNotAffectSiblings(t *testing.T) {
	t.Parallel()

	p := newPool(t, 2)
	var lost atomic.Int32
	g := p.NewGroup(t.Context(), "session-2", worker.WithLostHandler(func(*worker.Job, error) { lost.Add(1) }))

	var ok atomic.Int32
	require.NoError(t, g.Submit(&worker.Job{ID: "bad", Run: func(context.Context) error { return errors.New("boom") }}))
	require.NoError(t, g.Submit(&worker.Job{ID: "good", Run: func(context.Context) error { ok.Add(1); return nil }}))
	g.Close()

	require.NoError(t, g.Wait(t.Context()))
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(0), lost.Load(), "ordinary errors are handled by the job itself")
}

func TestGroup_PanicIsReportedAsLost(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)
	var lostErr error
	var mu sync.Mutex
	g := p.NewGroup(t.Context(), "session-3", worker.WithLostHandler(func(_ *worker.Job, err error) {
		mu.Lock()
		lostErr = err
		mu.Unlock()
	}))

	require.NoError(t, g.Submit(&worker.Job{ID: "panics", Run: func(context.Context) error { panic("nil map") }}))
	g.Close()
	require.NoError(t, g.Wait(t.Context()))

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, lostErr, worker.ErrJobPanicked)
	assert.Equal(t, int64(1), g.Stats().Lost)
	assert.NoError(t, p.Healthy(), "a panicking job must not take its worker down")
}

func TestGroup_CancelDiscardsQueuedAndCancelsRunning(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)
	g := p.NewGroup(t.Context(), "session-4")

	started := make(chan struct{})
	var sawCancel atomic.Bool
	require.NoError(t, g.Submit(&worker.Job{ID: "long", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}}))

	var queuedRan atomic.Int32
	for range 5 {
		require.NoError(t, g.Submit(&worker.Job{ID: "queued", Run: func(context.Context) error {
			queuedRan.Add(1)
			return nil
		}}))
	}

	<-started
	g.Cancel()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))

	assert.True(t, sawCancel.Load())
	assert.Equal(t, int32(0), queuedRan.Load())
	assert.Equal(t, int64(5), g.Stats().Discarded)
	assert.ErrorIs(t, g.Submit(&worker.Job{ID: "late"}), worker.ErrGroupClosed)
}

func TestGroup_CancelIsolatedFromOtherGroups(t *testing.T) {
	t.Parallel()

	p := newPool(t, 2)
	a := p.NewGroup(t.Context(), "a")
	b := p.NewGroup(t.Context(), "b")

	a.Cancel()

	var ran atomic.Bool
	require.NoError(t, b.Submit(&worker.Job{ID: "b1", Run: func(context.Context) error { ran.Store(true); return nil }}))
	b.Close()
	require.NoError(t, b.Wait(t.Context()))

	assert.True(t, ran.Load())
	assert.True(t, a.Cancelled())
	assert.False(t, b.Cancelled())
}

func TestGroup_PoolStopDropsAsLost(t *testing.T) {
	t.Parallel()

	cfg := worker.DefaultConfig()
	cfg.PoolSize = 1
	p, err := worker.NewPool(cfg, infralogger.NewNop())
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop(t.Context()))

	var lost atomic.Int32
	g := p.NewGroup(t.Context(), "late", worker.WithLostHandler(func(_ *worker.Job, err error) {
		if errors.Is(err, worker.ErrPoolNotRunning) {
			lost.Add(1)
		}
	}))
	require.NoError(t, g.Submit(&worker.Job{ID: "x", Run: func(context.Context) error { return nil }}))
	g.Close()
	require.NoError(t, g.Wait(t.Context()))

	assert.Equal(t, int32(1), lost.Load())
}

func TestPool_JobTimeout(t *testing.T) {
	t.Parallel()

	cfg := worker.DefaultConfig()
	cfg.PoolSize = 1
	cfg.JobTimeout = 20 * time.Millisecond
	p, err := worker.NewPool(cfg, infralogger.NewNop())
	require.NoError(t, err)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	g := p.NewGroup(t.Context(), "timeout")
	var got atomic.Value
	require.NoError(t, g.Submit(&worker.Job{ID: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		got.Store(ctx.Err())
		return ctx.Err()
	}}))
	g.Close()
	require.NoError(t, g.Wait(t.Context()))

	assert.ErrorIs(t, got.Load().(error), context.DeadlineExceeded)
}
