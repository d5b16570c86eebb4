package runstate_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/runstate"
)

type fakeSource struct {
	mu    sync.Mutex
	prog  domain.SessionProgress
	err   error
	calls int
}

func (f *fakeSource) set(ok, failed, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prog = domain.SessionProgress{DoneOK: ok, DoneFailed: failed, Total: total}
}

func (f *fakeSource) SessionProgress(context.Context, int64) (domain.SessionProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.prog, f.err
}

type fakePool struct {
	cancels atomic.Int32
}

func (p *fakePool) Cancel() { p.cancels.Add(1) }

func runningState(t *testing.T, src *fakeSource, opts ...runstate.Option) (*runstate.State, *fakePool) {
	t.Helper()
	st := runstate.New("run-1", src, opts...)
	require.NoError(t, st.Start("Input event = test"))
	pool := &fakePool{}
	require.NoError(t, st.AttachWorkerPool(pool, 42))
	return st, pool
}

func TestProgress_MonotonicAndTerminates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		failed     func(step int) int
		wantStatus runstate.Status
		wantErr    error
	}{
		{name: "all succeed", failed: func(int) int { return 0 }, wantStatus: runstate.StatusDone},
		{name: "some fail", failed: func(step int) int { return step / 3 }, wantStatus: runstate.StatusDone},
		{name: "all fail", failed: func(step int) int { return step }, wantStatus: runstate.StatusAborted, wantErr: domain.ErrNoTargetSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := &fakeSource{}
			var terminal []runstate.Snapshot
			st, _ := runningState(t, src, runstate.WithTerminalHook(func(s runstate.Snapshot) {
				terminal = append(terminal, s)
			}))

			prev := -1.0
			for step := 0; step <= 10; step++ {
				failed := tt.failed(step)
				src.set(step-failed, failed, 10)

				pct, err := st.Progress(context.Background())
				require.NoError(t, err)
				assert.GreaterOrEqual(t, pct, prev, "step %d", step)
				prev = pct

				if step < 10 {
					assert.Equal(t, runstate.StatusRunning, st.Status())
				}
			}

			assert.InDelta(t, 100.0, prev, 0)
			assert.Equal(t, tt.wantStatus, st.Status())
			if tt.wantErr != nil {
				assert.ErrorIs(t, st.Err(), tt.wantErr)
			} else {
				assert.NoError(t, st.Err())
			}
			require.Len(t, terminal, 1)
			assert.Equal(t, tt.wantStatus, terminal[0].Status)
		})
	}
}

func TestProgress_SummaryMessage(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	st, _ := runningState(t, src)
	st.Drain()

	src.set(7, 3, 10)
	pct, err := st.Progress(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, pct, 0)
	assert.Equal(t, []string{"WARNING: 7 of 10 ground motion distributions successfully calculated"}, st.Drain())

	src2 := &fakeSource{}
	st2, _ := runningState(t, src2)
	st2.Drain()
	src2.set(10, 0, 10)
	_, err = st2.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10 of 10 ground motion distributions successfully calculated"}, st2.Drain())
}

func TestProgress_MoreFailuresThanTargets(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	st, _ := runningState(t, src)
	src.set(0, 11, 10)

	_, err := st.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runstate.StatusAborted, st.Status())
	assert.ErrorIs(t, st.Err(), domain.ErrNoTargetSucceeded)
	assert.Contains(t, st.Err().Error(), "internal server error")
}

func TestProgress_IdempotentAfterTerminal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	hooks := 0
	st, _ := runningState(t, src, runstate.WithTerminalHook(func(runstate.Snapshot) { hooks++ }))
	src.set(10, 0, 10)

	_, err := st.Progress(context.Background())
	require.NoError(t, err)
	st.Drain()
	calls := src.calls

	for range 5 {
		pct, err := st.Progress(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 100.0, pct, 0)
	}
	st.Stop(errors.New("late"))

	assert.Empty(t, st.Drain(), "no duplicate terminal messages")
	assert.Equal(t, calls, src.calls, "terminal runs do not query storage")
	assert.Equal(t, 1, hooks)
	assert.Equal(t, runstate.StatusDone, st.Status())
	assert.NoError(t, st.Err())
}

func TestProgress_StoreErrorKeepsRunning(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	st, _ := runningState(t, src)
	src.set(5, 0, 10)
	pct, err := st.Progress(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pct, 0)

	src.mu.Lock()
	src.err = errors.New("connection reset")
	src.mu.Unlock()

	pct, err = st.Progress(context.Background())
	require.Error(t, err)
	assert.InDelta(t, 50.0, pct, 0)
	assert.Equal(t, runstate.StatusRunning, st.Status())
}

func TestProgress_BeforeSession(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	st := runstate.New("run-1", src)
	pct, err := st.Progress(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pct, 0)

	require.NoError(t, st.Start(""))
	pct, err = st.Progress(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pct, 0)
	assert.Equal(t, 0, src.calls)
}

func TestStop(t *testing.T) {
	t.Parallel()

	t.Run("without pool completes", func(t *testing.T) {
		t.Parallel()
		st := runstate.New("run", &fakeSource{})
		require.NoError(t, st.Start(""))
		st.Stop(nil)
		assert.Equal(t, runstate.StatusDone, st.Status())
		assert.Equal(t, []string{"Process completed"}, st.Drain())
	})

	t.Run("with pool is aborted by user", func(t *testing.T) {
		t.Parallel()
		st, pool := runningState(t, &fakeSource{})
		st.Stop(nil)
		assert.Equal(t, runstate.StatusAborted, st.Status())
		assert.ErrorIs(t, st.Err(), domain.ErrAbortedByUser)
		assert.Equal(t, int32(1), pool.cancels.Load())

		st.Cancel()
		assert.Equal(t, int32(1), pool.cancels.Load(), "stop on a terminal run is a no-op")
	})

	t.Run("with reason", func(t *testing.T) {
		t.Parallel()
		st, _ := runningState(t, &fakeSource{})
		st.Stop(&domain.NoTargetsError{})
		var nt *domain.NoTargetsError
		assert.ErrorAs(t, st.Err(), &nt)
		assert.Equal(t, "No target cells found (zero cells)", st.Snapshot().Error)
	})
}

func TestStop_BeforeStartAborts(t *testing.T) {
	t.Parallel()

	st := runstate.New("run", &fakeSource{})
	st.Stop(nil)

	assert.Equal(t, runstate.StatusAborted, st.Status())
	assert.ErrorIs(t, st.Err(), domain.ErrAbortedByUser)
	assert.Empty(t, st.Drain())
}

func TestProgress_RoundsDown(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	st, _ := runningState(t, src)

	src.set(1, 0, 3)
	pct, err := st.Progress(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 33.0, pct, 0)

	src.set(1, 1, 3)
	pct, err = st.Progress(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 66.0, pct, 0)
	assert.InDelta(t, 66.0, st.Snapshot().Percent, 0)
}

func TestAbort_BeforeStart(t *testing.T) {
	t.Parallel()

	st := runstate.New("run", &fakeSource{})
	st.Abort(&domain.ValidationError{Field: "mag", Reason: "missing value"})

	assert.Equal(t, runstate.StatusAborted, st.Status())
	pct, err := st.Progress(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, pct, 0)
	assert.True(t, st.Observed())
	assert.False(t, st.FinishedAt().IsZero())

	var ise *domain.IllegalStateError
	require.ErrorAs(t, st.Start(""), &ise)
	require.ErrorAs(t, st.AttachWorkerPool(&fakePool{}, 1), &ise)
	assert.Equal(t, "ABORTED", ise.State)
}

func TestAttachWorkerPool_NotStarted(t *testing.T) {
	t.Parallel()

	bound := int64(0)
	st := runstate.New("run", &fakeSource{}, runstate.WithAttachHook(func(id int64) { bound = id }))
	var ise *domain.IllegalStateError
	require.ErrorAs(t, st.AttachWorkerPool(&fakePool{}, 1), &ise)

	require.NoError(t, st.Start(""))
	require.NoError(t, st.AttachWorkerPool(&fakePool{}, 7))
	assert.Equal(t, int64(7), bound)
	assert.Equal(t, int64(7), st.SessionID())
}

func TestMessages_ConcurrentAppendAndDrain(t *testing.T) {
	t.Parallel()

	st := runstate.New("run", &fakeSource{})
	require.NoError(t, st.Start(""))

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				if i%2 == 0 {
					st.Msg(fmt.Sprintf("%d-%d", w, i))
				} else {
					st.Warning(fmt.Sprintf("%d-%d", w, i))
				}
			}
		}()
	}

	var got []string
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		got = append(got, st.Drain()...)
		select {
		case <-done:
			got = append(got, st.Drain()...)
			assert.Len(t, got, writers*perWriter)
			return
		default:
		}
	}
}
