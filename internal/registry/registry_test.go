package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/registry"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/runstate"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type noProgress struct{}

func (noProgress) SessionProgress(context.Context, int64) (domain.SessionProgress, error) {
	return domain.SessionProgress{}, nil
}

func newState(c *clock, id string) *runstate.State {
	return runstate.New(id, noProgress{}, runstate.WithClock(c.Now))
}

func TestRegistry_GetAndBind(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Unix(0, 0)}
	reg := registry.New(registry.DefaultConfig(), infralogger.NewNop(), registry.WithClock(c.Now))

	st := newState(c, "a")
	require.NoError(t, reg.Add(st))
	require.Error(t, reg.Add(st), "duplicate run id")

	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Same(t, st, got)

	_, err = reg.Get("missing")
	assert.True(t, errors.Is(err, domain.ErrRunNotFound))

	reg.BindSession(9, "a")
	got, err = reg.BySession(9)
	require.NoError(t, err)
	assert.Same(t, st, got)
}

func TestRegistry_ActiveSessions(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Unix(0, 0)}
	reg := registry.New(registry.DefaultConfig(), infralogger.NewNop(), registry.WithClock(c.Now))

	running := newState(c, "running")
	require.NoError(t, running.Start(""))
	finished := newState(c, "finished")
	finished.Abort(errors.New("boom"))
	require.NoError(t, reg.Add(running))
	require.NoError(t, reg.Add(finished))
	reg.BindSession(1, "running")
	reg.BindSession(2, "finished")

	assert.Equal(t, []int64{1}, reg.ActiveSessions())

	running.Cancel()
	assert.Empty(t, reg.ActiveSessions())
}

func TestRegistry_Evict(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Unix(1_700_000_000, 0)}
	var evicted []string
	reg := registry.New(
		registry.Config{Retention: 10 * time.Minute, MaxRetention: time.Hour},
		infralogger.NewNop(),
		registry.WithClock(c.Now),
		registry.WithEvictHook(func(s runstate.Snapshot) { evicted = append(evicted, s.RunID) }),
	)

	running := newState(c, "running")
	require.NoError(t, running.Start(""))

	observed := newState(c, "observed")
	observed.Abort(errors.New("boom"))
	_, err := observed.Progress(context.Background())
	require.NoError(t, err)

	unobserved := newState(c, "unobserved")
	unobserved.Abort(errors.New("boom"))

	for _, st := range []*runstate.State{running, observed, unobserved} {
		require.NoError(t, reg.Add(st))
	}
	assert.Equal(t, 1, reg.Active())

	c.Advance(5 * time.Minute)
	assert.Equal(t, 0, reg.Evict())

	c.Advance(6 * time.Minute)
	assert.Equal(t, 1, reg.Evict())
	assert.Equal(t, []string{"observed"}, evicted)

	c.Advance(time.Hour)
	assert.Equal(t, 1, reg.Evict())
	assert.Equal(t, []string{"observed", "unobserved"}, evicted)

	assert.Equal(t, 1, reg.Len(), "running runs are never evicted")
	_, err = reg.Get("running")
	require.NoError(t, err)
}

func TestRegistry_StartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.Config{Schedule: "every now and then"}, infralogger.NewNop())
	require.Error(t, reg.Start())
}

func TestRegistry_StartStop(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.DefaultConfig(), infralogger.NewNop())
	require.NoError(t, reg.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reg.Stop(ctx)
}
