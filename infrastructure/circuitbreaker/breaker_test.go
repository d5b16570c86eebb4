package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("redis down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	var transitions []State
	b := New(Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange:    func(_, to State) { transitions = append(transitions, to) },
	})

	require.ErrorIs(t, b.Execute(t.Context(), fail), errDown)
	require.ErrorIs(t, b.Execute(t.Context(), fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(t.Context(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := New(Config{FailureThreshold: 1, Timeout: time.Second})
	b.now = func() time.Time { return now }

	require.Error(t, b.Execute(t.Context(), fail))
	require.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, b.Execute(t.Context(), ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := New(Config{FailureThreshold: 1, Timeout: time.Second})
	b.now = func() time.Time { return now }

	require.Error(t, b.Execute(t.Context(), fail))
	now = now.Add(2 * time.Second)
	require.Error(t, b.Execute(t.Context(), fail))

	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	t.Parallel()

	b := New(Config{FailureThreshold: 1})
	err := b.Execute(t.Context(), func(context.Context) error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}
