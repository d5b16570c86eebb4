package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/circuitbreaker"
	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/events"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/observability"
)

func TestNewPublisher_NilClient(t *testing.T) {
	t.Parallel()

	p := events.NewPublisher(nil, "", infralogger.NewNop())
	assert.Nil(t, p)
	require.NoError(t, p.Publish(t.Context(), events.RunEvent{Type: events.RunStarted}))
	p.PublishAsync(events.RunEvent{Type: events.RunStarted})
}

func TestPublish_DeliversJSON(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	p := events.NewPublisher(client, "test", infralogger.NewNop(),
		events.WithMetrics(metrics),
		events.WithTracer(observability.NewTracer()),
	)
	assert.Equal(t, "test:runs", p.Channel())

	sub := client.Subscribe(t.Context(), p.Channel())
	defer sub.Close()
	_, err := sub.Receive(t.Context())
	require.NoError(t, err)

	require.NoError(t, p.Publish(t.Context(), events.RunEvent{
		Type:      events.RunSessionCreated,
		RunID:     "run-1",
		SessionID: 12,
		Targets:   40,
	}))

	select {
	case msg := <-sub.Channel():
		var got events.RunEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, events.RunSessionCreated, got.Type)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, int64(12), got.SessionID)
		assert.NotZero(t, got.EventID)
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.EventsPublishedTotal.WithLabelValues(string(events.RunSessionCreated), "ok")), 0)
}

func TestPublish_BreakerOpensOnFailures(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute})
	p := events.NewPublisher(client, "", infralogger.NewNop(), events.WithBreaker(breaker))

	for range 2 {
		require.Error(t, p.Publish(t.Context(), events.RunEvent{Type: events.RunStarted}))
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	err := p.Publish(t.Context(), events.RunEvent{Type: events.RunStarted})
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}
