// Package events publishes run lifecycle events to Redis.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/circuitbreaker"
	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/observability"
)

// asyncPublishTimeout is the context timeout for async publish operations.
const asyncPublishTimeout = 5 * time.Second

// DefaultChannelPrefix prefixes the runs channel.
const DefaultChannelPrefix = "caravan"

// EventType is the kind of a run event.
type EventType string

const (
	RunStarted        EventType = "run.started"
	RunSessionCreated EventType = "run.session_created"
	RunCompleted      EventType = "run.completed"
	RunAborted        EventType = "run.aborted"
)

// RunEvent is the JSON payload published for a run.
type RunEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	ScenarioID int64     `json:"scenario_id,omitempty"`
	SessionID  int64     `json:"session_id,omitempty"`
	Targets    int       `json:"targets,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMetrics counts published events.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithTracer traces publish calls.
func WithTracer(t *observability.Tracer) Option {
	return func(p *Publisher) {
		p.tracer = t
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

// Publisher publishes run events to a Redis channel. Calls go through a
// circuit breaker so an unavailable Redis does not slow runs down.
type Publisher struct {
	client  *redis.Client
	channel string
	log     infralogger.Logger
	breaker *circuitbreaker.Breaker
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewPublisher creates a new event publisher on channel "<prefix>:runs".
// Returns nil if client is nil.
func NewPublisher(client *redis.Client, prefix string, log infralogger.Logger, opts ...Option) *Publisher {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	p := &Publisher{
		client:  client,
		channel: prefix + ":runs",
		log:     log,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: 3,
			Timeout:          30 * time.Second,
			OnStateChange: func(from, to circuitbreaker.State) {
				log.Warn("Event publisher circuit changed",
					infralogger.String("from", from.String()),
					infralogger.String("to", to.String()),
				)
			},
		})
	}
	return p
}

// Channel returns the channel events are published on.
func (p *Publisher) Channel() string {
	if p == nil {
		return ""
	}
	return p.channel
}

// Publish sends an event to the channel.
func (p *Publisher) Publish(ctx context.Context, event RunEvent) error {
	if p == nil || p.client == nil {
		return nil // No-op if publisher not configured
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.PublishSpan(ctx, string(event.Type))
		defer span.End()
	}

	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.client.Publish(ctx, p.channel, payload).Err()
	})
	p.count(event.Type, err)
	if err != nil {
		if p.tracer != nil {
			observability.RecordError(trace.SpanFromContext(ctx), err)
		}
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}

	p.log.Debug("Published run event",
		infralogger.String("event_type", string(event.Type)),
		infralogger.RunID(event.RunID),
	)
	return nil
}

// PublishAsync publishes an event asynchronously.
// Errors are logged but not returned.
func (p *Publisher) PublishAsync(event RunEvent) {
	if p == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncPublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil {
			p.log.Warn("Async publish failed",
				infralogger.String("event_type", string(event.Type)),
				infralogger.RunID(event.RunID),
				infralogger.Error(err),
			)
		}
	}()
}

func (p *Publisher) count(t EventType, err error) {
	if p.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.metrics.EventsPublishedTotal.WithLabelValues(string(t), result).Inc()
}
