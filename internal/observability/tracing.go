package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the run engine tracer.
	TracerName = "github.com/GFZ-Centre-for-Early-Warning/caravan"
)

// Tracer provides tracing capabilities for the run engine.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// CoordinateSpan starts the span covering a run's coordination.
// Caller is responsible for calling span.End().
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func (t *Tracer) CoordinateSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "run.coordinate",
		trace.WithAttributes(attribute.String("run.id", runID)),
	)
}

// ResolveSpan starts a span for scenario resolution.
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func (t *Tracer) ResolveSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "scenario.resolve")
}

// AreaSpan starts a span for area resolution.
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func (t *Tracer) AreaSpan(ctx context.Context, explicit bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "area.resolve",
		trace.WithAttributes(attribute.Bool("area.explicit", explicit)),
	)
}

// TargetSpan starts a span for one per-target task.
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func (t *Tracer) TargetSpan(ctx context.Context, sessionID, targetID int64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "target.compute",
		trace.WithAttributes(
			attribute.Int64("session.id", sessionID),
			attribute.Int64("target.id", targetID),
		),
	)
}

// PublishSpan starts a span for publishing a lifecycle event.
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func (t *Tracer) PublishSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "events.publish",
		trace.WithAttributes(attribute.String("event.type", eventType)),
	)
}

// AddRunAttributes adds run identifiers to a span.
func AddRunAttributes(span trace.Span, scenarioID, sessionID int64, targets int) {
	span.SetAttributes(
		attribute.Int64("scenario.id", scenarioID),
		attribute.Int64("session.id", sessionID),
		attribute.Int("run.targets", targets),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks a span as successful.
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "success")
}
