package coordinator

import (
	"context"
	"fmt"
	"time"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/dist"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/observability"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/risk"
	"go.opentelemetry.io/otel/trace"
)

// failTimeout bounds the failure bookkeeping of a task, which runs even when
// the task's own context has ended.
const failTimeout = 10 * time.Second

// IntensityTicks are the bin edges of the stored ground motion distribution.
var IntensityTicks = []float64{4.5, 5.5, 6.5, 7.5, 8.5, 9.5, 10.5}

// TargetTask is the input of one per-target computation. It holds plain
// values only: the intensity is already materialised as samples.
type TargetTask struct {
	TargetID    int64     `json:"target_id"`
	GeocellID   int64     `json:"geocell_id"`
	Lon         float64   `json:"lon"`
	Lat         float64   `json:"lat"`
	ScenarioID  int64     `json:"scenario_id"`
	SessionID   int64     `json:"session_id"`
	Intensity   []float64 `json:"intensity"`
	Percentiles []float64 `json:"percentiles"`
	GMOnly      bool      `json:"gm_only"`
}

// GroundMotionPayload returns the stored form of an intensity: the discrete
// pdf over IntensityTicks followed by the median.
func GroundMotionPayload(intensity []float64) []float64 {
	payload := dist.DiscretePDF(intensity, IntensityTicks)
	return append(payload, dist.Median(intensity))
}

// TaskStore is the storage a task writes to.
type TaskStore interface {
	InsertGroundMotion(ctx context.Context, gm *domain.GroundMotion) error
	IncrementFailed(ctx context.Context, sessionID int64) error
}

// Runner executes target tasks. Failures are recorded on the session and
// never returned, so one target cannot affect its siblings.
type Runner struct {
	store       TaskStore
	risk        risk.Calculator
	diagnostics *Diagnostics
	logger      infralogger.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// Run computes task. It always returns nil.
func (r *Runner) Run(ctx context.Context, task *TargetTask) error {
	start := time.Now()
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.TargetSpan(ctx, task.SessionID, task.TargetID)
		defer span.End()
	}

	outcome := observability.OutcomeOK
	if err := r.execute(ctx, task); err != nil {
		outcome = observability.OutcomeFailed
		perr := &domain.PerTargetError{TargetID: task.TargetID, GeocellID: task.GeocellID, Err: err}
		observability.RecordError(trace.SpanFromContext(ctx), perr)
		r.fail(ctx, task.SessionID, task.GeocellID, perr)
	}

	if r.metrics != nil {
		r.metrics.TasksTotal.WithLabelValues(outcome).Inc()
		r.metrics.TaskDurationSeconds.Observe(time.Since(start).Seconds())
	}
	return nil
}

// execute runs the risk step first and writes the ground motion row last. A
// target is finished once it has a row or a failure count, never both.
func (r *Runner) execute(ctx context.Context, task *TargetTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !task.GMOnly {
		err := r.risk.Calculate(ctx, risk.Input{
			Intensity:   task.Intensity,
			Percentiles: task.Percentiles,
			SessionID:   task.SessionID,
			ScenarioID:  task.ScenarioID,
			TargetID:    task.TargetID,
			GeocellID:   task.GeocellID,
		})
		if err != nil {
			return fmt.Errorf("risk: %w", err)
		}
	}

	return r.store.InsertGroundMotion(ctx, &domain.GroundMotion{
		TargetID:   task.TargetID,
		GeocellID:  task.GeocellID,
		ScenarioID: task.ScenarioID,
		SessionID:  task.SessionID,
		Payload:    GroundMotionPayload(task.Intensity),
	})
}

// fail counts a failed target exactly once and writes its diagnostic log.
func (r *Runner) fail(ctx context.Context, sessionID, geocellID int64, err error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()

	if incErr := r.store.IncrementFailed(fctx, sessionID); incErr != nil {
		r.logger.Error("Failed to count failed target",
			infralogger.SessionID(sessionID),
			infralogger.Int64("geocell_id", geocellID),
			infralogger.Error(incErr),
		)
	}
	r.diagnostics.Write(sessionID, geocellID, err)

	r.logger.Warn("Target failed",
		infralogger.SessionID(sessionID),
		infralogger.Int64("geocell_id", geocellID),
		infralogger.Error(err),
	)
}
