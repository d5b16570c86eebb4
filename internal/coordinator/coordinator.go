// Package coordinator drives one run from input event to dispatched
// per-target tasks.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/area"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/dist"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/events"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/gmpe"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/observability"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/risk"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/runstate"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/scenario"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/targets"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/worker"
)

// Store is the storage a run needs.
type Store interface {
	scenario.Store
	TaskStore
	runstate.ProgressSource
	DeleteGroundMotion(ctx context.Context, scenarioID int64, keepSessions []int64) (int64, error)
	CreateSession(ctx context.Context, scenarioID int64, numTargets int, at time.Time) (int64, error)
	TargetsWithinRadius(ctx context.Context, tessIDs []int, lat, lon, radiusKm float64) ([]domain.RawTarget, error)
	TargetsWithinBBox(ctx context.Context, tessIDs []int, box domain.BBox) ([]domain.RawTarget, error)
}

// EventPublisher receives run lifecycle events.
type EventPublisher interface {
	PublishAsync(event events.RunEvent)
}

// Config holds coordinator settings.
type Config struct {
	// Settings fills keys an input event omits.
	Settings scenario.Settings

	// Seed is mixed with the scenario hash to seed sampling, so equal
	// scenarios draw equal samples.
	Seed uint64

	// DiagnosticsDir receives one log file per failed target. Empty
	// disables diagnostics.
	DiagnosticsDir string
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() Config {
	return Config{Settings: scenario.DefaultSettings()}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRisk sets the risk calculator run before each ground motion insert.
func WithRisk(c risk.Calculator) Option {
	return func(co *Coordinator) {
		co.risk = c
	}
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(co *Coordinator) {
		co.publisher = p
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *observability.Metrics) Option {
	return func(co *Coordinator) {
		co.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(co *Coordinator) {
		co.tracer = t
	}
}

// WithModels sets the model registry.
func WithModels(r *gmpe.Registry) Option {
	return func(co *Coordinator) {
		co.models = r
	}
}

// WithActiveSessions sets the source of sessions that are still running.
// Their ground motion rows survive the reuse of their scenario.
func WithActiveSessions(fn func() []int64) Option {
	return func(co *Coordinator) {
		co.activeSessions = fn
	}
}

// WithClock overrides the clock used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(co *Coordinator) {
		co.now = now
	}
}

// Coordinator prepares runs and dispatches their targets to a shared pool.
type Coordinator struct {
	cfg       Config
	store     Store
	pool      *worker.Pool
	resolver  *scenario.Resolver
	models    *gmpe.Registry
	risk      risk.Calculator
	publisher EventPublisher
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    infralogger.Logger
	now       func() time.Time
	runner    *Runner

	activeSessions func() []int64
}

// New creates a coordinator. pool must be started by the caller.
func New(cfg Config, store Store, pool *worker.Pool, logger infralogger.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		store:  store,
		pool:   pool,
		models: gmpe.DefaultRegistry(),
		risk:   risk.Nop{},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.cfg.Settings.GMPEIDs) == 0 {
		c.cfg.Settings.GMPEIDs = c.models.IDs()
	}

	c.resolver = scenario.NewResolver(store, logger)
	c.runner = &Runner{
		store:       store,
		risk:        c.risk,
		diagnostics: NewDiagnostics(cfg.DiagnosticsDir, logger),
		logger:      logger,
		metrics:     c.metrics,
		tracer:      c.tracer,
	}
	return c
}

// Store returns the coordinator's storage.
func (c *Coordinator) Store() Store {
	return c.store
}

// NewState returns a fresh run state with a random id, reading progress
// from the coordinator's storage.
func (c *Coordinator) NewState(opts ...runstate.Option) *runstate.State {
	return runstate.New(uuid.NewString(), c.store, opts...)
}

// Execute runs the preparation of st for event and dispatches its targets.
// It returns once every target is queued; the run state reports completion.
// Preparation failures abort st and are not returned.
func (c *Coordinator) Execute(ctx context.Context, st *runstate.State, event map[string]any) {
	log := c.logger.With(infralogger.RunID(st.ID()))

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.CoordinateSpan(ctx, st.ID())
		defer span.End()
	}

	sc, ev, err := c.prepare(event)
	if err != nil {
		c.abort(log, st, err)
		return
	}

	if err = st.Start("Input event = " + sc.String()); err != nil {
		log.Warn("Run not started", infralogger.Error(err))
		return
	}
	c.publish(events.RunEvent{Type: events.RunStarted, RunID: st.ID()})

	if err = c.dispatch(ctx, log, st, sc, ev); err != nil {
		c.abort(log, st, err)
	}
}

// Validate parses event and checks its model without sampling. Errors are
// ValidationErrors.
func (c *Coordinator) Validate(event map[string]any) error {
	_, _, err := c.parse(event)
	return err
}

func (c *Coordinator) parse(event map[string]any) (*domain.Scenario, gmpe.Model, error) {
	sc, err := scenario.Parse(event, c.cfg.Settings)
	if err != nil {
		return nil, nil, err
	}

	model, err := c.models.Get(sc.GMPEID)
	if err != nil {
		return nil, nil, &domain.ValidationError{Field: "ipe", Value: sc.GMPEID, Reason: err.Error()}
	}
	return sc, model, nil
}

// prepare parses event and binds it to its model.
func (c *Coordinator) prepare(event map[string]any) (*domain.Scenario, *gmpe.Event, error) {
	sc, model, err := c.parse(event)
	if err != nil {
		return nil, nil, err
	}

	sampler := dist.NewSampler(sc.SampleCount, scenario.Hash(sc)^c.cfg.Seed)
	ev, err := gmpe.FromScenario(model, sc, sampler)
	if err != nil {
		return nil, nil, err
	}
	return sc, ev, nil
}

func (c *Coordinator) dispatch(
	ctx context.Context, log infralogger.Logger, st *runstate.State, sc *domain.Scenario, ev *gmpe.Event,
) error {
	res, err := c.resolve(ctx, st, sc)
	if err != nil {
		return err
	}
	st.Msgf("Scenario id: %d", res.ID)
	log = log.With(infralogger.ScenarioID(res.ID))

	rows, err := c.targets(ctx, st, sc, ev)
	if err != nil {
		return err
	}

	valid, err := c.validate(st, rows)
	if err != nil {
		return err
	}

	if runstate.IsTerminal(st.Status()) {
		log.Info("Run ended before session creation")
		return nil
	}

	sessionID, err := c.store.CreateSession(ctx, res.ID, len(valid), c.now())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	st.Msg(fmt.Sprintf("Session id: %d", sessionID), "Starting main process (might take a while...)")
	log = log.With(infralogger.SessionID(sessionID))
	c.publish(events.RunEvent{
		Type:       events.RunSessionCreated,
		RunID:      st.ID(),
		ScenarioID: res.ID,
		SessionID:  sessionID,
		Targets:    len(valid),
	})
	if c.tracer != nil {
		observability.AddRunAttributes(trace.SpanFromContext(ctx), res.ID, sessionID, len(valid))
	}

	group := c.pool.NewGroup(context.WithoutCancel(ctx), "session-"+strconv.FormatInt(sessionID, 10),
		worker.WithLostHandler(func(job *worker.Job, jobErr error) {
			c.lost(ctx, sessionID, job, jobErr)
		}),
	)
	if err = st.AttachWorkerPool(group, sessionID); err != nil {
		group.Cancel()
		log.Info("Run ended before dispatch", infralogger.Error(err))
		return nil
	}
	defer group.Close()

	submitted := 0
	for _, t := range valid {
		task, taskErr := c.newTask(ev, sc, res.ID, sessionID, t)
		if taskErr != nil {
			c.runner.fail(ctx, sessionID, t.GeocellID,
				&domain.PerTargetError{TargetID: t.ID, GeocellID: t.GeocellID, Err: taskErr})
			c.countTask(observability.OutcomeFailed)
			continue
		}

		err = group.Submit(&worker.Job{
			ID:  fmt.Sprintf("%d/%d", sessionID, t.ID),
			Run: func(jctx context.Context) error { return c.runner.Run(jctx, task) },
		})
		if errors.Is(err, worker.ErrGroupClosed) {
			log.Info("Run cancelled during dispatch", infralogger.Int("submitted", submitted))
			return nil
		}
		if err != nil {
			return fmt.Errorf("submit target %d: %w", t.ID, err)
		}
		submitted++
	}

	log.Info("Targets dispatched",
		infralogger.Int("targets", len(valid)),
		infralogger.Int("submitted", submitted),
	)
	return nil
}

func (c *Coordinator) resolve(ctx context.Context, st *runstate.State, sc *domain.Scenario) (scenario.Resolution, error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.ResolveSpan(ctx)
		defer span.End()
	}

	res, err := c.resolver.Resolve(ctx, sc)
	if err != nil {
		return res, err
	}

	if res.IsNew {
		st.Msgf("Written new scenario to database (hash=%d): Scenario = %s", res.Hash, sc)
		return res, nil
	}

	var keep []int64
	if c.activeSessions != nil {
		keep = c.activeSessions()
	}
	deleted, err := c.store.DeleteGroundMotion(ctx, res.ID, keep)
	if err != nil {
		return res, fmt.Errorf("delete ground motion: %w", err)
	}
	st.Msgf("Using already stored Scenario (hash=%d), deleted %d previously calculated cells", res.Hash, deleted)
	return res, nil
}

// targets reads the target rows of the run's area.
func (c *Coordinator) targets(
	ctx context.Context, st *runstate.State, sc *domain.Scenario, ev *gmpe.Event,
) ([]domain.RawTarget, error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.AreaSpan(ctx, sc.AOI != nil)
		defer span.End()
	}

	st.Msgf("Tessellation id(s): %s", joinInts(sc.TessIDs))

	if sc.AOI != nil {
		st.Msg("Area: map rectangle (aoi parameter [lon1, lat1, lon2, lat2], see above)")
		rows, err := c.store.TargetsWithinBBox(ctx, sc.TessIDs, *sc.AOI)
		if err != nil {
			return nil, fmt.Errorf("query targets: %w", err)
		}
		return rows, nil
	}

	radius, err := area.ReferenceDistance(area.FromEvent(ev, areaPercentile(sc.Percentiles)), sc.IRef, sc.KmStep)
	if err != nil {
		return nil, err
	}
	st.Msgf("Area(I ≥ %.2f) radius: %.1f Km", sc.IRef, radius)
	if c.metrics != nil {
		c.metrics.AreaRadiusKm.WithLabelValues(ev.Model().Name()).Observe(radius)
	}

	if radius < sc.KmStep {
		return nil, &domain.AreaTooSmallError{IRef: sc.IRef, Radius: radius}
	}

	lat, lon := sc.Epicenter()
	rows, err := c.store.TargetsWithinRadius(ctx, sc.TessIDs, lat, lon, radius)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	return rows, nil
}

func (c *Coordinator) validate(st *runstate.State, rows []domain.RawTarget) ([]domain.Target, error) {
	valid, malformed := targets.Validate(rows)
	if c.metrics != nil {
		c.metrics.TargetsTotal.WithLabelValues("valid").Add(float64(len(valid)))
		c.metrics.TargetsTotal.WithLabelValues("malformed").Add(float64(malformed))
	}

	switch {
	case len(rows) == 0:
		return nil, &domain.NoTargetsError{}
	case len(valid) == 0:
		return nil, &domain.AllTargetsMalformedError{Count: malformed}
	case malformed > 0:
		st.Warning(fmt.Sprintf("%d of %d target cells found (skipping %d malformed cells, containing missing or NaN values)",
			len(valid), len(rows), malformed))
	default:
		st.Msgf("%d target cells found", len(valid))
	}
	return valid, nil
}

// newTask evaluates the intensity at t and packs it with plain values.
func (c *Coordinator) newTask(ev *gmpe.Event, sc *domain.Scenario, scenarioID, sessionID int64, t domain.Target) (*TargetTask, error) {
	intensity, err := ev.IntensityAt(t.Lat, t.Lon)
	if err != nil {
		return nil, err
	}
	return &TargetTask{
		TargetID:    t.ID,
		GeocellID:   t.GeocellID,
		Lon:         t.Lon,
		Lat:         t.Lat,
		ScenarioID:  scenarioID,
		SessionID:   sessionID,
		Intensity:   intensity,
		Percentiles: slices.Clone(sc.Percentiles),
		GMOnly:      sc.GMOnly,
	}, nil
}

// lost counts a job that never reached its own failure handling.
func (c *Coordinator) lost(ctx context.Context, sessionID int64, job *worker.Job, err error) {
	c.logger.Error("Target task lost",
		infralogger.SessionID(sessionID),
		infralogger.String("job_id", job.ID),
		infralogger.Error(err),
	)
	c.runner.fail(ctx, sessionID, 0, err)
	c.countTask(observability.OutcomeLost)
}

func (c *Coordinator) countTask(outcome string) {
	if c.metrics != nil {
		c.metrics.TasksTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Coordinator) abort(log infralogger.Logger, st *runstate.State, err error) {
	log.Warn("Run aborted", infralogger.Error(err))
	st.Abort(err)
}

func (c *Coordinator) publish(event events.RunEvent) {
	if c.publisher == nil {
		return
	}
	event.EventID = uuid.New()
	event.Timestamp = c.now().UTC()
	c.publisher.PublishAsync(event)
}

// areaPercentile is the percentile the area is resolved at: the highest
// requested one, so the area covers every reported percentile.
func areaPercentile(ps []float64) float64 {
	if len(ps) == 0 {
		return 0.5
	}
	return slices.Max(ps)
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
