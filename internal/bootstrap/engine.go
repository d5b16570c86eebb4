package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/circuitbreaker"
	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	infraredis "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/redis"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/config"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/coordinator"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/events"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/observability"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/registry"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/runstate"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/scenario"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/service"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/worker"
)

const (
	breakerFailureThreshold = 5
	breakerTimeout          = 30 * time.Second
)

// Engine holds the wired run engine shared by the server and the CLI.
type Engine struct {
	Config   *config.Config
	Logger   infralogger.Logger
	Storage  Storage
	Pool     *worker.Pool
	Runs     *registry.Registry
	Service  *service.RunService
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Redis    *redis.Client

	closeStorage func() error
}

// NewEngine opens storage, starts the worker pool and the registry's
// eviction, and wires the run service. Close releases everything.
func NewEngine(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*Engine, error) {
	storage, closeStorage, storageErr := SetupStorage(cfg)
	if storageErr != nil {
		return nil, fmt.Errorf("storage: %w", storageErr)
	}
	log.Info("Storage ready", infralogger.String("driver", cfg.Database.Driver))

	e := &Engine{
		Config:       cfg,
		Logger:       log,
		Storage:      storage,
		closeStorage: closeStorage,
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	e.Gatherer = reg
	e.Metrics = observability.NewMetrics(reg)
	tracer := observability.NewTracer()

	pool, poolErr := worker.NewPool(worker.Config{
		PoolSize:     cfg.Runs.PoolSize,
		DrainTimeout: cfg.Runs.DrainTimeout,
		JobTimeout:   cfg.Runs.JobTimeout,
	}, log)
	if poolErr != nil {
		_ = e.closeStorage()
		return nil, fmt.Errorf("worker pool: %w", poolErr)
	}
	if startErr := pool.Start(); startErr != nil {
		_ = e.closeStorage()
		return nil, fmt.Errorf("start worker pool: %w", startErr)
	}
	e.Pool = pool

	publisher, pubErr := e.setupPublisher(ctx, tracer)
	if pubErr != nil {
		log.Warn("Run events disabled, redis unavailable", infralogger.Error(pubErr))
	}

	e.Runs = registry.New(registry.Config{
		Retention:    cfg.Runs.Retention,
		MaxRetention: cfg.Runs.MaxRetention,
		Schedule:     cfg.Runs.EvictSchedule,
	}, log, registry.WithEvictHook(func(runstate.Snapshot) {
		e.Metrics.RunsEvictedTotal.Inc()
		e.Metrics.RegistrySize.Set(float64(e.Runs.Len()))
	}))
	if startErr := e.Runs.Start(); startErr != nil {
		_ = e.Close(ctx)
		return nil, fmt.Errorf("registry: %w", startErr)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithMetrics(e.Metrics),
		coordinator.WithTracer(tracer),
		coordinator.WithActiveSessions(e.Runs.ActiveSessions),
	}
	svcOpts := []service.Option{service.WithMetrics(e.Metrics)}
	if publisher != nil {
		coordOpts = append(coordOpts, coordinator.WithPublisher(publisher))
		svcOpts = append(svcOpts, service.WithPublisher(publisher))
	}

	coord := coordinator.New(coordinatorConfig(cfg), storage, pool, log, coordOpts...)
	e.Service = service.NewRunService(coord, e.Runs, log, svcOpts...)

	return e, nil
}

func (e *Engine) setupPublisher(ctx context.Context, tracer *observability.Tracer) (*events.Publisher, error) {
	if !e.Config.Redis.Enabled {
		return nil, nil //nolint:nilnil // disabled is not an error
	}

	client, err := infraredis.NewClient(ctx, infraredis.Config{
		Address:  e.Config.Redis.Address,
		Password: e.Config.Redis.Password,
		DB:       e.Config.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	e.Redis = client

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: breakerFailureThreshold,
		Timeout:          breakerTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			e.Logger.Warn("Run event circuit changed",
				infralogger.String("from", from.String()),
				infralogger.String("to", to.String()),
			)
		},
	})

	publisher := events.NewPublisher(client, e.Config.Redis.ChannelPrefix, e.Logger,
		events.WithMetrics(e.Metrics),
		events.WithTracer(tracer),
		events.WithBreaker(breaker),
	)
	e.Logger.Info("Publishing run events", infralogger.String("channel", publisher.Channel()))
	return publisher, nil
}

// Close stops eviction, waits for dispatching runs, drains the pool and
// closes connections. ctx bounds the whole shutdown.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	if e.Runs != nil {
		e.Runs.Stop(ctx)
	}
	if e.Service != nil {
		if err := e.Service.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for runs: %w", err))
		}
	}
	if e.Pool != nil {
		if err := e.Pool.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
		}
		stats := e.Pool.Stats()
		e.Logger.Info("Worker pool stopped",
			infralogger.Int64("jobs_processed", stats.JobsProcessed),
			infralogger.Float64("success_rate", stats.SuccessRate()),
		)
	}
	if e.Redis != nil {
		if err := e.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if e.closeStorage != nil {
		if err := e.closeStorage(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}

	return errors.Join(errs...)
}

func coordinatorConfig(cfg *config.Config) coordinator.Config {
	sim := cfg.Simulation
	settings := scenario.DefaultSettings()
	settings.TessIDs = sim.TessIDs
	settings.IRef = sim.IRef
	settings.KmStep = sim.KmStep
	settings.SampleCount = sim.SampleCount
	settings.Percentiles = sim.Percentiles
	settings.GMOnly = sim.GMOnly

	return coordinator.Config{
		Settings:       settings,
		Seed:           sim.Seed,
		DiagnosticsDir: cfg.Runs.DiagnosticsDir,
	}
}
