// Package bootstrap handles application initialization and lifecycle management
// for the caravan server.
package bootstrap

import (
	"context"
	"fmt"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/profiling"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/config"
)

// Start runs the caravan server with cfg until ctx ends or a shutdown
// signal arrives.
func Start(ctx context.Context, cfg *config.Config) error {
	log, logErr := CreateLogger(cfg)
	if logErr != nil {
		return fmt.Errorf("logger: %w", logErr)
	}
	defer func() { _ = log.Sync() }()

	if pprofSrv := profiling.StartPprofServer(cfg.Pprof, log); pprofSrv != nil {
		defer func() { _ = pprofSrv.Close() }()
	}
	profiler, profErr := profiling.StartPyroscope(cfg.Pyroscope, cfg.Service.Name, cfg.Service.Version, log)
	if profErr != nil {
		log.Warn("Continuous profiling disabled", infralogger.Error(profErr))
	}
	if profiler != nil {
		defer func() { _ = profiler.Stop() }()
	}

	log.Info("Starting caravan",
		infralogger.String("version", cfg.Service.Version),
		infralogger.Int("port", cfg.Server.Port),
		infralogger.Int("pool_size", cfg.Runs.PoolSize),
	)

	engine, engineErr := NewEngine(ctx, cfg, log)
	if engineErr != nil {
		return fmt.Errorf("engine: %w", engineErr)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Runs.DrainTimeout)
		defer cancel()
		if closeErr := engine.Close(shutdownCtx); closeErr != nil {
			log.Error("Engine shutdown incomplete", infralogger.Error(closeErr))
		}
	}()

	server := SetupHTTPServer(engine)

	if runErr := server.RunWithGracefulShutdown(ctx); runErr != nil {
		log.Error("Server error", infralogger.Error(runErr))
		return fmt.Errorf("server: %w", runErr)
	}

	log.Info("Caravan stopped")
	return nil
}
