package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	infragin "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/gin"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/api"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/gmpe"
)

const healthCheckTimeout = 2 * time.Second

// SetupHTTPServer creates the HTTP server with all handlers wired.
func SetupHTTPServer(e *Engine) *infragin.Server {
	cfg := e.Config

	runHandler := api.NewRunHandler(e.Service)
	gmpeHandler := api.NewGMPEHandler(gmpe.DefaultRegistry())

	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Server.Port).
		WithLogger(e.Logger).
		WithHost(cfg.Server.Host).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout).
		WithDatabaseHealthCheck(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			defer cancel()
			return e.Storage.Ping(ctx)
		}).
		WithHealthCheck("workers", infragin.PingHealthChecker("Worker pool", infragin.HealthStatusUnhealthy, e.Pool.Healthy)).
		WithHealthCheck("runs", func() infragin.CheckResult {
			return infragin.CheckResult{
				Status:  infragin.HealthStatusHealthy,
				Message: fmt.Sprintf("%d active of %d registered", e.Runs.Active(), e.Runs.Len()),
			}
		})

	if e.Redis != nil {
		builder = builder.WithRedisHealthCheck(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			defer cancel()
			return e.Redis.Ping(ctx).Err()
		})
	}

	return builder.
		WithRoutes(func(router *gin.Engine) {
			api.SetupRoutes(router, runHandler, gmpeHandler, e.Gatherer, cfg.Auth.JWTSecret)
		}).
		Build()
}
