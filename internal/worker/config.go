// Package worker runs per-target computations on a bounded pool of workers.
// Jobs are submitted through per-run Groups so a run can be cancelled
// without touching other runs sharing the pool.
package worker

import (
	"errors"
	"time"
)

const (
	// DefaultPoolSize is the default number of workers in the pool.
	DefaultPoolSize = 8

	// DefaultDrainTimeout bounds graceful shutdown.
	DefaultDrainTimeout = 30 * time.Second

	// DefaultJobTimeout bounds one per-target computation.
	DefaultJobTimeout = 5 * time.Minute

	MinPoolSize = 1
	MaxPoolSize = 256
)

// Config holds configuration for the worker pool.
type Config struct {
	// PoolSize is the number of concurrent workers.
	PoolSize int

	// DrainTimeout is how long Stop waits for in-flight jobs.
	DrainTimeout time.Duration

	// JobTimeout is applied to every job's context.
	JobTimeout time.Duration
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:     DefaultPoolSize,
		DrainTimeout: DefaultDrainTimeout,
		JobTimeout:   DefaultJobTimeout,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.PoolSize < MinPoolSize {
		return errors.New("pool size must be at least 1")
	}
	if c.PoolSize > MaxPoolSize {
		return errors.New("pool size cannot exceed 256")
	}
	if c.DrainTimeout <= 0 {
		return errors.New("drain timeout must be positive")
	}
	if c.JobTimeout <= 0 {
		return errors.New("job timeout must be positive")
	}
	return nil
}
