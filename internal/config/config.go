// Package config loads the caravan service configuration.
package config

import (
	"fmt"
	"slices"
	"time"

	infraconfig "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/config"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/profiling"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/dist"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/scenario"
)

// Default service configuration values.
const (
	defaultServiceName    = "caravan"
	defaultServiceVersion = "1.0.0"
)

// Default run configuration values.
const (
	defaultPoolSize      = 8
	defaultJobTimeout    = 5 * time.Minute
	defaultDrainTimeout  = 30 * time.Second
	defaultRetention     = 10 * time.Minute
	defaultMaxRetention  = time.Hour
	defaultEvictSchedule = "@every 1m"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig             `yaml:"service"`
	Server     infraconfig.ServerConfig  `yaml:"server"`
	Database   DatabaseConfig            `yaml:"database"`
	Redis      infraconfig.RedisConfig   `yaml:"redis"`
	Auth       AuthConfig                `yaml:"auth"`
	Logging    infraconfig.LoggingConfig `yaml:"logging"`
	Runs       RunsConfig                `yaml:"runs"`
	Simulation SimulationConfig          `yaml:"simulation"`
	Pprof      profiling.PprofConfig     `yaml:"pprof"`
	Pyroscope  profiling.PyroscopeConfig `yaml:"pyroscope"`
}

// ServiceConfig holds service identity and runtime settings.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Debug   bool   `env:"APP_DEBUG" yaml:"debug"`
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	Driver string `env:"CARAVAN_STORAGE" yaml:"driver"`

	infraconfig.DatabaseConfig `yaml:",inline"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// RunsConfig configures the worker pool and the run registry.
type RunsConfig struct {
	PoolSize       int           `env:"CARAVAN_POOL_SIZE"       yaml:"pool_size"`
	JobTimeout     time.Duration `env:"CARAVAN_JOB_TIMEOUT"     yaml:"job_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	Retention      time.Duration `env:"CARAVAN_RETENTION"       yaml:"retention"`
	MaxRetention   time.Duration `env:"CARAVAN_MAX_RETENTION"   yaml:"max_retention"`
	EvictSchedule  string        `yaml:"evict_schedule"`
	DiagnosticsDir string        `env:"CARAVAN_DIAGNOSTICS_DIR" yaml:"diagnostics_dir"`
}

// SimulationConfig holds the values used for keys an event omits.
type SimulationConfig struct {
	TessIDs     []int     `yaml:"tess_ids"`
	IRef        float64   `yaml:"aoi_i_ref"`
	KmStep      float64   `yaml:"aoi_km_step"`
	SampleCount int       `env:"CARAVAN_SAMPLE_COUNT" yaml:"mcerp_npts"`
	Percentiles []float64 `yaml:"percentiles"`
	GMOnly      bool      `env:"CARAVAN_GM_ONLY"      yaml:"gm_only"`
	Seed        uint64    `env:"CARAVAN_SEED"         yaml:"seed"`
}

// Load loads configuration from a YAML file, applies defaults, then env
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, loadErr := infraconfig.LoadOptional(path, SetDefaults)
	if loadErr != nil {
		return nil, fmt.Errorf("load config: %w", loadErr)
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}

	switch c.Database.Driver {
	case StorageMemory:
	case StoragePostgres:
		if err := c.Database.DatabaseConfig.Validate(); err != nil {
			return err
		}
	default:
		return &infraconfig.ValidationError{Field: "database.driver", Message: "must be postgres or memory"}
	}

	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.validateRuns(); err != nil {
		return err
	}
	return c.validateSimulation()
}

func (c *Config) validateRuns() error {
	if c.Runs.PoolSize < 1 {
		return &infraconfig.ValidationError{Field: "runs.pool_size", Message: "must be at least 1"}
	}
	if err := infraconfig.ValidatePositiveDuration("runs.job_timeout", c.Runs.JobTimeout); err != nil {
		return err
	}
	if err := infraconfig.ValidatePositiveDuration("runs.retention", c.Runs.Retention); err != nil {
		return err
	}
	if c.Runs.MaxRetention < c.Runs.Retention {
		return &infraconfig.ValidationError{Field: "runs.max_retention", Message: "must not be shorter than runs.retention"}
	}
	return nil
}

func (c *Config) validateSimulation() error {
	s := c.Simulation
	for _, id := range s.TessIDs {
		if id < 1 || id > scenario.MaxTessellationID {
			return &infraconfig.ValidationError{Field: "simulation.tess_ids", Message: fmt.Sprintf("ids must be in [1, %d]", scenario.MaxTessellationID)}
		}
	}
	if s.KmStep < 1 {
		return &infraconfig.ValidationError{Field: "simulation.aoi_km_step", Message: "must be at least 1"}
	}
	if s.SampleCount < 1 {
		return &infraconfig.ValidationError{Field: "simulation.mcerp_npts", Message: "must be at least 1"}
	}
	if !slices.IsSorted(s.Percentiles) {
		return &infraconfig.ValidationError{Field: "simulation.percentiles", Message: "must be sorted"}
	}
	for _, p := range s.Percentiles {
		if p <= 0 || p >= 1 {
			return &infraconfig.ValidationError{Field: "simulation.percentiles", Message: "must lie in (0, 1)"}
		}
	}
	return nil
}

// SetDefaults applies default values to all configuration sections.
func SetDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	cfg.Server.SetDefaults()
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = StoragePostgres
	}
	cfg.Database.DatabaseConfig.SetDefaults()
	cfg.Redis.SetDefaults()
	cfg.Logging.SetDefaults()
	setRunsDefaults(&cfg.Runs)
	setSimulationDefaults(&cfg.Simulation)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
}

func setRunsDefaults(r *RunsConfig) {
	if r.PoolSize == 0 {
		r.PoolSize = defaultPoolSize
	}
	if r.JobTimeout == 0 {
		r.JobTimeout = defaultJobTimeout
	}
	if r.DrainTimeout == 0 {
		r.DrainTimeout = defaultDrainTimeout
	}
	if r.Retention == 0 {
		r.Retention = defaultRetention
	}
	if r.MaxRetention == 0 {
		r.MaxRetention = defaultMaxRetention
	}
	if r.EvictSchedule == "" {
		r.EvictSchedule = defaultEvictSchedule
	}
}

func setSimulationDefaults(s *SimulationConfig) {
	if len(s.TessIDs) == 0 {
		s.TessIDs = []int{1, 2}
	}
	if s.IRef == 0 {
		s.IRef = 6
	}
	if s.KmStep == 0 {
		s.KmStep = 1
	}
	if s.SampleCount == 0 {
		s.SampleCount = dist.DefaultSampleCount
	}
	if len(s.Percentiles) == 0 {
		s.Percentiles = []float64{0.05, 0.25, 0.5, 0.75, 0.95}
	}
}
