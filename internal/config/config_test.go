package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraconfig "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/config"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)

	assert.Equal(t, "caravan", cfg.Service.Name)
	assert.Equal(t, config.StoragePostgres, cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 8, cfg.Runs.PoolSize)
	assert.Equal(t, 10*time.Minute, cfg.Runs.Retention)
	assert.Equal(t, "@every 1m", cfg.Runs.EvictSchedule)
	assert.Equal(t, []int{1, 2}, cfg.Simulation.TessIDs)
	assert.InDelta(t, 6.0, cfg.Simulation.IRef, 0)
	assert.Equal(t, []float64{0.05, 0.25, 0.5, 0.75, 0.95}, cfg.Simulation.Percentiles)
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("CARAVAN_STORAGE", "memory")
	t.Setenv("CARAVAN_POOL_SIZE", "3")

	path := writeConfig(t, `
runs:
  pool_size: 16
  retention: 2m
simulation:
  tess_ids: [3]
  aoi_km_step: 5
  mcerp_npts: 500
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.StorageMemory, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Runs.PoolSize)
	assert.Equal(t, 2*time.Minute, cfg.Runs.Retention)
	assert.Equal(t, []int{3}, cfg.Simulation.TessIDs)
	assert.InDelta(t, 5.0, cfg.Simulation.KmStep, 0)
	assert.Equal(t, 500, cfg.Simulation.SampleCount)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{name: "unknown driver", mutate: func(c *config.Config) { c.Database.Driver = "mysql" }, field: "database.driver"},
		{name: "missing db host", mutate: func(c *config.Config) { c.Database.Host = "" }, field: "database.host"},
		{name: "empty pool", mutate: func(c *config.Config) { c.Runs.PoolSize = 0 }, field: "runs.pool_size"},
		{
			name:   "max retention too short",
			mutate: func(c *config.Config) { c.Runs.MaxRetention = time.Second },
			field:  "runs.max_retention",
		},
		{name: "tessellation out of range", mutate: func(c *config.Config) { c.Simulation.TessIDs = []int{8} }, field: "simulation.tess_ids"},
		{name: "small km step", mutate: func(c *config.Config) { c.Simulation.KmStep = 0.5 }, field: "simulation.aoi_km_step"},
		{
			name:   "unsorted percentiles",
			mutate: func(c *config.Config) { c.Simulation.Percentiles = []float64{0.5, 0.25} },
			field:  "simulation.percentiles",
		},
		{
			name:   "percentile out of range",
			mutate: func(c *config.Config) { c.Simulation.Percentiles = []float64{0.5, 1} },
			field:  "simulation.percentiles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			config.SetDefaults(cfg)
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()

			var verr *infraconfig.ValidationError
			require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidate_MemoryDriverSkipsDatabase(t *testing.T) {
	cfg := &config.Config{}
	config.SetDefaults(cfg)
	cfg.Database.Driver = config.StorageMemory
	cfg.Database.Host = ""

	assert.NoError(t, cfg.Validate())
}
