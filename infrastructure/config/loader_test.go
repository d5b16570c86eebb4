package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/config"
)

type sample struct {
	Database config.DatabaseConfig `yaml:"database"`
	Logging  config.LoggingConfig  `yaml:"logging"`
	Timeout  time.Duration         `env:"SAMPLE_TIMEOUT" yaml:"timeout"`
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithDefaults_EnvWins(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("CARAVAN_DB_HOST", "db.internal")
	t.Setenv("SAMPLE_TIMEOUT", "3s")

	path := writeFile(t, "database:\n  host: yaml-host\n  user: caravan\n")

	cfg, err := config.LoadWithDefaults[sample](path, func(s *sample) {
		s.Database.SetDefaults()
		s.Logging.SetDefaults()
	})
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestLoadOptional_MissingFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	cfg, err := config.LoadOptional[sample](filepath.Join(t.TempDir(), "nope.yml"), func(s *sample) {
		s.Database.SetDefaults()
	})
	require.NoError(t, err)
	assert.Equal(t, "caravan", cfg.Database.Database)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	_, err := config.Load[sample](filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	c := config.DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p@ss", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@h:5433/d?sslmode=disable", c.DSN())
}

func TestLoggingConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{"defaults", config.LoggingConfig{}, false},
		{"console", config.LoggingConfig{Level: "debug", Format: "console"}, false},
		{"bad level", config.LoggingConfig{Level: "loud"}, true},
		{"bad format", config.LoggingConfig{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				var vErr *config.ValidationError
				assert.ErrorAs(t, err, &vErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
