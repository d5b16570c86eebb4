package config

import (
	"net/url"
	"strconv"
	"time"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `env:"CARAVAN_HTTP_HOST" yaml:"host"`
	Port         int           `env:"CARAVAN_HTTP_PORT" yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SetDefaults fills unset server fields.
func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// DatabaseConfig holds PostgreSQL/PostGIS connection settings.
type DatabaseConfig struct {
	Host            string        `env:"CARAVAN_DB_HOST"     yaml:"host"`
	Port            int           `env:"CARAVAN_DB_PORT"     yaml:"port"`
	User            string        `env:"CARAVAN_DB_USER"     yaml:"user"`
	Password        string        `env:"CARAVAN_DB_PASSWORD" yaml:"password"`
	Database        string        `env:"CARAVAN_DB_NAME"     yaml:"database"`
	SSLMode         string        `env:"CARAVAN_DB_SSLMODE"  yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN returns a lib/pq URL connection string. Credentials are escaped.
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// SetDefaults fills unset database fields.
func (c *DatabaseConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.User == "" {
		c.User = "caravan"
	}
	if c.Database == "" {
		c.Database = "caravan"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// RedisConfig holds settings for the run event publisher.
type RedisConfig struct {
	Enabled  bool   `env:"CARAVAN_REDIS_ENABLED"  yaml:"enabled"`
	Address  string `env:"CARAVAN_REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"CARAVAN_REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"CARAVAN_REDIS_DB"       yaml:"db"`

	// ChannelPrefix prefixes the events channel, <prefix>:runs.
	ChannelPrefix string `env:"CARAVAN_REDIS_CHANNEL_PREFIX" yaml:"channel_prefix"`
}

// SetDefaults fills unset redis fields.
func (c *RedisConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = "caravan"
	}
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// SetDefaults fills unset logging fields.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}
