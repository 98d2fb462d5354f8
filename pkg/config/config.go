package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantguard/pkg/database"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "TENANTGUARD_"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database database.Config `envPrefix:"DB_"`

	// Redis configuration for membership notifications
	Redis database.RedisConfig `envPrefix:"REDIS_"`

	// RBAC engine configuration
	RBAC rbac.Config

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `env:"HEALTH_PORT" envDefault:"9090"`

	// DefaultToCentral makes requests for unknown hosts act on the central tenant
	DefaultToCentral bool `env:"DEFAULT_TO_CENTRAL" envDefault:"false"`

	// RateLimit caps mutating requests per actor per minute; zero disables it
	RateLimit int `env:"RATE_LIMIT" envDefault:"600"`
}

// Addr returns the listen address of the API server
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the listen address of the health/metrics server
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// OpenTelemetry
	OTel observability.OTelConfig `envPrefix:"OTEL_"`
}

// Load loads configuration from the environment, reading a .env file in the
// working directory first when one exists
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{Prefix: EnvPrefix})
}

// LoadFromMap loads configuration from the given variables only
func LoadFromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.RBAC.Validate(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format %q (must be json or text)", c.Observability.LogFormat)
	}

	return c.Observability.OTel.Validate()
}
