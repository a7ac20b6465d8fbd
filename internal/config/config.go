// Package config loads server and CLI settings from NUTRITION_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/keyqueue"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Store drivers.
const (
	DriverAuto     = "auto"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the server configuration. Example:
// NUTRITION_HTTP_PORT=8080 NUTRITION_DB_URL=postgres://... NUTRITION_QUEUE_SHARDS=16
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	HTTPPort    int         `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// StoreDriver "auto" picks postgres when DB_URL is set, then sqlite when
	// SQLITE_PATH is set, else memory.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"auto"`
	DBURL       string `envconfig:"DB_URL" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`

	Retry docstore.RetryPolicy `envconfig:"RETRY"`
	Queue keyqueue.Config      `envconfig:"QUEUE"`

	// ReconcileSchedule is a cron spec; empty disables scheduled reconciliation.
	ReconcileSchedule   string `envconfig:"RECONCILE_SCHEDULE" default:"@every 1h"`
	ReconcileWindowDays int    `envconfig:"RECONCILE_WINDOW_DAYS" default:"7"`
	HistoryDays         int    `envconfig:"HISTORY_DAYS" default:"30"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// ResolveDefaults validates the config and derives StoreDriver when set to "auto".
func (c *Config) ResolveDefaults() error {
	switch c.StoreDriver {
	case "", DriverAuto:
		switch {
		case c.DBURL != "":
			c.StoreDriver = DriverPostgres
		case c.SQLitePath != "":
			c.StoreDriver = DriverSQLite
		default:
			c.StoreDriver = DriverMemory
		}
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case DriverPostgres:
		if c.DBURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}
	if c.HistoryDays <= 0 {
		return fmt.Errorf("HISTORY_DAYS must be positive, got %d", c.HistoryDays)
	}
	if c.ReconcileWindowDays < 0 {
		return fmt.Errorf("RECONCILE_WINDOW_DAYS must not be negative, got %d", c.ReconcileWindowDays)
	}
	return nil
}

// New creates a new Config by parsing NUTRITION_ prefixed environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("NUTRITION", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns an in-memory config with fast retries.
func NewForTesting() *Config {
	cfg := &Config{
		Environment:         EnvTesting,
		HTTPPort:            8080,
		LogLevel:            "debug",
		StoreDriver:         DriverMemory,
		Retry:               docstore.RetryPolicy{MaxRetries: 20, BaseBackoff: time.Millisecond, MaxInterval: 10 * time.Millisecond},
		Queue:               keyqueue.Config{Shards: 2, QueueSize: 16, EnqueueTimeout: time.Second},
		ReconcileWindowDays: 7,
		HistoryDays:         30,
		ShutdownTimeout:     time.Second,
	}
	return cfg
}

// LogSummary writes the effective configuration without secrets.
func (c *Config) LogSummary(log zerolog.Logger) {
	log.Info().
		Str("environment", string(c.Environment)).
		Int("port", c.HTTPPort).
		Str("store_driver", c.StoreDriver).
		Bool("db_url_present", c.DBURL != "").
		Str("sqlite_path", c.SQLitePath).
		Int("queue_shards", c.Queue.Shards).
		Int("retry_max", c.Retry.MaxRetries).
		Str("reconcile_schedule", c.ReconcileSchedule).
		Int("history_days", c.HistoryDays).
		Msg("Configuration loaded")
}
