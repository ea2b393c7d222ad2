// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (MARVIN_* overrides, plus DATABASE_URL)
//  2. Config file (~/.marvin-memory/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive data (the PostgreSQL password) is never logged; the config
// directory uses 0750 permissions. Validation is fail-fast with sentinel
// errors usable via errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidPoolBounds indicates min/max connection bounds are inconsistent.
	ErrInvalidPoolBounds = errors.New("invalid pool connection bounds")

	// ErrInvalidQueuePath indicates the fallback queue path is empty.
	ErrInvalidQueuePath = errors.New("invalid fallback queue path")

	// ErrInvalidInterval indicates a duration setting is not positive.
	ErrInvalidInterval = errors.New("invalid interval")
)

// Config stores application configuration.
// SECURITY: the PostgreSQL password must never appear in logs.
type Config struct {
	// Storage configuration (see storage.go for DSN builders)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Connection pool bounds and acquire behavior
	PoolMinConns       int           `mapstructure:"pool_min_conns"`
	PoolMaxConns       int           `mapstructure:"pool_max_conns"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
	AcquireRetries     int           `mapstructure:"acquire_retries"`
	AcquireRetryDelay  time.Duration `mapstructure:"acquire_retry_delay"`

	// Local durable fallback queue for writes made while the backend is down
	QueuePath string `mapstructure:"queue_path"`

	// Retrieval settings
	SearchTimeout   time.Duration `mapstructure:"search_timeout"`
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout"`

	// Maintenance settings
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	CleanupDays         int           `mapstructure:"cleanup_days"`

	// Summarizer settings
	PeopleNames []string `mapstructure:"people_names"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".marvin-memory")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "marvin")
	v.SetDefault("postgres_password", "marvin_dev_password")
	v.SetDefault("postgres_db_name", "marvin_db")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("pool_min_conns", 2)
	v.SetDefault("pool_max_conns", 10)
	v.SetDefault("acquire_timeout", 10*time.Second)
	v.SetDefault("acquire_retries", 3)
	v.SetDefault("acquire_retry_delay", 2*time.Second)

	v.SetDefault("queue_path", filepath.Join(configDir, "fallback_queue.jsonl"))

	v.SetDefault("search_timeout", 10*time.Second)
	v.SetDefault("strategy_timeout", 3*time.Second)

	v.SetDefault("maintenance_interval", time.Hour)
	v.SetDefault("cleanup_days", 30)

	v.SetDefault("people_names", []string{"大王", "Marvin", "用户", "管理员"})
}

// bindEnvVariables binds environment overrides explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("postgres_host", "MARVIN_POSTGRES_HOST")
	mustBind("postgres_port", "MARVIN_POSTGRES_PORT")
	mustBind("postgres_user", "MARVIN_POSTGRES_USER")
	mustBind("postgres_password", "MARVIN_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "MARVIN_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "MARVIN_POSTGRES_SSL_MODE")
	mustBind("queue_path", "MARVIN_QUEUE_PATH")
	mustBind("maintenance_interval", "MARVIN_MAINTENANCE_INTERVAL")

	// NOTE: DATABASE_URL is parsed separately in parseDatabaseURL and takes
	// precedence over the individual postgres_* settings.
}

// Validate checks the configuration for consistency. Fail-fast: the first
// invalid setting is reported.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (expected 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	if c.PoolMinConns < 0 || c.PoolMaxConns < 1 || c.PoolMinConns > c.PoolMaxConns {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidPoolBounds, c.PoolMinConns, c.PoolMaxConns)
	}
	if c.QueuePath == "" {
		return fmt.Errorf("%w: queue path must not be empty", ErrInvalidQueuePath)
	}
	for name, d := range map[string]time.Duration{
		"acquire_timeout":      c.AcquireTimeout,
		"acquire_retry_delay":  c.AcquireRetryDelay,
		"search_timeout":       c.SearchTimeout,
		"strategy_timeout":     c.StrategyTimeout,
		"maintenance_interval": c.MaintenanceInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidInterval, name, d)
		}
	}
	if c.AcquireRetries < 1 {
		return fmt.Errorf("%w: acquire_retries must be at least 1, got %d", ErrInvalidInterval, c.AcquireRetries)
	}
	if c.CleanupDays < 1 {
		return fmt.Errorf("%w: cleanup_days must be at least 1, got %d", ErrInvalidInterval, c.CleanupDays)
	}
	return nil
}
