// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Collector UpstreamConfig  `yaml:"collector"`
	App       UpstreamConfig  `yaml:"app"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Redis     RedisConfig     `yaml:"redis"`
	Audit     AuditConfig     `yaml:"audit"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig configures an upstream service.
type UpstreamConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// IngestConfig configures admission control for the ingest namespaces.
// Store is "memory" for single-instance deployments or "redis" to share
// counters across instances.
type IngestConfig struct {
	Store           string        `yaml:"store"`
	Limit           int           `yaml:"limit"`
	WindowSecs      int           `yaml:"window_secs"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	ExtraPatterns   []string      `yaml:"extra_patterns"`
}

// RedisConfig configures the shared counter store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AuditConfig configures decision event recording.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Retention     time.Duration `yaml:"retention"`
}

// DatabaseConfig configures the audit database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Window returns the rate-limit window as a duration.
func (c IngestConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	INGESTGATE_COLLECTOR_URL    - Analytics collector URL (required)
//	INGESTGATE_APP_URL          - Application upstream URL (required)
//	INGESTGATE_SERVER_HOST      - Server host (default: 0.0.0.0)
//	INGESTGATE_SERVER_PORT      - Server port (default: 8080)
//	INGESTGATE_INGEST_STORE     - Counter store: memory or redis (default: memory)
//	INGESTGATE_INGEST_LIMIT     - Requests per window per client (default: 100)
//	INGESTGATE_INGEST_WINDOW    - Window length in seconds (default: 60)
//	INGESTGATE_REDIS_ADDR       - Redis address when store is redis
//	INGESTGATE_DATABASE_DSN     - Audit database path (default: ingestgate.db)
//	INGESTGATE_LOG_LEVEL        - Log level: debug, info, warn, error (default: info)
//	INGESTGATE_LOG_FORMAT       - Log format: json or console (default: json)
//	INGESTGATE_METRICS_ENABLED  - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
// This is the recommended method for Docker deployments.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set INGESTGATE_COLLECTOR_URL and INGESTGATE_APP_URL")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("INGESTGATE_COLLECTOR_URL") != "" && os.Getenv("INGESTGATE_APP_URL") != ""
}

// applyEnvOverrides applies INGESTGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("INGESTGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("INGESTGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("INGESTGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("INGESTGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Upstream configuration
	if v := os.Getenv("INGESTGATE_COLLECTOR_URL"); v != "" {
		cfg.Collector.URL = v
	}
	if v := os.Getenv("INGESTGATE_COLLECTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Collector.Timeout = d
		}
	}
	if v := os.Getenv("INGESTGATE_APP_URL"); v != "" {
		cfg.App.URL = v
	}
	if v := os.Getenv("INGESTGATE_APP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.Timeout = d
		}
	}

	// Ingest configuration
	if v := os.Getenv("INGESTGATE_INGEST_STORE"); v != "" {
		cfg.Ingest.Store = v
	}
	if v := os.Getenv("INGESTGATE_INGEST_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Limit = n
		}
	}
	if v := os.Getenv("INGESTGATE_INGEST_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.WindowSecs = n
		}
	}
	if v := os.Getenv("INGESTGATE_INGEST_CLEANUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.CleanupInterval = d
		}
	}

	// Redis configuration
	if v := os.Getenv("INGESTGATE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("INGESTGATE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("INGESTGATE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	// Audit configuration
	if v := os.Getenv("INGESTGATE_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = parseBool(v)
	}

	// Database configuration
	if v := os.Getenv("INGESTGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("INGESTGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("INGESTGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INGESTGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("INGESTGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("INGESTGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Ingest.Store == "" {
		cfg.Ingest.Store = "memory"
	}
	if cfg.Ingest.Limit == 0 {
		cfg.Ingest.Limit = 100
	}
	if cfg.Ingest.WindowSecs == 0 {
		cfg.Ingest.WindowSecs = 60
	}
	if cfg.Ingest.CleanupInterval == 0 {
		cfg.Ingest.CleanupInterval = 5 * time.Minute
	}

	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}

	if cfg.Audit.BatchSize == 0 {
		cfg.Audit.BatchSize = 100
	}
	if cfg.Audit.FlushInterval == 0 {
		cfg.Audit.FlushInterval = 10 * time.Second
	}
	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = 30 * 24 * time.Hour
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "ingestgate.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Collector.URL == "" {
		return fmt.Errorf("collector.url is required")
	}
	if cfg.App.URL == "" {
		return fmt.Errorf("app.url is required")
	}

	validStores := map[string]bool{"memory": true, "redis": true}
	if !validStores[cfg.Ingest.Store] {
		return fmt.Errorf("ingest.store must be 'memory' or 'redis', got %q", cfg.Ingest.Store)
	}
	if cfg.Ingest.Store == "redis" && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when ingest.store is 'redis'")
	}

	if cfg.Ingest.Limit < 0 {
		return fmt.Errorf("ingest.limit must not be negative")
	}
	if cfg.Ingest.WindowSecs < 0 {
		return fmt.Errorf("ingest.window_secs must not be negative")
	}

	validDrivers := map[string]bool{"sqlite": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	return nil
}
