// Package config loads service configuration from the environment and
// validates it eagerly, so a misconfigured process fails at startup instead
// of at first request.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration. Every field has a PRODUCT_*
// environment variable; unset variables take the documented defaults.
type Config struct {
	// ListenAddr is the HTTP bind address. PRODUCT_LISTEN_ADDR.
	// Default: ":8080"
	ListenAddr string

	// DataFile is the JSON catalog path. PRODUCT_DATA_FILE.
	// Default: "data/products.json"
	DataFile string

	// AdminSecret signs and verifies admin bearer tokens.
	// PRODUCT_ADMIN_SECRET, required, at least 32 bytes.
	AdminSecret string

	// LogLevel: debug|info|warn|error. PRODUCT_LOG_LEVEL.
	// Default: "info"
	LogLevel string

	// MetricsExporter: otlp|prometheus|stdout|none. PRODUCT_METRICS_EXPORTER.
	// Default: "none"
	MetricsExporter string

	// TracingExporter: otlp|stdout|none. PRODUCT_TRACING_EXPORTER.
	// Default: "none"
	TracingExporter string

	// TracingSamplePct: fraction of requests traced, 0.0-1.0.
	// PRODUCT_TRACING_SAMPLE_PCT.
	// Default: 1.0
	TracingSamplePct float64

	// ClientRateCapacity is the per-client request budget per period.
	// PRODUCT_CLIENT_RATE_CAPACITY.
	// Default: 200
	ClientRateCapacity int

	// ClientRatePeriod is the per-client rate window.
	// PRODUCT_CLIENT_RATE_PERIOD.
	// Default: 1m
	ClientRatePeriod time.Duration

	// IdleEviction is how long an unused per-client limiter survives before
	// the background sweep removes it. PRODUCT_IDLE_EVICTION.
	// Default: 30m
	IdleEviction time.Duration
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      envDefault("PRODUCT_LISTEN_ADDR", ":8080"),
		DataFile:        envDefault("PRODUCT_DATA_FILE", "data/products.json"),
		AdminSecret:     os.Getenv("PRODUCT_ADMIN_SECRET"),
		LogLevel:        envDefault("PRODUCT_LOG_LEVEL", "info"),
		MetricsExporter: envDefault("PRODUCT_METRICS_EXPORTER", "none"),
		TracingExporter: envDefault("PRODUCT_TRACING_EXPORTER", "none"),
	}

	var err error
	if cfg.TracingSamplePct, err = envFloat("PRODUCT_TRACING_SAMPLE_PCT", 1.0); err != nil {
		return Config{}, err
	}
	if cfg.ClientRateCapacity, err = envInt("PRODUCT_CLIENT_RATE_CAPACITY", 200); err != nil {
		return Config{}, err
	}
	if cfg.ClientRatePeriod, err = envDuration("PRODUCT_CLIENT_RATE_PERIOD", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.IdleEviction, err = envDuration("PRODUCT_IDLE_EVICTION", 30*time.Minute); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would misbehave at
// runtime.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: listen address is required")
	}
	if c.DataFile == "" {
		return errors.New("config: data file path is required")
	}
	if err := ValidateAdminSecret(c.AdminSecret); err != nil {
		return err
	}
	if c.ClientRateCapacity <= 0 {
		return fmt.Errorf("config: client rate capacity must be positive, got %d", c.ClientRateCapacity)
	}
	if c.ClientRatePeriod <= 0 {
		return fmt.Errorf("config: client rate period must be positive, got %v", c.ClientRatePeriod)
	}
	if c.IdleEviction <= 0 {
		return fmt.Errorf("config: idle eviction must be positive, got %v", c.IdleEviction)
	}
	if c.TracingSamplePct < 0 || c.TracingSamplePct > 1 {
		return fmt.Errorf("config: tracing sample percentage must be in [0, 1], got %v", c.TracingSamplePct)
	}
	return nil
}

// ValidateAdminSecret enforces a minimum strength on the admin signing
// secret.
func ValidateAdminSecret(secret string) error {
	if secret == "" {
		return errors.New("config: PRODUCT_ADMIN_SECRET is required")
	}
	if len(secret) < 32 {
		return fmt.Errorf("config: admin secret must be at least 32 bytes, got %d", len(secret))
	}
	return nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
