// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all client configuration.
type Config struct {
	Backend BackendConfig
	Storage StorageConfig
	Sweeper SweeperConfig
	Monitor MonitorConfig
	Logging LogConfig
}

// BackendConfig holds remote backend configuration.
type BackendConfig struct {
	BaseURL       string        `envconfig:"BACKEND_URL" default:"http://localhost:8000"`
	QueryTimeout  time.Duration `envconfig:"QUERY_TIMEOUT" default:"120s"`
	HealthTimeout time.Duration `envconfig:"HEALTH_TIMEOUT" default:"5s"`
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	StateDir string `envconfig:"STATE_DIR" default:".floatchat"`
}

// SweeperConfig holds reconciliation sweeper configuration.
type SweeperConfig struct {
	Debounce time.Duration `envconfig:"SWEEP_DEBOUNCE" default:"2s"`
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	ProbeRPS float64       `envconfig:"SWEEP_PROBE_RPS" default:"10"`
}

// MonitorConfig holds backend health monitor configuration.
type MonitorConfig struct {
	Interval time.Duration `envconfig:"HEALTH_INTERVAL" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("FLOATCHAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8000",
			QueryTimeout:  120 * time.Second,
			HealthTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			StateDir: ".floatchat",
		},
		Sweeper: SweeperConfig{
			Debounce: 2 * time.Second,
			Interval: 5 * time.Minute,
			ProbeRPS: 10,
		},
		Monitor: MonitorConfig{
			Interval: 30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
