// Package config handles configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (NETSTATE_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	monitor:
//	  check_interval: 30s
//	  latency_test_host: 1.1.1.1
//	  latency_test_port: 443
//
//	coordinator:
//	  max_retry_count: 3
//
//	backends:
//	  - id: api
//	    health_endpoint: https://api.example.com/healthz
//	    primary: true
//
//	server:
//	  listen: :8791
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete netstate configuration.
type Config struct {
	Monitor     MonitorConfig     `yaml:"monitor"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Backends    []BackendConfig   `yaml:"backends"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
}

// MonitorConfig controls connectivity and latency checking.
type MonitorConfig struct {
	EnableConnectivityCheck *bool         `yaml:"enable_connectivity_check,omitempty"` // default true
	EnableLatencyCheck      *bool         `yaml:"enable_latency_check,omitempty"`      // default true
	CheckInterval           time.Duration `yaml:"check_interval"`
	LatencyTestHost         string        `yaml:"latency_test_host"`
	LatencyTestPort         int           `yaml:"latency_test_port"`
	MaxHistorySize          int           `yaml:"max_history_size"`
	ConnectivityTimeout     time.Duration `yaml:"connectivity_timeout"`
}

// CoordinatorConfig controls mode evaluation and retry behavior.
type CoordinatorConfig struct {
	CheckInterval  time.Duration `yaml:"check_interval"`
	BackgroundTTL  time.Duration `yaml:"background_ttl"`
	InteractiveTTL time.Duration `yaml:"interactive_ttl"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	MaxRetryCount  int           `yaml:"max_retry_count"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

// BackendConfig describes one monitored backend.
type BackendConfig struct {
	ID                   string        `yaml:"id"`
	CustomHealthEndpoint string        `yaml:"health_endpoint"`
	HealthCheckInterval  time.Duration `yaml:"health_check_interval,omitempty"`
	Required             *bool         `yaml:"required,omitempty"` // default true
	Primary              bool          `yaml:"primary,omitempty"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Listen string `yaml:"listen,omitempty"` // empty disables the server
}

// StorageConfig wires optional shared state.
type StorageConfig struct {
	// RedisURL enables the shared backend-health cache.
	RedisURL string `yaml:"redis_url,omitempty"`
	// PostgresURL enables the transition journal.
	PostgresURL string `yaml:"postgres_url,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			CheckInterval:       30 * time.Second,
			LatencyTestHost:     "1.1.1.1",
			LatencyTestPort:     443,
			MaxHistorySize:      100,
			ConnectivityTimeout: 10 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			CheckInterval:  30 * time.Second,
			BackgroundTTL:  2 * time.Minute,
			InteractiveTTL: 10 * time.Second,
			ProbeTimeout:   10 * time.Second,
			MaxRetryCount:  3,
			RetryBaseDelay: 5 * time.Second,
			RetryMaxDelay:  5 * time.Minute,
		},
		Server: ServerConfig{
			Listen: ":8791",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.Monitor.LatencyTestHost == "" {
		return fmt.Errorf("monitor.latency_test_host is required")
	}
	if c.Monitor.LatencyTestPort <= 0 || c.Monitor.LatencyTestPort > 65535 {
		return fmt.Errorf("monitor.latency_test_port must be in 1-65535, got %d", c.Monitor.LatencyTestPort)
	}

	seen := make(map[string]bool)
	primaries := 0
	for i, b := range c.Backends {
		if b.ID == "" {
			return fmt.Errorf("backends[%d].id is required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate backend id: %s", b.ID)
		}
		seen[b.ID] = true
		if b.CustomHealthEndpoint == "" {
			return fmt.Errorf("backends[%d].health_endpoint is required", i)
		}
		if b.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("at most one backend may be primary, got %d", primaries)
	}
	return nil
}

// ConnectivityCheckEnabled resolves the tri-state toggle (default true).
func (m MonitorConfig) ConnectivityCheckEnabled() bool {
	return m.EnableConnectivityCheck == nil || *m.EnableConnectivityCheck
}

// LatencyCheckEnabled resolves the tri-state toggle (default true).
func (m MonitorConfig) LatencyCheckEnabled() bool {
	return m.EnableLatencyCheck == nil || *m.EnableLatencyCheck
}

// RequiredEnabled resolves the per-backend tri-state toggle (default true).
func (b BackendConfig) RequiredEnabled() bool {
	return b.Required == nil || *b.Required
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the NETSTATE_ prefix:
// - NETSTATE_LATENCY_TEST_HOST
// - NETSTATE_LATENCY_TEST_PORT
// - NETSTATE_LISTEN
// - NETSTATE_REDIS_URL
// - NETSTATE_POSTGRES_URL
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NETSTATE_LATENCY_TEST_HOST"); v != "" {
		c.Monitor.LatencyTestHost = v
	}
	if v := os.Getenv("NETSTATE_LATENCY_TEST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Monitor.LatencyTestPort = port
		}
	}
	if v := os.Getenv("NETSTATE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("NETSTATE_REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("NETSTATE_POSTGRES_URL"); v != "" {
		c.Storage.PostgresURL = v
	}
}
