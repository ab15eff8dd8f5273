package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Monitor.LatencyTestHost != "1.1.1.1" || cfg.Monitor.LatencyTestPort != 443 {
		t.Fatalf("unexpected latency target defaults: %s:%d", cfg.Monitor.LatencyTestHost, cfg.Monitor.LatencyTestPort)
	}
	if !cfg.Monitor.ConnectivityCheckEnabled() || !cfg.Monitor.LatencyCheckEnabled() {
		t.Fatal("checks must default to enabled")
	}
	if cfg.Coordinator.MaxRetryCount != 3 {
		t.Fatalf("unexpected retry default: %d", cfg.Coordinator.MaxRetryCount)
	}
}

func TestLoadFromFile_MergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
monitor:
  check_interval: 10s
  latency_test_host: 8.8.8.8
  enable_latency_check: false

coordinator:
  max_retry_count: 5

backends:
  - id: api
    health_endpoint: https://api.example.com/healthz
    primary: true
  - id: search
    health_endpoint: https://search.example.com/healthz
    required: false

server:
  listen: ":9000"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Monitor.CheckInterval != 10*time.Second {
		t.Fatalf("check_interval not applied: %v", cfg.Monitor.CheckInterval)
	}
	if cfg.Monitor.LatencyTestHost != "8.8.8.8" {
		t.Fatalf("latency host not applied: %s", cfg.Monitor.LatencyTestHost)
	}
	// Unset file values keep their defaults.
	if cfg.Monitor.LatencyTestPort != 443 {
		t.Fatalf("expected default port preserved, got %d", cfg.Monitor.LatencyTestPort)
	}
	if cfg.Monitor.LatencyCheckEnabled() {
		t.Fatal("latency check should be disabled by the file")
	}
	if cfg.Monitor.ConnectivityCheckEnabled() != true {
		t.Fatal("connectivity check should stay enabled when unset")
	}
	if cfg.Coordinator.MaxRetryCount != 5 {
		t.Fatalf("max_retry_count not applied: %d", cfg.Coordinator.MaxRetryCount)
	}
	if cfg.Server.Listen != ":9000" {
		t.Fatalf("listen not applied: %s", cfg.Server.Listen)
	}

	if len(cfg.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(cfg.Backends))
	}
	if !cfg.Backends[0].Primary || !cfg.Backends[0].RequiredEnabled() {
		t.Fatalf("unexpected primary backend: %+v", cfg.Backends[0])
	}
	if cfg.Backends[1].RequiredEnabled() {
		t.Fatal("search backend should be optional")
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := writeConfigFile(t, "monitor: [not a mapping")
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"missing latency host",
			func(c *Config) { c.Monitor.LatencyTestHost = "" },
			"latency_test_host",
		},
		{
			"port out of range",
			func(c *Config) { c.Monitor.LatencyTestPort = 70000 },
			"latency_test_port",
		},
		{
			"backend without id",
			func(c *Config) {
				c.Backends = []BackendConfig{{CustomHealthEndpoint: "https://x/healthz"}}
			},
			"id is required",
		},
		{
			"duplicate backend ids",
			func(c *Config) {
				c.Backends = []BackendConfig{
					{ID: "api", CustomHealthEndpoint: "https://a/healthz"},
					{ID: "api", CustomHealthEndpoint: "https://b/healthz"},
				}
			},
			"duplicate backend id",
		},
		{
			"backend without endpoint",
			func(c *Config) {
				c.Backends = []BackendConfig{{ID: "api"}}
			},
			"health_endpoint",
		},
		{
			"two primaries",
			func(c *Config) {
				c.Backends = []BackendConfig{
					{ID: "a", CustomHealthEndpoint: "https://a/healthz", Primary: true},
					{ID: "b", CustomHealthEndpoint: "https://b/healthz", Primary: true},
				}
			},
			"one backend may be primary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NETSTATE_LATENCY_TEST_HOST", "9.9.9.9")
	t.Setenv("NETSTATE_LATENCY_TEST_PORT", "853")
	t.Setenv("NETSTATE_LISTEN", ":7000")
	t.Setenv("NETSTATE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("NETSTATE_POSTGRES_URL", "postgres://localhost/netstate")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Monitor.LatencyTestHost != "9.9.9.9" || cfg.Monitor.LatencyTestPort != 853 {
		t.Fatalf("latency overrides not applied: %s:%d", cfg.Monitor.LatencyTestHost, cfg.Monitor.LatencyTestPort)
	}
	if cfg.Server.Listen != ":7000" {
		t.Fatalf("listen override not applied: %s", cfg.Server.Listen)
	}
	if cfg.Storage.RedisURL == "" || cfg.Storage.PostgresURL == "" {
		t.Fatal("storage overrides not applied")
	}
}

func TestApplyEnvOverrides_IgnoresBadPort(t *testing.T) {
	t.Setenv("NETSTATE_LATENCY_TEST_PORT", "not-a-port")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Monitor.LatencyTestPort != 443 {
		t.Fatalf("expected default port retained, got %d", cfg.Monitor.LatencyTestPort)
	}
}
