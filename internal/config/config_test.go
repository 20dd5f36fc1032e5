package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
providers:
  - name: primary
    base_url: https://api.primary.example
    api_key: ${LINGOMUX_TEST_KEY}
    rpm: 120
    max_concurrent: 4
  - name: backup
    base_url: https://api.backup.example
    rpm: 60
    max_concurrent: 2
queue:
  strategy: priority
  timeout: 10s
  adaptive: true
cache:
  max_entries: 500
  ttl: 30m
batch:
  concurrency: 8
  max_batch_size: 4
logging:
  level: debug
  format: text
`

func TestLoadFromFile(t *testing.T) {
	t.Setenv("LINGOMUX_TEST_KEY", "secret-key")
	path := writeConfig(t, validConfig)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(cfg.Providers))
	}
	if cfg.Providers[0].APIKey != "secret-key" {
		t.Fatalf("env var not expanded: %q", cfg.Providers[0].APIKey)
	}
	if cfg.Queue.Strategy != "priority" || cfg.Queue.Timeout != 10*time.Second {
		t.Fatalf("queue = %+v", cfg.Queue)
	}
	if !cfg.Queue.Adaptive {
		t.Fatal("adaptive should be enabled")
	}
	if cfg.Cache.MaxEntries != 500 || cfg.Cache.TTL != 30*time.Minute {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Batch.Concurrency != 8 || cfg.Batch.MaxBatchSize != 4 {
		t.Fatalf("batch = %+v", cfg.Batch)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFromFile_DefaultsApply(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: solo
    base_url: https://api.example
    rpm: 60
    max_concurrent: 2
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Queue.Strategy != "fifo" {
		t.Fatalf("default strategy = %q", cfg.Queue.Strategy)
	}
	if cfg.Queue.Timeout != 20*time.Second {
		t.Fatalf("default queue timeout = %v", cfg.Queue.Timeout)
	}
	if cfg.Batch.Pause != 50*time.Millisecond {
		t.Fatalf("default pause = %v", cfg.Batch.Pause)
	}
	if cfg.Routing.DisableWindow != 5*time.Minute {
		t.Fatalf("default disable window = %v", cfg.Routing.DisableWindow)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no providers", func(c *Config) { c.Providers = nil }},
		{"empty provider name", func(c *Config) { c.Providers[0].Name = "" }},
		{"duplicate provider", func(c *Config) { c.Providers = append(c.Providers, c.Providers[0]) }},
		{"missing base url", func(c *Config) { c.Providers[0].BaseURL = "" }},
		{"zero rpm", func(c *Config) { c.Providers[0].RPM = 0 }},
		{"zero concurrency", func(c *Config) { c.Providers[0].MaxConcurrent = 0 }},
		{"bad strategy", func(c *Config) { c.Queue.Strategy = "random" }},
		{"negative retries", func(c *Config) { c.Routing.MaxRetries = -1 }},
		{"zero cache entries", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Providers = []ProviderConfig{{
				Name:          "p",
				BaseURL:       "https://api.example",
				RPM:           60,
				MaxConcurrent: 2,
			}}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
