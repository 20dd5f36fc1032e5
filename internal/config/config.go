// Package config loads and validates the YAML configuration consumed by
// the lingomux CLI. The library itself is configured through functional
// options; this file format exists for the command-line runner.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runner configuration.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
	Queue     QueueConfig      `yaml:"queue"`
	Routing   RoutingConfig    `yaml:"routing"`
	Cache     CacheConfig      `yaml:"cache"`
	Batch     BatchConfig      `yaml:"batch"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ProviderConfig defines one backend provider, in chain order.
type ProviderConfig struct {
	Name          string        `yaml:"name"`
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	RPM           int           `yaml:"rpm"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
}

// QueueConfig contains admission-control settings.
type QueueConfig struct {
	Strategy         string        `yaml:"strategy"` // fifo, priority
	Timeout          time.Duration `yaml:"timeout"`
	Adaptive         bool          `yaml:"adaptive"`
	AdaptiveInterval time.Duration `yaml:"adaptive_interval"`
}

// RoutingConfig contains fallback-chain settings.
type RoutingConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	DisableWindow time.Duration `yaml:"disable_window"`
}

// CacheConfig contains result-cache settings.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// BatchConfig contains orchestrator settings.
type BatchConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	MaxBatchSize int           `yaml:"max_batch_size"`
	Pause        time.Duration `yaml:"pause"`
	MaxKeyLength int           `yaml:"max_key_length"`
	SourceLang   string        `yaml:"source_lang"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the configuration defaults applied before a file
// is parsed over them.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			Strategy:         "fifo",
			Timeout:          20 * time.Second,
			AdaptiveInterval: 5 * time.Minute,
		},
		Routing: RoutingConfig{
			MaxRetries:    1,
			DisableWindow: 5 * time.Minute,
		},
		Cache: CacheConfig{
			MaxEntries: 2000,
			TTL:        time.Hour,
		},
		Batch: BatchConfig{
			Concurrency:  5,
			MaxBatchSize: 10,
			Pause:        50 * time.Millisecond,
			MaxKeyLength: 256,
			SourceLang:   "en",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file. Environment
// variables in the form ${VAR_NAME} are expanded before parsing so API
// keys can stay out of the file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider[%d] %q: duplicate provider name", i, p.Name)
		}
		seen[p.Name] = true
		if p.BaseURL == "" {
			return fmt.Errorf("provider[%d] %q: base_url is required", i, p.Name)
		}
		if p.RPM <= 0 {
			return fmt.Errorf("provider[%d] %q: rpm must be positive", i, p.Name)
		}
		if p.MaxConcurrent <= 0 {
			return fmt.Errorf("provider[%d] %q: max_concurrent must be positive", i, p.Name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider[%d] %q: timeout cannot be negative", i, p.Name)
		}
	}

	switch c.Queue.Strategy {
	case "fifo", "priority":
	default:
		return fmt.Errorf("queue.strategy must be fifo or priority, got %q", c.Queue.Strategy)
	}
	if c.Queue.Timeout <= 0 {
		return fmt.Errorf("queue.timeout must be positive")
	}

	if c.Routing.MaxRetries < 0 {
		return fmt.Errorf("routing.max_retries cannot be negative")
	}
	if c.Routing.DisableWindow <= 0 {
		return fmt.Errorf("routing.disable_window must be positive")
	}

	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be positive")
	}
	if c.Batch.MaxBatchSize <= 0 {
		return fmt.Errorf("batch.max_batch_size must be positive")
	}
	if c.Batch.MaxKeyLength <= 0 {
		return fmt.Errorf("batch.max_key_length must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}

	return nil
}
