package lingomux

import (
	"log/slog"
	"time"

	"github.com/lingomux/lingomux/internal/admission"
)

// QueueStrategy selects how queued work is ordered per provider.
type QueueStrategy = admission.Strategy

const (
	// QueueFIFO dispatches strictly in insertion order.
	QueueFIFO = admission.StrategyFIFO
	// QueuePriority dispatches higher priorities first, FIFO within a
	// priority tier.
	QueuePriority = admission.StrategyPriority
)

// providerEntry binds a provider instance to its admission limits, in
// chain order.
type providerEntry struct {
	Provider Provider
	Limits   Limits
}

// ClientConfig holds all configuration for the lingomux client.
type ClientConfig struct {
	// Providers in fallback-chain order.
	Providers []providerEntry

	// Admission control
	QueueStrategy    QueueStrategy
	QueueTimeout     time.Duration
	Adaptive         bool
	AdaptiveInterval time.Duration

	// Routing
	MaxRetries    int
	DisableWindow time.Duration

	// Caching
	CacheEnabled    bool
	CacheMaxEntries int
	CacheTTL        time.Duration

	// Batching
	BatchConcurrency int
	MaxBatchSize     int
	InterBatchPause  time.Duration
	MaxKeyLength     int
	SourceLang       string

	// Hooks
	Categorizer   Categorizer
	PostProcessor PostProcessor

	// Logging
	Logger *slog.Logger
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

// defaultConfig returns sensible defaults.
func defaultConfig() *ClientConfig {
	return &ClientConfig{
		QueueStrategy:    QueueFIFO,
		QueueTimeout:     20 * time.Second,
		AdaptiveInterval: 5 * time.Minute,
		MaxRetries:       1,
		DisableWindow:    5 * time.Minute,
		CacheEnabled:     true,
		CacheMaxEntries:  2000,
		CacheTTL:         time.Hour,
		BatchConcurrency: 5,
		MaxBatchSize:     10,
		InterBatchPause:  50 * time.Millisecond,
		MaxKeyLength:     256,
		SourceLang:       "en",
		Logger:           slog.Default(),
	}
}

// WithProvider appends a provider to the fallback chain with its
// admission limits. Chain order is the initial preference order.
func WithProvider(p Provider, limits Limits) Option {
	return func(c *ClientConfig) {
		c.Providers = append(c.Providers, providerEntry{Provider: p, Limits: limits})
	}
}

// WithQueueStrategy sets the per-provider queue ordering discipline.
func WithQueueStrategy(s QueueStrategy) Option {
	return func(c *ClientConfig) {
		c.QueueStrategy = s
	}
}

// WithQueueTimeout sets how long an item may wait in a provider queue
// before it is rejected with a QueueTimeoutError.
func WithQueueTimeout(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.QueueTimeout = d
	}
}

// WithAdaptiveThrottling enables the control loop that shrinks a
// provider's budget under sustained errors and grows it when the
// provider is healthy with a backlog.
func WithAdaptiveThrottling(enabled bool) Option {
	return func(c *ClientConfig) {
		c.Adaptive = enabled
	}
}

// WithAdaptiveInterval sets the adaptive tuner cadence.
func WithAdaptiveInterval(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.AdaptiveInterval = d
	}
}

// WithMaxRetries sets how many extra passes over the provider chain a
// routed call may take after the first.
func WithMaxRetries(n int) Option {
	return func(c *ClientConfig) {
		c.MaxRetries = n
	}
}

// WithDisableWindow sets how long a provider stays out of rotation after
// repeated consecutive failures.
func WithDisableWindow(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.DisableWindow = d
	}
}

// WithCache configures the result cache bounds.
func WithCache(maxEntries int, ttl time.Duration) Option {
	return func(c *ClientConfig) {
		c.CacheEnabled = true
		c.CacheMaxEntries = maxEntries
		c.CacheTTL = ttl
	}
}

// WithoutCache disables result caching entirely.
func WithoutCache() Option {
	return func(c *ClientConfig) {
		c.CacheEnabled = false
	}
}

// WithBatch configures the orchestrator's batching behavior.
func WithBatch(concurrency, maxBatchSize int, pause time.Duration) Option {
	return func(c *ClientConfig) {
		c.BatchConcurrency = concurrency
		c.MaxBatchSize = maxBatchSize
		c.InterBatchPause = pause
	}
}

// WithMaxKeyLength sets the longest accepted item key.
func WithMaxKeyLength(n int) Option {
	return func(c *ClientConfig) {
		c.MaxKeyLength = n
	}
}

// WithSourceLang sets the default source language for items that leave
// theirs empty.
func WithSourceLang(lang string) Option {
	return func(c *ClientConfig) {
		c.SourceLang = lang
	}
}

// WithCategorizer sets the classifier invoked once per distinct text
// before dispatch.
func WithCategorizer(cat Categorizer) Option {
	return func(c *ClientConfig) {
		c.Categorizer = cat
	}
}

// WithPostProcessor sets the quality hook applied to successful results
// before caching.
func WithPostProcessor(pp PostProcessor) Option {
	return func(c *ClientConfig) {
		c.PostProcessor = pp
	}
}

// WithLogger sets the structured logger used by all subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}
