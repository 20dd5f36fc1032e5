package lingomux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lingomux/lingomux/internal/admission"
	"github.com/lingomux/lingomux/internal/batch"
	"github.com/lingomux/lingomux/internal/cache"
	"github.com/lingomux/lingomux/internal/metrics"
	"github.com/lingomux/lingomux/internal/observability"
	"github.com/lingomux/lingomux/internal/routing"
	lmerrors "github.com/lingomux/lingomux/pkg/errors"
	"github.com/lingomux/lingomux/pkg/provider"
	"github.com/lingomux/lingomux/pkg/types"
)

// Client is the main entry point for lingomux. It owns the admission
// controller, the fallback router, the result cache, and the batch
// orchestrator.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	providers    map[string]provider.Provider
	admission    *admission.Controller
	router       *routing.Router
	cache        *cache.Cache
	orchestrator *batch.Orchestrator

	logger *observability.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates a lingomux client from the given options. At least one
// provider is required; providers are tried in the order they were added
// until re-ranking reorders the chain.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	c := &Client{
		providers: make(map[string]provider.Provider, len(cfg.Providers)),
		logger:    observability.Wrap(cfg.Logger, observability.NewRedactor()),
	}

	limits := make([]admission.ProviderLimit, 0, len(cfg.Providers))
	chain := make([]provider.Provider, 0, len(cfg.Providers))
	for _, entry := range cfg.Providers {
		if entry.Provider == nil {
			return nil, fmt.Errorf("provider must not be nil")
		}
		name := entry.Provider.Name()
		if _, dup := c.providers[name]; dup {
			return nil, fmt.Errorf("provider %s configured twice", name)
		}
		c.providers[name] = entry.Provider
		chain = append(chain, entry.Provider)
		limits = append(limits, admission.ProviderLimit{Name: name, Limits: entry.Limits})
	}

	ctrl, err := admission.New(limits, admission.Config{
		Strategy:         cfg.QueueStrategy,
		QueueTimeout:     cfg.QueueTimeout,
		Adaptive:         cfg.Adaptive,
		AdaptiveInterval: cfg.AdaptiveInterval,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("admission controller: %w", err)
	}
	c.admission = ctrl

	router, err := routing.New(routing.Config{
		Providers:     chain,
		MaxRetries:    cfg.MaxRetries,
		DisableWindow: cfg.DisableWindow,
		Dispatcher:    ctrl,
		Logger:        cfg.Logger,
	})
	if err != nil {
		_ = ctrl.Close()
		return nil, fmt.Errorf("router: %w", err)
	}
	c.router = router

	if cfg.CacheEnabled {
		c.cache = cache.New(cache.Config{
			MaxEntries: cfg.CacheMaxEntries,
			TTL:        cfg.CacheTTL,
			Logger:     cfg.Logger,
		})
	}

	c.orchestrator = batch.New(batch.Config{
		Concurrency:     cfg.BatchConcurrency,
		MaxBatchSize:    cfg.MaxBatchSize,
		InterBatchPause: cfg.InterBatchPause,
		MaxKeyLength:    cfg.MaxKeyLength,
		SourceLang:      cfg.SourceLang,
		Router:          router,
		Cache:           c.cache,
		Categorizer:     cfg.Categorizer,
		PostProcessor:   cfg.PostProcessor,
		Logger:          cfg.Logger,
	})

	c.logger.Info("lingomux client initialized",
		"providers", len(chain),
		"queue_strategy", string(cfg.QueueStrategy),
		"cache_enabled", cfg.CacheEnabled,
	)
	return c, nil
}

// Translate processes a single work item at default priority. Failures
// are reported on the outcome, never panicked.
func (c *Client) Translate(ctx context.Context, item WorkItem) Outcome {
	return c.TranslateWithPriority(ctx, item, 0)
}

// TranslateWithPriority processes a single work item at the given
// priority. Higher priorities dispatch first under the priority queue
// strategy.
func (c *Client) TranslateWithPriority(ctx context.Context, item WorkItem, priority int) Outcome {
	return c.orchestrator.ProcessOne(ctx, item, priority)
}

// TranslateBatch processes many work items and returns one outcome per
// item, in input order. A failed item never aborts its siblings.
func (c *Client) TranslateBatch(ctx context.Context, items []WorkItem) []Outcome {
	return c.TranslateBatchWithPriority(ctx, items, 0)
}

// TranslateBatchWithPriority processes many work items at the given
// priority.
func (c *Client) TranslateBatchWithPriority(ctx context.Context, items []WorkItem, priority int) []Outcome {
	return c.orchestrator.ProcessMany(ctx, items, priority)
}

// Analyze runs an analysis prompt through the fallback chain, subject to
// the same admission control as translation work. The result is never
// cached.
func (c *Client) Analyze(ctx context.Context, prompt string) (string, error) {
	res, err := c.router.Execute(ctx, func(ctx context.Context, p provider.Provider) (string, error) {
		return p.Analyze(ctx, prompt)
	}, 0)
	if err != nil {
		c.logger.RedactedWarn("analysis failed", "error", err)
		return "", err
	}
	return res.Value, nil
}

// AnalyzeWith runs an analysis prompt against one named provider,
// bypassing the fallback chain but not admission control.
func (c *Client) AnalyzeWith(ctx context.Context, providerName, prompt string) (string, error) {
	p, ok := c.providers[providerName]
	if !ok {
		return "", &lmerrors.UnknownProviderError{Name: providerName}
	}

	handle, err := c.admission.Enqueue(providerName, func() (string, error) {
		return p.Analyze(ctx, prompt)
	}, 0)
	if err != nil {
		return "", err
	}
	return handle.Wait(ctx)
}

// UpdateProviderLimits replaces a provider's admission limits at runtime.
func (c *Client) UpdateProviderLimits(providerName string, limits Limits) error {
	return c.admission.UpdateConfig(providerName, limits)
}

// Status returns a point-in-time snapshot of every provider's queue,
// window, and health state plus cache statistics.
func (c *Client) Status() Status {
	providers := c.admission.Status()
	health := c.router.Health()
	for name, ps := range providers {
		if hs, ok := health[name]; ok {
			ps.Disabled = hs.Disabled
			providers[name] = ps
		}
	}

	var cacheStatus types.CacheStatus
	if c.cache != nil {
		cacheStatus = c.cache.Status()
	}
	return Status{Providers: providers, Cache: cacheStatus}
}

// ProviderChain returns the current fallback order, best first.
func (c *Client) ProviderChain() []string {
	return c.router.Chain()
}

// MetricsCollector returns a prometheus.Collector exposing the status
// snapshot; register it with your registry to scrape dispatch metrics.
func (c *Client) MetricsCollector() prometheus.Collector {
	return metrics.NewCollector(c.Status)
}

// Logger returns the client's logger for use by embedding applications.
func (c *Client) Logger() *slog.Logger {
	return c.logger.Logger
}

// Close rejects all queued work, stops background timers, and waits for
// in-flight cache refreshes. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.admission.Close()
		if c.cache != nil {
			if err := c.cache.Close(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
		if c.closeErr != nil {
			c.logger.RedactedError("lingomux client shutdown failed", "error", c.closeErr)
			return
		}
		c.logger.Info("lingomux client closed")
	})
	return c.closeErr
}
