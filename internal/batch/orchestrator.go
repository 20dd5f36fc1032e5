// Package batch implements the orchestrator that turns a slice of work
// items into per-item outcomes: items are grouped by target language,
// chunked into batches, and run with bounded concurrency through the
// cache and the fallback router.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"

	lmerrors "github.com/lingomux/lingomux/pkg/errors"
	"github.com/lingomux/lingomux/pkg/provider"
	"github.com/lingomux/lingomux/pkg/types"

	"github.com/lingomux/lingomux/internal/cache"
	"github.com/lingomux/lingomux/internal/routing"
)

// Dispatcher routes one operation across the provider chain. Satisfied by
// *routing.Router.
type Dispatcher interface {
	Execute(ctx context.Context, op routing.Operation, priority int) (routing.Result, error)
}

// Config holds orchestrator construction parameters.
type Config struct {
	// Concurrency bounds in-flight items within a batch (default 5).
	Concurrency int
	// MaxBatchSize caps batch length; the effective batch size is
	// min(Concurrency, MaxBatchSize) (default 10).
	MaxBatchSize int
	// InterBatchPause is the pause between sequential batches
	// (default 50ms).
	InterBatchPause time.Duration
	// MaxKeyLength is the longest accepted item key (default 256).
	MaxKeyLength int
	// SourceLang is the default source language for items that leave
	// theirs empty.
	SourceLang string
	// CategoryTTL bounds how long a memoized category is reused
	// (default 10 minutes).
	CategoryTTL time.Duration

	Router        Dispatcher
	Cache         *cache.Cache
	Categorizer   types.Categorizer
	PostProcessor types.PostProcessor
	Logger        *slog.Logger
}

func (c *Config) withDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 10
	}
	if c.InterBatchPause <= 0 {
		c.InterBatchPause = 50 * time.Millisecond
	}
	if c.MaxKeyLength <= 0 {
		c.MaxKeyLength = 256
	}
	if c.CategoryTTL <= 0 {
		c.CategoryTTL = 10 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// cachedResult is the encoded form stored in the result cache.
type cachedResult struct {
	Value    string `json:"value"`
	Provider string `json:"provider"`
	Category string `json:"category"`
}

// Orchestrator fans work items out through the cache and router. It is
// safe for concurrent use; each ProcessMany call runs its own batches.
type Orchestrator struct {
	concurrency     int
	maxBatchSize    int
	interBatchPause time.Duration
	maxKeyLength    int
	sourceLang      string

	router        Dispatcher
	cache         *cache.Cache
	categorizer   types.Categorizer
	postProcessor types.PostProcessor
	categories    *gocache.Cache

	logger *slog.Logger
}

// New creates an orchestrator from cfg. Router is required; Cache,
// Categorizer, and PostProcessor are optional.
func New(cfg Config) *Orchestrator {
	cfg.withDefaults()
	return &Orchestrator{
		concurrency:     cfg.Concurrency,
		maxBatchSize:    cfg.MaxBatchSize,
		interBatchPause: cfg.InterBatchPause,
		maxKeyLength:    cfg.MaxKeyLength,
		sourceLang:      cfg.SourceLang,
		router:          cfg.Router,
		cache:           cfg.Cache,
		categorizer:     cfg.Categorizer,
		postProcessor:   cfg.PostProcessor,
		categories:      gocache.New(cfg.CategoryTTL, 2*cfg.CategoryTTL),
		logger:          cfg.Logger,
	}
}

// ProcessMany runs every item and returns one outcome per item, in input
// order. A failed item carries its error in the outcome and never aborts
// its siblings.
func (o *Orchestrator) ProcessMany(ctx context.Context, items []types.WorkItem, priority int) []types.Outcome {
	outcomes := make([]types.Outcome, len(items))

	// Group by target language so each backend sees its own traffic in
	// contiguous batches. Group order is sorted for determinism.
	groups := make(map[string][]int)
	for i, it := range items {
		groups[it.TargetLang] = append(groups[it.TargetLang], i)
	}
	langs := make([]string, 0, len(groups))
	for lang := range groups {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	batchSize := o.concurrency
	if o.maxBatchSize < batchSize {
		batchSize = o.maxBatchSize
	}

	sem := NewSemaphore(o.concurrency)
	first := true
	for _, lang := range langs {
		indexes := groups[lang]
		for start := 0; start < len(indexes); start += batchSize {
			end := start + batchSize
			if end > len(indexes) {
				end = len(indexes)
			}

			if !first {
				select {
				case <-time.After(o.interBatchPause):
				case <-ctx.Done():
				}
			}
			first = false

			var wg sync.WaitGroup
			for _, idx := range indexes[start:end] {
				idx := idx
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := sem.Acquire(ctx); err != nil {
						outcomes[idx] = types.Outcome{Key: items[idx].Key, Err: err}
						return
					}
					defer sem.Release()
					outcomes[idx] = o.processItem(ctx, items[idx], priority)
				}()
			}
			wg.Wait()
		}
	}
	return outcomes
}

// ProcessOne runs a single item. The key is validated before any work so
// oversized keys fail fast without touching the cache or backends.
func (o *Orchestrator) ProcessOne(ctx context.Context, item types.WorkItem, priority int) types.Outcome {
	if len(item.Key) > o.maxKeyLength {
		return types.Outcome{
			Key: item.Key,
			Err: &lmerrors.OversizedKeyError{Length: len(item.Key), Max: o.maxKeyLength},
		}
	}
	return o.processItem(ctx, item, priority)
}

// processItem is the shared per-item path: categorize, fingerprint,
// consult the cache, and dispatch on a miss.
func (o *Orchestrator) processItem(ctx context.Context, item types.WorkItem, priority int) types.Outcome {
	if item.SourceLang == "" {
		item.SourceLang = o.sourceLang
	}

	category := o.categorize(ctx, item.Text)
	key := cache.Fingerprint(item.Text, item.TargetLang, category)

	if o.cache != nil {
		raw, state := o.cache.Lookup(ctx, key, o.refreshFunc(item, category, key, priority))
		if state != cache.Miss {
			var cr cachedResult
			if err := json.Unmarshal(raw, &cr); err == nil {
				return types.Outcome{
					Key:       item.Key,
					Value:     cr.Value,
					FromCache: true,
					Provider:  cr.Provider,
					Category:  cr.Category,
				}
			}
			// An undecodable entry is treated as a miss and overwritten
			// below.
			o.logger.Warn("dropping undecodable cache entry", "key", key)
			o.cache.Delete(key)
		}
	}

	value, providerName, err := o.dispatch(ctx, item, category, priority)
	if err != nil {
		return types.Outcome{Key: item.Key, Err: err, Category: category}
	}

	if o.cache != nil {
		if raw, err := json.Marshal(cachedResult{Value: value, Provider: providerName, Category: category}); err == nil {
			o.cache.Set(key, raw)
		}
	}

	return types.Outcome{
		Key:      item.Key,
		Value:    value,
		Provider: providerName,
		Category: category,
	}
}

// dispatch routes one item through the fallback chain and applies the
// post-processing hook to a successful result.
func (o *Orchestrator) dispatch(ctx context.Context, item types.WorkItem, category string, priority int) (string, string, error) {
	res, err := o.router.Execute(ctx, func(ctx context.Context, p provider.Provider) (string, error) {
		return p.Execute(ctx, &provider.Request{
			Text:       item.Text,
			SourceLang: item.SourceLang,
			TargetLang: item.TargetLang,
			Category:   category,
		})
	}, priority)
	if err != nil {
		return "", "", err
	}

	value := res.Value
	if o.postProcessor != nil {
		if fixed, modified := o.postProcessor.ValidateAndFix(ctx, item.Text, value); modified {
			value = fixed
		}
	}
	return value, res.Provider, nil
}

// refreshFunc builds the background-refresh closure for a stale cache
// entry. The refreshed value goes through the same dispatch and
// post-processing path as a miss.
func (o *Orchestrator) refreshFunc(item types.WorkItem, category, key string, priority int) cache.RefreshFunc {
	return func(ctx context.Context) ([]byte, error) {
		value, providerName, err := o.dispatch(ctx, item, category, priority)
		if err != nil {
			return nil, err
		}
		return json.Marshal(cachedResult{Value: value, Provider: providerName, Category: category})
	}
}

// categorize classifies the item text, memoizing per distinct text so a
// batch full of duplicates costs one categorizer call. Classification
// failures degrade to an empty category rather than failing the item.
func (o *Orchestrator) categorize(ctx context.Context, text string) string {
	if o.categorizer == nil {
		return ""
	}

	memoKey := cache.Fingerprint(text, "", "categorize")
	if v, ok := o.categories.Get(memoKey); ok {
		return v.(string)
	}

	cat, err := o.categorizer.Categorize(ctx, text)
	if err != nil {
		o.logger.Warn("categorizer failed, continuing uncategorized", "error", err)
		return ""
	}
	o.categories.SetDefault(memoKey, cat.Name)
	return cat.Name
}
