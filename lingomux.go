// Package lingomux is a resilient multi-backend translation dispatch
// engine. It multiplexes translation and analysis work across remote
// providers with per-provider rate limiting and priority queueing, a
// health-aware fallback chain, a bounded result cache with
// stale-while-revalidate, and a batch orchestrator with bounded
// concurrency.
//
// Basic usage:
//
//	backend, err := provider.NewHTTP(provider.HTTPConfig{
//	    Name:    "primary",
//	    BaseURL: "https://api.primary.example",
//	    APIKey:  os.Getenv("PRIMARY_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := lingomux.New(
//	    lingomux.WithProvider(backend, lingomux.Limits{RPM: 120, MaxConcurrent: 4}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	out := client.Translate(ctx, lingomux.WorkItem{
//	    Key:        "greeting",
//	    Text:       "Hello, world",
//	    TargetLang: "de",
//	})
package lingomux

import (
	"github.com/lingomux/lingomux/pkg/errors"
	"github.com/lingomux/lingomux/pkg/provider"
	"github.com/lingomux/lingomux/pkg/types"
)

// Version is the current version of lingomux.
const Version = "1.0.0"

// Re-export the core work types so callers can use lingomux.WorkItem
// instead of types.WorkItem.
type (
	// WorkItem is one unit of translation work.
	WorkItem = types.WorkItem

	// Outcome is the per-item result of processing.
	Outcome = types.Outcome

	// Category is the result of classifying source text.
	Category = types.Category

	// Categorizer classifies raw text before dispatch.
	Categorizer = types.Categorizer

	// PostProcessor validates and repairs results before caching.
	PostProcessor = types.PostProcessor

	// Status is the full observability snapshot.
	Status = types.Status

	// ProviderStatus is the per-provider part of the snapshot.
	ProviderStatus = types.ProviderStatus

	// CacheStatus is the cache part of the snapshot.
	CacheStatus = types.CacheStatus
)

// Re-export provider types.
type (
	// Provider is the backend adapter interface.
	Provider = provider.Provider

	// Request is the payload handed to a provider.
	Request = provider.Request

	// Limits are a provider's admission limits.
	Limits = provider.Limits
)

// Re-export error types.
type (
	// ProviderError represents a failed remote call.
	ProviderError = errors.ProviderError

	// FallbackError is returned when every provider is exhausted.
	FallbackError = errors.FallbackError

	// QueueTimeoutError indicates an item timed out while queued.
	QueueTimeoutError = errors.QueueTimeoutError

	// OversizedKeyError indicates an item key exceeded the maximum length.
	OversizedKeyError = errors.OversizedKeyError
)

// Re-export error classes.
const (
	ClassRateLimited = errors.ClassRateLimited
	ClassServer      = errors.ClassServer
	ClassNetwork     = errors.ClassNetwork
	ClassTimeout     = errors.ClassTimeout
	ClassAuth        = errors.ClassAuth
	ClassInvalid     = errors.ClassInvalid
	ClassQuota       = errors.ClassQuota
	ClassUnknown     = errors.ClassUnknown
)

// Re-export error factory functions.
var (
	NewRateLimitError      = errors.NewRateLimitError
	NewServerError         = errors.NewServerError
	NewNetworkError        = errors.NewNetworkError
	NewTimeoutError        = errors.NewTimeoutError
	NewAuthError           = errors.NewAuthError
	NewInvalidRequestError = errors.NewInvalidRequestError
	NewQuotaError          = errors.NewQuotaError
)
