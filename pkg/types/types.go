// Package types defines the shared value types exchanged between the
// lingomux client, the batch orchestrator, and external collaborators.
package types

import (
	"context"
	"time"
)

// Category is the result of classifying a piece of source text.
// It is used as a cache-key component and as a routing/prompt hint.
type Category struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Categorizer classifies raw text. Implementations may call out to a
// remote model; the orchestrator invokes it at most once per distinct
// text before dispatch and memoizes the result.
type Categorizer interface {
	Categorize(ctx context.Context, text string) (Category, error)
}

// PostProcessor validates and optionally repairs a candidate result
// before it is cached. It is invoked after every successful dispatch.
type PostProcessor interface {
	ValidateAndFix(ctx context.Context, source, candidate string) (fixed string, modified bool)
}

// WorkItem is one unit of translation work submitted to the orchestrator.
// Items sharing a TargetLang are grouped into the same batches.
type WorkItem struct {
	// Key is the caller's identifier for the item (for example a message
	// key). It is echoed back unchanged on the corresponding Outcome.
	Key        string
	Text       string
	SourceLang string
	TargetLang string
}

// Outcome is the per-item result of batch processing. A failed item
// carries Err and never aborts its siblings.
type Outcome struct {
	Key       string
	Value     string
	Err       error
	FromCache bool
	Provider  string
	Category  string
}

// ProviderStatus is a point-in-time snapshot of one provider's admission
// and health state.
type ProviderStatus struct {
	QueueSize     int           `json:"queue_size"`
	InFlight      int           `json:"in_flight"`
	RequestsUsed  int           `json:"requests_used"`
	RequestsLimit int           `json:"requests_limit"`
	ResetIn       time.Duration `json:"reset_in"`
	ErrorRate     float64       `json:"error_rate"`
	Disabled      bool          `json:"disabled"`
}

// CacheStatus is a point-in-time snapshot of the result cache.
type CacheStatus struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

// Status is the full observability snapshot exposed by the client.
type Status struct {
	Providers map[string]ProviderStatus `json:"providers"`
	Cache     CacheStatus               `json:"cache"`
}
