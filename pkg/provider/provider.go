// Package provider defines the public interface for translation backend
// adapters. Each remote API implements this interface; the dispatch core
// treats every provider uniformly and never sees provider internals.
package provider

import (
	"context"
	"fmt"
)

// Request is one unit of translation work sent to a backend.
type Request struct {
	Text       string
	SourceLang string
	TargetLang string

	// Category is an optional classification hint for the backend prompt.
	Category string
}

// Provider is the interface all backend adapters implement.
type Provider interface {
	// Name returns the configured provider identifier.
	Name() string

	// Execute performs one translation call.
	Execute(ctx context.Context, req *Request) (string, error)

	// Analyze performs a free-form analysis call (for example text
	// categorization). Providers that do not support analysis should
	// return an invalid-request error.
	Analyze(ctx context.Context, prompt string) (string, error)
}

// Limits holds the per-provider admission constraints.
type Limits struct {
	// RPM is the maximum number of requests started per rolling minute.
	RPM int
	// MaxConcurrent is the maximum number of in-flight requests.
	MaxConcurrent int
}

// DefaultLimits returns the limits applied when a provider is registered
// without explicit configuration.
func DefaultLimits() Limits {
	return Limits{RPM: 60, MaxConcurrent: 3}
}

// Validate checks the limits at construction time so per-call validation
// is unnecessary.
func (l Limits) Validate() error {
	if l.RPM < 1 {
		return fmt.Errorf("rpm must be >= 1, got %d", l.RPM)
	}
	if l.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1, got %d", l.MaxConcurrent)
	}
	return nil
}
