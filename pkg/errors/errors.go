// Package errors defines the error taxonomy for lingomux dispatch
// operations. Provider failures are mapped to a small set of classes so
// the router can decide between retrying the next provider and aborting.
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Class identifies the failure class of a provider error.
type Class string

const (
	ClassRateLimited Class = "rate_limited"
	ClassServer      Class = "server_error"
	ClassNetwork     Class = "network_error"
	ClassTimeout     Class = "timeout_error"
	ClassAuth        Class = "authentication_error"
	ClassInvalid     Class = "invalid_request_error"
	ClassQuota       Class = "quota_exhausted_error"
	ClassUnknown     Class = "unknown_error"
)

// ProviderError represents a failed remote call. Provider is the internal
// provider name and is deliberately excluded from the Error string so raw
// identifiers never leak into caller-visible messages.
type ProviderError struct {
	Class      Class
	Message    string
	HTTPStatus int
	Provider   string
	Retryable  bool
}

// Error implements the error interface. It omits the provider name; use
// Internal for the operator-facing view.
func (e *ProviderError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("[%s] %s (status=%d)", e.Class, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Internal returns the full view including the provider name, intended
// for redacted structured logs only.
func (e *ProviderError) Internal() string {
	return fmt.Sprintf("provider=%s %s", e.Provider, e.Error())
}

// NewRateLimitError creates a retryable rate-limit error (429).
func NewRateLimitError(provider, message string) *ProviderError {
	return &ProviderError{Class: ClassRateLimited, Message: message, HTTPStatus: 429, Provider: provider, Retryable: true}
}

// NewServerError creates a retryable remote server error (5xx).
func NewServerError(provider string, status int, message string) *ProviderError {
	return &ProviderError{Class: ClassServer, Message: message, HTTPStatus: status, Provider: provider, Retryable: true}
}

// NewNetworkError creates a retryable transport-level error.
func NewNetworkError(provider, message string) *ProviderError {
	return &ProviderError{Class: ClassNetwork, Message: message, Provider: provider, Retryable: true}
}

// NewTimeoutError creates a retryable request timeout error (408).
func NewTimeoutError(provider, message string) *ProviderError {
	return &ProviderError{Class: ClassTimeout, Message: message, HTTPStatus: 408, Provider: provider, Retryable: true}
}

// NewAuthError creates a non-retryable authentication error (401).
func NewAuthError(provider, message string) *ProviderError {
	return &ProviderError{Class: ClassAuth, Message: message, HTTPStatus: 401, Provider: provider, Retryable: false}
}

// NewInvalidRequestError creates a non-retryable validation error (400).
func NewInvalidRequestError(provider, message string) *ProviderError {
	return &ProviderError{Class: ClassInvalid, Message: message, HTTPStatus: 400, Provider: provider, Retryable: false}
}

// NewQuotaError creates a non-retryable quota-exhausted error (402).
func NewQuotaError(provider, message string) *ProviderError {
	return &ProviderError{Class: ClassQuota, Message: message, HTTPStatus: 402, Provider: provider, Retryable: false}
}

// UnknownProviderError indicates a request referenced a provider name
// that was never configured. It is a configuration mistake and fatal to
// the call.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// QueueTimeoutError indicates an item waited in a provider queue longer
// than the configured queue timeout and was evicted before dispatch.
type QueueTimeoutError struct {
	Provider string
	Waited   time.Duration
}

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("request timed out in queue after %s", e.Waited.Round(time.Millisecond))
}

// ShutdownError indicates a queued item was rejected because the
// controller is shutting down.
type ShutdownError struct {
	Provider string
}

func (e *ShutdownError) Error() string {
	return "request cancelled due to shutdown"
}

// OversizedKeyError indicates an item key exceeded the configured maximum
// length. It is fatal to that single item only.
type OversizedKeyError struct {
	Length int
	Max    int
}

func (e *OversizedKeyError) Error() string {
	return fmt.Sprintf("item key length %d exceeds maximum %d", e.Length, e.Max)
}

// Attempt is one sanitized record of a failed fallback attempt. Label is
// positional ("provider_1", "provider_2", ...) so chain order can be
// correlated without exposing provider identifiers.
type Attempt struct {
	Label   string
	Class   Class
	Message string
}

// FallbackError is returned when every provider in the fallback chain has
// been exhausted. Its Error and Public views carry only sanitized,
// positionally-labelled attempt records; Internal additionally names the
// providers for operator logs.
type FallbackError struct {
	Attempts int
	Elapsed  time.Duration
	Records  []Attempt

	// ProviderNames aligns with Records and is only surfaced via Internal.
	ProviderNames []string
}

func (e *FallbackError) Error() string { return e.Public() }

// Public returns the caller-safe view of the error.
func (e *FallbackError) Public() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "all providers failed after %d attempts in %s", e.Attempts, e.Elapsed.Round(time.Millisecond))
	for _, rec := range e.Records {
		fmt.Fprintf(&sb, "; %s: [%s] %s", rec.Label, rec.Class, rec.Message)
	}
	return sb.String()
}

// Internal returns the operator view including provider names.
func (e *FallbackError) Internal() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "all providers failed after %d attempts in %s", e.Attempts, e.Elapsed.Round(time.Millisecond))
	for i, rec := range e.Records {
		name := rec.Label
		if i < len(e.ProviderNames) {
			name = e.ProviderNames[i]
		}
		fmt.Fprintf(&sb, "; %s: [%s] %s", name, rec.Class, rec.Message)
	}
	return sb.String()
}

// Retryable reports whether the router should try the next provider after
// this error. Authentication, validation, and quota failures abort the
// fallback loop; everything else (including unclassified errors) is worth
// another attempt.
func Retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	var se *ShutdownError
	if errors.As(err, &se) {
		return false
	}
	return true
}

// ClassOf returns the failure class of err, or ClassUnknown when the
// error is not a ProviderError.
func ClassOf(err error) Class {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	var qte *QueueTimeoutError
	if errors.As(err, &qte) {
		return ClassTimeout
	}
	return ClassUnknown
}

const maxSanitizedLen = 160

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9\-_]{16,}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_.]+`),
	regexp.MustCompile(`(?i)authorization:\s*\S+`),
	regexp.MustCompile(`(?i)api[-_]?key[=:]\s*\S+`),
	regexp.MustCompile(`\b[a-f0-9]{32,}\b`),
}

// Sanitize truncates a message and strips anything resembling an API key
// or auth header so attempt records are safe to log and return.
func Sanitize(message string) string {
	for _, p := range secretPatterns {
		message = p.ReplaceAllString(message, "[redacted]")
	}
	if len(message) > maxSanitizedLen {
		message = message[:maxSanitizedLen] + "..."
	}
	return message
}
