// Package routing implements the health-aware fallback router: it walks
// a ranked provider chain, retries retryable failures on the next
// provider, disables providers that fail repeatedly, and periodically
// re-ranks the chain from observed health.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lmerrors "github.com/lingomux/lingomux/pkg/errors"
	"github.com/lingomux/lingomux/pkg/provider"

	"github.com/lingomux/lingomux/internal/admission"
)

const (
	// disableThreshold is the consecutive-failure count that takes a
	// provider out of rotation.
	disableThreshold = 3
	// defaultDisableWindow is how long a tripped provider stays out.
	defaultDisableWindow = 5 * time.Minute

	// rerankInterval is the completed-operation cadence for re-ranking.
	rerankInterval = 10
	// rerankMinSamples gates re-ranking until every provider has enough
	// data to score meaningfully.
	rerankMinSamples = 3
)

// Dispatcher admits a task into a provider's queue. Satisfied by
// *admission.Controller.
type Dispatcher interface {
	Enqueue(providerName string, task admission.Task, priority int) (*admission.Handle, error)
}

// Operation is the unit of work the router executes against a provider.
type Operation func(ctx context.Context, p provider.Provider) (string, error)

// Result carries a successful routed operation.
type Result struct {
	Value    string
	Provider string
	Attempts int
}

// Config holds router construction parameters.
type Config struct {
	// Providers is the initial chain, in preference order.
	Providers []provider.Provider
	// MaxRetries is the number of extra passes over the chain after the
	// first (default 0: each available provider is tried once).
	MaxRetries int
	// DisableWindow overrides how long a tripped provider is excluded.
	DisableWindow time.Duration

	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// Router owns the fallback chain. All chain, cursor, and health state is
// guarded by mu; dispatched work itself runs outside the lock.
type Router struct {
	mu        sync.Mutex
	chain     []provider.Provider
	cursor    int
	health    map[string]*health
	completed int

	maxRetries    int
	disableWindow time.Duration

	dispatch Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a router over the given provider chain.
func New(cfg Config) (*Router, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DisableWindow <= 0 {
		cfg.DisableWindow = defaultDisableWindow
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	r := &Router{
		chain:         append([]provider.Provider(nil), cfg.Providers...),
		health:        make(map[string]*health, len(cfg.Providers)),
		maxRetries:    cfg.MaxRetries,
		disableWindow: cfg.DisableWindow,
		dispatch:      cfg.Dispatcher,
		logger:        cfg.Logger,
		now:           time.Now,
	}
	for _, p := range r.chain {
		if _, dup := r.health[p.Name()]; dup {
			return nil, fmt.Errorf("provider %s configured twice", p.Name())
		}
		r.health[p.Name()] = &health{}
	}
	return r, nil
}

// Execute runs op against the chain, falling back across providers on
// retryable failures. It returns the first success, the original error
// for a non-retryable failure, or a FallbackError once every candidate
// is exhausted.
func (r *Router) Execute(ctx context.Context, op Operation, priority int) (Result, error) {
	start := r.now()
	avail := r.snapshot()
	maxAttempts := len(avail.providers) * (r.maxRetries + 1)

	var (
		records []lmerrors.Attempt
		names   []string
	)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		p := avail.pick(attempt)
		attemptStart := r.now()
		value, err := r.execute(ctx, p, op, priority)
		if err == nil {
			r.recordSuccess(p.Name(), attemptStart)
			return Result{Value: value, Provider: p.Name(), Attempts: attempt + 1}, nil
		}

		records = append(records, lmerrors.Attempt{
			Label:   fmt.Sprintf("provider_%d", attempt+1),
			Class:   lmerrors.ClassOf(err),
			Message: lmerrors.Sanitize(messageOf(err)),
		})
		names = append(names, p.Name())
		r.recordFailure(p.Name(), err)

		if !lmerrors.Retryable(err) {
			r.finishOperation()
			return Result{}, err
		}
	}

	r.finishOperation()
	return Result{}, &lmerrors.FallbackError{
		Attempts:      len(records),
		Elapsed:       r.now().Sub(start),
		Records:       records,
		ProviderNames: names,
	}
}

// candidates is an immutable per-call view of the available chain plus
// the rotation offset captured at snapshot time.
type candidates struct {
	providers []provider.Provider
	offset    int
}

func (c candidates) pick(attempt int) provider.Provider {
	return c.providers[(c.offset+attempt)%len(c.providers)]
}

// snapshot captures the providers eligible for this call. When every
// provider is disabled, the disable windows are cleared so the call can
// still probe the full chain rather than fail without trying.
func (r *Router) snapshot() candidates {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	avail := make([]provider.Provider, 0, len(r.chain))
	for _, p := range r.chain {
		if !r.health[p.Name()].disabled(now) {
			avail = append(avail, p)
		}
	}

	if len(avail) == 0 {
		r.logger.Warn("all providers disabled, reinstating full chain")
		for _, h := range r.health {
			h.disabledUntil = time.Time{}
		}
		avail = append(avail, r.chain...)
	}

	return candidates{providers: avail, offset: r.cursor}
}

// execute admits one attempt through the dispatcher and waits for it.
func (r *Router) execute(ctx context.Context, p provider.Provider, op Operation, priority int) (string, error) {
	handle, err := r.dispatch.Enqueue(p.Name(), func() (string, error) {
		return op(ctx, p)
	}, priority)
	if err != nil {
		return "", err
	}
	return handle.Wait(ctx)
}

// recordSuccess updates the provider's health and completes the
// operation. Latency is measured from the start of this provider's
// attempt, so queue wait counts against the provider that served the
// call but time spent on earlier failed attempts does not.
func (r *Router) recordSuccess(name string, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latencyMs := float64(r.now().Sub(start).Milliseconds())
	if latencyMs < 0 {
		latencyMs = 0
	}
	r.health[name].recordSuccess(latencyMs)
	r.finishOperationLocked()
}

// recordFailure updates the provider's health, advances the rotation
// cursor so the next call starts elsewhere, and trips the disable window
// after enough consecutive failures.
func (r *Router) recordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.health[name]
	consec := h.recordFailure(lmerrors.Sanitize(messageOf(err)))
	r.cursor = (r.cursor + 1) % len(r.chain)

	if consec >= disableThreshold && !h.disabled(r.now()) {
		h.disabledUntil = r.now().Add(r.disableWindow)
		r.logger.Warn("provider disabled after repeated failures",
			"provider", name,
			"consecutive_failures", consec,
			"disabled_until", h.disabledUntil,
		)
	}
}

func (r *Router) finishOperation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishOperationLocked()
}

// finishOperationLocked counts a completed routed operation and re-ranks
// the chain on the configured cadence.
func (r *Router) finishOperationLocked() {
	r.completed++
	if r.completed%rerankInterval == 0 {
		r.rerankLocked()
	}
}

// rerankLocked reorders the chain by health score, best first. The pass
// is skipped until every provider has enough samples, so a cold chain is
// never shuffled on noise.
func (r *Router) rerankLocked() {
	for _, p := range r.chain {
		if r.health[p.Name()].samples() < rerankMinSamples {
			return
		}
	}

	before := make([]string, len(r.chain))
	for i, p := range r.chain {
		before[i] = p.Name()
	}

	sort.SliceStable(r.chain, func(i, j int) bool {
		return r.health[r.chain[i].Name()].score() > r.health[r.chain[j].Name()].score()
	})
	// The rotation pointer restarts at the head so the next call begins
	// with the best-scored provider.
	r.cursor = 0

	after := make([]string, len(r.chain))
	changed := false
	for i, p := range r.chain {
		after[i] = p.Name()
		if after[i] != before[i] {
			changed = true
		}
	}
	if changed {
		r.logger.Info("provider chain re-ranked", "order", after)
	}
}

// messageOf extracts the bare failure message so attempt records don't
// repeat the class the error string already encodes.
func messageOf(err error) string {
	var pe *lmerrors.ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

// Health returns a per-provider snapshot of the router's bookkeeping.
func (r *Router) Health() map[string]HealthSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make(map[string]HealthSnapshot, len(r.health))
	for name, h := range r.health {
		out[name] = HealthSnapshot{
			SuccessCount:        h.successCount,
			FailureCount:        h.failureCount,
			ConsecutiveFailures: h.consecutiveFailures,
			AvgResponseMs:       h.avgResponseMs,
			LastError:           h.lastError,
			DisabledUntil:       h.disabledUntil,
			Disabled:            h.disabled(now),
		}
	}
	return out
}

// Chain returns the current provider order, best first.
func (r *Router) Chain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.chain))
	for i, p := range r.chain {
		out[i] = p.Name()
	}
	return out
}
