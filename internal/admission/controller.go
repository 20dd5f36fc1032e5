// Package admission implements per-provider admission control: one
// logical queue and request-window budget per backend provider, with
// timeout eviction, priority ordering, and adaptive throttling.
package admission

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	lmerrors "github.com/lingomux/lingomux/pkg/errors"
	"github.com/lingomux/lingomux/pkg/provider"
	"github.com/lingomux/lingomux/pkg/types"
)

// Strategy selects the queue ordering discipline.
type Strategy string

const (
	// StrategyFIFO dispatches strictly in insertion order.
	StrategyFIFO Strategy = "fifo"
	// StrategyPriority dispatches higher priorities first, FIFO within a
	// priority tier.
	StrategyPriority Strategy = "priority"
)

// windowLength is the fixed request-budget window.
const windowLength = time.Minute

// Config holds controller construction parameters.
type Config struct {
	// Strategy is the queue ordering discipline (default FIFO).
	Strategy Strategy
	// QueueTimeout evicts items still queued after this long
	// (default 20s).
	QueueTimeout time.Duration
	// Adaptive enables the throttle tuner control loop.
	Adaptive bool
	// AdaptiveInterval is the tuner cadence (default 5 minutes).
	AdaptiveInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyFIFO
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = 20 * time.Second
	}
	if c.AdaptiveInterval <= 0 {
		c.AdaptiveInterval = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller enforces per-provider rate and concurrency limits. Tasks are
// enqueued with a priority and dispatched by per-provider drain passes;
// the controller never retries failed tasks, that is the router's job.
type Controller struct {
	mu     sync.RWMutex
	queues map[string]*providerQueue
	closed bool

	strategy     Strategy
	queueTimeout time.Duration

	logger *slog.Logger
	now    func() time.Time

	tunerStop chan struct{}
	tunerDone chan struct{}
}

// ProviderLimit binds a provider name to its admission limits.
type ProviderLimit struct {
	Name   string
	Limits provider.Limits
}

// New creates a controller for the given providers. Limits are validated
// here so the dispatch path never has to.
func New(limits []ProviderLimit, cfg Config) (*Controller, error) {
	cfg.withDefaults()
	if len(limits) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	c := &Controller{
		queues:       make(map[string]*providerQueue, len(limits)),
		strategy:     cfg.Strategy,
		queueTimeout: cfg.QueueTimeout,
		logger:       cfg.Logger,
		now:          time.Now,
	}

	for _, pl := range limits {
		if pl.Name == "" {
			return nil, fmt.Errorf("provider name must not be empty")
		}
		if err := pl.Limits.Validate(); err != nil {
			return nil, fmt.Errorf("provider %s: %w", pl.Name, err)
		}
		if _, dup := c.queues[pl.Name]; dup {
			return nil, fmt.Errorf("provider %s configured twice", pl.Name)
		}
		c.queues[pl.Name] = &providerQueue{
			name:          pl.Name,
			rpm:           pl.Limits.RPM,
			maxConcurrent: pl.Limits.MaxConcurrent,
			windowStart:   c.now(),
		}
	}

	if cfg.Adaptive {
		c.tunerStop = make(chan struct{})
		c.tunerDone = make(chan struct{})
		go c.runTuner(cfg.AdaptiveInterval)
	}

	return c, nil
}

// Enqueue inserts a task into the named provider's queue and returns a
// handle that resolves when the task eventually runs, times out in the
// queue, or is rejected at shutdown.
func (c *Controller) Enqueue(providerName string, task Task, priority int) (*Handle, error) {
	c.mu.RLock()
	q, ok := c.queues[providerName]
	closed := c.closed
	c.mu.RUnlock()

	if !ok {
		return nil, &lmerrors.UnknownProviderError{Name: providerName}
	}

	it := &queueItem{
		handle:     &Handle{id: uuid.New(), done: make(chan taskOutcome, 1)},
		task:       task,
		priority:   priority,
		enqueuedAt: c.now(),
	}

	if closed {
		it.resolve("", &lmerrors.ShutdownError{Provider: providerName})
		return it.handle, nil
	}

	q.mu.Lock()
	q.insertLocked(it, c.strategy)
	q.mu.Unlock()

	go c.drain(q)
	return it.handle, nil
}

// drain is one dispatch pass over a provider's queue. Passes are
// serialized by the queue mutex; a pass keeps dispatching until the
// provider runs out of queued work, concurrency slots, or window budget.
func (c *Controller) drain(q *providerQueue) {
	for {
		q.mu.Lock()

		if c.isClosed() {
			rejected := q.takeAllLocked()
			q.mu.Unlock()
			c.rejectShutdown(q, rejected)
			return
		}

		now := c.now()
		expired := q.evictExpiredLocked(now, c.queueTimeout)
		q.rollWindowLocked(now)

		if len(q.items) == 0 || q.inFlight >= q.maxConcurrent {
			q.mu.Unlock()
			c.rejectExpired(q, expired, now)
			return
		}

		if q.windowCount >= q.rpm {
			c.scheduleDrainLocked(q, now)
			q.mu.Unlock()
			c.rejectExpired(q, expired, now)
			return
		}

		it := q.popLocked()
		q.inFlight++
		q.windowCount++
		q.mu.Unlock()

		c.rejectExpired(q, expired, now)
		c.logger.Debug("dispatching queued request",
			"provider", q.name,
			"handle_id", it.handle.id,
			"queued", now.Sub(it.enqueuedAt),
		)
		go c.run(q, it)
	}
}

// run executes one dispatched task, records its sample, resolves the
// handle, and re-triggers the drain so completions free slots promptly.
func (c *Controller) run(q *providerQueue, it *queueItem) {
	start := time.Now()
	value, err := it.task()
	latencyMs := float64(time.Since(start).Milliseconds())

	q.mu.Lock()
	q.inFlight--
	q.ring.record(err == nil, latencyMs)
	q.mu.Unlock()

	it.resolve(value, err)
	c.drain(q)
}

// scheduleDrainLocked arms a one-shot timer for the remaining window time
// when the provider is throttled. At most one timer is armed per queue.
func (c *Controller) scheduleDrainLocked(q *providerQueue, now time.Time) {
	if q.pending {
		return
	}
	remaining := windowLength - now.Sub(q.windowStart)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	q.pending = true
	q.timer = time.AfterFunc(remaining, func() {
		q.mu.Lock()
		q.pending = false
		q.mu.Unlock()
		c.drain(q)
	})
}

// rejectExpired fails evicted items with a queue-timeout error, outside
// any lock. The log line precedes the resolve so a waiter never observes
// the error before its handle shows up in the log.
func (c *Controller) rejectExpired(q *providerQueue, expired []*queueItem, now time.Time) {
	for _, it := range expired {
		c.logger.Debug("evicted queued request past timeout",
			"provider", q.name,
			"handle_id", it.handle.id,
			"waited", now.Sub(it.enqueuedAt),
		)
		it.resolve("", &lmerrors.QueueTimeoutError{
			Provider: q.name,
			Waited:   now.Sub(it.enqueuedAt),
		})
	}
}

// rejectShutdown fails queued items with a shutdown error, outside any
// lock.
func (c *Controller) rejectShutdown(q *providerQueue, items []*queueItem) {
	for _, it := range items {
		c.logger.Debug("rejecting queued request at shutdown",
			"provider", q.name,
			"handle_id", it.handle.id,
		)
		it.resolve("", &lmerrors.ShutdownError{Provider: q.name})
	}
}

// UpdateConfig replaces a provider's limits at runtime and re-triggers
// its drain so a raised budget takes effect immediately.
func (c *Controller) UpdateConfig(providerName string, limits provider.Limits) error {
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("provider %s: %w", providerName, err)
	}

	c.mu.RLock()
	q, ok := c.queues[providerName]
	c.mu.RUnlock()
	if !ok {
		return &lmerrors.UnknownProviderError{Name: providerName}
	}

	q.mu.Lock()
	q.rpm = limits.RPM
	q.maxConcurrent = limits.MaxConcurrent
	q.mu.Unlock()

	go c.drain(q)
	return nil
}

// Status returns a per-provider snapshot of queue and window state.
func (c *Controller) Status() map[string]types.ProviderStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]types.ProviderStatus, len(c.queues))
	now := c.now()
	for name, q := range c.queues {
		q.mu.Lock()
		resetIn := windowLength - now.Sub(q.windowStart)
		if resetIn < 0 {
			resetIn = 0
		}
		errorRate, _, _ := q.ring.stats()
		out[name] = types.ProviderStatus{
			QueueSize:     len(q.items),
			InFlight:      q.inFlight,
			RequestsUsed:  q.windowCount,
			RequestsLimit: q.rpm,
			ResetIn:       resetIn,
			ErrorRate:     errorRate,
		}
		q.mu.Unlock()
	}
	return out
}

// Close rejects every queued item across all providers with a shutdown
// error and stops all timers so the process can exit. In-flight tasks
// are allowed to finish.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	queues := make([]*providerQueue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.mu.Unlock()

	if c.tunerStop != nil {
		close(c.tunerStop)
		<-c.tunerDone
	}

	for _, q := range queues {
		q.mu.Lock()
		if q.timer != nil {
			q.timer.Stop()
			q.pending = false
		}
		rejected := q.takeAllLocked()
		q.mu.Unlock()
		c.rejectShutdown(q, rejected)
	}

	c.logger.Info("admission controller closed")
	return nil
}

func (c *Controller) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
