package admission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is one deferred unit of work. It runs on the controller's dispatch
// path once the owning provider has both a concurrency slot and window
// budget available.
type Task func() (string, error)

// taskOutcome carries the terminal result of a queued task.
type taskOutcome struct {
	value string
	err   error
}

// Handle is the caller-visible future for an enqueued task.
type Handle struct {
	id   uuid.UUID
	done chan taskOutcome
}

// Wait blocks until the task completes, fails, or ctx is done.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case out := <-h.done:
		return out.value, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ID returns the handle's correlation identifier.
func (h *Handle) ID() uuid.UUID { return h.id }

// queueItem lives in a provider's queue from enqueue until dispatch,
// timeout eviction, or shutdown rejection.
type queueItem struct {
	handle     *Handle
	task       Task
	priority   int
	enqueuedAt time.Time
}

// resolve completes the item's handle. The done channel is buffered so
// resolution never blocks the dispatch path.
func (it *queueItem) resolve(value string, err error) {
	it.handle.done <- taskOutcome{value: value, err: err}
}

// windowSamples is the rolling per-provider success/latency window used
// for error-rate and latency statistics.
const windowSamples = 50

type sample struct {
	success   bool
	latencyMs float64
}

// sampleRing is a fixed-capacity ring of the most recent samples.
type sampleRing struct {
	samples [windowSamples]sample
	next    int
	filled  int
}

func (r *sampleRing) record(success bool, latencyMs float64) {
	r.samples[r.next] = sample{success: success, latencyMs: latencyMs}
	r.next = (r.next + 1) % windowSamples
	if r.filled < windowSamples {
		r.filled++
	}
}

// stats returns the error rate and average latency over the ring.
func (r *sampleRing) stats() (errorRate, avgLatencyMs float64, n int) {
	if r.filled == 0 {
		return 0, 0, 0
	}
	var failures int
	var totalMs float64
	for i := 0; i < r.filled; i++ {
		s := r.samples[i]
		if !s.success {
			failures++
		}
		totalMs += s.latencyMs
	}
	return float64(failures) / float64(r.filled), totalMs / float64(r.filled), r.filled
}

// providerQueue owns all mutable per-provider state. Every field is
// guarded by mu; drain passes for one provider are serialized by taking
// it, which replaces the re-entrancy flags a callback-driven design
// would need.
type providerQueue struct {
	mu   sync.Mutex
	name string

	rpm           int
	maxConcurrent int

	windowStart time.Time
	windowCount int
	inFlight    int

	items   []*queueItem
	ring    sampleRing
	timer   *time.Timer
	pending bool // a throttle timer is armed
}

// insertLocked places an item according to the queue strategy: priority
// queues insert before the first item with strictly lower priority (FIFO
// within a tier), FIFO queues append.
func (q *providerQueue) insertLocked(it *queueItem, strategy Strategy) {
	if strategy != StrategyPriority {
		q.items = append(q.items, it)
		return
	}
	pos := len(q.items)
	for i, existing := range q.items {
		if existing.priority < it.priority {
			pos = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = it
}

// popLocked removes and returns the head item.
func (q *providerQueue) popLocked() *queueItem {
	it := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return it
}

// evictExpiredLocked sweeps out every item older than timeout in one
// pass. The caller rejects the returned items outside the lock.
func (q *providerQueue) evictExpiredLocked(now time.Time, timeout time.Duration) []*queueItem {
	var expired []*queueItem
	kept := q.items[:0]
	for _, it := range q.items {
		if now.Sub(it.enqueuedAt) >= timeout {
			expired = append(expired, it)
		} else {
			kept = append(kept, it)
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	return expired
}

// takeAllLocked drains the whole queue, used at shutdown.
func (q *providerQueue) takeAllLocked() []*queueItem {
	items := q.items
	q.items = nil
	return items
}

// rollWindowLocked resets the request window once a full minute has
// elapsed since it started.
func (q *providerQueue) rollWindowLocked(now time.Time) {
	if now.Sub(q.windowStart) >= windowLength {
		q.windowStart = now
		q.windowCount = 0
	}
}
