package admission

import "time"

// Adaptive throttle tuning thresholds. The tuner is a slow control loop
// that nudges a provider's budget based on its rolling error rate and
// latency, never per-request.
const (
	shrinkErrorRate  = 0.15
	growErrorRate    = 0.05
	growMaxLatencyMs = 2000

	concurrencyStep = 1
	rpmStep         = 5

	minConcurrency = 1
	minRPM         = 10
)

// runTuner drives the adaptive throttle loop until Close.
func (c *Controller) runTuner(interval time.Duration) {
	defer close(c.tunerDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tuneOnce()
		case <-c.tunerStop:
			return
		}
	}
}

// tuneOnce recomputes each provider's budget from its rolling window:
// high error rates shrink the budget, sustained healthy latency with a
// backlog grows it.
func (c *Controller) tuneOnce() {
	c.mu.RLock()
	queues := make([]*providerQueue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.mu.RUnlock()

	for _, q := range queues {
		q.mu.Lock()
		errorRate, avgLatencyMs, n := q.ring.stats()
		backlog := len(q.items)
		oldRPM, oldConcurrent := q.rpm, q.maxConcurrent

		switch {
		case n == 0:
			// No samples since the last pass; leave the budget alone.
		case errorRate > shrinkErrorRate:
			q.maxConcurrent = max(minConcurrency, q.maxConcurrent-concurrencyStep)
			q.rpm = max(minRPM, q.rpm-rpmStep)
		case errorRate < growErrorRate && avgLatencyMs < growMaxLatencyMs && backlog > 0:
			q.maxConcurrent += concurrencyStep
			q.rpm += rpmStep
		}

		changed := q.rpm != oldRPM || q.maxConcurrent != oldConcurrent
		newRPM, newConcurrent := q.rpm, q.maxConcurrent
		q.mu.Unlock()

		if changed {
			c.logger.Info("adaptive throttle adjusted provider budget",
				"provider", q.name,
				"error_rate", errorRate,
				"avg_latency_ms", avgLatencyMs,
				"rpm", newRPM,
				"max_concurrent", newConcurrent,
			)
			go c.drain(q)
		}
	}
}
