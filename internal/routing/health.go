package routing

import (
	"time"
)

// health tracks one provider's success/failure bookkeeping. It is owned
// by the router and only mutated under the router's lock.
type health struct {
	successCount        int
	failureCount        int
	consecutiveFailures int
	avgResponseMs       float64
	lastError           string
	disabledUntil       time.Time
}

// samples is the number of recorded attempts.
func (h *health) samples() int {
	return h.successCount + h.failureCount
}

// successRate is the fraction of successful attempts; 0 with no samples.
func (h *health) successRate() float64 {
	n := h.samples()
	if n == 0 {
		return 0
	}
	return float64(h.successCount) / float64(n)
}

// recordSuccess folds a successful attempt into the stats. The average
// response time is a weighted moving average so old latencies decay.
func (h *health) recordSuccess(latencyMs float64) {
	h.successCount++
	h.consecutiveFailures = 0
	if h.avgResponseMs == 0 {
		h.avgResponseMs = latencyMs
	} else {
		h.avgResponseMs = h.avgResponseMs*0.9 + latencyMs*0.1
	}
}

// recordFailure folds a failed attempt into the stats and returns the new
// consecutive-failure count.
func (h *health) recordFailure(sanitizedMsg string) int {
	h.failureCount++
	h.consecutiveFailures++
	h.lastError = sanitizedMsg
	return h.consecutiveFailures
}

// disabled reports whether the provider is excluded from rotation at now.
func (h *health) disabled(now time.Time) bool {
	return now.Before(h.disabledUntil)
}

// Scoring weights for re-ranking. The response-time penalty saturates at
// 30% and the consecutive-failure penalty at 50%.
const (
	latencyPenaltyScaleMs = 5000.0
	latencyPenaltyCap     = 0.3
	failurePenaltyPerFail = 0.1
	failurePenaltyCap     = 0.5
)

// score combines success rate, a response-time penalty, and a
// consecutive-failure penalty. Higher is better.
func (h *health) score() float64 {
	latencyPenalty := h.avgResponseMs / latencyPenaltyScaleMs
	if latencyPenalty > latencyPenaltyCap {
		latencyPenalty = latencyPenaltyCap
	}
	failurePenalty := float64(h.consecutiveFailures) * failurePenaltyPerFail
	if failurePenalty > failurePenaltyCap {
		failurePenalty = failurePenaltyCap
	}
	return h.successRate()*(1-latencyPenalty) - failurePenalty
}

// HealthSnapshot is the exported view of one provider's health.
type HealthSnapshot struct {
	SuccessCount        int
	FailureCount        int
	ConsecutiveFailures int
	AvgResponseMs       float64
	LastError           string
	DisabledUntil       time.Time
	Disabled            bool
}
