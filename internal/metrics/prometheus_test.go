package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lingomux/lingomux/pkg/types"
)

func testStatus() types.Status {
	return types.Status{
		Providers: map[string]types.ProviderStatus{
			"alpha": {
				QueueSize:     3,
				InFlight:      2,
				RequestsUsed:  10,
				RequestsLimit: 60,
				ResetIn:       30 * time.Second,
				ErrorRate:     0.25,
				Disabled:      true,
			},
		},
		Cache: types.CacheStatus{
			Size:     5,
			Capacity: 100,
			Hits:     40,
			Misses:   10,
			HitRate:  0.8,
		},
	}
}

func TestCollectorExposesSnapshot(t *testing.T) {
	c := NewCollector(testStatus)

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	expected := `
# HELP lingomux_provider_queue_size Number of items waiting in the provider's queue
# TYPE lingomux_provider_queue_size gauge
lingomux_provider_queue_size{provider="alpha"} 3
# HELP lingomux_provider_in_flight Number of requests currently executing against the provider
# TYPE lingomux_provider_in_flight gauge
lingomux_provider_in_flight{provider="alpha"} 2
# HELP lingomux_provider_window_requests_used Requests dispatched in the current rate window
# TYPE lingomux_provider_window_requests_used gauge
lingomux_provider_window_requests_used{provider="alpha"} 10
# HELP lingomux_provider_window_requests_limit Request budget of the current rate window
# TYPE lingomux_provider_window_requests_limit gauge
lingomux_provider_window_requests_limit{provider="alpha"} 60
# HELP lingomux_provider_window_reset_seconds Seconds until the provider's rate window resets
# TYPE lingomux_provider_window_reset_seconds gauge
lingomux_provider_window_reset_seconds{provider="alpha"} 30
# HELP lingomux_provider_error_rate Error rate over the provider's rolling sample window
# TYPE lingomux_provider_error_rate gauge
lingomux_provider_error_rate{provider="alpha"} 0.25
# HELP lingomux_provider_disabled Whether the provider is currently excluded from rotation (1) or eligible (0)
# TYPE lingomux_provider_disabled gauge
lingomux_provider_disabled{provider="alpha"} 1
# HELP lingomux_cache_entries Number of entries in the result cache
# TYPE lingomux_cache_entries gauge
lingomux_cache_entries 5
# HELP lingomux_cache_capacity Configured capacity of the result cache
# TYPE lingomux_cache_capacity gauge
lingomux_cache_capacity 100
# HELP lingomux_cache_hits_total Total cache hits
# TYPE lingomux_cache_hits_total counter
lingomux_cache_hits_total 40
# HELP lingomux_cache_misses_total Total cache misses
# TYPE lingomux_cache_misses_total counter
lingomux_cache_misses_total 10
# HELP lingomux_cache_hit_rate Lifetime cache hit rate
# TYPE lingomux_cache_hit_rate gauge
lingomux_cache_hit_rate 0.8
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metrics:\n%v", err)
	}
}

func TestCollectorReflectsFreshSnapshots(t *testing.T) {
	snap := testStatus()
	c := NewCollector(func() types.Status { return snap })

	if got := testutil.CollectAndCount(c); got != 12 {
		t.Fatalf("metric count = %d, want 12", got)
	}

	// A second provider appears on the next scrape without re-registering.
	snap.Providers["beta"] = types.ProviderStatus{RequestsLimit: 10}
	if got := testutil.CollectAndCount(c); got != 19 {
		t.Fatalf("metric count = %d, want 19 with two providers", got)
	}
}
