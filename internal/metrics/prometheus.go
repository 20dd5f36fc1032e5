// Package metrics exposes the dispatch status snapshot as Prometheus
// metrics. The collector is pull-based: it reads a fresh snapshot on
// every scrape instead of keeping counters of its own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lingomux/lingomux/pkg/types"
)

const namespace = "lingomux"

// StatusFunc produces a point-in-time status snapshot.
type StatusFunc func() types.Status

// Collector implements prometheus.Collector over a StatusFunc.
type Collector struct {
	status StatusFunc

	queueSize     *prometheus.Desc
	inFlight      *prometheus.Desc
	requestsUsed  *prometheus.Desc
	requestsLimit *prometheus.Desc
	windowResetIn *prometheus.Desc
	errorRate     *prometheus.Desc
	disabled      *prometheus.Desc

	cacheSize     *prometheus.Desc
	cacheCapacity *prometheus.Desc
	cacheHits     *prometheus.Desc
	cacheMisses   *prometheus.Desc
	cacheHitRate  *prometheus.Desc
}

// NewCollector creates a collector that reads snapshots from status.
func NewCollector(status StatusFunc) *Collector {
	providerLabels := []string{"provider"}
	return &Collector{
		status: status,

		queueSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "queue_size"),
			"Number of items waiting in the provider's queue",
			providerLabels, nil,
		),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "in_flight"),
			"Number of requests currently executing against the provider",
			providerLabels, nil,
		),
		requestsUsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "window_requests_used"),
			"Requests dispatched in the current rate window",
			providerLabels, nil,
		),
		requestsLimit: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "window_requests_limit"),
			"Request budget of the current rate window",
			providerLabels, nil,
		),
		windowResetIn: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "window_reset_seconds"),
			"Seconds until the provider's rate window resets",
			providerLabels, nil,
		),
		errorRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "error_rate"),
			"Error rate over the provider's rolling sample window",
			providerLabels, nil,
		),
		disabled: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "provider", "disabled"),
			"Whether the provider is currently excluded from rotation (1) or eligible (0)",
			providerLabels, nil,
		),

		cacheSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entries"),
			"Number of entries in the result cache",
			nil, nil,
		),
		cacheCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "capacity"),
			"Configured capacity of the result cache",
			nil, nil,
		),
		cacheHits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Total cache hits",
			nil, nil,
		),
		cacheMisses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Total cache misses",
			nil, nil,
		),
		cacheHitRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hit_rate"),
			"Lifetime cache hit rate",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueSize
	ch <- c.inFlight
	ch <- c.requestsUsed
	ch <- c.requestsLimit
	ch <- c.windowResetIn
	ch <- c.errorRate
	ch <- c.disabled
	ch <- c.cacheSize
	ch <- c.cacheCapacity
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.cacheHitRate
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.status()

	for name, ps := range snap.Providers {
		ch <- prometheus.MustNewConstMetric(c.queueSize, prometheus.GaugeValue, float64(ps.QueueSize), name)
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(ps.InFlight), name)
		ch <- prometheus.MustNewConstMetric(c.requestsUsed, prometheus.GaugeValue, float64(ps.RequestsUsed), name)
		ch <- prometheus.MustNewConstMetric(c.requestsLimit, prometheus.GaugeValue, float64(ps.RequestsLimit), name)
		ch <- prometheus.MustNewConstMetric(c.windowResetIn, prometheus.GaugeValue, ps.ResetIn.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, ps.ErrorRate, name)
		ch <- prometheus.MustNewConstMetric(c.disabled, prometheus.GaugeValue, boolGauge(ps.Disabled), name)
	}

	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(snap.Cache.Size))
	ch <- prometheus.MustNewConstMetric(c.cacheCapacity, prometheus.GaugeValue, float64(snap.Cache.Capacity))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(snap.Cache.Hits))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(snap.Cache.Misses))
	ch <- prometheus.MustNewConstMetric(c.cacheHitRate, prometheus.GaugeValue, snap.Cache.HitRate)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
