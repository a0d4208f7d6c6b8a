package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the metric families for provider orchestration.
type Collector struct {
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	failoverTotal           *prometheus.CounterVec
	cacheHits               prometheus.Counter
	cacheMisses             prometheus.Counter
}

// NewCollector registers the metric families with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		providerRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total number of provider operation attempts",
			},
			[]string{"provider", "operation", "status"},
		),
		providerRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Provider operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		failoverTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failover_advances_total",
				Help:      "Times the orchestrator advanced past a failed provider",
			},
			[]string{"provider"},
		),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_hits_total",
			Help:      "Analysis cache hits",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_misses_total",
			Help:      "Analysis cache misses",
		}),
	}
}

// RecordProviderRequest records one provider attempt.
func (c *Collector) RecordProviderRequest(provider, operation, status string, duration time.Duration) {
	c.providerRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	c.providerRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordFailover records the orchestrator moving past a failed provider.
func (c *Collector) RecordFailover(provider string) {
	c.failoverTotal.WithLabelValues(provider).Inc()
}

// RecordCacheHit records an analysis cache hit.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss records an analysis cache miss.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }
