package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "aether_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	ProviderSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_provider_selections_total",
			Help: "Providers chosen by the scorer, per query type",
		},
		[]string{"provider", "query_type"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_provider_failures_total",
			Help: "Failed provider calls",
		},
		[]string{"provider"},
	)

	ProviderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_provider_fallbacks_total",
			Help: "Retries against the default provider after a failed call",
		},
		[]string{"from", "to"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aether_provider_call_duration_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_cache_lookups_total",
			Help: "Cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	Apologies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aether_apology_responses_total",
			Help: "Chat requests answered with the apology text after every provider failed",
		},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aether_jobs_processed_total",
			Help: "Background jobs processed by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

// CacheResult records a cache hit or miss.
func CacheResult(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(namespace, result).Inc()
}
