package metrics

import "github.com/prometheus/client_golang/prometheus"

// Core Prometheus metrics.
var (
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses per tier",
		},
		[]string{"tier", "result"}, // tier: "remote"/"local", result: "hit"/"miss"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "search_duration_seconds",
			Help:      "Similarity search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"strategy"}, // "sequential", "parallel", "ann"
	)

	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "request_queue_depth",
			Help:      "Number of tasks waiting in the request queue",
		},
	)

	QueueActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "request_queue_active",
			Help:      "Number of tasks currently executing",
		},
	)

	RateLimitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "rate_limit_total",
			Help:      "Rate limiter decisions",
		},
		[]string{"outcome"}, // "allowed", "rejected", "fallback"
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "generation_requests_total",
			Help:      "Total generation backend requests",
		},
		[]string{"status"}, // "success", "error", "rejected"
	)
)

var coreMetricsRegistered bool

// RegisterCoreMetrics registers Prometheus core metrics. Must be called once from main.
func RegisterCoreMetrics() {
	if coreMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueActive)
	prometheus.MustRegister(RateLimitTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	coreMetricsRegistered = true
}
