// Package metrics provides Prometheus metrics export for the tutoring core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports tutoring metrics in Prometheus format.
// A nil exporter is valid; all record methods become no-ops.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Turn metrics
	turns          *prometheus.CounterVec
	turnLatency    *prometheus.HistogramVec
	sessionsActive prometheus.Gauge

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	tokensSaved prometheus.Counter

	// Provider metrics
	llmTokens       *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	providerErrors  *prometheus.CounterVec
	fallbackServed  *prometheus.CounterVec
	replayQueueSize prometheus.Gauge

	// Cost metrics
	costUSD    *prometheus.CounterVec
	budgetUsed prometheus.Gauge
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorsense",
			Subsystem: "session",
			Name:      "turns_total",
			Help:      "Total number of tutoring turns",
		},
		[]string{"module", "outcome"},
	)

	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutorsense",
			Subsystem: "session",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"module"},
	)

	e.sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tutorsense",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of active tutoring sessions",
		},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorsense",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of response cache hits",
		},
		[]string{"match"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorsense",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of response cache misses",
		},
		[]string{"module"},
	)

	e.tokensSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tutorsense",
			Subsystem: "cache",
			Name:      "tokens_saved_total",
			Help:      "Total provider tokens avoided via cache hits",
		},
	)

	e.llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorsense",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"tier", "token_type"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutorsense",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "LLM request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"tier"},
	)

	e.providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorsense",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total provider errors by classified kind",
		},
		[]string{"kind"},
	)

	e.fallbackServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorsense",
			Subsystem: "fallback",
			Name:      "served_total",
			Help:      "Total fallback content servings",
		},
		[]string{"module"},
	)

	e.replayQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tutorsense",
			Subsystem: "fallback",
			Name:      "replay_queue_size",
			Help:      "Requests waiting for replay after provider recovery",
		},
	)

	e.costUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorsense",
			Subsystem: "cost",
			Name:      "usd_total",
			Help:      "Accumulated provider cost in USD",
		},
		[]string{"tier"},
	)

	e.budgetUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tutorsense",
			Subsystem: "cost",
			Name:      "daily_budget_used_ratio",
			Help:      "Fraction of the daily budget consumed (0-1)",
		},
	)

	registry.MustRegister(
		e.turns,
		e.turnLatency,
		e.sessionsActive,
		e.cacheHits,
		e.cacheMisses,
		e.tokensSaved,
		e.llmTokens,
		e.llmLatency,
		e.providerErrors,
		e.fallbackServed,
		e.replayQueueSize,
		e.costUSD,
		e.budgetUsed,
	)

	return e
}

// RecordTurn records one completed tutoring turn.
func (e *PrometheusExporter) RecordTurn(module, outcome string, latency time.Duration) {
	if e == nil {
		return
	}
	e.turns.WithLabelValues(module, outcome).Inc()
	e.turnLatency.WithLabelValues(module).Observe(latency.Seconds())
}

// SetActiveSessions sets the number of active sessions.
func (e *PrometheusExporter) SetActiveSessions(count int) {
	if e == nil {
		return
	}
	e.sessionsActive.Set(float64(count))
}

// RecordCacheHit records a cache hit. match is "exact" or "fuzzy".
func (e *PrometheusExporter) RecordCacheHit(match string, tokensSaved int) {
	if e == nil {
		return
	}
	e.cacheHits.WithLabelValues(match).Inc()
	e.tokensSaved.Add(float64(tokensSaved))
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(module string) {
	if e == nil {
		return
	}
	e.cacheMisses.WithLabelValues(module).Inc()
}

// RecordLLMCall records token usage and latency for one provider call.
func (e *PrometheusExporter) RecordLLMCall(tier string, inputTokens, outputTokens int, latency time.Duration) {
	if e == nil {
		return
	}
	e.llmTokens.WithLabelValues(tier, "input").Add(float64(inputTokens))
	e.llmTokens.WithLabelValues(tier, "output").Add(float64(outputTokens))
	e.llmLatency.WithLabelValues(tier).Observe(latency.Seconds())
}

// RecordProviderError records a classified provider error.
func (e *PrometheusExporter) RecordProviderError(kind string) {
	if e == nil {
		return
	}
	e.providerErrors.WithLabelValues(kind).Inc()
}

// RecordFallbackServed records one fallback content serving.
func (e *PrometheusExporter) RecordFallbackServed(module string) {
	if e == nil {
		return
	}
	e.fallbackServed.WithLabelValues(module).Inc()
}

// SetReplayQueueSize sets the replay queue depth.
func (e *PrometheusExporter) SetReplayQueueSize(n int) {
	if e == nil {
		return
	}
	e.replayQueueSize.Set(float64(n))
}

// RecordCost records provider spend and the updated budget ratio.
func (e *PrometheusExporter) RecordCost(tier string, usd, budgetRatio float64) {
	if e == nil {
		return
	}
	e.costUSD.WithLabelValues(tier).Add(usd)
	e.budgetUsed.Set(budgetRatio)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
