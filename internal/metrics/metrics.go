// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline and its transports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalyzeRequests counts analyses by transport and resulting action.
	AnalyzeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_analyze_requests_total",
			Help: "Total analyze requests by transport and action",
		},
		[]string{"transport", "action"},
	)

	// AnalyzeDuration tracks analysis latency per transport.
	AnalyzeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatlens_analyze_duration_seconds",
			Help:    "Time spent analyzing a single text",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	// ThreatsDetected counts threat verdicts by category.
	ThreatsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_threats_detected_total",
			Help: "Total threat verdicts by detection category",
		},
		[]string{"category"},
	)

	// CacheHits and CacheMisses track verdict cache effectiveness.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_cache_hits_total",
			Help: "Verdict cache hits",
		},
	)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatlens_cache_misses_total",
			Help: "Verdict cache misses",
		},
	)

	// RulesLoaded reports the size of the active rule set.
	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threatlens_rules_loaded",
			Help: "Number of compiled detection rules",
		},
	)
)

// ObserveResult records the standard per-analysis metrics.
func ObserveResult(transport, action string, seconds float64, isThreat bool, categories []string) {
	AnalyzeRequests.WithLabelValues(transport, action).Inc()
	AnalyzeDuration.WithLabelValues(transport).Observe(seconds)
	if isThreat {
		for _, cat := range categories {
			ThreatsDetected.WithLabelValues(cat).Inc()
		}
	}
}
