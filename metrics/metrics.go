// Package metrics exposes the filter's Prometheus instrumentation. All
// collectors are registered on the default registry so embedders get them
// on their existing /metrics endpoint for free; the sidecar serves them
// via Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Signal label values for RecordSignal.
const (
	SignalEdgeScore     = "edge_score"
	SignalEdgeVerified  = "edge_verified"
	SignalQueryOverride = "query_override"
	SignalClassifier    = "classifier"
)

// Cache result label values for RecordClassifierCache.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwfilter_decisions_total",
			Help: "Total number of pipeline decisions by outcome",
		},
		[]string{"outcome"},
	)
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwfilter_bot_signals_total",
			Help: "Total number of bot-likeness signals that fired, by signal",
		},
		[]string{"signal"},
	)
	classifierCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwfilter_classifier_cache_total",
			Help: "Classifier cache lookups by result",
		},
		[]string{"result"},
	)
	rulesetRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pwfilter_ruleset_refreshes_total",
			Help: "Ruleset refresh attempts by result",
		},
		[]string{"result"},
	)
	remoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pwfilter_remote_request_duration_milliseconds",
			Help:    "Duration of calls to the filter service in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
		},
		[]string{"endpoint", "status"},
	)
	accessEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pwfilter_access_events_dropped_total",
			Help: "Access log events dropped because the delivery queue was full",
		},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(classifierCacheTotal)
	prometheus.MustRegister(rulesetRefreshesTotal)
	prometheus.MustRegister(remoteRequestDuration)
	prometheus.MustRegister(accessEventsDropped)
}

// RecordDecision counts a pipeline outcome (proxied, pass_through,
// allowed, denied).
func RecordDecision(outcome string) {
	decisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordSignal counts a bot-likeness signal that fired.
func RecordSignal(signal string) {
	signalsTotal.WithLabelValues(signal).Inc()
}

// RecordClassifierCache counts a classification cache lookup.
func RecordClassifierCache(result string) {
	classifierCacheTotal.WithLabelValues(result).Inc()
}

// RecordRulesetRefresh counts a ruleset refresh attempt ("ok" or "error").
func RecordRulesetRefresh(result string) {
	rulesetRefreshesTotal.WithLabelValues(result).Inc()
}

// ObserveRemoteRequest records the duration of one call to the filter
// service. endpoint is a short name (metadata, auth, logs, vai), status
// the HTTP status class or "error" for transport failures.
func ObserveRemoteRequest(endpoint, status string, duration time.Duration) {
	remoteRequestDuration.WithLabelValues(endpoint, status).
		Observe(float64(duration.Milliseconds()))
}

// RecordDroppedAccessEvent counts an access event discarded on enqueue.
func RecordDroppedAccessEvent() {
	accessEventsDropped.Inc()
}

// Handler returns the Prometheus exposition handler for the sidecar's
// /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
