// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts requests by route template, method and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentx_http_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"route", "method", "code"})

	// HTTPDuration tracks request latency by route template.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"route", "method"})

	// IntentTransitions counts lifecycle transitions by target status.
	IntentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentx_intent_transitions_total",
		Help: "Intent status transitions by target status",
	}, []string{"status"})

	// SettlementDuration tracks the simulated settlement wait.
	SettlementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentx_settlement_duration_seconds",
		Help:    "Time spent waiting for simulated settlement",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"mode"})

	// BatchSize records how many intents each batch carried.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "intentx_batch_size",
		Help:    "Number of intents per batch request",
		Buckets: []float64{1, 5, 10, 25, 50, 75, 100},
	})

	// BatchItems counts batch item outcomes.
	BatchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentx_batch_items_total",
		Help: "Batch items by outcome",
	}, []string{"outcome"})

	// LedgerAppends counts ledger records by transaction type.
	LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentx_ledger_appends_total",
		Help: "Transaction records appended to the ledger",
	}, []string{"type"})
)

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Handler exposes the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
