// Package metrics defines the Prometheus collectors for the auth service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for AuthOperations
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// AuthOperations counts auth operations by outcome and error kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_auth_operations_total",
		Help: "Total number of auth operations by operation, outcome and error kind",
	},
	[]string{"operation", "outcome", "kind"},
)

// RateLimitDenials counts requests rejected by the rate limiter
var RateLimitDenials = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_auth_rate_limit_denials_total",
		Help: "Total number of requests rejected by the rate limiter by scope",
	},
	[]string{"scope"},
)

// RateLimitErrors counts limiter backend failures
var RateLimitErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_auth_rate_limit_errors_total",
		Help: "Total number of rate limiter backend errors by scope",
	},
	[]string{"scope"},
)

// HTTPRequestDuration observes handler latency
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "storefront_auth_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// SessionsPurged counts expired refresh token records removed by the purge loop
var SessionsPurged = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "storefront_auth_sessions_purged_total",
		Help: "Total number of expired sessions removed by the background purge",
	},
)

// RegisterMetrics registers the package collectors with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthOperations)
	reg.MustRegister(RateLimitDenials)
	reg.MustRegister(RateLimitErrors)
	reg.MustRegister(HTTPRequestDuration)
	reg.MustRegister(SessionsPurged)
}

// NewRegistry returns a registry with the package collectors plus the Go
// runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	RegisterMetrics(reg)
	return reg
}

// Handler serves the metrics in reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordAuthOperation increments AuthOperations. kind is empty on success.
func RecordAuthOperation(operation, outcome, kind string) {
	AuthOperations.WithLabelValues(operation, outcome, kind).Inc()
}

// RecordRateLimitDenial increments RateLimitDenials
func RecordRateLimitDenial(scope string) {
	RateLimitDenials.WithLabelValues(scope).Inc()
}

// RecordRateLimitError increments RateLimitErrors
func RecordRateLimitError(scope string) {
	RateLimitErrors.WithLabelValues(scope).Inc()
}

// RecordHTTPRequest observes a finished request
func RecordHTTPRequest(method, route, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// RecordSessionsPurged adds n to SessionsPurged
func RecordSessionsPurged(n int64) {
	SessionsPurged.Add(float64(n))
}
