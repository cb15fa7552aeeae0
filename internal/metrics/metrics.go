// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Buckets for attempts per forwarded request (bounded by the retry budget).
var attemptBuckets = []float64{1, 2, 3, 4, 5, 6}

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	OriginDuration  *prometheus.HistogramVec
	OriginResponses *prometheus.CounterVec

	RetriesTotal    *prometheus.CounterVec
	AttemptsPerReq  prometheus.Histogram
	ExhaustedTotal  prometheus.Counter
	PreflightsTotal prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_gateway_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_gateway_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		OriginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_gateway_origin_request_duration_seconds",
			Help:    "Origin call latency in seconds, per attempt.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		OriginResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_gateway_origin_responses_total",
			Help: "Total origin responses by method and status code.",
		}, []string{"method", "status_code"}),

		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_gateway_retries_total",
			Help: "Total retried attempts by reason (status or network).",
		}, []string{"reason"}),

		AttemptsPerReq: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "edge_gateway_attempts_per_request",
			Help:    "Forwarding attempts made per proxied request.",
			Buckets: attemptBuckets,
		}),

		ExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edge_gateway_retry_exhausted_total",
			Help: "Requests that exhausted the retry budget and got a synthesized 503.",
		}),

		PreflightsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edge_gateway_cors_preflights_total",
			Help: "CORS preflight requests answered without contacting the origin.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.OriginDuration,
		m.OriginResponses,
		m.RetriesTotal,
		m.AttemptsPerReq,
		m.ExhaustedTotal,
		m.PreflightsTotal,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/api", "/healthz", "/gateway/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
