// Package metrics provides Prometheus metrics for the batch gateway.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// payloadBuckets span 256 B to 64 MB.
var payloadBuckets = prometheus.ExponentialBuckets(256, 4, 10)

// Label values for the batch collectors.
const (
	KindQuery            = "query"
	KindChangeSetRequest = "changeset_request"

	DirectionRequest  = "request"
	DirectionResponse = "response"

	ErrorSyntax     = "syntax"
	ErrorValidation = "validation"
	ErrorIO         = "io"
)

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	BatchParts       *prometheus.CounterVec
	BatchPayload     *prometheus.HistogramVec
	BatchSpills      *prometheus.CounterVec
	BatchParseErrors *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odata_batch_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odata_batch_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odata_batch_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odata_batch_upstream_request_duration_seconds",
			Help:    "Upstream $batch call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odata_batch_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		BatchParts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odata_batch_parts_total",
			Help: "Parsed batch sub-requests by kind.",
		}, []string{"kind"}),

		BatchPayload: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odata_batch_payload_bytes",
			Help:    "Size of written batch bodies in bytes.",
			Buckets: payloadBuckets,
		}, []string{"direction"}),

		BatchSpills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odata_batch_spills_total",
			Help: "Batch bodies that outgrew memory and were moved to a temp file.",
		}, []string{"direction"}),

		BatchParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odata_batch_parse_errors_total",
			Help: "Rejected inbound batches by error kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.BatchParts,
		m.BatchPayload,
		m.BatchSpills,
		m.BatchParseErrors,
	)

	return m
}

// ObserveWrite records the size of a written batch body and whether it
// spilled to disk. It is safe to call on a nil *Metrics.
func (m *Metrics) ObserveWrite(direction string, size int64, spilled bool) {
	if m == nil {
		return
	}
	m.BatchPayload.WithLabelValues(direction).Observe(float64(size))
	if spilled {
		m.BatchSpills.WithLabelValues(direction).Inc()
	}
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
var knownPrefixes = []string{"/$batch", "/batch/echo", "/batch/validate", "/healthz", "/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
