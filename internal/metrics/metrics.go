package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mapaclientes"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Upstream REST backend metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of requests sent to the REST backend",
		},
		[]string{"method", "resource", "outcome"}, // outcome: ok, http_error, network_error
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "REST backend latency distribution",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "resource"},
	)

	EnvelopeMismatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelope_mismatch_total",
			Help:      "List responses whose JSON shape was not recognised",
		},
		[]string{"resource"},
	)
)

// Health monitor metrics
var (
	BackendConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_connected",
			Help:      "1 when the last health check reached the backend, 0 otherwise",
		},
	)

	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total number of backend health checks",
		},
		[]string{"result"}, // connected, disconnected
	)

	HealthCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_check_duration_seconds",
			Help:      "Time spent walking the liveness endpoints",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	StatusSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status_subscribers",
			Help:      "Current number of connection status subscribers",
		},
	)
)

// Entity panel metrics
var (
	PanelCacheRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "panel_cache_records",
			Help:      "Records currently mirrored by each entity panel",
		},
		[]string{"resource"},
	)

	PanelMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panel_mutations_total",
			Help:      "Create, update and delete operations issued by entity panels",
		},
		[]string{"resource", "action", "status"},
	)

	StaleListResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_list_responses_total",
			Help:      "List responses discarded because a newer fetch was already applied",
		},
		[]string{"resource"},
	)
)
