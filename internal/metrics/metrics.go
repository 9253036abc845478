// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the pieces of Sparklytics that run
// continuously: DuckDB queries, the JSON API, the ingest buffer and its
// overflow WAL, the recompute worker, delivery attempts, the realtime hub,
// the website/session caches, and every gobreaker circuit breaker in the
// delivery/funnel/ingest paths.

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	DBConnectionPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duckdb_connection_pool_size",
			Help: "Current number of database connections in use",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Cache Metrics (website cache, session manager)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache_type"},
	)

	// Ingest Metrics
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total number of events offered to the ingest buffer",
		},
		[]string{"outcome"}, // "accepted", "rejected", "rate_limited"
	)

	IngestBufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_buffer_depth",
			Help: "Current number of events queued in the ingest buffer",
		},
	)

	IngestFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_flush_duration_seconds",
			Help:    "Duration of ingest buffer flushes to DuckDB",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestSpillWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_spill_wal_writes_total",
			Help: "Total number of events written to the spill WAL after a failed flush",
		},
	)

	// Recompute Worker Metrics
	RecomputeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recompute_jobs_total",
			Help: "Total number of stale rollup recompute jobs processed",
		},
		[]string{"result"}, // "success", "error"
	)

	RecomputeJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recompute_job_duration_seconds",
			Help:    "Duration of a recompute sweep batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Delivery Metrics (email/webhook alert and subscription delivery)
	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Total number of alert/subscription delivery attempts",
		},
		[]string{"channel", "result"}, // result: "success", "failure"
	)

	// WebSocket Metrics (realtime hub)
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active realtime WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics (sony/gobreaker instances in delivery, funnel, ingest)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through a circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordIngestEvent records the outcome of one ingest.Buffer.Offer call.
func RecordIngestEvent(outcome string) {
	IngestEventsTotal.WithLabelValues(outcome).Inc()
}

// RecordIngestFlush records one buffer-to-DuckDB flush.
func RecordIngestFlush(duration time.Duration) {
	IngestFlushDuration.Observe(duration.Seconds())
}

// RecordRecomputeJob records one recompute sweep batch.
func RecordRecomputeJob(duration time.Duration, err error) {
	RecomputeJobDuration.Observe(duration.Seconds())
	if err != nil {
		RecomputeJobsTotal.WithLabelValues("error").Inc()
	} else {
		RecomputeJobsTotal.WithLabelValues("success").Inc()
	}
}

// RecordDelivery records one alert/subscription delivery attempt.
func RecordDelivery(channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	DeliveryAttemptsTotal.WithLabelValues(channel, result).Inc()
}

// circuitBreakerStateValue maps a gobreaker state name to the gauge value
// CircuitBreakerState reports.
func circuitBreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default: // "closed"
		return 0
	}
}

// RecordCircuitBreakerTransition records a gobreaker OnStateChange callback:
// name is the breaker's Settings.Name, from/to are gobreaker.State.String().
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(circuitBreakerStateValue(to))
}
