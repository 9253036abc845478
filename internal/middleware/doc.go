// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
Package middleware provides HTTP middleware components for the application.

This package implements infrastructure middleware for compression, performance
monitoring, and Prometheus metrics integration. Request ID assignment and CORS
live in internal/api instead, since they're chi-native (func(http.Handler)
http.Handler); the components here predate the chi router and keep the
http.HandlerFunc-wrapping shape, so internal/api/middleware.go's
adaptHandlerFunc bridges them into the chi middleware stack.

Key Components:

  - Compression: Gzip compression for responses, skipping websocket upgrades
  - Performance Monitor: Request latency tracking with percentile calculations
  - Prometheus Metrics: HTTP request/response instrumentation

Usage Example - Compression:

	import "github.com/sparklytics/engine/internal/middleware"

	// Wrap handler with gzip compression
	http.HandleFunc("/api/v1/data",
	    middleware.Compression(handler),
	)

	// Responses are compressed when the client sends Accept-Encoding: gzip

Usage Example - Performance Monitoring:

	// Create performance monitor
	perfMon := middleware.NewPerformanceMonitor(1000)

	// Wrap handler (chi-style: func(http.Handler) http.Handler)
	r.Use(perfMon.Middleware)

	// Get performance statistics
	stats := perfMon.GetStats()
	for _, s := range stats {
	    fmt.Printf("%s p50: %v, p95: %v, p99: %v\n", s.Path, s.P50Duration, s.P95Duration, s.P99Duration)
	}

Usage Example - Prometheus Metrics:

	// Wrap handler with request/response instrumentation
	http.HandleFunc("/api/v1/stats",
	    middleware.PrometheusMetrics(handler),
	)

Compression Details:

The compression middleware:
  - Compresses responses when the client sends Accept-Encoding: gzip
  - Skips requests carrying an Upgrade: websocket header
  - Reuses gzip.Writer instances via a sync.Pool

Performance Monitor:

The performance monitor tracks:
  - Request count and latency percentiles (p50, p95, p99) per endpoint
  - A rolling window of the most recent requests (size set by the caller)
  - Thread-safe concurrent access with sync.RWMutex
  - Logs requests slower than a fixed 1000ms (LogSlowRequests reports against a caller-given threshold)

Thread Safety:

All middleware components are thread-safe:
  - Compression uses per-request gzip writers drawn from a sync.Pool
  - Performance monitor uses sync.RWMutex
  - Prometheus metrics use the prometheus client's own atomic counters

See Also:

  - internal/api: chi router wiring these into the middleware stack
  - internal/metrics: Prometheus metrics definitions
*/
package middleware
