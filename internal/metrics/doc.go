// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
Package metrics provides Prometheus instrumentation for Sparklytics.

# Overview

The package exposes metrics for:
  - DuckDB query performance (RecordDBQuery; no component calls it)
  - API request latency and throughput (internal/api)
  - Website cache hit rates (internal/ingest)
  - Ingest buffer throughput and spill WAL writes (internal/ingest)
  - Recompute worker batch performance (internal/recompute)
  - Alert/subscription delivery outcomes (internal/delivery)
  - Realtime WebSocket connection counts (internal/realtime)
  - gobreaker circuit breaker state (internal/delivery, internal/funnel, internal/ingest)

# Metrics Endpoint

Metrics are exposed at /metrics in Prometheus text format via
promhttp.Handler, wired into internal/api's router alongside the rest of
the JSON API.

# Usage

	import "github.com/prometheus/client_golang/prometheus/promhttp"

	r.Handle("/metrics", promhttp.Handler())

	metrics.RecordAPIRequest("GET", "/api/stats", "200", 12*time.Millisecond)
	metrics.RecordIngestEvent("accepted")
	metrics.RecordDelivery("email", true)
*/
package metrics
