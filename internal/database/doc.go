// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package database is the storage adapter: a thin, typed operation surface
// over a single embedded DuckDB connection.
//
// # Architecture
//
//   - database.go: connection lifecycle (open, tune, close, checkpoint)
//   - extensions.go: icu/json extension install and load
//   - schema.go: idempotent CREATE TABLE/INDEX script
//   - migrations.go: numbered post-release migration registry
//   - database_connection.go: connection pool tuning, error classification helpers
//   - database_utils.go: profiling, context helpers, record counts
//   - classify.go: driver error -> apperr.Kind mapping
//
// # Concurrency
//
// The DB holds a single writer connection; DB.WriteLock() guards the
// batch-insert path so two flushes never interleave, while readers share the
// connection pool configured in database_connection.go.
//
// # Error handling
//
// Every exported method that touches the driver should route its error
// through ClassifyError before returning it, so callers receive a typed
// apperr.Error rather than a raw driver error string.
package database
