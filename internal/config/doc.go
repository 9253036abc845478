// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package config provides layered configuration for the engine: struct
// defaults, an optional YAML file, and environment variables, in that order
// of increasing priority, built on github.com/knadh/koanf/v2.
//
// # Usage
//
//	cfg, err := config.LoadWithKoanf()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// LoadWithKoanf calls Config.Validate before returning, so a successfully
// loaded Config is always internally consistent: positive durations,
// in-range thresholds, and a recognized bot policy mode / log level /
// environment name.
//
// # Sections
//
//   - DatabaseConfig: DuckDB connection and tuning
//   - ServerConfig: thin HTTP API listen settings
//   - IdentityConfig: session idle window, salt rotation grace period
//   - IngestConfig: buffer sizing, payload limits, flush retry/backoff
//   - BotPolicyConfig: default classification mode and threshold
//   - FunnelConfig / RetentionConfig: statement timeouts and concurrency
//   - SchedulerConfig / DeliveryConfig: tick cadence and outbound transport
//   - RateLimitConfig: per-endpoint-class token bucket sizes
//   - RealtimeConfig: realtime snapshot window and page count
//   - LoggingConfig: zerolog level/format/caller
package config
