// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package config

import "time"

// Config is the root configuration object, assembled by LoadWithKoanf from
// struct defaults, an optional YAML file, and environment variables, in
// that order of increasing priority.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Server     ServerConfig     `koanf:"server"`
	Identity   IdentityConfig   `koanf:"identity"`
	Ingest     IngestConfig     `koanf:"ingest"`
	BotPolicy  BotPolicyConfig  `koanf:"bot_policy"`
	Funnel     FunnelConfig     `koanf:"funnel"`
	Retention  RetentionConfig  `koanf:"retention"`
	Attribution AttributionConfig `koanf:"attribution"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Delivery   DeliveryConfig   `koanf:"delivery"`
	Recompute  RecomputeConfig  `koanf:"recompute"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Realtime   RealtimeConfig   `koanf:"realtime"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// DatabaseConfig holds DuckDB connection and tuning settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// ServerConfig holds the thin HTTP API's listen settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// IdentityConfig governs visitor fingerprinting, salt rotation, and session
// idle windows (spec §4.B).
type IdentityConfig struct {
	SessionIdleWindow time.Duration `koanf:"session_idle_window"`
	SaltGracePeriod   time.Duration `koanf:"salt_grace_period"`
}

// IngestConfig governs the ingest buffer (spec §4.C).
type IngestConfig struct {
	BufferMaxSize        int           `koanf:"buffer_max_size"`
	BufferFlushInterval  time.Duration `koanf:"buffer_flush_interval"`
	MaxEventDataBytes    int           `koanf:"max_event_data_bytes"`
	MaxURLBytes          int           `koanf:"max_url_bytes"`
	FlushRetryAttempts   int           `koanf:"flush_retry_attempts"`
	FlushRetryBaseDelay  time.Duration `koanf:"flush_retry_base_delay"`
	SpillWALPath         string        `koanf:"spill_wal_path"`
	RateLimitPerMinute   int           `koanf:"rate_limit_per_minute"`
	RateLimitDisable     bool          `koanf:"rate_limit_disable"`
}

// RateLimitDisabled reports whether per-IP admission rate limiting is
// switched off.
func (c IngestConfig) RateLimitDisabled() bool { return c.RateLimitDisable }

// BotPolicyConfig holds the default bot policy applied to websites without
// an explicit override (spec §3 Bot policy).
type BotPolicyConfig struct {
	DefaultMode           string `koanf:"default_mode"`
	DefaultThresholdScore int    `koanf:"default_threshold_score"`
}

// FunnelConfig holds funnel engine concurrency and timeout settings (spec
// §4.I).
type FunnelConfig struct {
	StatementTimeout   time.Duration `koanf:"statement_timeout"`
	MaxConcurrent      int           `koanf:"max_concurrent"`
}

// RetentionConfig holds retention engine timeout settings (spec §4.J).
type RetentionConfig struct {
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

// AttributionConfig holds attribution engine timeout settings (spec §4.K).
type AttributionConfig struct {
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

// SchedulerConfig governs the subscriptions and alerts tick loops (spec
// §4.L).
type SchedulerConfig struct {
	TickInterval          time.Duration `koanf:"tick_interval"`
	MaxSubscriptionsPerTick int         `koanf:"max_subscriptions_per_tick"`
}

// DeliveryConfig governs outbound notification delivery (spec §4.L).
type DeliveryConfig struct {
	SMTPHost       string        `koanf:"smtp_host"`
	SMTPPort       int           `koanf:"smtp_port"`
	SMTPUsername   string        `koanf:"smtp_username"`
	SMTPPassword   string        `koanf:"smtp_password"`
	SMTPFrom       string        `koanf:"smtp_from"`
	SMTPUseTLS     bool          `koanf:"smtp_use_tls"`
	SMTPNoop       bool          `koanf:"smtp_noop"`
	WebhookTimeout time.Duration `koanf:"webhook_timeout"`
	Parallelism    int           `koanf:"parallelism"`
}

// RecomputeConfig governs the bot recompute worker (spec §4.M).
type RecomputeConfig struct {
	BatchSize            int           `koanf:"batch_size"`
	StalenessThreshold   time.Duration `koanf:"staleness_threshold"`
	StartupSweepInterval time.Duration `koanf:"startup_sweep_interval"`
}

// RateLimitConfig governs per-endpoint-class token buckets (spec §5).
type RateLimitConfig struct {
	Disabled          bool `koanf:"disabled"`
	CollectPerMinute  int  `koanf:"collect_per_minute"`
	RedirectPerMinute int  `koanf:"redirect_per_minute"`
	PixelPerMinute    int  `koanf:"pixel_per_minute"`
	FunnelPerMinute   int  `koanf:"funnel_per_minute"`
}

// RealtimeConfig governs the realtime snapshot/websocket feature.
type RealtimeConfig struct {
	WindowDuration time.Duration `koanf:"window_duration"`
	TopPagesLimit  int           `koanf:"top_pages_limit"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
