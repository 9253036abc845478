// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sparklytics/config.yaml",
	"/etc/sparklytics/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config
// file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with sensible defaults, applied
// first and overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/sparklytics.duckdb",
			MaxMemory:              "2GB",
			Threads:                0,
			PreserveInsertionOrder: true,
		},
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Identity: IdentityConfig{
			SessionIdleWindow: 30 * time.Minute,
			SaltGracePeriod:   5 * time.Minute,
		},
		Ingest: IngestConfig{
			BufferMaxSize:       1000,
			BufferFlushInterval: 2 * time.Second,
			MaxEventDataBytes:   4096,
			MaxURLBytes:         2048,
			FlushRetryAttempts:  3,
			FlushRetryBaseDelay: 200 * time.Millisecond,
			SpillWALPath:        "/data/ingest-spill",
			RateLimitPerMinute:  60,
			RateLimitDisable:    false,
		},
		BotPolicy: BotPolicyConfig{
			DefaultMode:           "balanced",
			DefaultThresholdScore: 70,
		},
		Funnel: FunnelConfig{
			StatementTimeout: 5 * time.Second,
			MaxConcurrent:    4,
		},
		Retention: RetentionConfig{
			StatementTimeout: 10 * time.Second,
		},
		Attribution: AttributionConfig{
			StatementTimeout: 10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			TickInterval:            60 * time.Second,
			MaxSubscriptionsPerTick: 50,
		},
		Delivery: DeliveryConfig{
			SMTPPort:       587,
			SMTPUseTLS:     true,
			SMTPNoop:       false,
			WebhookTimeout: 10 * time.Second,
			Parallelism:    10,
		},
		Recompute: RecomputeConfig{
			BatchSize:            500,
			StalenessThreshold:   2 * time.Hour,
			StartupSweepInterval: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Disabled:          false,
			CollectPerMinute:  60,
			RedirectPerMinute: 120,
			PixelPerMinute:    240,
			FunnelPerMinute:   10,
		},
		Realtime: RealtimeConfig{
			WindowDuration: 5 * time.Minute,
			TopPagesLimit:  5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file
//  3. Environment variables: override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths, honoring
// the CONFIG_PATH environment variable override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps flat environment variable names onto nested koanf
// config paths. Unmapped keys are skipped so arbitrary environment
// variables never pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"duckdb_path":                 "database.path",
		"duckdb_max_memory":           "database.max_memory",
		"duckdb_threads":              "database.threads",
		"duckdb_preserve_order":       "database.preserve_insertion_order",

		"http_port":        "server.port",
		"http_host":        "server.host",
		"http_timeout":     "server.timeout",
		"environment":      "server.environment",

		"session_idle_window": "identity.session_idle_window",
		"salt_grace_period":   "identity.salt_grace_period",

		"ingest_buffer_max_size":       "ingest.buffer_max_size",
		"ingest_buffer_flush_interval": "ingest.buffer_flush_interval",
		"ingest_max_event_data_bytes":  "ingest.max_event_data_bytes",
		"ingest_max_url_bytes":         "ingest.max_url_bytes",
		"ingest_flush_retry_attempts":  "ingest.flush_retry_attempts",
		"ingest_flush_retry_base_delay": "ingest.flush_retry_base_delay",
		"ingest_spill_wal_path":        "ingest.spill_wal_path",
		"ingest_rate_limit_per_minute": "ingest.rate_limit_per_minute",
		"ingest_rate_limit_disable":    "ingest.rate_limit_disable",

		"bot_policy_default_mode":            "bot_policy.default_mode",
		"bot_policy_default_threshold_score": "bot_policy.default_threshold_score",

		"funnel_statement_timeout": "funnel.statement_timeout",
		"funnel_max_concurrent":    "funnel.max_concurrent",

		"retention_statement_timeout": "retention.statement_timeout",

		"attribution_statement_timeout": "attribution.statement_timeout",

		"scheduler_tick_interval":              "scheduler.tick_interval",
		"scheduler_max_subscriptions_per_tick": "scheduler.max_subscriptions_per_tick",

		"smtp_host":              "delivery.smtp_host",
		"smtp_port":              "delivery.smtp_port",
		"smtp_username":          "delivery.smtp_username",
		"smtp_password":          "delivery.smtp_password",
		"smtp_from":              "delivery.smtp_from",
		"smtp_use_tls":           "delivery.smtp_use_tls",
		"sparklytics_smtp_noop":  "delivery.smtp_noop",
		"webhook_timeout":        "delivery.webhook_timeout",
		"delivery_parallelism":   "delivery.parallelism",

		"rate_limit_disable":            "rate_limit.disabled",
		"rate_limit_collect_per_minute":  "rate_limit.collect_per_minute",
		"rate_limit_redirect_per_minute": "rate_limit.redirect_per_minute",
		"rate_limit_pixel_per_minute":    "rate_limit.pixel_per_minute",
		"rate_limit_funnel_per_minute":   "rate_limit.funnel_per_minute",

		"realtime_window_duration": "realtime.window_duration",
		"realtime_top_pages_limit": "realtime.top_pages_limit",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}

// GetKoanfInstance returns a fresh koanf instance for advanced callers
// (e.g. hot-reload tooling) that need direct access below the Config
// struct.
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}
