// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package config

import (
	"fmt"
	"time"
)

// Validate checks that required configuration is present and internally
// consistent, composed of one validator per section in the teacher's style.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateBotPolicy(); err != nil {
		return err
	}
	if err := c.validateFunnel(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateRecompute(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be one of development, staging, production; got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateIdentity() error {
	if c.Identity.SessionIdleWindow <= 0 {
		return fmt.Errorf("SESSION_IDLE_WINDOW must be positive")
	}
	if c.Identity.SaltGracePeriod < 0 {
		return fmt.Errorf("SALT_GRACE_PERIOD must be >= 0")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.BufferMaxSize <= 0 {
		return fmt.Errorf("INGEST_BUFFER_MAX_SIZE must be positive")
	}
	if c.Ingest.BufferFlushInterval <= 0 {
		return fmt.Errorf("INGEST_BUFFER_FLUSH_INTERVAL must be positive")
	}
	if c.Ingest.MaxEventDataBytes <= 0 {
		return fmt.Errorf("INGEST_MAX_EVENT_DATA_BYTES must be positive")
	}
	if c.Ingest.MaxURLBytes <= 0 {
		return fmt.Errorf("INGEST_MAX_URL_BYTES must be positive")
	}
	if c.Ingest.FlushRetryAttempts < 0 {
		return fmt.Errorf("INGEST_FLUSH_RETRY_ATTEMPTS must be >= 0")
	}
	if !c.Ingest.RateLimitDisable && c.Ingest.RateLimitPerMinute <= 0 {
		return fmt.Errorf("INGEST_RATE_LIMIT_PER_MINUTE must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateBotPolicy() error {
	switch c.BotPolicy.DefaultMode {
	case "strict", "balanced", "off":
	default:
		return fmt.Errorf("BOT_POLICY_DEFAULT_MODE must be one of strict, balanced, off; got %q", c.BotPolicy.DefaultMode)
	}
	if c.BotPolicy.DefaultThresholdScore < 0 || c.BotPolicy.DefaultThresholdScore > 100 {
		return fmt.Errorf("BOT_POLICY_DEFAULT_THRESHOLD_SCORE must be between 0 and 100")
	}
	return nil
}

const (
	minStatementTimeout = 100 * time.Millisecond
	maxStatementTimeout = 120 * time.Second
)

func (c *Config) validateFunnel() error {
	if c.Funnel.StatementTimeout < minStatementTimeout || c.Funnel.StatementTimeout > maxStatementTimeout {
		return fmt.Errorf("FUNNEL_STATEMENT_TIMEOUT must be between %s and %s", minStatementTimeout, maxStatementTimeout)
	}
	if c.Funnel.MaxConcurrent <= 0 {
		return fmt.Errorf("FUNNEL_MAX_CONCURRENT must be positive")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.StatementTimeout < minStatementTimeout || c.Retention.StatementTimeout > maxStatementTimeout {
		return fmt.Errorf("RETENTION_STATEMENT_TIMEOUT must be between %s and %s", minStatementTimeout, maxStatementTimeout)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("SCHEDULER_TICK_INTERVAL must be positive")
	}
	if c.Scheduler.MaxSubscriptionsPerTick <= 0 {
		return fmt.Errorf("SCHEDULER_MAX_SUBSCRIPTIONS_PER_TICK must be positive")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if !c.Delivery.SMTPNoop && c.Delivery.SMTPHost != "" {
		if c.Delivery.SMTPPort <= 0 || c.Delivery.SMTPPort > 65535 {
			return fmt.Errorf("SMTP_PORT must be between 1 and 65535")
		}
	}
	if c.Delivery.WebhookTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive")
	}
	if c.Delivery.Parallelism <= 0 {
		return fmt.Errorf("DELIVERY_PARALLELISM must be positive")
	}
	return nil
}

func (c *Config) validateRecompute() error {
	if c.Recompute.BatchSize <= 0 {
		return fmt.Errorf("RECOMPUTE_BATCH_SIZE must be positive")
	}
	if c.Recompute.StalenessThreshold <= 0 {
		return fmt.Errorf("RECOMPUTE_STALENESS_THRESHOLD must be positive")
	}
	if c.Recompute.StartupSweepInterval <= 0 {
		return fmt.Errorf("RECOMPUTE_STARTUP_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.Disabled {
		return nil
	}
	if c.RateLimit.CollectPerMinute <= 0 || c.RateLimit.RedirectPerMinute <= 0 ||
		c.RateLimit.PixelPerMinute <= 0 || c.RateLimit.FunnelPerMinute <= 0 {
		return fmt.Errorf("rate_limit per-minute values must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of json, console; got %q", c.Logging.Format)
	}
	return nil
}
