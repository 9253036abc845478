// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
schema.go - Idempotent Schema Script

Creates every table the engine owns. Runs unconditionally at startup via
CREATE TABLE IF NOT EXISTS, matching spec §4.A: the storage adapter owns the
schema, and the numbered migrations registry (migrations.go) is reserved for
changes after the tables below have shipped.
*/

package database

// createSequenceStatements backs the handful of BIGINT primary keys that
// Go code never assigns explicitly (events.id, recompute_runs.id,
// notification_deliveries.id, links.id, pixels.id) - every other table's rows are written with
// application-assigned IDs or aren't inserted by this engine at all
// (management CRUD is a documented Non-goal).
var createSequenceStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS events_id_seq;`,
	`CREATE SEQUENCE IF NOT EXISTS recompute_runs_id_seq;`,
	`CREATE SEQUENCE IF NOT EXISTS notification_deliveries_id_seq;`,
	`CREATE SEQUENCE IF NOT EXISTS links_id_seq;`,
	`CREATE SEQUENCE IF NOT EXISTS pixels_id_seq;`,
}

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS websites (
		id BIGINT PRIMARY KEY,
		tenant_id TEXT,
		name TEXT NOT NULL,
		domain TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		share_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		website_id BIGINT NOT NULL,
		visitor_id TEXT NOT NULL,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		pageview_count INTEGER NOT NULL DEFAULT 0,
		entry_page TEXT,
		is_bot BOOLEAN NOT NULL DEFAULT FALSE,
		bot_score INTEGER NOT NULL DEFAULT 0,
		bot_reason TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGINT PRIMARY KEY DEFAULT nextval('events_id_seq'),
		website_id BIGINT NOT NULL,
		session_id TEXT NOT NULL,
		visitor_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_name TEXT,
		event_data TEXT,
		url TEXT NOT NULL,
		referrer TEXT,
		country TEXT,
		region TEXT,
		city TEXT,
		browser TEXT,
		os TEXT,
		device_type TEXT,
		screen TEXT,
		language TEXT,
		utm_source TEXT,
		utm_medium TEXT,
		utm_campaign TEXT,
		link_id BIGINT,
		pixel_id BIGINT,
		source_ip TEXT,
		user_agent TEXT,
		is_bot BOOLEAN NOT NULL DEFAULT FALSE,
		bot_score INTEGER NOT NULL DEFAULT 0,
		bot_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS goals (
		id BIGINT PRIMARY KEY,
		website_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		goal_type TEXT NOT NULL,
		match_value TEXT NOT NULL,
		match_operator TEXT NOT NULL,
		value_mode TEXT NOT NULL DEFAULT 'none',
		fixed_value DOUBLE,
		value_property_key TEXT,
		currency TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (website_id, name)
	);`,
	`CREATE TABLE IF NOT EXISTS funnels (
		id BIGINT PRIMARY KEY,
		website_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (website_id, name)
	);`,
	`CREATE TABLE IF NOT EXISTS funnel_steps (
		id BIGINT PRIMARY KEY,
		funnel_id BIGINT NOT NULL,
		step_order INTEGER NOT NULL,
		step_type TEXT NOT NULL,
		match_value TEXT NOT NULL,
		match_operator TEXT NOT NULL,
		label TEXT,
		UNIQUE (funnel_id, step_order)
	);`,
	`CREATE TABLE IF NOT EXISTS bot_policies (
		website_id BIGINT PRIMARY KEY,
		mode TEXT NOT NULL DEFAULT 'balanced',
		threshold_score INTEGER NOT NULL DEFAULT 70,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS bot_overrides (
		id BIGINT PRIMARY KEY,
		website_id BIGINT NOT NULL,
		list_kind TEXT NOT NULL,
		match_type TEXT NOT NULL,
		match_value TEXT NOT NULL,
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS recompute_runs (
		id BIGINT PRIMARY KEY DEFAULT nextval('recompute_runs_id_seq'),
		website_id BIGINT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		error_message TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGINT PRIMARY KEY,
		website_id BIGINT NOT NULL,
		report_id TEXT NOT NULL,
		schedule TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		channel TEXT NOT NULL,
		target TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_run_at TIMESTAMPTZ,
		next_run_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id BIGINT PRIMARY KEY,
		website_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		metric TEXT NOT NULL,
		condition_type TEXT NOT NULL,
		threshold_value DOUBLE NOT NULL,
		lookback_days INTEGER NOT NULL DEFAULT 7,
		channel TEXT NOT NULL,
		target TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS notification_deliveries (
		id BIGINT PRIMARY KEY DEFAULT nextval('notification_deliveries_id_seq'),
		source_type TEXT NOT NULL,
		source_id BIGINT NOT NULL,
		idempotency_key TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT,
		delivered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (idempotency_key)
	);`,
	// links/pixels back GET /l/{slug} and GET /p/{key}; creating and managing
	// them is campaign-management CRUD, a documented Non-goal, so rows are
	// expected to be seeded out-of-band rather than through this engine.
	`CREATE TABLE IF NOT EXISTS links (
		id BIGINT PRIMARY KEY DEFAULT nextval('links_id_seq'),
		website_id BIGINT NOT NULL,
		slug TEXT NOT NULL,
		destination_url TEXT NOT NULL,
		utm_source TEXT,
		utm_medium TEXT,
		utm_campaign TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (slug)
	);`,
	`CREATE TABLE IF NOT EXISTS pixels (
		id BIGINT PRIMARY KEY DEFAULT nextval('pixels_id_seq'),
		website_id BIGINT NOT NULL,
		pixel_key TEXT NOT NULL,
		name TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (pixel_key)
	);`,
}

var createIndexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_events_website_created ON events (website_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_events_website_session ON events (website_id, session_id);`,
	`CREATE INDEX IF NOT EXISTS idx_events_website_visitor_created ON events (website_id, visitor_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_events_website_type_created ON events (website_id, event_type, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_events_country ON events (website_id, country);`,
	`CREATE INDEX IF NOT EXISTS idx_events_browser ON events (website_id, browser);`,
	`CREATE INDEX IF NOT EXISTS idx_events_os ON events (website_id, os);`,
	`CREATE INDEX IF NOT EXISTS idx_events_device_type ON events (website_id, device_type);`,
	`CREATE INDEX IF NOT EXISTS idx_events_utm_source ON events (website_id, utm_source);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_website_visitor ON sessions (website_id, visitor_id, last_seen);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_website_last_seen ON sessions (website_id, last_seen);`,
	`CREATE INDEX IF NOT EXISTS idx_bot_overrides_website ON bot_overrides (website_id, list_kind);`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_next_run ON subscriptions (is_active, next_run_at);`,
	`CREATE INDEX IF NOT EXISTS idx_recompute_runs_website_status ON recompute_runs (website_id, status);`,
}

// createTables runs the idempotent DDL script for every table the engine
// owns.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range createSequenceStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, stmt := range createTableStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// createIndexes creates the indexes documented in spec §6.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range createIndexStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
