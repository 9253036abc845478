// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

//go:build integration

package api

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sparklytics/engine/internal/analytics"
	"github.com/sparklytics/engine/internal/attribution"
	"github.com/sparklytics/engine/internal/config"
	"github.com/sparklytics/engine/internal/database"
	"github.com/sparklytics/engine/internal/funnel"
	"github.com/sparklytics/engine/internal/identity"
	"github.com/sparklytics/engine/internal/ingest"
	"github.com/sparklytics/engine/internal/realtime"
	"github.com/sparklytics/engine/internal/retention"
	"github.com/sparklytics/engine/internal/sessionsx"
)

// testConfig returns a Config tuned for fast, deterministic handler tests:
// rate limiting off, small buffer so flushes happen promptly, salt rotation
// effectively disabled for the duration of a test run.
func testConfig(dbPath string) config.Config {
	return config.Config{
		Database: config.DatabaseConfig{
			Path:                   dbPath,
			MaxMemory:              "512MB",
			PreserveInsertionOrder: true,
		},
		Server: config.ServerConfig{
			Port:        8080,
			Host:        "127.0.0.1",
			Timeout:     5 * time.Second,
			Environment: "test",
		},
		Identity: config.IdentityConfig{
			SessionIdleWindow: 30 * time.Minute,
			SaltGracePeriod:   5 * time.Minute,
		},
		Ingest: config.IngestConfig{
			BufferMaxSize:       1000,
			BufferFlushInterval: time.Hour,
			MaxEventDataBytes:   4096,
			MaxURLBytes:         2048,
			FlushRetryAttempts:  3,
			FlushRetryBaseDelay: 10 * time.Millisecond,
			RateLimitDisable:    true,
		},
		Funnel: config.FunnelConfig{
			StatementTimeout: 5 * time.Second,
			MaxConcurrent:    4,
		},
		Retention: config.RetentionConfig{
			StatementTimeout: 5 * time.Second,
		},
		Attribution: config.AttributionConfig{
			StatementTimeout: 5 * time.Second,
		},
		RateLimit: config.RateLimitConfig{
			Disabled: true,
		},
		Realtime: config.RealtimeConfig{
			WindowDuration: 5 * time.Minute,
			TopPagesLimit:  5,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "console"},
	}
}

// newTestServer wires a full Server against a temp-file DuckDB, mirroring
// cmd/server/main.go's construction order without the supervisor tree
// (handler tests drive the buffer directly, they don't need the flush
// ticker running in the background).
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "sparklytics-test.duckdb")
	cfg := testConfig(dbPath)

	db, err := database.New(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	salts, err := identity.NewSaltManager(cfg.Identity.SaltGracePeriod)
	require.NoError(t, err)
	sessions := identity.NewSessionManager(db, cfg.Identity.SessionIdleWindow)

	websites := ingest.NewWebsiteCache()
	limiter := ingest.NewIPRateLimiter(cfg.Ingest.RateLimitPerMinute)
	buffer := ingest.NewBuffer(cfg.Ingest, websites, limiter, sessions, db, nil)

	analyticsEngine := analytics.New(db.Conn())
	sessionsEngine := sessionsx.New(db.Conn())
	funnelEngine := funnel.New(db.Conn(), cfg.Funnel.StatementTimeout, cfg.Funnel.MaxConcurrent)
	retentionEngine := retention.New(db.Conn(), cfg.Retention.StatementTimeout)
	attributionEngine := attribution.New(db.Conn(), cfg.Attribution.StatementTimeout)

	hub := realtime.NewHub()

	server := NewServer(cfg, db.Conn(), websites, buffer, salts, analyticsEngine, sessionsEngine, funnelEngine, retentionEngine, attributionEngine, hub)
	return server
}

// seedWebsite inserts a website row and primes the server's in-memory
// cache, exactly as loadWebsites does at startup in cmd/server/main.go.
func seedWebsite(t *testing.T, s *Server, id int64) {
	t.Helper()
	conn := s.db.(*sql.DB)
	_, err := conn.Exec(`INSERT INTO websites (id, name, domain, timezone) VALUES (?, ?, ?, 'UTC')`,
		id, fmt.Sprintf("site-%d", id), fmt.Sprintf("site-%d.example.com", id))
	require.NoError(t, err)
	s.websites.Upsert(ingest.WebsiteMeta{ID: id, Timezone: "UTC"})
}

func insertTestEvent(t *testing.T, s *Server, id, websiteID int64, sessionID, eventType, eventName, url string, createdAt time.Time) {
	t.Helper()
	conn := s.db.(*sql.DB)
	_, err := conn.Exec(`
		INSERT INTO events (id, website_id, session_id, visitor_id, event_type, event_name, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, websiteID, sessionID, "visitor-"+sessionID, eventType, eventName, url, createdAt)
	require.NoError(t, err)
}

func insertTestLink(t *testing.T, s *Server, id, websiteID int64, slug, destination string, active bool) {
	t.Helper()
	conn := s.db.(*sql.DB)
	_, err := conn.Exec(`
		INSERT INTO links (id, website_id, slug, destination_url, utm_source, utm_medium, utm_campaign, is_active)
		VALUES (?, ?, ?, ?, 'newsletter', 'email', 'spring-sale', ?)`,
		id, websiteID, slug, destination, active)
	require.NoError(t, err)
}

func insertTestPixel(t *testing.T, s *Server, id, websiteID int64, key string, active bool) {
	t.Helper()
	conn := s.db.(*sql.DB)
	_, err := conn.Exec(`
		INSERT INTO pixels (id, website_id, pixel_key, is_active) VALUES (?, ?, ?, ?)`,
		id, websiteID, key, active)
	require.NoError(t, err)
}

func insertTestFunnel(t *testing.T, s *Server, funnelID, websiteID int64, name string, steps [][3]string) {
	t.Helper()
	conn := s.db.(*sql.DB)
	_, err := conn.Exec(`INSERT INTO funnels (id, website_id, name) VALUES (?, ?, ?)`, funnelID, websiteID, name)
	require.NoError(t, err)
	for i, step := range steps {
		_, err := conn.Exec(`
			INSERT INTO funnel_steps (id, funnel_id, step_order, step_type, match_value, match_operator, label)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			funnelID*100+int64(i), funnelID, i, step[0], step[1], step[2], step[1])
		require.NoError(t, err)
	}
}

func insertTestGoal(t *testing.T, s *Server, goalID, websiteID int64, name, goalType, matchValue, matchOperator string) {
	t.Helper()
	conn := s.db.(*sql.DB)
	_, err := conn.Exec(`
		INSERT INTO goals (id, website_id, name, goal_type, match_value, match_operator, value_mode)
		VALUES (?, ?, ?, ?, ?, ?, 'none')`,
		goalID, websiteID, name, goalType, matchValue, matchOperator)
	require.NoError(t, err)
}
