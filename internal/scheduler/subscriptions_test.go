// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

//go:build integration

package scheduler

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/require"

	"github.com/sparklytics/engine/internal/analytics"
	"github.com/sparklytics/engine/internal/delivery"
	"github.com/sparklytics/engine/internal/models"
)

const subscriptionsTestSchema = `
CREATE SEQUENCE IF NOT EXISTS events_id_seq;
CREATE SEQUENCE IF NOT EXISTS notification_deliveries_id_seq;
CREATE TABLE sessions (
	session_id TEXT PRIMARY KEY,
	website_id BIGINT NOT NULL,
	visitor_id TEXT NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen TIMESTAMPTZ NOT NULL,
	pageview_count INTEGER NOT NULL DEFAULT 0,
	entry_page TEXT,
	is_bot BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE events (
	id BIGINT PRIMARY KEY DEFAULT nextval('events_id_seq'),
	website_id BIGINT NOT NULL,
	session_id TEXT NOT NULL,
	visitor_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	url TEXT NOT NULL,
	country TEXT,
	browser TEXT,
	os TEXT,
	device_type TEXT,
	utm_source TEXT,
	utm_medium TEXT,
	utm_campaign TEXT,
	referrer TEXT,
	is_bot BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE subscriptions (
	id BIGINT PRIMARY KEY,
	website_id BIGINT NOT NULL,
	report_id TEXT NOT NULL,
	schedule TEXT NOT NULL,
	timezone TEXT NOT NULL,
	channel TEXT NOT NULL,
	target TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	last_run_at TIMESTAMPTZ,
	next_run_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE alert_rules (
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
);
CREATE TABLE notification_deliveries (
	id BIGINT PRIMARY KEY DEFAULT nextval('notification_deliveries_id_seq'),
	source_type TEXT NOT NULL,
	source_id BIGINT NOT NULL,
	idempotency_key TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	delivered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (idempotency_key)
);
`

type schedulerTestDB struct {
	conn *sql.DB
	mu   sync.Mutex
}

func (t *schedulerTestDB) Conn() *sql.DB          { return t.conn }
func (t *schedulerTestDB) WriteLock() *sync.Mutex { return &t.mu }

func setupSchedulerTestDB(t *testing.T) *schedulerTestDB {
	t.Helper()
	conn, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.Exec(subscriptionsTestSchema)
	require.NoError(t, err)
	return &schedulerTestDB{conn: conn}
}

type stubSubscriptionChannel struct {
	sent []delivery.Message
}

func (s *stubSubscriptionChannel) Name() models.DeliveryChannel { return models.ChannelEmail }
func (s *stubSubscriptionChannel) Validate(string) error         { return nil }
func (s *stubSubscriptionChannel) Send(_ context.Context, msg delivery.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func TestSubscriptionsLoop_DueSubscriptionIsDeliveredAndAdvanced(t *testing.T) {
	db := setupSchedulerTestDB(t)
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (website_id, session_id, visitor_id, event_type, url, created_at) VALUES (1, 's1', 'v1', 'pageview', '/', ?)`,
		yesterday)
	require.NoError(t, err)

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (id, website_id, report_id, schedule, timezone, channel, target, is_active, next_run_at)
		 VALUES (1, 1, 'stats', 'daily', 'UTC', 'email', 'owner@example.com', TRUE, ?)`,
		time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	stub := &stubSubscriptionChannel{}
	mgr := delivery.NewManager(db, delivery.NewRegistry(stub), models.ChannelEmail)
	engine := analytics.New(db.conn)
	loop := NewSubscriptionsLoop(db, engine, mgr, time.Minute, 10)

	loop.runTick(ctx)

	require.Len(t, stub.sent, 1)
	require.Equal(t, "owner@example.com", stub.sent[0].Target)

	var lastRunAt sql.NullTime
	var nextRunAt time.Time
	err = db.conn.QueryRowContext(ctx, `SELECT last_run_at, next_run_at FROM subscriptions WHERE id = 1`).Scan(&lastRunAt, &nextRunAt)
	require.NoError(t, err)
	require.True(t, lastRunAt.Valid)
	require.True(t, nextRunAt.After(time.Now().UTC()))
}

func TestSubscriptionsLoop_RepeatedTickDoesNotResend(t *testing.T) {
	db := setupSchedulerTestDB(t)
	ctx := context.Background()

	next := time.Now().UTC().Add(-time.Minute)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (id, website_id, report_id, schedule, timezone, channel, target, is_active, next_run_at)
		 VALUES (1, 1, 'stats', 'daily', 'UTC', 'email', 'owner@example.com', TRUE, ?)`,
		next)
	require.NoError(t, err)

	stub := &stubSubscriptionChannel{}
	mgr := delivery.NewManager(db, delivery.NewRegistry(stub), models.ChannelEmail)
	engine := analytics.New(db.conn)
	loop := NewSubscriptionsLoop(db, engine, mgr, time.Minute, 10)

	loop.runTick(ctx)
	require.Len(t, stub.sent, 1)

	// Advancing next_run_at means a second tick right away finds nothing due.
	loop.runTick(ctx)
	require.Len(t, stub.sent, 1)
}
