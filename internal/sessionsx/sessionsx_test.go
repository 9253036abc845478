// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

//go:build integration

package sessionsx

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

const schema = `
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
	id BIGINT PRIMARY KEY,
	website_id BIGINT NOT NULL,
	session_id TEXT NOT NULL,
	visitor_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_name TEXT,
	url TEXT NOT NULL,
	country TEXT,
	is_bot BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

func seedSession(t *testing.T, db *sql.DB, id string, lastSeen time.Time) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO sessions (session_id, website_id, visitor_id, first_seen, last_seen, pageview_count, entry_page) VALUES (?, 1, 'v', ?, ?, 1, '/')`,
		id, lastSeen, lastSeen)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO events (id, website_id, session_id, visitor_id, event_type, url, created_at) VALUES (?, 1, ?, 'v', 'pageview', '/', ?)`,
		time.Now().UnixNano(), id, lastSeen)
	require.NoError(t, err)
}

func TestList_PaginatesWithCursor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	e := New(db)

	base := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	seedSession(t, db, "s1", base)
	seedSession(t, db, "s2", base.Add(time.Minute))
	seedSession(t, db, "s3", base.Add(2*time.Minute))

	f := filter.AnalyticsFilter{StartDate: "2026-07-15", EndDate: "2026-07-15", Timezone: "UTC", IncludeBots: true}

	page1, err := e.List(ctx, 1, f, 2, "")
	require.NoError(t, err)
	require.Len(t, page1.Rows, 2)
	assert.True(t, page1.HasMore)
	assert.Equal(t, "s3", page1.Rows[0].SessionID)
	assert.Equal(t, "s2", page1.Rows[1].SessionID)
	assert.NotEmpty(t, page1.NextCursor)

	page2, err := e.List(ctx, 1, f, 2, page1.NextCursor)
	require.NoError(t, err)
	require.Len(t, page2.Rows, 1)
	assert.False(t, page2.HasMore)
	assert.Equal(t, "s1", page2.Rows[0].SessionID)
}

func TestList_InvalidCursorRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	e := New(db)

	f := filter.AnalyticsFilter{StartDate: "2026-07-15", EndDate: "2026-07-15", Timezone: "UTC"}
	_, err := e.List(ctx, 1, f, 10, "not-valid-base64!!!")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidCursor, apperr.KindOf(err))
}

func TestDetail_ReturnsHeaderAndTimeline(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	e := New(db)

	base := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	seedSession(t, db, "s1", base)

	d, err := e.Detail(ctx, 1, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", d.Session.SessionID)
	assert.Len(t, d.Events, 1)
	assert.False(t, d.Truncated)
}

func TestDetail_UnknownSessionNotFound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	e := New(db)

	_, err := e.Detail(ctx, 1, "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
