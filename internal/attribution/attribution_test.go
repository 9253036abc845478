// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

//go:build integration

package attribution

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/require"

	"github.com/sparklytics/engine/internal/filter"
	"github.com/sparklytics/engine/internal/models"
)

const testSchema = `
CREATE TABLE events (
	id BIGINT PRIMARY KEY,
	website_id BIGINT NOT NULL,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_name TEXT,
	url TEXT NOT NULL,
	referrer TEXT,
	utm_source TEXT,
	utm_medium TEXT,
	event_data TEXT,
	is_bot BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func fixed(v float64) *float64 { return &v }

// TestAttribute_FirstTouchVsLastTouch is spec §8 scenario 4: a session
// lands from google/cpc, then a later purchase event carries its own
// newsletter/email utm pair. First-touch credits the original channel;
// last-touch credits the one present on the converting event.
func TestAttribute_FirstTouchVsLastTouch(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`INSERT INTO events VALUES
		(1, 1, 's1', 'pageview', NULL, '/landing', '', 'google', 'cpc', NULL, FALSE, ?)`,
		time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO events VALUES
		(2, 1, 's1', 'event', 'purchase', '/checkout', '', 'newsletter', 'email', NULL, FALSE, ?)`,
		time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC))
	require.NoError(t, err)

	engine := New(db, 5*time.Second)
	f := filter.AnalyticsFilter{StartDate: "2026-01-01", EndDate: "2026-01-01", IncludeBots: true}
	goal := models.Goal{
		GoalType:      models.GoalTypeEvent,
		MatchValue:    "purchase",
		MatchOperator: models.MatchOperatorEquals,
		ValueMode:     models.ValueModeFixed,
		FixedValue:    fixed(50),
	}

	first, err := engine.Attribute(context.Background(), 1, f, goal, ModelFirstTouch)
	require.NoError(t, err)
	require.Len(t, first.Channels, 1)
	require.Equal(t, "google / cpc", first.Channels[0].Channel)
	require.Equal(t, int64(1), first.Channels[0].Conversions)
	require.Equal(t, 50.0, first.Channels[0].Revenue)
	require.Equal(t, 1.0, first.Channels[0].Share)

	last, err := engine.Attribute(context.Background(), 1, f, goal, ModelLastTouch)
	require.NoError(t, err)
	require.Len(t, last.Channels, 1)
	require.Equal(t, "newsletter / email", last.Channels[0].Channel)
	require.Equal(t, int64(1), last.Channels[0].Conversions)
	require.Equal(t, 50.0, last.Channels[0].Revenue)
}

func TestAttribute_DirectChannelWhenNoUTMOrReferrer(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`INSERT INTO events VALUES
		(1, 1, 's1', 'event', 'signup', '/app', '', '', '', NULL, FALSE, ?)`,
		time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	engine := New(db, 5*time.Second)
	f := filter.AnalyticsFilter{StartDate: "2026-01-01", EndDate: "2026-01-01", IncludeBots: true}
	goal := models.Goal{
		GoalType:      models.GoalTypeEvent,
		MatchValue:    "signup",
		MatchOperator: models.MatchOperatorEquals,
		ValueMode:     models.ValueModeNone,
	}

	result, err := engine.Attribute(context.Background(), 1, f, goal, ModelFirstTouch)
	require.NoError(t, err)
	require.Len(t, result.Channels, 1)
	require.Equal(t, "(direct) / direct", result.Channels[0].Channel)
	require.Equal(t, 0.0, result.Channels[0].Revenue)
}

func TestAttribute_RejectsUnknownModel(t *testing.T) {
	db := setupTestDB(t)
	engine := New(db, time.Second)
	f := filter.AnalyticsFilter{StartDate: "2026-01-01", EndDate: "2026-01-01"}

	_, err := engine.Attribute(context.Background(), 1, f, models.Goal{}, Model("weighted"))
	require.Error(t, err)
}
