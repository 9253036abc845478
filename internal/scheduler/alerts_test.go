// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

//go:build integration

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sparklytics/engine/internal/delivery"
	"github.com/sparklytics/engine/internal/models"
)

func insertPageview(t *testing.T, db *schedulerTestDB, websiteID int64, visitorID string, at time.Time) {
	t.Helper()
	_, err := db.conn.ExecContext(context.Background(),
		`INSERT INTO events (website_id, session_id, visitor_id, event_type, url, created_at) VALUES (?, ?, ?, 'pageview', '/', ?)`,
		websiteID, "s-"+visitorID, visitorID, at)
	require.NoError(t, err)
}

func TestAlertsLoop_SpikeConditionFiresAndDelivers(t *testing.T) {
	db := setupSchedulerTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// previous window: 1 pageview 10 days ago
	insertPageview(t, db, 1, "v-old", now.AddDate(0, 0, -10))
	// current window: 5 pageviews in the last 5 days
	for i := 0; i < 5; i++ {
		insertPageview(t, db, 1, "v-new", now.AddDate(0, 0, -i))
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO alert_rules (id, website_id, name, metric, condition_type, threshold_value, lookback_days, channel, target, is_active)
		 VALUES (1, 1, 'pageview spike', 'pageviews', 'spike', 50, 7, 'email', 'owner@example.com', TRUE)`)
	require.NoError(t, err)

	stub := &stubSubscriptionChannel{}
	mgr := delivery.NewManager(db, delivery.NewRegistry(stub), models.ChannelEmail)
	loop := NewAlertsLoop(db, mgr, time.Minute, 10)

	loop.runTick(ctx)

	require.Len(t, stub.sent, 1)
	require.Equal(t, "owner@example.com", stub.sent[0].Target)
}

func TestAlertsLoop_InactiveRuleIsSkipped(t *testing.T) {
	db := setupSchedulerTestDB(t)
	ctx := context.Background()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO alert_rules (id, website_id, name, metric, condition_type, threshold_value, lookback_days, channel, target, is_active)
		 VALUES (1, 1, 'disabled', 'pageviews', 'spike', 50, 7, 'email', 'owner@example.com', FALSE)`)
	require.NoError(t, err)

	stub := &stubSubscriptionChannel{}
	mgr := delivery.NewManager(db, delivery.NewRegistry(stub), models.ChannelEmail)
	loop := NewAlertsLoop(db, mgr, time.Minute, 10)

	loop.runTick(ctx)

	require.Empty(t, stub.sent)
}

func TestAlertsLoop_SameDayRefireIsIdempotent(t *testing.T) {
	db := setupSchedulerTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertPageview(t, db, 1, "v-old", now.AddDate(0, 0, -10))
	for i := 0; i < 5; i++ {
		insertPageview(t, db, 1, "v-new", now.AddDate(0, 0, -i))
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO alert_rules (id, website_id, name, metric, condition_type, threshold_value, lookback_days, channel, target, is_active)
		 VALUES (1, 1, 'pageview spike', 'pageviews', 'spike', 50, 7, 'email', 'owner@example.com', TRUE)`)
	require.NoError(t, err)

	stub := &stubSubscriptionChannel{}
	mgr := delivery.NewManager(db, delivery.NewRegistry(stub), models.ChannelEmail)
	loop := NewAlertsLoop(db, mgr, time.Minute, 10)

	loop.runTick(ctx)
	loop.runTick(ctx)

	require.Len(t, stub.sent, 1, "the second tick on the same UTC day must not re-deliver")
}

func TestConditionMet_ThresholdAboveAndBelow(t *testing.T) {
	require.True(t, conditionMet(models.AlertConditionThresholdAbove, 100, 150, 0))
	require.False(t, conditionMet(models.AlertConditionThresholdAbove, 100, 50, 0))
	require.True(t, conditionMet(models.AlertConditionThresholdBelow, 100, 50, 0))
	require.False(t, conditionMet(models.AlertConditionThresholdBelow, 100, 150, 0))
}

func TestConditionMet_DropRequiresPositivePrevious(t *testing.T) {
	require.True(t, conditionMet(models.AlertConditionDrop, 50, 4, 10))
	require.False(t, conditionMet(models.AlertConditionDrop, 50, 4, 0))
}
