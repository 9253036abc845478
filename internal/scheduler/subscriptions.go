// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sparklytics/engine/internal/analytics"
	"github.com/sparklytics/engine/internal/delivery"
	"github.com/sparklytics/engine/internal/filter"
	"github.com/sparklytics/engine/internal/logging"
	"github.com/sparklytics/engine/internal/models"
)

// SubscriptionsLoop implements spec §4.L's subscriptions tick loop: select
// due subscriptions, render the bound report, deliver it, and advance
// next_run_at.
type SubscriptionsLoop struct {
	db         DB
	reports    *analytics.Engine
	deliveries *delivery.Manager
	tick       time.Duration
	maxPerTick int
}

// NewSubscriptionsLoop constructs a SubscriptionsLoop.
func NewSubscriptionsLoop(db DB, reports *analytics.Engine, deliveries *delivery.Manager, tick time.Duration, maxPerTick int) *SubscriptionsLoop {
	return &SubscriptionsLoop{db: db, reports: reports, deliveries: deliveries, tick: tick, maxPerTick: maxPerTick}
}

// Serve implements suture.Service.
func (l *SubscriptionsLoop) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runTick(ctx)
		}
	}
}

func (l *SubscriptionsLoop) runTick(ctx context.Context) {
	subs, err := l.dueSubscriptions(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("scheduler: failed to load due subscriptions")
		return
	}
	for _, sub := range subs {
		l.execute(ctx, sub)
	}
}

func (l *SubscriptionsLoop) dueSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	rows, err := l.db.Conn().QueryContext(ctx,
		`SELECT id, website_id, report_id, schedule, timezone, channel, target, is_active, last_run_at, next_run_at, created_at
		 FROM subscriptions
		 WHERE is_active = TRUE AND next_run_at <= CURRENT_TIMESTAMP
		 ORDER BY next_run_at
		 LIMIT ?`, l.maxPerTick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Subscription
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(&s.ID, &s.WebsiteID, &s.ReportID, &s.Schedule, &s.Timezone, &s.Channel, &s.Target,
			&s.IsActive, &s.LastRunAt, &s.NextRunAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (l *SubscriptionsLoop) execute(ctx context.Context, sub models.Subscription) {
	report, err := l.renderReport(ctx, sub)
	if err != nil {
		logging.Error().Err(err).Int64("subscription_id", sub.ID).Msg("scheduler: failed to render subscription report")
		return
	}

	key := idempotencyKey("subscription", sub.ID, sub.NextRunAt.Unix())
	msg := delivery.Message{
		Target:   sub.Target,
		Subject:  fmt.Sprintf("Sparklytics report: %s", sub.ReportID),
		BodyText: report,
	}

	if _, err := l.deliveries.Deliver(ctx, models.DeliverySourceSubscription, sub.ID, key, sub.Channel, msg); err != nil {
		logging.Error().Err(err).Int64("subscription_id", sub.ID).Msg("scheduler: subscription delivery failed")
	}

	l.advance(ctx, sub)
}

// renderReport implements spec §4.L's "bound report" concept. report_id
// "stats" is the only report this engine currently binds a subscription
// to; it renders the previous full day's headline stats tuple via
// internal/analytics in the subscription's timezone.
func (l *SubscriptionsLoop) renderReport(ctx context.Context, sub models.Subscription) (string, error) {
	if sub.ReportID != "stats" {
		return "", fmt.Errorf("unsupported report_id %q", sub.ReportID)
	}

	tz := sub.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("load timezone %q: %w", tz, err)
	}

	yesterday := time.Now().In(loc).AddDate(0, 0, -1).Format("2006-01-02")
	f := filter.AnalyticsFilter{StartDate: yesterday, EndDate: yesterday, Timezone: tz}

	result, err := l.reports.Stats(ctx, sub.WebsiteID, f)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"Sparklytics daily report for %s\npageviews: %d\nvisitors: %d\nsessions: %d\nbounce rate: %.1f%%\navg duration: %.0fs",
		yesterday, result.Website.Pageviews, result.Website.Visitors, result.Website.Sessions,
		result.Website.BounceRate*100, result.Website.AvgDurationSeconds,
	), nil
}

func (l *SubscriptionsLoop) advance(ctx context.Context, sub models.Subscription) {
	next, err := NextFire(sub.Schedule, sub.Timezone, sub.NextRunAt)
	if err != nil {
		logging.Error().Err(err).Int64("subscription_id", sub.ID).Msg("scheduler: failed to compute next run time")
		return
	}

	l.db.WriteLock().Lock()
	defer l.db.WriteLock().Unlock()

	_, err = l.db.Conn().ExecContext(ctx,
		`UPDATE subscriptions SET last_run_at = CURRENT_TIMESTAMP, next_run_at = ? WHERE id = ?`,
		next, sub.ID)
	if err != nil {
		logging.Error().Err(err).Int64("subscription_id", sub.ID).Msg("scheduler: failed to advance subscription schedule")
	}
}
