// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sparklytics/engine/internal/delivery"
	"github.com/sparklytics/engine/internal/logging"
	"github.com/sparklytics/engine/internal/models"
)

// AlertsLoop implements spec §4.L's alerts tick loop: select active alert
// rules, evaluate their condition against the lookback window, and
// deliver once per fire-window bucket when it trips.
type AlertsLoop struct {
	db         DB
	deliveries *delivery.Manager
	tick       time.Duration
	maxPerTick int
}

// NewAlertsLoop constructs an AlertsLoop.
func NewAlertsLoop(db DB, deliveries *delivery.Manager, tick time.Duration, maxPerTick int) *AlertsLoop {
	return &AlertsLoop{db: db, deliveries: deliveries, tick: tick, maxPerTick: maxPerTick}
}

// Serve implements suture.Service.
func (l *AlertsLoop) Serve(ctx context.Context) error {
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

func (l *AlertsLoop) runTick(ctx context.Context) {
	rules, err := l.activeRules(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("scheduler: failed to load active alert rules")
		return
	}
	for _, rule := range rules {
		l.evaluate(ctx, rule)
	}
}

func (l *AlertsLoop) activeRules(ctx context.Context) ([]models.AlertRule, error) {
	rows, err := l.db.Conn().QueryContext(ctx,
		`SELECT id, website_id, name, metric, condition_type, threshold_value, lookback_days, channel, target, is_active
		 FROM alert_rules WHERE is_active = TRUE LIMIT ?`, l.maxPerTick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		if err := rows.Scan(&r.ID, &r.WebsiteID, &r.Name, &r.Metric, &r.ConditionType, &r.ThresholdValue,
			&r.LookbackDays, &r.Channel, &r.Target, &r.IsActive); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *AlertsLoop) evaluate(ctx context.Context, rule models.AlertRule) {
	current, previous, err := l.metricValues(ctx, rule)
	if err != nil {
		logging.Error().Err(err).Int64("alert_id", rule.ID).Msg("scheduler: failed to evaluate alert metric")
		return
	}

	if !conditionMet(rule.ConditionType, rule.ThresholdValue, current, previous) {
		return
	}

	bucket := time.Now().UTC().Format("2006-01-02")
	key := idempotencyKey("alert", rule.ID, bucket)
	msg := delivery.Message{
		Target:  rule.Target,
		Subject: fmt.Sprintf("Sparklytics alert: %s", rule.Name),
		BodyText: fmt.Sprintf("Alert %q fired: %s is %.2f (was %.2f), condition %s at threshold %.2f",
			rule.Name, rule.Metric, current, previous, rule.ConditionType, rule.ThresholdValue),
	}

	if _, err := l.deliveries.Deliver(ctx, models.DeliverySourceAlert, rule.ID, key, rule.Channel, msg); err != nil {
		logging.Error().Err(err).Int64("alert_id", rule.ID).Msg("scheduler: alert delivery failed")
	}
}

// conditionMet implements spec §4.L's condition evaluation. ThresholdValue
// is a percentage for spike/drop ("current is N% above/below previous")
// and an absolute metric value for threshold_above/threshold_below.
func conditionMet(ct models.AlertConditionType, threshold, current, previous float64) bool {
	switch ct {
	case models.AlertConditionSpike:
		return previous > 0 && current >= previous*(1+threshold/100)
	case models.AlertConditionDrop:
		return previous > 0 && current <= previous*(1-threshold/100)
	case models.AlertConditionThresholdAbove:
		return current > threshold
	case models.AlertConditionThresholdBelow:
		return current < threshold
	default:
		return false
	}
}

// metricValues computes the current and previous lookback-window values
// for rule.Metric directly against the events table. AlertRule carries no
// bound goal definition, so "conversions"/"conversion_rate" count the fixed
// goal_conversion event name rather than a specific goal match.
func (l *AlertsLoop) metricValues(ctx context.Context, rule models.AlertRule) (current, previous float64, err error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -rule.LookbackDays)
	prevEnd := start
	prevStart := prevEnd.AddDate(0, 0, -rule.LookbackDays)

	switch rule.Metric {
	case models.AlertMetricPageviews:
		cur, e1 := l.eventCount(ctx, rule.WebsiteID, "pageview", false, start, end)
		prev, e2 := l.eventCount(ctx, rule.WebsiteID, "pageview", false, prevStart, prevEnd)
		return cur, prev, firstErr(e1, e2)

	case models.AlertMetricVisitors:
		cur, e1 := l.eventCount(ctx, rule.WebsiteID, "pageview", true, start, end)
		prev, e2 := l.eventCount(ctx, rule.WebsiteID, "pageview", true, prevStart, prevEnd)
		return cur, prev, firstErr(e1, e2)

	case models.AlertMetricConversions:
		cur, e1 := l.conversionCount(ctx, rule.WebsiteID, start, end)
		prev, e2 := l.conversionCount(ctx, rule.WebsiteID, prevStart, prevEnd)
		return cur, prev, firstErr(e1, e2)

	case models.AlertMetricConversionRate:
		convCur, e1 := l.conversionCount(ctx, rule.WebsiteID, start, end)
		visCur, e2 := l.eventCount(ctx, rule.WebsiteID, "pageview", true, start, end)
		convPrev, e3 := l.conversionCount(ctx, rule.WebsiteID, prevStart, prevEnd)
		visPrev, e4 := l.eventCount(ctx, rule.WebsiteID, "pageview", true, prevStart, prevEnd)
		if err := firstErr(e1, e2, e3, e4); err != nil {
			return 0, 0, err
		}
		return rate(convCur, visCur), rate(convPrev, visPrev), nil

	default:
		return 0, 0, fmt.Errorf("unknown alert metric %q", rule.Metric)
	}
}

func rate(count, total float64) float64 {
	if total == 0 {
		return 0
	}
	return count / total
}

func (l *AlertsLoop) eventCount(ctx context.Context, websiteID int64, eventType string, distinctVisitor bool, start, end time.Time) (float64, error) {
	column := "COUNT(*)"
	if distinctVisitor {
		column = "COUNT(DISTINCT visitor_id)"
	}
	query := fmt.Sprintf(
		`SELECT %s FROM events WHERE website_id = ? AND event_type = ? AND created_at >= ? AND created_at < ?`, column)

	var n int64
	err := l.db.Conn().QueryRowContext(ctx, query, websiteID, eventType, start, end).Scan(&n)
	return float64(n), err
}

// conversionCount counts goal_conversion events, the fixed event name every
// conversion recorder uses regardless of which goal fired.
func (l *AlertsLoop) conversionCount(ctx context.Context, websiteID int64, start, end time.Time) (float64, error) {
	const query = `SELECT COUNT(*) FROM events WHERE website_id = ? AND event_type = 'event' AND event_name = 'goal_conversion' AND created_at >= ? AND created_at < ?`

	var n int64
	err := l.db.Conn().QueryRowContext(ctx, query, websiteID, start, end).Scan(&n)
	return float64(n), err
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
