// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
attribution.go - Attribution & Revenue Engine

Implements spec §4.K: sessions are walked in (session_id, created_at, id)
order, accumulating a "channels seen" list per session from UTM/referrer
fields; the first or last entry of that list at the moment a goal event
matches is the credited channel. Revenue is computed per the goal's value
mode and summed per channel.

Like retention.go, this fetches the filtered rows once and aggregates in
Go rather than expressing the per-session ordered walk as SQL - the walk
is inherently sequential (each event's channel depends on the one before
it), which a single pass over sorted rows expresses directly.
*/

package attribution

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
	"github.com/sparklytics/engine/internal/models"
)

// Querier is the subset of *sql.DB this package needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Engine computes first-touch/last-touch channel attribution and revenue,
// per spec §4.K.
type Engine struct {
	db               Querier
	statementTimeout time.Duration
}

// New constructs an attribution Engine.
func New(db Querier, statementTimeout time.Duration) *Engine {
	return &Engine{db: db, statementTimeout: statementTimeout}
}

type eventRow struct {
	sessionID string
	eventType models.EventType
	eventName string
	url       string
	referrer  string
	utmSource string
	utmMedium string
	eventData string
	createdAt time.Time
}

// Attribute implements spec §4.K for a single Goal.
func (e *Engine) Attribute(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, goal models.Goal, model Model) (Result, error) {
	if model != ModelFirstTouch && model != ModelLastTouch {
		return Result{}, apperr.Newf(apperr.KindBadRequest, "model must be first_touch or last_touch; got %q", model).WithField("model")
	}

	start, end, err := resolveDateRange(f)
	if err != nil {
		return Result{}, err
	}

	queryCtx := ctx
	var cancel context.CancelFunc
	if e.statementTimeout > 0 {
		queryCtx, cancel = context.WithTimeout(ctx, e.statementTimeout)
		defer cancel()
	}

	rows, err := e.fetchEvents(queryCtx, websiteID, f, start, end)
	if err != nil {
		return Result{}, mapTimeoutErr(queryCtx, err, "failed to fetch attribution events")
	}

	return buildResult(rows, goal, model), nil
}

func (e *Engine) fetchEvents(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, start, end time.Time) ([]eventRow, error) {
	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)
	query := fmt.Sprintf(`
		SELECT e.session_id, e.event_type, COALESCE(e.event_name, ''), e.url, COALESCE(e.referrer, ''),
		       COALESCE(e.utm_source, ''), COALESCE(e.utm_medium, ''), COALESCE(e.event_data, ''), e.created_at
		FROM events e
		WHERE e.website_id = ? AND e.created_at >= ? AND e.created_at < ? %s
		ORDER BY e.session_id, e.created_at, e.id
	`, eventFilter)

	args := append([]interface{}{websiteID, start, end}, eventArgs...)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eventRow
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.sessionID, &r.eventType, &r.eventName, &r.url, &r.referrer,
			&r.utmSource, &r.utmMedium, &r.eventData, &r.createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func mapTimeoutErr(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return apperr.New(apperr.KindQueryTimeout, "attribution query exceeded the statement timeout")
	}
	return apperr.Wrap(apperr.KindInternal, err, msg)
}

// resolveDateRange mirrors internal/funnel's window resolution.
func resolveDateRange(f filter.AnalyticsFilter) (time.Time, time.Time, error) {
	tz := f.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Newf(apperr.KindInvalidTimezone, "unknown timezone %q", tz).WithField("timezone")
	}

	start, err := time.ParseInLocation("2006-01-02", f.StartDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Newf(apperr.KindBadRequest, "invalid start_date %q, expected YYYY-MM-DD", f.StartDate).WithField("start_date")
	}
	end, err := time.ParseInLocation("2006-01-02", f.EndDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Newf(apperr.KindBadRequest, "invalid end_date %q, expected YYYY-MM-DD", f.EndDate).WithField("end_date")
	}
	end = end.AddDate(0, 0, 1)
	if !end.After(start) {
		return time.Time{}, time.Time{}, apperr.New(apperr.KindBadRequest, "end_date must be on or after start_date").WithField("end_date")
	}
	return start.UTC(), end.UTC(), nil
}

// channelOf derives the "<source> / <medium>" label per spec §4.K: utm
// params win when present, falling back to the referrer's host, falling
// back to direct.
func channelOf(r eventRow) string {
	source := r.utmSource
	medium := r.utmMedium
	referrerHost := filter.HostOf(r.referrer)

	if source == "" {
		if referrerHost != "" {
			source = referrerHost
		} else {
			source = "(direct)"
		}
	}
	if medium == "" {
		switch {
		case r.utmSource != "":
			medium = "utm"
		case referrerHost != "":
			medium = "referral"
		default:
			medium = "direct"
		}
	}
	return source + " / " + medium
}

func matchesGoal(r eventRow, goal models.Goal) bool {
	var candidate string
	switch goal.GoalType {
	case models.GoalTypePageView:
		if r.eventType != models.EventTypePageview {
			return false
		}
		candidate = r.url
	case models.GoalTypeEvent:
		if r.eventType != models.EventTypeEvent {
			return false
		}
		candidate = r.eventName
	default:
		return false
	}

	switch goal.MatchOperator {
	case models.MatchOperatorContains:
		return strings.Contains(candidate, goal.MatchValue)
	default:
		return candidate == goal.MatchValue
	}
}

func computeRevenue(goal models.Goal, r eventRow) float64 {
	switch goal.ValueMode {
	case models.ValueModeFixed:
		if goal.FixedValue != nil {
			return *goal.FixedValue
		}
		return 0
	case models.ValueModeEventProperty:
		if r.eventData == "" || goal.ValuePropertyKey == "" {
			return 0
		}
		var props map[string]interface{}
		if err := json.Unmarshal([]byte(r.eventData), &props); err != nil {
			return 0
		}
		v, ok := props[goal.ValuePropertyKey]
		if !ok {
			return 0
		}
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		default:
			return 0
		}
	default:
		return 0
	}
}

func buildResult(rows []eventRow, goal models.Goal, model Model) Result {
	type agg struct {
		conversions int64
		revenue     float64
	}
	byChannel := make(map[string]*agg)

	var sessionID string
	var channelsSeen []string

	for _, r := range rows {
		if r.sessionID != sessionID {
			sessionID = r.sessionID
			channelsSeen = nil
		}
		channelsSeen = append(channelsSeen, channelOf(r))

		if matchesGoal(r, goal) {
			var credited string
			switch model {
			case ModelFirstTouch:
				credited = channelsSeen[0]
			default:
				credited = channelsSeen[len(channelsSeen)-1]
			}

			a, ok := byChannel[credited]
			if !ok {
				a = &agg{}
				byChannel[credited] = a
			}
			a.conversions++
			a.revenue += computeRevenue(goal, r)
		}
	}

	result := Result{Model: model}
	for channel, a := range byChannel {
		result.Channels = append(result.Channels, ChannelRow{
			Channel:     channel,
			Conversions: a.conversions,
			Revenue:     a.revenue,
		})
		result.TotalConversions += a.conversions
		result.TotalRevenue += a.revenue
	}

	sort.Slice(result.Channels, func(i, j int) bool {
		if result.Channels[i].Conversions != result.Channels[j].Conversions {
			return result.Channels[i].Conversions > result.Channels[j].Conversions
		}
		return result.Channels[i].Revenue > result.Channels[j].Revenue
	})

	if result.TotalConversions > 0 {
		for i := range result.Channels {
			result.Channels[i].Share = float64(result.Channels[i].Conversions) / float64(result.TotalConversions)
		}
	}

	return result
}
