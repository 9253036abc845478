// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
stats.go - Stats Engine

Computes the headline {pageviews, visitors, sessions, bounce_rate,
avg_duration_seconds} tuple for a filtered window plus its automatically
derived comparison window, per spec §4.F. Dimension filters only apply to
the events table, so session-scoped metrics (bounce_rate, avg_duration)
restrict to sessions with at least one matching event via EXISTS, the same
scoped-events idea the funnel engine (§4.I) builds on.
*/

package analytics

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

// Querier is the subset of *sql.DB every analytics component needs; tests
// can substitute a fake.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Engine bundles the DB handle and config every analytics operation reads
// through. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	db Querier
}

// New constructs an analytics Engine over the given query surface.
func New(db Querier) *Engine {
	return &Engine{db: db}
}

// statsQuery computes every headline figure as an independent scalar
// subquery rather than joining the pieces together: scoped_sessions can be
// empty for a window with traffic (e.g. all single-pageview bounces already
// excluded by a dimension filter on events), and a join would zero out
// pageviews/visitors in that case instead of just zeroing the session-only
// figures.
const statsQuery = `
WITH scoped_sessions AS (
	SELECT s.session_id, s.pageview_count, s.first_seen, s.last_seen
	FROM sessions s
	WHERE s.website_id = ?
	  AND s.first_seen >= ?
	  AND s.first_seen < ?
	  %s
	  AND EXISTS (
		SELECT 1 FROM events e
		WHERE e.session_id = s.session_id AND e.website_id = s.website_id
		  %s
	  )
)
SELECT
	(SELECT COUNT(*) FROM events e WHERE e.website_id = ? AND e.event_type = 'pageview' AND e.created_at >= ? AND e.created_at < ? %s) AS pageviews,
	(SELECT COUNT(DISTINCT e.visitor_id) FROM events e WHERE e.website_id = ? AND e.event_type = 'pageview' AND e.created_at >= ? AND e.created_at < ? %s) AS visitors,
	(SELECT COUNT(*) FROM scoped_sessions) AS sessions,
	(SELECT COALESCE(SUM(CASE WHEN pageview_count = 1 THEN 1 ELSE 0 END), 0) FROM scoped_sessions) AS bounced_sessions,
	(SELECT COALESCE(SUM(CASE WHEN pageview_count >= 1 THEN 1 ELSE 0 END), 0) FROM scoped_sessions) AS qualifying_sessions,
	(SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (last_seen - first_seen))), 0) FROM scoped_sessions) AS avg_duration_seconds;
`

// windowMetrics evaluates the headline tuple for a single resolved window.
func (e *Engine) windowMetrics(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, w window) (WindowMetrics, error) {
	sessionFilter, sessionArgs, _ := filter.Compile("s", f, 1)
	eventFilterForExists, eventArgsForExists, _ := filter.Compile("e", f, 1)
	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)

	query := fmt.Sprintf(statsQuery, sessionFilter, eventFilterForExists, eventFilter, eventFilter)

	args := []interface{}{websiteID, w.Start, w.End}
	args = append(args, sessionArgs...)
	args = append(args, eventArgsForExists...)
	args = append(args, websiteID, w.Start, w.End)
	args = append(args, eventArgs...)
	args = append(args, websiteID, w.Start, w.End)
	args = append(args, eventArgs...)

	row := e.db.QueryRowContext(ctx, query, args...)

	var m WindowMetrics
	var bounced, qualifying int64
	if err := row.Scan(&m.Pageviews, &m.Visitors, &m.Sessions, &bounced, &qualifying, &m.AvgDurationSeconds); err != nil {
		if err == sql.ErrNoRows {
			return WindowMetrics{}, nil
		}
		return WindowMetrics{}, apperr.Wrap(apperr.KindInternal, err, "failed to compute stats")
	}
	if qualifying > 0 {
		m.BounceRate = float64(bounced) / float64(qualifying)
	}
	return m, nil
}

// Stats implements spec §4.F: the headline tuple for the requested window
// plus its automatically derived comparison window.
func (e *Engine) Stats(ctx context.Context, websiteID int64, f filter.AnalyticsFilter) (StatsResult, error) {
	w, err := resolveWindow(f)
	if err != nil {
		return StatsResult{}, err
	}

	cur, err := e.windowMetrics(ctx, websiteID, f, w)
	if err != nil {
		return StatsResult{}, err
	}

	prevWindow := w.previous()
	prev, err := e.windowMetrics(ctx, websiteID, f, prevWindow)
	if err != nil {
		return StatsResult{}, err
	}

	tz := f.Timezone
	if tz == "" {
		tz = "UTC"
	}

	return StatsResult{
		Website:  cur,
		Compare:  &prev,
		Timezone: tz,
	}, nil
}
