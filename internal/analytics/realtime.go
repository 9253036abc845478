// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
realtime.go - Realtime Snapshot Engine

SPEC_FULL addition: active-visitor count over a trailing window (default 5
minutes) plus the top currently-viewed pages, for GET /realtime/ws to push
over internal/realtime's hub.
*/

package analytics

import (
	"context"
	"time"

	"github.com/sparklytics/engine/internal/apperr"
)

const realtimeTopPagesQuery = `
SELECT e.url, COUNT(DISTINCT e.visitor_id) AS visitors
FROM events e
WHERE e.website_id = ?
  AND e.created_at >= ?
  AND e.event_type = 'pageview'
  AND e.is_bot = FALSE
GROUP BY e.url
ORDER BY visitors DESC
LIMIT ?;
`

const realtimeActiveVisitorsQuery = `
SELECT COUNT(DISTINCT e.visitor_id)
FROM events e
WHERE e.website_id = ?
  AND e.created_at >= ?
  AND e.is_bot = FALSE;
`

// Realtime computes a RealtimeSnapshot as of now: active visitors in the
// trailing window, plus the top N currently-viewed pages.
func (e *Engine) Realtime(ctx context.Context, websiteID int64, window time.Duration, topN int, now time.Time) (RealtimeSnapshot, error) {
	since := now.Add(-window)

	var active int64
	if err := e.db.QueryRowContext(ctx, realtimeActiveVisitorsQuery, websiteID, since).Scan(&active); err != nil {
		return RealtimeSnapshot{}, apperr.Wrap(apperr.KindInternal, err, "failed to compute active visitors")
	}

	rows, err := e.db.QueryContext(ctx, realtimeTopPagesQuery, websiteID, since, topN)
	if err != nil {
		return RealtimeSnapshot{}, apperr.Wrap(apperr.KindInternal, err, "failed to compute top pages")
	}
	defer rows.Close()

	var pages []RealtimePage
	for rows.Next() {
		var p RealtimePage
		if err := rows.Scan(&p.URL, &p.Visitors); err != nil {
			return RealtimeSnapshot{}, apperr.Wrap(apperr.KindInternal, err, "failed to scan top page row")
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return RealtimeSnapshot{}, apperr.Wrap(apperr.KindInternal, err, "failed to iterate top page rows")
	}

	return RealtimeSnapshot{
		WebsiteID:      websiteID,
		ActiveVisitors: active,
		TopPages:       pages,
		AsOf:           now,
	}, nil
}
