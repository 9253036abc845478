// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
timeseries.go - Time-Series Engine

Buckets pageviews/visitors by strftime in the requested timezone (spec
§4.F). Bucket generation in Go mirrors the SQL format exactly so zero-fill
never misaligns with what the database actually produced.
*/

package analytics

import (
	"context"
	"fmt"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

const timeSeriesQueryTmpl = `
SELECT
	strftime(e.created_at AT TIME ZONE '%s', '%s') AS bucket,
	COUNT(*) FILTER (WHERE e.event_type = 'pageview') AS pageviews,
	COUNT(DISTINCT e.visitor_id) AS visitors
FROM events e
WHERE e.website_id = ?
  AND e.created_at >= ?
  AND e.created_at < ?
  %s
GROUP BY bucket
ORDER BY bucket;
`

// TimeSeries implements spec §4.F: a zero-filled list of {date, pageviews,
// visitors} points at the granularity the window length implies, unless
// override is non-empty.
func (e *Engine) TimeSeries(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, override Granularity) ([]Point, error) {
	w, err := resolveWindow(f)
	if err != nil {
		return nil, err
	}
	g := granularityFor(w.duration(), override)

	tz := f.Timezone
	if tz == "" {
		tz = "UTC"
	}

	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)
	query := fmt.Sprintf(timeSeriesQueryTmpl, tz, strftimeFormat(g), eventFilter)

	args := []interface{}{websiteID, w.Start, w.End}
	args = append(args, eventArgs...)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to compute time series")
	}
	defer rows.Close()

	observed := make(map[string]Point)
	const bucketLayout = "2006-01-02T15:04:05"
	for rows.Next() {
		var bucket string
		var p Point
		if err := rows.Scan(&bucket, &p.Pageviews, &p.Visitors); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "failed to scan time series row")
		}
		observed[bucket] = p
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to iterate time series rows")
	}

	step := bucketStep(g)
	start := truncToGranularity(w.Start, g, w.Loc)
	var points []Point
	for t := start; t.Before(w.End); t = step(t) {
		key := t.Format(bucketLayout)
		p, ok := observed[key]
		p.Date = t
		if !ok {
			p.Pageviews, p.Visitors = 0, 0
		}
		points = append(points, p)
	}

	return points, nil
}
