// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
dimensions.go - Metrics & Breakdown Engine

Implements spec §4.G's fixed-dimension breakdown: top-N {value, visitors,
pageviews, bounce_rate, avg_duration_seconds} ordered by pageviews when the
dimension is "page", else by visitors, with a total count for pagination.
*/

package analytics

import (
	"context"
	"fmt"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

// ColumnFor exposes the SQL column backing a MetricDimension so callers
// (e.g. the HTTP boundary validating filter_<dimension> query params) can
// check a dimension name is known without importing sql details.
func ColumnFor(d MetricDimension) (string, bool) {
	col, ok := dimensionColumn[d]
	return col, ok
}

const breakdownValuesQueryTmpl = `
SELECT
	e.%[1]s AS value,
	COUNT(*) FILTER (WHERE e.event_type = 'pageview') AS pageviews,
	COUNT(DISTINCT e.visitor_id) AS visitors
FROM events e
WHERE e.website_id = ?
  AND e.created_at >= ?
  AND e.created_at < ?
  AND e.%[1]s IS NOT NULL
  AND e.%[1]s != ''
  %[2]s
GROUP BY e.%[1]s
ORDER BY %[3]s DESC
LIMIT ? OFFSET ?;
`

const breakdownTotalQueryTmpl = `
SELECT COUNT(DISTINCT e.%[1]s)
FROM events e
WHERE e.website_id = ?
  AND e.created_at >= ?
  AND e.created_at < ?
  AND e.%[1]s IS NOT NULL
  AND e.%[1]s != ''
  %[2]s;
`

const breakdownSessionQueryTmpl = `
WITH session_value AS (
	SELECT DISTINCT s.session_id, s.pageview_count, s.first_seen, s.last_seen, e.%[1]s AS value
	FROM sessions s
	JOIN events e ON e.session_id = s.session_id AND e.website_id = s.website_id
	WHERE s.website_id = ?
	  AND s.first_seen >= ?
	  AND s.first_seen < ?
	  %[2]s
	  AND e.%[1]s IS NOT NULL
	  AND e.%[1]s != ''
	  %[3]s
)
SELECT
	value,
	COUNT(*) AS sessions,
	SUM(CASE WHEN pageview_count = 1 THEN 1 ELSE 0 END) AS bounced,
	SUM(CASE WHEN pageview_count >= 1 THEN 1 ELSE 0 END) AS qualifying,
	AVG(EXTRACT(EPOCH FROM (last_seen - first_seen))) AS avg_duration_seconds
FROM session_value
GROUP BY value;
`

// Breakdown implements spec §4.G Metrics: ranked dimension values plus a
// total for pagination. limit/offset page the ranked list; limit is the
// caller's responsibility to clamp.
func (e *Engine) Breakdown(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, dim MetricDimension, limit, offset int) (BreakdownResult, error) {
	col, ok := dimensionColumn[dim]
	if !ok {
		return BreakdownResult{}, apperr.Newf(apperr.KindBadRequest, "unknown metric dimension %q", dim).WithField("dimension")
	}

	w, err := resolveWindow(f)
	if err != nil {
		return BreakdownResult{}, err
	}

	orderCol := "visitors"
	if dim == DimensionPage {
		orderCol = "pageviews"
	}

	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)

	valuesQuery := fmt.Sprintf(breakdownValuesQueryTmpl, col, eventFilter, orderCol)
	valuesArgs := []interface{}{websiteID, w.Start, w.End}
	valuesArgs = append(valuesArgs, eventArgs...)
	valuesArgs = append(valuesArgs, limit, offset)

	rows, err := e.db.QueryContext(ctx, valuesQuery, valuesArgs...)
	if err != nil {
		return BreakdownResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to compute breakdown")
	}
	defer rows.Close()

	byValue := make(map[string]*BreakdownRow)
	var ordered []string
	for rows.Next() {
		row := BreakdownRow{}
		if err := rows.Scan(&row.Value, &row.Pageviews, &row.Visitors); err != nil {
			return BreakdownResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to scan breakdown row")
		}
		ordered = append(ordered, row.Value)
		byValue[row.Value] = &row
	}
	if err := rows.Err(); err != nil {
		return BreakdownResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to iterate breakdown rows")
	}

	if len(ordered) > 0 {
		sessionFilter, sessionArgs, _ := filter.Compile("s", f, 1)
		sessionQuery := fmt.Sprintf(breakdownSessionQueryTmpl, col, sessionFilter, eventFilter)
		sessionArgsAll := []interface{}{websiteID, w.Start, w.End}
		sessionArgsAll = append(sessionArgsAll, sessionArgs...)
		sessionArgsAll = append(sessionArgsAll, eventArgs...)

		srows, err := e.db.QueryContext(ctx, sessionQuery, sessionArgsAll...)
		if err != nil {
			return BreakdownResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to compute breakdown session metrics")
		}
		defer srows.Close()

		for srows.Next() {
			var value string
			var sessions, bounced, qualifying int64
			var avgDuration float64
			if err := srows.Scan(&value, &sessions, &bounced, &qualifying, &avgDuration); err != nil {
				return BreakdownResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to scan breakdown session row")
			}
			if row, ok := byValue[value]; ok {
				row.AvgDurationSeconds = avgDuration
				if qualifying > 0 {
					row.BounceRate = float64(bounced) / float64(qualifying)
				}
			}
		}
		if err := srows.Err(); err != nil {
			return BreakdownResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to iterate breakdown session rows")
		}
	}

	result := BreakdownResult{}
	for _, v := range ordered {
		result.Rows = append(result.Rows, *byValue[v])
	}

	totalQuery := fmt.Sprintf(breakdownTotalQueryTmpl, col, eventFilter)
	totalArgs := []interface{}{websiteID, w.Start, w.End}
	totalArgs = append(totalArgs, eventArgs...)
	if err := e.db.QueryRowContext(ctx, totalQuery, totalArgs...).Scan(&result.Total); err != nil {
		return BreakdownResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to compute breakdown total")
	}

	return result, nil
}
