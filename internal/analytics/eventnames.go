// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
eventnames.go - Custom Event Name Engine

Implements spec §4.G Event names: custom events (event_type = 'event')
grouped by event_name, with a previous-period count from a second CTE over
the immediately preceding window of equal length.
*/

package analytics

import (
	"context"
	"fmt"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

const eventNamesQueryTmpl = `
WITH current_period AS (
	SELECT event_name, COUNT(*) AS count, COUNT(DISTINCT visitor_id) AS visitors
	FROM events e
	WHERE e.website_id = ?
	  AND e.event_type = 'event'
	  AND e.created_at >= ?
	  AND e.created_at < ?
	  %[1]s
	GROUP BY event_name
),
previous_period AS (
	SELECT event_name, COUNT(*) AS count
	FROM events e
	WHERE e.website_id = ?
	  AND e.event_type = 'event'
	  AND e.created_at >= ?
	  AND e.created_at < ?
	  %[1]s
	GROUP BY event_name
)
SELECT
	current_period.event_name,
	current_period.count,
	current_period.visitors,
	previous_period.count
FROM current_period
LEFT JOIN previous_period ON previous_period.event_name = current_period.event_name
ORDER BY current_period.count DESC;
`

// EventNames implements spec §4.G Event names.
func (e *Engine) EventNames(ctx context.Context, websiteID int64, f filter.AnalyticsFilter) ([]EventNameRow, error) {
	w, err := resolveWindow(f)
	if err != nil {
		return nil, err
	}
	prev := w.previous()

	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)
	query := fmt.Sprintf(eventNamesQueryTmpl, eventFilter)

	args := []interface{}{websiteID, w.Start, w.End}
	args = append(args, eventArgs...)
	args = append(args, websiteID, prev.Start, prev.End)
	args = append(args, eventArgs...)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to compute event names")
	}
	defer rows.Close()

	var out []EventNameRow
	for rows.Next() {
		var row EventNameRow
		var prevCount *int64
		if err := rows.Scan(&row.EventName, &row.Count, &row.Visitors, &prevCount); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "failed to scan event name row")
		}
		row.PrevCount = prevCount
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to iterate event name rows")
	}

	return out, nil
}
