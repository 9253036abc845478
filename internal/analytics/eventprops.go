// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
eventprops.go - Custom Event Property Engine

Implements spec §4.G Event properties: samples up to 10,000 most-recent
rows of a named event, validates event_data as JSON, extracts each
top-level key, and groups by (property_key, property_value), returning the
top 500 pairs plus sampling metadata. TotalOccurrences is a separate
COUNT(*) over the whole matching window, not the sampled rows - the two
diverge once the window holds more than maxEventPropertySample events.
*/

package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

const maxEventPropertySample = 10_000
const maxEventPropertyPairs = 500

const eventPropertiesCountQueryTmpl = `
SELECT COUNT(*)
FROM events e
WHERE e.website_id = ?
  AND e.event_type = 'event'
  AND e.event_name = ?
  AND e.created_at >= ?
  AND e.created_at < ?
  %s;
`

const eventPropertiesQueryTmpl = `
SELECT e.event_data
FROM events e
WHERE e.website_id = ?
  AND e.event_type = 'event'
  AND e.event_name = ?
  AND e.created_at >= ?
  AND e.created_at < ?
  AND e.event_data IS NOT NULL
  %s
ORDER BY e.created_at DESC
LIMIT %d;
`

// EventProperties implements spec §4.G Event properties.
func (e *Engine) EventProperties(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, eventName string) (EventPropertiesResult, error) {
	if eventName == "" {
		return EventPropertiesResult{}, apperr.New(apperr.KindBadRequest, "event_name is required").WithField("event_name")
	}

	w, err := resolveWindow(f)
	if err != nil {
		return EventPropertiesResult{}, err
	}

	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)

	countQuery := fmt.Sprintf(eventPropertiesCountQueryTmpl, eventFilter)
	countArgs := []interface{}{websiteID, eventName, w.Start, w.End}
	countArgs = append(countArgs, eventArgs...)

	var totalOccurrences int64
	if err := e.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&totalOccurrences); err != nil {
		return EventPropertiesResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to count matching events")
	}

	query := fmt.Sprintf(eventPropertiesQueryTmpl, eventFilter, maxEventPropertySample)

	args := []interface{}{websiteID, eventName, w.Start, w.End}
	args = append(args, eventArgs...)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return EventPropertiesResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to sample event properties")
	}
	defer rows.Close()

	type pairKey struct{ key, value string }
	counts := make(map[pairKey]int64)

	var sampleSize int64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return EventPropertiesResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to scan event_data row")
		}
		sampleSize++

		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			continue
		}
		for k, v := range decoded {
			counts[pairKey{key: k, value: fmt.Sprintf("%v", v)}]++
		}
	}
	if err := rows.Err(); err != nil {
		return EventPropertiesResult{}, apperr.Wrap(apperr.KindInternal, err, "failed to iterate event_data rows")
	}

	pairs := make([]EventPropertyRow, 0, len(counts))
	for k, n := range counts {
		pairs = append(pairs, EventPropertyRow{PropertyKey: k.key, PropertyValue: k.value, Occurrences: n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Occurrences != pairs[j].Occurrences {
			return pairs[i].Occurrences > pairs[j].Occurrences
		}
		if pairs[i].PropertyKey != pairs[j].PropertyKey {
			return pairs[i].PropertyKey < pairs[j].PropertyKey
		}
		return pairs[i].PropertyValue < pairs[j].PropertyValue
	})
	if len(pairs) > maxEventPropertyPairs {
		pairs = pairs[:maxEventPropertyPairs]
	}

	return EventPropertiesResult{
		Rows:             pairs,
		TotalOccurrences: totalOccurrences,
		SampleSize:       sampleSize,
	}, nil
}
