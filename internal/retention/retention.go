// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
retention.go - Retention Cohort Engine

Implements spec §4.J: cohorts are defined by a visitor's first-seen
timestamp truncated to the chosen granularity in the requested timezone;
cohort population is restricted to visitors eligible under the filter (at
least one matching event in the cohort window); the activity window is
extended beyond end_date by max_periods periods so cohorts near the end of
the window have somewhere to retain into.

Rather than express the cohort x offset aggregation as one large
correlated SQL query, this engine fetches the filtered activity rows once
(the same shape eventprops.go already samples) and buckets them in Go -
the cohort boundary for each visitor depends on that visitor's own
first-seen instant, which DuckDB's set-based SQL expresses awkwardly but a
single pass over sorted timestamps expresses directly.
*/

package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

// Querier is the subset of *sql.DB this package needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Engine computes retention cohorts bounded by a statement timeout, per
// spec §4.J.
type Engine struct {
	db               Querier
	statementTimeout time.Duration
}

// New constructs a retention Engine.
func New(db Querier, statementTimeout time.Duration) *Engine {
	return &Engine{db: db, statementTimeout: statementTimeout}
}

// visitorFirstSeenQuery computes, for every visitor with any session or
// event row for the website, the minimum of their session first_seen and
// event created_at - spec §4.J's "fallback if a session row is missing".
const visitorFirstSeenQuery = `
WITH session_first AS (
	SELECT visitor_id, MIN(first_seen) AS fs
	FROM sessions
	WHERE website_id = ?
	GROUP BY visitor_id
),
event_first AS (
	SELECT visitor_id, MIN(created_at) AS fs
	FROM events
	WHERE website_id = ?
	GROUP BY visitor_id
)
SELECT COALESCE(s.visitor_id, e.visitor_id),
       CASE
         WHEN s.fs IS NULL THEN e.fs
         WHEN e.fs IS NULL THEN s.fs
         WHEN s.fs < e.fs THEN s.fs
         ELSE e.fs
       END
FROM session_first s
FULL OUTER JOIN event_first e ON s.visitor_id = e.visitor_id
`

// Cohorts implements spec §4.J. start/end come from f.StartDate/f.EndDate;
// granularity and maxPeriods are caller-selected report parameters.
func (e *Engine) Cohorts(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, granularity Granularity, maxPeriods int) (Result, error) {
	ceiling, ok := maxPeriodsCeiling[granularity]
	if !ok {
		return Result{}, apperr.Newf(apperr.KindBadRequest, "granularity must be one of day, week, month; got %q", granularity).WithField("granularity")
	}
	if maxPeriods <= 0 {
		maxPeriods = defaultMaxPeriods
	}
	if maxPeriods > ceiling {
		maxPeriods = ceiling
	}

	tz := f.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Result{}, apperr.Newf(apperr.KindInvalidTimezone, "unknown timezone %q", tz).WithField("timezone")
	}

	start, err := time.ParseInLocation("2006-01-02", f.StartDate, loc)
	if err != nil {
		return Result{}, apperr.Newf(apperr.KindBadRequest, "invalid start_date %q, expected YYYY-MM-DD", f.StartDate).WithField("start_date")
	}
	end, err := time.ParseInLocation("2006-01-02", f.EndDate, loc)
	if err != nil {
		return Result{}, apperr.Newf(apperr.KindBadRequest, "invalid end_date %q, expected YYYY-MM-DD", f.EndDate).WithField("end_date")
	}
	end = end.AddDate(0, 0, 1)
	if !end.After(start) {
		return Result{}, apperr.New(apperr.KindBadRequest, "end_date must be on or after start_date").WithField("end_date")
	}
	start, end = start.UTC(), end.UTC()

	step := stepFunc(granularity)
	extendedEnd := end
	for i := 0; i < maxPeriods; i++ {
		extendedEnd = step(extendedEnd)
	}

	queryCtx := ctx
	var cancel context.CancelFunc
	if e.statementTimeout > 0 {
		queryCtx, cancel = context.WithTimeout(ctx, e.statementTimeout)
		defer cancel()
	}

	firstSeen, err := e.visitorFirstSeen(queryCtx, websiteID)
	if err != nil {
		return Result{}, mapTimeoutErr(queryCtx, err, "failed to compute visitor first-seen")
	}

	activity, err := e.visitorActivity(queryCtx, websiteID, f, start, extendedEnd)
	if err != nil {
		return Result{}, mapTimeoutErr(queryCtx, err, "failed to sample retention activity")
	}

	return buildResult(firstSeen, activity, start, end, loc, granularity, maxPeriods, tz), nil
}

func mapTimeoutErr(ctx context.Context, err error, msg string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.New(apperr.KindQueryTimeout, "retention query exceeded the statement timeout")
	}
	return apperr.Wrap(apperr.KindInternal, err, msg)
}

func (e *Engine) visitorFirstSeen(ctx context.Context, websiteID int64) (map[string]time.Time, error) {
	rows, err := e.db.QueryContext(ctx, visitorFirstSeenQuery, websiteID, websiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var visitor string
		var fs time.Time
		if err := rows.Scan(&visitor, &fs); err != nil {
			return nil, err
		}
		out[visitor] = fs
	}
	return out, rows.Err()
}

func (e *Engine) visitorActivity(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, start, extendedEnd time.Time) (map[string][]time.Time, error) {
	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)
	query := fmt.Sprintf(`
		SELECT e.visitor_id, e.created_at
		FROM events e
		WHERE e.website_id = ? AND e.created_at >= ? AND e.created_at < ? %s
	`, eventFilter)

	args := append([]interface{}{websiteID, start, extendedEnd}, eventArgs...)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]time.Time)
	for rows.Next() {
		var visitor string
		var at time.Time
		if err := rows.Scan(&visitor, &at); err != nil {
			return nil, err
		}
		out[visitor] = append(out[visitor], at)
	}
	return out, rows.Err()
}

func buildResult(firstSeen map[string]time.Time, activity map[string][]time.Time, start, end time.Time, loc *time.Location, granularity Granularity, maxPeriods int, tz string) Result {
	step := stepFunc(granularity)

	type cohortAgg struct {
		visitors map[string]bool
		retained []map[string]bool
	}
	cohorts := make(map[time.Time]*cohortAgg)

	// eligible: visitors with >=1 matching event inside the original
	// [start, end) window, per spec's "cohort population restricted to
	// visitors eligible under the filter".
	eligible := make(map[string]bool)
	for visitor, timestamps := range activity {
		for _, t := range timestamps {
			if !t.Before(start) && t.Before(end) {
				eligible[visitor] = true
				break
			}
		}
	}

	for visitor := range eligible {
		fs, ok := firstSeen[visitor]
		if !ok {
			continue
		}
		if fs.Before(start) || !fs.Before(end) {
			continue
		}
		cohortStart := truncate(fs, granularity, loc)
		agg, ok := cohorts[cohortStart]
		if !ok {
			agg = &cohortAgg{
				visitors: make(map[string]bool),
				retained: make([]map[string]bool, maxPeriods),
			}
			for i := range agg.retained {
				agg.retained[i] = make(map[string]bool)
			}
			cohorts[cohortStart] = agg
		}
		agg.visitors[visitor] = true

		bucketStart := cohortStart
		bucketEnds := make([]time.Time, maxPeriods+1)
		for i := 0; i <= maxPeriods; i++ {
			bucketEnds[i] = bucketStart
			bucketStart = step(bucketStart)
		}
		for _, ts := range activity[visitor] {
			for offset := 1; offset < maxPeriods; offset++ {
				if !ts.Before(bucketEnds[offset]) && ts.Before(bucketEnds[offset+1]) {
					agg.retained[offset][visitor] = true
				}
			}
		}
	}

	cohortStarts := make([]time.Time, 0, len(cohorts))
	for cs := range cohorts {
		cohortStarts = append(cohortStarts, cs)
	}
	sort.Slice(cohortStarts, func(i, j int) bool { return cohortStarts[i].Before(cohortStarts[j]) })

	result := Result{Granularity: granularity, MaxPeriods: maxPeriods, Timezone: tz}

	var p1Sum, p1Count, p4Sum, p4Count float64

	for _, cs := range cohortStarts {
		agg := cohorts[cs]
		cohortSize := int64(len(agg.visitors))

		periods := make([]Period, maxPeriods)
		periods[0] = Period{Offset: 0, Retained: cohortSize, Rate: rateOf(cohortSize, cohortSize)}
		for offset := 1; offset < maxPeriods; offset++ {
			retained := int64(len(agg.retained[offset]))
			periods[offset] = Period{Offset: offset, Retained: retained, Rate: rateOf(retained, cohortSize)}
		}

		result.Cohorts = append(result.Cohorts, Cohort{CohortStart: cs, CohortSize: cohortSize, Periods: periods})

		elapsed := func(offset int) bool {
			bucketEnd := cs
			for i := 0; i <= offset; i++ {
				bucketEnd = step(bucketEnd)
			}
			return !bucketEnd.After(end)
		}

		if maxPeriods > 1 && elapsed(1) {
			p1Sum += periods[1].Rate
			p1Count++
		}
		if maxPeriods > 4 && elapsed(4) {
			p4Sum += periods[4].Rate
			p4Count++
		}
	}

	if p1Count > 0 {
		result.Summary.AvgPeriod1Retention = p1Sum / p1Count
	}
	if p4Count > 0 {
		result.Summary.AvgPeriod4Retention = p4Sum / p4Count
	}

	return result
}

func rateOf(retained, cohortSize int64) float64 {
	if cohortSize <= 0 {
		return 0
	}
	return float64(retained) / float64(cohortSize)
}

func stepFunc(g Granularity) func(time.Time) time.Time {
	switch g {
	case GranularityWeek:
		return func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case GranularityMonth:
		return func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	default:
		return func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	}
}

func truncate(t time.Time, g Granularity, loc *time.Location) time.Time {
	lt := t.In(loc)
	switch g {
	case GranularityWeek:
		day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7 // Monday-anchored weeks
		return day.AddDate(0, 0, -offset).UTC()
	case GranularityMonth:
		return time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc).UTC()
	default:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).UTC()
	}
}
