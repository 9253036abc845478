// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package analytics

import (
	"time"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

// window is a resolved, half-open [Start, End) UTC instant range plus the
// IANA location it was resolved in.
type window struct {
	Start time.Time
	End   time.Time
	Loc   *time.Location
}

// duration reports the window's length.
func (w window) duration() time.Duration { return w.End.Sub(w.Start) }

// previous returns the immediately preceding window of equal length, used
// as the default comparison period for Stats and EventNames.
func (w window) previous() window {
	d := w.duration()
	return window{Start: w.Start.Add(-d), End: w.Start, Loc: w.Loc}
}

// resolveWindow parses f.StartDate/f.EndDate (YYYY-MM-DD) in f.Timezone
// (defaulting to UTC) into a half-open UTC instant range. EndDate is
// treated as inclusive of the whole calendar day, matching the
// start_date/end_date convention every query endpoint shares.
func resolveWindow(f filter.AnalyticsFilter) (window, error) {
	tz := f.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return window{}, apperr.Newf(apperr.KindInvalidTimezone, "unknown timezone %q", tz).WithField("timezone")
	}

	start, err := time.ParseInLocation("2006-01-02", f.StartDate, loc)
	if err != nil {
		return window{}, apperr.Newf(apperr.KindBadRequest, "invalid start_date %q, expected YYYY-MM-DD", f.StartDate).WithField("start_date")
	}
	end, err := time.ParseInLocation("2006-01-02", f.EndDate, loc)
	if err != nil {
		return window{}, apperr.Newf(apperr.KindBadRequest, "invalid end_date %q, expected YYYY-MM-DD", f.EndDate).WithField("end_date")
	}
	end = end.AddDate(0, 0, 1)

	if !end.After(start) {
		return window{}, apperr.New(apperr.KindBadRequest, "end_date must be on or after start_date").WithField("end_date")
	}

	return window{Start: start.UTC(), End: end.UTC(), Loc: loc}, nil
}

// granularityFor picks the time-series bucket size spec §4.F documents for
// a window of the given length, unless override is non-empty.
func granularityFor(d time.Duration, override Granularity) Granularity {
	if override != "" {
		return override
	}
	switch {
	case d <= 3*24*time.Hour:
		return GranularityHour
	case d >= 90*24*time.Hour:
		return GranularityMonth
	default:
		return GranularityDay
	}
}

func strftimeFormat(g Granularity) string {
	switch g {
	case GranularityHour:
		return "%Y-%m-%dT%H:00:00"
	case GranularityMonth:
		return "%Y-%m-01T00:00:00"
	default:
		return "%Y-%m-%dT00:00:00"
	}
}

func bucketStep(g Granularity) func(time.Time) time.Time {
	switch g {
	case GranularityHour:
		return func(t time.Time) time.Time { return t.Add(time.Hour) }
	case GranularityMonth:
		return func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	default:
		return func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	}
}

func truncToGranularity(t time.Time, g Granularity, loc *time.Location) time.Time {
	lt := t.In(loc)
	switch g {
	case GranularityHour:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
	case GranularityMonth:
		return time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	}
}
