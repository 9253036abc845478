// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
cron.go - Fixed-Vocabulary Schedule Math

The teacher's internal/newsletter/scheduler/cron.go parses general 5-field
cron expressions because newsletter schedules accept arbitrary cron
strings. Subscriptions here only ever use one of three fixed values
(models.Schedule), so a general parser is the wrong tool; NextFire just
advances the calendar by the matching calendar unit in the subscription's
own timezone, the way the teacher's own CalculateNextRun does the
timezone-aware advance once a cron expression has already matched.
*/
package scheduler

import (
	"time"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/models"
)

// NextFire returns the next run time after from, advanced by one
// schedule unit in tz's local calendar, then converted back to UTC.
func NextFire(schedule models.Schedule, tz string, from time.Time) (time.Time, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.KindInvalidTimezone, "unknown timezone %q", tz).WithField("timezone")
	}

	local := from.In(loc)

	var next time.Time
	switch schedule {
	case models.ScheduleDaily:
		next = local.AddDate(0, 0, 1)
	case models.ScheduleWeekly:
		next = local.AddDate(0, 0, 7)
	case models.ScheduleMonthly:
		next = local.AddDate(0, 1, 0)
	default:
		return time.Time{}, apperr.Newf(apperr.KindBadRequest, "unknown schedule %q", schedule).WithField("schedule")
	}

	return next.UTC(), nil
}
