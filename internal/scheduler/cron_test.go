// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sparklytics/engine/internal/models"
)

func TestNextFire_Daily(t *testing.T) {
	from := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	next, err := NextFire(models.ScheduleDaily, "UTC", from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC), next)
}

func TestNextFire_Weekly(t *testing.T) {
	from := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	next, err := NextFire(models.ScheduleWeekly, "UTC", from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 5, 9, 0, 0, 0, time.UTC), next)
}

func TestNextFire_Monthly(t *testing.T) {
	from := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	next, err := NextFire(models.ScheduleMonthly, "UTC", from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC), next)
}

func TestNextFire_DefaultsEmptyTimezoneToUTC(t *testing.T) {
	from := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	next, err := NextFire(models.ScheduleDaily, "", from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC), next)
}

func TestNextFire_UnknownTimezoneErrors(t *testing.T) {
	_, err := NextFire(models.ScheduleDaily, "Not/A_Zone", time.Now())
	require.Error(t, err)
}

func TestNextFire_UnknownScheduleErrors(t *testing.T) {
	_, err := NextFire(models.Schedule("hourly"), "UTC", time.Now())
	require.Error(t, err)
}
