// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package retention

import "time"

// Granularity enumerates the cohort bucket sizes spec §4.J documents.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// maxPeriodsCeiling is the per-granularity clamp spec §4.J documents:
// day <= 30, week <= 12, month <= 12.
var maxPeriodsCeiling = map[Granularity]int{
	GranularityDay:   30,
	GranularityWeek:  12,
	GranularityMonth: 12,
}

const defaultMaxPeriods = 8

// Period is one cohort's figures at a given offset from its cohort start.
type Period struct {
	Offset   int
	Retained int64
	Rate     float64
}

// Cohort is one cohort-start bucket's zero-filled period series.
type Cohort struct {
	CohortStart time.Time
	CohortSize  int64
	Periods     []Period
}

// Summary reports the average period-1/period-4 retention across cohorts
// old enough to have observed that offset.
type Summary struct {
	AvgPeriod1Retention float64
	AvgPeriod4Retention float64
}

// Result is the full response of the retention engine.
type Result struct {
	Granularity Granularity
	MaxPeriods  int
	Timezone    string
	Cohorts     []Cohort
	Summary     Summary
}
