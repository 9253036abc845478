// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package analytics

import "time"

// WindowMetrics is the shape returned for both the requested window and its
// comparison window in Stats.
type WindowMetrics struct {
	Pageviews         int64
	Visitors          int64
	Sessions          int64
	BounceRate        float64
	AvgDurationSeconds float64
}

// StatsResult is the full response of the stats engine (spec §4.F).
type StatsResult struct {
	Website    WindowMetrics
	Compare    *WindowMetrics
	Timezone   string
}

// Granularity enumerates the time-series bucket sizes.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// Point is one time-series bucket.
type Point struct {
	Date      time.Time
	Pageviews int64
	Visitors  int64
}

// MetricDimension enumerates the fixed breakdown dimensions of spec §4.G.
type MetricDimension string

const (
	DimensionPage        MetricDimension = "page"
	DimensionReferrer    MetricDimension = "referrer"
	DimensionCountry     MetricDimension = "country"
	DimensionRegion      MetricDimension = "region"
	DimensionCity        MetricDimension = "city"
	DimensionBrowser     MetricDimension = "browser"
	DimensionOS          MetricDimension = "os"
	DimensionDevice      MetricDimension = "device"
	DimensionScreen      MetricDimension = "screen"
	DimensionEventName   MetricDimension = "event_name"
	DimensionLanguage    MetricDimension = "language"
	DimensionUTMSource   MetricDimension = "utm_source"
	DimensionUTMMedium   MetricDimension = "utm_medium"
	DimensionUTMCampaign MetricDimension = "utm_campaign"
)

var dimensionColumn = map[MetricDimension]string{
	DimensionPage:        "url",
	DimensionReferrer:    "referrer",
	DimensionCountry:     "country",
	DimensionRegion:      "region",
	DimensionCity:        "city",
	DimensionBrowser:     "browser",
	DimensionOS:          "os",
	DimensionDevice:      "device_type",
	DimensionScreen:      "screen",
	DimensionEventName:   "event_name",
	DimensionLanguage:    "language",
	DimensionUTMSource:   "utm_source",
	DimensionUTMMedium:   "utm_medium",
	DimensionUTMCampaign: "utm_campaign",
}

// BreakdownRow is one ranked dimension value from Breakdown.
type BreakdownRow struct {
	Value              string
	Visitors           int64
	Pageviews          int64
	BounceRate         float64
	AvgDurationSeconds float64
}

// BreakdownResult carries the page plus a total for pagination.
type BreakdownResult struct {
	Rows  []BreakdownRow
	Total int64
}

// EventNameRow is one custom-event-name grouping.
type EventNameRow struct {
	EventName string
	Count     int64
	Visitors  int64
	PrevCount *int64
}

// EventPropertyRow is one (property_key, property_value) grouping.
type EventPropertyRow struct {
	PropertyKey   string
	PropertyValue string
	Occurrences   int64
}

// EventPropertiesResult carries the top pairs plus sampling metadata.
type EventPropertiesResult struct {
	Rows             []EventPropertyRow
	TotalOccurrences int64
	SampleSize       int64
}

// RealtimePage is one currently-active page in a RealtimeSnapshot.
type RealtimePage struct {
	URL      string
	Visitors int64
}

// RealtimeSnapshot is the SPEC_FULL addition: active visitors over the
// trailing window plus the top currently-viewed pages.
type RealtimeSnapshot struct {
	WebsiteID      int64
	ActiveVisitors int64
	TopPages       []RealtimePage
	AsOf           time.Time
}
