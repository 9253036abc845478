// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package attribution

// Model enumerates the two attribution models spec §4.K documents.
type Model string

const (
	ModelFirstTouch Model = "first_touch"
	ModelLastTouch  Model = "last_touch"
)

// ChannelRow is one aggregated channel's conversions/revenue/share.
type ChannelRow struct {
	Channel     string
	Conversions int64
	Revenue     float64
	Share       float64
}

// Result is the full attribution computation: per-channel rows plus the
// totals row spec §4.K calls the revenue summary.
type Result struct {
	Model             Model
	Channels          []ChannelRow
	TotalConversions  int64
	TotalRevenue      float64
}
