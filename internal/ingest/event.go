// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package ingest

import "time"

// IngestEvent is the shape a client submits to the collect/redirect/pixel
// endpoints before session resolution and bot classification have run.
type IngestEvent struct {
	WebsiteID   int64
	VisitorID   string
	EventType   string // "pageview" or "event"
	EventName   string
	EventData   string
	URL         string
	Referrer    string
	Country     string
	Region      string
	City        string
	Browser     string
	OS          string
	DeviceType  string
	Screen      string
	Language    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	LinkID      *int64
	PixelID     *int64
	SourceIP    string
	UserAgent   string
	CreatedAt   time.Time
}

// SortKey satisfies identity.PendingEvent so a pending batch can be ordered
// by (visitor_id, created_at) before session resolution.
func (e IngestEvent) SortKey() (string, time.Time) {
	return e.VisitorID, e.CreatedAt
}
