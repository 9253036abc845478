// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package sessionsx implements the sessions explorer of spec §4.H:
// cursor-paginated session listing and per-session timeline detail. Named
// sessionsx (not sessions) to avoid colliding with the stdlib-adjacent
// "sessions" name used informally elsewhere in the codebase.
package sessionsx

import "time"

// MinLimit/MaxLimit bound the caller-supplied page size (spec §4.H).
const (
	MinLimit = 1
	MaxLimit = 200

	// MaxTimelineEvents is the M events-per-session cap Detail enforces.
	MaxTimelineEvents = 500
)

// SessionRow is one row of the session list.
type SessionRow struct {
	SessionID     string
	VisitorID     string
	FirstSeen     time.Time
	LastSeen      time.Time
	PageviewCount int
	EntryPage     string
	IsBot         bool
}

// Page is a cursor-paginated slice of the session list.
type Page struct {
	Rows       []SessionRow
	HasMore    bool
	NextCursor string
}

// TimelineEvent is one event row in a session's Detail timeline.
type TimelineEvent struct {
	ID        int64
	EventType string
	EventName string
	URL       string
	CreatedAt time.Time
}

// Detail is a session's header plus its (possibly truncated) timeline.
type Detail struct {
	Session   SessionRow
	Events    []TimelineEvent
	Truncated bool
}
