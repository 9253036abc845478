// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
detail.go - Session Detail Engine

Implements spec §4.H Detail: the session header plus up to
MaxTimelineEvents events ordered by (created_at, id) ascending, with
truncated=true when the underlying timeline is longer.
*/

package sessionsx

import (
	"context"
	"database/sql"

	"github.com/sparklytics/engine/internal/apperr"
)

const sessionHeaderQuery = `
SELECT session_id, visitor_id, first_seen, last_seen, pageview_count, entry_page, is_bot
FROM sessions
WHERE website_id = ? AND session_id = ?;
`

const sessionTimelineQuery = `
SELECT id, event_type, COALESCE(event_name, ''), url, created_at
FROM events
WHERE website_id = ? AND session_id = ?
ORDER BY created_at ASC, id ASC
LIMIT ?;
`

// Detail implements spec §4.H Detail.
func (e *Engine) Detail(ctx context.Context, websiteID int64, sessionID string) (Detail, error) {
	var d Detail
	row := e.db.QueryRowContext(ctx, sessionHeaderQuery, websiteID, sessionID)
	if err := row.Scan(&d.Session.SessionID, &d.Session.VisitorID, &d.Session.FirstSeen, &d.Session.LastSeen,
		&d.Session.PageviewCount, &d.Session.EntryPage, &d.Session.IsBot); err != nil {
		if err == sql.ErrNoRows {
			return Detail{}, apperr.New(apperr.KindNotFound, "session not found").WithField("session_id")
		}
		return Detail{}, apperr.Wrap(apperr.KindInternal, err, "failed to load session header")
	}

	rows, err := e.db.QueryContext(ctx, sessionTimelineQuery, websiteID, sessionID, MaxTimelineEvents+1)
	if err != nil {
		return Detail{}, apperr.Wrap(apperr.KindInternal, err, "failed to load session timeline")
	}
	defer rows.Close()

	for rows.Next() {
		var ev TimelineEvent
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.EventName, &ev.URL, &ev.CreatedAt); err != nil {
			return Detail{}, apperr.Wrap(apperr.KindInternal, err, "failed to scan timeline event")
		}
		d.Events = append(d.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return Detail{}, apperr.Wrap(apperr.KindInternal, err, "failed to iterate timeline events")
	}

	if len(d.Events) > MaxTimelineEvents {
		d.Truncated = true
		d.Events = d.Events[:MaxTimelineEvents]
	}

	return d, nil
}
