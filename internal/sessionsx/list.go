// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
list.go - Session List Engine

Implements spec §4.H's cursor-paginated list: ordered by last_seen DESC,
session_id DESC, paged by requesting limit+1 rows and detecting overflow.
Dimension filters scope sessions to those with at least one matching
event, the same EXISTS idiom internal/analytics uses for bounce_rate.
*/

package sessionsx

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

// Querier is the subset of *sql.DB this package needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Engine bundles the query surface the sessions explorer reads through.
type Engine struct {
	db Querier
}

// New constructs a sessionsx Engine.
func New(db Querier) *Engine {
	return &Engine{db: db}
}

const listQueryTmpl = `
SELECT s.session_id, s.visitor_id, s.first_seen, s.last_seen, s.pageview_count, s.entry_page, s.is_bot
FROM sessions s
WHERE s.website_id = ?
  AND s.first_seen >= ?
  AND s.first_seen < ?
  %s
  AND EXISTS (
	SELECT 1 FROM events e
	WHERE e.session_id = s.session_id AND e.website_id = s.website_id
	  %s
  )
  %s
ORDER BY s.last_seen DESC, s.session_id DESC
LIMIT ?;
`

// List implements spec §4.H: a cursor-paginated page of sessions.
func (e *Engine) List(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, limit int, cursorToken string) (Page, error) {
	limit = clampLimit(limit)

	start, err := parseDate(f.StartDate, f.Timezone)
	if err != nil {
		return Page{}, err
	}
	end, err := parseDate(f.EndDate, f.Timezone)
	if err != nil {
		return Page{}, err
	}
	end = end.AddDate(0, 0, 1)

	sessionFilter, sessionArgs, _ := filter.Compile("s", f, 1)
	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)

	seekClause := ""
	var seekArgs []interface{}
	if cursorToken != "" {
		c, err := decodeCursor(cursorToken)
		if err != nil {
			return Page{}, err
		}
		seekClause = "AND (s.last_seen < ? OR (s.last_seen = ? AND s.session_id < ?))"
		seekArgs = []interface{}{c.LastSeen, c.LastSeen, c.SessionID}
	}

	query := fmt.Sprintf(listQueryTmpl, sessionFilter, eventFilter, seekClause)

	args := []interface{}{websiteID, start.UTC(), end.UTC()}
	args = append(args, sessionArgs...)
	args = append(args, eventArgs...)
	args = append(args, seekArgs...)
	args = append(args, limit+1)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.KindInternal, err, "failed to list sessions")
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.SessionID, &r.VisitorID, &r.FirstSeen, &r.LastSeen, &r.PageviewCount, &r.EntryPage, &r.IsBot); err != nil {
			return Page{}, apperr.Wrap(apperr.KindInternal, err, "failed to scan session row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return Page{}, apperr.Wrap(apperr.KindInternal, err, "failed to iterate session rows")
	}

	page := Page{}
	if len(out) > limit {
		page.HasMore = true
		out = out[:limit]
	}
	page.Rows = out

	if page.HasMore && len(out) > 0 {
		last := out[len(out)-1]
		token, err := encodeCursor(cursor{LastSeen: last.LastSeen, SessionID: last.SessionID})
		if err != nil {
			return Page{}, err
		}
		page.NextCursor = token
	}

	return page, nil
}

func parseDate(date, tz string) (time.Time, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.KindInvalidTimezone, "unknown timezone %q", tz).WithField("timezone")
	}
	t, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.KindBadRequest, "invalid date %q, expected YYYY-MM-DD", date).WithField("start_date")
	}
	return t, nil
}
