// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
session.go - Session Upsert

Implements the session-resolution contract of spec §4.B: given
(website_id, visitor_id, url, isPageview), return the session to attach the
event to, creating one if the idle window has elapsed.
*/

package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sparklytics/engine/internal/database"
)

// SessionManager resolves the session for an incoming event against the
// storage adapter.
type SessionManager struct {
	db         *database.DB
	idleWindow time.Duration
}

// NewSessionManager constructs a SessionManager bound to db, using
// idleWindow as the maximum gap between consecutive events still attached
// to the same session.
func NewSessionManager(db *database.DB, idleWindow time.Duration) *SessionManager {
	return &SessionManager{db: db, idleWindow: idleWindow}
}

// Resolve returns the session id an event should be attached to, creating a
// new session when no recent one exists for (websiteID, visitorID).
func (m *SessionManager) Resolve(ctx context.Context, websiteID int64, visitorID, url string, isPageview bool, now time.Time) (sessionID string, isNew bool, err error) {
	conn := m.db.Conn()

	var (
		existingID string
		lastSeen   time.Time
	)
	row := conn.QueryRowContext(ctx, `
		SELECT session_id, last_seen FROM sessions
		WHERE website_id = ? AND visitor_id = ?
		ORDER BY last_seen DESC LIMIT 1`, websiteID, visitorID)
	err = row.Scan(&existingID, &lastSeen)

	if err == nil && now.Sub(lastSeen) <= m.idleWindow {
		pvIncrement := 0
		if isPageview {
			pvIncrement = 1
		}
		_, err = conn.ExecContext(ctx, `
			UPDATE sessions SET last_seen = ?, pageview_count = pageview_count + ?
			WHERE session_id = ?`, now, pvIncrement, existingID)
		if err != nil {
			return "", false, database.ClassifyError(err)
		}
		return existingID, false, nil
	}

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", false, database.ClassifyError(err)
	}

	newID := uuid.NewString()
	pvCount := 0
	if isPageview {
		pvCount = 1
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO sessions (session_id, website_id, visitor_id, first_seen, last_seen, pageview_count, entry_page, is_bot, bot_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, FALSE, 0)`,
		newID, websiteID, visitorID, now, now, pvCount, url)
	if err != nil {
		return "", false, database.ClassifyError(err)
	}
	return newID, true, nil
}
