// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package sessionsx

import (
	"encoding/base64"
	"time"

	"github.com/goccy/go-json"

	"github.com/sparklytics/engine/internal/apperr"
)

// cursor is the decoded pagination position: the (last_seen, session_id)
// of the last row on the previous page.
type cursor struct {
	LastSeen  time.Time `json:"last_seen"`
	SessionID string    `json:"session_id"`
}

// encodeCursor produces the opaque base64(JSON) token spec §4.H documents.
func encodeCursor(c cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "failed to encode cursor")
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// decodeCursor parses a cursor token, rejecting anything that doesn't
// decode to both fields present.
func decodeCursor(token string) (cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, apperr.New(apperr.KindInvalidCursor, "cursor is not valid base64").WithField("cursor")
	}

	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursor{}, apperr.New(apperr.KindInvalidCursor, "cursor is not valid JSON").WithField("cursor")
	}
	if c.SessionID == "" || c.LastSeen.IsZero() {
		return cursor{}, apperr.New(apperr.KindInvalidCursor, "cursor is missing last_seen or session_id").WithField("cursor")
	}
	return c, nil
}

// clampLimit applies spec §4.H's [1, 200] clamp.
func clampLimit(limit int) int {
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
