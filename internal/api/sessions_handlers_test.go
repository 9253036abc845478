// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

//go:build integration

package api

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func insertTestSession(t *testing.T, s *Server, sessionID string, websiteID int64, firstSeen, lastSeen time.Time) {
	t.Helper()
	conn := s.db.(*sql.DB)
	_, err := conn.Exec(`
		INSERT INTO sessions (session_id, website_id, visitor_id, first_seen, last_seen, pageview_count, entry_page)
		VALUES (?, ?, ?, ?, ?, 1, '/')`,
		sessionID, websiteID, "visitor-"+sessionID, firstSeen, lastSeen)
	require.NoError(t, err)
}

func TestHandleSessionsList_ReturnsPage(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertTestSession(t, s, "sess-a", 1, base, base.Add(time.Minute))
	insertTestEvent(t, s, 1, 1, "sess-a", "pageview", "", "/", base)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions?website_id=1&start_date=2026-01-01&end_date=2026-01-01&include_bots=true", nil)
	w := httptest.NewRecorder()

	s.HandleSessionsList(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleSessionsList_MissingWebsiteIDBadRequest(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()

	s.HandleSessionsList(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSessionDetail_ReturnsTimeline(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertTestSession(t, s, "sess-a", 1, base, base.Add(time.Minute))
	insertTestEvent(t, s, 1, 1, "sess-a", "pageview", "", "/", base)

	req := newChiRequestWithParam(http.MethodGet, "/api/sessions/sess-a?website_id=1", "session_id", "sess-a")
	w := httptest.NewRecorder()

	s.HandleSessionDetail(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleSessionDetail_UnknownSessionNotFound(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)

	req := newChiRequestWithParam(http.MethodGet, "/api/sessions/missing?website_id=1", "session_id", "missing")
	w := httptest.NewRecorder()

	s.HandleSessionDetail(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
