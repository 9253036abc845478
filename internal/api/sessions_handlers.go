// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
sessions_handlers.go - Sessions Explorer

GET /api/sessions and GET /api/sessions/{session_id} wrap sessionsx.Engine's
cursor-paginated list and per-session timeline detail (spec §4.H).
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sparklytics/engine/internal/apperr"
)

// HandleSessionsList implements GET /api/sessions.
func (s *Server) HandleSessionsList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	websiteID, err := parseWebsiteID(r)
	if err != nil {
		rw.Err(err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		rw.Err(err)
		return
	}

	limit := parseLimit(r, 50)
	cursor := r.URL.Query().Get("cursor")

	page, err := s.sessions.List(r.Context(), websiteID, f, limit, cursor)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.Paginated(page.Rows, Pagination{
		Count:      len(page.Rows),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	})
}

// HandleSessionDetail implements GET /api/sessions/{session_id}.
func (s *Server) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	websiteID, err := parseWebsiteID(r)
	if err != nil {
		rw.Err(err)
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		rw.Err(apperr.New(apperr.KindBadRequest, "session_id is required").WithField("session_id"))
		return
	}

	detail, err := s.sessions.Detail(r.Context(), websiteID, sessionID)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(detail)
}
