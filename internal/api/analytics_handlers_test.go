// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

//go:build integration

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestHandleStats_ReturnsSummary(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertTestEvent(t, s, 1, 1, "sess-a", "pageview", "", "/", base)
	insertTestEvent(t, s, 2, 1, "sess-a", "pageview", "", "/pricing", base.Add(time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/api/stats?website_id=1&start_date=2026-01-01&end_date=2026-01-01&include_bots=true", nil)
	w := httptest.NewRecorder()

	s.HandleStats(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Data)
}

func TestHandleStats_MissingWebsiteIDBadRequest(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()

	s.HandleStats(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "website_id", resp.Error.Field)
}

func TestHandleStats_InvalidIncludeBotsBadRequest(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/stats?website_id=1&include_bots=maybe", nil)
	w := httptest.NewRecorder()

	s.HandleStats(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTimeSeries_ReturnsPoints(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertTestEvent(t, s, 1, 1, "sess-a", "pageview", "", "/", base)

	req := httptest.NewRequest(http.MethodGet, "/api/timeseries?website_id=1&start_date=2026-01-01&end_date=2026-01-01&granularity=day&include_bots=true", nil)
	w := httptest.NewRecorder()

	s.HandleTimeSeries(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleBreakdown_ByPage(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertTestEvent(t, s, 1, 1, "sess-a", "pageview", "", "/pricing", base)
	insertTestEvent(t, s, 2, 1, "sess-b", "pageview", "", "/pricing", base.Add(time.Minute))
	insertTestEvent(t, s, 3, 1, "sess-b", "pageview", "", "/about", base.Add(2*time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/api/breakdown?website_id=1&dimension=page&start_date=2026-01-01&end_date=2026-01-01&include_bots=true", nil)
	w := httptest.NewRecorder()

	s.HandleBreakdown(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination Pagination               `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, 2, resp.Pagination.Count)
}

func TestHandleBreakdown_UnknownDimensionBadRequest(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/breakdown?website_id=1&dimension=nonsense", nil)
	w := httptest.NewRecorder()

	s.HandleBreakdown(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEventNames_ReturnsDistinctNames(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertTestEvent(t, s, 1, 1, "sess-a", "event", "signup_completed", "/signup", base)

	req := httptest.NewRequest(http.MethodGet, "/api/events/names?website_id=1&start_date=2026-01-01&end_date=2026-01-01&include_bots=true", nil)
	w := httptest.NewRecorder()

	s.HandleEventNames(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleEventProperties_RequiresEventName(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/events/properties?website_id=1", nil)
	w := httptest.NewRecorder()

	s.HandleEventProperties(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRealtime_ReturnsSnapshot(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)
	insertTestEvent(t, s, 1, 1, "sess-a", "pageview", "", "/", time.Now().UTC())

	req := httptest.NewRequest(http.MethodGet, "/api/realtime?website_id=1", nil)
	w := httptest.NewRecorder()

	s.HandleRealtime(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
