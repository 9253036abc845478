// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

//go:build integration

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleCollect_SingleEventAccepted(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)

	body := `{"website_id":1,"type":"pageview","url":"/pricing"}`
	req := httptest.NewRequest(http.MethodPost, "/api/collect", strings.NewReader(body))
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	w := httptest.NewRecorder()

	s.HandleCollect(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandleCollect_BatchAccepted(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)

	body := `[
		{"website_id":1,"type":"pageview","url":"/"},
		{"website_id":1,"type":"event","event_name":"signup_completed","url":"/signup"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/api/collect", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandleCollect(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandleCollect_UnknownWebsiteRejected(t *testing.T) {
	s := newTestServer(t)

	body := `{"website_id":999,"type":"pageview","url":"/"}`
	req := httptest.NewRequest(http.MethodPost, "/api/collect", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandleCollect(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCollect_MissingWebsiteIDFailsValidation(t *testing.T) {
	s := newTestServer(t)

	body := `{"type":"pageview","url":"/"}`
	req := httptest.NewRequest(http.MethodPost, "/api/collect", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandleCollect(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCollect_InvalidTypeRejected(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)

	body := `{"website_id":1,"type":"click","url":"/"}`
	req := httptest.NewRequest(http.MethodPost, "/api/collect", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandleCollect(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCollect_EmptyBodyRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/collect", strings.NewReader(""))
	w := httptest.NewRecorder()

	s.HandleCollect(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCollect_OversizedURLRejected(t *testing.T) {
	s := newTestServer(t)
	seedWebsite(t, s, 1)

	// validateStruct enforces url max=2048 before it ever reaches the buffer.
	body := `{"website_id":1,"type":"pageview","url":"/` + strings.Repeat("a", 3000) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/collect", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.HandleCollect(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

