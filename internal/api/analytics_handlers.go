// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
analytics_handlers.go - Stats/TimeSeries/Breakdown/EventNames/EventProperties

Thin translations of query string -> analytics.Engine call -> envelope.
Every handler shares parseWebsiteID/parseFilter from params.go.
*/

package api

import (
	"net/http"
	"time"

	"github.com/sparklytics/engine/internal/analytics"
	"github.com/sparklytics/engine/internal/apperr"
)

// HandleStats implements GET /api/stats.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
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

	result, err := s.analytics.Stats(r.Context(), websiteID, f)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(result)
}

// HandleTimeSeries implements GET /api/timeseries.
func (s *Server) HandleTimeSeries(w http.ResponseWriter, r *http.Request) {
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

	var granularity analytics.Granularity
	if raw := r.URL.Query().Get("granularity"); raw != "" {
		granularity = analytics.Granularity(raw)
	}

	points, err := s.analytics.TimeSeries(r.Context(), websiteID, f, granularity)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(points)
}

var dimensionParam = map[string]analytics.MetricDimension{
	"page":         analytics.DimensionPage,
	"referrer":     analytics.DimensionReferrer,
	"country":      analytics.DimensionCountry,
	"region":       analytics.DimensionRegion,
	"city":         analytics.DimensionCity,
	"browser":      analytics.DimensionBrowser,
	"os":           analytics.DimensionOS,
	"device":       analytics.DimensionDevice,
	"screen":       analytics.DimensionScreen,
	"event_name":   analytics.DimensionEventName,
	"language":     analytics.DimensionLanguage,
	"utm_source":   analytics.DimensionUTMSource,
	"utm_medium":   analytics.DimensionUTMMedium,
	"utm_campaign": analytics.DimensionUTMCampaign,
}

// HandleBreakdown implements GET /api/breakdown.
func (s *Server) HandleBreakdown(w http.ResponseWriter, r *http.Request) {
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

	raw := r.URL.Query().Get("dimension")
	dim, ok := dimensionParam[raw]
	if !ok {
		rw.Err(apperr.New(apperr.KindBadRequest, "dimension must be one of the supported breakdown dimensions").WithField("dimension"))
		return
	}

	limit := parseLimit(r, 20)
	offset := parseOffset(r)

	result, err := s.analytics.Breakdown(r.Context(), websiteID, f, dim, limit, offset)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.Paginated(result.Rows, Pagination{
		Total:   result.Total,
		Count:   len(result.Rows),
		HasMore: int64(offset+len(result.Rows)) < result.Total,
	})
}

// HandleEventNames implements GET /api/events/names.
func (s *Server) HandleEventNames(w http.ResponseWriter, r *http.Request) {
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

	rows, err := s.analytics.EventNames(r.Context(), websiteID, f)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(rows)
}

// HandleEventProperties implements GET /api/events/properties.
func (s *Server) HandleEventProperties(w http.ResponseWriter, r *http.Request) {
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
	eventName := r.URL.Query().Get("event_name")
	if eventName == "" {
		rw.Err(apperr.New(apperr.KindBadRequest, "event_name is required").WithField("event_name"))
		return
	}

	result, err := s.analytics.EventProperties(r.Context(), websiteID, f, eventName)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(result)
}

// HandleRealtime implements GET /api/realtime.
func (s *Server) HandleRealtime(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	websiteID, err := parseWebsiteID(r)
	if err != nil {
		rw.Err(err)
		return
	}

	snapshot, err := s.analytics.Realtime(r.Context(), websiteID, s.cfg.Realtime.WindowDuration, s.cfg.Realtime.TopPagesLimit, time.Now().UTC())
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(snapshot)
}
