// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
funnel_handlers.go - Funnel/Retention/Attribution

Each endpoint loads its definition (funnel steps, goal) by id from the
funnels/funnel_steps/goals tables (see lookups.go) and runs it through the
matching engine. Router wraps the funnel route in
rateLimitByIP(FunnelPerMinute); funnel.Engine.Run adds its own
semaphore+circuit-breaker admission on top of that.
*/

package api

import (
	"net/http"

	"github.com/sparklytics/engine/internal/attribution"
	"github.com/sparklytics/engine/internal/retention"
)

// HandleFunnel implements GET /api/funnel.
func (s *Server) HandleFunnel(w http.ResponseWriter, r *http.Request) {
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
	funnelID, err := parseInt64Param(r.URL.Query().Get("funnel_id"), "funnel_id")
	if err != nil {
		rw.Err(err)
		return
	}

	steps, err := s.loadFunnelSteps(r.Context(), websiteID, funnelID)
	if err != nil {
		rw.Err(err)
		return
	}

	result, err := s.funnels.Run(r.Context(), websiteID, f, steps)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(result)
}

// HandleRetention implements GET /api/retention.
func (s *Server) HandleRetention(w http.ResponseWriter, r *http.Request) {
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

	granularity := retention.Granularity(r.URL.Query().Get("granularity"))
	if granularity == "" {
		granularity = retention.GranularityWeek
	}
	maxPeriods := parseLimit(r, 12)

	result, err := s.retention.Cohorts(r.Context(), websiteID, f, granularity, maxPeriods)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(result)
}

// HandleAttribution implements GET /api/attribution.
func (s *Server) HandleAttribution(w http.ResponseWriter, r *http.Request) {
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
	goalID, err := parseInt64Param(r.URL.Query().Get("goal_id"), "goal_id")
	if err != nil {
		rw.Err(err)
		return
	}

	goal, err := s.loadGoal(r.Context(), websiteID, goalID)
	if err != nil {
		rw.Err(err)
		return
	}

	model := attribution.ModelLastTouch
	if attribution.Model(r.URL.Query().Get("model")) == attribution.ModelFirstTouch {
		model = attribution.ModelFirstTouch
	}

	result, err := s.attribution.Attribute(r.Context(), websiteID, f, goal, model)
	if err != nil {
		rw.Err(err)
		return
	}
	rw.OK(result)
}
