// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
router.go - Chi Route Assembly

Grounded on the teacher's SetupChi (internal/api/chi_router.go) for the
global-middleware-then-route-groups shape, narrowed to spec §6's actual
surface: collection endpoints (collect/redirect/pixel), analytics query
endpoints, and the realtime websocket - with every auth/RBAC middleware
the teacher stacks dropped, since auth is outside core (spec §7).
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sparklytics/engine/internal/middleware"
)

// Router assembles the full chi.Router for this Server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware())
	r.Use(APISecurityHeaders())
	r.Use(adaptHandlerFunc(middleware.PrometheusMetrics))
	r.Use(s.perf.Middleware)
	r.Use(adaptHandlerFunc(middleware.Compression))

	r.Handle("/metrics", promhttp.Handler())

	rl := s.cfg.RateLimit

	r.Route("/api/collect", func(r chi.Router) {
		r.Use(rateLimitByIP(rl.CollectPerMinute, rl.Disabled))
		r.Post("/", s.HandleCollect)
	})

	r.With(rateLimitByIP(rl.RedirectPerMinute, rl.Disabled)).Get("/l/{slug}", s.HandleLinkRedirect)
	r.With(rateLimitByIP(rl.PixelPerMinute, rl.Disabled)).Get("/p/{key}", s.HandlePixel)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.HandleStats)
		r.Get("/timeseries", s.HandleTimeSeries)
		r.Get("/breakdown", s.HandleBreakdown)
		r.Get("/events/names", s.HandleEventNames)
		r.Get("/events/properties", s.HandleEventProperties)
		r.Get("/realtime", s.HandleRealtime)
		r.Get("/sessions", s.HandleSessionsList)
		r.Get("/sessions/{session_id}", s.HandleSessionDetail)

		r.With(rateLimitByIP(rl.FunnelPerMinute, rl.Disabled)).Get("/funnel", s.HandleFunnel)
		r.Get("/retention", s.HandleRetention)
		r.Get("/attribution", s.HandleAttribution)
	})

	r.Get("/realtime/ws", s.HandleRealtimeWS)

	return r
}
