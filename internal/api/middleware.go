// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
middleware.go - Chi Middleware Factories

Adapted from the teacher's ChiMiddleware (internal/api/chi_middleware.go):
same CORS/httprate/RequestIDWithLogging/APISecurityHeaders factories, minus
every auth/RBAC middleware the teacher stacks alongside them, since
auth is explicitly outside core (spec §7).
*/

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sparklytics/engine/internal/logging"
)

// adaptHandlerFunc lifts a http.HandlerFunc-wrapping middleware (the shape
// internal/middleware's Compression/PrometheusMetrics use) into chi's
// func(http.Handler) http.Handler convention.
func adaptHandlerFunc(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// corsMiddleware returns the ACAO * CORS handler spec §6 requires for the
// collection endpoints. There are no cookies or credentials in play, so a
// wildcard origin carries no session-fixation risk.
func corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// rateLimitByIP returns an httprate-backed per-IP limiter, or a no-op when
// disabled (tests disable all rate limiting per spec §6's "rate-limit
// disable flag for tests").
func rateLimitByIP(requestsPerMinute int, disabled bool) func(http.Handler) http.Handler {
	if disabled || requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RequestIDWithLogging assigns a request ID (generating one if absent) and
// seeds the request context with it plus a fresh correlation ID, so every
// log line emitted while handling the request can be tied back to it.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			ctx = logging.ContextWithNewCorrelationID(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APISecurityHeaders adds the baseline security headers every JSON/GIF
// response should carry.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
