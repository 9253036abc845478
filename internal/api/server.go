// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
server.go - Server

Server bundles every dependency a handler needs: the engines that do the
actual work, plus the thin bits (website cache, salts, buffer) the
collection endpoints touch directly. Grounded on the teacher's Router
(internal/api/chi_router.go), narrowed to one struct instead of
Router+Handler+Middleware since there is no auth layer to separate out.
*/

package api

import (
	"context"
	"database/sql"

	"github.com/sparklytics/engine/internal/analytics"
	"github.com/sparklytics/engine/internal/attribution"
	"github.com/sparklytics/engine/internal/config"
	"github.com/sparklytics/engine/internal/funnel"
	"github.com/sparklytics/engine/internal/identity"
	"github.com/sparklytics/engine/internal/ingest"
	"github.com/sparklytics/engine/internal/middleware"
	"github.com/sparklytics/engine/internal/realtime"
	"github.com/sparklytics/engine/internal/retention"
	"github.com/sparklytics/engine/internal/sessionsx"
)

// perfMonitorWindow bounds how many recent requests the performance
// monitor keeps for percentile calculations.
const perfMonitorWindow = 1000

// dbQuerier is the minimal handle the link/pixel/lookup queries need,
// satisfied directly by *sql.DB.
type dbQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Server holds every dependency the HTTP handlers need.
type Server struct {
	cfg config.Config

	db       dbQuerier
	websites *ingest.WebsiteCache
	buffer   *ingest.Buffer
	salts    *identity.SaltManager

	analytics   *analytics.Engine
	sessions    *sessionsx.Engine
	funnels     *funnel.Engine
	retention   *retention.Engine
	attribution *attribution.Engine

	hub  *realtime.Hub
	perf *middleware.PerformanceMonitor
}

// NewServer constructs a Server from its already-built dependencies.
// Construction/wiring of those dependencies lives in cmd/server.
func NewServer(
	cfg config.Config,
	db dbQuerier,
	websites *ingest.WebsiteCache,
	buffer *ingest.Buffer,
	salts *identity.SaltManager,
	analyticsEngine *analytics.Engine,
	sessionsEngine *sessionsx.Engine,
	funnelEngine *funnel.Engine,
	retentionEngine *retention.Engine,
	attributionEngine *attribution.Engine,
	hub *realtime.Hub,
) *Server {
	return &Server{
		cfg:         cfg,
		db:          db,
		websites:    websites,
		buffer:      buffer,
		salts:       salts,
		analytics:   analyticsEngine,
		sessions:    sessionsEngine,
		funnels:     funnelEngine,
		retention:   retentionEngine,
		attribution: attributionEngine,
		hub:         hub,
		perf:        middleware.NewPerformanceMonitor(perfMonitorWindow),
	}
}
