// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package main is the entry point for the Sparklytics server.
//
// Sparklytics is a self-hostable, privacy-respecting web analytics engine:
// a single binary that accepts pageview/event beacons, resolves sessions
// and visitor identity from rotating salted fingerprints rather than
// cookies, classifies bot traffic, and serves dashboards (stats, funnels,
// retention cohorts, attribution, realtime) over a thin JSON API.
//
// # Application architecture
//
// main wires every engine package into a four-branch suture supervisor
// tree (ingest / scheduler / recompute / realtime) and runs the thin
// internal/api HTTP server alongside it, shutting both down together on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sparklytics/engine/internal/analytics"
	"github.com/sparklytics/engine/internal/api"
	"github.com/sparklytics/engine/internal/attribution"
	"github.com/sparklytics/engine/internal/config"
	"github.com/sparklytics/engine/internal/database"
	"github.com/sparklytics/engine/internal/delivery"
	"github.com/sparklytics/engine/internal/funnel"
	"github.com/sparklytics/engine/internal/identity"
	"github.com/sparklytics/engine/internal/ingest"
	"github.com/sparklytics/engine/internal/ingest/spillwal"
	"github.com/sparklytics/engine/internal/logging"
	"github.com/sparklytics/engine/internal/models"
	"github.com/sparklytics/engine/internal/realtime"
	"github.com/sparklytics/engine/internal/recompute"
	"github.com/sparklytics/engine/internal/retention"
	"github.com/sparklytics/engine/internal/scheduler"
	"github.com/sparklytics/engine/internal/sessionsx"
	"github.com/sparklytics/engine/internal/supervisor"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("starting sparklytics with supervisor tree")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	salts, err := identity.NewSaltManager(cfg.Identity.SaltGracePeriod)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize salt manager")
	}
	rotation := identity.NewRotationService(salts)
	sessions := identity.NewSessionManager(db, cfg.Identity.SessionIdleWindow)

	websites := ingest.NewWebsiteCache()
	if err := loadWebsites(ctx, db, websites); err != nil {
		logging.Fatal().Err(err).Msg("failed to load websites into cache")
	}

	limiter := ingest.NewIPRateLimiter(cfg.Ingest.RateLimitPerMinute)

	var spill *spillwal.WAL
	if cfg.Ingest.SpillWALPath != "" {
		spill, err = spillwal.Open(cfg.Ingest.SpillWALPath)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to open spill WAL, continuing without one")
		}
	}

	buffer := ingest.NewBuffer(cfg.Ingest, websites, limiter, sessions, db, spill)

	analyticsEngine := analytics.New(db.Conn())
	sessionsEngine := sessionsx.New(db.Conn())
	funnelEngine := funnel.New(db.Conn(), cfg.Funnel.StatementTimeout, cfg.Funnel.MaxConcurrent)
	retentionEngine := retention.New(db.Conn(), cfg.Retention.StatementTimeout)
	attributionEngine := attribution.New(db.Conn(), cfg.Attribution.StatementTimeout)

	recomputeWorker := recompute.New(db, cfg.Recompute.BatchSize, cfg.Recompute.StalenessThreshold, cfg.Recompute.StartupSweepInterval)

	deliveryChannels := []models.DeliveryChannel{models.ChannelEmail, models.ChannelWebhook}
	registry := delivery.NewRegistry(
		delivery.NewEmailChannel(delivery.EmailConfig{
			Host:     cfg.Delivery.SMTPHost,
			Port:     cfg.Delivery.SMTPPort,
			Username: cfg.Delivery.SMTPUsername,
			Password: cfg.Delivery.SMTPPassword,
			From:     cfg.Delivery.SMTPFrom,
			UseTLS:   cfg.Delivery.SMTPUseTLS,
			Noop:     cfg.Delivery.SMTPNoop,
		}),
		delivery.NewWebhookChannel(cfg.Delivery.WebhookTimeout),
	)
	deliveries := delivery.NewManager(db, registry, deliveryChannels...)

	subscriptionsLoop := scheduler.NewSubscriptionsLoop(db, analyticsEngine, deliveries, cfg.Scheduler.TickInterval, cfg.Scheduler.MaxSubscriptionsPerTick)
	alertsLoop := scheduler.NewAlertsLoop(db, deliveries, cfg.Scheduler.TickInterval, cfg.Scheduler.MaxSubscriptionsPerTick)

	hub := realtime.NewHub()

	treeLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(treeLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	tree.AddIngestService(buffer)
	tree.AddIngestService(rotation)
	tree.AddSchedulerService(subscriptionsLoop)
	tree.AddSchedulerService(alertsLoop)
	tree.AddRecomputeService(recomputeWorker)
	tree.AddRealtimeService(hub)

	server := api.NewServer(*cfg, db.Conn(), websites, buffer, salts, analyticsEngine, sessionsEngine, funnelEngine, retentionEngine, attributionEngine, hub)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	httpSvc := newHTTPServerService(httpServer, 10*time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", httpServer.Addr).Msg("starting supervisor tree")
	treeErrCh := tree.ServeBackground(ctx)

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- httpSvc.Serve(ctx) }()

	httpDone := false
	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for services to finish")
	case err := <-treeErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
		cancel()
	case err := <-httpErrCh:
		httpDone = true
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("http server error")
		}
		cancel()
	}

	if !httpDone {
		if err := <-httpErrCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("http server shutdown error")
		}
	}

	for err := range treeErrCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("sparklytics stopped gracefully")
}

func loadWebsites(ctx context.Context, db *database.DB, cache *ingest.WebsiteCache) error {
	rows, err := db.Conn().QueryContext(ctx, `SELECT id, timezone FROM websites`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var all []ingest.WebsiteMeta
	for rows.Next() {
		var m ingest.WebsiteMeta
		if err := rows.Scan(&m.ID, &m.Timezone); err != nil {
			return err
		}
		all = append(all, m)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cache.Load(all)
	return nil
}
