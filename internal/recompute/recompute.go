// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
recompute.go - Bot Recompute Worker

Implements spec §4.M: Start refuses a second concurrent run per website,
then a single supervised Worker (one per process, wired into the
"recompute" branch of the supervisor tree) polls for queued runs and
processes them one at a time - cursor-walking events in (created_at, id)
order, batch size 500, reclassifying each against the *current* bot
policy and overrides, then recomputing the rollup of every session whose
events were touched.

Event rows don't persist the raw Accept/Accept-Language header presence
botclassify.ClassifyInput wants (only their derived Browser/Language
values survive ingest), so reclassification approximates
AcceptHeaderPresent as "a browser token was identified" and
AcceptLanguagePresent as "a language was recorded" - the closest
available proxy for signals the schema doesn't keep per spec §3.
*/

package recompute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/botclassify"
	"github.com/sparklytics/engine/internal/logging"
	"github.com/sparklytics/engine/internal/metrics"
	"github.com/sparklytics/engine/internal/models"
)

// DB is the subset of *database.DB this package needs. Kept as an
// interface so tests can exercise it against a plain *sql.DB.
type DB interface {
	Conn() *sql.DB
	WriteLock() *sync.Mutex
}

// Worker is the supervised recompute service: Start enqueues a run, Serve
// drains the queue one run at a time.
type Worker struct {
	db        DB
	batchSize int
	staleness time.Duration
	sweepEvery time.Duration

	policies  *botclassify.PolicyCache
	overrides *botclassify.OverrideCache
}

// New constructs a Worker. policies/overrides are the same caches the
// ingest hot path reads from, kept in sync by whatever mutates
// bot_policies/bot_overrides; recompute reloads straight from storage for
// each run instead of trusting the cache, since a stale policy would
// silently defeat the whole point of a recompute.
func New(db DB, batchSize int, staleness, sweepEvery time.Duration) *Worker {
	return &Worker{
		db:         db,
		batchSize:  batchSize,
		staleness:  staleness,
		sweepEvery: sweepEvery,
		policies:   botclassify.NewPolicyCache(),
		overrides:  botclassify.NewOverrideCache(),
	}
}

// Start implements spec §4.M's entry point: refuses if an active run
// already exists for the website, else inserts a queued run for the
// Worker's Serve loop to pick up.
func (w *Worker) Start(ctx context.Context, websiteID int64, startDate, endDate time.Time) (models.RecomputeRun, error) {
	w.db.WriteLock().Lock()
	defer w.db.WriteLock().Unlock()

	var active int
	err := w.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recompute_runs WHERE website_id = ? AND status IN ('queued', 'running')`,
		websiteID,
	).Scan(&active)
	if err != nil {
		return models.RecomputeRun{}, apperr.Wrap(apperr.KindInternal, err, "failed to check for an active recompute run")
	}
	if active > 0 {
		return models.RecomputeRun{}, apperr.New(apperr.KindConflict, "a recompute run is already queued or running for this website")
	}

	var run models.RecomputeRun
	err = w.db.Conn().QueryRowContext(ctx,
		`INSERT INTO recompute_runs (website_id, start_date, end_date, status)
		 VALUES (?, ?, ?, 'queued')
		 RETURNING id, website_id, start_date, end_date, status, created_at`,
		websiteID, startDate, endDate,
	).Scan(&run.ID, &run.WebsiteID, &run.StartDate, &run.EndDate, &run.Status, &run.CreatedAt)
	if err != nil {
		return models.RecomputeRun{}, apperr.Wrap(apperr.KindInternal, err, "failed to enqueue recompute run")
	}
	return run, nil
}

// Serve implements suture.Service: poll for queued runs, process one at a
// time, and periodically sweep orphaned runs.
func (w *Worker) Serve(ctx context.Context) error {
	w.sweepOrphans(ctx)

	pollTicker := time.NewTicker(2 * time.Second)
	defer pollTicker.Stop()
	sweepTicker := time.NewTicker(w.sweepEvery)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweepTicker.C:
			w.sweepOrphans(ctx)
		case <-pollTicker.C:
			w.processNext(ctx)
		}
	}
}

// sweepOrphans implements spec §4.M's startup sweep: runs stuck `running`
// past the staleness threshold transition to `failed`/"orphaned".
func (w *Worker) sweepOrphans(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.staleness)

	w.db.WriteLock().Lock()
	res, err := w.db.Conn().ExecContext(ctx,
		`UPDATE recompute_runs
		 SET status = 'failed', error_message = 'orphaned', completed_at = CURRENT_TIMESTAMP
		 WHERE status = 'running' AND started_at < ?`,
		cutoff,
	)
	w.db.WriteLock().Unlock()
	if err != nil {
		logging.Error().Err(err).Msg("recompute: failed to sweep orphaned runs")
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Warn().Int64("count", n).Msg("recompute: marked orphaned runs as failed")
	}
}

func (w *Worker) processNext(ctx context.Context) {
	run, ok, err := w.claimNext(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("recompute: failed to claim next run")
		return
	}
	if !ok {
		return
	}

	logging.Info().Int64("run_id", run.ID).Int64("website_id", run.WebsiteID).Msg("recompute: run started")

	start := time.Now()
	err = w.runOne(ctx, run)
	metrics.RecordRecomputeJob(time.Since(start), err)
	if err != nil {
		logging.Error().Err(err).Int64("run_id", run.ID).Msg("recompute: run failed")
		w.finish(ctx, run.ID, models.RecomputeStatusFailed, err.Error())
		return
	}
	w.finish(ctx, run.ID, models.RecomputeStatusSuccess, "")
	logging.Info().Int64("run_id", run.ID).Msg("recompute: run completed")
}

func (w *Worker) claimNext(ctx context.Context) (models.RecomputeRun, bool, error) {
	w.db.WriteLock().Lock()
	defer w.db.WriteLock().Unlock()

	var run models.RecomputeRun
	err := w.db.Conn().QueryRowContext(ctx,
		`SELECT id, website_id, start_date, end_date FROM recompute_runs
		 WHERE status = 'queued' ORDER BY created_at LIMIT 1`,
	).Scan(&run.ID, &run.WebsiteID, &run.StartDate, &run.EndDate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RecomputeRun{}, false, nil
	}
	if err != nil {
		return models.RecomputeRun{}, false, err
	}

	_, err = w.db.Conn().ExecContext(ctx,
		`UPDATE recompute_runs SET status = 'running', started_at = CURRENT_TIMESTAMP WHERE id = ?`,
		run.ID,
	)
	if err != nil {
		return models.RecomputeRun{}, false, err
	}
	run.Status = models.RecomputeStatusRunning
	return run, true, nil
}

func (w *Worker) finish(ctx context.Context, runID int64, status models.RecomputeStatus, errMsg string) {
	w.db.WriteLock().Lock()
	defer w.db.WriteLock().Unlock()

	_, err := w.db.Conn().ExecContext(ctx,
		`UPDATE recompute_runs SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, errMsg, runID,
	)
	if err != nil {
		logging.Error().Err(err).Int64("run_id", runID).Msg("recompute: failed to record run completion")
	}
}

type eventRow struct {
	id        int64
	websiteID int64
	sessionID string
	visitorID string
	url       string
	userAgent string
	sourceIP  string
	language  string
	browser   string
	isBot     bool
	botScore  int
	botReason string
	createdAt time.Time
}

func (w *Worker) runOne(ctx context.Context, run models.RecomputeRun) error {
	policy, err := w.loadPolicy(ctx, run.WebsiteID)
	if err != nil {
		return fmt.Errorf("load bot policy: %w", err)
	}
	overrides, err := w.loadOverrides(ctx, run.WebsiteID)
	if err != nil {
		return fmt.Errorf("load bot overrides: %w", err)
	}

	touchedSessions := make(map[string]bool)

	var lastCreatedAt time.Time
	var lastID int64
	end := run.EndDate.AddDate(0, 0, 1)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := w.fetchBatch(ctx, run.WebsiteID, run.StartDate, end, lastCreatedAt, lastID)
		if err != nil {
			return fmt.Errorf("fetch event batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := w.reclassifyBatch(ctx, batch, policy, overrides, touchedSessions); err != nil {
			return fmt.Errorf("reclassify batch: %w", err)
		}

		last := batch[len(batch)-1]
		lastCreatedAt, lastID = last.createdAt, last.id

		if len(batch) < w.batchSize {
			break
		}
	}

	for sessionID := range touchedSessions {
		if err := w.recomputeSessionRollup(ctx, sessionID); err != nil {
			return fmt.Errorf("recompute session rollup %s: %w", sessionID, err)
		}
	}

	return nil
}

func (w *Worker) loadPolicy(ctx context.Context, websiteID int64) (models.BotPolicy, error) {
	policy := models.BotPolicy{Mode: models.BotPolicyModeBalanced, ThresholdScore: 70, WebsiteID: websiteID}
	err := w.db.Conn().QueryRowContext(ctx,
		`SELECT mode, threshold_score, updated_at FROM bot_policies WHERE website_id = ?`, websiteID,
	).Scan(&policy.Mode, &policy.ThresholdScore, &policy.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return policy, nil
	}
	if err != nil {
		return models.BotPolicy{}, err
	}
	return policy, nil
}

func (w *Worker) loadOverrides(ctx context.Context, websiteID int64) (botclassify.OverrideSet, error) {
	rows, err := w.db.Conn().QueryContext(ctx,
		`SELECT id, website_id, list_kind, match_type, match_value, note, created_at
		 FROM bot_overrides WHERE website_id = ?`, websiteID)
	if err != nil {
		return botclassify.OverrideSet{}, err
	}
	defer rows.Close()

	var overrides []models.BotOverride
	for rows.Next() {
		var o models.BotOverride
		if err := rows.Scan(&o.ID, &o.WebsiteID, &o.ListKind, &o.MatchType, &o.MatchValue, &o.Note, &o.CreatedAt); err != nil {
			return botclassify.OverrideSet{}, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return botclassify.OverrideSet{}, err
	}
	return botclassify.CompileOverrides(overrides), nil
}

func (w *Worker) fetchBatch(ctx context.Context, websiteID int64, start, end, lastCreatedAt time.Time, lastID int64) ([]eventRow, error) {
	rows, err := w.db.Conn().QueryContext(ctx,
		`SELECT id, website_id, session_id, visitor_id, url, COALESCE(user_agent, ''), COALESCE(source_ip, ''),
		        COALESCE(language, ''), COALESCE(browser, ''), is_bot, bot_score, COALESCE(bot_reason, ''), created_at
		 FROM events
		 WHERE website_id = ? AND created_at >= ? AND created_at < ?
		   AND (created_at > ? OR (created_at = ? AND id > ?))
		 ORDER BY created_at, id
		 LIMIT ?`,
		websiteID, start, end, lastCreatedAt, lastCreatedAt, lastID, w.batchSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eventRow
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.id, &r.websiteID, &r.sessionID, &r.visitorID, &r.url, &r.userAgent,
			&r.sourceIP, &r.language, &r.browser, &r.isBot, &r.botScore, &r.botReason, &r.createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (w *Worker) reclassifyBatch(ctx context.Context, batch []eventRow, policy models.BotPolicy, overrides botclassify.OverrideSet, touchedSessions map[string]bool) error {
	w.db.WriteLock().Lock()
	defer w.db.WriteLock().Unlock()

	tx, err := w.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE events SET is_bot = ?, bot_score = ?, bot_reason = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		touchedSessions[r.sessionID] = true

		classification := botclassify.Classify(botclassify.ClassifyInput{
			WebsiteID:             r.websiteID,
			VisitorID:             r.visitorID,
			URL:                   r.url,
			UserAgent:             r.userAgent,
			AcceptHeaderPresent:   r.browser != "",
			AcceptLanguagePresent: r.language != "",
			SourceIP:              r.sourceIP,
		}, policy, overrides)

		if classification.IsBot == r.isBot && classification.Score == r.botScore && classification.Reason == r.botReason {
			continue
		}
		if _, err := stmt.ExecContext(ctx, classification.IsBot, classification.Score, classification.Reason, r.id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// recomputeSessionRollup implements spec §4.M's rollup formula: is_bot is
// true if any event in the session is a bot, bot_score is the max across
// the session's events, and bot_reason is the reason attached to whichever
// event holds that max score.
func (w *Worker) recomputeSessionRollup(ctx context.Context, sessionID string) error {
	rows, err := w.db.Conn().QueryContext(ctx,
		`SELECT is_bot, bot_score, COALESCE(bot_reason, '') FROM events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return err
	}

	var anyBot bool
	var maxScore int
	var maxReason string
	found := false
	for rows.Next() {
		var isBot bool
		var score int
		var reason string
		if err := rows.Scan(&isBot, &score, &reason); err != nil {
			rows.Close()
			return err
		}
		anyBot = anyBot || isBot
		if !found || score > maxScore {
			maxScore = score
			maxReason = reason
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	w.db.WriteLock().Lock()
	defer w.db.WriteLock().Unlock()

	_, err = w.db.Conn().ExecContext(ctx,
		`UPDATE sessions SET is_bot = ?, bot_score = ?, bot_reason = ? WHERE session_id = ?`,
		anyBot, maxScore, maxReason, sessionID,
	)
	return err
}
