// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
events.go - Event Batch Insert

Bulk event insertion used by the ingest buffer's flush path. All-or-nothing:
the whole batch commits or rolls back together, mirroring the teacher's
atomic-batch store pattern.
*/

package database

import (
	"context"
	"fmt"

	"github.com/sparklytics/engine/internal/models"
)

const insertEventSQL = `
INSERT INTO events (
	website_id, session_id, visitor_id, event_type, event_name, event_data,
	url, referrer, country, region, city, browser, os, device_type, screen,
	language, utm_source, utm_medium, utm_campaign, link_id, pixel_id,
	source_ip, user_agent, is_bot, bot_score, bot_reason, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertEventsBatch atomically inserts events inside a single transaction.
// On any failure the whole batch rolls back; the caller (the ingest buffer)
// decides whether to retry or spill.
func (db *DB) InsertEventsBatch(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return ClassifyError(fmt.Errorf("begin event batch transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		return ClassifyError(fmt.Errorf("prepare event insert: %w", err))
	}
	defer closeWithLog(stmt, nil, "event insert statement")

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.WebsiteID, e.SessionID, e.VisitorID, e.EventType, e.EventName, e.EventData,
			e.URL, e.Referrer, e.Country, e.Region, e.City, e.Browser, e.OS, e.DeviceType, e.Screen,
			e.Language, e.UTMSource, e.UTMMedium, e.UTMCampaign, e.LinkID, e.PixelID,
			e.SourceIP, e.UserAgent, e.IsBot, e.BotScore, e.BotReason, e.CreatedAt,
		); err != nil {
			return ClassifyError(fmt.Errorf("insert event: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return ClassifyError(fmt.Errorf("commit event batch: %w", err))
	}
	return nil
}
