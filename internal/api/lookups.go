// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
lookups.go - Funnel/Goal Definition Lookups

Funnel and attribution-goal management (create/update/delete) is out of
scope per spec §6's external-interfaces list, but *running* a funnel or
goal by id is core (§4.E/§4.F), so this loads the definition rows the
funnel/attribution engines need straight off the funnels/funnel_steps/
goals tables.
*/

package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/models"
)

func (s *Server) loadFunnelSteps(ctx context.Context, websiteID, funnelID int64) ([]models.FunnelStep, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT website_id FROM funnels WHERE id = ?`, funnelID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "funnel not found")
	}
	if err != nil {
		return nil, err
	}
	if owner != websiteID {
		return nil, apperr.New(apperr.KindNotFound, "funnel not found")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, funnel_id, step_order, step_type, match_value, match_operator, COALESCE(label, '')
		FROM funnel_steps WHERE funnel_id = ? ORDER BY step_order ASC`, funnelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []models.FunnelStep
	for rows.Next() {
		var st models.FunnelStep
		if err := rows.Scan(&st.ID, &st.FunnelID, &st.StepOrder, &st.StepType, &st.MatchValue, &st.MatchOperator, &st.Label); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "funnel has no steps")
	}
	return steps, nil
}

func (s *Server) loadGoal(ctx context.Context, websiteID, goalID int64) (models.Goal, error) {
	var g models.Goal
	var fixedValue sql.NullFloat64
	var valuePropertyKey, currency sql.NullString

	row := s.db.QueryRowContext(ctx, `
		SELECT id, website_id, name, goal_type, match_value, match_operator, value_mode, fixed_value, value_property_key, currency
		FROM goals WHERE id = ?`, goalID)
	err := row.Scan(&g.ID, &g.WebsiteID, &g.Name, &g.GoalType, &g.MatchValue, &g.MatchOperator, &g.ValueMode, &fixedValue, &valuePropertyKey, &currency)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Goal{}, apperr.New(apperr.KindNotFound, "goal not found")
	}
	if err != nil {
		return models.Goal{}, err
	}
	if g.WebsiteID != websiteID {
		return models.Goal{}, apperr.New(apperr.KindNotFound, "goal not found")
	}
	if fixedValue.Valid {
		g.FixedValue = &fixedValue.Float64
	}
	g.ValuePropertyKey = valuePropertyKey.String
	g.Currency = currency.String
	return g, nil
}
