// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
funnel.go - Funnel Engine

Implements spec §4.I: given a funnel of K ordered steps (2-8) and a
filtered scope, computes how many sessions reached each step in order, as
a single query built from one CTE per step. A statement timeout bounds the
query and a global semaphore bounds concurrent executions, matching the
resource-protection shape the teacher's circuit breaker/rate limiter
components use elsewhere in the engine (internal/ingest/buffer.go,
internal/delivery) for the same "protect a shared resource from an
expensive or runaway caller" reason.
*/

package funnel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
	"github.com/sparklytics/engine/internal/metrics"
	"github.com/sparklytics/engine/internal/models"
)

const (
	MinSteps = 2
	MaxSteps = 8
)

// resolveDateRange parses f.StartDate/f.EndDate (YYYY-MM-DD) in f.Timezone
// (defaulting to UTC) into a half-open UTC instant range, mirroring
// internal/analytics's window resolution so funnel and stats never
// disagree about what "the window" means.
func resolveDateRange(f filter.AnalyticsFilter) (time.Time, time.Time, error) {
	tz := f.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Newf(apperr.KindInvalidTimezone, "unknown timezone %q", tz).WithField("timezone")
	}

	start, err := time.ParseInLocation("2006-01-02", f.StartDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Newf(apperr.KindBadRequest, "invalid start_date %q, expected YYYY-MM-DD", f.StartDate).WithField("start_date")
	}
	end, err := time.ParseInLocation("2006-01-02", f.EndDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Newf(apperr.KindBadRequest, "invalid end_date %q, expected YYYY-MM-DD", f.EndDate).WithField("end_date")
	}
	end = end.AddDate(0, 0, 1)

	if !end.After(start) {
		return time.Time{}, time.Time{}, apperr.New(apperr.KindBadRequest, "end_date must be on or after start_date").WithField("end_date")
	}

	return start.UTC(), end.UTC(), nil
}

// Querier is the subset of *sql.DB this package needs.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Engine bounds funnel query execution by a statement timeout, a global
// concurrency semaphore, and a circuit breaker so repeated timeouts trip
// fast-failure instead of queuing callers behind a degraded query, per
// spec §4.I and SPEC_FULL.md §4.I.
type Engine struct {
	db               Querier
	statementTimeout time.Duration
	sem              chan struct{}
	breaker          *gobreaker.CircuitBreaker[Result]
}

// New constructs a funnel Engine. maxConcurrent <= 0 disables the
// semaphore (unbounded concurrency).
func New(db Querier, statementTimeout time.Duration, maxConcurrent int) *Engine {
	e := &Engine{db: db, statementTimeout: statementTimeout}
	if maxConcurrent > 0 {
		e.sem = make(chan struct{}, maxConcurrent)
	}
	e.breaker = gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        "funnel-query",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return !apperr.Is(err, apperr.KindQueryTimeout) && !apperr.Is(err, apperr.KindInternal)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
	})
	return e
}

// StepResult is one funnel step's computed figures.
type StepResult struct {
	Label                       string
	SessionsReached             int64
	DropOffCount                int64
	ConversionRateFromStart     float64
	ConversionRateFromPrevious  float64
}

// Result is the full post-processed funnel computation.
type Result struct {
	Steps               []StepResult
	FinalConversionRate float64
}

// Run implements spec §4.I: the per-step CTE query plus the documented
// post-processing formulas.
func (e *Engine) Run(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, steps []models.FunnelStep) (Result, error) {
	if len(steps) < MinSteps || len(steps) > MaxSteps {
		return Result{}, apperr.Newf(apperr.KindBadRequest, "funnel must have between %d and %d steps", MinSteps, MaxSteps).WithField("steps")
	}

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		default:
			return Result{}, apperr.New(apperr.KindRateLimited, "too many concurrent funnel queries")
		}
	}

	result, err := e.breaker.Execute(func() (Result, error) {
		return e.run(ctx, websiteID, f, steps)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, apperr.New(apperr.KindRateLimited, "funnel query breaker is open after repeated timeouts")
		}
		return Result{}, err
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, websiteID int64, f filter.AnalyticsFilter, steps []models.FunnelStep) (Result, error) {
	query, args, err := buildFunnelQuery(websiteID, f, steps)
	if err != nil {
		return Result{}, err
	}

	queryCtx := ctx
	var cancel context.CancelFunc
	if e.statementTimeout > 0 {
		queryCtx, cancel = context.WithTimeout(ctx, e.statementTimeout)
		defer cancel()
	}

	counts := make([]int64, len(steps))
	scan := make([]interface{}, len(counts))
	for i := range counts {
		scan[i] = &counts[i]
	}

	row := e.db.QueryRowContext(queryCtx, query, args...)
	if err := row.Scan(scan...); err != nil {
		if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			return Result{}, apperr.New(apperr.KindQueryTimeout, "funnel query exceeded the statement timeout")
		}
		return Result{}, apperr.Wrap(apperr.KindInternal, err, "failed to compute funnel")
	}

	return postProcess(steps, counts), nil
}

func postProcess(steps []models.FunnelStep, counts []int64) Result {
	result := Result{Steps: make([]StepResult, len(steps))}

	for i, step := range steps {
		sr := StepResult{Label: step.Label, SessionsReached: counts[i]}

		if i < len(counts)-1 {
			dropoff := counts[i] - counts[i+1]
			if dropoff < 0 {
				dropoff = 0
			}
			sr.DropOffCount = dropoff
		}

		if counts[0] > 0 {
			sr.ConversionRateFromStart = float64(counts[i]) / float64(counts[0])
		}

		if i == 0 {
			if counts[0] > 0 {
				sr.ConversionRateFromPrevious = 1
			}
		} else if counts[i-1] > 0 {
			sr.ConversionRateFromPrevious = float64(counts[i]) / float64(counts[i-1])
		}

		result.Steps[i] = sr
	}

	if counts[0] > 0 {
		result.FinalConversionRate = float64(counts[len(counts)-1]) / float64(counts[0])
	}

	return result
}

func stepPredicate(alias string, step models.FunnelStep) (string, []interface{}) {
	var typeCol string
	switch step.StepType {
	case models.GoalTypePageView:
		typeCol = fmt.Sprintf("%s.event_type = 'pageview'", alias)
	default:
		typeCol = fmt.Sprintf("%s.event_type = 'event'", alias)
	}

	matchCol := "url"
	if step.StepType == models.GoalTypeEvent {
		matchCol = "event_name"
	}

	var valueCond string
	var args []interface{}
	switch step.MatchOperator {
	case models.MatchOperatorContains:
		valueCond = fmt.Sprintf("%s.%s LIKE ?", alias, matchCol)
		args = append(args, "%"+step.MatchValue+"%")
	default:
		valueCond = fmt.Sprintf("%s.%s = ?", alias, matchCol)
		args = append(args, step.MatchValue)
	}

	return fmt.Sprintf("%s AND %s", typeCol, valueCond), args
}

// buildFunnelQuery assembles the scoped_events CTE plus one step_k CTE per
// step, per spec §4.I's algorithm.
func buildFunnelQuery(websiteID int64, f filter.AnalyticsFilter, steps []models.FunnelStep) (string, []interface{}, error) {
	start, end, err := resolveDateRange(f)
	if err != nil {
		return "", nil, err
	}

	eventFilter, eventArgs, _ := filter.Compile("e", f, 1)

	var b strings.Builder
	var args []interface{}

	b.WriteString("WITH scoped_events AS (\n")
	b.WriteString("\tSELECT e.session_id, e.event_type, e.event_name, e.url, e.created_at\n")
	b.WriteString("\tFROM events e\n")
	b.WriteString("\tWHERE e.website_id = ? AND e.created_at >= ? AND e.created_at < ? ")
	b.WriteString(eventFilter)
	b.WriteString("\n)")
	args = append(args, websiteID, start, end)
	args = append(args, eventArgs...)

	for i, step := range steps {
		pred, predArgs := stepPredicate("se", step)
		b.WriteString(",\n")
		fmt.Fprintf(&b, "step_%d AS (\n", i+1)
		if i == 0 {
			b.WriteString("\tSELECT se.session_id, MIN(se.created_at) AS matched_at\n")
			b.WriteString("\tFROM scoped_events se\n")
			fmt.Fprintf(&b, "\tWHERE %s\n", pred)
			b.WriteString("\tGROUP BY se.session_id\n")
		} else {
			fmt.Fprintf(&b, "\tSELECT step_%d.session_id, MIN(se.created_at) AS matched_at\n", i)
			fmt.Fprintf(&b, "\tFROM step_%d\n", i)
			fmt.Fprintf(&b, "\tJOIN scoped_events se ON se.session_id = step_%d.session_id AND se.created_at > step_%d.matched_at\n", i, i)
			fmt.Fprintf(&b, "\tWHERE %s\n", pred)
			fmt.Fprintf(&b, "\tGROUP BY step_%d.session_id\n", i)
		}
		b.WriteString(")")
		args = append(args, predArgs...)
	}

	b.WriteString("\nSELECT ")
	for i := range steps {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(SELECT COUNT(*) FROM step_%d)", i+1)
	}
	b.WriteString(";")

	return b.String(), args, nil
}
