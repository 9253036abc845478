// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
params.go - Query String Parsing

Every analytics query endpoint shares the filter query string spec §6
documents: start_date, end_date (YYYY-MM-DD), timezone (IANA),
filter_<dimension>, include_bots. This file is the one place that string
is turned into a filter.AnalyticsFilter, so every endpoint parses it
identically.
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/filter"
)

const defaultWindowDays = 7

// parseFilter builds a filter.AnalyticsFilter from a request's query
// string. Missing start_date/end_date default to the trailing
// defaultWindowDays days in UTC, so a dashboard can omit them on first load.
func parseFilter(r *http.Request) (filter.AnalyticsFilter, error) {
	q := r.URL.Query()

	f := filter.AnalyticsFilter{
		StartDate:   q.Get("start_date"),
		EndDate:     q.Get("end_date"),
		Timezone:    q.Get("timezone"),
		Country:     q.Get("filter_country"),
		Page:        q.Get("filter_page"),
		Referrer:    q.Get("filter_referrer"),
		Browser:     q.Get("filter_browser"),
		OS:          q.Get("filter_os"),
		Device:      q.Get("filter_device"),
		Language:    q.Get("filter_language"),
		UTMSource:   q.Get("filter_utm_source"),
		UTMMedium:   q.Get("filter_utm_medium"),
		UTMCampaign: q.Get("filter_utm_campaign"),
		Region:      q.Get("filter_region"),
		City:        q.Get("filter_city"),
		Hostname:    q.Get("filter_hostname"),
	}

	if f.StartDate == "" && f.EndDate == "" {
		now := time.Now().UTC()
		f.StartDate = now.AddDate(0, 0, -defaultWindowDays).Format("2006-01-02")
		f.EndDate = now.Format("2006-01-02")
	}

	if raw := q.Get("include_bots"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return filter.AnalyticsFilter{}, apperr.New(apperr.KindBadRequest, "include_bots must be a boolean").WithField("include_bots")
		}
		f.IncludeBots = b
	}

	return f, nil
}

// parseWebsiteID reads the required website_id query parameter.
func parseWebsiteID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("website_id")
	if raw == "" {
		return 0, apperr.New(apperr.KindBadRequest, "website_id is required").WithField("website_id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindBadRequest, "website_id must be a positive integer").WithField("website_id")
	}
	return id, nil
}

// parseLimit reads an optional limit query parameter, falling back to def
// when absent. Out-of-range clamping is left to the callee: sessionsx clamps
// internally, while analytics Breakdown uses the value as given.
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// parseOffset reads an optional offset query parameter, defaulting to 0.
func parseOffset(r *http.Request) int {
	raw := r.URL.Query().Get("offset")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseInt64Param reads a required int64 path/query value, used for
// funnel_id/goal_id lookups.
func parseInt64Param(raw, field string) (int64, error) {
	if raw == "" {
		return 0, apperr.Newf(apperr.KindBadRequest, "%s is required", field).WithField(field)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.KindBadRequest, "%s must be a positive integer", field).WithField(field)
	}
	return id, nil
}
