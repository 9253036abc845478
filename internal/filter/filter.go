// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
filter.go - Analytics Filter Compiler

Generalizes the teacher's WhereBuilder (internal/database/query/builder.go)
from a fixed set of location-stats dimensions into the shared compiler every
analytics package (F-K) uses: one body of filter-compilation code, one body
of tests, guaranteeing stats, time-series, breakdowns, funnels, attribution,
and retention apply dimension filters identically.
*/

package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// AnalyticsFilter carries the uniform set of dimension constraints spec
// §4.E documents. All fields are optional except StartDate/EndDate, which
// every caller is expected to have already validated.
type AnalyticsFilter struct {
	StartDate   string
	EndDate     string
	Timezone    string
	Country     string
	Page        string
	Referrer    string
	Browser     string
	OS          string
	Device      string
	Language    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Region      string
	City        string
	Hostname    string
	IncludeBots bool
}

var hostnameRegexp = regexp.MustCompile(`^[a-zA-Z]+://([^/]+)`)

// HostOf extracts the host portion of a URL the same way the compiled
// hostname predicate matches it in SQL, so callers can validate Hostname
// client-side with identical semantics.
func HostOf(url string) string {
	m := hostnameRegexp.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}

// Compile produces a WHERE fragment (always prefixed with " AND ", never
// including the leading "WHERE 1=1" base) plus the bound arguments, in the
// order the fragment references them. startParam is the 1-based index of
// the first placeholder Compile will use; it returns the next free index so
// callers can keep composing fragments (e.g. website_id, date range) without
// renumbering.
//
// page uses substring containment; hostname compares the regex-extracted
// host case-insensitively; every other dimension is exact equality;
// include_bots=false appends "AND <table>.is_bot = FALSE".
func Compile(table string, f AnalyticsFilter, startParam int) (string, []interface{}, int) {
	var clauses []string
	var args []interface{}
	n := startParam

	add := func(col, op string, val interface{}) {
		clauses = append(clauses, fmt.Sprintf("%s.%s %s ?", table, col, op))
		args = append(args, val)
		n++
	}

	if f.Country != "" {
		add("country", "=", f.Country)
	}
	if f.Page != "" {
		clauses = append(clauses, fmt.Sprintf("%s.url LIKE ?", table))
		args = append(args, "%"+f.Page+"%")
		n++
	}
	if f.Referrer != "" {
		add("referrer", "=", f.Referrer)
	}
	if f.Browser != "" {
		add("browser", "=", f.Browser)
	}
	if f.OS != "" {
		add("os", "=", f.OS)
	}
	if f.Device != "" {
		add("device_type", "=", f.Device)
	}
	if f.Language != "" {
		add("language", "=", f.Language)
	}
	if f.UTMSource != "" {
		add("utm_source", "=", f.UTMSource)
	}
	if f.UTMMedium != "" {
		add("utm_medium", "=", f.UTMMedium)
	}
	if f.UTMCampaign != "" {
		add("utm_campaign", "=", f.UTMCampaign)
	}
	if f.Region != "" {
		add("region", "=", f.Region)
	}
	if f.City != "" {
		add("city", "=", f.City)
	}
	if f.Hostname != "" {
		clauses = append(clauses, fmt.Sprintf("LOWER(regexp_extract(%s.url, '^[a-zA-Z]+://([^/]+)', 1)) = ?", table))
		args = append(args, strings.ToLower(f.Hostname))
		n++
	}
	if !f.IncludeBots {
		clauses = append(clauses, fmt.Sprintf("%s.is_bot = FALSE", table))
	}

	if len(clauses) == 0 {
		return "", args, n
	}
	return " AND " + strings.Join(clauses, " AND "), args, n
}

// IsEmpty reports whether the filter carries any dimension constraint
// beyond the date range/timezone/include_bots fields.
func (f AnalyticsFilter) IsEmpty() bool {
	return f.Country == "" && f.Page == "" && f.Referrer == "" && f.Browser == "" &&
		f.OS == "" && f.Device == "" && f.Language == "" && f.UTMSource == "" &&
		f.UTMMedium == "" && f.UTMCampaign == "" && f.Region == "" && f.City == "" && f.Hostname == ""
}
