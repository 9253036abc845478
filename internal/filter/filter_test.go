// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompile_Empty(t *testing.T) {
	sql, args, next := Compile("e", AnalyticsFilter{IncludeBots: true}, 1)
	assert.Equal(t, "", sql)
	assert.Empty(t, args)
	assert.Equal(t, 1, next)
}

func TestCompile_ExcludeBotsAppendsClause(t *testing.T) {
	sql, args, next := Compile("e", AnalyticsFilter{}, 1)
	assert.Contains(t, sql, "e.is_bot = FALSE")
	assert.Empty(t, args)
	assert.Equal(t, 1, next)
}

func TestCompile_PageUsesSubstring(t *testing.T) {
	sql, args, _ := Compile("e", AnalyticsFilter{Page: "/pricing", IncludeBots: true}, 1)
	assert.Contains(t, sql, "e.url LIKE ?")
	assert.Equal(t, []interface{}{"%/pricing%"}, args)
}

func TestCompile_EqualityDimensionsBindInOrder(t *testing.T) {
	f := AnalyticsFilter{
		Country:     "US",
		Browser:     "Chrome",
		UTMSource:   "google",
		IncludeBots: true,
	}
	sql, args, next := Compile("e", f, 5)
	assert.Contains(t, sql, "e.country = ?")
	assert.Contains(t, sql, "e.browser = ?")
	assert.Contains(t, sql, "e.utm_source = ?")
	assert.Equal(t, []interface{}{"US", "Chrome", "google"}, args)
	assert.Equal(t, 8, next)
}

func TestCompile_HostnameLowercasesAndExtracts(t *testing.T) {
	sql, args, _ := Compile("e", AnalyticsFilter{Hostname: "Example.COM", IncludeBots: true}, 1)
	assert.Contains(t, sql, "regexp_extract")
	assert.Equal(t, []interface{}{"example.com"}, args)
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", HostOf("https://Example.com/path?x=1"))
	assert.Equal(t, "", HostOf("not-a-url"))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, AnalyticsFilter{}.IsEmpty())
	assert.False(t, AnalyticsFilter{Country: "US"}.IsEmpty())
}
