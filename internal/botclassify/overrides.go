// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package botclassify

import (
	"net/netip"
	"strings"

	"github.com/sparklytics/engine/internal/models"
)

// OverrideSet is the compiled set of allow/block rules for one website,
// ready for fast matching against an incoming request. Block rules are
// checked before allow rules so an operator can always force-block a
// specific IP even if a looser allow rule would otherwise match.
type OverrideSet struct {
	blocks []compiledOverride
	allows []compiledOverride
}

type compiledOverride struct {
	matchType models.OverrideMatchType
	uaNeedle  string
	exactIP   netip.Addr
	cidr      netip.Prefix
}

// CompileOverrides turns stored BotOverride rows into an OverrideSet. Rows
// with an unparsable MatchValue are skipped rather than rejected, since a
// single bad row must not block classification for the rest of the website.
func CompileOverrides(rows []models.BotOverride) OverrideSet {
	var set OverrideSet
	for _, row := range rows {
		co, ok := compileOne(row)
		if !ok {
			continue
		}
		if row.ListKind == models.OverrideListBlock {
			set.blocks = append(set.blocks, co)
		} else {
			set.allows = append(set.allows, co)
		}
	}
	return set
}

func compileOne(row models.BotOverride) (compiledOverride, bool) {
	co := compiledOverride{matchType: row.MatchType}
	switch row.MatchType {
	case models.OverrideMatchUAContains:
		co.uaNeedle = strings.ToLower(row.MatchValue)
		return co, co.uaNeedle != ""
	case models.OverrideMatchIPExact:
		addr, err := netip.ParseAddr(row.MatchValue)
		if err != nil {
			return co, false
		}
		co.exactIP = addr
		return co, true
	case models.OverrideMatchIPCIDR:
		prefix, err := netip.ParsePrefix(row.MatchValue)
		if err != nil {
			return co, false
		}
		co.cidr = prefix
		return co, true
	default:
		return co, false
	}
}

// Match reports whether userAgent/sourceIP hits a compiled block or allow
// rule, and which list kind matched. Block always takes precedence.
func (s OverrideSet) Match(userAgent, sourceIP string) (models.OverrideListKind, bool) {
	if matchAny(s.blocks, userAgent, sourceIP) {
		return models.OverrideListBlock, true
	}
	if matchAny(s.allows, userAgent, sourceIP) {
		return models.OverrideListAllow, true
	}
	return "", false
}

func matchAny(rules []compiledOverride, userAgent, sourceIP string) bool {
	var addr netip.Addr
	addrOK := false
	if parsed, err := netip.ParseAddr(sourceIP); err == nil {
		addr, addrOK = parsed, true
	}

	uaLower := strings.ToLower(userAgent)
	for _, r := range rules {
		switch r.matchType {
		case models.OverrideMatchUAContains:
			if strings.Contains(uaLower, r.uaNeedle) {
				return true
			}
		case models.OverrideMatchIPExact:
			if addrOK && addr == r.exactIP {
				return true
			}
		case models.OverrideMatchIPCIDR:
			if addrOK && r.cidr.Contains(addr) {
				return true
			}
		}
	}
	return false
}
