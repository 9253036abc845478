// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
classify.go - Bot Classification

Deterministic, side-effect-free scoring exactly per spec §4.D: override
match first (block beats allow), then a weighted signal score, then policy
thresholding.
*/

package botclassify

import (
	"strings"

	"github.com/sparklytics/engine/internal/models"
)

// ClassifyInput carries everything the scorer needs from an incoming event.
type ClassifyInput struct {
	WebsiteID            int64
	VisitorID            string
	URL                  string
	UserAgent            string
	AcceptHeaderPresent  bool
	AcceptLanguagePresent bool
	SourceIP             string
}

// Classification is the outcome of Classify.
type Classification struct {
	IsBot  bool
	Score  int
	Reason string
}

const (
	weightKnownBotUA       = 60
	weightMissingAccept    = 15
	weightMissingAcceptLng = 15
	weightMissingBrowser   = 15
	weightAutomatedUA      = 10
	humanUAFloor           = -20
	strictLeniency         = 20
)

var knownBotSignatures = []string{
	"bot", "spider", "crawl", "slurp", "googlebot", "bingbot", "yandexbot",
	"duckduckbot", "baiduspider", "facebookexternalhit", "ahrefsbot",
	"semrushbot", "mj12bot", "dotbot", "petalbot",
}

var browserTokens = []string{"Chrome/", "Safari/", "Firefox/", "Edg/", "OPR/"}

var automatedPatterns = []string{
	"curl/", "wget/", "python-requests", "go-http-client", "java/", "okhttp",
	"headlesschrome", "phantomjs", "puppeteer", "playwright",
}

// Classify implements the scoring algorithm of spec §4.D. policy and
// overrides are looked up by the caller (via PolicyCache/OverrideCache) and
// passed in so Classify itself stays pure.
func Classify(in ClassifyInput, policy models.BotPolicy, overrides OverrideSet) Classification {
	if kind, ok := overrides.Match(in.UserAgent, in.SourceIP); ok {
		switch kind {
		case models.OverrideListBlock:
			return Classification{IsBot: true, Score: 100, Reason: "blocklist"}
		case models.OverrideListAllow:
			return Classification{IsBot: false, Score: 0, Reason: "allowlist"}
		}
	}

	score := 0
	reason := ""
	maxWeight := 0

	uaLower := strings.ToLower(in.UserAgent)
	for _, sig := range knownBotSignatures {
		if strings.Contains(uaLower, sig) {
			score += weightKnownBotUA
			if weightKnownBotUA > maxWeight {
				maxWeight = weightKnownBotUA
				reason = "ua_signature"
			}
			break
		}
	}

	if !in.AcceptHeaderPresent {
		score += weightMissingAccept
		if weightMissingAccept > maxWeight {
			maxWeight = weightMissingAccept
			reason = "missing_accept_header"
		}
	}
	if !in.AcceptLanguagePresent {
		score += weightMissingAcceptLng
		if weightMissingAcceptLng > maxWeight {
			maxWeight = weightMissingAcceptLng
			reason = "missing_accept_language"
		}
	}

	hasBrowserToken := false
	for _, tok := range browserTokens {
		if strings.Contains(in.UserAgent, tok) {
			hasBrowserToken = true
			break
		}
	}
	if !hasBrowserToken {
		score += weightMissingBrowser
		if weightMissingBrowser > maxWeight {
			maxWeight = weightMissingBrowser
			reason = "missing_browser_token"
		}
	}

	for _, pat := range automatedPatterns {
		if strings.Contains(uaLower, pat) || len(in.UserAgent) < 10 {
			score += weightAutomatedUA
			if weightAutomatedUA > maxWeight {
				maxWeight = weightAutomatedUA
				reason = "automated_pattern"
			}
			break
		}
	}

	if hasBrowserToken {
		score += humanUAFloor
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	isBot := applyPolicy(policy, score)
	if !isBot {
		reason = ""
	} else if reason == "" {
		reason = "heuristic_score"
	}

	return Classification{IsBot: isBot, Score: score, Reason: reason}
}

func applyPolicy(policy models.BotPolicy, score int) bool {
	switch policy.Mode {
	case models.BotPolicyModeOff:
		return false
	case models.BotPolicyModeStrict:
		return score >= policy.ThresholdScore-strictLeniency
	default: // balanced
		return score >= policy.ThresholdScore
	}
}
