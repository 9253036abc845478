// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package botclassify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sparklytics/engine/internal/models"
)

func balancedPolicy() models.BotPolicy {
	return models.BotPolicy{Mode: models.BotPolicyModeBalanced, ThresholdScore: 50}
}

func TestClassify_KnownBotUserAgentIsBot(t *testing.T) {
	in := ClassifyInput{
		UserAgent:             "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		AcceptHeaderPresent:   true,
		AcceptLanguagePresent: true,
	}
	c := Classify(in, balancedPolicy(), OverrideSet{})
	assert.True(t, c.IsBot)
	assert.Equal(t, "ua_signature", c.Reason)
}

func TestClassify_OrdinaryBrowserIsHuman(t *testing.T) {
	in := ClassifyInput{
		UserAgent:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
		AcceptHeaderPresent:   true,
		AcceptLanguagePresent: true,
	}
	c := Classify(in, balancedPolicy(), OverrideSet{})
	assert.False(t, c.IsBot)
}

func TestClassify_MissingHeadersRaisesScore(t *testing.T) {
	withHeaders := Classify(ClassifyInput{
		UserAgent: "Mozilla/5.0 Chrome/120.0 Safari/537.36", AcceptHeaderPresent: true, AcceptLanguagePresent: true,
	}, balancedPolicy(), OverrideSet{})
	withoutHeaders := Classify(ClassifyInput{
		UserAgent: "Mozilla/5.0 Chrome/120.0 Safari/537.36", AcceptHeaderPresent: false, AcceptLanguagePresent: false,
	}, balancedPolicy(), OverrideSet{})
	assert.Greater(t, withoutHeaders.Score, withHeaders.Score)
}

func TestClassify_PolicyOffNeverFlagsBot(t *testing.T) {
	c := Classify(ClassifyInput{UserAgent: "curl/8.0"}, models.BotPolicy{Mode: models.BotPolicyModeOff}, OverrideSet{})
	assert.False(t, c.IsBot)
}

func TestClassify_StrictModeIsMoreLenientThreshold(t *testing.T) {
	in := ClassifyInput{UserAgent: "wget/1.20.3", AcceptHeaderPresent: false, AcceptLanguagePresent: false}
	balanced := Classify(in, models.BotPolicy{Mode: models.BotPolicyModeBalanced, ThresholdScore: 70}, OverrideSet{})
	strict := Classify(in, models.BotPolicy{Mode: models.BotPolicyModeStrict, ThresholdScore: 70}, OverrideSet{})
	assert.False(t, balanced.IsBot)
	assert.True(t, strict.IsBot)
}

func TestClassify_BlockOverrideWinsOverAllow(t *testing.T) {
	overrides := CompileOverrides([]models.BotOverride{
		{ListKind: models.OverrideListAllow, MatchType: models.OverrideMatchIPExact, MatchValue: "9.9.9.9"},
		{ListKind: models.OverrideListBlock, MatchType: models.OverrideMatchIPExact, MatchValue: "9.9.9.9"},
	})
	c := Classify(ClassifyInput{UserAgent: "Mozilla/5.0 Chrome/120.0 Safari/537.36", SourceIP: "9.9.9.9", AcceptHeaderPresent: true, AcceptLanguagePresent: true}, balancedPolicy(), overrides)
	assert.True(t, c.IsBot)
	assert.Equal(t, "blocklist", c.Reason)
}

func TestClassify_AllowOverrideForcesHuman(t *testing.T) {
	overrides := CompileOverrides([]models.BotOverride{
		{ListKind: models.OverrideListAllow, MatchType: models.OverrideMatchUAContains, MatchValue: "internalmonitor"},
	})
	c := Classify(ClassifyInput{UserAgent: "InternalMonitor/1.0 bot-crawler"}, balancedPolicy(), overrides)
	assert.False(t, c.IsBot)
	assert.Equal(t, "allowlist", c.Reason)
}
