// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package botclassify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sparklytics/engine/internal/models"
)

func TestCompileOverrides_SkipsUnparsableRows(t *testing.T) {
	set := CompileOverrides([]models.BotOverride{
		{ListKind: models.OverrideListBlock, MatchType: models.OverrideMatchIPExact, MatchValue: "not-an-ip"},
		{ListKind: models.OverrideListBlock, MatchType: models.OverrideMatchIPCIDR, MatchValue: "also-not-a-cidr"},
	})
	_, ok := set.Match("any-agent", "1.2.3.4")
	assert.False(t, ok)
}

func TestOverrideSet_CIDRMatch(t *testing.T) {
	set := CompileOverrides([]models.BotOverride{
		{ListKind: models.OverrideListBlock, MatchType: models.OverrideMatchIPCIDR, MatchValue: "10.0.0.0/8"},
	})
	kind, ok := set.Match("anything", "10.1.2.3")
	assert.True(t, ok)
	assert.Equal(t, models.OverrideListBlock, kind)

	_, ok = set.Match("anything", "192.168.1.1")
	assert.False(t, ok)
}

func TestOverrideSet_UAContainsIsCaseInsensitive(t *testing.T) {
	set := CompileOverrides([]models.BotOverride{
		{ListKind: models.OverrideListAllow, MatchType: models.OverrideMatchUAContains, MatchValue: "HealthCheck"},
	})
	kind, ok := set.Match("internal-healthcheck/1.0", "1.2.3.4")
	assert.True(t, ok)
	assert.Equal(t, models.OverrideListAllow, kind)
}
