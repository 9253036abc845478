// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package botclassify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sparklytics/engine/internal/models"
)

func TestPolicyCache_GetFallsBackToDefault(t *testing.T) {
	c := NewPolicyCache()
	p := c.Get(42)
	assert.Equal(t, models.BotPolicyModeBalanced, p.Mode)
}

func TestPolicyCache_SetThenInvalidate(t *testing.T) {
	c := NewPolicyCache()
	c.Set(1, models.BotPolicy{Mode: models.BotPolicyModeStrict, ThresholdScore: 90})
	assert.Equal(t, models.BotPolicyModeStrict, c.Get(1).Mode)

	c.Invalidate(1)
	assert.Equal(t, models.BotPolicyModeBalanced, c.Get(1).Mode)
}

func TestOverrideCache_SetThenInvalidate(t *testing.T) {
	c := NewOverrideCache()
	set := CompileOverrides([]models.BotOverride{
		{ListKind: models.OverrideListBlock, MatchType: models.OverrideMatchIPExact, MatchValue: "1.2.3.4"},
	})
	c.Set(7, set)
	_, ok := c.Get(7).Match("ua", "1.2.3.4")
	assert.True(t, ok)

	c.Invalidate(7)
	_, ok = c.Get(7).Match("ua", "1.2.3.4")
	assert.False(t, ok)
}
