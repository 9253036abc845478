// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
caches.go - Policy and Override Caches

Per-website caches for bot policy and compiled override rules, generalizing
the database package's version-stamped tile cache to two cache kinds that
never expire on a timer: they are only ever stale between a mutation and its
explicit Invalidate call.
*/

package botclassify

import (
	"sync"

	"github.com/sparklytics/engine/internal/models"
)

var defaultPolicy = models.BotPolicy{
	Mode:           models.BotPolicyModeBalanced,
	ThresholdScore: 50,
}

// PolicyCache holds each website's current bot policy in memory so the hot
// ingest path never hits storage per event.
type PolicyCache struct {
	mu       sync.RWMutex
	policies map[int64]models.BotPolicy
}

// NewPolicyCache returns an empty PolicyCache.
func NewPolicyCache() *PolicyCache {
	return &PolicyCache{policies: make(map[int64]models.BotPolicy)}
}

// Get returns the cached policy for websiteID, falling back to the balanced
// default when none has been loaded yet.
func (c *PolicyCache) Get(websiteID int64) models.BotPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.policies[websiteID]; ok {
		return p
	}
	return defaultPolicy
}

// Set stores or replaces the policy for a website.
func (c *PolicyCache) Set(websiteID int64, policy models.BotPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[websiteID] = policy
}

// Invalidate drops the cached policy for a website so the next Get reflects
// the default until Set is called again with the refreshed row.
func (c *PolicyCache) Invalidate(websiteID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.policies, websiteID)
}

// OverrideCache holds each website's compiled allow/block override set.
type OverrideCache struct {
	mu        sync.RWMutex
	overrides map[int64]OverrideSet
}

// NewOverrideCache returns an empty OverrideCache.
func NewOverrideCache() *OverrideCache {
	return &OverrideCache{overrides: make(map[int64]OverrideSet)}
}

// Get returns the compiled override set for websiteID, or an empty set if
// none has been loaded.
func (c *OverrideCache) Get(websiteID int64) OverrideSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overrides[websiteID]
}

// Set stores or replaces the compiled override set for a website.
func (c *OverrideCache) Set(websiteID int64, set OverrideSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[websiteID] = set
}

// Invalidate drops the cached override set for a website, forcing callers to
// recompile from storage on next use.
func (c *OverrideCache) Invalidate(websiteID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overrides, websiteID)
}
