// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
websitecache.go - Website Membership Cache

The admission gate's first check (spec §4.C) needs to know whether a
website_id exists without hitting storage on every event. WebsiteCache holds
the known set in memory and is updated in place via Upsert/Remove when a
website is created, renamed, or deleted, rather than going stale on a timer.
*/

package ingest

import (
	"sync"

	"github.com/sparklytics/engine/internal/metrics"
)

const cacheTypeWebsite = "website"

// WebsiteMeta is the subset of a website row the admission gate needs.
type WebsiteMeta struct {
	ID       int64
	Timezone string
}

// WebsiteCache is a thread-safe in-memory mirror of known websites.
type WebsiteCache struct {
	mu   sync.RWMutex
	byID map[int64]WebsiteMeta
}

// NewWebsiteCache returns an empty WebsiteCache.
func NewWebsiteCache() *WebsiteCache {
	return &WebsiteCache{byID: make(map[int64]WebsiteMeta)}
}

// Known reports whether websiteID is a recognized website.
func (c *WebsiteCache) Known(websiteID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byID[websiteID]
	if ok {
		metrics.CacheHits.WithLabelValues(cacheTypeWebsite).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(cacheTypeWebsite).Inc()
	}
	return ok
}

// Get returns the cached metadata for websiteID.
func (c *WebsiteCache) Get(websiteID int64) (WebsiteMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byID[websiteID]
	if ok {
		metrics.CacheHits.WithLabelValues(cacheTypeWebsite).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(cacheTypeWebsite).Inc()
	}
	return m, ok
}

// Load replaces the entire cache contents, used at startup and whenever a
// full resync is needed.
func (c *WebsiteCache) Load(all []WebsiteMeta) {
	byID := make(map[int64]WebsiteMeta, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}
	c.mu.Lock()
	c.byID = byID
	c.mu.Unlock()
	metrics.CacheSize.WithLabelValues(cacheTypeWebsite).Set(float64(len(byID)))
}

// Upsert adds or updates a single website entry, used when a website is
// created or renamed.
func (c *WebsiteCache) Upsert(m WebsiteMeta) {
	c.mu.Lock()
	c.byID[m.ID] = m
	size := len(c.byID)
	c.mu.Unlock()
	metrics.CacheSize.WithLabelValues(cacheTypeWebsite).Set(float64(size))
}

// Remove drops a website entry, used when a website is deleted.
func (c *WebsiteCache) Remove(websiteID int64) {
	c.mu.Lock()
	delete(c.byID, websiteID)
	size := len(c.byID)
	c.mu.Unlock()
	metrics.CacheSize.WithLabelValues(cacheTypeWebsite).Set(float64(size))
}
