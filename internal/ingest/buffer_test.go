// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/config"
)

func testBuffer(cfg config.IngestConfig, websites *WebsiteCache) *Buffer {
	if websites == nil {
		websites = NewWebsiteCache()
		websites.Upsert(WebsiteMeta{ID: 1})
	}
	limiter := NewIPRateLimiter(cfg.RateLimitPerMinute)
	return NewBuffer(cfg, websites, limiter, nil, nil, nil)
}

func TestOffer_UnknownWebsiteRejected(t *testing.T) {
	cfg := config.IngestConfig{BufferMaxSize: 1000, MaxEventDataBytes: 4096, MaxURLBytes: 2048, RateLimitDisable: true}
	b := testBuffer(cfg, NewWebsiteCache())

	err := b.Offer(context.Background(), IngestEvent{WebsiteID: 99})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnknownWebsite, apperr.KindOf(err))
}

func TestOffer_OversizedEventDataRejected(t *testing.T) {
	cfg := config.IngestConfig{BufferMaxSize: 1000, MaxEventDataBytes: 10, MaxURLBytes: 2048, RateLimitDisable: true}
	b := testBuffer(cfg, nil)

	err := b.Offer(context.Background(), IngestEvent{WebsiteID: 1, EventData: strings.Repeat("x", 11)})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPayloadTooLarge, apperr.KindOf(err))
}

func TestOffer_OversizedURLRejected(t *testing.T) {
	cfg := config.IngestConfig{BufferMaxSize: 1000, MaxEventDataBytes: 4096, MaxURLBytes: 5, RateLimitDisable: true}
	b := testBuffer(cfg, nil)

	err := b.Offer(context.Background(), IngestEvent{WebsiteID: 1, URL: "https://example.com/too-long"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPayloadTooLarge, apperr.KindOf(err))
}

func TestOffer_RateLimitedAfterBurstExhausted(t *testing.T) {
	cfg := config.IngestConfig{BufferMaxSize: 1000, MaxEventDataBytes: 4096, MaxURLBytes: 2048, RateLimitDisable: false, RateLimitPerMinute: 1}
	b := testBuffer(cfg, nil)

	require.NoError(t, b.Offer(context.Background(), IngestEvent{WebsiteID: 1, SourceIP: "1.2.3.4"}))
	err := b.Offer(context.Background(), IngestEvent{WebsiteID: 1, SourceIP: "1.2.3.4"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
}

func TestOffer_AcceptedEventIsBuffered(t *testing.T) {
	cfg := config.IngestConfig{BufferMaxSize: 1000, MaxEventDataBytes: 4096, MaxURLBytes: 2048, RateLimitDisable: true}
	b := testBuffer(cfg, nil)

	require.NoError(t, b.Offer(context.Background(), IngestEvent{WebsiteID: 1}))
	assert.Len(t, b.pending, 1)
}
