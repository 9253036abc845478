// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
buffer.go - Bounded Ingest Buffer

Buffer accepts validated events from the collect/redirect/pixel endpoints
into a bounded channel and flushes them in batches, either when the channel
fills or on a fixed interval, whichever comes first. It is supervised as a
suture service so a panic in the flush loop restarts it instead of taking
the process down.

DETERMINISM: flushMu serializes timer-triggered and size-triggered flushes
so a batch's session-upsert ordering is never interleaved with another
batch's, mirroring the teacher's Appender.
*/

package ingest

import (
	"context"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/config"
	"github.com/sparklytics/engine/internal/database"
	"github.com/sparklytics/engine/internal/identity"
	"github.com/sparklytics/engine/internal/ingest/spillwal"
	"github.com/sparklytics/engine/internal/logging"
	"github.com/sparklytics/engine/internal/metrics"
	"github.com/sparklytics/engine/internal/models"
)

// Buffer is the admission gate and batching layer in front of storage.
type Buffer struct {
	cfg       config.IngestConfig
	websites  *WebsiteCache
	limiter   *IPRateLimiter
	sessions  *identity.SessionManager
	db        *database.DB
	spill     *spillwal.WAL
	breaker   *gobreaker.CircuitBreaker[interface{}]

	mu      sync.Mutex
	pending []IngestEvent

	flushMu sync.Mutex

	flushed chan int // count of events flushed, for realtime/recompute notices
}

// NewBuffer constructs a Buffer. spill may be nil, in which case exhausted
// batches are dropped with a logged warning instead of spilled to disk.
func NewBuffer(cfg config.IngestConfig, websites *WebsiteCache, limiter *IPRateLimiter, sessions *identity.SessionManager, db *database.DB, spill *spillwal.WAL) *Buffer {
	breakerSettings := gobreaker.Settings{
		Name:        "ingest-flush",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
	}
	return &Buffer{
		cfg:      cfg,
		websites: websites,
		limiter:  limiter,
		sessions: sessions,
		db:       db,
		spill:    spill,
		breaker:  gobreaker.NewCircuitBreaker[interface{}](breakerSettings),
		pending:  make([]IngestEvent, 0, cfg.BufferMaxSize),
		flushed:  make(chan int, 16),
	}
}

// Flushed exposes a channel of per-flush event counts, consumed by the
// realtime snapshot and the bot recompute trigger.
func (b *Buffer) Flushed() <-chan int { return b.flushed }

// Offer runs the admission gate of spec §4.C, in order: website existence,
// payload size limits, then per-IP rate limiting. On success the event is
// appended to the pending batch, flushing immediately if the batch is full.
func (b *Buffer) Offer(ctx context.Context, e IngestEvent) error {
	if !b.websites.Known(e.WebsiteID) {
		metrics.RecordIngestEvent("rejected")
		return apperr.New(apperr.KindUnknownWebsite, "website_id is not recognized")
	}
	if len(e.EventData) > b.cfg.MaxEventDataBytes {
		metrics.RecordIngestEvent("rejected")
		return apperr.New(apperr.KindPayloadTooLarge, "event_data exceeds maximum size")
	}
	if len(e.URL) > b.cfg.MaxURLBytes {
		metrics.RecordIngestEvent("rejected")
		return apperr.New(apperr.KindPayloadTooLarge, "url exceeds maximum size")
	}
	if !b.cfg.RateLimitDisabled() && !b.limiter.Allow(e.SourceIP) {
		metrics.RecordIngestEvent("rate_limited")
		return apperr.New(apperr.KindRateLimited, "too many events from this source")
	}

	b.mu.Lock()
	b.pending = append(b.pending, e)
	full := len(b.pending) >= b.cfg.BufferMaxSize
	depth := len(b.pending)
	b.mu.Unlock()

	metrics.RecordIngestEvent("accepted")
	metrics.IngestBufferDepth.Set(float64(depth))

	if full {
		go b.flush(context.Background())
	}
	return nil
}

// Serve implements suture.Service: a ticker drives periodic flushes until
// ctx is canceled, at which point a final flush drains whatever remains.
func (b *Buffer) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", b.cfg.BufferFlushInterval).Msg("ingest buffer started")

	if err := b.replaySpill(ctx); err != nil {
		logging.Warn().Err(err).Msg("ingest buffer: spill replay failed at startup")
	}

	ticker := time.NewTicker(b.cfg.BufferFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.flush(context.Background())
			return ctx.Err()
		case <-ticker.C:
			b.flush(context.Background())
		}
	}
}

// String implements fmt.Stringer for suture's service logging.
func (b *Buffer) String() string { return "ingest-buffer" }

// flush takes ownership of the pending batch and writes it through storage,
// retrying with exponential backoff before spilling to disk on exhaustion.
func (b *Buffer) flush(ctx context.Context) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]IngestEvent, 0, b.cfg.BufferMaxSize)
	b.mu.Unlock()
	metrics.IngestBufferDepth.Set(0)

	start := time.Now()
	err := b.writeBatchWithRetry(ctx, batch)
	metrics.RecordIngestFlush(time.Since(start))
	if err != nil {
		logging.Warn().Err(err).Int("count", len(batch)).Msg("ingest buffer: batch exhausted retries, spilling")
		b.spillBatch(batch)
		return
	}

	select {
	case b.flushed <- len(batch):
	default:
	}
}

func (b *Buffer) writeBatchWithRetry(ctx context.Context, batch []IngestEvent) error {
	identity.SortForUpsert(batch)

	delay := b.cfg.FlushRetryBaseDelay
	var lastErr error
	for attempt := 0; attempt < b.cfg.FlushRetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		_, lastErr = b.breaker.Execute(func() (interface{}, error) {
			return nil, b.writeBatch(ctx, batch)
		})
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (b *Buffer) writeBatch(ctx context.Context, batch []IngestEvent) error {
	mu := b.db.WriteLock()
	mu.Lock()
	defer mu.Unlock()

	events := make([]models.Event, 0, len(batch))
	for _, e := range batch {
		sessionID, _, err := b.sessions.Resolve(ctx, e.WebsiteID, e.VisitorID, e.URL, e.EventType == "pageview", e.CreatedAt)
		if err != nil {
			return err
		}
		events = append(events, toModelEvent(e, sessionID))
	}
	return b.db.InsertEventsBatch(ctx, events)
}

func toModelEvent(e IngestEvent, sessionID string) models.Event {
	return models.Event{
		WebsiteID:   e.WebsiteID,
		SessionID:   sessionID,
		VisitorID:   e.VisitorID,
		EventType:   models.EventType(e.EventType),
		EventName:   e.EventName,
		EventData:   e.EventData,
		URL:         e.URL,
		Referrer:    e.Referrer,
		Country:     e.Country,
		Region:      e.Region,
		City:        e.City,
		Browser:     e.Browser,
		OS:          e.OS,
		DeviceType:  e.DeviceType,
		Screen:      e.Screen,
		Language:    e.Language,
		UTMSource:   e.UTMSource,
		UTMMedium:   e.UTMMedium,
		UTMCampaign: e.UTMCampaign,
		LinkID:      e.LinkID,
		PixelID:     e.PixelID,
		SourceIP:    e.SourceIP,
		UserAgent:   e.UserAgent,
		CreatedAt:   e.CreatedAt,
	}
}

func (b *Buffer) spillBatch(batch []IngestEvent) {
	if b.spill == nil {
		logging.Warn().Int("count", len(batch)).Msg("ingest buffer: no spill WAL configured, batch dropped")
		return
	}
	if _, err := b.spill.Append(batch); err != nil {
		logging.Error().Err(err).Int("count", len(batch)).Msg("ingest buffer: failed to spill batch, batch dropped")
		return
	}
	metrics.IngestSpillWrites.Add(float64(len(batch)))
}

// replaySpill attempts to write every pending spill entry through storage
// once at startup, deleting each entry that replays successfully.
func (b *Buffer) replaySpill(ctx context.Context) error {
	if b.spill == nil {
		return nil
	}
	entries, err := b.spill.Pending()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		var batch []IngestEvent
		if err := entry.UnmarshalPayload(&batch); err != nil {
			logging.Warn().Err(err).Str("entry_id", entry.ID).Msg("ingest buffer: dropping unparsable spill entry")
			_ = b.spill.Delete(entry.ID)
			continue
		}
		if err := b.writeBatch(ctx, batch); err != nil {
			logging.Warn().Err(err).Str("entry_id", entry.ID).Msg("ingest buffer: spill replay still failing")
			continue
		}
		_ = b.spill.Delete(entry.ID)
		logging.Info().Str("entry_id", entry.ID).Int("count", len(batch)).Msg("ingest buffer: replayed spilled batch")
	}
	return nil
}
