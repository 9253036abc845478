// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
pixel.go - Tracking Pixel

GET /p/{key}[.gif] resolves a tracking pixel, enqueues a pixel_view event,
and always answers with the transparent 1x1 GIF - but only after a
successful lookup; a missing or inactive pixel 404s exactly like a missing
campaign link, per the original track_pixel handler
(original_source/.../routes/pixels.rs). The byte literal is reproduced
verbatim from that handler's TRANSPARENT_GIF constant.
*/

package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/identity"
	"github.com/sparklytics/engine/internal/ingest"
)

const maxPixelEventURLBytes = 2048

var transparentGIF = []byte{
	71, 73, 70, 56, 57, 97, 1, 0, 1, 0, 128, 0, 0, 0, 0, 0, 255, 255, 255, 33, 249, 4, 1, 0, 0, 0,
	0, 44, 0, 0, 0, 0, 1, 0, 1, 0, 0, 2, 2, 68, 1, 0, 59,
}

type trackingPixel struct {
	ID         int64
	WebsiteID  int64
	PixelKey   string
	IsActive   bool
}

func (s *Server) lookupPixelByKey(ctx context.Context, key string) (trackingPixel, error) {
	var p trackingPixel
	row := s.db.QueryRowContext(ctx, `
		SELECT id, website_id, pixel_key, is_active
		FROM pixels WHERE pixel_key = ?`, key)
	err := row.Scan(&p.ID, &p.WebsiteID, &p.PixelKey, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return trackingPixel{}, apperr.New(apperr.KindNotFound, "tracking pixel not found")
	}
	if err != nil {
		return trackingPixel{}, err
	}
	if !p.IsActive {
		return trackingPixel{}, apperr.New(apperr.KindNotFound, "tracking pixel not found")
	}
	return p, nil
}

func normalizePixelKey(raw string) string {
	return strings.TrimSuffix(raw, ".gif")
}

func writeTransparentGIF(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}

// HandlePixel implements GET /p/{key}.
func (s *Server) HandlePixel(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	key := normalizePixelKey(chi.URLParam(r, "key"))

	pixel, err := s.lookupPixelByKey(r.Context(), key)
	if err != nil {
		rw.Err(err)
		return
	}

	eventURL := r.URL.Query().Get("url")
	if eventURL == "" {
		eventURL = "pixel://" + pixel.PixelKey
	}
	if len(eventURL) > maxPixelEventURLBytes {
		rw.Err(apperr.New(apperr.KindBadRequest, "url exceeds max length"))
		return
	}

	sanitizedQuery, err := sanitizeQuery(r.URL.Query())
	if err != nil {
		rw.Err(err)
		return
	}

	eventData, err := json.Marshal(map[string]interface{}{
		"pixel_id":  pixel.ID,
		"pixel_key": pixel.PixelKey,
		"url":       eventURL,
		"query":     sanitizedQuery,
	})
	if err != nil {
		rw.Err(err)
		return
	}
	if len(eventData) > maxPublicEventDataBytes {
		rw.Err(apperr.New(apperr.KindPayloadTooLarge, "event_data exceeds maximum size"))
		return
	}

	utmSource, utmMedium, utmCampaign := extractUTMFromURL(eventURL)
	ua := r.Header.Get("User-Agent")
	ip := clientIP(r)
	pixelID := pixel.ID

	event := ingest.IngestEvent{
		WebsiteID:   pixel.WebsiteID,
		VisitorID:   identity.Fingerprint(s.salts.Current(), ip, ua),
		EventType:   "event",
		EventName:   "pixel_view",
		EventData:   string(eventData),
		URL:         eventURL,
		Referrer:    r.Header.Get("Referer"),
		Browser:     parseBrowser(ua),
		OS:          parseOS(ua),
		DeviceType:  parseDeviceType(ua),
		Language:    r.Header.Get("Accept-Language"),
		UTMSource:   utmSource,
		UTMMedium:   utmMedium,
		UTMCampaign: utmCampaign,
		PixelID:     &pixelID,
		SourceIP:    ip,
		UserAgent:   ua,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.buffer.Offer(r.Context(), event); err != nil {
		rw.Err(err)
		return
	}

	writeTransparentGIF(w)
}
