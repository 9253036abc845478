// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
collect.go - Event Collection

POST /api/collect accepts a single event object or a JSON array of events
(spec §6), enqueuing each into the ingest buffer. Per-event admission
(website existence, payload size, per-IP rate limit) is enforced by
ingest.Buffer.Offer itself, so this handler only parses the request body,
fills in what the client can't supply (visitor_id, source_ip, browser/os),
and translates Offer's apperr result.
*/

package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/identity"
	"github.com/sparklytics/engine/internal/ingest"
)

const maxCollectBodyBytes = 100 * 1024

// collectPayload mirrors the wire shape of one client-submitted event.
type collectPayload struct {
	WebsiteID int64           `json:"website_id" validate:"required"`
	Type      string          `json:"type" validate:"required,oneof=pageview event"`
	URL       string          `json:"url" validate:"omitempty,max=2048"`
	Referrer  string          `json:"referrer"`
	EventName string          `json:"event_name"`
	EventData json.RawMessage `json:"event_data"`
	Screen    string          `json:"screen"`
	Language  string          `json:"language"`
}

// decodeCollectBody accepts either a single object or an array, since
// spec §6 allows batching events from one page load into one request.
func decodeCollectBody(body []byte) ([]collectPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, apperr.New(apperr.KindBadRequest, "request body is required")
	}

	if trimmed[0] == '[' {
		var payloads []collectPayload
		if err := json.Unmarshal(body, &payloads); err != nil {
			return nil, apperr.New(apperr.KindBadRequest, "request body is not valid JSON")
		}
		return payloads, nil
	}

	var single collectPayload
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, apperr.New(apperr.KindBadRequest, "request body is not valid JSON")
	}
	return []collectPayload{single}, nil
}

// HandleCollect implements POST /api/collect.
func (s *Server) HandleCollect(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxCollectBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		rw.Err(apperr.New(apperr.KindPayloadTooLarge, "request body exceeds maximum size"))
		return
	}

	payloads, err := decodeCollectBody(body)
	if err != nil {
		rw.Err(err)
		return
	}
	if len(payloads) == 0 {
		rw.Err(apperr.New(apperr.KindBadRequest, "at least one event is required"))
		return
	}

	ua := r.Header.Get("User-Agent")
	ip := clientIP(r)
	visitorID := identity.Fingerprint(s.salts.Current(), ip, ua)
	browser, os, device := parseBrowser(ua), parseOS(ua), parseDeviceType(ua)
	now := time.Now().UTC()

	for _, p := range payloads {
		if err := validateStruct(&p); err != nil {
			rw.Err(err)
			return
		}
		eventType := p.Type

		event := ingest.IngestEvent{
			WebsiteID:  p.WebsiteID,
			VisitorID:  visitorID,
			EventType:  eventType,
			EventName:  p.EventName,
			EventData:  string(p.EventData),
			URL:        p.URL,
			Referrer:   p.Referrer,
			Browser:    browser,
			OS:         os,
			DeviceType: device,
			Screen:     p.Screen,
			Language:   p.Language,
			SourceIP:   ip,
			UserAgent:  ua,
			CreatedAt:  now,
		}

		if err := s.buffer.Offer(r.Context(), event); err != nil {
			rw.Err(err)
			return
		}
	}

	rw.Accepted()
}
