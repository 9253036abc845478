// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
link.go - Campaign Link Redirect

GET /l/{slug} resolves a campaign link, appends its stored UTM tuple to the
destination URL, enqueues a link_click event, and 302s the visitor onward.
Grounded on the original track_link_redirect handler
(original_source/.../routes/links.rs): same lookup-by-slug/404-if-inactive
flow, the same append_query_param/encode_query_component percent-encoding
(RFC 3986 unreserved set only), and the same MAX_TRACKING_URL_BYTES/
MAX_PUBLIC_QUERY_PARAMS/MAX_PUBLIC_EVENT_DATA_BYTES caps. Link management
(create/update/delete) is out of scope per spec §6's external-interfaces
list, which only names the redirect itself; rows are seeded directly into
the links table.
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

const (
	maxTrackingURLBytes    = 2048
	maxPublicEventDataBytes = 4096
)

type campaignLink struct {
	ID             int64
	WebsiteID      int64
	Slug           string
	DestinationURL string
	UTMSource      sql.NullString
	UTMMedium      sql.NullString
	UTMCampaign    sql.NullString
	IsActive       bool
}

func (s *Server) lookupLinkBySlug(ctx context.Context, slug string) (campaignLink, error) {
	var l campaignLink
	row := s.db.QueryRowContext(ctx, `
		SELECT id, website_id, slug, destination_url, utm_source, utm_medium, utm_campaign, is_active
		FROM links WHERE slug = ?`, slug)
	err := row.Scan(&l.ID, &l.WebsiteID, &l.Slug, &l.DestinationURL, &l.UTMSource, &l.UTMMedium, &l.UTMCampaign, &l.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return campaignLink{}, apperr.New(apperr.KindNotFound, "campaign link not found")
	}
	if err != nil {
		return campaignLink{}, err
	}
	if !l.IsActive {
		return campaignLink{}, apperr.New(apperr.KindNotFound, "campaign link not found")
	}
	return l, nil
}

// encodeQueryComponent percent-encodes everything outside the RFC 3986
// unreserved set, matching the original's hand-rolled encoder byte for
// byte rather than url.QueryEscape (which also encodes spaces as '+').
func encodeQueryComponent(raw string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func appendQueryParam(dest *strings.Builder, hasQuery *bool, key, value string) {
	if *hasQuery {
		dest.WriteByte('&')
	} else {
		dest.WriteByte('?')
		*hasQuery = true
	}
	dest.WriteString(key)
	dest.WriteByte('=')
	dest.WriteString(encodeQueryComponent(value))
}

func buildTrackingDestination(l campaignLink) string {
	var b strings.Builder
	b.WriteString(l.DestinationURL)
	hasQuery := strings.Contains(l.DestinationURL, "?")

	if l.UTMSource.Valid {
		appendQueryParam(&b, &hasQuery, "utm_source", l.UTMSource.String)
	}
	if l.UTMMedium.Valid {
		appendQueryParam(&b, &hasQuery, "utm_medium", l.UTMMedium.String)
	}
	if l.UTMCampaign.Valid {
		appendQueryParam(&b, &hasQuery, "utm_campaign", l.UTMCampaign.String)
	}
	return b.String()
}

// HandleLinkRedirect implements GET /l/{slug}.
func (s *Server) HandleLinkRedirect(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	slug := chi.URLParam(r, "slug")

	link, err := s.lookupLinkBySlug(r.Context(), slug)
	if err != nil {
		rw.Err(err)
		return
	}

	destination := buildTrackingDestination(link)
	if len(destination) > maxTrackingURLBytes {
		rw.Err(apperr.New(apperr.KindBadRequest, "destination_url exceeds max length"))
		return
	}

	sanitizedQuery, err := sanitizeQuery(r.URL.Query())
	if err != nil {
		rw.Err(err)
		return
	}

	eventData, err := json.Marshal(map[string]interface{}{
		"link_id":         link.ID,
		"slug":            link.Slug,
		"destination_url": destination,
		"query":           sanitizedQuery,
	})
	if err != nil {
		rw.Err(err)
		return
	}
	if len(eventData) > maxPublicEventDataBytes {
		rw.Err(apperr.New(apperr.KindPayloadTooLarge, "event_data exceeds maximum size"))
		return
	}

	ua := r.Header.Get("User-Agent")
	ip := clientIP(r)
	linkID := link.ID

	event := ingest.IngestEvent{
		WebsiteID:  link.WebsiteID,
		VisitorID:  identity.Fingerprint(s.salts.Current(), ip, ua),
		EventType:  "event",
		EventName:  "link_click",
		EventData:  string(eventData),
		URL:        destination,
		Referrer:   r.Header.Get("Referer"),
		Browser:    parseBrowser(ua),
		OS:         parseOS(ua),
		DeviceType: parseDeviceType(ua),
		Language:   r.Header.Get("Accept-Language"),
		UTMSource:  link.UTMSource.String,
		UTMMedium:  link.UTMMedium.String,
		UTMCampaign: link.UTMCampaign.String,
		LinkID:     &linkID,
		SourceIP:   ip,
		UserAgent:  ua,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.buffer.Offer(r.Context(), event); err != nil {
		rw.Err(err)
		return
	}

	http.Redirect(w, r, destination, http.StatusFound)
}
