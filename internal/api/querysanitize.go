// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
querysanitize.go - Public Query Parameter Sanitization

The /l/{slug} and /p/{key} endpoints accept arbitrary query strings from
anonymous clients, so the caps here (param count, key/value byte length)
bound how much of that goes into event_data. Grounded on the original
redirect/pixel handlers' MAX_PUBLIC_QUERY_* constants: oversized values are
silently dropped rather than rejected, since the event should still be
tracked even if one stray param is malformed.
*/

package api

import (
	"net/url"

	"github.com/sparklytics/engine/internal/apperr"
)

const (
	maxPublicQueryParams     = 32
	maxPublicQueryKeyBytes   = 64
	maxPublicQueryValueBytes = 256
)

var errTooManyQueryParams = apperr.New(apperr.KindBadRequest, "too many query parameters")

// sanitizeQuery drops empty keys and oversized key/value pairs, returning
// the rest as a plain map suitable for embedding in event_data JSON.
func sanitizeQuery(q url.Values) (map[string]string, error) {
	if len(q) > maxPublicQueryParams {
		return nil, errTooManyQueryParams
	}
	out := make(map[string]string, len(q))
	for k, vs := range q {
		if k == "" || len(k) > maxPublicQueryKeyBytes || len(vs) == 0 {
			continue
		}
		v := vs[0]
		if len(v) > maxPublicQueryValueBytes {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// extractUTMFromURL pulls utm_source/utm_medium/utm_campaign off a raw
// URL's own query string, for pixel events whose URL is supplied by the
// caller rather than a pre-configured campaign link.
func extractUTMFromURL(raw string) (source, medium, campaign string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", ""
	}
	q := u.Query()
	return q.Get("utm_source"), q.Get("utm_medium"), q.Get("utm_campaign")
}
