// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
response.go - Response Envelope

Implements spec §6's exact JSON contract - success {data, pagination?,
compare?}, error {error: {code, message, field?}} - grounded on the
teacher's ResponseWriter (internal/api/response.go) for the method-set
shape (Success/Error/BadRequest/...), but with the teacher's own
{success, data, error, meta} envelope replaced by the one spec §6
documents.
*/

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/sparklytics/engine/internal/apperr"
	"github.com/sparklytics/engine/internal/logging"
)

// Pagination carries the cursor-page metadata spec §4.H/§6 document.
type Pagination struct {
	Total      int64  `json:"total,omitempty"`
	Count      int    `json:"count"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type successEnvelope struct {
	Data       interface{} `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Compare    interface{} `json:"compare,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ResponseWriter writes the spec §6 envelope for one request.
type ResponseWriter struct {
	w http.ResponseWriter
	r *http.Request
}

// NewResponseWriter wraps the (http.ResponseWriter, *http.Request) pair of
// one handler invocation.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{w: w, r: r}
}

// OK writes {data}.
func (rw *ResponseWriter) OK(data interface{}) {
	rw.writeJSON(http.StatusOK, successEnvelope{Data: data})
}

// Paginated writes {data, pagination}.
func (rw *ResponseWriter) Paginated(data interface{}, p Pagination) {
	rw.writeJSON(http.StatusOK, successEnvelope{Data: data, Pagination: &p})
}

// Compared writes {data, compare}.
func (rw *ResponseWriter) Compared(data, compare interface{}) {
	rw.writeJSON(http.StatusOK, successEnvelope{Data: data, Compare: compare})
}

// Accepted writes a bare 202, spec §6's response to a successful
// POST /api/collect enqueue.
func (rw *ResponseWriter) Accepted() {
	rw.w.WriteHeader(http.StatusAccepted)
}

// Err maps err to the spec §7 status code and writes the structured error
// body. Untyped errors are logged at error level and surfaced as opaque
// "internal" failures; *apperr.Error values are surfaced verbatim.
func (rw *ResponseWriter) Err(err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		logging.CtxErr(rw.r.Context(), err).Msg("unhandled error at API boundary")
		appErr = apperr.New(apperr.KindInternal, "an internal error occurred")
	}

	status := appErr.Kind.HTTPStatus()
	if status >= 500 {
		logging.CtxErr(rw.r.Context(), err).Str("kind", string(appErr.Kind)).Msg("request failed")
	}

	rw.writeJSON(status, errorEnvelope{Error: errorBody{
		Code:    string(appErr.Kind),
		Message: appErr.Message,
		Field:   appErr.Field,
	}})
}

func (rw *ResponseWriter) writeJSON(status int, v interface{}) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(status)
	if err := json.NewEncoder(rw.w).Encode(v); err != nil {
		logging.CtxErr(rw.r.Context(), err).Msg("failed to encode response body")
	}
}
