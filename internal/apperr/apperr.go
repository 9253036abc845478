// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
apperr.go - Typed Error Taxonomy

This package centralizes the error kinds returned by every engine component
so that the thin HTTP boundary can map them to status codes without
inspecting error strings.

Kinds mirror the documented taxonomy exactly: bad_request, unknown_website,
not_found, unauthorized, forbidden, payload_too_large, rate_limited,
query_timeout, duplicate_name, limit_exceeded, conflict, invalid_cursor,
invalid_timezone, internal.
*/

package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the stable error codes surfaced to API clients.
type Kind string

const (
	KindBadRequest       Kind = "bad_request"
	KindUnknownWebsite   Kind = "unknown_website"
	KindNotFound         Kind = "not_found"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindPayloadTooLarge  Kind = "payload_too_large"
	KindRateLimited      Kind = "rate_limited"
	KindQueryTimeout     Kind = "query_timeout"
	KindDuplicateName    Kind = "duplicate_name"
	KindLimitExceeded    Kind = "limit_exceeded"
	KindConflict         Kind = "conflict"
	KindInvalidCursor    Kind = "invalid_cursor"
	KindInvalidTimezone  Kind = "invalid_timezone"
	KindInternal         Kind = "internal"
)

// Error is the concrete type returned by every engine operation that can
// fail in a client-meaningful way. The zero value is not usable; construct
// via New/Wrap.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches a field name to a validation-style error, returning a
// new Error value (the receiver is not mutated).
func (e *Error) WithField(field string) *Error {
	clone := *e
	clone.Field = field
	return &clone
}

// Wrap constructs an Error that wraps an underlying cause with %w semantics.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal for untyped
// errors so callers always have a code to return.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code documented in spec §7.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest, KindInvalidCursor, KindInvalidTimezone:
		return 400
	case KindUnauthorized:
		return 401
	case KindForbidden:
		return 403
	case KindUnknownWebsite, KindNotFound:
		return 404
	case KindConflict, KindDuplicateName:
		return 409
	case KindPayloadTooLarge:
		return 413
	case KindLimitExceeded:
		return 422
	case KindRateLimited:
		return 429
	case KindQueryTimeout:
		return 500
	default:
		return 500
	}
}
