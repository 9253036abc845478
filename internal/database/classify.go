// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
classify.go - Driver Error Classification

Maps raw DuckDB/driver error text to apperr.Kind the same way
database_connection.go classifies connection and transaction-conflict
errors: pattern match on the error string, never on a driver-specific type,
since duckdb-go does not export structured error codes for every condition
we care about.
*/

package database

import (
	"context"
	"errors"
	"strings"

	"github.com/sparklytics/engine/internal/apperr"
)

// ClassifyError turns a raw storage-layer error into a typed apperr.Error.
// Unknown errors become KindInternal, matching spec §4.A's "opaque storage
// failed" fallback.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindQueryTimeout, err, "statement timeout")
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint") && (strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")):
		return apperr.Wrap(apperr.KindDuplicateName, err, "unique constraint violation")
	case strings.Contains(msg, "statement timeout") || strings.Contains(msg, "canceling statement") || strings.Contains(msg, "context deadline exceeded"):
		return apperr.Wrap(apperr.KindQueryTimeout, err, "statement timeout")
	case isTransactionConflict(err):
		return apperr.Wrap(apperr.KindConflict, err, "transaction conflict")
	case isConnectionError(err) || isInternalError(err):
		return apperr.Wrap(apperr.KindInternal, err, "storage failed")
	default:
		return apperr.Wrap(apperr.KindInternal, err, "storage failed")
	}
}
