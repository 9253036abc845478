// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
extensions.go - DuckDB Extension Installation

Table-driven extension install/verify, trimmed to the two extensions this
engine's schema and queries actually depend on: icu (TIMESTAMPTZ defaults and
timezone-aware strftime bucketing) and json (event_data extraction). The
teacher's broader spatial/inet/sqlite/rapidfuzz/datasketches extension set
served geo and media-catalog features this engine does not have; see
DESIGN.md for why they were dropped rather than adapted.
*/

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sparklytics/engine/internal/logging"
)

type extensionSpec struct {
	name      string
	required  bool
	available *bool
}

// installExtensions installs and loads every extension this engine depends
// on. Every failure is tolerated: the extension is marked unavailable, and a
// required one also logs a warning and leaves the engine in degraded mode.
func (db *DB) installExtensions() error {
	specs := []extensionSpec{
		{name: "icu", required: true, available: &db.icuAvailable},
		{name: "json", required: true, available: &db.jsonAvailable},
	}

	ctx, cancel := schemaContext()
	defer cancel()

	for _, spec := range specs {
		if err := installExtension(ctx, db.conn, spec.name); err != nil {
			*spec.available = false
			if spec.required {
				logging.Warn().Str("extension", spec.name).Err(err).Msg("Required extension unavailable, continuing in degraded mode")
			}
			continue
		}
		*spec.available = true
	}
	return nil
}

func installExtension(ctx context.Context, conn *sql.DB, name string) error {
	if !isExtensionInstalledLocally(name) {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("INSTALL %s;", name)); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("LOAD %s;", name)); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// isExtensionInstalledLocally always attempts INSTALL/LOAD; duckdb-go treats
// a no-op INSTALL of an already-present extension as cheap, so we skip the
// filesystem probe the teacher used and let the driver short-circuit.
func isExtensionInstalledLocally(string) bool {
	return false
}
