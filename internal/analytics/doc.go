// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package analytics implements the stats, time-series, metrics, event, and
// realtime-snapshot engines of spec §4.F/§4.G: read-only queries over the
// events/sessions tables, scoped by internal/filter and a resolved
// calendar window.
package analytics
