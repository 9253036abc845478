// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package realtime pushes the analytics engine's active-visitor snapshot
// (internal/analytics.Realtime) to GET /realtime/ws subscribers over a
// per-website broadcast hub.
package realtime
