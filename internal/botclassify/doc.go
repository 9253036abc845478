// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package botclassify scores incoming requests for bot traffic and applies
// per-website policy and manual overrides.
//
// Classify is pure: callers look up the website's BotPolicy and compiled
// OverrideSet via PolicyCache/OverrideCache and pass them in, so the scoring
// algorithm itself has no storage dependency and is trivially testable.
//
// Override rules always take precedence over the heuristic score, and a
// block rule always wins over an allow rule on the same request.
package botclassify
