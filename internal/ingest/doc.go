// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

// Package ingest implements the bounded admission buffer in front of
// storage: Buffer.Offer runs the website/size/rate-limit admission gate,
// and the supervised flush loop resolves sessions and bulk-inserts events,
// spilling to a durable Badger-backed WAL (spillwal) when storage stays
// unavailable past the retry budget.
package ingest
