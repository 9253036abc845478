// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
Package api is the thin HTTP boundary spec §6 describes: a chi router in
front of the engine's internal packages, translating query strings into
filter.AnalyticsFilter values and apperr.Error values into the documented
JSON envelope.

It owns no business logic. Each handler parses its request, calls into
analytics/funnel/retention/attribution/sessionsx/ingest/identity, and
writes the result through ResponseWriter. Auth/RBAC is out of scope (spec
§7 lists unauthorized/forbidden as "outside core"), so nothing here
authenticates a caller - that is left to a reverse proxy or a later layer.

Grounded on the teacher's internal/api package (chi_router.go,
chi_middleware.go, response.go) for the chi-router/middleware-factory
shape, narrowed to the routes and middleware spec §5/§6 actually call
for and stripped of the teacher's auth, RBAC, and media-server-specific
endpoints.
*/
package api
