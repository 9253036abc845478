// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
ratelimit.go - Per-IP Admission Rate Limiting

One token bucket per client IP, evicted LRU-style so a flood of distinct
source IPs can't grow the limiter map without bound.
*/

package ingest

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const maxTrackedIPs = 50_000

// IPRateLimiter hands out a golang.org/x/time/rate.Limiter per client IP.
type IPRateLimiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	rps      rate.Limit
	burst    int
}

// NewIPRateLimiter returns a limiter allowing ratePerMinute events per
// minute per IP, with a burst equal to ratePerMinute.
func NewIPRateLimiter(ratePerMinute int) *IPRateLimiter {
	cache, err := lru.New[string, *rate.Limiter](maxTrackedIPs)
	if err != nil {
		// Only size <= 0 can fail construction; maxTrackedIPs is a positive
		// constant, so this path is unreachable in practice.
		panic(err)
	}
	return &IPRateLimiter{
		limiters: cache,
		rps:      rate.Limit(float64(ratePerMinute) / 60.0),
		burst:    ratePerMinute,
	}
}

// Allow reports whether ip is within its rate budget, consuming one token
// if so.
func (l *IPRateLimiter) Allow(ip string) bool {
	limiter, ok := l.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters.Add(ip, limiter)
	}
	return limiter.Allow()
}
