// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
Package scheduler implements spec §4.L's two tick loops: SubscriptionsLoop
delivers a website's bound report on its daily/weekly/monthly schedule,
and AlertsLoop evaluates alert rule conditions against recent traffic and
delivers when they fire. Both are suture.Service implementations, grounded
on internal/newsletter/scheduler/scheduler.go's ticker-driven run loop and
internal/recompute's polling Worker.Serve shape.
*/
package scheduler

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
)

// DB is the subset of *database.DB this package needs.
type DB interface {
	Conn() *sql.DB
	WriteLock() *sync.Mutex
}

// idempotencyKey derives a stable delivery key so a crashed-and-restarted
// tick loop never double-delivers for the same logical firing.
func idempotencyKey(parts ...interface{}) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%v|", p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
