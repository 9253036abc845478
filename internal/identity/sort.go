// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package identity

import (
	"sort"
	"time"
)

// PendingEvent is the minimal shape sort ordering needs from an ingest
// buffer entry; the ingest package's IngestEvent satisfies it via
// SortKey().
type PendingEvent interface {
	SortKey() (visitorID string, createdAt time.Time)
}

// SortForUpsert sorts events by (visitor_id, created_at) in place so a
// batch flush's session upserts accumulate pageview_count deterministically
// regardless of the order events arrived in, per spec §4.B.
func SortForUpsert[T PendingEvent](events []T) {
	sort.SliceStable(events, func(i, j int) bool {
		vi, ti := events[i].SortKey()
		vj, tj := events[j].SortKey()
		if vi != vj {
			return vi < vj
		}
		return ti.Before(tj)
	})
}
