// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeEvent struct {
	visitor   string
	createdAt time.Time
}

func (f fakeEvent) SortKey() (string, time.Time) { return f.visitor, f.createdAt }

func TestSortForUpsert_OrdersByVisitorThenTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []fakeEvent{
		{visitor: "b", createdAt: base.Add(time.Second)},
		{visitor: "a", createdAt: base.Add(2 * time.Second)},
		{visitor: "a", createdAt: base},
		{visitor: "b", createdAt: base},
	}

	SortForUpsert(events)

	assert.Equal(t, "a", events[0].visitor)
	assert.Equal(t, base, events[0].createdAt)
	assert.Equal(t, "a", events[1].visitor)
	assert.Equal(t, base.Add(2*time.Second), events[1].createdAt)
	assert.Equal(t, "b", events[2].visitor)
	assert.Equal(t, base, events[2].createdAt)
}
