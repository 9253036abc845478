// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package spillwal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	VisitorID string
	Count     int
}

func openTestWAL(t *testing.T) *WAL {
	t.Helper()
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWAL_AppendThenPending(t *testing.T) {
	w := openTestWAL(t)

	batch := []sample{{VisitorID: "v1", Count: 1}, {VisitorID: "v2", Count: 2}}
	id, err := w.Append(batch)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pending, err := w.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	var replayed []sample
	require.NoError(t, pending[0].UnmarshalPayload(&replayed))
	assert.Equal(t, batch, replayed)
}

func TestWAL_DeleteRemovesEntry(t *testing.T) {
	w := openTestWAL(t)

	id, err := w.Append([]sample{{VisitorID: "v1", Count: 1}})
	require.NoError(t, err)

	require.NoError(t, w.Delete(id))

	pending, err := w.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}
