// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

/*
spillwal.go - Durable Spill-to-Disk Log

When a flush batch exhausts its retry budget, the buffer appends it here
instead of dropping it. Entries are replayed once at the next startup,
turning "drop the batch" into "best-effort durable
retry" (see DESIGN.md). Entries are stored as raw JSON so the WAL stays
agnostic to the specific event type.
*/

package spillwal

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Entry is one spilled batch awaiting replay.
type Entry struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

// UnmarshalPayload deserializes the entry's payload into v.
func (e *Entry) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

const pendingPrefix = "pending:"

// WAL is a Badger-backed durable spill log for batches.
type WAL struct {
	db *badger.DB
}

// Open opens (or creates) a WAL at path.
func Open(path string) (*WAL, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open spill wal: %w", err)
	}
	return &WAL{db: db}, nil
}

// Append durably persists batch, JSON-encoded, and returns its entry id.
func (w *WAL) Append(batch interface{}) (string, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marshal spill batch: %w", err)
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal spill entry: %w", err)
	}
	key := []byte(pendingPrefix + entry.ID)
	if err := w.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return "", fmt.Errorf("write spill entry: %w", err)
	}
	return entry.ID, nil
}

// Pending returns every unconfirmed entry, oldest first.
func (w *WAL) Pending() ([]*Entry, error) {
	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(pendingPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate spill entries: %w", err)
	}
	return entries, nil
}

// Delete permanently removes an entry once it has been successfully
// replayed.
func (w *WAL) Delete(entryID string) error {
	return w.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(pendingPrefix + entryID))
	})
}

// Close releases the underlying Badger handle.
func (w *WAL) Close() error {
	return w.db.Close()
}
