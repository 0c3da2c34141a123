// Package history keeps the append-only audit trail of entity mutations.
package history

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of mutation a history entry records.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Entry is one immutable audit record. Insert and delete entries carry a full
// snapshot in Data; update entries carry the three path-keyed diff maps.
type Entry struct {
	ID        int64
	EntityID  uuid.UUID
	Timestamp time.Time
	Operation Operation
	Data      json.RawMessage
	Added     map[string]any
	Changed   map[string]any
	Removed   map[string]any
}

type entryJSON struct {
	Timestamp time.Time       `json:"timestamp"`
	Operation Operation       `json:"operation"`
	Data      json.RawMessage `json:"data,omitempty"`
	Added     *map[string]any `json:"added,omitempty"`
	Changed   *map[string]any `json:"changed,omitempty"`
	Removed   *map[string]any `json:"removed,omitempty"`
}

// MarshalJSON renders snapshots as "data" and updates as "added", "changed"
// and "removed", which are always present on updates.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		Timestamp: e.Timestamp.UTC(),
		Operation: e.Operation,
	}
	if e.Operation == OpUpdate {
		added, changed, removed := orEmpty(e.Added), orEmpty(e.Changed), orEmpty(e.Removed)
		out.Added, out.Changed, out.Removed = &added, &changed, &removed
	} else {
		out.Data = e.Data
	}
	return json.Marshal(out)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
