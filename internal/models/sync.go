package models

import (
	"encoding/json"
	"time"
)

// SyncAction is the kind of mutation recorded in the sync queue.
type SyncAction string

const (
	SyncCreate   SyncAction = "create"
	SyncUpdate   SyncAction = "update"
	SyncDelete   SyncAction = "delete"
	SyncComplete SyncAction = "complete"
)

// SyncEntry is a mutation deferred while offline. ID doubles as the
// idempotency key used to acknowledge the entry during a drain.
type SyncEntry struct {
	ID         string          `json:"id"`
	Action     SyncAction      `json:"action"`
	TargetID   string          `json:"target_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
