package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/fittrack/internal/localstore"
	"github.com/claude/fittrack/internal/metrics"
	"github.com/claude/fittrack/internal/models"
	"github.com/google/uuid"
)

// ApplyFunc replays one entry against the remote authority.
type ApplyFunc func(ctx context.Context, entry models.SyncEntry) error

// Status is the read-only view of the queue.
type Status struct {
	PendingCount int `json:"pending_count"`
}

// Queue is the persisted FIFO log of mutations made while offline.
//
// Drains are all-or-nothing on the queue itself: entries stay queued until
// every one of them has been replayed. Each replayed entry's id is recorded
// under localstore.KeySyncApplied as it succeeds, and a later drain skips
// those ids, so a retry after a mid-drain failure never replays an entry twice.
type Queue struct {
	store   *localstore.Store
	metrics *metrics.Sync
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries []models.SyncEntry
}

// New loads the persisted queue from store. m may be nil.
func New(store *localstore.Store, m *metrics.Sync, log *slog.Logger) (*Queue, error) {
	entries, err := localstore.GetOrDefault(store, localstore.KeySyncQueue, []models.SyncEntry{})
	if err != nil {
		return nil, fmt.Errorf("loading sync queue: %w", err)
	}
	m.SetPending(len(entries))
	return &Queue{
		store:   store,
		metrics: m,
		log:     log,
		now:     time.Now,
		entries: entries,
	}, nil
}

// Enqueue appends a mutation and persists the queue before returning.
func (q *Queue) Enqueue(action models.SyncAction, targetID string, payload any) (models.SyncEntry, error) {
	st, err := q.Stage(action, targetID, payload)
	if err != nil {
		return models.SyncEntry{}, err
	}
	if err := q.store.Set(localstore.KeySyncQueue, st.Queue()); err != nil {
		return models.SyncEntry{}, fmt.Errorf("persisting sync queue: %w", err)
	}
	st.Commit()
	return st.Entry, nil
}

// Staged is an entry appended to a copy of the queue but not yet persisted.
// The caller writes Queue under localstore.KeySyncQueue, usually in the same
// SetMany as the data the entry describes, then calls Commit.
type Staged struct {
	Entry models.SyncEntry

	q    *Queue
	next []models.SyncEntry
}

// Stage builds the entry for a mutation without touching the store or the
// in-memory queue. Only one staged entry may be outstanding at a time.
func (q *Queue) Stage(action models.SyncAction, targetID string, payload any) (*Staged, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", action, err)
		}
		raw = data
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating entry id: %w", err)
	}
	entry := models.SyncEntry{
		ID:         id.String(),
		Action:     action,
		TargetID:   targetID,
		Payload:    raw,
		EnqueuedAt: q.now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]models.SyncEntry, len(q.entries), len(q.entries)+1)
	copy(next, q.entries)
	next = append(next, entry)
	return &Staged{Entry: entry, q: q, next: next}, nil
}

// Queue is the value to persist under localstore.KeySyncQueue.
func (st *Staged) Queue() []models.SyncEntry {
	return st.next
}

// Commit publishes the staged entry once Queue has been persisted.
func (st *Staged) Commit() {
	q := st.q
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = st.next

	q.metrics.Enqueued(string(st.Entry.Action))
	q.metrics.SetPending(len(st.next))
	q.log.Debug("queued offline mutation", "action", st.Entry.Action, "target", st.Entry.TargetID, "entry", st.Entry.ID)
}

// Drain replays every entry in FIFO order. On full success the queue is
// cleared and the number of entries is returned. On failure the queue is
// left intact and the error is returned.
func (q *Queue) Drain(ctx context.Context, apply ApplyFunc) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return 0, nil
	}

	applied, err := localstore.GetOrDefault(q.store, localstore.KeySyncApplied, map[string]bool{})
	if err != nil {
		return 0, fmt.Errorf("loading applied entries: %w", err)
	}

	for _, e := range q.entries {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("sync interrupted: %w", err)
		}
		if applied[e.ID] {
			q.log.Debug("skipping already applied entry", "entry", e.ID, "action", e.Action)
			continue
		}
		if err := apply(ctx, e); err != nil {
			q.metrics.Failed()
			return 0, fmt.Errorf("replaying %s %s: %w", e.Action, e.TargetID, err)
		}
		applied[e.ID] = true
		if err := q.store.Set(localstore.KeySyncApplied, applied); err != nil {
			return 0, fmt.Errorf("acknowledging entry %s: %w", e.ID, err)
		}
		q.metrics.Applied()
	}

	n := len(q.entries)
	err = q.store.SetMany(map[string]any{
		localstore.KeySyncQueue:   []models.SyncEntry{},
		localstore.KeySyncApplied: map[string]bool{},
	})
	if err != nil {
		return 0, fmt.Errorf("clearing sync queue: %w", err)
	}
	q.entries = nil
	q.metrics.SetPending(0)
	return n, nil
}

// Status returns the pending count without touching the store.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{PendingCount: len(q.entries)}
}

// Entries returns a copy of the queued entries in order.
func (q *Queue) Entries() []models.SyncEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.SyncEntry(nil), q.entries...)
}
