package cache

import (
	"fmt"
	"sync"

	"github.com/claude/fittrack/internal/localstore"
	"github.com/claude/fittrack/internal/models"
)

// Workouts mirrors the workout collection in memory and in the local store.
// The in-memory list serves online reads; the persisted snapshot serves
// offline reads.
type Workouts struct {
	store *localstore.Store

	mu       sync.RWMutex
	workouts []models.Workout
}

// New creates a cache over store. Call Initialize before use.
func New(store *localstore.Store) *Workouts {
	return &Workouts{store: store}
}

// Initialize seeds the snapshot when the store has none, otherwise loads the
// prior snapshot into memory.
func (c *Workouts) Initialize(seed []models.Workout) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prior []models.Workout
	found, err := c.store.Get(localstore.KeyWorkoutsSnapshot, &prior)
	if err != nil {
		return fmt.Errorf("loading workout snapshot: %w", err)
	}
	if found {
		c.workouts = prior
		return nil
	}

	initial := cloneAll(seed)
	if initial == nil {
		initial = []models.Workout{}
	}
	if err := c.store.Set(localstore.KeyWorkoutsSnapshot, initial); err != nil {
		return fmt.Errorf("writing seed snapshot: %w", err)
	}
	c.workouts = initial
	return nil
}

// HasSnapshot reports whether the snapshot holds any workouts to serve
// offline reads.
func (c *Workouts) HasSnapshot() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.workouts) > 0
}

// ReadAll returns the in-memory list when online, the persisted snapshot
// when offline. The result is a copy.
func (c *Workouts) ReadAll(online bool) ([]models.Workout, error) {
	if !online {
		return c.readSnapshot()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.workouts), nil
}

// ReadOne returns the workout with id from the active source.
func (c *Workouts) ReadOne(online bool, id string) (models.Workout, error) {
	all, err := c.ReadAll(online)
	if err != nil {
		return models.Workout{}, err
	}
	for _, w := range all {
		if w.ID == id {
			return w, nil
		}
	}
	return models.Workout{}, fmt.Errorf("workout %s: %w", id, models.ErrNotFound)
}

// Write replaces both the in-memory list and the persisted snapshot.
func (c *Workouts) Write(workouts []models.Workout) error {
	next := Snapshot(workouts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(localstore.KeyWorkoutsSnapshot, next); err != nil {
		return fmt.Errorf("writing workout snapshot: %w", err)
	}
	c.workouts = next
	return nil
}

// Snapshot copies workouts into the value persisted under
// localstore.KeyWorkoutsSnapshot. Callers that write it themselves, together
// with other keys, publish it with Commit afterwards.
func Snapshot(workouts []models.Workout) []models.Workout {
	next := cloneAll(workouts)
	if next == nil {
		next = []models.Workout{}
	}
	return next
}

// Commit replaces the in-memory list with a snapshot the caller has already
// persisted.
func (c *Workouts) Commit(snapshot []models.Workout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workouts = snapshot
}

func (c *Workouts) readSnapshot() ([]models.Workout, error) {
	snapshot, err := localstore.GetOrDefault(c.store, localstore.KeyWorkoutsSnapshot, []models.Workout{})
	if err != nil {
		return nil, fmt.Errorf("reading workout snapshot: %w", err)
	}
	return snapshot, nil
}

func cloneAll(in []models.Workout) []models.Workout {
	if in == nil {
		return nil
	}
	out := make([]models.Workout, len(in))
	for i, w := range in {
		out[i] = w.Clone()
	}
	return out
}
