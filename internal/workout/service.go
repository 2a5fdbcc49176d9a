// Package workout is the data-access façade for workouts. It serves reads
// from the cache or the remote depending on connectivity, queues mutations
// made while offline, and replays them once the remote is reachable again.
package workout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/claude/fittrack/internal/cache"
	"github.com/claude/fittrack/internal/connectivity"
	"github.com/claude/fittrack/internal/localstore"
	"github.com/claude/fittrack/internal/metrics"
	"github.com/claude/fittrack/internal/models"
	"github.com/claude/fittrack/internal/syncqueue"
	"github.com/google/uuid"
)

// ErrRemote marks a failure reported by the remote authority.
var ErrRemote = errors.New("remote failure")

// Remote is the authoritative workout store.
type Remote interface {
	ListWorkouts(ctx context.Context) ([]models.Workout, error)
	GetWorkout(ctx context.Context, id string) (*models.Workout, error)
	CreateWorkout(ctx context.Context, w models.Workout) (*models.Workout, error)
	UpdateWorkout(ctx context.Context, id string, patch models.WorkoutPatch) (*models.Workout, error)
	DeleteWorkout(ctx context.Context, id string) error
	RecordCompletion(ctx context.Context, rec models.CompletionRecord) error
}

// Options configures a Service. Zero values are usable.
type Options struct {
	// Remote is nil when running on local mock data.
	Remote       Remote
	Connectivity connectivity.Provider
	// Latency simulates a network round trip on online reads and writes.
	Latency time.Duration
	// Seed is the first snapshot for a new device. Nil means DefaultWorkouts.
	Seed    []models.Workout
	Metrics *metrics.Sync
	Now     func() time.Time
}

// SyncResult is the outcome of SyncOfflineData. Failures are reported here,
// never as an error.
type SyncResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Applied int    `json:"applied"`
}

// OfflineStatus is the cheap, side-effect-free status view.
type OfflineStatus struct {
	IsOffline        bool `json:"is_offline"`
	PendingSyncItems int  `json:"pending_sync_items"`
	HasOfflineData   bool `json:"has_offline_data"`
}

// Service is the single mutator of the workout keys in the local store.
// Each method holds the service lock for its whole read-modify-write.
type Service struct {
	store   *localstore.Store
	cache   *cache.Workouts
	queue   *syncqueue.Queue
	remote  Remote
	conn    connectivity.Provider
	latency time.Duration
	metrics *metrics.Sync
	now     func() time.Time
	log     *slog.Logger

	mu sync.Mutex
}

// New builds the service over store, seeding the cache on first use.
func New(store *localstore.Store, opts Options, log *slog.Logger) (*Service, error) {
	if opts.Connectivity == nil {
		opts.Connectivity = connectivity.NewManual(true)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seed := opts.Seed
	if seed == nil {
		seed = DefaultWorkouts()
	}

	c := cache.New(store)
	if err := c.Initialize(seed); err != nil {
		return nil, fmt.Errorf("initializing workout cache: %w", err)
	}
	q, err := syncqueue.New(store, opts.Metrics, log)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:   store,
		cache:   c,
		queue:   q,
		remote:  opts.Remote,
		conn:    opts.Connectivity,
		latency: opts.Latency,
		metrics: opts.Metrics,
		now:     opts.Now,
		log:     log,
	}, nil
}

// GetAll returns every workout from the active source.
func (s *Service) GetAll(ctx context.Context) ([]models.Workout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAll(ctx)
}

func (s *Service) getAll(ctx context.Context) ([]models.Workout, error) {
	if !s.conn.IsOnline() {
		return s.cache.ReadAll(false)
	}
	if err := s.delay(ctx); err != nil {
		return nil, err
	}

	var list []models.Workout
	if s.remote != nil {
		fetched, err := s.remote.ListWorkouts(ctx)
		if err != nil {
			s.log.Error("fetching workouts", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrRemote, err)
		}
		list = s.overlayPending(fetched, s.queue.Entries())
	} else {
		current, err := s.cache.ReadAll(true)
		if err != nil {
			return nil, err
		}
		list = current
	}

	if err := s.cache.Write(list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetByID returns one workout or an error wrapping models.ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Workout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	online := s.conn.IsOnline()
	if online {
		if err := s.delay(ctx); err != nil {
			return nil, err
		}
	}
	// The remote does not know about queued changes to id yet.
	if !online || s.remote == nil || s.hasPending(id) {
		w, err := s.cache.ReadOne(online, id)
		if err != nil {
			return nil, err
		}
		return &w, nil
	}

	w, err := s.remote.GetWorkout(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("workout %s: %w", id, models.ErrNotFound)
		}
		s.log.Error("fetching workout", "id", id, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRemote, err)
	}
	if err := s.upsertCached(*w); err != nil {
		return nil, err
	}
	return w, nil
}

// Create adds a workout. Missing ids are generated for the workout and its
// exercises.
func (s *Service) Create(ctx context.Context, w models.Workout) (*models.Workout, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	queued := s.mustQueue(ctx)
	online := s.conn.IsOnline()
	current, err := s.cache.ReadAll(online)
	if err != nil {
		return nil, err
	}

	w = w.Clone()
	if w.ID == "" {
		id, err := newID()
		if err != nil {
			return nil, err
		}
		w.ID = id
	} else if indexOf(current, w.ID) >= 0 {
		return nil, fmt.Errorf("%w: workout %s already exists", models.ErrInvalidInput, w.ID)
	}
	for i := range w.Exercises {
		if w.Exercises[i].ID == "" {
			id, err := newID()
			if err != nil {
				return nil, err
			}
			w.Exercises[i].ID = id
		}
	}
	now := s.now().UTC()
	w.CreatedAt = now
	w.ModifiedAt = now

	var staged *syncqueue.Staged
	if queued {
		if staged, err = s.queue.Stage(models.SyncCreate, w.ID, w); err != nil {
			return nil, err
		}
	} else {
		if err := s.delay(ctx); err != nil {
			return nil, err
		}
		if s.remote != nil {
			created, err := s.remote.CreateWorkout(ctx, w)
			if err != nil {
				s.log.Error("creating workout", "name", w.Name, "error", err)
				return nil, fmt.Errorf("%w: %w", ErrRemote, err)
			}
			w = *created
		}
	}

	if err := s.persist(append(current, w), staged); err != nil {
		return nil, err
	}
	s.log.Info("workout created", "id", w.ID, "name", w.Name, "queued", queued)
	return &w, nil
}

// Update merges patch into the workout with id.
func (s *Service) Update(ctx context.Context, id string, patch models.WorkoutPatch) (*models.Workout, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: empty update", models.ErrInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	queued := s.mustQueue(ctx)
	online := s.conn.IsOnline()
	current, err := s.cache.ReadAll(online)
	if err != nil {
		return nil, err
	}
	idx := indexOf(current, id)

	var updated models.Workout
	if !queued && s.remote != nil {
		if err := s.delay(ctx); err != nil {
			return nil, err
		}
		w, err := s.remote.UpdateWorkout(ctx, id, patch)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("workout %s: %w", id, models.ErrNotFound)
			}
			s.log.Error("updating workout", "id", id, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrRemote, err)
		}
		updated = *w
	} else {
		if idx < 0 {
			return nil, fmt.Errorf("workout %s: %w", id, models.ErrNotFound)
		}
		if !queued {
			if err := s.delay(ctx); err != nil {
				return nil, err
			}
		}
		updated = patch.Apply(current[idx])
		updated.ModifiedAt = s.now().UTC()
	}

	if idx >= 0 {
		current[idx] = updated
	} else {
		current = append(current, updated)
	}
	var staged *syncqueue.Staged
	if queued {
		if staged, err = s.queue.Stage(models.SyncUpdate, id, patch); err != nil {
			return nil, err
		}
	}
	if err := s.persist(current, staged); err != nil {
		return nil, err
	}
	s.log.Info("workout updated", "id", id, "queued", queued)
	return &updated, nil
}

// Delete removes the workout with id and returns the removed record.
func (s *Service) Delete(ctx context.Context, id string) (*models.Workout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := s.mustQueue(ctx)
	online := s.conn.IsOnline()
	current, err := s.cache.ReadAll(online)
	if err != nil {
		return nil, err
	}
	idx := indexOf(current, id)

	var removed models.Workout
	if idx >= 0 {
		removed = current[idx]
	}

	if !queued {
		if err := s.delay(ctx); err != nil {
			return nil, err
		}
	}
	if !queued && s.remote != nil {
		if idx < 0 {
			w, err := s.remote.GetWorkout(ctx, id)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return nil, fmt.Errorf("workout %s: %w", id, models.ErrNotFound)
				}
				return nil, fmt.Errorf("%w: %w", ErrRemote, err)
			}
			removed = *w
		}
		if err := s.remote.DeleteWorkout(ctx, id); err != nil {
			s.log.Error("deleting workout", "id", id, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrRemote, err)
		}
	} else if idx < 0 {
		return nil, fmt.Errorf("workout %s: %w", id, models.ErrNotFound)
	}

	var staged *syncqueue.Staged
	if queued {
		if staged, err = s.queue.Stage(models.SyncDelete, id, nil); err != nil {
			return nil, err
		}
	}
	if idx >= 0 {
		current = append(current[:idx], current[idx+1:]...)
		if err := s.persist(current, staged); err != nil {
			return nil, err
		}
	}
	s.log.Info("workout deleted", "id", id, "queued", queued)
	return &removed, nil
}

// CompleteWorkout records a finished attempt. The record is written to the
// local history before anything else and is never lost to a network
// condition: when offline, or when the remote rejects it, a complete entry is
// queued for later replay.
func (s *Service) CompleteWorkout(ctx context.Context, id string, data models.CompletionData) (*models.CompletionRecord, error) {
	if data.DurationSeconds < 0 || data.CaloriesBurned < 0 {
		return nil, fmt.Errorf("%w: negative duration or calories", models.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	queued := s.mustQueue(ctx)
	online := s.conn.IsOnline()
	w, err := s.cache.ReadOne(online, id)
	if errors.Is(err, models.ErrNotFound) && !queued && s.remote != nil {
		fetched, ferr := s.remote.GetWorkout(ctx, id)
		if ferr == nil {
			w, err = *fetched, nil
		}
	}
	if err != nil {
		return nil, err
	}

	recID, err := newID()
	if err != nil {
		return nil, err
	}
	rec := models.CompletionRecord{
		ID:              recID,
		WorkoutID:       w.ID,
		WorkoutName:     w.Name,
		CompletedAt:     s.now().UTC(),
		DurationSeconds: data.DurationSeconds,
		CaloriesBurned:  data.CaloriesBurned,
		Exercises:       data.Exercises,
		Notes:           data.Notes,
	}
	if rec.CaloriesBurned == 0 {
		rec.CaloriesBurned = w.CaloriesBurned
	}
	if rec.Exercises == nil {
		rec.Exercises = w.Clone().Exercises
	}

	history, err := localstore.GetOrDefault(s.store, localstore.KeyCompletedWorkouts, []models.CompletionRecord{})
	if err != nil {
		return nil, fmt.Errorf("reading completion history: %w", err)
	}
	history = append(history, rec)

	if queued {
		staged, err := s.queue.Stage(models.SyncComplete, rec.ID, rec)
		if err != nil {
			return nil, err
		}
		err = s.store.SetMany(map[string]any{
			localstore.KeyCompletedWorkouts: history,
			localstore.KeySyncQueue:         staged.Queue(),
		})
		if err != nil {
			return nil, fmt.Errorf("writing completion history: %w", err)
		}
		staged.Commit()
		s.metrics.Completion(false)
	} else {
		if err := s.store.Set(localstore.KeyCompletedWorkouts, history); err != nil {
			return nil, fmt.Errorf("writing completion history: %w", err)
		}
		s.metrics.Completion(true)

		retry := false
		if err := s.delay(ctx); err != nil {
			retry = true
		} else if s.remote != nil {
			if err := s.remote.RecordCompletion(ctx, rec); err != nil {
				s.log.Warn("recording completion remotely, queued for sync", "workout", id, "error", err)
				retry = true
			}
		}
		if retry {
			if _, err := s.queue.Enqueue(models.SyncComplete, rec.ID, rec); err != nil {
				return nil, err
			}
		}
	}

	s.log.Info("workout completed", "workout", id, "record", rec.ID, "duration", rec.DurationSeconds, "queued", queued)
	return &rec, nil
}

// GetCompletedWorkouts returns the local completion history, oldest first.
func (s *Service) GetCompletedWorkouts(ctx context.Context) ([]models.CompletionRecord, error) {
	history, err := localstore.GetOrDefault(s.store, localstore.KeyCompletedWorkouts, []models.CompletionRecord{})
	if err != nil {
		return nil, fmt.Errorf("reading completion history: %w", err)
	}
	return history, nil
}

// SyncOfflineData drains the sync queue against the remote.
func (s *Service) SyncOfflineData(ctx context.Context) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn.IsOnline() {
		return SyncResult{Success: false, Message: "Still offline"}
	}
	if s.queue.Status().PendingCount == 0 {
		return SyncResult{Success: true, Message: "No data to sync"}
	}

	n, err := s.drain(ctx)
	if err != nil {
		s.log.Error("sync failed", "error", err, "pending", s.queue.Status().PendingCount)
		return SyncResult{Success: false, Message: "Sync failed: " + err.Error()}
	}

	s.log.Info("offline data synced", "applied", n)
	return SyncResult{
		Success: true,
		Message: fmt.Sprintf("Synced %d items successfully", n),
		Applied: n,
	}
}

// GetOfflineStatus reads connectivity and the queue length. It does not
// touch the store. HasOfflineData is true when the snapshot holds workouts or
// mutations are waiting to sync.
func (s *Service) GetOfflineStatus() OfflineStatus {
	return OfflineStatus{
		IsOffline:        !s.conn.IsOnline(),
		PendingSyncItems: s.queue.Status().PendingCount,
		HasOfflineData:   s.cache.HasSnapshot() || s.queue.Status().PendingCount > 0,
	}
}

// PendingEntries returns the queued mutations in replay order.
func (s *Service) PendingEntries() []models.SyncEntry {
	return s.queue.Entries()
}

// ListByCategory filters workouts by category or name. "all" and "" match
// everything.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]models.Workout, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" || category == "all" {
		return all, nil
	}
	var out []models.Workout
	for _, w := range all {
		if strings.ToLower(w.Category) == category || strings.Contains(strings.ToLower(w.Name), category) {
			out = append(out, w)
		}
	}
	return out, nil
}

// QuickStart returns the first n workouts.
func (s *Service) QuickStart(ctx context.Context, n int) ([]models.Workout, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// replay applies one queued entry. Without a remote there is nothing to
// reconcile with and the entry is acknowledged as is.
func (s *Service) replay(ctx context.Context, e models.SyncEntry) error {
	if s.remote == nil {
		s.log.Debug("no remote configured, acknowledging entry", "action", e.Action, "target", e.TargetID)
		return nil
	}

	switch e.Action {
	case models.SyncCreate:
		var w models.Workout
		if err := json.Unmarshal(e.Payload, &w); err != nil {
			return fmt.Errorf("decoding create payload: %w", err)
		}
		_, err := s.remote.CreateWorkout(ctx, w)
		return err
	case models.SyncUpdate:
		var p models.WorkoutPatch
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decoding update payload: %w", err)
		}
		_, err := s.remote.UpdateWorkout(ctx, e.TargetID, p)
		if errors.Is(err, models.ErrNotFound) {
			s.log.Warn("dropping update for workout missing remotely", "id", e.TargetID)
			return nil
		}
		return err
	case models.SyncDelete:
		return s.remote.DeleteWorkout(ctx, e.TargetID)
	case models.SyncComplete:
		var rec models.CompletionRecord
		if err := json.Unmarshal(e.Payload, &rec); err != nil {
			return fmt.Errorf("decoding completion payload: %w", err)
		}
		return s.remote.RecordCompletion(ctx, rec)
	default:
		return fmt.Errorf("unknown sync action %q", e.Action)
	}
}

// drain replays the queue and refreshes the cache from the remote.
func (s *Service) drain(ctx context.Context) (int, error) {
	n, err := s.queue.Drain(ctx, s.replay)
	if err != nil {
		return 0, err
	}
	if s.remote != nil {
		list, err := s.remote.ListWorkouts(ctx)
		if err != nil {
			s.log.Warn("refreshing cache after sync", "error", err)
		} else if err := s.cache.Write(list); err != nil {
			s.log.Warn("writing cache after sync", "error", err)
		}
	}
	return n, nil
}

// mustQueue reports whether a mutation has to go through the sync queue:
// offline, or online while earlier queued mutations cannot be replayed first.
func (s *Service) mustQueue(ctx context.Context) bool {
	if !s.conn.IsOnline() {
		return true
	}
	if s.remote == nil || s.queue.Status().PendingCount == 0 {
		return false
	}
	n, err := s.drain(ctx)
	if err != nil {
		s.log.Warn("replaying queued mutations failed, queueing behind them", "error", err, "pending", s.queue.Status().PendingCount)
		return true
	}
	s.log.Info("offline data synced", "applied", n)
	return false
}

// persist writes the snapshot and, when staged is set, the queue in one
// transaction.
func (s *Service) persist(list []models.Workout, staged *syncqueue.Staged) error {
	if staged == nil {
		return s.cache.Write(list)
	}
	snapshot := cache.Snapshot(list)
	err := s.store.SetMany(map[string]any{
		localstore.KeyWorkoutsSnapshot: snapshot,
		localstore.KeySyncQueue:        staged.Queue(),
	})
	if err != nil {
		return fmt.Errorf("persisting %s %s: %w", staged.Entry.Action, staged.Entry.TargetID, err)
	}
	s.cache.Commit(snapshot)
	staged.Commit()
	return nil
}

// overlayPending applies queued mutations to a list fetched from the remote,
// which has not seen them yet.
func (s *Service) overlayPending(list []models.Workout, entries []models.SyncEntry) []models.Workout {
	for _, e := range entries {
		idx := indexOf(list, e.TargetID)
		switch e.Action {
		case models.SyncCreate:
			if idx >= 0 {
				continue
			}
			var w models.Workout
			if err := json.Unmarshal(e.Payload, &w); err != nil {
				s.log.Warn("decoding queued create", "entry", e.ID, "error", err)
				continue
			}
			list = append(list, w)
		case models.SyncUpdate:
			if idx < 0 {
				continue
			}
			var p models.WorkoutPatch
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				s.log.Warn("decoding queued update", "entry", e.ID, "error", err)
				continue
			}
			list[idx] = p.Apply(list[idx])
		case models.SyncDelete:
			if idx >= 0 {
				list = append(list[:idx], list[idx+1:]...)
			}
		}
	}
	return list
}

func (s *Service) hasPending(id string) bool {
	for _, e := range s.queue.Entries() {
		if e.TargetID == id && e.Action != models.SyncComplete {
			return true
		}
	}
	return false
}

func (s *Service) upsertCached(w models.Workout) error {
	current, err := s.cache.ReadAll(true)
	if err != nil {
		return err
	}
	if idx := indexOf(current, w.ID); idx >= 0 {
		current[idx] = w
	} else {
		current = append(current, w)
	}
	return s.cache.Write(current)
}

func (s *Service) delay(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func indexOf(list []models.Workout, id string) int {
	for i, w := range list {
		if w.ID == id {
			return i
		}
	}
	return -1
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return id.String(), nil
}
