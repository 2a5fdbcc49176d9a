// Package session runs one active workout attempt: the elapsed-time clock,
// the rest countdown, per-set completion flags and exercise progression.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/fittrack/internal/models"
	"github.com/claude/fittrack/internal/notify"
	"github.com/claude/fittrack/internal/scheduler"
)

// ErrInvalidTransition means the operation is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid session transition")

const defaultRestSeconds = 60

// State of the session machine. Resting is a sub-state of an in-progress
// session; Finished is held only while the completion is being saved.
type State int

const (
	StateIdle State = iota
	StateInProgress
	StateResting
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in_progress"
	case StateResting:
		return "resting"
	case StateFinished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateIdle, StateInProgress, StateResting, StateFinished} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

func (s State) active() bool {
	return s == StateInProgress || s == StateResting
}

// WorkoutService is what the controller needs from the data layer.
type WorkoutService interface {
	GetByID(ctx context.Context, id string) (*models.Workout, error)
	CompleteWorkout(ctx context.Context, id string, data models.CompletionData) (*models.CompletionRecord, error)
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	State          State            `json:"state"`
	WorkoutID      string           `json:"workout_id,omitempty"`
	WorkoutName    string           `json:"workout_name,omitempty"`
	ExerciseIndex  int              `json:"exercise_index"`
	ExerciseCount  int              `json:"exercise_count"`
	Exercise       *models.Exercise `json:"exercise,omitempty"`
	ElapsedSeconds int              `json:"elapsed_seconds"`
	Clock          string           `json:"clock"`
	RestRemaining  int              `json:"rest_remaining"`
	CompletedSets  map[string]bool  `json:"completed_sets"`
}

// Controller is the session state machine. The main clock and the rest
// countdown each run on their own scheduled timer; at most one of them is
// active. Ticks from a cancelled timer are dropped by comparing generations.
type Controller struct {
	svc    WorkoutService
	sched  scheduler.Scheduler
	notify notify.Notifier
	log    *slog.Logger

	mu            sync.Mutex
	state         State
	workout       *models.Workout
	exerciseIdx   int
	elapsed       int
	restRemaining int
	completedSets map[string]bool

	mainTimer scheduler.Handle
	restTimer scheduler.Handle
	mainGen   uint64
	restGen   uint64
}

// New returns an idle controller.
func New(svc WorkoutService, sched scheduler.Scheduler, n notify.Notifier, log *slog.Logger) *Controller {
	return &Controller{
		svc:           svc,
		sched:         sched,
		notify:        n,
		log:           log,
		completedSets: map[string]bool{},
	}
}

// SetKey is the completion-map key of one set.
func SetKey(exerciseID string, setIndex int) string {
	return fmt.Sprintf("%s-%d", exerciseID, setIndex)
}

// Start loads the workout and begins the session.
func (c *Controller) Start(ctx context.Context, workoutID string) error {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st != StateIdle {
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidTransition, st)
	}

	w, err := c.svc.GetByID(ctx, workoutID)
	if err != nil {
		c.log.Error("loading workout for session", "id", workoutID, "error", err)
		c.notify.Notify(notify.LevelError, "Failed to start workout")
		return fmt.Errorf("starting workout %s: %w", workoutID, err)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidTransition, st)
	}
	loaded := w.Clone()
	c.workout = &loaded
	c.exerciseIdx = 0
	c.elapsed = 0
	c.restRemaining = 0
	c.completedSets = map[string]bool{}
	c.state = StateInProgress
	c.startMainLocked()
	c.mu.Unlock()

	c.log.Info("session started", "workout", loaded.ID, "exercises", len(loaded.Exercises))
	c.notify.Notify(notify.LevelSuccess, fmt.Sprintf("Started %s!", loaded.Name))
	return nil
}

// ToggleSet flips the completion flag of one set and returns the new value.
// Set indexes start at 0.
func (c *Controller) ToggleSet(exerciseID string, setIndex int) (bool, error) {
	c.mu.Lock()
	if !c.state.active() {
		st := c.state
		c.mu.Unlock()
		return false, fmt.Errorf("%w: cannot toggle a set while %s", ErrInvalidTransition, st)
	}
	ex, _, ok := c.workout.ExerciseByID(exerciseID)
	if !ok {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: exercise %s is not part of this workout", models.ErrInvalidInput, exerciseID)
	}
	if setIndex < 0 || setIndex >= ex.Sets {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: set %d out of range for %s (%d sets)", models.ErrInvalidInput, setIndex, ex.Name, ex.Sets)
	}
	key := SetKey(exerciseID, setIndex)
	done := !c.completedSets[key]
	if done {
		c.completedSets[key] = true
	} else {
		delete(c.completedSets, key)
	}
	c.mu.Unlock()

	if done {
		c.notify.Notify(notify.LevelSuccess, "Set completed!")
	}
	return done, nil
}

// StartRest pauses the main clock and counts down seconds. A non-positive
// value falls back to the current exercise's rest time, then to 60 seconds.
// Calling it while resting restarts the countdown.
func (c *Controller) StartRest(seconds int) error {
	c.mu.Lock()
	if !c.state.active() {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot rest while %s", ErrInvalidTransition, st)
	}
	if seconds <= 0 {
		seconds = c.currentRestLocked()
	}
	c.stopMainLocked()
	c.stopRestLocked()
	c.state = StateResting
	c.restRemaining = seconds
	gen := c.restGen
	c.restTimer = c.sched.Schedule(time.Second, func() { c.restTick(gen) })
	c.mu.Unlock()

	c.notify.Notify(notify.LevelInfo, fmt.Sprintf("Rest for %d seconds", seconds))
	return nil
}

// NextExercise advances to the next exercise, leaving any rest early. On the
// last exercise it finishes the session and returns the completion record.
func (c *Controller) NextExercise(ctx context.Context) (*models.CompletionRecord, error) {
	c.mu.Lock()
	if !c.state.active() {
		st := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot advance while %s", ErrInvalidTransition, st)
	}
	if c.exerciseIdx >= len(c.workout.Exercises)-1 {
		c.mu.Unlock()
		return c.Finish(ctx)
	}

	c.exerciseIdx++
	if c.state == StateResting {
		c.stopRestLocked()
		c.restRemaining = 0
		c.state = StateInProgress
		c.startMainLocked()
	}
	c.mu.Unlock()

	c.notify.Notify(notify.LevelInfo, "Moving to next exercise")
	return nil, nil
}

// Finish ends the session and saves a completion with every exercise marked
// done and the elapsed seconds as duration. The session returns to Idle even
// when saving fails; the failure is notified and returned.
func (c *Controller) Finish(ctx context.Context) (*models.CompletionRecord, error) {
	c.mu.Lock()
	if !c.state.active() {
		st := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot finish while %s", ErrInvalidTransition, st)
	}
	c.stopMainLocked()
	c.stopRestLocked()
	c.state = StateFinished

	w := c.workout.Clone()
	for i := range w.Exercises {
		w.Exercises[i].Completed = true
	}
	if w.Exercises == nil {
		w.Exercises = []models.Exercise{}
	}
	data := models.CompletionData{
		DurationSeconds: c.elapsed,
		CaloriesBurned:  w.CaloriesBurned,
		Exercises:       w.Exercises,
	}
	c.mu.Unlock()

	rec, err := c.svc.CompleteWorkout(ctx, w.ID, data)

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	if err != nil {
		c.log.Error("saving completed workout", "workout", w.ID, "error", err)
		c.notify.Notify(notify.LevelError, "Failed to save workout")
		return nil, fmt.Errorf("saving completion of %s: %w", w.ID, err)
	}
	c.log.Info("session finished", "workout", w.ID, "record", rec.ID, "elapsed", data.DurationSeconds)
	c.notify.Notify(notify.LevelSuccess, "Workout completed! Great job!")
	return rec, nil
}

// Stop abandons the session without recording a completion.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.state.active() {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot stop while %s", ErrInvalidTransition, st)
	}
	id := c.workout.ID
	c.stopMainLocked()
	c.stopRestLocked()
	c.resetLocked()
	c.mu.Unlock()

	c.log.Info("session stopped", "workout", id)
	c.notify.Notify(notify.LevelInfo, "Workout stopped")
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:          c.state,
		ExerciseIndex:  c.exerciseIdx,
		ElapsedSeconds: c.elapsed,
		Clock:          FormatClock(c.elapsed),
		RestRemaining:  c.restRemaining,
		CompletedSets:  make(map[string]bool, len(c.completedSets)),
	}
	for k, v := range c.completedSets {
		s.CompletedSets[k] = v
	}
	if c.workout != nil {
		s.WorkoutID = c.workout.ID
		s.WorkoutName = c.workout.Name
		s.ExerciseCount = len(c.workout.Exercises)
		if c.exerciseIdx < len(c.workout.Exercises) {
			ex := c.workout.Exercises[c.exerciseIdx]
			s.Exercise = &ex
		}
	}
	return s
}

// Close cancels any running timer. The controller must not be used after.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopMainLocked()
	c.stopRestLocked()
}

func (c *Controller) mainTick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.mainGen || c.state != StateInProgress {
		return
	}
	c.elapsed++
}

func (c *Controller) restTick(gen uint64) {
	c.mu.Lock()
	if gen != c.restGen || c.state != StateResting {
		c.mu.Unlock()
		return
	}
	if c.restRemaining > 1 {
		c.restRemaining--
		c.mu.Unlock()
		return
	}
	c.restRemaining = 0
	c.stopRestLocked()
	c.state = StateInProgress
	c.startMainLocked()
	c.mu.Unlock()

	c.notify.Notify(notify.LevelInfo, "Rest time over! Let's go!")
}

func (c *Controller) startMainLocked() {
	c.stopMainLocked()
	gen := c.mainGen
	c.mainTimer = c.sched.Schedule(time.Second, func() { c.mainTick(gen) })
}

func (c *Controller) stopMainLocked() {
	c.mainGen++
	if c.mainTimer != nil {
		c.mainTimer.Cancel()
		c.mainTimer = nil
	}
}

func (c *Controller) stopRestLocked() {
	c.restGen++
	if c.restTimer != nil {
		c.restTimer.Cancel()
		c.restTimer = nil
	}
}

func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.workout = nil
	c.exerciseIdx = 0
	c.elapsed = 0
	c.restRemaining = 0
	c.completedSets = map[string]bool{}
}

func (c *Controller) currentRestLocked() int {
	if c.exerciseIdx < len(c.workout.Exercises) {
		if rt := c.workout.Exercises[c.exerciseIdx].RestTime; rt > 0 {
			return rt
		}
	}
	return defaultRestSeconds
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
