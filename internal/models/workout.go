package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Difficulty is the effort level of a workout.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
// The empty value counts as unset and is valid.
func (d Difficulty) Valid() bool {
	switch d {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Exercise is a single movement prescription embedded in a Workout.
type Exercise struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Sets      int     `json:"sets"`
	Reps      int     `json:"reps"`
	Weight    float64 `json:"weight"`
	RestTime  int     `json:"rest_time"` // seconds
	Completed bool    `json:"completed,omitempty"`
}

// Workout is a named, ordered collection of exercises. The order of
// Exercises is the progression order of a session.
type Workout struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Duration       int        `json:"duration"` // minutes
	Difficulty     Difficulty `json:"difficulty"`
	Category       string     `json:"category"`
	TargetMuscles  []string   `json:"target_muscles"`
	CaloriesBurned int        `json:"calories_burned"`
	Exercises      []Exercise `json:"exercises"`
	CreatedAt      time.Time  `json:"created_at"`
	ModifiedAt     time.Time  `json:"modified_at"`
}

// Clone returns a deep copy so callers can't mutate cached slices.
func (w Workout) Clone() Workout {
	c := w
	if w.TargetMuscles != nil {
		c.TargetMuscles = append([]string(nil), w.TargetMuscles...)
	}
	if w.Exercises != nil {
		c.Exercises = append([]Exercise(nil), w.Exercises...)
	}
	return c
}

// ExerciseByID returns the exercise with the given id and its position.
func (w Workout) ExerciseByID(id string) (Exercise, int, bool) {
	for i, e := range w.Exercises {
		if e.ID == id {
			return e, i, true
		}
	}
	return Exercise{}, -1, false
}

// Validate checks the fields a caller may have set on a new workout.
func (w Workout) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !w.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, w.Difficulty)
	}
	if w.Duration < 0 || w.CaloriesBurned < 0 {
		return fmt.Errorf("%w: duration and calories must not be negative", ErrInvalidInput)
	}
	return validateExercises(w.Exercises)
}

func validateExercises(exercises []Exercise) error {
	for i, e := range exercises {
		if e.Sets < 1 {
			return fmt.Errorf("%w: exercise %d (%s) needs at least one set", ErrInvalidInput, i, e.Name)
		}
		if e.Reps < 0 || e.Weight < 0 || e.RestTime < 0 {
			return fmt.Errorf("%w: exercise %d (%s) has negative values", ErrInvalidInput, i, e.Name)
		}
	}
	return nil
}

// WorkoutPatch is a partial update. Nil fields are left untouched.
type WorkoutPatch struct {
	Name           *string     `json:"name,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Duration       *int        `json:"duration,omitempty"`
	Difficulty     *Difficulty `json:"difficulty,omitempty"`
	Category       *string     `json:"category,omitempty"`
	TargetMuscles  *[]string   `json:"target_muscles,omitempty"`
	CaloriesBurned *int        `json:"calories_burned,omitempty"`
	Exercises      *[]Exercise `json:"exercises,omitempty"`
}

// DecodeWorkoutPatch parses a JSON patch, rejecting keys that are not
// updateable workout fields.
func DecodeWorkoutPatch(data []byte) (WorkoutPatch, error) {
	var p WorkoutPatch
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return WorkoutPatch{}, fmt.Errorf("%w: decoding workout patch: %v", ErrInvalidInput, err)
	}
	return p, nil
}

// IsEmpty reports whether the patch changes nothing.
func (p WorkoutPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Duration == nil &&
		p.Difficulty == nil && p.Category == nil && p.TargetMuscles == nil &&
		p.CaloriesBurned == nil && p.Exercises == nil
}

// Validate checks the set fields of the patch.
func (p WorkoutPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if p.Difficulty != nil && (*p.Difficulty == "" || !p.Difficulty.Valid()) {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, *p.Difficulty)
	}
	if p.Duration != nil && *p.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidInput)
	}
	if p.CaloriesBurned != nil && *p.CaloriesBurned < 0 {
		return fmt.Errorf("%w: calories must not be negative", ErrInvalidInput)
	}
	if p.Exercises != nil {
		return validateExercises(*p.Exercises)
	}
	return nil
}

// Apply returns a copy of w with the patch merged in.
func (p WorkoutPatch) Apply(w Workout) Workout {
	out := w.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Duration != nil {
		out.Duration = *p.Duration
	}
	if p.Difficulty != nil {
		out.Difficulty = *p.Difficulty
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.TargetMuscles != nil {
		out.TargetMuscles = append([]string(nil), (*p.TargetMuscles)...)
	}
	if p.CaloriesBurned != nil {
		out.CaloriesBurned = *p.CaloriesBurned
	}
	if p.Exercises != nil {
		out.Exercises = append([]Exercise(nil), (*p.Exercises)...)
	}
	return out
}
