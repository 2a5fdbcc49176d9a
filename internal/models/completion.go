package models

import "time"

// CompletionData is what a caller knows about a finished attempt.
// Zero CaloriesBurned and nil Exercises default from the source workout.
type CompletionData struct {
	DurationSeconds int        `json:"duration_seconds"`
	CaloriesBurned  int        `json:"calories_burned,omitempty"`
	Exercises       []Exercise `json:"exercises,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// CompletionRecord is an immutable record of a finished workout attempt.
type CompletionRecord struct {
	ID              string     `json:"id"`
	WorkoutID       string     `json:"workout_id"`
	WorkoutName     string     `json:"workout_name"`
	CompletedAt     time.Time  `json:"completed_at"`
	DurationSeconds int        `json:"duration_seconds"`
	CaloriesBurned  int        `json:"calories_burned"`
	Exercises       []Exercise `json:"exercises"`
	Notes           string     `json:"notes,omitempty"`
}
