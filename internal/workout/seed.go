package workout

import (
	"time"

	"github.com/claude/fittrack/internal/models"
)

// Categories are the filter values offered by the workout list.
var Categories = []string{"strength", "cardio", "flexibility", "hiit"}

var seedTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultWorkouts returns the built-in workouts used as mock data when no
// remote is configured and as the first cache snapshot on a new device.
func DefaultWorkouts() []models.Workout {
	return []models.Workout{
		{
			ID:             "1",
			Name:           "Upper Body Blast",
			Description:    "Chest, back and arms with compound lifts.",
			Duration:       45,
			Difficulty:     models.DifficultyMedium,
			Category:       "strength",
			TargetMuscles:  []string{"chest", "back", "arms", "shoulders"},
			CaloriesBurned: 320,
			Exercises: []models.Exercise{
				{ID: "1-1", Name: "Bench Press", Sets: 4, Reps: 8, Weight: 60, RestTime: 90},
				{ID: "1-2", Name: "Bent Over Row", Sets: 4, Reps: 10, Weight: 50, RestTime: 90},
				{ID: "1-3", Name: "Overhead Press", Sets: 3, Reps: 10, Weight: 35, RestTime: 60},
				{ID: "1-4", Name: "Bicep Curl", Sets: 3, Reps: 12, Weight: 12, RestTime: 45},
			},
			CreatedAt:  seedTime,
			ModifiedAt: seedTime,
		},
		{
			ID:             "2",
			Name:           "HIIT Cardio",
			Description:    "Short intervals at maximum effort.",
			Duration:       30,
			Difficulty:     models.DifficultyHard,
			Category:       "hiit",
			TargetMuscles:  []string{"full body"},
			CaloriesBurned: 400,
			Exercises: []models.Exercise{
				{ID: "2-1", Name: "Burpees", Sets: 4, Reps: 15, RestTime: 30},
				{ID: "2-2", Name: "Mountain Climbers", Sets: 4, Reps: 30, RestTime: 30},
				{ID: "2-3", Name: "Jump Squats", Sets: 4, Reps: 20, RestTime: 30},
			},
			CreatedAt:  seedTime,
			ModifiedAt: seedTime,
		},
		{
			ID:             "3",
			Name:           "Lower Body Power",
			Description:    "Heavy legs and glutes.",
			Duration:       50,
			Difficulty:     models.DifficultyHard,
			Category:       "strength",
			TargetMuscles:  []string{"quads", "hamstrings", "glutes"},
			CaloriesBurned: 450,
			Exercises: []models.Exercise{
				{ID: "3-1", Name: "Back Squat", Sets: 5, Reps: 5, Weight: 100, RestTime: 120},
				{ID: "3-2", Name: "Romanian Deadlift", Sets: 4, Reps: 8, Weight: 80, RestTime: 90},
				{ID: "3-3", Name: "Walking Lunge", Sets: 3, Reps: 12, Weight: 20, RestTime: 60},
			},
			CreatedAt:  seedTime,
			ModifiedAt: seedTime,
		},
	}
}
