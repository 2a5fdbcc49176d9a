package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/fittrack/internal/models"
	"github.com/claude/fittrack/internal/records"
	"github.com/claude/fittrack/internal/workout"
)

// ErrRemoteFailure means the record API answered with success=false.
var ErrRemoteFailure = errors.New("record api failure")

// WorkoutAdapter maps the workout and workout_completion tables onto
// models. Not-found answers become models.ErrNotFound.
type WorkoutAdapter struct {
	api Capability
}

// Compile-time check: WorkoutAdapter satisfies workout.Remote.
var _ workout.Remote = (*WorkoutAdapter)(nil)

// NewWorkoutAdapter wraps a record API capability.
func NewWorkoutAdapter(api Capability) *WorkoutAdapter {
	return &WorkoutAdapter{api: api}
}

// exerciseRecord is an exercise as stored in the exercises field.
type exerciseRecord struct {
	ID        string  `json:"Id"`
	Name      string  `json:"Name"`
	Sets      int     `json:"sets"`
	Reps      int     `json:"reps"`
	Weight    float64 `json:"weight"`
	RestTime  int     `json:"rest_time"`
	Completed bool    `json:"completed,omitempty"`
}

// workoutRecord is a row of the workout table. target_muscles is stored as
// a comma separated string.
type workoutRecord struct {
	ID             string           `json:"Id"`
	Name           string           `json:"Name"`
	Description    string           `json:"description"`
	Duration       int              `json:"duration"`
	Difficulty     string           `json:"difficulty"`
	Category       string           `json:"category"`
	TargetMuscles  string           `json:"target_muscles"`
	CaloriesBurned int              `json:"calories_burned"`
	Exercises      []exerciseRecord `json:"exercises"`
	CreatedOn      time.Time        `json:"CreatedOn"`
	ModifiedOn     time.Time        `json:"ModifiedOn"`
}

func (a *WorkoutAdapter) ListWorkouts(ctx context.Context) ([]models.Workout, error) {
	resp, err := a.api.FetchRecords(ctx, records.TableWorkout, records.Tables[records.TableWorkout].Fields())
	if err != nil {
		return nil, err
	}
	if err := checkResponse("list workouts", resp); err != nil {
		return nil, err
	}

	var rows []workoutRecord
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &rows); err != nil {
			return nil, fmt.Errorf("decoding workout records: %w", err)
		}
	}
	out := make([]models.Workout, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (a *WorkoutAdapter) GetWorkout(ctx context.Context, id string) (*models.Workout, error) {
	resp, err := a.api.GetRecordByID(ctx, records.TableWorkout, id, records.Tables[records.TableWorkout].Fields())
	if err != nil {
		return nil, err
	}
	if err := checkResponse("get workout "+id, resp); err != nil {
		return nil, err
	}
	var row workoutRecord
	if err := json.Unmarshal(resp.Data, &row); err != nil {
		return nil, fmt.Errorf("decoding workout record: %w", err)
	}
	w := row.toModel()
	return &w, nil
}

func (a *WorkoutAdapter) CreateWorkout(ctx context.Context, w models.Workout) (*models.Workout, error) {
	resp, err := a.api.CreateRecord(ctx, records.TableWorkout, []records.Record{workoutToRecord(w)})
	if err != nil {
		return nil, err
	}
	if err := checkResponse("create workout "+w.Name, resp); err != nil {
		return nil, err
	}
	return firstWorkout(resp, w)
}

func (a *WorkoutAdapter) UpdateWorkout(ctx context.Context, id string, patch models.WorkoutPatch) (*models.Workout, error) {
	resp, err := a.api.UpdateRecord(ctx, records.TableWorkout, []records.Record{patchToRecord(id, patch)})
	if err != nil {
		return nil, err
	}
	if err := checkResponse("update workout "+id, resp); err != nil {
		return nil, err
	}
	return firstWorkout(resp, models.Workout{ID: id})
}

func (a *WorkoutAdapter) DeleteWorkout(ctx context.Context, id string) error {
	resp, err := a.api.DeleteRecord(ctx, records.TableWorkout, []string{id})
	if err != nil {
		return err
	}
	return checkResponse("delete workout "+id, resp)
}

func (a *WorkoutAdapter) RecordCompletion(ctx context.Context, rec models.CompletionRecord) error {
	resp, err := a.api.CreateRecord(ctx, records.TableCompletion, []records.Record{completionToRecord(rec)})
	if err != nil {
		return err
	}
	return checkResponse("record completion "+rec.ID, resp)
}

func checkResponse(op string, resp *records.Response) error {
	if resp.NotFound {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if !resp.Success {
		return fmt.Errorf("%s: %w: %s", op, ErrRemoteFailure, resp.Message)
	}
	if res, failed := resp.FirstFailure(); failed {
		if res.NotFound {
			return fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return fmt.Errorf("%s: %w: %s", op, ErrRemoteFailure, res.Message)
	}
	return nil
}

// firstWorkout decodes the first result's data, falling back to what was
// sent when the API returned no data.
func firstWorkout(resp *records.Response, sent models.Workout) (*models.Workout, error) {
	if len(resp.Results) == 0 || resp.Results[0].Data == nil {
		return &sent, nil
	}
	row, err := recordToWorkout(resp.Results[0].Data)
	if err != nil {
		return nil, err
	}
	w := row.toModel()
	return &w, nil
}

func recordToWorkout(rec records.Record) (workoutRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return workoutRecord{}, fmt.Errorf("encoding workout record: %w", err)
	}
	var row workoutRecord
	if err := json.Unmarshal(data, &row); err != nil {
		return workoutRecord{}, fmt.Errorf("decoding workout record: %w", err)
	}
	return row, nil
}

func (r workoutRecord) toModel() models.Workout {
	w := models.Workout{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Duration:       r.Duration,
		Difficulty:     models.Difficulty(r.Difficulty),
		Category:       r.Category,
		TargetMuscles:  splitList(r.TargetMuscles),
		CaloriesBurned: r.CaloriesBurned,
		CreatedAt:      r.CreatedOn,
		ModifiedAt:     r.ModifiedOn,
	}
	if r.Exercises != nil {
		w.Exercises = make([]models.Exercise, len(r.Exercises))
		for i, e := range r.Exercises {
			w.Exercises[i] = models.Exercise{
				ID:        e.ID,
				Name:      e.Name,
				Sets:      e.Sets,
				Reps:      e.Reps,
				Weight:    e.Weight,
				RestTime:  e.RestTime,
				Completed: e.Completed,
			}
		}
	}
	return w
}

func workoutToRecord(w models.Workout) records.Record {
	return records.Record{
		"Id":              w.ID,
		"Name":            w.Name,
		"description":     w.Description,
		"duration":        w.Duration,
		"difficulty":      string(w.Difficulty),
		"category":        w.Category,
		"target_muscles":  strings.Join(w.TargetMuscles, ","),
		"calories_burned": w.CaloriesBurned,
		"exercises":       exercisesToRecords(w.Exercises),
	}
}

func patchToRecord(id string, p models.WorkoutPatch) records.Record {
	rec := records.Record{"Id": id}
	if p.Name != nil {
		rec["Name"] = *p.Name
	}
	if p.Description != nil {
		rec["description"] = *p.Description
	}
	if p.Duration != nil {
		rec["duration"] = *p.Duration
	}
	if p.Difficulty != nil {
		rec["difficulty"] = string(*p.Difficulty)
	}
	if p.Category != nil {
		rec["category"] = *p.Category
	}
	if p.TargetMuscles != nil {
		rec["target_muscles"] = strings.Join(*p.TargetMuscles, ",")
	}
	if p.CaloriesBurned != nil {
		rec["calories_burned"] = *p.CaloriesBurned
	}
	if p.Exercises != nil {
		rec["exercises"] = exercisesToRecords(*p.Exercises)
	}
	return rec
}

func completionToRecord(c models.CompletionRecord) records.Record {
	return records.Record{
		"Id":              c.ID,
		"Name":            c.WorkoutName,
		"workout_id":      c.WorkoutID,
		"completed_at":    c.CompletedAt.UTC().Format(time.RFC3339),
		"duration":        c.DurationSeconds,
		"calories_burned": c.CaloriesBurned,
		"exercises":       exercisesToRecords(c.Exercises),
		"notes":           c.Notes,
	}
}

func exercisesToRecords(in []models.Exercise) []exerciseRecord {
	out := make([]exerciseRecord, len(in))
	for i, e := range in {
		out[i] = exerciseRecord{
			ID:        e.ID,
			Name:      e.Name,
			Sets:      e.Sets,
			Reps:      e.Reps,
			Weight:    e.Weight,
			RestTime:  e.RestTime,
			Completed: e.Completed,
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
