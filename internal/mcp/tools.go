package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/claude/fittrack/internal/models"
	"github.com/claude/fittrack/internal/notify"
	"github.com/claude/fittrack/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolResponse is the JSON body of every tool result.
type toolResponse struct {
	Result        any              `json:"result,omitempty"`
	Notifications []notify.Message `json:"notifications,omitempty"`
}

// respond wraps v together with pending notifications.
func (h *handlers) respond(v any) (*mcp.CallToolResult, error) {
	resp := toolResponse{Result: v}
	if h.deps.Notes != nil {
		resp.Notifications = h.deps.Notes.Drain()
	}
	result, err := mcp.NewToolResultJSON(resp)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// fail turns a service error into a tool error. Notifications raised by the
// failed call are appended so the caller sees them too.
func (h *handlers) fail(tool string, err error) (*mcp.CallToolResult, error) {
	if !errors.Is(err, models.ErrInvalidInput) && !errors.Is(err, models.ErrNotFound) &&
		!errors.Is(err, session.ErrInvalidTransition) {
		h.log.Error("mcp "+tool, "error", err)
	}
	msg := err.Error()
	if h.deps.Notes != nil {
		for _, n := range h.deps.Notes.Drain() {
			msg += "\n[" + string(n.Level) + "] " + n.Text
		}
	}
	return mcp.NewToolResultError(msg), nil
}

// decodeArg re-encodes a structured argument into dst.
func decodeArg(req mcp.CallToolRequest, key string, dst any) error {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return fmt.Errorf("%w: %s parameter is required", models.ErrInvalidInput, key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrInvalidInput, key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrInvalidInput, key, err)
	}
	return nil
}

// --- Tool definitions ---

var toolListWorkouts = mcp.NewTool("list_workouts",
	mcp.WithDescription("List workouts. Served from the local cache while offline."),
	mcp.WithString("category", mcp.Description("Only workouts in this category (e.g. strength, cardio, flexibility, hiit)")),
	mcp.WithNumber("limit", mcp.Description("Return at most this many workouts, for a quick start pick")),
)

var toolGetWorkout = mcp.NewTool("get_workout",
	mcp.WithDescription("Get one workout with its exercises."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Workout id")),
)

var toolCreateWorkout = mcp.NewTool("create_workout",
	mcp.WithDescription("Create a workout. Queued for sync when offline."),
	mcp.WithObject("workout", mcp.Required(), mcp.Description("Workout fields: name, description, duration (minutes), difficulty (easy|medium|hard), category, target_muscles, calories_burned, exercises [{name, sets, reps, weight, rest_time}]")),
)

var toolUpdateWorkout = mcp.NewTool("update_workout",
	mcp.WithDescription("Update some fields of a workout. Queued for sync when offline."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Workout id")),
	mcp.WithObject("patch", mcp.Required(), mcp.Description("Fields to change, using the create_workout field names")),
)

var toolDeleteWorkout = mcp.NewTool("delete_workout",
	mcp.WithDescription("Delete a workout. Queued for sync when offline."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Workout id")),
)

var toolCompleteWorkout = mcp.NewTool("complete_workout",
	mcp.WithDescription("Record a finished workout without running a session."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Workout id")),
	mcp.WithNumber("duration_seconds", mcp.Required(), mcp.Description("How long the workout took")),
	mcp.WithNumber("calories_burned", mcp.Description("Defaults to the workout's estimate")),
	mcp.WithString("notes", mcp.Description("Free-form notes")),
)

var toolGetCompletedWorkouts = mcp.NewTool("get_completed_workouts",
	mcp.WithDescription("Workout history, oldest first."),
)

var toolGetOfflineStatus = mcp.NewTool("get_offline_status",
	mcp.WithDescription("Connectivity and the number of changes waiting to sync."),
)

var toolSyncOfflineData = mcp.NewTool("sync_offline_data",
	mcp.WithDescription("Replay queued offline changes against the server, in order."),
)

var toolStartSession = mcp.NewTool("start_session",
	mcp.WithDescription("Start a workout session and its clock."),
	mcp.WithString("workout_id", mcp.Required(), mcp.Description("Workout id")),
)

var toolToggleSet = mcp.NewTool("toggle_set",
	mcp.WithDescription("Mark a set done, or undo it."),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Exercise id within the active workout")),
	mcp.WithNumber("set_index", mcp.Required(), mcp.Description("Zero-based set number")),
)

var toolStartRest = mcp.NewTool("start_rest",
	mcp.WithDescription("Start a rest countdown. The main clock pauses while resting."),
	mcp.WithNumber("seconds", mcp.Description("Rest length. Defaults to the current exercise's rest time, else 60.")),
)

var toolNextExercise = mcp.NewTool("next_exercise",
	mcp.WithDescription("Move to the next exercise. On the last exercise this finishes the workout."),
)

var toolFinishSession = mcp.NewTool("finish_session",
	mcp.WithDescription("Finish the session and save it to workout history."),
)

var toolStopSession = mcp.NewTool("stop_session",
	mcp.WithDescription("Abandon the session without saving."),
)

var toolSessionStatus = mcp.NewTool("session_status",
	mcp.WithDescription("Current session state, exercise, clock and completed sets."),
)

// --- Tool handlers ---

func (h *handlers) listWorkouts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	limit := req.GetInt("limit", 0)

	var (
		list []models.Workout
		err  error
	)
	switch {
	case category != "":
		list, err = h.deps.Workouts.ListByCategory(ctx, category)
		if err == nil && limit > 0 && len(list) > limit {
			list = list[:limit]
		}
	case limit > 0:
		list, err = h.deps.Workouts.QuickStart(ctx, limit)
	default:
		list, err = h.deps.Workouts.GetAll(ctx)
	}
	if err != nil {
		return h.fail("list_workouts", err)
	}
	return h.respond(list)
}

func (h *handlers) getWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	w, err := h.deps.Workouts.GetByID(ctx, id)
	if err != nil {
		return h.fail("get_workout", err)
	}
	return h.respond(w)
}

func (h *handlers) createWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var w models.Workout
	if err := decodeArg(req, "workout", &w); err != nil {
		return h.fail("create_workout", err)
	}
	created, err := h.deps.Workouts.Create(ctx, w)
	if err != nil {
		return h.fail("create_workout", err)
	}
	return h.respond(created)
}

func (h *handlers) updateWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	raw, ok := req.GetArguments()["patch"]
	if !ok {
		return mcp.NewToolResultError("patch parameter is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError("patch must be an object"), nil
	}
	patch, err := models.DecodeWorkoutPatch(data)
	if err != nil {
		return h.fail("update_workout", err)
	}
	updated, err := h.deps.Workouts.Update(ctx, id, patch)
	if err != nil {
		return h.fail("update_workout", err)
	}
	return h.respond(updated)
}

func (h *handlers) deleteWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	deleted, err := h.deps.Workouts.Delete(ctx, id)
	if err != nil {
		return h.fail("delete_workout", err)
	}
	return h.respond(deleted)
}

func (h *handlers) completeWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	duration, err := req.RequireInt("duration_seconds")
	if err != nil {
		return mcp.NewToolResultError("duration_seconds parameter is required"), nil
	}
	if duration < 0 {
		return mcp.NewToolResultError("duration_seconds must not be negative"), nil
	}
	rec, err := h.deps.Workouts.CompleteWorkout(ctx, id, models.CompletionData{
		DurationSeconds: duration,
		CaloriesBurned:  req.GetInt("calories_burned", 0),
		Notes:           req.GetString("notes", ""),
	})
	if err != nil {
		return h.fail("complete_workout", err)
	}
	return h.respond(rec)
}

func (h *handlers) getCompletedWorkouts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	history, err := h.deps.Workouts.GetCompletedWorkouts(ctx)
	if err != nil {
		return h.fail("get_completed_workouts", err)
	}
	return h.respond(history)
}

func (h *handlers) getOfflineStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.respond(h.deps.Workouts.GetOfflineStatus())
}

func (h *handlers) syncOfflineData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := h.deps.Workouts.SyncOfflineData(ctx)
	if !res.Success && h.deps.Notes != nil {
		h.deps.Notes.Notify(notify.LevelError, res.Message)
	}
	return h.respond(res)
}

func (h *handlers) startSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workout_id")
	if err != nil {
		return mcp.NewToolResultError("workout_id parameter is required"), nil
	}
	if err := h.deps.Session.Start(ctx, id); err != nil {
		return h.fail("start_session", err)
	}
	return h.respond(h.deps.Session.Snapshot())
}

func (h *handlers) toggleSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exerciseID, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	setIndex, err := req.RequireInt("set_index")
	if err != nil {
		return mcp.NewToolResultError("set_index parameter is required"), nil
	}
	if _, err := h.deps.Session.ToggleSet(exerciseID, setIndex); err != nil {
		return h.fail("toggle_set", err)
	}
	return h.respond(h.deps.Session.Snapshot())
}

func (h *handlers) startRest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.deps.Session.StartRest(req.GetInt("seconds", 0)); err != nil {
		return h.fail("start_rest", err)
	}
	return h.respond(h.deps.Session.Snapshot())
}

func (h *handlers) nextExercise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := h.deps.Session.NextExercise(ctx)
	if err != nil {
		return h.fail("next_exercise", err)
	}
	if rec != nil {
		return h.respond(rec)
	}
	return h.respond(h.deps.Session.Snapshot())
}

func (h *handlers) finishSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := h.deps.Session.Finish(ctx)
	if err != nil {
		return h.fail("finish_session", err)
	}
	return h.respond(rec)
}

func (h *handlers) stopSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.deps.Session.Stop(); err != nil {
		return h.fail("stop_session", err)
	}
	return h.respond(h.deps.Session.Snapshot())
}

func (h *handlers) sessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.respond(h.deps.Session.Snapshot())
}
