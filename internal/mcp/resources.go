package mcp

import (
	"context"
	"encoding/json"

	"github.com/claude/fittrack/internal/workout"
	"github.com/mark3labs/mcp-go/mcp"
)

// recentCompletionsLimit caps the history resource.
const recentCompletionsLimit = 10

var resCategories = mcp.NewResource(
	"fittrack://categories",
	"Workout Categories",
	mcp.WithResourceDescription("Category filters accepted by list_workouts"),
	mcp.WithMIMEType("application/json"),
)

var resSyncQueue = mcp.NewResource(
	"fittrack://sync_queue",
	"Sync Queue",
	mcp.WithResourceDescription("Changes made offline that are waiting to be replayed, in order"),
	mcp.WithMIMEType("application/json"),
)

var resRecentCompletions = mcp.NewResource(
	"fittrack://recent_completions",
	"Recent Completions",
	mcp.WithResourceDescription("The most recently completed workouts, newest first"),
	mcp.WithMIMEType("application/json"),
)

func (h *handlers) categories(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req, workout.Categories)
}

func (h *handlers) syncQueue(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req, map[string]any{
		"status":  h.deps.Workouts.GetOfflineStatus(),
		"entries": h.deps.Workouts.PendingEntries(),
	})
}

func (h *handlers) recentCompletions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	history, err := h.deps.Workouts.GetCompletedWorkouts(ctx)
	if err != nil {
		return nil, err
	}
	n := len(history)
	if n > recentCompletionsLimit {
		n = recentCompletionsLimit
	}
	recent := make([]any, 0, n)
	for i := len(history) - 1; i >= len(history)-n; i-- {
		recent = append(recent, history[i])
	}
	return jsonResource(req, recent)
}

func jsonResource(req mcp.ReadResourceRequest, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
