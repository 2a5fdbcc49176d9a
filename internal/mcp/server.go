// Package mcp exposes the workout service and the active session as MCP
// tools, so an assistant can drive a workout the way a UI would.
package mcp

import (
	"log/slog"

	"github.com/claude/fittrack/internal/notify"
	"github.com/claude/fittrack/internal/session"
	"github.com/claude/fittrack/internal/workout"
	"github.com/mark3labs/mcp-go/server"
)

// Deps are the components the tools operate on.
type Deps struct {
	Workouts *workout.Service
	Session  *session.Controller
	// Notes collects user-facing messages; each tool result carries the
	// ones raised since the previous call.
	Notes *notify.Recorder
}

// New creates an MCP server with all tools and resources registered.
func New(deps Deps, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("FitTrack", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("FitTrack workout tracker. Browse and edit workouts, run a workout session set by set, and sync changes made while offline."),
	)

	h := &handlers{deps: deps, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListWorkouts, Handler: h.listWorkouts},
		server.ServerTool{Tool: toolGetWorkout, Handler: h.getWorkout},
		server.ServerTool{Tool: toolCreateWorkout, Handler: h.createWorkout},
		server.ServerTool{Tool: toolUpdateWorkout, Handler: h.updateWorkout},
		server.ServerTool{Tool: toolDeleteWorkout, Handler: h.deleteWorkout},
		server.ServerTool{Tool: toolCompleteWorkout, Handler: h.completeWorkout},
		server.ServerTool{Tool: toolGetCompletedWorkouts, Handler: h.getCompletedWorkouts},
		server.ServerTool{Tool: toolGetOfflineStatus, Handler: h.getOfflineStatus},
		server.ServerTool{Tool: toolSyncOfflineData, Handler: h.syncOfflineData},
		server.ServerTool{Tool: toolStartSession, Handler: h.startSession},
		server.ServerTool{Tool: toolToggleSet, Handler: h.toggleSet},
		server.ServerTool{Tool: toolStartRest, Handler: h.startRest},
		server.ServerTool{Tool: toolNextExercise, Handler: h.nextExercise},
		server.ServerTool{Tool: toolFinishSession, Handler: h.finishSession},
		server.ServerTool{Tool: toolStopSession, Handler: h.stopSession},
		server.ServerTool{Tool: toolSessionStatus, Handler: h.sessionStatus},
	)

	s.AddResources(
		server.ServerResource{Resource: resCategories, Handler: h.categories},
		server.ServerResource{Resource: resSyncQueue, Handler: h.syncQueue},
		server.ServerResource{Resource: resRecentCompletions, Handler: h.recentCompletions},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	deps Deps
	log  *slog.Logger
}
