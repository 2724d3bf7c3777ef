package mcp

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/storage"
)

const maxToolLimit = 100

// memberArg returns the member_id argument, falling back to the member the
// transport attached to ctx.
func memberArg(ctx context.Context, req mcp.CallToolRequest) string {
	if m := req.GetString("member_id", ""); m != "" {
		return m
	}
	return MemberFromContext(ctx)
}

// limitArg clamps the limit argument to 1..maxToolLimit.
func limitArg(req mcp.CallToolRequest, def int) int {
	n := req.GetInt("limit", def)
	return min(max(n, 1), maxToolLimit)
}

// --- Tool definitions ---

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List the exercises the rep tracker supports, with target muscles and the joint angle each one tracks."),
)

var toolGetExerciseSessions = mcp.NewTool("get_exercise_sessions",
	mcp.WithDescription("List tracked exercise sessions, newest first. Each session has total reps, average form score, duration and per-rep scores with feedback."),
	mcp.WithString("member_id", mcp.Description("Member to query. Defaults to the calling member; empty lists every member.")),
	mcp.WithString("exercise", mcp.Description("Filter by exercise name (e.g. squat, bicep_curl, shoulder_press)")),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return (1-100). Defaults to 20.")),
)

var toolGetExerciseSession = mcp.NewTool("get_exercise_session",
	mcp.WithDescription("Get one exercise session by ID, including every rep's score and feedback."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolGetExerciseStats = mcp.NewTool("get_exercise_stats",
	mcp.WithDescription("Lifetime per-exercise totals for a member: sessions, reps, mean and best session form score, time spent."),
	mcp.WithString("member_id", mcp.Description("Member to query. Defaults to the calling member.")),
)

var toolGetWorkoutLogs = mcp.NewTool("get_workout_logs",
	mcp.WithDescription("Workout log entries for a member, newest first. Entries with source ai_tracker were created from tracked sessions."),
	mcp.WithString("member_id", mcp.Description("Member to query. Defaults to the calling member.")),
	mcp.WithNumber("limit", mcp.Description("Maximum entries to return (1-100). Defaults to 20.")),
)

// --- Tool handlers ---

func (h *handlers) listExercises(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercises, err := h.ds.ListExercises(ctx)
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(exercises)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := models.SessionFilter{
		MemberID: memberArg(ctx, req),
		Exercise: req.GetString("exercise", ""),
		Limit:    limitArg(req, storage.DefaultSessionLimit),
	}

	list, err := h.ds.ListSessions(ctx, filter)
	if err != nil {
		h.log.Error("mcp get_exercise_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(list)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("invalid session ID: " + idStr), nil
	}

	sess, err := h.ds.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("session not found"), nil
	}
	if err != nil {
		h.log.Error("mcp get_exercise_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sess)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	member := memberArg(ctx, req)
	if member == "" {
		return mcp.NewToolResultError("member_id is required"), nil
	}

	stats, err := h.ds.GetExerciseStats(ctx, member)
	if err != nil {
		h.log.Error("mcp get_exercise_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(stats)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getWorkoutLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	member := memberArg(ctx, req)
	if member == "" {
		return mcp.NewToolResultError("member_id is required"), nil
	}

	logs, err := h.ds.QueryWorkoutLogs(ctx, member, limitArg(req, storage.DefaultSessionLimit))
	if err != nil {
		h.log.Error("mcp get_workout_logs", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(logs)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
