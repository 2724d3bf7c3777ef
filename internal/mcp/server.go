package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const memberIDKey contextKey = iota

// MemberFromContext returns the member injected by the transport layer, or "".
func MemberFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(memberIDKey).(string); ok {
		return id
	}
	return ""
}

// WithMember returns a context carrying the calling member.
func WithMember(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, memberIDKey, memberID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("RepTrack", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("RepTrack exercise tracking server. Query the exercise catalog, tracked sessions with per-rep form scores, per-exercise stats and workout logs. Member-scoped tools default to the calling member."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolListExercises, Handler: h.listExercises},
		server.ServerTool{Tool: toolGetExerciseSessions, Handler: h.getExerciseSessions},
		server.ServerTool{Tool: toolGetExerciseSession, Handler: h.getExerciseSession},
		server.ServerTool{Tool: toolGetExerciseStats, Handler: h.getExerciseStats},
		server.ServerTool{Tool: toolGetWorkoutLogs, Handler: h.getWorkoutLogs},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resExerciseCatalog, Handler: h.exerciseCatalog},
	)

	return s
}

// NewHTTPHandler serves s over streamable HTTP. member resolves the caller
// of each request; an empty result leaves the context unscoped.
func NewHTTPHandler(s *server.MCPServer, member func(*http.Request) string) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if m := member(r); m != "" {
				return WithMember(ctx, m)
			}
			return ctx
		}),
	)
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resExerciseCatalog = mcp.NewResource(
	"reptrack://exercise_catalog",
	"Exercise Catalog",
	mcp.WithResourceDescription("Every exercise the tracker can count, with target muscles and the tracked joint angle"),
	mcp.WithMIMEType("application/json"),
)
