package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/storage"
	"github.com/claude/reptrack/internal/tracker"
)

// DataSource abstracts the data layer for MCP tools. Both Local (in-process)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ListExercises(ctx context.Context) ([]tracker.Info, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) (models.SessionList, error)
	GetSession(ctx context.Context, id uuid.UUID) (models.ExerciseSessionRow, error)
	GetExerciseStats(ctx context.Context, memberID string) ([]storage.ExerciseStat, error)
	QueryWorkoutLogs(ctx context.Context, memberID string, limit int) ([]models.WorkoutLogRow, error)
}

// Local serves MCP requests from the server's own repository and registry.
type Local struct {
	storage.Repository
	registry *tracker.Registry
}

// Compile-time check: Local satisfies DataSource.
var _ DataSource = (*Local)(nil)

// NewLocal creates a Local data source.
func NewLocal(repo storage.Repository, registry *tracker.Registry) *Local {
	return &Local{Repository: repo, registry: registry}
}

// ListExercises returns the registry catalog.
func (l *Local) ListExercises(context.Context) ([]tracker.Info, error) {
	return l.registry.Catalog(), nil
}
