package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
)

// DefaultSessionLimit is the page size used when a listing asks for none.
const DefaultSessionLimit = 20

// Repository is the storage surface shared by the Postgres and SQLite backends.
type Repository interface {
	SaveSession(ctx context.Context, row models.ExerciseSessionRow) (models.ExerciseSessionRow, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) (models.SessionList, error)
	GetSession(ctx context.Context, id uuid.UUID) (models.ExerciseSessionRow, error)
	GetExerciseStats(ctx context.Context, memberID string) ([]ExerciseStat, error)

	InsertWorkoutLog(ctx context.Context, row models.WorkoutLogRow) (bool, error)
	QueryWorkoutLogs(ctx context.Context, memberID string, limit int) ([]models.WorkoutLogRow, error)

	Publish(ctx context.Context, eventType string, payload any, key string) error
	Listen(ctx context.Context, handle func(context.Context, models.Event)) error

	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks.
var (
	_ Repository = (*DB)(nil)
	_ Repository = (*LiteDB)(nil)
)

// ExerciseStat holds lifetime totals for one exercise.
type ExerciseStat struct {
	Exercise      string   `json:"exercise"`
	Sessions      int      `json:"sessions"`
	TotalReps     int      `json:"total_reps"`
	AvgFormScore  *float64 `json:"avg_form_score"`
	BestFormScore *float64 `json:"best_form_score"`
	TotalSeconds  int      `json:"total_duration_seconds"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultSessionLimit
	}
	return limit
}
