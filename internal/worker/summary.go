// Package worker holds background consumers of the exercise event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
)

// Source delivers published events until ctx is cancelled.
type Source interface {
	Listen(ctx context.Context, handle func(context.Context, models.Event)) error
}

// LogStore records workout logs. InsertWorkoutLog reports false when the
// session already has a log.
type LogStore interface {
	InsertWorkoutLog(ctx context.Context, row models.WorkoutLogRow) (bool, error)
}

// Summary turns completed exercise sessions into workout log entries.
type Summary struct {
	source Source
	store  LogStore
	log    *slog.Logger
	now    func() time.Time
}

// NewSummary creates a Summary worker.
func NewSummary(source Source, store LogStore, log *slog.Logger) *Summary {
	return &Summary{source: source, store: store, log: log, now: time.Now}
}

// Run consumes events until ctx is cancelled. Bad events are logged and
// skipped; only a failing event source stops the worker.
func (w *Summary) Run(ctx context.Context) error {
	w.log.Info("workout summary worker started")
	defer w.log.Info("workout summary worker stopped")

	if err := w.source.Listen(ctx, w.Handle); err != nil {
		return fmt.Errorf("workout summary worker: %w", err)
	}
	return nil
}

// Handle processes one event. Events other than session completions are ignored.
func (w *Summary) Handle(ctx context.Context, ev models.Event) {
	if ev.EventType != models.EventSessionCompleted {
		return
	}

	row, err := w.workoutLog(ev)
	if err != nil {
		w.log.Error("workout summary: bad event", "key", ev.Key, "error", err)
		return
	}

	inserted, err := w.store.InsertWorkoutLog(ctx, row)
	if err != nil {
		w.log.Error("workout summary: insert failed",
			"member_id", row.MemberID,
			"session_id", row.SessionID,
			"error", err,
		)
		return
	}
	if !inserted {
		w.log.Debug("workout summary: session already logged", "session_id", row.SessionID)
		return
	}

	ex := row.ExercisesCompleted[0]
	w.log.Info("workout log created from exercise session",
		"member_id", row.MemberID,
		"session_id", row.SessionID,
		"exercise", ex.ExerciseName,
		"reps", ex.RepsPerSet[0],
	)
}

func (w *Summary) workoutLog(ev models.Event) (models.WorkoutLogRow, error) {
	var p models.SessionCompletedEvent
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return models.WorkoutLogRow{}, fmt.Errorf("decoding payload: %w", err)
	}
	if p.MemberID == "" || p.MemberID == models.AnonymousMember {
		return models.WorkoutLogRow{}, fmt.Errorf("event has no member")
	}

	var sessionID *uuid.UUID
	if p.SessionID != "" {
		id, err := uuid.Parse(p.SessionID)
		if err != nil {
			return models.WorkoutLogRow{}, fmt.Errorf("parsing session id: %w", err)
		}
		sessionID = &id
	}

	exercise := p.Exercise
	if exercise == "" {
		exercise = "unknown"
	}
	completed := ev.PublishedAt
	if completed.IsZero() {
		completed = w.now()
	}

	return models.WorkoutLogRow{
		MemberID:        p.MemberID,
		SessionID:       sessionID,
		CompletedAt:     completed.UTC(),
		DurationMinutes: max(1, p.DurationSeconds/60),
		ExercisesCompleted: []models.ExerciseLog{{
			ExerciseName:  exercise,
			SetsCompleted: 1,
			RepsPerSet:    []int{p.TotalReps},
			FormScore:     p.AvgFormScore,
		}},
		Source: models.SourceAITracker,
	}, nil
}
