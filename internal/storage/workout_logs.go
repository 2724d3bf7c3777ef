package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
)

// InsertWorkoutLog inserts a workout log. Returns false if a log for the same
// session already exists.
func (db *DB) InsertWorkoutLog(ctx context.Context, row models.WorkoutLogRow) (bool, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	exercises, err := json.Marshal(nonNilExercises(row.ExercisesCompleted))
	if err != nil {
		return false, fmt.Errorf("encoding exercises: %w", err)
	}

	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO workout_logs (id, member_id, session_id, completed_at, duration_minutes, exercises_completed, source)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT DO NOTHING`,
		row.ID, row.MemberID, row.SessionID, row.CompletedAt, row.DurationMinutes, exercises, row.Source)
	if err != nil {
		return false, fmt.Errorf("inserting workout log: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// QueryWorkoutLogs returns a member's most recent workout logs.
func (db *DB) QueryWorkoutLogs(ctx context.Context, memberID string, limit int) ([]models.WorkoutLogRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, member_id, session_id, completed_at, duration_minutes, exercises_completed, source
		 FROM workout_logs
		 WHERE member_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2`,
		memberID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying workout logs: %w", err)
	}
	defer rows.Close()

	result := []models.WorkoutLogRow{}
	for rows.Next() {
		var (
			l         models.WorkoutLogRow
			exercises []byte
		)
		if err := rows.Scan(&l.ID, &l.MemberID, &l.SessionID, &l.CompletedAt, &l.DurationMinutes, &exercises, &l.Source); err != nil {
			return nil, fmt.Errorf("scanning workout log: %w", err)
		}
		if err := json.Unmarshal(exercises, &l.ExercisesCompleted); err != nil {
			return nil, fmt.Errorf("decoding exercises for workout log %s: %w", l.ID, err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func nonNilExercises(e []models.ExerciseLog) []models.ExerciseLog {
	if e == nil {
		return []models.ExerciseLog{}
	}
	return e
}
