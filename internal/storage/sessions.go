package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/reptrack/internal/models"
)

const sessionColumns = `id, member_id, exercise, total_reps, avg_form_score, rep_details,
	 duration_seconds, started_at, ended_at`

// SaveSession inserts a finished exercise session. A zero ID is replaced
// with a new one; the stored row is returned.
func (db *DB) SaveSession(ctx context.Context, row models.ExerciseSessionRow) (models.ExerciseSessionRow, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.RepDetails == nil {
		row.RepDetails = []models.RepResult{}
	}
	details, err := json.Marshal(row.RepDetails)
	if err != nil {
		return row, fmt.Errorf("encoding rep details: %w", err)
	}

	_, err = db.Pool.Exec(ctx,
		`INSERT INTO exercise_sessions (`+sessionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		row.ID, row.MemberID, row.Exercise, row.TotalReps, row.AvgFormScore, details,
		row.DurationSeconds, row.StartedAt, row.EndedAt)
	if err != nil {
		return row, fmt.Errorf("inserting exercise session: %w", err)
	}
	return row, nil
}

// ListSessions returns sessions matching filter, newest first, with the
// total number of matches.
func (db *DB) ListSessions(ctx context.Context, filter models.SessionFilter) (models.SessionList, error) {
	var (
		where []string
		args  []any
	)
	if filter.MemberID != "" {
		args = append(args, filter.MemberID)
		where = append(where, fmt.Sprintf("member_id = $%d", len(args)))
	}
	if filter.Exercise != "" {
		args = append(args, filter.Exercise)
		where = append(where, fmt.Sprintf("exercise = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	list := models.SessionList{Items: []models.ExerciseSessionRow{}}
	if err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exercise_sessions`+clause, args...,
	).Scan(&list.Total); err != nil {
		return list, fmt.Errorf("counting exercise sessions: %w", err)
	}

	args = append(args, normalizeLimit(filter.Limit))
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exercise_sessions`+clause+
			fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args)),
		args...)
	if err != nil {
		return list, fmt.Errorf("querying exercise sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return list, err
		}
		list.Items = append(list.Items, s)
	}
	return list, rows.Err()
}

// GetSession returns one session, or ErrNotFound.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (models.ExerciseSessionRow, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exercise_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// GetExerciseStats returns per-exercise totals for a member, most practised first.
func (db *DB) GetExerciseStats(ctx context.Context, memberID string) ([]ExerciseStat, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT exercise, COUNT(*)::int, COALESCE(SUM(total_reps), 0)::int,
		        AVG(avg_form_score), MAX(avg_form_score), COALESCE(SUM(duration_seconds), 0)::int
		 FROM exercise_sessions
		 WHERE member_id = $1
		 GROUP BY exercise
		 ORDER BY COUNT(*) DESC, exercise`, memberID)
	if err != nil {
		return nil, fmt.Errorf("querying exercise stats: %w", err)
	}
	defer rows.Close()

	result := []ExerciseStat{}
	for rows.Next() {
		var s ExerciseStat
		if err := rows.Scan(&s.Exercise, &s.Sessions, &s.TotalReps, &s.AvgFormScore, &s.BestFormScore, &s.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scanning exercise stat: %w", err)
		}
		s.AvgFormScore = roundScore(s.AvgFormScore)
		result = append(result, s)
	}
	return result, rows.Err()
}

func scanSession(row interface{ Scan(dest ...any) error }) (models.ExerciseSessionRow, error) {
	var (
		s       models.ExerciseSessionRow
		details []byte
	)
	if err := row.Scan(&s.ID, &s.MemberID, &s.Exercise, &s.TotalReps, &s.AvgFormScore, &details,
		&s.DurationSeconds, &s.StartedAt, &s.EndedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scanning exercise session: %w", err)
	}
	if err := decodeRepDetails(details, &s); err != nil {
		return s, err
	}
	return s, nil
}

func decodeRepDetails(raw []byte, s *models.ExerciseSessionRow) error {
	s.RepDetails = []models.RepResult{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &s.RepDetails); err != nil {
		return fmt.Errorf("decoding rep details for session %s: %w", s.ID, err)
	}
	return nil
}

func roundScore(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*10) / 10
	return &r
}
