package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claude/reptrack/internal/models"
)

// DefaultPollInterval is how often LiteDB.Listen checks the outbox.
const DefaultPollInterval = 500 * time.Millisecond

// liteTime is a fixed-width UTC layout so stored timestamps sort as text.
const liteTime = "2006-01-02T15:04:05.000000000Z"

// LiteDB is a single-node SQLite backend. Published events go to an outbox
// table that Listen polls.
type LiteDB struct {
	db *sql.DB

	// PollInterval is the outbox polling period for Listen.
	PollInterval time.Duration
}

const liteSchema = `
CREATE TABLE IF NOT EXISTS exercise_sessions (
	id               TEXT PRIMARY KEY,
	member_id        TEXT NOT NULL,
	exercise         TEXT NOT NULL,
	total_reps       INTEGER NOT NULL,
	avg_form_score   REAL,
	rep_details      TEXT NOT NULL DEFAULT '[]',
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	started_at       TEXT NOT NULL,
	ended_at         TEXT
);
CREATE INDEX IF NOT EXISTS idx_exercise_sessions_member_started
	ON exercise_sessions (member_id, started_at);

CREATE TABLE IF NOT EXISTS workout_logs (
	id                  TEXT PRIMARY KEY,
	member_id           TEXT NOT NULL,
	session_id          TEXT UNIQUE,
	completed_at        TEXT NOT NULL,
	duration_minutes    INTEGER NOT NULL,
	exercises_completed TEXT NOT NULL DEFAULT '[]',
	source              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_outbox (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type   TEXT NOT NULL,
	event_key    TEXT NOT NULL,
	data         TEXT NOT NULL,
	published_at TEXT NOT NULL,
	delivered    INTEGER NOT NULL DEFAULT 0
);`

// OpenLite opens (or creates) the SQLite database at path. ":memory:" gives
// a private in-memory database.
func OpenLite(path string) (*LiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir for %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(liteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &LiteDB{db: db, PollInterval: DefaultPollInterval}, nil
}

// Close closes the database.
func (l *LiteDB) Close() error {
	return l.db.Close()
}

// Ping checks the database.
func (l *LiteDB) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// SaveSession inserts a finished exercise session.
func (l *LiteDB) SaveSession(ctx context.Context, row models.ExerciseSessionRow) (models.ExerciseSessionRow, error) {
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

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO exercise_sessions (id, member_id, exercise, total_reps, avg_form_score, rep_details,
		 duration_seconds, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID.String(), row.MemberID, row.Exercise, row.TotalReps, row.AvgFormScore, string(details),
		row.DurationSeconds, formatLiteTime(row.StartedAt), formatLiteTimePtr(row.EndedAt))
	if err != nil {
		return row, fmt.Errorf("inserting exercise session: %w", err)
	}
	return row, nil
}

// ListSessions returns sessions matching filter, newest first.
func (l *LiteDB) ListSessions(ctx context.Context, filter models.SessionFilter) (models.SessionList, error) {
	var (
		where []string
		args  []any
	)
	if filter.MemberID != "" {
		where = append(where, "member_id = ?")
		args = append(args, filter.MemberID)
	}
	if filter.Exercise != "" {
		where = append(where, "exercise = ?")
		args = append(args, filter.Exercise)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	list := models.SessionList{Items: []models.ExerciseSessionRow{}}
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exercise_sessions`+clause, args...,
	).Scan(&list.Total); err != nil {
		return list, fmt.Errorf("counting exercise sessions: %w", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, member_id, exercise, total_reps, avg_form_score, rep_details,
		 duration_seconds, started_at, ended_at
		 FROM exercise_sessions`+clause+` ORDER BY started_at DESC LIMIT ?`,
		append(args, normalizeLimit(filter.Limit))...)
	if err != nil {
		return list, fmt.Errorf("querying exercise sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanLiteSession(rows)
		if err != nil {
			return list, err
		}
		list.Items = append(list.Items, s)
	}
	return list, rows.Err()
}

// GetSession returns one session, or ErrNotFound.
func (l *LiteDB) GetSession(ctx context.Context, id uuid.UUID) (models.ExerciseSessionRow, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, member_id, exercise, total_reps, avg_form_score, rep_details,
		 duration_seconds, started_at, ended_at
		 FROM exercise_sessions WHERE id = ?`, id.String())
	s, err := scanLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// GetExerciseStats returns per-exercise totals for a member.
func (l *LiteDB) GetExerciseStats(ctx context.Context, memberID string) ([]ExerciseStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT exercise, COUNT(*), COALESCE(SUM(total_reps), 0),
		        AVG(avg_form_score), MAX(avg_form_score), COALESCE(SUM(duration_seconds), 0)
		 FROM exercise_sessions
		 WHERE member_id = ?
		 GROUP BY exercise
		 ORDER BY COUNT(*) DESC, exercise`, memberID)
	if err != nil {
		return nil, fmt.Errorf("querying exercise stats: %w", err)
	}
	defer rows.Close()

	result := []ExerciseStat{}
	for rows.Next() {
		var (
			s         ExerciseStat
			avg, best sql.NullFloat64
		)
		if err := rows.Scan(&s.Exercise, &s.Sessions, &s.TotalReps, &avg, &best, &s.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scanning exercise stat: %w", err)
		}
		s.AvgFormScore = roundScore(nullFloat(avg))
		s.BestFormScore = nullFloat(best)
		result = append(result, s)
	}
	return result, rows.Err()
}

// InsertWorkoutLog inserts a workout log. Returns false if a log for the same
// session already exists.
func (l *LiteDB) InsertWorkoutLog(ctx context.Context, row models.WorkoutLogRow) (bool, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	exercises, err := json.Marshal(nonNilExercises(row.ExercisesCompleted))
	if err != nil {
		return false, fmt.Errorf("encoding exercises: %w", err)
	}
	var sessionID any
	if row.SessionID != nil {
		sessionID = row.SessionID.String()
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO workout_logs (id, member_id, session_id, completed_at, duration_minutes, exercises_completed, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID.String(), row.MemberID, sessionID, formatLiteTime(row.CompletedAt), row.DurationMinutes,
		string(exercises), row.Source)
	if err != nil {
		return false, fmt.Errorf("inserting workout log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting workout log: %w", err)
	}
	return n > 0, nil
}

// QueryWorkoutLogs returns a member's most recent workout logs.
func (l *LiteDB) QueryWorkoutLogs(ctx context.Context, memberID string, limit int) ([]models.WorkoutLogRow, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, member_id, session_id, completed_at, duration_minutes, exercises_completed, source
		 FROM workout_logs
		 WHERE member_id = ?
		 ORDER BY completed_at DESC
		 LIMIT ?`, memberID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying workout logs: %w", err)
	}
	defer rows.Close()

	result := []models.WorkoutLogRow{}
	for rows.Next() {
		var (
			w                  models.WorkoutLogRow
			id, completed, exs string
			sessionID          sql.NullString
		)
		if err := rows.Scan(&id, &w.MemberID, &sessionID, &completed, &w.DurationMinutes, &exs, &w.Source); err != nil {
			return nil, fmt.Errorf("scanning workout log: %w", err)
		}
		if w.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing workout log id: %w", err)
		}
		if sessionID.Valid {
			sid, err := uuid.Parse(sessionID.String)
			if err != nil {
				return nil, fmt.Errorf("parsing workout log session id: %w", err)
			}
			w.SessionID = &sid
		}
		if w.CompletedAt, err = time.Parse(liteTime, completed); err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		if err := json.Unmarshal([]byte(exs), &w.ExercisesCompleted); err != nil {
			return nil, fmt.Errorf("decoding exercises for workout log %s: %w", w.ID, err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// Publish appends an event to the outbox.
func (l *LiteDB) Publish(ctx context.Context, eventType string, payload any, key string) error {
	ev, err := NewEvent(eventType, payload, key, time.Now())
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO event_outbox (event_type, event_key, data, published_at) VALUES (?, ?, ?, ?)`,
		ev.EventType, ev.Key, string(ev.Data), formatLiteTime(ev.PublishedAt))
	if err != nil {
		return fmt.Errorf("publishing %s: %w", eventType, err)
	}
	return nil
}

// Listen delivers outbox events in publish order until ctx is cancelled.
// Each event is marked delivered after handle returns.
func (l *LiteDB) Listen(ctx context.Context, handle func(context.Context, models.Event)) error {
	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	for {
		if err := l.drainOutbox(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type outboxEvent struct {
	id int64
	ev models.Event
}

func (l *LiteDB) drainOutbox(ctx context.Context, handle func(context.Context, models.Event)) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, event_type, event_key, data, published_at
		 FROM event_outbox WHERE delivered = 0 ORDER BY id LIMIT 100`)
	if err != nil {
		return fmt.Errorf("reading outbox: %w", err)
	}

	// Rows are collected first: the single connection is needed for the updates.
	var pending []outboxEvent
	for rows.Next() {
		var (
			o         outboxEvent
			data, pub string
		)
		if err := rows.Scan(&o.id, &o.ev.EventType, &o.ev.Key, &data, &pub); err != nil {
			rows.Close()
			return fmt.Errorf("scanning outbox: %w", err)
		}
		o.ev.Data = json.RawMessage(data)
		o.ev.PublishedAt, _ = time.Parse(liteTime, pub)
		pending = append(pending, o)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("reading outbox: %w", err)
	}

	for _, o := range pending {
		handle(ctx, o.ev)
		if _, err := l.db.ExecContext(ctx, `UPDATE event_outbox SET delivered = 1 WHERE id = ?`, o.id); err != nil {
			return fmt.Errorf("marking event %d delivered: %w", o.id, err)
		}
	}
	return nil
}

func scanLiteSession(row interface{ Scan(dest ...any) error }) (models.ExerciseSessionRow, error) {
	var (
		s               models.ExerciseSessionRow
		id, details, st string
		avg             sql.NullFloat64
		ended           sql.NullString
	)
	if err := row.Scan(&id, &s.MemberID, &s.Exercise, &s.TotalReps, &avg, &details,
		&s.DurationSeconds, &st, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scanning exercise session: %w", err)
	}

	var err error
	if s.ID, err = uuid.Parse(id); err != nil {
		return s, fmt.Errorf("parsing session id: %w", err)
	}
	s.AvgFormScore = nullFloat(avg)
	if s.StartedAt, err = time.Parse(liteTime, st); err != nil {
		return s, fmt.Errorf("parsing started_at: %w", err)
	}
	if ended.Valid {
		e, err := time.Parse(liteTime, ended.String)
		if err != nil {
			return s, fmt.Errorf("parsing ended_at: %w", err)
		}
		s.EndedAt = &e
	}
	return s, decodeRepDetails([]byte(details), &s)
}

func formatLiteTime(t time.Time) string {
	return t.UTC().Format(liteTime)
}

func formatLiteTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatLiteTime(*t)
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
