package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/storage"
)

var discard = slog.New(slog.DiscardHandler)

type memStore struct {
	rows []models.WorkoutLogRow
	seen map[uuid.UUID]bool
	err  error
}

func (m *memStore) InsertWorkoutLog(_ context.Context, row models.WorkoutLogRow) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = map[uuid.UUID]bool{}
	}
	if row.SessionID != nil {
		if m.seen[*row.SessionID] {
			return false, nil
		}
		m.seen[*row.SessionID] = true
	}
	m.rows = append(m.rows, row)
	return true, nil
}

func completedEvent(t *testing.T, p models.SessionCompletedEvent) models.Event {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return models.Event{
		EventType:   models.EventSessionCompleted,
		Key:         p.MemberID,
		Data:        data,
		PublishedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

// TestHandleCreatesWorkoutLog verifies the event maps onto a single-set log.
func TestHandleCreatesWorkoutLog(t *testing.T) {
	store := &memStore{}
	w := NewSummary(nil, store, discard)
	score := 86.5
	sid := uuid.New()

	w.Handle(context.Background(), completedEvent(t, models.SessionCompletedEvent{
		SessionID:       sid.String(),
		MemberID:        "m1",
		Exercise:        "squat",
		TotalReps:       12,
		AvgFormScore:    &score,
		DurationSeconds: 185,
	}))

	if len(store.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(store.rows))
	}
	got := store.rows[0]
	if got.MemberID != "m1" || got.Source != models.SourceAITracker || got.DurationMinutes != 3 {
		t.Errorf("row = %+v", got)
	}
	if got.SessionID == nil || *got.SessionID != sid {
		t.Errorf("session id = %v, want %s", got.SessionID, sid)
	}
	if !got.CompletedAt.Equal(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("completed_at = %v", got.CompletedAt)
	}
	if len(got.ExercisesCompleted) != 1 {
		t.Fatalf("exercises = %+v", got.ExercisesCompleted)
	}
	ex := got.ExercisesCompleted[0]
	if ex.ExerciseName != "squat" || ex.SetsCompleted != 1 || len(ex.RepsPerSet) != 1 || ex.RepsPerSet[0] != 12 {
		t.Errorf("exercise = %+v", ex)
	}
	if ex.FormScore == nil || *ex.FormScore != 86.5 {
		t.Errorf("form score = %v, want 86.5", ex.FormScore)
	}
}

// TestDurationMinutes verifies sessions shorter than a minute still log one minute.
func TestDurationMinutes(t *testing.T) {
	tests := []struct {
		seconds int
		want    int
	}{
		{0, 1},
		{59, 1},
		{60, 1},
		{119, 1},
		{120, 2},
		{3600, 60},
	}
	for _, tt := range tests {
		store := &memStore{}
		w := NewSummary(nil, store, discard)
		w.Handle(context.Background(), completedEvent(t, models.SessionCompletedEvent{
			MemberID: "m1", Exercise: "squat", TotalReps: 1, DurationSeconds: tt.seconds,
		}))
		if len(store.rows) != 1 || store.rows[0].DurationMinutes != tt.want {
			t.Errorf("%ds: rows = %+v, want %d minutes", tt.seconds, store.rows, tt.want)
		}
	}
}

// TestHandleSkips verifies events that cannot become a log are dropped.
func TestHandleSkips(t *testing.T) {
	tests := []struct {
		name string
		ev   models.Event
	}{
		{"other type", models.Event{EventType: "member.created", Data: json.RawMessage(`{"member_id":"m1"}`)}},
		{"bad payload", models.Event{EventType: models.EventSessionCompleted, Data: json.RawMessage(`[1,2]`)}},
		{"no member", models.Event{EventType: models.EventSessionCompleted, Data: json.RawMessage(`{"total_reps":3}`)}},
		{"anonymous", models.Event{EventType: models.EventSessionCompleted, Data: json.RawMessage(`{"member_id":"anonymous","total_reps":3}`)}},
		{"bad session id", models.Event{EventType: models.EventSessionCompleted, Data: json.RawMessage(`{"member_id":"m1","session_id":"x"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			NewSummary(nil, store, discard).Handle(context.Background(), tt.ev)
			if len(store.rows) != 0 {
				t.Errorf("rows = %+v, want none", store.rows)
			}
		})
	}
}

// TestHandleStoreError verifies insert failures are absorbed.
func TestHandleStoreError(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	w := NewSummary(nil, store, discard)
	w.Handle(context.Background(), completedEvent(t, models.SessionCompletedEvent{MemberID: "m1", TotalReps: 2}))
	if len(store.rows) != 0 {
		t.Errorf("rows = %d, want 0", len(store.rows))
	}
}

// TestRunAgainstOutbox verifies the worker consumes published events from
// the SQLite outbox and logs each session once.
func TestRunAgainstOutbox(t *testing.T) {
	db, err := storage.OpenLite(filepath.Join(t.TempDir(), "reptrack.db"))
	if err != nil {
		t.Fatalf("OpenLite: %v", err)
	}
	defer db.Close()
	db.PollInterval = 10 * time.Millisecond

	ctx := context.Background()
	sid := uuid.NewString()
	payload := models.SessionCompletedEvent{SessionID: sid, MemberID: "m1", Exercise: "bicep_curl", TotalReps: 8, DurationSeconds: 90}
	for i := 0; i < 2; i++ {
		if err := db.Publish(ctx, models.EventSessionCompleted, payload, "m1"); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if err := NewSummary(db, db, discard).Run(runCtx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	logs, err := db.QueryWorkoutLogs(ctx, "m1", 0)
	if err != nil {
		t.Fatalf("QueryWorkoutLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	if logs[0].SessionID == nil || logs[0].SessionID.String() != sid || logs[0].ExercisesCompleted[0].RepsPerSet[0] != 8 {
		t.Errorf("log = %+v", logs[0])
	}
}
