package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
)

// openTestPostgres migrates and connects to the database named by
// REPTRACK_TEST_POSTGRES_DSN, skipping the test when it is unset.
// Run with: REPTRACK_TEST_POSTGRES_DSN=postgres://... go test ./internal/storage/...
func openTestPostgres(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("REPTRACK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REPTRACK_TEST_POSTGRES_DSN not set")
	}
	if err := RunMigrations(dsn, "../../migrations"); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testMember returns a member ID unique to this run whose rows are removed
// when the test ends.
func testMember(t *testing.T, db *DB) string {
	t.Helper()
	member := "test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = db.Pool.Exec(ctx, `DELETE FROM workout_logs WHERE member_id = $1`, member)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM exercise_sessions WHERE member_id = $1`, member)
	})
	return member
}

// TestPostgresSessionRoundTrip verifies JSONB rep details, nullable columns
// and ErrNotFound against Postgres.
func TestPostgresSessionRoundTrip(t *testing.T) {
	db := openTestPostgres(t)
	member := testMember(t, db)
	ctx := context.Background()

	in := sessionRow(member, "squat", 0, 3, fptr(81))
	if _, err := db.SaveSession(ctx, in); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := db.GetSession(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.MemberID != member || got.Exercise != "squat" || got.TotalReps != 3 {
		t.Errorf("got %+v", got)
	}
	if got.AvgFormScore == nil || *got.AvgFormScore != 81 {
		t.Errorf("avg = %v, want 81", got.AvgFormScore)
	}
	if !got.StartedAt.Equal(in.StartedAt) || got.EndedAt == nil || !got.EndedAt.Equal(*in.EndedAt) {
		t.Errorf("times = %v / %v", got.StartedAt, got.EndedAt)
	}
	if len(got.RepDetails) != 3 || got.RepDetails[2].Score != 82 || got.RepDetails[0].Feedback[0] != "Great rep!" {
		t.Errorf("rep details = %+v", got.RepDetails)
	}

	empty := sessionRow(member, "squat", time.Hour, 0, nil)
	empty.EndedAt = nil
	empty.RepDetails = nil
	if _, err := db.SaveSession(ctx, empty); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err = db.GetSession(ctx, empty.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.AvgFormScore != nil || got.EndedAt != nil || got.RepDetails == nil {
		t.Errorf("nullables = %+v", got)
	}

	if _, err := db.GetSession(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing session error = %v, want ErrNotFound", err)
	}
}

// TestPostgresListAndStats verifies filtering, ordering and aggregation.
func TestPostgresListAndStats(t *testing.T) {
	db := openTestPostgres(t)
	member := testMember(t, db)
	ctx := context.Background()

	rows := []models.ExerciseSessionRow{
		sessionRow(member, "squat", 0, 5, fptr(80)),
		sessionRow(member, "squat", time.Hour, 6, fptr(85)),
		sessionRow(member, "bicep_curl", 2*time.Hour, 8, fptr(90)),
	}
	for _, r := range rows {
		if _, err := db.SaveSession(ctx, r); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	list, err := db.ListSessions(ctx, models.SessionFilter{MemberID: member, Exercise: "squat", Limit: 1})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if list.Total != 2 || len(list.Items) != 1 || list.Items[0].ID != rows[1].ID {
		t.Errorf("list = total %d, items %+v", list.Total, list.Items)
	}

	stats, err := db.GetExerciseStats(ctx, member)
	if err != nil {
		t.Fatalf("GetExerciseStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats = %+v, want 2 exercises", stats)
	}
	var sq ExerciseStat
	for _, s := range stats {
		if s.Exercise == "squat" {
			sq = s
		}
	}
	if sq.Sessions != 2 || sq.TotalReps != 11 || sq.TotalSeconds != 240 {
		t.Errorf("squat stat = %+v", sq)
	}
	if sq.AvgFormScore == nil || *sq.AvgFormScore != 82.5 || sq.BestFormScore == nil || *sq.BestFormScore != 85 {
		t.Errorf("squat scores = %v / %v", sq.AvgFormScore, sq.BestFormScore)
	}
}

// TestPostgresWorkoutLogs verifies one log per session.
func TestPostgresWorkoutLogs(t *testing.T) {
	db := openTestPostgres(t)
	member := testMember(t, db)
	ctx := context.Background()
	sessionID := uuid.New()

	log := models.WorkoutLogRow{
		MemberID:        member,
		SessionID:       &sessionID,
		CompletedAt:     base,
		DurationMinutes: 2,
		ExercisesCompleted: []models.ExerciseLog{{
			ExerciseName:  "squat",
			SetsCompleted: 1,
			RepsPerSet:    []int{10},
			FormScore:     fptr(88.5),
		}},
		Source: models.SourceAITracker,
	}
	if inserted, err := db.InsertWorkoutLog(ctx, log); err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}
	if inserted, err := db.InsertWorkoutLog(ctx, log); err != nil || inserted {
		t.Fatalf("duplicate insert = %v, %v, want false", inserted, err)
	}

	logs, err := db.QueryWorkoutLogs(ctx, member, 0)
	if err != nil {
		t.Fatalf("QueryWorkoutLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].SessionID == nil || *logs[0].SessionID != sessionID {
		t.Fatalf("logs = %+v", logs)
	}
	if ex := logs[0].ExercisesCompleted; len(ex) != 1 || ex[0].FormScore == nil || *ex[0].FormScore != 88.5 {
		t.Errorf("exercises = %+v", ex)
	}
}

// TestPostgresNotify verifies Publish reaches a Listen subscriber through
// pg_notify.
func TestPostgresNotify(t *testing.T) {
	db := openTestPostgres(t)
	db.EventChannel = "reptrack_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan models.Event, 16)
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- db.Listen(ctx, func(ctx context.Context, ev models.Event) {
			select {
			case received <- ev:
			case <-ctx.Done():
			}
		})
	}()

	// NOTIFY is not queued for late subscribers, so publish until the
	// listener has subscribed.
	payload := models.SessionCompletedEvent{SessionID: uuid.NewString(), MemberID: "m1", TotalReps: 4}
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var ev models.Event
wait:
	for {
		select {
		case ev = <-received:
			break wait
		case <-tick.C:
			if err := db.Publish(ctx, models.EventSessionCompleted, payload, "m1"); err != nil {
				t.Fatalf("Publish: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("no notification received")
		}
	}

	if ev.EventType != models.EventSessionCompleted || ev.Key != "m1" {
		t.Errorf("event = %+v", ev)
	}
	var got models.SessionCompletedEvent
	if err := json.Unmarshal(ev.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != payload {
		t.Errorf("payload = %+v, want %+v", got, payload)
	}

	cancel()
	if err := <-listenErr; err != nil {
		t.Errorf("Listen: %v", err)
	}
}
