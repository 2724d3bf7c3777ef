package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/tracker"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

// sessionWithReps returns a squat session that has completed n reps.
func sessionWithReps(t *testing.T, member string, n int) *Session {
	t.Helper()
	tr, err := tracker.NewDefaultRegistry(discard).Create(tracker.Squat)
	if err != nil {
		t.Fatal(err)
	}
	s := New(tracker.Squat, member, tr, t0)
	for range n {
		for _, a := range squatCycle {
			s.FrameCount++
			s.Record(tr.Update(ptr(a)))
		}
	}
	if tr.RepCount() != n {
		t.Fatalf("rep_count = %d, want %d", tr.RepCount(), n)
	}
	return s
}

func fixedFinalizer(store Store, bus Bus, end time.Time) *Finalizer {
	f := NewFinalizer(store, bus, discard)
	f.now = func() time.Time { return end }
	return f
}

// TestFinalizeSummary verifies the aggregates handed to the store.
func TestFinalizeSummary(t *testing.T) {
	store, bus := &fakeStore{}, &fakeBus{}
	f := fixedFinalizer(store, bus, t0.Add(95*time.Second))
	s := sessionWithReps(t, "member-1", 3)

	sum := f.Finalize(context.Background(), s, nil)

	if !sum.Saved || !sum.Published {
		t.Errorf("summary = %+v, want saved and published", sum)
	}
	if sum.DurationSeconds != 95 || sum.Frames != 30 || sum.TotalReps != 3 {
		t.Errorf("summary = %+v", sum)
	}
	want := tracker.AverageScore(s.Tracker.FormScores())
	if sum.AvgFormScore == nil || *sum.AvgFormScore != *want {
		t.Errorf("avg = %v, want %v", sum.AvgFormScore, *want)
	}

	row := store.rows[0]
	if row.ID != s.ID || !row.StartedAt.Equal(t0) || !row.EndedAt.Equal(t0.Add(95*time.Second)) {
		t.Errorf("row = %+v", row)
	}
	if len(row.RepDetails) != 3 || row.RepDetails[0].RepNumber != 1 || row.RepDetails[2].RepNumber != 3 {
		t.Errorf("ledger = %+v", row.RepDetails)
	}
}

// TestFinalizeOnce verifies repeated calls do not store twice.
func TestFinalizeOnce(t *testing.T) {
	store, bus := &fakeStore{}, &fakeBus{}
	f := fixedFinalizer(store, bus, t0.Add(time.Minute))
	s := sessionWithReps(t, "member-1", 1)
	proc := &angleProcessor{}

	first := f.Finalize(context.Background(), s, proc)
	second := f.Finalize(context.Background(), s, proc)

	if store.calls() != 1 || bus.calls() != 1 || proc.closes != 1 {
		t.Errorf("store=%d bus=%d closes=%d, want 1 each", store.calls(), bus.calls(), proc.closes)
	}
	if first.SessionID != second.SessionID || !s.Finalized() {
		t.Error("second call should return the first summary")
	}
}

// TestFinalizeSaveFailureStillPublishes verifies each step is independent.
func TestFinalizeSaveFailureStillPublishes(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	bus := &fakeBus{}
	f := fixedFinalizer(store, bus, t0.Add(time.Minute))

	sum := f.Finalize(context.Background(), sessionWithReps(t, "member-1", 2), nil)

	if sum.Saved {
		t.Error("Saved should be false")
	}
	if !sum.Published || bus.calls() != 1 {
		t.Errorf("published = %v, calls = %d", sum.Published, bus.calls())
	}
}

// TestFinalizeRecoversPanics verifies a panicking store neither escapes nor
// stops the publish step, and a failing bus is swallowed.
func TestFinalizeRecoversPanics(t *testing.T) {
	store := &fakeStore{panic: true}
	bus := &fakeBus{err: errors.New("broker down")}
	f := fixedFinalizer(store, bus, t0.Add(time.Minute))

	sum := f.Finalize(context.Background(), sessionWithReps(t, "member-1", 1), nil)

	if sum.Saved || sum.Published {
		t.Errorf("summary = %+v, want neither saved nor published", sum)
	}
	if bus.calls() != 1 {
		t.Errorf("bus calls = %d, want 1", bus.calls())
	}
}

// TestFinalizeDetachedContext verifies a cancelled connection context does
// not cancel the store call.
func TestFinalizeDetachedContext(t *testing.T) {
	store := &fakeStore{}
	f := fixedFinalizer(store, nil, t0.Add(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := f.Finalize(ctx, sessionWithReps(t, "member-1", 1), nil)
	if !sum.Saved {
		t.Error("session should be saved despite cancelled context")
	}
}

// TestFinalizeClosesProcessorWithoutReps verifies the processor is released
// even when nothing is persisted.
func TestFinalizeClosesProcessorWithoutReps(t *testing.T) {
	store := &fakeStore{}
	f := fixedFinalizer(store, nil, t0)
	proc := &angleProcessor{}

	sum := f.Finalize(context.Background(), sessionWithReps(t, models.AnonymousMember, 0), proc)

	if proc.closes != 1 {
		t.Errorf("closes = %d, want 1", proc.closes)
	}
	if sum.AvgFormScore != nil || store.calls() != 0 {
		t.Errorf("avg = %v, store calls = %d", sum.AvgFormScore, store.calls())
	}
}

// TestSessionRecordIgnoresPlainUpdates verifies only completed reps enter the ledger.
func TestSessionRecordIgnoresPlainUpdates(t *testing.T) {
	s := New(tracker.Squat, "", nil, t0)
	s.Record(tracker.Update{RepCount: 1})
	s.Record(tracker.Update{CompletedRep: true, RepCount: 1, RepScore: ptr(88), Feedback: []string{"Great rep!"}})

	if len(s.Reps) != 1 || s.Reps[0].Score != 88 || s.Reps[0].Feedback[0] != "Great rep!" {
		t.Errorf("reps = %+v", s.Reps)
	}
	if !s.Anonymous() {
		t.Error("empty member should be anonymous")
	}
}

// blockingStore holds SaveSession until its context ends.
type blockingStore struct{}

func (blockingStore) SaveSession(ctx context.Context, row models.ExerciseSessionRow) (models.ExerciseSessionRow, error) {
	<-ctx.Done()
	return row, ctx.Err()
}

// TestFinalizeSetTimeout verifies SetTimeout bounds a stalled store and that
// a non-positive value keeps the default.
func TestFinalizeSetTimeout(t *testing.T) {
	f := fixedFinalizer(blockingStore{}, nil, t0.Add(time.Minute))
	f.SetTimeout(0)
	if f.timeout != DefaultFinalizeTimeout {
		t.Fatalf("timeout after SetTimeout(0) = %v, want %v", f.timeout, DefaultFinalizeTimeout)
	}
	f.SetTimeout(-time.Second)
	if f.timeout != DefaultFinalizeTimeout {
		t.Fatalf("timeout after SetTimeout(-1s) = %v, want %v", f.timeout, DefaultFinalizeTimeout)
	}

	f.SetTimeout(50 * time.Millisecond)
	start := time.Now()
	sum := f.Finalize(context.Background(), sessionWithReps(t, "member-1", 1), nil)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Finalize took %v with a 50ms timeout", elapsed)
	}
	if sum.Saved {
		t.Error("saved = true, want false after the store timed out")
	}
}
