package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/pose"
	"github.com/claude/reptrack/internal/tracker"
)

// DefaultFinalizeTimeout bounds the storage and publish calls of one finalization.
const DefaultFinalizeTimeout = 10 * time.Second

// Store persists completed sessions.
type Store interface {
	SaveSession(ctx context.Context, row models.ExerciseSessionRow) (models.ExerciseSessionRow, error)
}

// Bus publishes domain events keyed by a partition key.
type Bus interface {
	Publish(ctx context.Context, eventType string, payload any, key string) error
}

// Summary describes what finalization did.
type Summary struct {
	SessionID       string
	MemberID        string
	Exercise        string
	TotalReps       int
	AvgFormScore    *float64
	DurationSeconds int
	Frames          int
	Saved           bool
	Published       bool
}

// Finalizer closes out sessions: it releases the frame processor, computes
// aggregates and, for sessions worth keeping, stores the record and
// publishes the completion event.
type Finalizer struct {
	store   Store
	bus     Bus
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewFinalizer creates a Finalizer. A nil store or bus skips that step.
func NewFinalizer(store Store, bus Bus, log *slog.Logger) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{
		store:   store,
		bus:     bus,
		log:     log,
		timeout: DefaultFinalizeTimeout,
		now:     time.Now,
	}
}

// SetTimeout overrides DefaultFinalizeTimeout.
func (f *Finalizer) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// Finalize runs at most once per session; later calls return the first
// summary. Every step runs even if an earlier one failed. The storage
// context is detached from ctx's cancellation so a dropped connection
// still gets its session written.
func (f *Finalizer) Finalize(ctx context.Context, s *Session, proc pose.Processor) Summary {
	if s.finalized {
		return s.summary
	}
	s.finalized = true

	if proc != nil {
		f.step(s, "close frame processor", proc.Close)
	}

	end := f.now()
	sum := Summary{
		SessionID:       s.ID.String(),
		MemberID:        s.MemberID,
		Exercise:        s.Exercise,
		TotalReps:       s.Tracker.RepCount(),
		AvgFormScore:    tracker.AverageScore(s.Tracker.FormScores()),
		DurationSeconds: int(end.Sub(s.StartedAt).Seconds()),
		Frames:          s.FrameCount,
	}
	if sum.DurationSeconds < 0 {
		sum.DurationSeconds = 0
	}

	if sum.TotalReps == 0 || s.Anonymous() {
		f.log.Debug("session not persisted",
			"session_id", sum.SessionID,
			"member_id", s.MemberID,
			"reps", sum.TotalReps,
		)
		s.summary = sum
		return sum
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	if f.store != nil {
		row := models.ExerciseSessionRow{
			ID:              s.ID,
			MemberID:        s.MemberID,
			Exercise:        s.Exercise,
			TotalReps:       sum.TotalReps,
			AvgFormScore:    sum.AvgFormScore,
			RepDetails:      append([]models.RepResult{}, s.Reps...),
			DurationSeconds: sum.DurationSeconds,
			StartedAt:       s.StartedAt,
			EndedAt:         &end,
		}
		sum.Saved = f.step(s, "save session", func() error {
			_, err := f.store.SaveSession(ctx, row)
			return err
		})
	}

	if f.bus != nil {
		event := models.SessionCompletedEvent{
			SessionID:       sum.SessionID,
			MemberID:        s.MemberID,
			Exercise:        s.Exercise,
			TotalReps:       sum.TotalReps,
			AvgFormScore:    sum.AvgFormScore,
			DurationSeconds: sum.DurationSeconds,
		}
		sum.Published = f.step(s, "publish session completed", func() error {
			return f.bus.Publish(ctx, models.EventSessionCompleted, event, s.MemberID)
		})
	}

	f.log.Info("exercise session finalized",
		"session_id", sum.SessionID,
		"exercise", s.Exercise,
		"reps", sum.TotalReps,
		"saved", sum.Saved,
		"published", sum.Published,
	)

	s.summary = sum
	return sum
}

// step runs fn, turning a returned error or a panic into an error log.
func (f *Finalizer) step(s *Session, name string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("finalize step panicked",
				"step", name,
				"session_id", s.ID,
				"error", fmt.Errorf("panic: %v", r),
			)
			ok = false
		}
	}()

	if err := fn(); err != nil {
		f.log.Error("finalize step failed",
			"step", name,
			"session_id", s.ID,
			"error", err,
		)
		return false
	}
	return true
}
