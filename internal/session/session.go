// Package session drives one streaming rep-tracking connection: it feeds
// frames through pose extraction and the exercise tracker, answers each
// frame, and finalizes the session record when the stream ends.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/tracker"
)

// Session is the per-connection state. It is owned by a single goroutine.
type Session struct {
	ID         uuid.UUID
	MemberID   string
	Exercise   string
	StartedAt  time.Time
	FrameCount int
	Reps       []models.RepResult
	Tracker    *tracker.Tracker

	finalized bool
	summary   Summary
}

// New starts a session for a resolved tracker. An empty memberID is
// recorded as models.AnonymousMember.
func New(exercise, memberID string, tr *tracker.Tracker, startedAt time.Time) *Session {
	if memberID == "" {
		memberID = models.AnonymousMember
	}
	return &Session{
		ID:        uuid.New(),
		MemberID:  memberID,
		Exercise:  exercise,
		StartedAt: startedAt,
		Tracker:   tr,
	}
}

// Record adds a completed rep from u to the ledger. Updates without a
// completed rep are ignored.
func (s *Session) Record(u tracker.Update) {
	if !u.CompletedRep || u.RepScore == nil {
		return
	}
	s.Reps = append(s.Reps, models.RepResult{
		RepNumber: u.RepCount,
		Score:     *u.RepScore,
		Feedback:  append([]string{}, u.Feedback...),
	})
}

// Anonymous reports whether the session has no known member.
func (s *Session) Anonymous() bool {
	return s.MemberID == models.AnonymousMember
}

// Finalized reports whether Finalize has already run for this session.
func (s *Session) Finalized() bool { return s.finalized }
