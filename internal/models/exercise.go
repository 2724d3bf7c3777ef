package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnonymousMember is the member ID used when a stream does not identify one.
// Sessions for this member are never persisted.
const AnonymousMember = "anonymous"

// EventSessionCompleted is published once per persisted exercise session.
const EventSessionCompleted = "exercise.session_completed"

// SourceAITracker marks workout logs created from tracked sessions.
const SourceAITracker = "ai_tracker"

// RepResult is one completed repetition in a session's rep ledger.
type RepResult struct {
	RepNumber int      `json:"rep_number"`
	Score     float64  `json:"score"`
	Feedback  []string `json:"feedback"`
}

// ExerciseSessionRow is a row of the exercise_sessions table.
type ExerciseSessionRow struct {
	ID              uuid.UUID   `json:"id"`
	MemberID        string      `json:"member_id"`
	Exercise        string      `json:"exercise"`
	TotalReps       int         `json:"total_reps"`
	AvgFormScore    *float64    `json:"avg_form_score"`
	RepDetails      []RepResult `json:"rep_details"`
	DurationSeconds int         `json:"duration_seconds"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         *time.Time  `json:"ended_at"`
}

// SessionFilter narrows a session listing. Empty fields match everything.
type SessionFilter struct {
	MemberID string
	Exercise string
	Limit    int
}

// SessionList is a page of sessions, newest first, plus the unpaged total.
type SessionList struct {
	Items []ExerciseSessionRow `json:"items"`
	Total int                  `json:"total"`
}

// SessionCompletedEvent is the payload of EventSessionCompleted.
type SessionCompletedEvent struct {
	SessionID       string   `json:"session_id"`
	MemberID        string   `json:"member_id"`
	Exercise        string   `json:"exercise"`
	TotalReps       int      `json:"total_reps"`
	AvgFormScore    *float64 `json:"avg_form_score"`
	DurationSeconds int      `json:"duration_seconds"`
}

// Event is the envelope written to the event bus.
type Event struct {
	EventType   string          `json:"event_type"`
	Key         string          `json:"key"`
	Data        json.RawMessage `json:"data"`
	PublishedAt time.Time       `json:"published_at"`
}

// ExerciseLog is one exercise inside a workout log.
type ExerciseLog struct {
	ExerciseName  string   `json:"exercise_name"`
	SetsCompleted int      `json:"sets_completed"`
	RepsPerSet    []int    `json:"reps_per_set"`
	FormScore     *float64 `json:"form_score"`
}

// WorkoutLogRow is a row of the workout_logs table.
type WorkoutLogRow struct {
	ID                 uuid.UUID     `json:"id"`
	MemberID           string        `json:"member_id"`
	SessionID          *uuid.UUID    `json:"session_id"`
	CompletedAt        time.Time     `json:"completed_at"`
	DurationMinutes    int           `json:"duration_minutes"`
	ExercisesCompleted []ExerciseLog `json:"exercises_completed"`
	Source             string        `json:"source"`
}
