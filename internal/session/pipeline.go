package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/claude/reptrack/internal/pose"
	"github.com/claude/reptrack/internal/tracker"
)

// Close codes sent to streaming clients.
const (
	CloseGoingAway       = 1001
	CloseUnknownExercise = 4000
	CloseIdleTimeout     = 4001
)

// Inline error messages. The stream keeps going after either one.
const (
	ErrMsgInvalidJSON  = "Invalid JSON"
	ErrMsgMissingFrame = "Missing 'frame' field"
)

// statusLogFrameEvery is how often a frame status line is logged.
const statusLogFrameEvery = 30

// Conn is the message channel a Pipeline serves. It matches the subset of
// *websocket.Conn the pipeline needs, with close frames reduced to WriteClose.
// WriteClose and SetReadDeadline may be called concurrently with ReadMessage.
// The pipeline never closes conn; its owner does after Serve returns.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	SetReadDeadline(t time.Time) error
	WriteClose(code int, text string) error
}

// FrameResponse is sent for every accepted frame.
type FrameResponse struct {
	tracker.Update
	Angles      pose.AngleSet  `json:"angles"`
	Landmarks   pose.Landmarks `json:"landmarks"`
	FrameNumber int            `json:"frame_number"`
}

// ErrorResponse carries an inline error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Pipeline runs streaming sessions. One Pipeline serves every connection;
// each Serve call owns its own Session and Tracker.
type Pipeline struct {
	registry    *tracker.Registry
	factory     pose.Factory
	finalizer   *Finalizer
	idleTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// NewPipeline creates a Pipeline. A nil factory runs without pose
// extraction: every frame is answered with no angles. idleTimeout <= 0
// disables the idle deadline.
func NewPipeline(registry *tracker.Registry, factory pose.Factory, finalizer *Finalizer, idleTimeout time.Duration, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if finalizer == nil {
		finalizer = NewFinalizer(nil, nil, log)
	}
	return &Pipeline{
		registry:    registry,
		factory:     factory,
		finalizer:   finalizer,
		idleTimeout: idleTimeout,
		log:         log,
		now:         time.Now,
	}
}

// Serve runs one session over conn until the client disconnects, the
// connection fails, the idle timeout fires or ctx is cancelled. The session
// is finalized before Serve returns. An unknown exercise is reported to the
// client, closed with CloseUnknownExercise and returned as
// *tracker.UnknownExerciseError; every other exit returns nil.
func (p *Pipeline) Serve(ctx context.Context, conn Conn, exercise, memberID string) error {
	tr, err := p.registry.Create(exercise)
	if err != nil {
		if werr := conn.WriteJSON(ErrorResponse{Error: err.Error()}); werr != nil {
			p.log.Debug("writing exercise error", "error", werr)
		}
		if werr := conn.WriteClose(CloseUnknownExercise, "unknown exercise"); werr != nil {
			p.log.Debug("writing close frame", "error", werr)
		}
		return err
	}
	entry, _ := p.registry.Lookup(exercise)

	proc := p.newProcessor(exercise)
	s := New(exercise, memberID, tr, p.now())
	defer p.finalizer.Finalize(ctx, s, proc)

	// Shutdown sends the going-away frame and expires the pending read; the
	// connection itself stays open until the session is finalized.
	shutdownSent := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(shutdownSent)
		_ = conn.WriteClose(CloseGoingAway, "server shutting down")
		_ = conn.SetReadDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			<-shutdownSent
		}
	}()

	p.log.Info("exercise stream connected",
		"session_id", s.ID,
		"exercise", exercise,
		"member_id", s.MemberID,
		"pose", proc != nil,
	)

	for {
		if p.idleTimeout > 0 {
			_ = conn.SetReadDeadline(p.now().Add(p.idleTimeout))
		}
		// Checked after the deadline is set so a concurrent shutdown
		// cannot have its expired deadline overwritten unnoticed.
		if ctx.Err() != nil {
			p.disconnected(ctx, conn, s, ctx.Err())
			return nil
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			p.disconnected(ctx, conn, s, err)
			return nil
		}

		resp := p.handleMessage(s, entry.Joints, proc, msg)
		if err := conn.WriteJSON(resp); err != nil {
			p.log.Info("exercise stream write failed",
				"session_id", s.ID,
				"error", err,
			)
			return nil
		}
	}
}

func (p *Pipeline) newProcessor(exercise string) pose.Processor {
	if p.factory == nil {
		return nil
	}
	proc, err := p.factory()
	if err != nil {
		p.log.Warn("pose processor unavailable", "exercise", exercise, "error", err)
		return nil
	}
	return proc
}

// handleMessage turns one client message into its response. Envelope
// errors leave the session untouched.
func (p *Pipeline) handleMessage(s *Session, joints []pose.Joint, proc pose.Processor, msg []byte) any {
	var envelope map[string]any
	if err := json.Unmarshal(msg, &envelope); err != nil {
		if !json.Valid(msg) {
			return ErrorResponse{Error: ErrMsgInvalidJSON}
		}
		return ErrorResponse{Error: ErrMsgMissingFrame}
	}
	if !truthy(envelope["frame"]) {
		return ErrorResponse{Error: ErrMsgMissingFrame}
	}

	s.FrameCount++
	angles := pose.AngleSet{}
	var landmarks pose.Landmarks

	if proc != nil {
		lms, err := extract(proc, envelope["frame"])
		if err != nil {
			p.log.Warn("frame processing error",
				"session_id", s.ID,
				"frame", s.FrameCount,
				"error", err,
			)
		} else if lms != nil {
			landmarks = lms
			angles = pose.Angles(lms, joints)
		}

		if s.FrameCount%statusLogFrameEvery == 0 {
			p.log.Info("frame status",
				"session_id", s.ID,
				"frame", s.FrameCount,
				"pose_detected", landmarks != nil,
				"primary_angle", deref(angles.Primary()),
			)
		}
	}

	update := s.Tracker.Update(angles.Primary())
	s.Record(update)

	return FrameResponse{
		Update:      update,
		Angles:      angles,
		Landmarks:   landmarks,
		FrameNumber: s.FrameCount,
	}
}

// extract decodes the base64 frame and runs the processor on it. Panics
// inside the processor are reported as errors.
func extract(proc pose.Processor, frame any) (lms pose.Landmarks, err error) {
	defer func() {
		if r := recover(); r != nil {
			lms, err = nil, fmt.Errorf("pose processor panic: %v", r)
		}
	}()

	encoded, ok := frame.(string)
	if !ok {
		return nil, fmt.Errorf("frame is %T, want base64 string", frame)
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return proc.Extract(img)
}

func (p *Pipeline) disconnected(ctx context.Context, conn Conn, s *Session, err error) {
	reason := "client disconnected"
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
		reason = "server shutdown"
	case errors.As(err, &netErr) && netErr.Timeout():
		reason = "idle timeout"
		if werr := conn.WriteClose(CloseIdleTimeout, "idle timeout"); werr != nil {
			p.log.Debug("writing close frame", "error", werr)
		}
	}

	p.log.Info("exercise stream disconnected",
		"session_id", s.ID,
		"exercise", s.Exercise,
		"member_id", s.MemberID,
		"reason", reason,
		"total_reps", s.Tracker.RepCount(),
		"frames_processed", s.FrameCount,
		"error", err,
	)
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// truthy reports whether a decoded JSON value is present and non-empty.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
