package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/pose"
	"github.com/claude/reptrack/internal/tracker"
)

var discard = slog.New(slog.DiscardHandler)

// fakeConn replays queued messages, then returns readErr. With block set it
// waits until Close or an already expired read deadline instead.
type fakeConn struct {
	mu        sync.Mutex
	in        [][]byte
	readErr   error
	block     bool
	closedCh  chan struct{}
	expiredCh chan struct{}
	expired   bool
	out       [][]byte
	closeCode int
	closed    bool
	deadlines int
}

func newFakeConn(msgs ...string) *fakeConn {
	c := &fakeConn{readErr: io.EOF, closedCh: make(chan struct{}), expiredCh: make(chan struct{})}
	for _, m := range msgs {
		c.in = append(c.in, []byte(m))
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, nil, errors.New("use of closed connection")
	}
	if len(c.in) > 0 {
		msg := c.in[0]
		c.in = c.in[1:]
		c.mu.Unlock()
		return 1, msg, nil
	}
	block := c.block
	c.mu.Unlock()

	if block {
		select {
		case <-c.closedCh:
			return 0, nil, errors.New("use of closed connection")
		case <-c.expiredCh:
			return 0, nil, timeoutError{}
		}
	}
	return 0, nil, c.readErr
}

func (c *fakeConn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, b)
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines++
	if !t.After(time.Now()) && !c.expired {
		c.expired = true
		close(c.expiredCh)
	}
	return nil
}

func (c *fakeConn) WriteClose(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCode == 0 {
		c.closeCode = code
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

func (c *fakeConn) responses() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.out...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// timeoutError mimics the error a read deadline produces.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// angleProcessor reads the frame payload as a joint angle in degrees and
// lays out every tracked joint at that angle. "none" means no person in
// view, "fail" is an extraction error and "panic" panics.
type angleProcessor struct {
	joints []pose.Joint
	closes int
}

func newAngleProcessor(t *testing.T, exercise string) *angleProcessor {
	t.Helper()
	e, ok := tracker.NewDefaultRegistry(discard).Lookup(exercise)
	if !ok {
		t.Fatalf("no exercise %q", exercise)
	}
	return &angleProcessor{joints: e.Joints}
}

func (p *angleProcessor) Extract(frame []byte) (pose.Landmarks, error) {
	switch string(frame) {
	case "none":
		return nil, nil
	case "fail":
		return nil, errors.New("model exploded")
	case "panic":
		panic("model panicked")
	}
	deg, err := strconv.ParseFloat(string(frame), 64)
	if err != nil {
		return nil, err
	}
	return jointLandmarks(deg, p.joints), nil
}

func (p *angleProcessor) Close() error {
	p.closes++
	return nil
}

func (p *angleProcessor) factory() pose.Factory {
	return func() (pose.Processor, error) { return p, nil }
}

// jointLandmarks places A above B and rotates C so every joint measures deg.
func jointLandmarks(deg float64, joints []pose.Joint) pose.Landmarks {
	rad := deg * math.Pi / 180
	lms := pose.Landmarks{}
	for _, j := range joints {
		lms[j.A] = pose.Landmark{X: 0, Y: -100, Visibility: 1}
		lms[j.B] = pose.Landmark{X: 0, Y: 0, Visibility: 1}
		lms[j.C] = pose.Landmark{X: 100 * math.Sin(rad), Y: -100 * math.Cos(rad), Visibility: 1}
	}
	return lms
}

// frames encodes each payload as a client frame message.
func frames(payloads ...string) []string {
	msgs := make([]string, len(payloads))
	for i, p := range payloads {
		msgs[i] = `{"frame":"` + base64.StdEncoding.EncodeToString([]byte(p)) + `"}`
	}
	return msgs
}

func angleFrames(angles ...float64) []string {
	payloads := make([]string, len(angles))
	for i, a := range angles {
		payloads[i] = strconv.FormatFloat(a, 'f', -1, 64)
	}
	return frames(payloads...)
}

type fakeStore struct {
	mu    sync.Mutex
	rows  []models.ExerciseSessionRow
	err   error
	panic bool
}

func (s *fakeStore) SaveSession(ctx context.Context, row models.ExerciseSessionRow) (models.ExerciseSessionRow, error) {
	if s.panic {
		panic("store panicked")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	if ctx.Err() != nil {
		return row, ctx.Err()
	}
	return row, s.err
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type published struct {
	eventType string
	payload   any
	key       string
}

type fakeBus struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (b *fakeBus) Publish(_ context.Context, eventType string, payload any, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{eventType, payload, key})
	return b.err
}

func (b *fakeBus) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
