package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/claude/reptrack/internal/tracker"
)

const (
	// maxFrameBytes bounds one client message (a base64 JPEG frame).
	maxFrameBytes  = 8 << 20
	closeWriteWait = time.Second
)

// wsConn adapts a gorilla connection to session.Conn.
type wsConn struct {
	*websocket.Conn
}

func (c wsConn) WriteClose(code int, text string) error {
	return c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(closeWriteWait))
}

// handleStream upgrades to a WebSocket and runs one exercise session on it.
// The session lives until the client leaves or Drain is called, independent
// of the request context.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	exercise := chi.URLParam(r, "exercise")
	member := memberID(r)

	if !s.acquireStream() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server shutting down"})
		return
	}
	defer s.streams.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.log.Warn("websocket upgrade failed", "exercise", exercise, "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)
	defer ws.Close()

	if err := s.pipeline.Serve(s.baseCtx, wsConn{ws}, exercise, member); err != nil {
		var unknown *tracker.UnknownExerciseError
		if errors.As(err, &unknown) {
			s.log.Warn("exercise stream rejected", "exercise", exercise, "error", err)
			return
		}
		s.log.Error("exercise stream failed", "exercise", exercise, "error", err)
	}
}
