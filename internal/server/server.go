package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/claude/reptrack/internal/session"
	"github.com/claude/reptrack/internal/storage"
	"github.com/claude/reptrack/internal/tracker"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	repo     storage.Repository
	registry *tracker.Registry
	pipeline *session.Pipeline
	log      *slog.Logger
	apiKey   string
	whois    WhoIser
	router   chi.Router
	upgrader websocket.Upgrader

	// streams tracks open exercise streams; baseCtx is cancelled by Drain.
	// Once draining is set no new stream is admitted.
	mu       sync.Mutex
	draining bool
	streams  sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// New creates a new Server with all routes configured.
func New(repo storage.Repository, registry *tracker.Registry, pipeline *session.Pipeline, apiKey string, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		repo:     repo,
		registry: registry,
		pipeline: pipeline,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identity)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/me", s.handleMe)
		r.Get("/exercises", s.handleExercises)
		r.Get("/exercises/sessions", s.handleListSessions)
		r.Get("/exercises/sessions/{id}", s.handleGetSession)
		r.Get("/exercises/stats", s.handleExerciseStats)
		r.Get("/workout_logs", s.handleWorkoutLogs)
	})

	s.router.Get("/ws/exercise/{exercise}", s.handleStream)
}

// SetMCP mounts an MCP endpoint at /mcp behind API key auth.
func (s *Server) SetMCP(h http.Handler) {
	s.router.With(APIKeyAuth(s.apiKey)).Handle("/mcp", h)
}

// SetTailscale resolves caller identity through the tailnet for every request.
func (s *Server) SetTailscale(w WhoIser) {
	s.whois = w
}

// acquireStream registers a new exercise stream unless Drain has started.
func (s *Server) acquireStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.streams.Add(1)
	return true
}

// Drain refuses new streams, closes every open exercise stream with a going-away frame and waits
// until their sessions are finalized or ctx expires. Call it after the HTTP
// server has stopped accepting connections.
func (s *Server) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining exercise streams: %w", ctx.Err())
	}
}
