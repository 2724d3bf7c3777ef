package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/storage"
)

const maxListLimit = 100

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	info, ok := IdentityFromContext(r.Context())
	if !ok {
		info = UserInfo{Login: models.AnonymousMember, DisplayName: "Anonymous"}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Catalog())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, storage.DefaultSessionLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	list, err := s.repo.ListSessions(r.Context(), models.SessionFilter{
		MemberID: memberID(r),
		Exercise: r.URL.Query().Get("exercise"),
		Limit:    limit,
	})
	if err != nil {
		s.log.Error("listing exercise sessions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	sess, err := s.repo.GetSession(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	if err != nil {
		s.log.Error("getting exercise session", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleExerciseStats(w http.ResponseWriter, r *http.Request) {
	member := memberID(r)
	if member == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "member_id parameter required"})
		return
	}

	stats, err := s.repo.GetExerciseStats(r.Context(), member)
	if err != nil {
		s.log.Error("exercise stats", "member_id", member, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWorkoutLogs(w http.ResponseWriter, r *http.Request) {
	member := memberID(r)
	if member == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "member_id parameter required"})
		return
	}
	limit, err := parseLimit(r, storage.DefaultSessionLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	logs, err := s.repo.QueryWorkoutLogs(r.Context(), member, limit)
	if err != nil {
		s.log.Error("querying workout logs", "member_id", member, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// memberID is the member_id query parameter, falling back to the caller's
// tailnet login.
func memberID(r *http.Request) string {
	if m := r.URL.Query().Get("member_id"); m != "" {
		return m
	}
	if info, ok := IdentityFromContext(r.Context()); ok {
		return info.Login
	}
	return ""
}

var errBadLimit = fmt.Errorf("limit must be an integer between 1 and %d", maxListLimit)

func parseLimit(r *http.Request, def int) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, nil
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, errBadLimit
	}
	return n, nil
}
