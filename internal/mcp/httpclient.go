package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/storage"
	"github.com/claude/reptrack/internal/tracker"
)

// HTTPClient implements DataSource by calling the RepTrack REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("httpclient: %s: %w", path, storage.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func getJSON[T any](ctx context.Context, c *HTTPClient, path string, params url.Values) (T, error) {
	var v T
	body, err := c.get(ctx, path, params)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return v, nil
}

func memberParams(memberID string, limit int) url.Values {
	params := url.Values{}
	if memberID != "" {
		params.Set("member_id", memberID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params
}

// ListExercises fetches the exercise catalog.
func (c *HTTPClient) ListExercises(ctx context.Context) ([]tracker.Info, error) {
	return getJSON[[]tracker.Info](ctx, c, "/api/v1/exercises", nil)
}

// ListSessions fetches a page of exercise sessions.
func (c *HTTPClient) ListSessions(ctx context.Context, filter models.SessionFilter) (models.SessionList, error) {
	params := memberParams(filter.MemberID, filter.Limit)
	if filter.Exercise != "" {
		params.Set("exercise", filter.Exercise)
	}
	return getJSON[models.SessionList](ctx, c, "/api/v1/exercises/sessions", params)
}

// GetSession fetches one session. A missing session wraps storage.ErrNotFound.
func (c *HTTPClient) GetSession(ctx context.Context, id uuid.UUID) (models.ExerciseSessionRow, error) {
	return getJSON[models.ExerciseSessionRow](ctx, c, "/api/v1/exercises/sessions/"+id.String(), nil)
}

// GetExerciseStats fetches lifetime per-exercise totals for a member.
func (c *HTTPClient) GetExerciseStats(ctx context.Context, memberID string) ([]storage.ExerciseStat, error) {
	return getJSON[[]storage.ExerciseStat](ctx, c, "/api/v1/exercises/stats", memberParams(memberID, 0))
}

// QueryWorkoutLogs fetches a member's workout logs.
func (c *HTTPClient) QueryWorkoutLogs(ctx context.Context, memberID string, limit int) ([]models.WorkoutLogRow, error) {
	return getJSON[[]models.WorkoutLogRow](ctx, c, "/api/v1/workout_logs", memberParams(memberID, limit))
}
