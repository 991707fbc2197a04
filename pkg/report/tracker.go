package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/version"
)

// ErrNotFound marks a missing tracker endpoint. Callers degrade gracefully:
// a missing search endpoint means "no duplicate", a missing rate-limit
// endpoint means "no limiting".
var ErrNotFound = errors.New("tracker endpoint not found")

// IssueRequest is the submission payload.
type IssueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

// Issue is the tracker's view of a submitted or found issue.
type Issue struct {
	Number int    `json:"number"`
	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
}

// Comment is the tracker's acknowledgement of a posted comment.
type Comment struct {
	ID int64 `json:"id"`
}

// SearchResult is the shape of GET search/issues.
type SearchResult struct {
	TotalCount int     `json:"total_count"`
	Items      []Issue `json:"items"`
}

// RateLimit is the mutating-call budget reported by the tracker.
type RateLimit struct {
	Limit     int   `json:"limit"`
	Used      int   `json:"used"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

type rateLimitEnvelope struct {
	Rate RateLimit `json:"rate"`
}

// Tracker is a GitHub-style issue tracker client. The token is read from
// the environment variable named in the configuration.
type Tracker struct {
	baseURL    string
	repository string
	token      string
	httpClient *http.Client
}

// NewTracker creates a tracker client from reporter configuration.
func NewTracker(cfg *config.ReporterConfig) *Tracker {
	token := ""
	if cfg.TokenEnv != "" {
		token = os.Getenv(cfg.TokenEnv)
	}
	return &Tracker{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		repository: cfg.Repository,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Repository returns the owner/repo the tracker targets.
func (t *Tracker) Repository() string {
	return t.repository
}

// CreateIssue submits a new issue.
func (t *Tracker) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/issues", t.repository)
	if err := t.do(ctx, http.MethodPost, path, req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateComment posts a comment on an existing issue.
func (t *Tracker) CreateComment(ctx context.Context, number int, body string) (*Comment, error) {
	var comment Comment
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", t.repository, number)
	payload := map[string]string{"body": body}
	if err := t.do(ctx, http.MethodPost, path, payload, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// SearchIssues runs a text query against the tracker's search endpoint.
func (t *Tracker) SearchIssues(ctx context.Context, query string) (*SearchResult, error) {
	var result SearchResult
	path := "/search/issues?q=" + url.QueryEscape(query)
	if err := t.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchRateLimit reads the remaining mutating-call budget.
func (t *Tracker) FetchRateLimit(ctx context.Context) (*RateLimit, error) {
	var envelope rateLimitEnvelope
	if err := t.do(ctx, http.MethodGet, "/rate_limit", nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Rate, nil
}

func (t *Tracker) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode tracker payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build tracker request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", version.Full())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracker request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read tracker response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tracker returned %d for %s %s: %s",
			resp.StatusCode, method, path, snippet(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode tracker response: %w", err)
		}
	}
	return nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
