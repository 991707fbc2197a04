package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentic-hq/agentic/pkg/report"
)

// trackerRepository is the owner/repo every e2e tracker client targets.
const trackerRepository = "agentic/e2e"

// TrackerServer is a stateful in-memory issue tracker speaking the GitHub
// issue wire shapes: create, comment, search, and rate limit. Search returns
// every stored issue; duplicate detection matches fingerprints client-side.
type TrackerServer struct {
	srv *httptest.Server

	mu         sync.Mutex
	issues     []report.Issue
	comments   map[int][]string
	nextNumber int
}

func newTrackerServer(t *testing.T) *TrackerServer {
	t.Helper()
	s := &TrackerServer{
		comments:   make(map[int][]string),
		nextNumber: 1,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.dispatch))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the tracker's base URL.
func (s *TrackerServer) URL() string {
	return s.srv.URL
}

func (s *TrackerServer) dispatch(w http.ResponseWriter, r *http.Request) {
	issuesPath := fmt.Sprintf("/repos/%s/issues", trackerRepository)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == issuesPath:
		s.createIssue(w, r)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, issuesPath+"/"):
		s.createComment(w, r, strings.TrimPrefix(r.URL.Path, issuesPath+"/"))
	case r.Method == http.MethodGet && r.URL.Path == "/search/issues":
		s.search(w)
	case r.Method == http.MethodGet && r.URL.Path == "/rate_limit":
		s.rateLimit(w)
	default:
		http.NotFound(w, r)
	}
}

func (s *TrackerServer) createIssue(w http.ResponseWriter, r *http.Request) {
	var req report.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	issue := report.Issue{
		Number: s.nextNumber,
		URL:    fmt.Sprintf("%s/%s/issues/%d", s.srv.URL, trackerRepository, s.nextNumber),
		Title:  req.Title,
		Body:   req.Body,
	}
	s.nextNumber++
	s.issues = append(s.issues, issue)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(issue)
}

func (s *TrackerServer) createComment(w http.ResponseWriter, r *http.Request, rest string) {
	numberStr, ok := strings.CutSuffix(rest, "/comments")
	if !ok {
		http.NotFound(w, r)
		return
	}
	number, err := strconv.Atoi(numberStr)
	if err != nil {
		http.Error(w, "bad issue number", http.StatusBadRequest)
		return
	}

	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.comments[number] = append(s.comments[number], payload.Body)
	id := int64(1000 + len(s.comments[number]))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(report.Comment{ID: id})
}

func (s *TrackerServer) search(w http.ResponseWriter) {
	s.mu.Lock()
	result := report.SearchResult{
		TotalCount: len(s.issues),
		Items:      append([]report.Issue(nil), s.issues...),
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *TrackerServer) rateLimit(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]report.RateLimit{
		"rate": {
			Limit:     5000,
			Used:      0,
			Remaining: 5000,
			Reset:     time.Now().Add(time.Hour).Unix(),
		},
	})
}

// Seed preloads an existing issue, as if a previous session had filed it.
func (s *TrackerServer) Seed(title, body string) report.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue := report.Issue{
		Number: s.nextNumber,
		URL:    fmt.Sprintf("%s/%s/issues/%d", s.srv.URL, trackerRepository, s.nextNumber),
		Title:  title,
		Body:   body,
	}
	s.nextNumber++
	s.issues = append(s.issues, issue)
	return issue
}

// Issues returns a copy of every stored issue.
func (s *TrackerServer) Issues() []report.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Issue(nil), s.issues...)
}

// IssueCount returns how many issues have been filed.
func (s *TrackerServer) IssueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issues)
}

// Comments returns the comments posted on one issue.
func (s *TrackerServer) Comments(number int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.comments[number]...)
}
