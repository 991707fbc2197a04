package e2e

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// AppServer is the scriptable application under test. Handlers are
// registered per path; every request is counted.
type AppServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

func newAppServer(t *testing.T) *AppServer {
	t.Helper()
	s := &AppServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.dispatch))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's base URL.
func (s *AppServer) URL() string {
	return s.srv.URL
}

func (s *AppServer) dispatch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	handler := s.handlers[r.URL.Path]
	s.mu.Unlock()

	if handler == nil {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

// Handle installs a handler for one path.
func (s *AppServer) Handle(path string, handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[path] = handler
}

// HandleJSON installs a fixed JSON response for one path.
func (s *AppServer) HandleJSON(path string, status int, body string) {
	s.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

// FailThenSucceed installs a handler that returns failStatus for the first
// failures requests and okBody with 200 afterwards.
func (s *AppServer) FailThenSucceed(path string, failures, failStatus int, okBody string) {
	var mu sync.Mutex
	served := 0
	s.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		served++
		n := served
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(failStatus)
			fmt.Fprintf(w, `{"error":"transient %d"}`, failStatus)
			return
		}
		fmt.Fprint(w, okBody)
	})
}

// Alternate installs a handler that cycles through the given statuses, one
// per request, always responding with a small JSON body.
func (s *AppServer) Alternate(path string, statuses ...int) {
	var mu sync.Mutex
	served := 0
	s.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		status := statuses[served%len(statuses)]
		served++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%d}`, status)
	})
}

// Hits returns how many requests the path has received.
func (s *AppServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}
