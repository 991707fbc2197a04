package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// LLMServer mimics an OpenAI-style chat-completion endpoint. Replies are
// scripted in order; once the script runs dry every request gets a small
// JSON acknowledgement.
type LLMServer struct {
	srv *httptest.Server

	mu      sync.Mutex
	replies []string
	prompts []string
}

type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmRequest struct {
	Model    string       `json:"model"`
	Messages []llmMessage `json:"messages"`
}

func newLLMServer(t *testing.T) *LLMServer {
	t.Helper()
	s := &LLMServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(s.complete))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's base URL.
func (s *LLMServer) URL() string {
	return s.srv.URL
}

// Script queues replies, consumed one per completion request.
func (s *LLMServer) Script(replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Prompts returns the user-message content of every request received.
func (s *LLMServer) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *LLMServer) complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}

	var req llmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			s.prompts = append(s.prompts, msg.Content)
		}
	}
	reply := `{"answer":"ok"}`
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": reply}},
		},
	})
}
