// Package llm implements the comprehension agent variant: steps send
// prompts to a chat-completion endpoint and verifications inspect the
// JSON object extracted from the model's reply.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a minimal chat-completion client. It works against any
// endpoint that accepts the OpenAI-style /chat/completions request shape.
type Client struct {
	cfg        *config.ComprehensionConfig
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// NewClient builds a client around the given configuration. The bearer
// token is read from the environment variable named by cfg.TokenEnv; an
// absent token sends unauthenticated requests.
func NewClient(cfg *config.ComprehensionConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: comprehension configuration is nil", agent.ErrConfig)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: comprehension baseURL is required", agent.ErrConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: comprehension model is required", agent.ErrConfig)
	}
	timeout := 60 * time.Second
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	token := ""
	if cfg.TokenEnv != "" {
		token = os.Getenv(cfg.TokenEnv)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}, nil
}

// SetToken replaces the bearer token used on subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Complete sends one system+user exchange and returns the first choice
// text. An empty system prompt sends a user-only conversation.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: user})

	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: invalid chat endpoint %q: %v", agent.ErrConfig, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		return "", fmt.Errorf("%w: %v", agent.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, snippet(data))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: undecodable chat response: %v", agent.ErrNoResponse, err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", fmt.Errorf("chat completion failed: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", agent.ErrNoResponse)
	}
	return out.Choices[0].Message.Content, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// ExtractJSON returns the first balanced {...} object found in text. The
// scanner is quote-aware so braces inside string values do not terminate
// the object early. The extracted candidate must be valid JSON.
func ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if inString {
				continue
			}
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
