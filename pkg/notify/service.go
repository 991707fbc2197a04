package notify

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
)

const postTimeout = 10 * time.Second

// Service posts session notifications to Slack.
// Nil-safe: all methods are no-ops when the service is nil.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService builds a Service from configuration. Returns nil when
// notifications are disabled, no channel is configured, or the token
// environment variable is unset.
func NewService(cfg *config.NotificationsConfig) *Service {
	if cfg == nil || !cfg.Enabled || cfg.Channel == "" {
		return nil
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		slog.Warn("Notifications enabled but token env is unset", "token_env", cfg.TokenEnv)
		return nil
	}
	return &Service{
		client: NewClient(token, cfg.Channel),
		logger: slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return &Service{
		client: client,
		logger: slog.Default().With("component", "notify-service"),
	}
}

// SessionFinished posts the session summary to the configured channel.
// Fail-open: errors are logged, never returned.
func (s *Service) SessionFinished(ctx context.Context, session *models.TestSession) {
	if s == nil {
		return
	}
	blocks := BuildSessionMessage(session)
	if err := s.client.PostMessage(ctx, blocks, postTimeout); err != nil {
		s.logger.Error("Failed to send session notification",
			"session_id", session.SessionID,
			"error", err)
	}
}
