package config

import (
	"time"

	"github.com/agentic-hq/agentic/pkg/models"
)

// ExecutionConfig controls the orchestrator's scheduling behaviour.
type ExecutionConfig struct {
	// MaxParallel is the number of scenario workers running concurrently.
	MaxParallel int `yaml:"maxParallel"`

	// DefaultTimeoutMs bounds one scenario attempt when the scenario does not
	// set its own timeout.
	DefaultTimeoutMs int64 `yaml:"defaultTimeoutMs"`

	// MaxRetries is the default extra-attempt budget for scenarios without an
	// explicit retries field.
	MaxRetries int `yaml:"maxRetries"`

	// ContinueOnFailure keeps the session dispatching after a scenario fails.
	// When false the first failure cancels everything still queued.
	ContinueOnFailure *bool `yaml:"continueOnFailure"`

	// StepTimeoutMs bounds a single step when neither the step nor the agent
	// configuration sets one.
	StepTimeoutMs int64 `yaml:"stepTimeoutMs"`
}

// AuthType selects the authentication header injection strategy.
type AuthType string

const (
	AuthTypeNone   AuthType = ""
	AuthTypeBearer AuthType = "bearer"
	AuthTypeAPIKey AuthType = "apikey"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeCustom AuthType = "custom"
)

// IsValid reports whether t names a known auth strategy.
func (t AuthType) IsValid() bool {
	switch t {
	case AuthTypeNone, AuthTypeBearer, AuthTypeAPIKey, AuthTypeBasic, AuthTypeCustom:
		return true
	}
	return false
}

// AuthConfig configures authentication header injection.
type AuthConfig struct {
	Type AuthType `yaml:"type"`
	// Token is the bearer token or API key value.
	Token string `yaml:"token,omitempty"`
	// Header overrides the API key header name (default X-API-Key).
	Header   string            `yaml:"header,omitempty"`
	Username string            `yaml:"username,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// RetryConfig controls HTTP retry behaviour. A request is attempted at most
// MaxRetries+1 times.
type RetryConfig struct {
	MaxRetries         int   `yaml:"maxRetries"`
	RetryDelayMs       int64 `yaml:"retryDelayMs"`
	RetryOnStatus      []int `yaml:"retryOnStatus"`
	ExponentialBackoff bool  `yaml:"exponentialBackoff"`
	MaxBackoffDelayMs  int64 `yaml:"maxBackoffDelayMs"`
}

// ShouldRetryStatus reports whether the status code is in the retry set.
func (r *RetryConfig) ShouldRetryStatus(status int) bool {
	for _, s := range r.RetryOnStatus {
		if s == status {
			return true
		}
	}
	return false
}

// PerformanceThresholds bound recorded request timings before a warning is logged.
type PerformanceThresholds struct {
	MaxResponseTimeMs int64 `yaml:"maxResponseTimeMs"`
	MaxDNSTimeMs      int64 `yaml:"maxDNSTimeMs"`
	MaxConnectTimeMs  int64 `yaml:"maxConnectTimeMs"`
}

// PerformanceConfig enables per-request performance recording.
type PerformanceConfig struct {
	// Enabled defaults to true when unset.
	Enabled    *bool                 `yaml:"enabled"`
	Thresholds PerformanceThresholds `yaml:"thresholds"`
}

// IsEnabled treats a missing enabled field as true.
func (c *PerformanceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HTTPLoggingConfig controls request/response logging and header masking.
type HTTPLoggingConfig struct {
	// LogRequests and MaskSensitiveData default to true when unset.
	LogRequests       *bool    `yaml:"logRequests"`
	LogResponses      bool     `yaml:"logResponses"`
	LogHeaders        bool     `yaml:"logHeaders"`
	MaskSensitiveData *bool    `yaml:"maskSensitiveData"`
	SensitiveHeaders  []string `yaml:"sensitiveHeaders"`
}

// RequestsLogged treats a missing logRequests field as true.
func (c *HTTPLoggingConfig) RequestsLogged() bool {
	return c.LogRequests == nil || *c.LogRequests
}

// Masked treats a missing maskSensitiveData field as true.
func (c *HTTPLoggingConfig) Masked() bool {
	return c.MaskSensitiveData == nil || *c.MaskSensitiveData
}

// ValidationConfig gates JSON Schema validation of response bodies.
type ValidationConfig struct {
	// Enabled defaults to true when unset.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled treats a missing enabled field as true.
func (c *ValidationConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HTTPConfig configures the HTTP request subsystem backing API agents.
type HTTPConfig struct {
	BaseURL        string            `yaml:"baseURL"`
	TimeoutMs      int64             `yaml:"timeoutMs"`
	DefaultHeaders map[string]string `yaml:"defaultHeaders,omitempty"`
	Auth           AuthConfig        `yaml:"auth"`
	Retry          RetryConfig       `yaml:"retry"`
	Validation     ValidationConfig  `yaml:"validation"`
	Performance    PerformanceConfig `yaml:"performance"`
	Logging        HTTPLoggingConfig `yaml:"logging"`
}

// Timeout returns the request timeout as a duration.
func (c *HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// TerminalConfig configures CLI/TUI sessions.
type TerminalConfig struct {
	// Shell runs `run` steps through `shell -c <command>` when set.
	Shell string `yaml:"shell,omitempty"`
	// DefaultTimeoutMs bounds expect/run operations without a step timeout.
	DefaultTimeoutMs int64 `yaml:"defaultTimeoutMs"`
	// GracePeriodMs is the SIGTERM-to-SIGKILL window on teardown.
	GracePeriodMs int64 `yaml:"gracePeriodMs"`
	// Rows and Cols set the initial PTY window size.
	Rows uint16 `yaml:"rows,omitempty"`
	Cols uint16 `yaml:"cols,omitempty"`
}

// GracePeriod returns the teardown grace window as a duration.
func (c *TerminalConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMs) * time.Millisecond
}

// UIConfig configures the UI driver agent.
type UIConfig struct {
	// Headless defaults to true when unset; AGENTIC_HEADLESS overrides.
	Headless       *bool  `yaml:"headless"`
	ScreenshotDir  string `yaml:"screenshotDir,omitempty"`
	BaseURL        string `yaml:"baseURL,omitempty"`
	NavigationToMs int64  `yaml:"navigationTimeoutMs,omitempty"`
}

// IsHeadless treats a missing headless field as true.
func (c *UIConfig) IsHeadless() bool {
	return c.Headless == nil || *c.Headless
}

// CustomRule is a signed impact-score modifier applied when a failure's
// message or tags match any of the rule's keywords.
type CustomRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	// Modifier is added to the impact score after division by 100.
	Modifier float64 `yaml:"modifier"`
}

// TriageConfig controls the priority analyzer and flaky detector.
type TriageConfig struct {
	// Weights maps factor name to its share of the impact score. The seven
	// factor weights must sum to 1.0 within ±0.01.
	Weights map[string]float64 `yaml:"weights,omitempty"`

	// FlakyThreshold is the minimum flakiness score reported, in [0,1].
	FlakyThreshold float64 `yaml:"flakyThreshold"`

	// MinSamplesForTrends is the minimum history length before a scenario is
	// considered for flaky detection and stability trends.
	MinSamplesForTrends int `yaml:"minSamplesForTrends"`

	// HistoryPath is the priority history JSON file. Empty means
	// ${cwd}/.priority-history.json.
	HistoryPath string `yaml:"historyPath,omitempty"`

	// ReportThreshold is the minimum computed priority forwarded to the
	// issue reporter.
	ReportThreshold models.Priority `yaml:"reportThreshold"`

	CustomRules []CustomRule `yaml:"customRules,omitempty"`
}

// ReporterConfig configures the issue tracker client.
type ReporterConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"baseURL"`
	Repository string `yaml:"repository"`
	// TokenEnv names the environment variable holding the access token.
	TokenEnv  string   `yaml:"tokenEnv"`
	Labels    []string `yaml:"labels,omitempty"`
	Assignees []string `yaml:"assignees,omitempty"`
	// Deduplication defaults to true when unset.
	Deduplication             *bool  `yaml:"deduplication"`
	DeduplicationLookbackDays int    `yaml:"deduplicationLookbackDays"`
	RateLimitBuffer           int    `yaml:"rateLimitBuffer"`
	MaxBodyLength             int    `yaml:"maxBodyLength"`
	TitleTemplate             string `yaml:"titleTemplate,omitempty"`
	BodyTemplate              string `yaml:"bodyTemplate,omitempty"`
}

// DeduplicationEnabled treats a missing deduplication field as true.
func (c *ReporterConfig) DeduplicationEnabled() bool {
	return c.Deduplication == nil || *c.Deduplication
}

// ComprehensionConfig configures the LLM-backed comprehension agent.
type ComprehensionConfig struct {
	BaseURL     string  `yaml:"baseURL"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
	// TokenEnv names the environment variable holding the API key.
	TokenEnv  string `yaml:"tokenEnv"`
	TimeoutMs int64  `yaml:"timeoutMs"`
}

// NotificationsConfig configures the optional Slack notifier.
type NotificationsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"tokenEnv"`
	Channel  string `yaml:"channel"`
}

// ServerConfig configures the REST intake server (`agentic serve`).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ReportsConfig names the directories session reports and screenshots are
// written to. The orchestrator writes here and never reads back.
type ReportsConfig struct {
	Dir           string `yaml:"dir"`
	ScreenshotDir string `yaml:"screenshotDir"`
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
