package config

import "github.com/agentic-hq/agentic/pkg/models"

// Impact factor names recognised by the triage analyzer.
const (
	FactorErrorSeverity        = "errorSeverity"
	FactorUserImpact           = "userImpact"
	FactorTestStability        = "testStability"
	FactorBusinessPriority     = "businessPriority"
	FactorSecurityImplications = "securityImplications"
	FactorPerformanceImpact    = "performanceImpact"
	FactorRegressionDetection  = "regressionDetection"
)

// DefaultWeights returns the default impact factor weights. They sum to 1.0.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		FactorErrorSeverity:        0.20,
		FactorUserImpact:           0.20,
		FactorTestStability:        0.15,
		FactorBusinessPriority:     0.15,
		FactorSecurityImplications: 0.10,
		FactorPerformanceImpact:    0.10,
		FactorRegressionDetection:  0.10,
	}
}

// DefaultSensitiveHeaders are masked in logs when header logging is on.
func DefaultSensitiveHeaders() []string {
	return []string{"authorization", "x-api-key", "cookie"}
}

// DefaultExecutionConfig returns the built-in scheduling defaults.
func DefaultExecutionConfig() *ExecutionConfig {
	continueOnFailure := true
	return &ExecutionConfig{
		MaxParallel:       4,
		DefaultTimeoutMs:  60_000,
		MaxRetries:        0,
		ContinueOnFailure: &continueOnFailure,
		StepTimeoutMs:     30_000,
	}
}

// DefaultHTTPConfig returns the built-in HTTP subsystem defaults.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		TimeoutMs: 30_000,
		Retry: RetryConfig{
			MaxRetries:         2,
			RetryDelayMs:       1_000,
			RetryOnStatus:      []int{408, 429, 500, 502, 503, 504},
			ExponentialBackoff: true,
			MaxBackoffDelayMs:  30_000,
		},
		Performance: PerformanceConfig{
			Thresholds: PerformanceThresholds{
				MaxResponseTimeMs: 5_000,
				MaxDNSTimeMs:      1_000,
				MaxConnectTimeMs:  2_000,
			},
		},
		Logging: HTTPLoggingConfig{
			SensitiveHeaders: DefaultSensitiveHeaders(),
		},
	}
}

// DefaultTerminalConfig returns the built-in CLI/TUI session defaults.
func DefaultTerminalConfig() *TerminalConfig {
	return &TerminalConfig{
		DefaultTimeoutMs: 30_000,
		GracePeriodMs:    5_000,
		Rows:             24,
		Cols:             80,
	}
}

// DefaultUIConfig returns the built-in UI driver defaults.
func DefaultUIConfig() *UIConfig {
	return &UIConfig{
		NavigationToMs: 30_000,
	}
}

// DefaultTriageConfig returns the built-in triage defaults.
func DefaultTriageConfig() *TriageConfig {
	return &TriageConfig{
		Weights:             DefaultWeights(),
		FlakyThreshold:      0.3,
		MinSamplesForTrends: 5,
		ReportThreshold:     models.PriorityHigh,
	}
}

// DefaultReporterConfig returns the built-in issue reporter defaults.
// Reporting is off until a repository is configured.
func DefaultReporterConfig() *ReporterConfig {
	return &ReporterConfig{
		Enabled:                   false,
		BaseURL:                   "https://api.github.com",
		TokenEnv:                  "GITHUB_TOKEN",
		DeduplicationLookbackDays: 30,
		RateLimitBuffer:           10,
		MaxBodyLength:             60_000,
	}
}

// DefaultComprehensionConfig returns the built-in LLM agent defaults.
func DefaultComprehensionConfig() *ComprehensionConfig {
	return &ComprehensionConfig{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		MaxTokens:   2_000,
		TokenEnv:    "OPENAI_API_KEY",
		TimeoutMs:   60_000,
	}
}

// DefaultNotificationsConfig returns the built-in notifier defaults (off).
func DefaultNotificationsConfig() *NotificationsConfig {
	return &NotificationsConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}
}

// DefaultServerConfig returns the built-in REST server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}
}

// DefaultReportsConfig returns the built-in report directory layout.
func DefaultReportsConfig() *ReportsConfig {
	return &ReportsConfig{
		Dir:           "reports",
		ScreenshotDir: "screenshots",
	}
}

// DefaultLoggingConfig returns the built-in logging defaults.
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:  "info",
		Format: "text",
	}
}
