// Package config loads, validates, and defaults the orchestrator
// configuration from an agentic.yaml file plus AGENTIC_* environment
// overrides.
package config

// Config is the umbrella configuration object returned by Initialize() and
// consumed by every subsystem.
type Config struct {
	path string // resolved configuration file path (for reference)

	Execution     *ExecutionConfig
	HTTP          *HTTPConfig
	Terminal      *TerminalConfig
	UI            *UIConfig
	Triage        *TriageConfig
	Reporter      *ReporterConfig
	Comprehension *ComprehensionConfig
	Notifications *NotificationsConfig
	Server        *ServerConfig
	Reports       *ReportsConfig
	Logging       *LoggingConfig
}

// Path returns the configuration file the config was loaded from, or ""
// when built-in defaults were used.
func (c *Config) Path() string {
	return c.path
}

// ContinueOnFailure resolves the session-level failure policy (default true).
func (c *Config) ContinueOnFailure() bool {
	if c.Execution == nil || c.Execution.ContinueOnFailure == nil {
		return true
	}
	return *c.Execution.ContinueOnFailure
}
