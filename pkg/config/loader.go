package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up when no --config flag
// is given.
const DefaultFileName = "agentic.yaml"

// Environment variables honoured after the file is loaded. They override
// the corresponding file values.
const (
	EnvLogLevel    = "AGENTIC_LOG_LEVEL"
	EnvMaxParallel = "AGENTIC_MAX_PARALLEL"
	EnvTimeout     = "AGENTIC_TIMEOUT"
	EnvHeadless    = "AGENTIC_HEADLESS"
)

// fileConfig mirrors the agentic.yaml layout. Sections are pointers so an
// absent section falls back to built-in defaults.
type fileConfig struct {
	Execution     *ExecutionConfig     `yaml:"execution"`
	HTTP          *httpYAML            `yaml:"http"`
	Terminal      *TerminalConfig      `yaml:"terminal"`
	UI            *UIConfig            `yaml:"ui"`
	Triage        *TriageConfig        `yaml:"triage"`
	Reporter      *ReporterConfig      `yaml:"reporter"`
	Comprehension *ComprehensionConfig `yaml:"comprehension"`
	Notifications *NotificationsConfig `yaml:"notifications"`
	Server        *ServerConfig        `yaml:"server"`
	Reports       *ReportsConfig       `yaml:"reports"`
	Logging       *LoggingConfig       `yaml:"logging"`
}

// httpYAML splits the http section into optional blocks. A present block
// replaces its default wholesale; zero fields inside a user-supplied block
// mean zero, not "use default".
type httpYAML struct {
	BaseURL        string             `yaml:"baseURL"`
	TimeoutMs      int64              `yaml:"timeoutMs"`
	DefaultHeaders map[string]string  `yaml:"defaultHeaders"`
	Auth           *AuthConfig        `yaml:"auth"`
	Retry          *RetryConfig       `yaml:"retry"`
	Validation     *ValidationConfig  `yaml:"validation"`
	Performance    *PerformanceConfig `yaml:"performance"`
	Logging        *HTTPLoggingConfig `yaml:"logging"`
}

// Initialize loads, defaults, and validates the configuration.
//
// path may name a file, a directory containing agentic.yaml, or be empty.
// An empty path uses ./agentic.yaml when present and pure built-in defaults
// otherwise; an explicit path that does not exist is an error.
//
// Steps performed:
//  1. Resolve the configuration file path
//  2. Expand {{.VAR}} environment references in the raw YAML
//  3. Parse and merge onto built-in defaults
//  4. Apply AGENTIC_* environment overrides
//  5. Validate everything
func Initialize(ctx context.Context, path string) (*Config, error) {
	resolved, required, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	log := slog.With("config_path", resolved)

	file, loaded, err := loadFile(resolved, required)
	if err != nil {
		return nil, err
	}

	cfg, err := assemble(file)
	if err != nil {
		return nil, err
	}
	if loaded {
		cfg.path = resolved
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized",
		"loaded_from_file", loaded,
		"max_parallel", cfg.Execution.MaxParallel,
		"default_timeout_ms", cfg.Execution.DefaultTimeoutMs,
		"reporter_enabled", cfg.Reporter.Enabled,
		"notifications_enabled", cfg.Notifications.Enabled)

	return cfg, nil
}

// resolvePath maps the user-supplied path to a concrete file path and
// reports whether that file must exist.
func resolvePath(path string) (string, bool, error) {
	if path == "" {
		return DefaultFileName, false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return "", false, err
	}
	if info.IsDir() {
		return filepath.Join(path, DefaultFileName), true, nil
	}
	return path, true, nil
}

// loadFile reads and parses the YAML file. A missing optional file yields an
// empty fileConfig so defaults apply.
func loadFile(path string, required bool) (*fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return &fileConfig{}, false, nil
		}
		if os.IsNotExist(err) {
			return nil, false, NewLoadError(path, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		return nil, false, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, false, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &file, true, nil
}

// ExpandEnv substitutes {{.VAR}} references with environment values.
// Template syntax keeps literal $ characters (regex patterns, passwords)
// intact. Missing variables expand to empty strings; malformed templates
// pass the original bytes through so the YAML parser reports the content.
// Scenario documents share this expansion.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}

// assemble merges the parsed file onto built-in defaults section by section.
func assemble(file *fileConfig) (*Config, error) {
	execution, err := mergeSection(DefaultExecutionConfig(), file.Execution)
	if err != nil {
		return nil, err
	}
	terminal, err := mergeSection(DefaultTerminalConfig(), file.Terminal)
	if err != nil {
		return nil, err
	}
	ui, err := mergeSection(DefaultUIConfig(), file.UI)
	if err != nil {
		return nil, err
	}
	triage, err := mergeSection(DefaultTriageConfig(), file.Triage)
	if err != nil {
		return nil, err
	}
	reporter, err := mergeSection(DefaultReporterConfig(), file.Reporter)
	if err != nil {
		return nil, err
	}
	comprehension, err := mergeSection(DefaultComprehensionConfig(), file.Comprehension)
	if err != nil {
		return nil, err
	}
	notifications, err := mergeSection(DefaultNotificationsConfig(), file.Notifications)
	if err != nil {
		return nil, err
	}
	server, err := mergeSection(DefaultServerConfig(), file.Server)
	if err != nil {
		return nil, err
	}
	reports, err := mergeSection(DefaultReportsConfig(), file.Reports)
	if err != nil {
		return nil, err
	}
	logging, err := mergeSection(DefaultLoggingConfig(), file.Logging)
	if err != nil {
		return nil, err
	}

	return &Config{
		Execution:     execution,
		HTTP:          resolveHTTPConfig(file.HTTP),
		Terminal:      terminal,
		UI:            ui,
		Triage:        triage,
		Reporter:      reporter,
		Comprehension: comprehension,
		Notifications: notifications,
		Server:        server,
		Reports:       reports,
		Logging:       logging,
	}, nil
}

// mergeSection overlays the user section onto the defaults. Non-zero user
// values win; unset values keep their defaults.
func mergeSection[T any](defaults *T, user *T) (*T, error) {
	if user == nil {
		return defaults, nil
	}
	if err := mergo.Merge(defaults, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration section: %w", err)
	}
	return defaults, nil
}

// resolveHTTPConfig applies block-level defaulting for the http section.
func resolveHTTPConfig(h *httpYAML) *HTTPConfig {
	cfg := DefaultHTTPConfig()
	if h == nil {
		return cfg
	}

	if h.BaseURL != "" {
		cfg.BaseURL = h.BaseURL
	}
	if h.TimeoutMs > 0 {
		cfg.TimeoutMs = h.TimeoutMs
	}
	if len(h.DefaultHeaders) > 0 {
		cfg.DefaultHeaders = h.DefaultHeaders
	}
	if h.Auth != nil {
		cfg.Auth = *h.Auth
	}
	if h.Retry != nil {
		cfg.Retry = *h.Retry
		if cfg.Retry.ExponentialBackoff && cfg.Retry.MaxBackoffDelayMs <= 0 {
			cfg.Retry.MaxBackoffDelayMs = DefaultHTTPConfig().Retry.MaxBackoffDelayMs
		}
	}
	if h.Validation != nil {
		cfg.Validation = *h.Validation
	}
	if h.Performance != nil {
		cfg.Performance = *h.Performance
	}
	if h.Logging != nil {
		cfg.Logging = *h.Logging
		if len(cfg.Logging.SensitiveHeaders) == 0 {
			cfg.Logging.SensitiveHeaders = DefaultSensitiveHeaders()
		}
	}
	return cfg
}

// applyEnvOverrides applies AGENTIC_* environment variables on top of the
// assembled configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvMaxParallel); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Execution.MaxParallel = n
		} else {
			slog.Warn("Ignoring invalid environment override",
				"var", EnvMaxParallel, "value", v)
		}
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Execution.DefaultTimeoutMs = ms
		} else {
			slog.Warn("Ignoring invalid environment override",
				"var", EnvTimeout, "value", v)
		}
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UI.Headless = &b
		} else {
			slog.Warn("Ignoring invalid environment override",
				"var", EnvHeadless, "value", v)
		}
	}
}

// validate runs the full validation pass on an assembled configuration.
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
