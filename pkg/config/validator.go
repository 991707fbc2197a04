package config

import (
	"fmt"
	"math"
	"strings"
)

// WeightSumTolerance is the allowed deviation of the impact weight sum
// from 1.0.
const WeightSumTolerance = 0.01

// Validator performs the full validation pass over an assembled Config.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every section and returns the first error found.
func (v *Validator) ValidateAll() error {
	if err := v.validateExecution(); err != nil {
		return err
	}
	if err := v.validateHTTP(); err != nil {
		return err
	}
	if err := v.validateTriage(); err != nil {
		return err
	}
	if err := v.validateReporter(); err != nil {
		return err
	}
	if err := v.validateComprehension(); err != nil {
		return err
	}
	if err := v.validateServer(); err != nil {
		return err
	}
	return v.validateLogging()
}

func (v *Validator) validateExecution() error {
	e := v.cfg.Execution
	if e.MaxParallel < 1 {
		return NewValidationError("execution", "maxParallel",
			fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, e.MaxParallel))
	}
	if e.DefaultTimeoutMs <= 0 {
		return NewValidationError("execution", "defaultTimeoutMs",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, e.DefaultTimeoutMs))
	}
	if e.MaxRetries < 0 {
		return NewValidationError("execution", "maxRetries",
			fmt.Errorf("%w: must not be negative, got %d", ErrInvalidValue, e.MaxRetries))
	}
	if e.StepTimeoutMs <= 0 {
		return NewValidationError("execution", "stepTimeoutMs",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, e.StepTimeoutMs))
	}
	return nil
}

func (v *Validator) validateHTTP() error {
	h := v.cfg.HTTP
	if !h.Auth.Type.IsValid() {
		return NewValidationError("http", "auth.type",
			fmt.Errorf("%w: unknown auth type %q", ErrInvalidValue, h.Auth.Type))
	}
	if h.TimeoutMs <= 0 {
		return NewValidationError("http", "timeoutMs",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, h.TimeoutMs))
	}
	r := h.Retry
	if r.MaxRetries < 0 {
		return NewValidationError("http", "retry.maxRetries",
			fmt.Errorf("%w: must not be negative, got %d", ErrInvalidValue, r.MaxRetries))
	}
	if r.RetryDelayMs < 0 {
		return NewValidationError("http", "retry.retryDelayMs",
			fmt.Errorf("%w: must not be negative, got %d", ErrInvalidValue, r.RetryDelayMs))
	}
	for _, status := range r.RetryOnStatus {
		if status < 100 || status > 599 {
			return NewValidationError("http", "retry.retryOnStatus",
				fmt.Errorf("%w: %d is not an HTTP status code", ErrInvalidValue, status))
		}
	}
	return nil
}

// validateTriage checks the invariants of the priority analyzer: the impact
// weights must sum to 1.0 within tolerance and the flaky threshold must lie
// in [0,1].
func (v *Validator) validateTriage() error {
	t := v.cfg.Triage
	if t.FlakyThreshold < 0 || t.FlakyThreshold > 1 {
		return NewValidationError("triage", "flakyThreshold",
			fmt.Errorf("%w: must be in [0,1], got %v", ErrInvalidValue, t.FlakyThreshold))
	}
	if t.MinSamplesForTrends < 1 {
		return NewValidationError("triage", "minSamplesForTrends",
			fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, t.MinSamplesForTrends))
	}
	if len(t.Weights) > 0 {
		var sum float64
		for _, w := range t.Weights {
			if w < 0 {
				return NewValidationError("triage", "weights",
					fmt.Errorf("%w: weights must not be negative", ErrInvalidValue))
			}
			sum += w
		}
		if math.Abs(sum-1.0) > WeightSumTolerance {
			return NewValidationError("triage", "weights",
				fmt.Errorf("%w: weights must sum to 1.0 (±%v), got %v",
					ErrInvalidValue, WeightSumTolerance, sum))
		}
	}
	switch t.ReportThreshold {
	case "", "critical", "high", "medium", "low":
	default:
		return NewValidationError("triage", "reportThreshold",
			fmt.Errorf("%w: unknown priority %q", ErrInvalidValue, t.ReportThreshold))
	}
	for _, rule := range t.CustomRules {
		if rule.Name == "" {
			return NewValidationError("triage", "customRules",
				fmt.Errorf("%w: rule name", ErrMissingRequiredField))
		}
		if len(rule.Keywords) == 0 {
			return NewValidationError("triage", "customRules",
				fmt.Errorf("%w: rule %q has no keywords", ErrMissingRequiredField, rule.Name))
		}
	}
	return nil
}

func (v *Validator) validateReporter() error {
	r := v.cfg.Reporter
	if !r.Enabled {
		return nil
	}
	if r.Repository == "" {
		return NewValidationError("reporter", "repository",
			fmt.Errorf("%w: repository is required when the reporter is enabled", ErrMissingRequiredField))
	}
	parts := strings.Split(r.Repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return NewValidationError("reporter", "repository",
			fmt.Errorf("%w: expected owner/repo, got %q", ErrInvalidValue, r.Repository))
	}
	if r.BaseURL == "" {
		return NewValidationError("reporter", "baseURL",
			fmt.Errorf("%w: baseURL", ErrMissingRequiredField))
	}
	if r.TokenEnv == "" {
		return NewValidationError("reporter", "tokenEnv",
			fmt.Errorf("%w: tokenEnv", ErrMissingRequiredField))
	}
	if r.DeduplicationLookbackDays < 0 {
		return NewValidationError("reporter", "deduplicationLookbackDays",
			fmt.Errorf("%w: must not be negative, got %d", ErrInvalidValue, r.DeduplicationLookbackDays))
	}
	if r.RateLimitBuffer < 0 {
		return NewValidationError("reporter", "rateLimitBuffer",
			fmt.Errorf("%w: must not be negative, got %d", ErrInvalidValue, r.RateLimitBuffer))
	}
	if r.MaxBodyLength <= 0 {
		return NewValidationError("reporter", "maxBodyLength",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, r.MaxBodyLength))
	}
	return nil
}

func (v *Validator) validateComprehension() error {
	c := v.cfg.Comprehension
	if c.Temperature < 0 || c.Temperature > 2 {
		return NewValidationError("comprehension", "temperature",
			fmt.Errorf("%w: must be in [0,2], got %v", ErrInvalidValue, c.Temperature))
	}
	if c.MaxTokens <= 0 {
		return NewValidationError("comprehension", "maxTokens",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, c.MaxTokens))
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "port",
			fmt.Errorf("%w: must be in [1,65535], got %d", ErrInvalidValue, s.Port))
	}
	return nil
}

func (v *Validator) validateLogging() error {
	l := v.cfg.Logging
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return NewValidationError("logging", "level",
			fmt.Errorf("%w: unknown level %q", ErrInvalidValue, l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return NewValidationError("logging", "format",
			fmt.Errorf("%w: unknown format %q", ErrInvalidValue, l.Format))
	}
	return nil
}
