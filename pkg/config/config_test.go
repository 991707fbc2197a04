package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitializeDefaults(t *testing.T) {
	// Empty path and no agentic.yaml in cwd: pure built-in defaults.
	cfg, err := Initialize(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Execution.MaxParallel)
	assert.Equal(t, int64(60_000), cfg.Execution.DefaultTimeoutMs)
	assert.True(t, cfg.ContinueOnFailure())
	assert.Equal(t, 2, cfg.HTTP.Retry.MaxRetries)
	assert.True(t, cfg.HTTP.Validation.IsEnabled())
	assert.True(t, cfg.HTTP.Logging.Masked())
	assert.Equal(t, 0.3, cfg.Triage.FlakyThreshold)
	assert.Equal(t, 5, cfg.Triage.MinSamplesForTrends)
	assert.Equal(t, models.PriorityHigh, cfg.Triage.ReportThreshold)
	assert.False(t, cfg.Reporter.Enabled)
	assert.Equal(t, "GITHUB_TOKEN", cfg.Reporter.TokenEnv)
	assert.Equal(t, "", cfg.Path())
}

func TestInitializeFromFile(t *testing.T) {
	path := writeConfig(t, `
execution:
  maxParallel: 8
  defaultTimeoutMs: 120000
  continueOnFailure: false
http:
  baseURL: https://api.example.com
  retry:
    maxRetries: 1
    retryDelayMs: 10
    retryOnStatus: [503]
triage:
  flakyThreshold: 0.5
reporter:
  enabled: true
  repository: acme/webapp
  labels: [automated-test]
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Execution.MaxParallel)
	assert.Equal(t, int64(120_000), cfg.Execution.DefaultTimeoutMs)
	assert.False(t, cfg.ContinueOnFailure())
	assert.Equal(t, "https://api.example.com", cfg.HTTP.BaseURL)

	// A user-supplied retry block replaces the default wholesale.
	assert.Equal(t, 1, cfg.HTTP.Retry.MaxRetries)
	assert.Equal(t, []int{503}, cfg.HTTP.Retry.RetryOnStatus)
	assert.False(t, cfg.HTTP.Retry.ExponentialBackoff)

	// Untouched sections keep defaults.
	assert.Equal(t, int64(30_000), cfg.HTTP.TimeoutMs)
	assert.Equal(t, 0.5, cfg.Triage.FlakyThreshold)
	assert.Equal(t, 5, cfg.Triage.MinSamplesForTrends)

	assert.True(t, cfg.Reporter.Enabled)
	assert.Equal(t, "acme/webapp", cfg.Reporter.Repository)
	assert.True(t, cfg.Reporter.DeduplicationEnabled())
	assert.Equal(t, path, cfg.Path())
}

func TestInitializeDirectoryPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName),
		[]byte("execution:\n  maxParallel: 2\n"), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Execution.MaxParallel)
}

func TestInitializeMissingExplicitFile(t *testing.T) {
	_, err := Initialize(context.Background(), "/nonexistent/agentic.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeInvalidYAML(t *testing.T) {
	path := writeConfig(t, "execution: [not a map")
	_, err := Initialize(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("TEST_API_BASE", "https://staging.example.com")
	path := writeConfig(t, "http:\n  baseURL: \"{{.TEST_API_BASE}}\"\n")

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", cfg.HTTP.BaseURL)
}

func TestEnvExpansionMissingVariable(t *testing.T) {
	path := writeConfig(t, "http:\n  baseURL: \"{{.AGENTIC_TEST_UNSET_VAR}}\"\n")

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.HTTP.BaseURL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvMaxParallel, "16")
	t.Setenv(EnvTimeout, "90000")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvHeadless, "false")

	cfg, err := Initialize(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Execution.MaxParallel)
	assert.Equal(t, int64(90_000), cfg.Execution.DefaultTimeoutMs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.UI.IsHeadless())
}

func TestEnvOverridesInvalidValuesIgnored(t *testing.T) {
	t.Setenv(EnvMaxParallel, "not-a-number")
	t.Setenv(EnvTimeout, "-5")

	cfg, err := Initialize(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Execution.MaxParallel)
	assert.Equal(t, int64(60_000), cfg.Execution.DefaultTimeoutMs)
}

func TestValidateTriageWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]float64
		wantErr bool
	}{
		{"default weights", DefaultWeights(), false},
		{"within tolerance", map[string]float64{"a": 0.5, "b": 0.505}, false},
		{"sum too high", map[string]float64{"a": 0.6, "b": 0.6}, true},
		{"sum too low", map[string]float64{"a": 0.2, "b": 0.2}, true},
		{"negative weight", map[string]float64{"a": 1.2, "b": -0.2}, true},
		{"empty map skips the check", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustDefaults(t)
			cfg.Triage.Weights = tt.weights
			err := NewValidator(cfg).ValidateAll()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidValue)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFlakyThresholdBounds(t *testing.T) {
	cfg := mustDefaults(t)
	cfg.Triage.FlakyThreshold = 1.5
	assert.ErrorIs(t, NewValidator(cfg).ValidateAll(), ErrInvalidValue)

	cfg.Triage.FlakyThreshold = -0.1
	assert.ErrorIs(t, NewValidator(cfg).ValidateAll(), ErrInvalidValue)
}

func TestValidateReporterRepository(t *testing.T) {
	cfg := mustDefaults(t)
	cfg.Reporter.Enabled = true

	cfg.Reporter.Repository = ""
	assert.ErrorIs(t, NewValidator(cfg).ValidateAll(), ErrMissingRequiredField)

	cfg.Reporter.Repository = "missing-slash"
	assert.ErrorIs(t, NewValidator(cfg).ValidateAll(), ErrInvalidValue)

	cfg.Reporter.Repository = "acme/webapp"
	assert.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAuthType(t *testing.T) {
	cfg := mustDefaults(t)
	cfg.HTTP.Auth.Type = AuthType("oauth3")
	assert.ErrorIs(t, NewValidator(cfg).ValidateAll(), ErrInvalidValue)
}

func mustDefaults(t *testing.T) *Config {
	t.Helper()
	cfg, err := assemble(&fileConfig{})
	require.NoError(t, err)
	return cfg
}
