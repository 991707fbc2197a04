// Package e2e exercises the assembled pipeline: scenario batches running
// through the real agent factory against scripted HTTP, issue-tracker, and
// LLM endpoints.
package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/agent/registry"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/orchestrator"
	"github.com/agentic-hq/agentic/pkg/report"
	"github.com/agentic-hq/agentic/pkg/triage"
)

// trackerTokenEnv holds the mock tracker token for the test process.
const trackerTokenEnv = "E2E_TRACKER_TOKEN"

// TestApp boots a complete orchestrator instance wired to mock backends.
type TestApp struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Analyzer     *triage.Analyzer

	// Mock backends, always running.
	App     *AppServer
	Tracker *TrackerServer
	LLM     *LLMServer

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	maxParallel int
	retry       *config.RetryConfig
	reporting   bool
	tracker     *TrackerServer
	mutate      func(*config.Config)
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithMaxParallel sets the number of scenario workers.
func WithMaxParallel(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxParallel = n }
}

// WithHTTPRetry configures the HTTP subsystem's retry policy.
func WithHTTPRetry(maxRetries int, delayMs int64, statuses ...int) TestAppOption {
	return func(c *testAppConfig) {
		c.retry = &config.RetryConfig{
			MaxRetries:    maxRetries,
			RetryDelayMs:  delayMs,
			RetryOnStatus: statuses,
		}
	}
}

// WithReporting enables issue submission against the mock tracker. Every
// failure is forwarded regardless of computed priority.
func WithReporting() TestAppOption {
	return func(c *testAppConfig) { c.reporting = true }
}

// WithTracker shares an existing tracker server, for deduplication tests
// spanning more than one app instance.
func WithTracker(tr *TrackerServer) TestAppOption {
	return func(c *testAppConfig) {
		c.tracker = tr
		c.reporting = true
	}
}

// WithConfigMutator applies arbitrary configuration edits after the
// defaults and mock endpoints are in place.
func WithConfigMutator(fn func(*config.Config)) TestAppOption {
	return func(c *testAppConfig) { c.mutate = fn }
}

// NewTestApp creates a fully wired orchestrator for one test. Shutdown is
// registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{maxParallel: 2}
	for _, opt := range opts {
		opt(tc)
	}

	app := newAppServer(t)
	tracker := tc.tracker
	if tracker == nil {
		tracker = newTrackerServer(t)
	}
	llm := newLLMServer(t)

	cfg, err := config.Initialize(context.Background(), "")
	require.NoError(t, err)

	cfg.Execution.MaxParallel = tc.maxParallel
	cfg.Execution.DefaultTimeoutMs = 30_000
	cfg.HTTP.BaseURL = app.URL()
	cfg.HTTP.TimeoutMs = 5_000
	if tc.retry != nil {
		cfg.HTTP.Retry = *tc.retry
	} else {
		cfg.HTTP.Retry = config.RetryConfig{}
	}
	cfg.Comprehension.BaseURL = llm.URL()
	cfg.Comprehension.Model = "test-model"
	cfg.Reports.Dir = t.TempDir()
	cfg.Triage.HistoryPath = t.TempDir() + "/history.json"

	if tc.reporting {
		t.Setenv(trackerTokenEnv, "e2e-token")
		cfg.Reporter.Enabled = true
		cfg.Reporter.BaseURL = tracker.URL()
		cfg.Reporter.Repository = trackerRepository
		cfg.Reporter.TokenEnv = trackerTokenEnv
		cfg.Reporter.Labels = []string{"automated-test-failure"}
		// Forward every failure; threshold behaviour is covered elsewhere.
		cfg.Triage.ReportThreshold = models.PriorityLow
	}

	if tc.mutate != nil {
		tc.mutate(cfg)
	}

	factory, terminals := registry.NewFactory(cfg)
	t.Cleanup(terminals.TerminateAll)

	analyzer, err := triage.NewAnalyzer(cfg.Triage, nil)
	require.NoError(t, err)

	orchOpts := []orchestrator.Option{orchestrator.WithAnalyzer(analyzer)}
	if tc.reporting {
		rep := report.NewReporter(cfg.Reporter)
		require.NotNil(t, rep, "reporter must be enabled")
		orchOpts = append(orchOpts, orchestrator.WithReporter(rep))
	}

	return &TestApp{
		Config:       cfg,
		Orchestrator: orchestrator.New(cfg, factory, orchOpts...),
		Analyzer:     analyzer,
		App:          app,
		Tracker:      tracker,
		LLM:          llm,
		t:            t,
	}
}

// Run executes one batch and fails the test on batch-level errors.
func (a *TestApp) Run(scenarios ...*models.Scenario) *models.TestSession {
	a.t.Helper()
	session, err := a.Orchestrator.RunBatch(context.Background(), scenarios)
	require.NoError(a.t, err)
	return session
}

// result returns the TestResult for one scenario id.
func (a *TestApp) result(session *models.TestSession, scenarioID string) *models.TestResult {
	a.t.Helper()
	for _, r := range session.Results {
		if r.ScenarioID == scenarioID {
			return r
		}
	}
	a.t.Fatalf("no result for scenario %q", scenarioID)
	return nil
}

// apiScenario builds a single-step GET scenario against the mock app
// server, verified by response status.
func apiScenario(id, path, expectStatus string) *models.Scenario {
	return &models.Scenario{
		ID:   id,
		Name: id,
		Agents: map[string]models.AgentSpec{
			"main": {Type: models.AgentTypeAPI},
		},
		Steps: []models.Step{
			{Action: "get", Target: path},
		},
		Verifications: []models.Verification{
			{Type: "status", Expected: expectStatus},
		},
	}
}
