// Package priority implements the PRIORITY agent variant: steps score
// failures, surface flaky scenarios, and recommend fix order through
// pkg/triage.
package priority

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/triage"
)

// Driver dispatches priority steps to a triage.Analyzer. Assignments
// produced during the scenario accumulate and back the fix_order action.
type Driver struct {
	cfg      config.TriageConfig
	analyzer *triage.Analyzer
	log      *slog.Logger

	lastResult  string
	assignments []models.PriorityAssignment
}

// New returns a factory constructor for priority agents bound to the
// given triage configuration.
func New(cfg *config.TriageConfig, opts ...agent.Option) agent.Constructor {
	return func(spec models.AgentSpec) (agent.Agent, error) {
		d, err := NewDriver(cfg, spec.Config)
		if err != nil {
			return nil, err
		}
		return agent.NewBaseAgent(d, opts...), nil
	}
}

// NewDriver creates an unopened driver. Spec config entries override the
// base configuration: historyPath, flakyThreshold, minSamples.
func NewDriver(cfg *config.TriageConfig, overrides map[string]string) (*Driver, error) {
	if cfg == nil {
		cfg = config.DefaultTriageConfig()
	}
	d := &Driver{
		cfg: cloneConfig(cfg),
		log: slog.With("component", "priority_agent"),
	}
	for key, value := range overrides {
		switch key {
		case "historyPath":
			d.cfg.HistoryPath = value
		case "flakyThreshold":
			th, err := strconv.ParseFloat(value, 64)
			if err != nil || th < 0 || th > 1 {
				return nil, fmt.Errorf("%w: invalid flakyThreshold %q", agent.ErrConfig, value)
			}
			d.cfg.FlakyThreshold = th
		case "minSamples":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("%w: invalid minSamples %q", agent.ErrConfig, value)
			}
			d.cfg.MinSamplesForTrends = n
		}
	}
	return d, nil
}

// Type returns the agent variant.
func (d *Driver) Type() models.AgentType {
	return models.AgentTypePriority
}

// Open loads the history store and builds the analyzer. A corrupted
// history file is logged and replaced by an empty one.
func (d *Driver) Open(ctx context.Context) error {
	store := triage.NewHistoryStore(d.cfg.HistoryPath)
	if err := store.Load(); err != nil {
		d.log.Warn("Starting with empty priority history", "error", err)
	}
	analyzer, err := triage.NewAnalyzer(&d.cfg, store)
	if err != nil {
		return fmt.Errorf("%w: %v", agent.ErrConfig, err)
	}
	d.analyzer = analyzer
	return nil
}

// Apply is a no-op: the analyzer has no per-scenario environment.
func (d *Driver) Apply(env map[string]string) {
	if len(env) > 0 {
		d.log.Debug("Priority agent ignores scenario environment", "keys", len(env))
	}
}

// Dispatch executes one priority step.
func (d *Driver) Dispatch(ctx context.Context, step models.Step) (string, error) {
	if d.analyzer == nil {
		return "", agent.ErrNotInitialized
	}
	switch strings.ToLower(strings.TrimSpace(step.Action)) {
	case "analyze":
		return d.analyze(step)
	case "rank":
		return d.rank(step)
	case "detect_flaky":
		return d.detectFlaky(step)
	case "fix_order":
		return d.fixOrder(step)
	case "record_result":
		return "", d.recordResult(step)
	case "wait":
		return "", waitStep(ctx, step.Value)
	default:
		return "", agent.NewActionError(step.Action)
	}
}

// analyze scores the failure carried in the step value. The value is a
// bare TestFailure or an envelope {"failure": {...}, "scenario": {...}}.
func (d *Driver) analyze(step models.Step) (string, error) {
	failure, scenario, err := parseFailure(step.Value)
	if err != nil {
		return "", err
	}
	assignment := d.analyzer.Analyze(failure, scenario)
	d.assignments = append(d.assignments, assignment)
	return d.record(assignment)
}

// rank scores a batch and returns assignments ordered by impact,
// highest first.
func (d *Driver) rank(step models.Step) (string, error) {
	failures, scenarios, err := parseBatch(step.Value)
	if err != nil {
		return "", err
	}
	assignments := d.analyzer.AnalyzeBatch(failures, scenarios)
	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].ImpactScore > assignments[j].ImpactScore
	})
	d.assignments = append(d.assignments, assignments...)
	return d.record(assignments)
}

// detectFlaky reports flaky scenarios: all of them, or the one named by
// the step target.
func (d *Driver) detectFlaky(step models.Step) (string, error) {
	if step.Target != "" {
		result, ok := d.analyzer.Flakiness(step.Target)
		if !ok {
			return "", fmt.Errorf("insufficient run history for scenario %q", step.Target)
		}
		return d.record(result)
	}
	results := d.analyzer.DetectFlaky()
	if results == nil {
		results = []models.FlakyResult{}
	}
	return d.record(results)
}

// fixOrder orders assignments by priority tier then ascending fix effort.
// The step value may carry an explicit assignment array; otherwise the
// assignments accumulated in this scenario are used.
func (d *Driver) fixOrder(step models.Step) (string, error) {
	assignments := d.assignments
	if strings.TrimSpace(step.Value) != "" {
		parsed := []models.PriorityAssignment{}
		if err := json.Unmarshal([]byte(step.Value), &parsed); err != nil {
			return "", fmt.Errorf("%w: undecodable assignment list: %v", agent.ErrAction, err)
		}
		assignments = parsed
	}
	if len(assignments) == 0 {
		return "", fmt.Errorf("%w: no assignments to order", agent.ErrNoResponse)
	}
	return d.record(triage.SuggestFixOrder(assignments))
}

// recordResult feeds one run outcome into the history. The value is a
// RunRecord JSON object, or the target/value pair names scenario and
// status directly.
func (d *Driver) recordResult(step models.Step) error {
	var record models.RunRecord
	trimmed := strings.TrimSpace(step.Value)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
			return fmt.Errorf("%w: undecodable run record: %v", agent.ErrAction, err)
		}
	case step.Target != "" && trimmed != "":
		record = models.RunRecord{ScenarioID: step.Target, Status: models.Status(trimmed)}
	default:
		return fmt.Errorf("%w: record_result requires a run record", agent.ErrAction)
	}
	record.Status = models.Status(strings.ToLower(string(record.Status)))
	if record.ScenarioID == "" {
		return fmt.Errorf("%w: run record requires a scenarioId", agent.ErrAction)
	}
	switch record.Status {
	case models.StatusPassed, models.StatusFailed, models.StatusError, models.StatusSkipped:
	default:
		return fmt.Errorf("%w: invalid run status %q", agent.ErrAction, record.Status)
	}
	d.analyzer.RecordResult(record)
	return nil
}

// Check evaluates one verification against the last step's JSON output.
func (d *Driver) Check(ctx context.Context, v models.Verification) agent.VerificationResult {
	if d.lastResult == "" {
		return agent.CheckResult(v, "", false, agent.ErrNoResponse)
	}
	actual := d.lastResult
	if v.Target != "" {
		actual = gjson.Get(d.lastResult, v.Target).String()
	}
	passed, err := agent.EvaluateOperator(v.Operator, actual, v.Expected)
	return agent.CheckResult(v, actual, passed, err)
}

// Close clears per-scenario state.
func (d *Driver) Close(ctx context.Context) error {
	d.lastResult = ""
	d.assignments = nil
	return nil
}

func (d *Driver) record(out any) (string, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode step result: %w", err)
	}
	d.lastResult = string(data)
	return d.lastResult, nil
}

func parseFailure(value string) (models.TestFailure, *models.Scenario, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return models.TestFailure{}, nil, fmt.Errorf("%w: a failure payload is required", agent.ErrAction)
	}
	var envelope struct {
		Failure  *models.TestFailure `json:"failure"`
		Scenario *models.Scenario    `json:"scenario"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil && envelope.Failure != nil {
		if envelope.Failure.ScenarioID == "" || envelope.Failure.Message == "" {
			return models.TestFailure{}, nil, fmt.Errorf("%w: failure requires scenarioId and message", agent.ErrAction)
		}
		return *envelope.Failure, envelope.Scenario, nil
	}
	var failure models.TestFailure
	if err := json.Unmarshal([]byte(trimmed), &failure); err != nil {
		return models.TestFailure{}, nil, fmt.Errorf("%w: undecodable failure payload: %v", agent.ErrAction, err)
	}
	if failure.ScenarioID == "" || failure.Message == "" {
		return models.TestFailure{}, nil, fmt.Errorf("%w: failure requires scenarioId and message", agent.ErrAction)
	}
	return failure, nil, nil
}

func parseBatch(value string) ([]models.TestFailure, map[string]*models.Scenario, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("%w: a failure batch is required", agent.ErrAction)
	}
	var failures []models.TestFailure
	scenarios := map[string]*models.Scenario{}

	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &failures); err != nil {
			return nil, nil, fmt.Errorf("%w: undecodable failure batch: %v", agent.ErrAction, err)
		}
	} else {
		var envelope struct {
			Failures  []models.TestFailure `json:"failures"`
			Scenarios []*models.Scenario   `json:"scenarios"`
		}
		if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
			return nil, nil, fmt.Errorf("%w: undecodable failure batch: %v", agent.ErrAction, err)
		}
		failures = envelope.Failures
		for _, s := range envelope.Scenarios {
			if s != nil && s.ID != "" {
				scenarios[s.ID] = s
			}
		}
	}
	if len(failures) == 0 {
		return nil, nil, fmt.Errorf("%w: rank requires at least one failure", agent.ErrAction)
	}
	for _, f := range failures {
		if f.ScenarioID == "" || f.Message == "" {
			return nil, nil, fmt.Errorf("%w: every failure requires scenarioId and message", agent.ErrAction)
		}
	}
	return failures, scenarios, nil
}

func cloneConfig(cfg *config.TriageConfig) config.TriageConfig {
	out := *cfg
	if cfg.Weights != nil {
		out.Weights = make(map[string]float64, len(cfg.Weights))
		for k, v := range cfg.Weights {
			out.Weights[k] = v
		}
	}
	out.CustomRules = append([]config.CustomRule(nil), cfg.CustomRules...)
	return out
}

// waitStep sleeps for the given millisecond value, honouring cancellation.
func waitStep(ctx context.Context, value string) error {
	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ms < 0 {
		return fmt.Errorf("%w: wait expects milliseconds, got %q", agent.ErrAction, value)
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
