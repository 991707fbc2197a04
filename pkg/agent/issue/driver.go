// Package issue implements the ISSUE agent variant: steps submit test
// failures to the configured tracker through pkg/report.
package issue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/report"
)

// Driver dispatches issue steps to a report.Reporter. Step values carry
// failures as JSON; outputs are JSON summaries verifications can address
// by path.
type Driver struct {
	cfg      config.ReporterConfig
	reporter *report.Reporter
	log      *slog.Logger

	lastResult string
}

// New returns a factory constructor for issue agents bound to the given
// reporter configuration.
func New(cfg *config.ReporterConfig, opts ...agent.Option) agent.Constructor {
	return func(spec models.AgentSpec) (agent.Agent, error) {
		d, err := NewDriver(cfg, spec.Config)
		if err != nil {
			return nil, err
		}
		return agent.NewBaseAgent(d, opts...), nil
	}
}

// NewDriver creates an unopened driver. Spec config entries override the
// base configuration: repository, baseURL, tokenEnv, labels (comma list).
func NewDriver(cfg *config.ReporterConfig, overrides map[string]string) (*Driver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: reporter configuration is nil", agent.ErrConfig)
	}
	d := &Driver{
		cfg: cloneConfig(cfg),
		log: slog.With("component", "issue_agent"),
	}
	for key, value := range overrides {
		switch key {
		case "repository":
			d.cfg.Repository = value
		case "baseURL":
			d.cfg.BaseURL = value
		case "tokenEnv":
			d.cfg.TokenEnv = value
		case "labels":
			d.cfg.Labels = splitList(value)
		}
	}
	return d, nil
}

// Type returns the agent variant.
func (d *Driver) Type() models.AgentType {
	return models.AgentTypeIssue
}

// Open builds the reporter. A disabled or unconfigured reporter is a
// configuration error: a scenario naming the issue agent expects its steps
// to reach the tracker.
func (d *Driver) Open(ctx context.Context) error {
	r := report.NewReporter(&d.cfg)
	if !r.Enabled() {
		return fmt.Errorf("%w: issue reporting is disabled or unconfigured", agent.ErrConfig)
	}
	d.reporter = r
	return nil
}

// Apply maps scenario environment entries onto the driver:
// ISSUE_REPOSITORY, ISSUE_LABELS (comma list).
func (d *Driver) Apply(env map[string]string) {
	if v, ok := env["ISSUE_REPOSITORY"]; ok && v != "" {
		d.cfg.Repository = v
	}
	if v, ok := env["ISSUE_LABELS"]; ok && v != "" {
		d.cfg.Labels = splitList(v)
	}
}

// Dispatch executes one issue step.
func (d *Driver) Dispatch(ctx context.Context, step models.Step) (string, error) {
	if d.reporter == nil {
		return "", agent.ErrNotInitialized
	}
	switch strings.ToLower(strings.TrimSpace(step.Action)) {
	case "report":
		return d.report(ctx, step)
	case "comment":
		return "", d.comment(ctx, step)
	case "find_duplicate":
		return d.findDuplicate(ctx, step)
	case "attach_screenshot":
		return d.attachScreenshot(ctx, step)
	case "wait":
		return "", waitStep(ctx, step.Value)
	default:
		return "", agent.NewActionError(step.Action)
	}
}

// report submits the failure carried in the step value and returns a JSON
// summary of the submission.
func (d *Driver) report(ctx context.Context, step models.Step) (string, error) {
	failure, assignment, err := parseFailure(step.Value)
	if err != nil {
		return "", err
	}
	sub, err := d.reporter.Report(ctx, failure, assignment)
	if err != nil {
		return "", err
	}
	out := map[string]any{
		"duplicate":   sub.Duplicate,
		"fingerprint": sub.Fingerprint.Hash,
	}
	if sub.Issue != nil {
		out["number"] = sub.Issue.Number
		if sub.Issue.URL != "" {
			out["url"] = sub.Issue.URL
		}
	}
	return d.record(out)
}

func (d *Driver) comment(ctx context.Context, step models.Step) error {
	number, err := issueNumber(step.Target)
	if err != nil {
		return err
	}
	if step.Value == "" {
		return fmt.Errorf("%w: comment requires a body", agent.ErrAction)
	}
	return d.reporter.Comment(ctx, number, step.Value)
}

func (d *Driver) findDuplicate(ctx context.Context, step models.Step) (string, error) {
	failure, _, err := parseFailure(step.Value)
	if err != nil {
		return "", err
	}
	out := map[string]any{"found": false}
	if issue, found := d.reporter.FindDuplicate(ctx, failure); found {
		out["found"] = true
		out["number"] = issue.Number
	}
	return d.record(out)
}

// attachScreenshot posts a local-path reference; the step output is the
// path, never a remote URL.
func (d *Driver) attachScreenshot(ctx context.Context, step models.Step) (string, error) {
	number, err := issueNumber(step.Target)
	if err != nil {
		return "", err
	}
	if step.Value == "" {
		return "", fmt.Errorf("%w: attach_screenshot requires a local path", agent.ErrAction)
	}
	path, err := d.reporter.AttachScreenshot(ctx, number, step.Value)
	if err != nil {
		return "", err
	}
	d.lastResult = path
	return path, nil
}

// Check evaluates one verification against the last step's JSON summary.
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
	return nil
}

func (d *Driver) record(out map[string]any) (string, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode step result: %w", err)
	}
	d.lastResult = string(data)
	return d.lastResult, nil
}

// parseFailure decodes a step value into a failure plus optional priority
// assignment. The value is either a bare TestFailure object or an envelope
// {"failure": {...}, "assignment": {...}}.
func parseFailure(value string) (models.TestFailure, *models.PriorityAssignment, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return models.TestFailure{}, nil, fmt.Errorf("%w: a failure payload is required", agent.ErrAction)
	}
	var envelope struct {
		Failure    *models.TestFailure        `json:"failure"`
		Assignment *models.PriorityAssignment `json:"assignment"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil && envelope.Failure != nil {
		if err := checkFailure(*envelope.Failure); err != nil {
			return models.TestFailure{}, nil, err
		}
		return *envelope.Failure, envelope.Assignment, nil
	}
	var failure models.TestFailure
	if err := json.Unmarshal([]byte(trimmed), &failure); err != nil {
		return models.TestFailure{}, nil, fmt.Errorf("%w: undecodable failure payload: %v", agent.ErrAction, err)
	}
	if err := checkFailure(failure); err != nil {
		return models.TestFailure{}, nil, err
	}
	return failure, nil, nil
}

func checkFailure(failure models.TestFailure) error {
	if failure.ScenarioID == "" || failure.Message == "" {
		return fmt.Errorf("%w: failure requires scenarioId and message", agent.ErrAction)
	}
	return nil
}

func issueNumber(target string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(target))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid issue number %q", agent.ErrAction, target)
	}
	return n, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cloneConfig(cfg *config.ReporterConfig) config.ReporterConfig {
	out := *cfg
	out.Labels = append([]string(nil), cfg.Labels...)
	out.Assignees = append([]string(nil), cfg.Assignees...)
	if cfg.Deduplication != nil {
		v := *cfg.Deduplication
		out.Deduplication = &v
	}
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
