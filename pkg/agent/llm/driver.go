package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
)

// defaultSystemPrompt steers the model toward the structured replies the
// verification layer expects. Scenarios override it with set_system or
// the LLM_SYSTEM_PROMPT environment entry.
const defaultSystemPrompt = "You are a test analysis assistant. " +
	"Answer with a single JSON object and no surrounding prose."

// Driver dispatches comprehension steps to a chat-completion client. The
// JSON object extracted from the most recent reply is the subject of
// validations and verifications.
type Driver struct {
	cfg    config.ComprehensionConfig
	client *Client
	log    *slog.Logger

	system   string
	lastText string
	lastJSON string
}

// New returns a factory constructor for comprehension agents bound to the
// given configuration.
func New(cfg *config.ComprehensionConfig, opts ...agent.Option) agent.Constructor {
	return func(spec models.AgentSpec) (agent.Agent, error) {
		d, err := NewDriver(cfg, spec.Config)
		if err != nil {
			return nil, err
		}
		return agent.NewBaseAgent(d, opts...), nil
	}
}

// NewDriver creates an unopened driver. Spec config entries override the
// base configuration: baseURL, model, tokenEnv, temperature, maxTokens,
// timeoutMs, systemPrompt.
func NewDriver(cfg *config.ComprehensionConfig, overrides map[string]string) (*Driver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: comprehension configuration is nil", agent.ErrConfig)
	}
	d := &Driver{
		cfg: *cfg,
		log: slog.With("component", "comprehension_agent"),
	}
	for key, value := range overrides {
		switch key {
		case "baseURL":
			d.cfg.BaseURL = value
		case "model":
			d.cfg.Model = value
		case "tokenEnv":
			d.cfg.TokenEnv = value
		case "temperature":
			t, err := strconv.ParseFloat(value, 64)
			if err != nil || t < 0 {
				return nil, fmt.Errorf("%w: invalid temperature %q", agent.ErrConfig, value)
			}
			d.cfg.Temperature = t
		case "maxTokens":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: invalid maxTokens %q", agent.ErrConfig, value)
			}
			d.cfg.MaxTokens = n
		case "timeoutMs":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ms <= 0 {
				return nil, fmt.Errorf("%w: invalid timeoutMs %q", agent.ErrConfig, value)
			}
			d.cfg.TimeoutMs = ms
		case "systemPrompt":
			d.system = value
		}
	}
	return d, nil
}

// Type returns the agent variant.
func (d *Driver) Type() models.AgentType {
	return models.AgentTypeComprehension
}

// Open builds the chat client.
func (d *Driver) Open(ctx context.Context) error {
	client, err := NewClient(&d.cfg)
	if err != nil {
		return err
	}
	d.client = client
	return nil
}

// Apply maps scenario environment entries onto the driver:
// LLM_SYSTEM_PROMPT, LLM_MODEL, LLM_TEMPERATURE, LLM_AUTH_TOKEN.
func (d *Driver) Apply(env map[string]string) {
	if v, ok := env["LLM_SYSTEM_PROMPT"]; ok {
		d.system = v
	}
	if v, ok := env["LLM_MODEL"]; ok && v != "" {
		d.cfg.Model = v
	}
	if v, ok := env["LLM_TEMPERATURE"]; ok {
		if t, err := strconv.ParseFloat(v, 64); err == nil && t >= 0 {
			d.cfg.Temperature = t
		} else {
			d.log.Warn("Ignoring invalid LLM_TEMPERATURE", "value", v)
		}
	}
	if v, ok := env["LLM_AUTH_TOKEN"]; ok && v != "" && d.client != nil {
		d.client.SetToken(v)
	}
}

// Dispatch executes one comprehension step.
func (d *Driver) Dispatch(ctx context.Context, step models.Step) (string, error) {
	if d.client == nil {
		return "", agent.ErrNotInitialized
	}
	action := strings.ToLower(strings.TrimSpace(step.Action))
	switch action {
	case "analyze":
		return d.analyze(ctx, step)
	case "ask":
		return d.ask(ctx, step)
	case "set_system":
		d.system = step.Value
		return "", nil
	case "validate_result":
		return d.validateResult(step)
	case "wait":
		return "", waitStep(ctx, step.Value)
	default:
		return "", agent.NewActionError(step.Action)
	}
}

// analyze sends the prompt and requires the reply to contain a JSON
// object; the extracted object becomes the step output.
func (d *Driver) analyze(ctx context.Context, step models.Step) (string, error) {
	prompt := firstNonEmpty(step.Value, step.Target)
	if prompt == "" {
		return "", fmt.Errorf("%w: analyze requires a prompt", agent.ErrAction)
	}
	text, err := d.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	obj, ok := ExtractJSON(text)
	if !ok {
		return text, fmt.Errorf("%w: model reply contains no JSON object", agent.ErrNoResponse)
	}
	d.lastJSON = obj
	return obj, nil
}

// ask sends the prompt and returns the raw reply. A JSON object in the
// reply is still captured for later verifications but is not required.
func (d *Driver) ask(ctx context.Context, step models.Step) (string, error) {
	prompt := firstNonEmpty(step.Value, step.Target)
	if prompt == "" {
		return "", fmt.Errorf("%w: ask requires a prompt", agent.ErrAction)
	}
	text, err := d.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if obj, ok := ExtractJSON(text); ok {
		d.lastJSON = obj
	}
	return text, nil
}

func (d *Driver) complete(ctx context.Context, prompt string) (string, error) {
	system := d.system
	if system == "" {
		system = defaultSystemPrompt
	}
	started := time.Now()
	text, err := d.client.Complete(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: model returned an empty reply", agent.ErrNoResponse)
	}
	d.lastText = text
	d.log.Debug("Comprehension call completed",
		"model", d.cfg.Model,
		"duration_ms", time.Since(started).Milliseconds(),
		"reply_bytes", len(text))
	return text, nil
}

// validateResult compares a field of the last extracted JSON object
// against the expected value.
func (d *Driver) validateResult(step models.Step) (string, error) {
	if d.lastJSON == "" {
		return "", fmt.Errorf("%w: no analysis result to validate", agent.ErrNoResponse)
	}
	expected := firstNonEmpty(step.Expected, step.Value)
	actual := d.lastJSON
	if step.Target != "" {
		actual = gjson.Get(d.lastJSON, step.Target).String()
	}
	if actual != expected {
		return actual, fmt.Errorf("result field %q is %q, expected %q", step.Target, actual, expected)
	}
	return actual, nil
}

// Check evaluates one verification against the last reply. Type "text"
// targets the raw reply; anything else resolves a path into the extracted
// JSON object, or the whole object when the target is empty.
func (d *Driver) Check(ctx context.Context, v models.Verification) agent.VerificationResult {
	if d.lastText == "" {
		return agent.CheckResult(v, "", false, agent.ErrNoResponse)
	}

	var actual string
	switch strings.ToLower(v.Type) {
	case "text":
		actual = d.lastText
	default:
		if d.lastJSON == "" {
			return agent.CheckResult(v, "", false,
				fmt.Errorf("%w: no JSON object extracted from the last reply", agent.ErrNoResponse))
		}
		if v.Target == "" {
			actual = d.lastJSON
		} else {
			actual = gjson.Get(d.lastJSON, v.Target).String()
		}
	}

	passed, err := agent.EvaluateOperator(v.Operator, actual, v.Expected)
	return agent.CheckResult(v, actual, passed, err)
}

// Close clears per-scenario state.
func (d *Driver) Close(ctx context.Context) error {
	d.lastText = ""
	d.lastJSON = ""
	d.system = ""
	return nil
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
