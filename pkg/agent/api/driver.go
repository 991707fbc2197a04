// Package api implements the HTTP agent variant: steps are HTTP verbs,
// response validations, and client mutations executed through pkg/request.
package api

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
	"github.com/agentic-hq/agentic/pkg/request"
)

// Driver dispatches API steps to a request.Client. Each driver owns a
// private copy of the HTTP configuration so scenario environment overrides
// never leak across agents.
type Driver struct {
	cfg    config.HTTPConfig
	client *request.Client
	log    *slog.Logger
}

// New returns a factory constructor for API agents bound to the given HTTP
// configuration.
func New(cfg *config.HTTPConfig, opts ...agent.Option) agent.Constructor {
	return func(spec models.AgentSpec) (agent.Agent, error) {
		d, err := NewDriver(cfg, spec.Config)
		if err != nil {
			return nil, err
		}
		return agent.NewBaseAgent(d, opts...), nil
	}
}

// NewDriver creates an unopened driver. Spec config entries override the
// base configuration: baseURL, timeoutMs, authToken.
func NewDriver(cfg *config.HTTPConfig, overrides map[string]string) (*Driver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: http configuration is nil", agent.ErrConfig)
	}
	d := &Driver{
		cfg: cloneConfig(cfg),
		log: slog.With("component", "api_agent"),
	}
	for key, value := range overrides {
		switch key {
		case "baseURL":
			d.cfg.BaseURL = value
		case "timeoutMs":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ms <= 0 {
				return nil, fmt.Errorf("%w: invalid timeoutMs %q", agent.ErrConfig, value)
			}
			d.cfg.TimeoutMs = ms
		case "authToken":
			d.cfg.Auth = config.AuthConfig{Type: config.AuthTypeBearer, Token: value}
		}
	}
	return d, nil
}

// Type returns the agent variant.
func (d *Driver) Type() models.AgentType {
	return models.AgentTypeAPI
}

// Client exposes the underlying request client, nil before Open. The
// orchestrator reads histories through it when assembling reports.
func (d *Driver) Client() *request.Client {
	return d.client
}

// Open builds the HTTP client.
func (d *Driver) Open(ctx context.Context) error {
	client, err := request.NewClient(&d.cfg)
	if err != nil {
		return err
	}
	d.client = client
	return nil
}

// Apply maps scenario environment entries onto the client: API_BASE_URL,
// API_TIMEOUT (ms), API_AUTH_TOKEN (bearer).
func (d *Driver) Apply(env map[string]string) {
	if v, ok := env["API_BASE_URL"]; ok && v != "" {
		d.cfg.BaseURL = v
	}
	if v, ok := env["API_TIMEOUT"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			d.cfg.TimeoutMs = ms
			if d.client != nil {
				d.client.SetTimeout(time.Duration(ms) * time.Millisecond)
			}
		} else {
			d.log.Warn("Ignoring invalid API_TIMEOUT", "value", v)
		}
	}
	if v, ok := env["API_AUTH_TOKEN"]; ok && v != "" {
		d.cfg.Auth = config.AuthConfig{Type: config.AuthTypeBearer, Token: v}
		if d.client != nil {
			_ = d.client.SetAuth(d.cfg.Auth)
		}
	}
}

// Dispatch executes one API step.
func (d *Driver) Dispatch(ctx context.Context, step models.Step) (string, error) {
	if d.client == nil {
		return "", agent.ErrNotInitialized
	}
	action := strings.ToLower(strings.TrimSpace(step.Action))
	switch action {
	case "get", "post", "put", "delete", "patch", "head", "options":
		return d.doRequest(ctx, strings.ToUpper(action), step)
	case "validate_status":
		return d.validateStatus(step)
	case "validate_headers":
		return d.validateHeaders(step)
	case "validate_response":
		return d.validateResponse(step)
	case "validate_schema":
		return d.validateSchema(step)
	case "set_header":
		d.client.SetHeader(step.Target, step.Value)
		return "", nil
	case "set_auth":
		return "", d.setAuth(step)
	case "wait":
		return "", waitStep(ctx, step.Value)
	case "clear_cookies":
		return "", d.client.ClearCookies()
	default:
		return "", agent.NewActionError(step.Action)
	}
}

func (d *Driver) doRequest(ctx context.Context, method string, step models.Step) (string, error) {
	body, headers := parseStepValue(step.Value)
	resp, err := d.client.Do(ctx, method, step.Target, body, headers)
	if resp == nil {
		return "", err
	}
	return resp.Body, err
}

func (d *Driver) validateStatus(step models.Step) (string, error) {
	raw := step.Expected
	if raw == "" {
		raw = step.Value
	}
	expected, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: validate_status expects a numeric status, got %q", agent.ErrAction, raw)
	}
	ok, err := d.client.ValidateStatus(expected)
	if err != nil {
		return "", err
	}
	last, _ := d.client.LastResponse()
	actual := strconv.Itoa(last.Status)
	if !ok {
		return actual, fmt.Errorf("response status %s does not match expected %d", actual, expected)
	}
	return actual, nil
}

func (d *Driver) validateHeaders(step models.Step) (string, error) {
	var expected map[string]string
	if err := json.Unmarshal([]byte(step.Value), &expected); err != nil {
		return "", fmt.Errorf("%w: validate_headers expects a JSON object, got %q", agent.ErrAction, step.Value)
	}
	ok, err := d.client.ValidateHeaders(expected)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("response headers do not match %v", expected)
	}
	return "", nil
}

func (d *Driver) validateResponse(step models.Step) (string, error) {
	expected := step.Value
	if expected == "" {
		expected = step.Expected
	}
	ok, err := d.client.ValidateBody(expected)
	if err != nil {
		return "", err
	}
	last, _ := d.client.LastResponse()
	if !ok {
		return last.Body, fmt.Errorf("response body does not match expected value")
	}
	return last.Body, nil
}

func (d *Driver) validateSchema(step models.Step) (string, error) {
	ok, err := d.client.ValidateSchema(step.Value)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("response body does not conform to schema")
	}
	return "", nil
}

// setAuth parses the step per auth type: target names the type, value is
// "header:key" for apikey, "user:pass" for basic, the token for bearer, and
// a JSON header map for custom.
func (d *Driver) setAuth(step models.Step) error {
	authType := config.AuthType(strings.ToLower(strings.TrimSpace(step.Target)))
	auth := config.AuthConfig{Type: authType}
	switch authType {
	case config.AuthTypeBearer:
		auth.Token = step.Value
	case config.AuthTypeAPIKey:
		if header, key, found := strings.Cut(step.Value, ":"); found {
			auth.Header = strings.TrimSpace(header)
			auth.Token = strings.TrimSpace(key)
		} else {
			auth.Token = strings.TrimSpace(step.Value)
		}
	case config.AuthTypeBasic:
		user, pass, found := strings.Cut(step.Value, ":")
		if !found {
			return fmt.Errorf("%w: basic auth expects \"user:pass\", got %q", agent.ErrAction, step.Value)
		}
		auth.Username = user
		auth.Password = pass
	case config.AuthTypeCustom:
		var headers map[string]string
		if err := json.Unmarshal([]byte(step.Value), &headers); err != nil {
			return fmt.Errorf("%w: custom auth expects a JSON header map: %v", agent.ErrAction, err)
		}
		auth.Headers = headers
	case config.AuthTypeNone:
	default:
		return fmt.Errorf("%w: unknown auth type %q", agent.ErrAction, step.Target)
	}
	d.cfg.Auth = auth
	return d.client.SetAuth(auth)
}

// Check evaluates a verification against the last response. Targets are
// gjson paths into the response body; type "status" reads the status code
// and type "header" reads a response header.
func (d *Driver) Check(ctx context.Context, v models.Verification) agent.VerificationResult {
	if d.client == nil {
		return agent.CheckResult(v, "", false, agent.ErrNotInitialized)
	}
	last, ok := d.client.LastResponse()
	if !ok {
		return agent.CheckResult(v, "", false, agent.ErrNoResponse)
	}

	var actual string
	switch strings.ToLower(v.Type) {
	case "status":
		actual = strconv.Itoa(last.Status)
	case "header":
		for name, value := range last.Headers {
			if strings.EqualFold(name, v.Target) {
				actual = value
				break
			}
		}
	default:
		if v.Target == "" {
			actual = last.Body
		} else {
			actual = gjson.Get(last.Body, v.Target).String()
		}
	}

	passed, err := agent.EvaluateOperator(v.Operator, actual, v.Expected)
	return agent.CheckResult(v, actual, passed, err)
}

// Close clears per-scenario client state.
func (d *Driver) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	d.client.Reset()
	return d.client.ClearCookies()
}

// parseStepValue splits a step value into body and extra headers. A JSON
// object with body and/or headers keys is unpacked; anything else is the
// raw body.
func parseStepValue(value string) (string, map[string]string) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return value, nil
	}
	var envelope struct {
		Body    json.RawMessage   `json:"body"`
		Headers map[string]string `json:"headers"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return value, nil
	}
	if envelope.Body == nil && envelope.Headers == nil {
		return value, nil
	}
	body := ""
	if envelope.Body != nil {
		var s string
		if err := json.Unmarshal(envelope.Body, &s); err == nil {
			body = s
		} else {
			body = string(envelope.Body)
		}
	}
	return body, envelope.Headers
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

func cloneConfig(cfg *config.HTTPConfig) config.HTTPConfig {
	out := *cfg
	out.DefaultHeaders = cloneMap(cfg.DefaultHeaders)
	out.Auth.Headers = cloneMap(cfg.Auth.Headers)
	out.Retry.RetryOnStatus = append([]int(nil), cfg.Retry.RetryOnStatus...)
	out.Logging.SensitiveHeaders = append([]string(nil), cfg.Logging.SensitiveHeaders...)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
