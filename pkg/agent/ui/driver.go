package ui

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
)

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// PageFactory builds the page a driver drives. A nil factory selects the
// built-in HTTP page.
type PageFactory func(cfg *config.UIConfig) (Page, error)

// Driver dispatches UI steps to a Page. Failing steps capture the current
// document so the base agent can attach the path to the step result.
type Driver struct {
	cfg     config.UIConfig
	factory PageFactory
	page    Page
	log     *slog.Logger

	lastShot string
}

// New returns a factory constructor for UI agents using the built-in page.
func New(cfg *config.UIConfig, opts ...agent.Option) agent.Constructor {
	return NewWithPage(cfg, nil, opts...)
}

// NewWithPage returns a factory constructor for UI agents driving pages
// built by the given factory. Browser integrations hook in here.
func NewWithPage(cfg *config.UIConfig, factory PageFactory, opts ...agent.Option) agent.Constructor {
	return func(spec models.AgentSpec) (agent.Agent, error) {
		d, err := NewDriver(cfg, factory, spec.Config)
		if err != nil {
			return nil, err
		}
		return agent.NewBaseAgent(d, opts...), nil
	}
}

// NewDriver creates an unopened driver. Spec config entries override the
// base configuration: baseURL, screenshotDir, headless, navigationTimeoutMs.
func NewDriver(cfg *config.UIConfig, factory PageFactory, overrides map[string]string) (*Driver, error) {
	if cfg == nil {
		cfg = config.DefaultUIConfig()
	}
	d := &Driver{
		cfg:     *cfg,
		factory: factory,
		log:     slog.With("component", "ui_agent"),
	}
	for key, value := range overrides {
		switch key {
		case "baseURL":
			d.cfg.BaseURL = value
		case "screenshotDir":
			d.cfg.ScreenshotDir = value
		case "headless":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid headless %q", agent.ErrConfig, value)
			}
			d.cfg.Headless = &b
		case "navigationTimeoutMs":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ms <= 0 {
				return nil, fmt.Errorf("%w: invalid navigationTimeoutMs %q", agent.ErrConfig, value)
			}
			d.cfg.NavigationToMs = ms
		}
	}
	return d, nil
}

// Type returns the agent variant.
func (d *Driver) Type() models.AgentType {
	return models.AgentTypeUI
}

// Open builds the page.
func (d *Driver) Open(ctx context.Context) error {
	if !d.cfg.IsHeadless() {
		d.log.Warn("Headful mode requested; the built-in page renders nothing")
	}
	if d.factory == nil {
		d.page = NewHTTPPage(d.navigationTimeout())
		return nil
	}
	page, err := d.factory(&d.cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", agent.ErrInitialization, err)
	}
	d.page = page
	return nil
}

// Apply maps scenario environment entries onto the driver: UI_BASE_URL,
// UI_HEADLESS, UI_SCREENSHOT_DIR.
func (d *Driver) Apply(env map[string]string) {
	if v, ok := env["UI_BASE_URL"]; ok && v != "" {
		d.cfg.BaseURL = v
	}
	if v, ok := env["UI_HEADLESS"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			d.cfg.Headless = &b
		} else {
			d.log.Warn("Ignoring invalid UI_HEADLESS", "value", v)
		}
	}
	if v, ok := env["UI_SCREENSHOT_DIR"]; ok && v != "" {
		d.cfg.ScreenshotDir = v
	}
}

// Dispatch executes one UI step. Any failing action except screenshot
// captures the current document for the step result.
func (d *Driver) Dispatch(ctx context.Context, step models.Step) (string, error) {
	if d.page == nil {
		return "", agent.ErrNotInitialized
	}
	d.lastShot = ""
	action := strings.ToLower(strings.TrimSpace(step.Action))
	out, err := d.dispatch(ctx, action, step)
	if err != nil && action != "screenshot" {
		d.captureFailure(ctx)
	}
	return out, err
}

func (d *Driver) dispatch(ctx context.Context, action string, step models.Step) (string, error) {
	switch action {
	case "navigate":
		return d.navigate(ctx, step)
	case "click":
		return "", d.interact(ctx, "click", step.Target, "")
	case "type":
		return "", d.interact(ctx, "type", step.Target, step.Value)
	case "select":
		return "", d.interact(ctx, "select", step.Target, step.Value)
	case "screenshot":
		return d.screenshot(ctx, step.Value)
	case "validate_text":
		return d.validateText(step)
	case "validate_url":
		return d.validateURL(step)
	case "wait":
		return "", waitStep(ctx, step.Value)
	default:
		return "", agent.NewActionError(step.Action)
	}
}

func (d *Driver) navigate(ctx context.Context, step models.Step) (string, error) {
	target := firstNonEmpty(step.Target, step.Value)
	if target == "" {
		return "", fmt.Errorf("%w: navigate requires a URL", agent.ErrAction)
	}
	url, err := d.resolveURL(target)
	if err != nil {
		return "", err
	}
	navCtx, cancel := context.WithTimeout(ctx, d.navigationTimeout())
	defer cancel()
	if err := d.page.Navigate(navCtx, url); err != nil {
		return "", err
	}
	return url, nil
}

func (d *Driver) interact(ctx context.Context, kind, selector, value string) error {
	if selector == "" {
		return fmt.Errorf("%w: %s requires a selector", agent.ErrAction, kind)
	}
	return d.page.Interact(ctx, Interaction{Kind: kind, Selector: selector, Value: value})
}

func (d *Driver) screenshot(ctx context.Context, name string) (string, error) {
	path := d.screenshotPath(firstNonEmpty(name, "capture"))
	if err := d.page.Snapshot(ctx, path); err != nil {
		return "", err
	}
	d.lastShot = path
	return path, nil
}

func (d *Driver) validateText(step models.Step) (string, error) {
	expected := firstNonEmpty(step.Expected, step.Value)
	if expected == "" {
		return "", fmt.Errorf("%w: validate_text requires an expected value", agent.ErrAction)
	}
	if !strings.Contains(d.page.Content(), expected) {
		return "", fmt.Errorf("page content does not contain %q", expected)
	}
	return expected, nil
}

func (d *Driver) validateURL(step models.Step) (string, error) {
	expected := firstNonEmpty(step.Expected, step.Value)
	if expected == "" {
		return "", fmt.Errorf("%w: validate_url requires an expected value", agent.ErrAction)
	}
	location := d.page.Location()
	if !strings.Contains(location, expected) {
		return location, fmt.Errorf("current URL %q does not match %q", location, expected)
	}
	return location, nil
}

// Check evaluates one verification: type "url" against the location,
// "title" against the document title, anything else against the source.
func (d *Driver) Check(ctx context.Context, v models.Verification) agent.VerificationResult {
	if d.page == nil {
		return agent.CheckResult(v, "", false, agent.ErrNotInitialized)
	}
	if d.page.Location() == "" {
		return agent.CheckResult(v, "", false, fmt.Errorf("%w: no page loaded", agent.ErrNoResponse))
	}

	var actual string
	switch strings.ToLower(v.Type) {
	case "url":
		actual = d.page.Location()
	case "title":
		actual = pageTitle(d.page.Content())
	default:
		actual = d.page.Content()
	}

	passed, err := agent.EvaluateOperator(v.Operator, actual, v.Expected)
	return agent.CheckResult(v, actual, passed, err)
}

// LastScreenshot returns the capture taken during the last failing step.
func (d *Driver) LastScreenshot() string {
	return d.lastShot
}

// Close releases the page.
func (d *Driver) Close(ctx context.Context) error {
	d.lastShot = ""
	if d.page == nil {
		return nil
	}
	return d.page.Close()
}

func (d *Driver) captureFailure(ctx context.Context) {
	if d.page.Location() == "" {
		return
	}
	path := d.screenshotPath("failure")
	if err := d.page.Snapshot(ctx, path); err != nil {
		d.log.Warn("Failed to capture failure screenshot", "error", err)
		return
	}
	d.lastShot = path
}

func (d *Driver) screenshotPath(name string) string {
	dir := d.cfg.ScreenshotDir
	if dir == "" {
		dir = "screenshots"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%d.html", name, time.Now().UnixMilli()))
}

func (d *Driver) resolveURL(target string) (string, error) {
	if strings.Contains(target, "://") {
		return target, nil
	}
	if d.cfg.BaseURL == "" {
		return "", fmt.Errorf("%w: relative target %q without a base URL", agent.ErrAction, target)
	}
	return strings.TrimSuffix(d.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(target, "/"), nil
}

func (d *Driver) navigationTimeout() time.Duration {
	if d.cfg.NavigationToMs > 0 {
		return time.Duration(d.cfg.NavigationToMs) * time.Millisecond
	}
	return 30 * time.Second
}

func pageTitle(content string) string {
	if m := titlePattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
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
