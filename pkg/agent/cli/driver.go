// Package cli implements the CLI and TUI agent variants: steps run child
// processes one-shot or drive them interactively through terminal sessions.
// The TUI variant always allocates a PTY and adds resize and send_keys.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/terminal"
)

// keySequences maps send_keys names to terminal byte sequences. Unknown
// names are written literally.
var keySequences = map[string]string{
	"enter":     "\r",
	"tab":       "\t",
	"space":     " ",
	"escape":    "\x1b",
	"esc":       "\x1b",
	"up":        "\x1b[A",
	"down":      "\x1b[B",
	"right":     "\x1b[C",
	"left":      "\x1b[D",
	"backspace": "\x7f",
	"ctrl+c":    "\x03",
	"ctrl+d":    "\x04",
}

// Driver dispatches CLI/TUI steps to terminal sessions. One driver holds at
// most one interactive session at a time; one-shot runs spawn and reap their
// own process.
type Driver struct {
	agentType models.AgentType
	cfg       config.TerminalConfig
	registry  *terminal.Registry
	log       *slog.Logger

	dir         string
	env         []string
	session     *terminal.Session
	lastCapture terminal.Capture
	lastExit    int
	hasExit     bool
}

// New returns a factory constructor for CLI or TUI agents sharing one
// process registry.
func New(agentType models.AgentType, cfg *config.TerminalConfig, registry *terminal.Registry, opts ...agent.Option) agent.Constructor {
	return func(spec models.AgentSpec) (agent.Agent, error) {
		d, err := NewDriver(agentType, cfg, registry, spec.Config)
		if err != nil {
			return nil, err
		}
		return agent.NewBaseAgent(d, opts...), nil
	}
}

// NewDriver creates an unopened driver. Spec config entries override the
// base configuration: shell, dir.
func NewDriver(agentType models.AgentType, cfg *config.TerminalConfig, registry *terminal.Registry, overrides map[string]string) (*Driver, error) {
	if agentType != models.AgentTypeCLI && agentType != models.AgentTypeTUI {
		return nil, fmt.Errorf("%w: terminal driver cannot serve agent type %q", agent.ErrConfig, agentType)
	}
	if cfg == nil {
		cfg = config.DefaultTerminalConfig()
	}
	if registry == nil {
		registry = terminal.NewRegistry(cfg.GracePeriod())
	}
	d := &Driver{
		agentType: agentType,
		cfg:       *cfg,
		registry:  registry,
		log:       slog.With("component", string(agentType)+"_agent"),
	}
	for key, value := range overrides {
		switch key {
		case "shell":
			d.cfg.Shell = value
		case "dir":
			d.dir = value
		}
	}
	return d, nil
}

// Type returns the agent variant.
func (d *Driver) Type() models.AgentType {
	return d.agentType
}

// Session exposes the current interactive session, nil when none is live.
func (d *Driver) Session() *terminal.Session {
	return d.session
}

// Open verifies the configured shell exists. Sessions spawn lazily at step
// time.
func (d *Driver) Open(ctx context.Context) error {
	if d.cfg.Shell != "" {
		if _, err := exec.LookPath(d.cfg.Shell); err != nil {
			return fmt.Errorf("%w: shell %q not found: %v", agent.ErrInitialization, d.cfg.Shell, err)
		}
	}
	return nil
}

// Apply records scenario environment entries for the child processes.
func (d *Driver) Apply(env map[string]string) {
	for key, value := range env {
		d.env = append(d.env, key+"="+value)
	}
}

// Dispatch executes one terminal step.
func (d *Driver) Dispatch(ctx context.Context, step models.Step) (string, error) {
	action := strings.ToLower(strings.TrimSpace(step.Action))
	switch action {
	case "run":
		return d.run(ctx, step)
	case "spawn":
		return "", d.spawn(step)
	case "send":
		return "", d.send(step.Value + "\n")
	case "expect":
		return d.expect(ctx, step)
	case "validate_output":
		return d.validateOutput(step)
	case "validate_exit_code":
		return d.validateExitCode(step)
	case "wait":
		return "", waitStep(ctx, step.Value)
	case "kill":
		return "", d.kill()
	case "resize":
		if d.agentType == models.AgentTypeTUI {
			return "", d.resize(step)
		}
	case "send_keys":
		if d.agentType == models.AgentTypeTUI {
			return "", d.sendKeys(step.Value)
		}
	}
	return "", agent.NewActionError(step.Action)
}

// run executes one command to completion and records its output and exit
// code. A non-zero exit does not fail the step; only validate_exit_code
// does.
func (d *Driver) run(ctx context.Context, step models.Step) (string, error) {
	command := firstNonEmpty(step.Target, step.Value)
	sess, err := d.start(command, d.agentType == models.AgentTypeTUI)
	if err != nil {
		return "", err
	}
	d.registry.Register(sess)
	defer func() {
		d.registry.Deregister(sess.PID())
		sess.Close()
	}()

	code, err := sess.WaitForExit(ctx)
	d.lastCapture = sess.Buffer().Capture()
	if err != nil {
		sess.Terminate(d.cfg.GracePeriod())
		return d.lastCapture.Combined, err
	}
	d.lastExit = code
	d.hasExit = true
	d.log.Debug("Command finished", "command", command, "exit_code", code)
	return d.lastCapture.Combined, nil
}

// spawn starts an interactive session under a PTY.
func (d *Driver) spawn(step models.Step) error {
	if d.session != nil && d.session.Running() {
		return fmt.Errorf("%w: a session is already running (pid %d)", agent.ErrAction, d.session.PID())
	}
	command := firstNonEmpty(step.Target, step.Value)
	sess, err := d.start(command, true)
	if err != nil {
		return err
	}
	d.registry.Register(sess)
	d.session = sess
	d.hasExit = false
	return nil
}

func (d *Driver) send(data string) error {
	if d.session == nil {
		return fmt.Errorf("%w: no active session to send to", agent.ErrAction)
	}
	return d.session.Write(data)
}

func (d *Driver) sendKeys(value string) error {
	if d.session == nil {
		return fmt.Errorf("%w: no active session to send keys to", agent.ErrAction)
	}
	var b strings.Builder
	for _, token := range strings.Fields(value) {
		if seq, ok := keySequences[strings.ToLower(token)]; ok {
			b.WriteString(seq)
		} else {
			b.WriteString(token)
		}
	}
	return d.session.Write(b.String())
}

// expect polls the session output until the pattern matches.
func (d *Driver) expect(ctx context.Context, step models.Step) (string, error) {
	if d.session == nil {
		return "", fmt.Errorf("%w: no active session to expect on", agent.ErrAction)
	}
	pattern := firstNonEmpty(step.Value, step.Target)
	timeout := time.Duration(d.cfg.DefaultTimeoutMs) * time.Millisecond
	if step.TimeoutMs > 0 {
		timeout = time.Duration(step.TimeoutMs) * time.Millisecond
	}
	output, err := d.session.WaitForOutput(ctx, pattern, timeout)
	if err != nil {
		return output, err
	}
	return output, nil
}

func (d *Driver) validateOutput(step models.Step) (string, error) {
	expected := parseExpected(firstNonEmpty(step.Expected, step.Value))
	output := d.currentOutput()
	ok, err := terminal.ValidateOutput(output, expected)
	if err != nil {
		return output, err
	}
	if !ok {
		return output, fmt.Errorf("output does not match expected value")
	}
	return output, nil
}

func (d *Driver) validateExitCode(step models.Step) (string, error) {
	raw := firstNonEmpty(step.Expected, step.Value)
	expected, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: validate_exit_code expects a number, got %q", agent.ErrAction, raw)
	}
	code, ok := d.exitCode()
	if !ok {
		return "", fmt.Errorf("%w: no command has exited yet", agent.ErrNoResponse)
	}
	actual := strconv.Itoa(code)
	if code != expected {
		return actual, fmt.Errorf("exit code %d does not match expected %d", code, expected)
	}
	return actual, nil
}

func (d *Driver) kill() error {
	if d.session == nil {
		return fmt.Errorf("%w: no active session to kill", agent.ErrAction)
	}
	d.registry.Deregister(d.session.PID())
	d.session.Terminate(d.cfg.GracePeriod())
	d.lastCapture = d.session.Buffer().Capture()
	if code, ok := d.session.ExitCode(); ok {
		d.lastExit = code
		d.hasExit = true
	}
	d.session = nil
	return nil
}

// resize changes the PTY window; the value is "<rows>x<cols>".
func (d *Driver) resize(step models.Step) error {
	if d.session == nil {
		return fmt.Errorf("%w: no active session to resize", agent.ErrAction)
	}
	value := firstNonEmpty(step.Value, step.Target)
	rowsRaw, colsRaw, found := strings.Cut(strings.ToLower(value), "x")
	rows, errR := strconv.ParseUint(strings.TrimSpace(rowsRaw), 10, 16)
	cols, errC := strconv.ParseUint(strings.TrimSpace(colsRaw), 10, 16)
	if !found || errR != nil || errC != nil {
		return fmt.Errorf("%w: resize expects \"<rows>x<cols>\", got %q", agent.ErrAction, value)
	}
	return d.session.Resize(uint16(rows), uint16(cols))
}

// Check evaluates a verification against the captured output or exit code.
func (d *Driver) Check(ctx context.Context, v models.Verification) agent.VerificationResult {
	var actual string
	switch strings.ToLower(v.Type) {
	case "exit_code":
		code, ok := d.exitCode()
		if !ok {
			return agent.CheckResult(v, "", false, agent.ErrNoResponse)
		}
		actual = strconv.Itoa(code)
	case "stdout":
		actual = d.capture().Stdout
	case "stderr":
		actual = d.capture().Stderr
	default:
		actual = d.currentOutput()
	}
	passed, err := agent.EvaluateOperator(v.Operator, actual, v.Expected)
	return agent.CheckResult(v, actual, passed, err)
}

// Close terminates any live session and clears captured state.
func (d *Driver) Close(ctx context.Context) error {
	if d.session != nil {
		d.registry.Deregister(d.session.PID())
		d.session.Terminate(d.cfg.GracePeriod())
		d.session = nil
	}
	d.lastCapture = terminal.Capture{}
	d.env = nil
	d.hasExit = false
	return nil
}

func (d *Driver) start(command string, pty bool) (*terminal.Session, error) {
	name, args, err := d.splitCommand(command)
	if err != nil {
		return nil, err
	}
	sess, err := terminal.Start(name, args, terminal.Options{
		PTY:  pty,
		Rows: d.cfg.Rows,
		Cols: d.cfg.Cols,
		Env:  d.env,
		Dir:  d.dir,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to spawn %q: %v", agent.ErrTransport, command, err)
	}
	return sess, nil
}

// splitCommand resolves a command line: through `<shell> -c` when a shell is
// configured, otherwise by whitespace fields.
func (d *Driver) splitCommand(command string) (string, []string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", nil, fmt.Errorf("%w: empty command", agent.ErrAction)
	}
	if d.cfg.Shell != "" {
		return d.cfg.Shell, []string{"-c", command}, nil
	}
	fields := strings.Fields(command)
	return fields[0], fields[1:], nil
}

func (d *Driver) exitCode() (int, bool) {
	if d.session != nil {
		if code, ok := d.session.ExitCode(); ok {
			return code, true
		}
	}
	return d.lastExit, d.hasExit
}

func (d *Driver) capture() terminal.Capture {
	if d.session != nil {
		return d.session.Buffer().Capture()
	}
	return d.lastCapture
}

func (d *Driver) currentOutput() string {
	return d.capture().Combined
}

// parseExpected upgrades a JSON-object string to the structured operator
// form; anything else stays a plain string.
func parseExpected(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var structured map[string]any
		if err := json.Unmarshal([]byte(trimmed), &structured); err == nil {
			return structured
		}
	}
	return raw
}

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
