package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentic-hq/agentic/pkg/models"
)

// BaseAgent implements the Agent execution template around a variant
// Driver: environment application, the per-step loop with timeout mapping,
// verifications, unconditional cleanup steps, and result aggregation.
type BaseAgent struct {
	driver      Driver
	lifecycle   *Lifecycle
	stepTimeout time.Duration
	log         *slog.Logger
}

// Option customises a BaseAgent.
type Option func(*BaseAgent)

// WithStepTimeout sets the default per-step budget applied when a step
// carries no timeoutMs of its own. Zero disables the default timer.
func WithStepTimeout(d time.Duration) Option {
	return func(a *BaseAgent) { a.stepTimeout = d }
}

// NewBaseAgent creates an agent around the given driver.
// Panics if driver is nil (programming error in the factory).
func NewBaseAgent(driver Driver, opts ...Option) *BaseAgent {
	if driver == nil {
		panic("NewBaseAgent: driver must not be nil")
	}
	a := &BaseAgent{
		driver:    driver,
		lifecycle: NewLifecycle(),
		log:       slog.With("agent_type", driver.Type()),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Type returns the driver's agent variant.
func (a *BaseAgent) Type() models.AgentType {
	return a.driver.Type()
}

// State exposes the lifecycle position, mainly for tests and diagnostics.
func (a *BaseAgent) State() State {
	return a.lifecycle.State()
}

// Initialize opens the driver and moves the agent to Ready. Valid only from
// Uninitialized; a failed open leaves the agent Uninitialized.
func (a *BaseAgent) Initialize(ctx context.Context) error {
	if state := a.lifecycle.State(); state != StateUninitialized {
		return fmt.Errorf("%w: initialize from %s", ErrInvalidTransition, state)
	}
	if err := a.driver.Open(ctx); err != nil {
		if !errors.Is(err, ErrInitialization) && !errors.Is(err, ErrConfig) {
			err = fmt.Errorf("%w: %v", ErrInitialization, err)
		}
		return err
	}
	return a.lifecycle.Transition(StateUninitialized, StateReady)
}

// ApplyEnvironment forwards scenario environment entries to the driver.
func (a *BaseAgent) ApplyEnvironment(env map[string]string) {
	if len(env) > 0 {
		a.driver.Apply(env)
	}
}

// ExecuteStep dispatches one step with the effective timeout
// (step.timeoutMs, falling back to the agent default). Failures are captured
// into the StepResult; cancellation maps to status error, everything else to
// status failed.
func (a *BaseAgent) ExecuteStep(ctx context.Context, step models.Step, index int) models.StepResult {
	sr := models.StepResult{StepIndex: index, Action: step.Action}

	if !a.lifecycle.Executable() {
		sr.Status = models.StatusError
		sr.Error = FormatError(ErrNotInitialized)
		return sr
	}

	timeout := a.stepTimeout
	if step.TimeoutMs > 0 {
		timeout = time.Duration(step.TimeoutMs) * time.Millisecond
	}
	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	actual, err := a.driver.Dispatch(stepCtx, step)
	sr.DurationMs = time.Since(start).Milliseconds()
	sr.ActualResult = actual

	if err != nil {
		sr.Error = FormatError(err)
		if errors.Is(err, context.Canceled) {
			sr.Status = models.StatusError
		} else {
			sr.Status = models.StatusFailed
		}
		if shooter, ok := a.driver.(Screenshotter); ok {
			sr.ScreenshotPath = shooter.LastScreenshot()
		}
		a.log.Warn("Step failed",
			"step_index", index,
			"action", step.Action,
			"status", sr.Status,
			"error", sr.Error)
		return sr
	}

	sr.Status = models.StatusPassed
	return sr
}

// Verify forwards one verification to the driver.
func (a *BaseAgent) Verify(ctx context.Context, v models.Verification) VerificationResult {
	return a.driver.Check(ctx, v)
}

// Execute runs the template over one scenario:
//
//  1. Apply scenario.environment.
//  2. Run steps in order; stop on the first non-passed step unless the
//     scenario (or the step itself) opts into continueOnFailure.
//  3. Run verifications against the final agent state.
//  4. Run cleanup steps unconditionally; their failures are recorded but
//     never override the primary status.
func (a *BaseAgent) Execute(ctx context.Context, scenario *models.Scenario) (*models.TestResult, error) {
	if scenario == nil {
		return nil, fmt.Errorf("scenario must not be nil")
	}
	if err := a.lifecycle.Transition(StateReady, StateRunning); err != nil {
		if a.lifecycle.State() == StateUninitialized {
			return nil, fmt.Errorf("%w: execute on %q", ErrNotInitialized, scenario.ID)
		}
		return nil, err
	}
	defer func() {
		_ = a.lifecycle.Transition(StateRunning, StateReady)
	}()

	log := a.log.With("scenario_id", scenario.ID)
	result := &models.TestResult{
		ScenarioID:   scenario.ID,
		ScenarioName: scenario.Name,
		StartTime:    time.Now(),
		Metadata:     map[string]any{"agentType": string(a.Type())},
	}

	a.ApplyEnvironment(scenario.Environment)

	cancelled := false
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			result.Status = models.StatusError
			result.Failures = append(result.Failures, a.failure(scenario, nil,
				FormatError(context.Cause(ctx))))
			cancelled = true
			break
		}

		sr := a.ExecuteStep(ctx, step, i)
		result.StepResults = append(result.StepResults, sr)
		if sr.ScreenshotPath != "" {
			result.Screenshots = append(result.Screenshots, sr.ScreenshotPath)
		}
		if sr.Status == models.StatusPassed {
			continue
		}

		idx := i
		result.Failures = append(result.Failures, a.failure(scenario, &idx, sr.Error))
		if sr.Status == models.StatusError {
			result.Status = models.StatusError
		}
		if !scenario.ContinueOnFailure && !step.ContinueOnFailure {
			break
		}
	}

	if !cancelled && ctx.Err() == nil {
		for _, v := range scenario.Verifications {
			vr := a.Verify(ctx, v)
			if vr.Passed {
				continue
			}
			msg := vr.Error
			if msg == "" {
				msg = fmt.Sprintf("verification %s on %q failed (actual %q)", v.Type, v.Target, vr.Actual)
			}
			result.Failures = append(result.Failures, a.failure(scenario, nil, msg))
			if result.Status == "" {
				result.Status = models.StatusFailed
			}
		}
	}

	// Cleanup steps run even after cancellation or timeout, on a context
	// detached from the caller's deadline.
	if len(scenario.Cleanup) > 0 {
		cleanupCtx := context.WithoutCancel(ctx)
		for j, step := range scenario.Cleanup {
			sr := a.ExecuteStep(cleanupCtx, step, len(scenario.Steps)+j)
			if sr.Status != models.StatusPassed {
				log.Warn("Cleanup step failed",
					"action", step.Action, "error", sr.Error)
				result.Failures = append(result.Failures, a.failure(scenario, nil, "cleanup: "+sr.Error))
			}
		}
	}

	result.Finalize(time.Now())
	log.Info("Scenario execution finished",
		"status", result.Status,
		"steps", len(result.StepResults),
		"duration_ms", result.DurationMs)
	return result, nil
}

// Cleanup terminates the agent and closes the driver once. Subsequent calls
// return nil without touching the driver.
func (a *BaseAgent) Cleanup(ctx context.Context) error {
	if !a.lifecycle.Terminate() {
		return nil
	}
	if err := a.driver.Close(ctx); err != nil {
		a.log.Warn("Agent cleanup reported an error", "error", err)
		return err
	}
	return nil
}

func (a *BaseAgent) failure(scenario *models.Scenario, step *int, message string) models.TestFailure {
	return models.TestFailure{
		ScenarioID:   scenario.ID,
		ScenarioName: scenario.Name,
		Timestamp:    time.Now(),
		Message:      message,
		Category:     string(a.Type()),
		FailedStep:   step,
	}
}
