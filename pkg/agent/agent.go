// Package agent defines the polymorphic agent contract and the shared
// execution template that turns one scenario into a TestResult. Concrete
// variants (api, cli, tui, ui, system, issue, priority, comprehension) live
// in subpackages and plug in as Drivers.
package agent

import (
	"context"

	"github.com/agentic-hq/agentic/pkg/models"
)

// Agent is the capability set every variant exposes. Agents are confined to
// one scenario at a time; the orchestrator owns instances for the session
// and tears them down at session end.
type Agent interface {
	// Type returns the agent variant.
	Type() models.AgentType

	// Initialize acquires external resources. Valid only from the
	// Uninitialized state; failure leaves the agent Uninitialized.
	Initialize(ctx context.Context) error

	// ApplyEnvironment applies scenario environment entries. The
	// interpretation is agent-type-specific.
	ApplyEnvironment(env map[string]string)

	// ExecuteStep dispatches one step. All failures are captured into the
	// returned StepResult; it never panics across the boundary.
	ExecuteStep(ctx context.Context, step models.Step, index int) models.StepResult

	// Verify checks one post-condition against the agent's latest state.
	Verify(ctx context.Context, v models.Verification) VerificationResult

	// Execute runs the whole scenario: environment, step loop, verifications,
	// then cleanup steps unconditionally. It returns an error only when no
	// meaningful result exists (e.g. the agent was never initialized).
	Execute(ctx context.Context, scenario *models.Scenario) (*models.TestResult, error)

	// Cleanup releases agent resources. Best-effort and idempotent: the
	// second call is a no-op returning nil.
	Cleanup(ctx context.Context) error
}

// VerificationResult is the outcome of one Verify call.
type VerificationResult struct {
	Type        string `json:"type"`
	Target      string `json:"target"`
	Description string `json:"description,omitempty"`
	Passed      bool   `json:"passed"`
	Actual      string `json:"actual,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Driver is the variant-specific strategy a BaseAgent delegates to.
// Implementations are single-threaded within a scenario.
type Driver interface {
	// Type returns the agent variant the driver implements.
	Type() models.AgentType

	// Open acquires the driver's external resources (process, HTTP client
	// warm-up, history files). Wrap unreachable-resource failures in
	// ErrInitialization.
	Open(ctx context.Context) error

	// Apply folds scenario environment entries into the driver's state.
	Apply(env map[string]string)

	// Dispatch executes one step action and returns the observable result.
	// Unknown actions return ErrAction.
	Dispatch(ctx context.Context, step models.Step) (string, error)

	// Check evaluates one verification against the driver's latest state.
	Check(ctx context.Context, v models.Verification) VerificationResult

	// Close releases resources and clears per-scenario state (histories,
	// cookies, buffers). Called once per agent lifetime.
	Close(ctx context.Context) error
}

// Screenshotter is implemented by drivers that capture screenshots on
// failing steps (the UI driver). The base agent records the path in the
// step result.
type Screenshotter interface {
	LastScreenshot() string
}
