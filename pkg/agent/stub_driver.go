package agent

import (
	"context"
	"sync"

	"github.com/agentic-hq/agentic/pkg/models"
)

// StubDriver is a scriptable Driver used by tests across packages. The zero
// value echoes each step's value and passes every verification.
type StubDriver struct {
	AgentType models.AgentType

	// OpenErr makes Open fail, simulating an unreachable resource.
	OpenErr error
	// DispatchFunc overrides step handling when set.
	DispatchFunc func(ctx context.Context, step models.Step) (string, error)
	// CheckFunc overrides verification handling when set.
	CheckFunc func(ctx context.Context, v models.Verification) VerificationResult

	mu         sync.Mutex
	opened     int
	closed     int
	appliedEnv map[string]string
	actions    []string
}

func (d *StubDriver) Type() models.AgentType {
	if d.AgentType == "" {
		return models.AgentTypeAPI
	}
	return d.AgentType
}

func (d *StubDriver) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.opened++
	return nil
}

func (d *StubDriver) Apply(env map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.appliedEnv == nil {
		d.appliedEnv = make(map[string]string, len(env))
	}
	for k, v := range env {
		d.appliedEnv[k] = v
	}
}

func (d *StubDriver) Dispatch(ctx context.Context, step models.Step) (string, error) {
	d.mu.Lock()
	d.actions = append(d.actions, step.Action)
	d.mu.Unlock()
	if d.DispatchFunc != nil {
		return d.DispatchFunc(ctx, step)
	}
	return step.Value, nil
}

func (d *StubDriver) Check(ctx context.Context, v models.Verification) VerificationResult {
	if d.CheckFunc != nil {
		return d.CheckFunc(ctx, v)
	}
	return CheckResult(v, v.Expected, true, nil)
}

func (d *StubDriver) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// Opened reports how many times Open succeeded.
func (d *StubDriver) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed reports how many times Close ran.
func (d *StubDriver) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// AppliedEnv returns a copy of every environment entry applied so far.
func (d *StubDriver) AppliedEnv() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.appliedEnv))
	for k, v := range d.appliedEnv {
		out[k] = v
	}
	return out
}

// Actions returns the dispatched action verbs in order.
func (d *StubDriver) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}
