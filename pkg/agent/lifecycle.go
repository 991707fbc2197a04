package agent

import (
	"fmt"
	"sync"
)

// State is an agent's lifecycle position.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateRunning       State = "running"
	StateTerminated    State = "terminated"
)

// Lifecycle is the mutex-guarded agent state machine:
// Uninitialized → Ready → Running → Ready → … → Terminated.
// Cleanup may run from any state; nothing leaves Terminated.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// NewLifecycle starts in Uninitialized.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateUninitialized}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Transition moves from exactly `from` to `to`.
func (l *Lifecycle) Transition(from, to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return fmt.Errorf("%w: %s -> %s (currently %s)", ErrInvalidTransition, from, to, l.state)
	}
	l.state = to
	return nil
}

// Terminate moves to Terminated from any state and reports whether this call
// performed the transition. A second call returns false, keeping Cleanup
// idempotent.
func (l *Lifecycle) Terminate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateTerminated {
		return false
	}
	l.state = StateTerminated
	return true
}

// Executable reports whether steps may run (Ready or Running).
func (l *Lifecycle) Executable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateReady || l.state == StateRunning
}
