// Package api exposes the REST intake server: submit scenario batches,
// inspect runs, cancel them, and scrape metrics. Runs execute one at a
// time through a shared orchestrator; the store is in-memory and lives
// as long as the server process.
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-hq/agentic/pkg/models"
)

// RunState is the lifecycle of one submitted batch.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateFinished  RunState = "finished"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// terminal reports whether the run can no longer change.
func (s RunState) terminal() bool {
	return s == RunStateFinished || s == RunStateFailed || s == RunStateCancelled
}

var (
	// ErrRunNotFound marks an unknown run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished marks a cancel against a run already in a terminal state.
	ErrRunFinished = errors.New("run already finished")
)

// Run is the API's view of one submitted batch.
type Run struct {
	ID          string              `json:"runId"`
	State       RunState            `json:"state"`
	ScenarioIDs []string            `json:"scenarioIds"`
	SubmittedAt time.Time           `json:"submittedAt"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	FinishedAt  *time.Time          `json:"finishedAt,omitempty"`
	Session     *models.TestSession `json:"session,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type runRecord struct {
	run       Run
	scenarios []*models.Scenario
	cancel    context.CancelFunc
	cancelled bool
}

// Store holds runs for the lifetime of the server, in submission order.
type Store struct {
	mu    sync.RWMutex
	runs  map[string]*runRecord
	order []string
}

// NewStore creates an empty run store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*runRecord)}
}

// Add registers a pending run for the given scenarios and returns it.
func (s *Store) Add(scenarios []*models.Scenario) Run {
	ids := make([]string, 0, len(scenarios))
	for _, sc := range scenarios {
		ids = append(ids, sc.ID)
	}
	run := Run{
		ID:          uuid.NewString(),
		State:       RunStatePending,
		ScenarioIDs: ids,
		SubmittedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = &runRecord{run: run, scenarios: scenarios}
	s.order = append(s.order, run.ID)
	return run
}

// Get returns a snapshot of the run.
func (s *Store) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return rec.run, nil
}

// List returns snapshots of every run, newest first.
func (s *Store) List() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]].run)
	}
	return out
}

// Cancel requests cancellation. A pending run goes terminal immediately; a
// running run keeps its state until the executor observes the cancellation.
func (s *Store) Cancel(id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	if rec.run.State.terminal() {
		return rec.run, ErrRunFinished
	}

	rec.cancelled = true
	if rec.run.State == RunStatePending {
		now := time.Now().UTC()
		rec.run.State = RunStateCancelled
		rec.run.FinishedAt = &now
	}
	if rec.cancel != nil {
		rec.cancel()
	}
	return rec.run, nil
}

// begin transitions a pending run to running and hands its scenarios to the
// executor. Returns false when the run was cancelled while queued.
func (s *Store) begin(id string, cancel context.CancelFunc) ([]*models.Scenario, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok || rec.run.State != RunStatePending {
		return nil, false
	}

	now := time.Now().UTC()
	rec.run.State = RunStateRunning
	rec.run.StartedAt = &now
	rec.cancel = cancel
	return rec.scenarios, true
}

// finish records the batch outcome and drops the executor's cancel hook.
func (s *Store) finish(id string, session *models.TestSession, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return
	}

	now := time.Now().UTC()
	rec.run.FinishedAt = &now
	rec.run.Session = session
	rec.cancel = nil
	rec.scenarios = nil

	switch {
	case err != nil:
		rec.run.State = RunStateFailed
		rec.run.Error = err.Error()
	case rec.cancelled:
		rec.run.State = RunStateCancelled
	default:
		rec.run.State = RunStateFinished
	}
}
