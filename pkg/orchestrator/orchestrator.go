// Package orchestrator executes scenario batches: a bounded worker pool
// over a dependency-aware queue, session-scoped agent reuse, per-scenario
// retries and timeouts, cooperative cancellation, and result aggregation
// into a TestSession. Failures feed the triage pipeline and, above the
// configured priority threshold, the issue reporter.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/report"
	"github.com/agentic-hq/agentic/pkg/triage"
)

// mainRole is the role executing the step sequence when a scenario declares
// more than one agent.
const mainRole = "main"

// Cancellation causes wrap context.Canceled so step-level classification
// reports Cancelled instead of a bare failure.
var (
	errSessionCancelled = fmt.Errorf("session cancelled (%w)", context.Canceled)
	errHaltedOnFailure  = fmt.Errorf("stopping after scenario failure (%w)", context.Canceled)
)

// Notifier receives the finished session. Implementations deliver
// fail-open: a delivery error must never surface to the session.
type Notifier interface {
	SessionFinished(ctx context.Context, session *models.TestSession)
}

// Orchestrator schedules scenario batches across agents. One instance may
// run many sessions, sequentially or concurrently; each session owns its
// agents and tears them down on completion.
type Orchestrator struct {
	cfg      *config.Config
	factory  *agent.Factory
	analyzer *triage.Analyzer
	reporter *report.Reporter
	notifier Notifier
	metrics  *Metrics
	log      *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithAnalyzer wires the triage pipeline: run records for every finished
// scenario plus a priority assignment per failure.
func WithAnalyzer(a *triage.Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = a }
}

// WithReporter wires the issue reporter; failures at or above the
// configured report threshold are submitted.
func WithReporter(r *report.Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithNotifier wires a session notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics replaces the default collector set, letting callers share one
// registry across subsystems.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator around the given configuration and agent
// factory.
func New(cfg *config.Config, factory *agent.Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		factory: factory,
		log:     slog.With("component", "orchestrator"),
		active:  make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	return o
}

// Metrics returns the orchestrator's collector set.
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// Cancel aborts every running session: workers finish their current step,
// their scenarios end in error, and everything not yet started is skipped.
// Safe to call at any time, including when nothing is running.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(o.active))
	for _, cancel := range o.active {
		cancels = append(cancels, cancel)
	}
	o.mu.Unlock()

	for _, cancel := range cancels {
		cancel(errSessionCancelled)
	}
}

// CancelSession aborts one running session by id. Returns false when no
// such session is active.
func (o *Orchestrator) CancelSession(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.active[sessionID]
	o.mu.Unlock()
	if ok {
		cancel(errSessionCancelled)
	}
	return ok
}

func (o *Orchestrator) registerSession(sessionID string, cancel context.CancelCauseFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[sessionID] = cancel
}

func (o *Orchestrator) unregisterSession(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, sessionID)
}

// RunBatch executes the batch and returns the aggregated session. The
// returned error covers batch-level configuration problems only (duplicate
// ids, unknown prerequisites, cycles); scenario failures are results, not
// errors, and every scenario in the batch lands in exactly one of the
// summary buckets.
func (o *Orchestrator) RunBatch(ctx context.Context, scenarios []*models.Scenario) (*models.TestSession, error) {
	sched, err := newSchedule(scenarios)
	if err != nil {
		return nil, err
	}

	session := &models.TestSession{
		SessionID: uuid.NewString(),
		StartTime: time.Now(),
	}
	log := o.log.With("session_id", session.SessionID)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	o.registerSession(session.SessionID, cancel)
	defer o.unregisterSession(session.SessionID)

	workers := o.workerCount()
	log.Info("Starting session",
		"scenarios", len(scenarios),
		"max_parallel", workers,
		"continue_on_failure", o.cfg.ContinueOnFailure())

	pool := newAgentPool(o.factory)
	defer pool.shutdown(context.WithoutCancel(ctx))

	readyCh := make(chan *models.Scenario)
	doneCh := make(chan *models.TestResult)

	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for sc := range readyCh {
				o.metrics.workerStarted()
				res := o.runScenario(runCtx, pool, sc)
				o.metrics.workerStopped()
				doneCh <- res
			}
			return nil
		})
	}

	var results []*models.TestResult
	record := func(r *models.TestResult) {
		results = append(results, r)
		o.metrics.scenarioDone(r.Status)
	}

	queue := sched.ready()
	running := 0
	halted := false
	haltReason := ""
	halt := func(reason string) {
		if halted {
			return
		}
		halted = true
		haltReason = reason
		for _, sc := range queue {
			record(o.skippedResult(sc, reason))
		}
		queue = nil
	}

	cancelCh := runCtx.Done()
	for running > 0 || len(queue) > 0 {
		if runCtx.Err() != nil {
			halt("session cancelled")
			cancelCh = nil
			if running == 0 {
				break
			}
		}

		var (
			send chan<- *models.Scenario
			next *models.Scenario
		)
		if len(queue) > 0 {
			send = readyCh
			next = queue[0]
		}

		select {
		case <-cancelCh:
			// Handled at the top of the loop.
		case send <- next:
			queue = queue[1:]
			running++
		case res := <-doneCh:
			running--
			record(res)
			if halted {
				// Dependents drain through remaining() below.
				continue
			}

			newlyReady, skipped := sched.complete(res.ScenarioID, res.Status == models.StatusPassed)
			for _, sc := range skipped {
				record(o.skippedResult(sc, "prerequisite not satisfied"))
			}
			queue = append(queue, newlyReady...)

			if res.Status.Terminal() && !o.cfg.ContinueOnFailure() {
				halt("stopped after earlier failure")
				cancel(errHaltedOnFailure)
			}
		}
	}
	close(readyCh)
	_ = g.Wait()

	if halted {
		for _, sc := range sched.remaining() {
			record(o.skippedResult(sc, haltReason))
		}
	}

	index := make(map[string]int, len(scenarios))
	for i, sc := range scenarios {
		index[sc.ID] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		return index[results[i].ScenarioID] < index[results[j].ScenarioID]
	})

	session.Results = results
	session.EndTime = time.Now()
	session.Summarize()
	o.metrics.sessionDone(session.EndTime.Sub(session.StartTime))

	// Post-processing runs even after cancellation: triage, the session
	// report, and notifications still describe what happened.
	postCtx := context.WithoutCancel(ctx)
	o.triageSession(postCtx, session, scenarios)
	o.writeReport(session)
	if o.notifier != nil {
		o.notifier.SessionFinished(postCtx, session)
	}

	log.Info("Session finished",
		"total", session.Summary.Total,
		"passed", session.Summary.Passed,
		"failed", session.Summary.Failed,
		"error", session.Summary.Error,
		"skipped", session.Summary.Skipped,
		"duration_ms", session.EndTime.Sub(session.StartTime).Milliseconds())
	return session, nil
}

// runScenario executes one scenario with its retry budget. A retry repeats
// the full step sequence and discards the earlier attempt's results;
// Retries counts the extra attempts actually used.
func (o *Orchestrator) runScenario(ctx context.Context, pool *agentPool, sc *models.Scenario) *models.TestResult {
	budget := o.retryBudget(sc)

	var result *models.TestResult
	for attempt := 0; ; attempt++ {
		result = o.attempt(ctx, pool, sc)
		result.Retries = attempt
		if result.Status == models.StatusPassed || attempt >= budget || ctx.Err() != nil {
			break
		}
		o.log.Info("Retrying scenario",
			"scenario_id", sc.ID,
			"attempt", attempt+1,
			"budget", budget,
			"status", result.Status)
	}
	return result
}

// attempt runs one full pass over the scenario under its overall timeout.
func (o *Orchestrator) attempt(ctx context.Context, pool *agentPool, sc *models.Scenario) *models.TestResult {
	start := time.Now()

	attemptCtx := ctx
	if timeout := o.scenarioTimeout(sc); timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeoutCause(ctx, timeout, agent.ErrTimeout)
		defer cancel()
	}

	leases, primary, err := o.resolveAgents(attemptCtx, pool, sc)
	if err != nil {
		return o.errorResult(sc, start, err)
	}
	defer pool.releaseAll(leases)

	result, err := primary.Execute(attemptCtx, sc)
	if err != nil {
		return o.errorResult(sc, start, err)
	}

	// A blown scenario deadline is an error, not a plain failure, even when
	// the timeout surfaced inside a step. An outer cancellation is already
	// classified by the step loop.
	if attemptCtx.Err() != nil && ctx.Err() == nil {
		switch result.Status {
		case models.StatusPassed, models.StatusError:
		default:
			result.Status = models.StatusError
			result.Failures = append(result.Failures, models.TestFailure{
				ScenarioID:   sc.ID,
				ScenarioName: sc.Name,
				Timestamp:    time.Now(),
				Message:      agent.FormatError(context.Cause(attemptCtx)),
				Category:     "orchestrator",
			})
		}
	}
	return result
}

// resolveAgents leases every agent the scenario declares and picks the one
// executing the step sequence: the "main" role when present, otherwise the
// scenario's single role. Multiple roles without a "main" are ambiguous.
func (o *Orchestrator) resolveAgents(ctx context.Context, pool *agentPool, sc *models.Scenario) ([]*lease, agent.Agent, error) {
	if len(sc.Agents) == 0 {
		return nil, nil, fmt.Errorf("%w: scenario %q declares no agents", agent.ErrConfig, sc.ID)
	}

	roles := make([]string, 0, len(sc.Agents))
	for role := range sc.Agents {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	primaryRole := roles[0]
	if len(roles) > 1 {
		if _, ok := sc.Agents[mainRole]; !ok {
			return nil, nil, fmt.Errorf("%w: scenario %q declares %d agents but no %q role",
				agent.ErrConfig, sc.ID, len(roles), mainRole)
		}
		primaryRole = mainRole
	}

	var leases []*lease
	var primary agent.Agent
	for _, role := range roles {
		l, err := pool.acquire(ctx, sc.Agents[role])
		if err != nil {
			pool.releaseAll(leases)
			return nil, nil, fmt.Errorf("resolving %q agent for scenario %q: %w", role, sc.ID, err)
		}
		leases = append(leases, l)
		if role == primaryRole {
			primary = l.agent
		}
	}
	return leases, primary, nil
}

// triageSession records run history for every finished scenario, assigns a
// priority to each failed one, and forwards assignments at or above the
// report threshold to the issue reporter.
func (o *Orchestrator) triageSession(ctx context.Context, session *models.TestSession, scenarios []*models.Scenario) {
	if o.analyzer == nil {
		return
	}

	byID := make(map[string]*models.Scenario, len(scenarios))
	for _, sc := range scenarios {
		byID[sc.ID] = sc
	}

	var failures []models.TestFailure
	for _, r := range session.Results {
		switch r.Status {
		case models.StatusPassed, models.StatusFailed, models.StatusError:
			o.analyzer.RecordResult(models.RunRecord{
				ScenarioID: r.ScenarioID,
				Status:     r.Status,
				Timestamp:  r.EndTime,
			})
		}
		if r.Status.Terminal() && len(r.Failures) > 0 {
			failures = append(failures, r.Failures[0])
		}
	}
	if len(failures) == 0 {
		return
	}

	assignments := o.analyzer.AnalyzeBatch(failures, byID)
	o.reportFailures(ctx, failures, assignments)
}

// reportFailures submits failures whose assigned priority reaches the
// configured threshold. Submission errors are warnings; the session result
// is already final.
func (o *Orchestrator) reportFailures(ctx context.Context, failures []models.TestFailure, assignments []models.PriorityAssignment) {
	if o.reporter == nil || !o.reporter.Enabled() {
		return
	}

	threshold := models.PriorityHigh
	if o.cfg.Triage != nil && o.cfg.Triage.ReportThreshold != "" {
		threshold = o.cfg.Triage.ReportThreshold
	}

	for i, failure := range failures {
		assignment := assignments[i]
		if assignment.Priority.Rank() > threshold.Rank() {
			continue
		}
		sub, err := o.reporter.Report(ctx, failure, &assignment)
		if err != nil {
			o.log.Warn("Issue submission failed",
				"scenario_id", failure.ScenarioID, "error", err)
			continue
		}
		if sub != nil && sub.Duplicate {
			o.log.Info("Failure already reported",
				"scenario_id", failure.ScenarioID, "issue", sub.Issue.Number)
		}
	}
}

func (o *Orchestrator) workerCount() int {
	if o.cfg.Execution != nil && o.cfg.Execution.MaxParallel > 0 {
		return o.cfg.Execution.MaxParallel
	}
	return 1
}

func (o *Orchestrator) retryBudget(sc *models.Scenario) int {
	if sc.Retries != nil {
		if *sc.Retries < 0 {
			return 0
		}
		return *sc.Retries
	}
	if o.cfg.Execution != nil && o.cfg.Execution.MaxRetries > 0 {
		return o.cfg.Execution.MaxRetries
	}
	return 0
}

func (o *Orchestrator) scenarioTimeout(sc *models.Scenario) time.Duration {
	ms := sc.TimeoutMs
	if ms <= 0 && o.cfg.Execution != nil {
		ms = o.cfg.Execution.DefaultTimeoutMs
	}
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (o *Orchestrator) skippedResult(sc *models.Scenario, reason string) *models.TestResult {
	now := time.Now()
	return &models.TestResult{
		ScenarioID:   sc.ID,
		ScenarioName: sc.Name,
		Status:       models.StatusSkipped,
		StartTime:    now,
		EndTime:      now,
		Metadata:     map[string]any{"skipReason": reason},
	}
}

func (o *Orchestrator) errorResult(sc *models.Scenario, start time.Time, err error) *models.TestResult {
	end := time.Now()
	return &models.TestResult{
		ScenarioID:   sc.ID,
		ScenarioName: sc.Name,
		Status:       models.StatusError,
		StartTime:    start,
		EndTime:      end,
		DurationMs:   end.Sub(start).Milliseconds(),
		Failures: []models.TestFailure{{
			ScenarioID:   sc.ID,
			ScenarioName: sc.Name,
			Timestamp:    end,
			Message:      agent.FormatError(err),
			Category:     "orchestrator",
		}},
	}
}
