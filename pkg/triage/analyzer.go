// Package triage ranks test failures: impact scoring against weighted
// factors, flaky-test detection over run history, recurring-pattern
// extraction, and fix-order recommendation.
package triage

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
)

// Windows over run history consulted by the stability and regression factors.
const (
	stabilityWindow  = 7 * 24 * time.Hour
	regressionWindow = 30 * 24 * time.Hour
)

var securityKeywords = []string{
	"auth", "token", "credential", "permission", "crypto",
	"security", "password", "certificate", "injection",
}

var performanceKeywords = []string{"timeout", "slow", "memory", "cpu"}

// Analyzer assigns impact scores and priorities to failures. It owns the
// history store; concurrent callers observe monotonically growing history.
type Analyzer struct {
	cfg     *config.TriageConfig
	weights map[string]float64
	store   *HistoryStore
	log     *slog.Logger
}

// NewAnalyzer creates an analyzer over the given store. The configured
// weights must sum to 1.0 within the tolerance; empty weights fall back to
// the defaults.
func NewAnalyzer(cfg *config.TriageConfig, store *HistoryStore) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.DefaultTriageConfig()
	}
	if store == nil {
		store = NewHistoryStore(cfg.HistoryPath)
	}
	weights := cfg.Weights
	if len(weights) == 0 {
		weights = config.DefaultWeights()
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > config.WeightSumTolerance {
		return nil, fmt.Errorf("impact weights must sum to 1.0 (±%v), got %v",
			config.WeightSumTolerance, sum)
	}
	if cfg.FlakyThreshold < 0 || cfg.FlakyThreshold > 1 {
		return nil, fmt.Errorf("flaky threshold must be in [0,1], got %v", cfg.FlakyThreshold)
	}
	return &Analyzer{
		cfg:     cfg,
		weights: weights,
		store:   store,
		log:     slog.With("component", "triage"),
	}, nil
}

// Store exposes the analyzer's history store.
func (a *Analyzer) Store() *HistoryStore {
	return a.store
}

// Analyze scores one failure. The scenario descriptor is optional; when
// present it contributes the business-priority and interface signals and
// raises confidence.
func (a *Analyzer) Analyze(failure models.TestFailure, scenario *models.Scenario) models.PriorityAssignment {
	runs := a.store.Runs(failure.ScenarioID)
	now := time.Now()

	severity := errorSeverity(failure.Message)
	stability := testStability(runs, now)
	factors := map[string]float64{
		config.FactorErrorSeverity:        severity,
		config.FactorUserImpact:           userImpact(interfaceKind(scenario, failure)),
		config.FactorTestStability:        stability,
		config.FactorBusinessPriority:     businessPriority(scenario),
		config.FactorSecurityImplications: keywordFactor(failure, scenario, securityKeywords, 1.0, 0.2),
		config.FactorPerformanceImpact:    performanceImpact(failure, scenario),
		config.FactorRegressionDetection:  regressionDetection(runs, now),
	}

	var weighted float64
	for name, value := range factors {
		weighted += value * a.weights[name]
	}

	var reasoning []string
	for _, name := range topFactors(factors, a.weights, 3) {
		reasoning = append(reasoning,
			fmt.Sprintf("%s scored %.2f (weight %.2f)", name, factors[name], a.weights[name]))
	}
	for _, rule := range a.cfg.CustomRules {
		if matchesKeywords(failure, scenario, rule.Keywords) {
			weighted += rule.Modifier / 100
			reasoning = append(reasoning, fmt.Sprintf("custom rule %q applied %+.0f", rule.Name, rule.Modifier))
		}
	}
	weighted = clamp(weighted, 0, 1)
	score := weighted * 100

	assignment := models.PriorityAssignment{
		ScenarioID:              failure.ScenarioID,
		Priority:                models.PriorityFromScore(score),
		ImpactScore:             round1(score),
		Confidence:              a.confidence(failure.ScenarioID, scenario),
		Timestamp:               now,
		Reasoning:               reasoning,
		Factors:                 factors,
		EstimatedFixEffortHours: fixEffort(interfaceKind(scenario, failure), severity, stability),
	}

	if err := a.store.AddAssignment(assignment); err != nil {
		a.log.Warn("Failed to persist priority assignment",
			"scenario_id", assignment.ScenarioID, "error", err)
	}
	a.log.Debug("Failure analyzed",
		"scenario_id", assignment.ScenarioID,
		"priority", assignment.Priority,
		"impact_score", assignment.ImpactScore)
	return assignment
}

// AnalyzeBatch scores a set of failures against their scenarios (looked up
// by ID) and returns assignments in input order.
func (a *Analyzer) AnalyzeBatch(failures []models.TestFailure, scenarios map[string]*models.Scenario) []models.PriorityAssignment {
	out := make([]models.PriorityAssignment, 0, len(failures))
	for _, f := range failures {
		out = append(out, a.Analyze(f, scenarios[f.ScenarioID]))
	}
	return out
}

// RecordResult adds one run outcome to the history consulted by the
// stability, regression, and flakiness computations.
func (a *Analyzer) RecordResult(record models.RunRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	a.store.AddRun(record)
}

// confidence starts at 0.5, grows with historical coverage of the scenario
// (up to +0.3 at ten assignments), and adds 0.2 when the scenario
// descriptor is available. Clipped to 1.0.
func (a *Analyzer) confidence(scenarioID string, scenario *models.Scenario) float64 {
	c := 0.5
	n := float64(a.store.AssignmentCount(scenarioID))
	c += math.Min(1, n/10) * 0.3
	if scenario != nil {
		c += 0.2
	}
	return round2(clamp(c, 0, 1))
}

func errorSeverity(message string) float64 {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "crash") || strings.Contains(msg, "fatal"):
		return 1.0
	case strings.Contains(msg, "error") || strings.Contains(msg, "exception"):
		return 0.8
	case strings.Contains(msg, "warning") || strings.Contains(msg, "timeout"):
		return 0.6
	default:
		return 0.4
	}
}

// interfaceKind classifies which surface a failure touched, preferring the
// scenario's declared agents over the failure category.
func interfaceKind(scenario *models.Scenario, failure models.TestFailure) string {
	var ui, cli, api bool
	note := func(t models.AgentType) {
		switch t {
		case models.AgentTypeUI:
			ui = true
		case models.AgentTypeCLI, models.AgentTypeTUI:
			cli = true
		case models.AgentTypeAPI:
			api = true
		}
	}
	if scenario != nil && len(scenario.Agents) > 0 {
		for _, spec := range scenario.Agents {
			note(spec.Type)
		}
	} else {
		note(models.AgentType(failure.Category))
	}

	count := 0
	for _, present := range []bool{ui, cli, api} {
		if present {
			count++
		}
	}
	switch {
	case count > 1:
		return "mixed"
	case ui:
		return "ui"
	case cli:
		return "cli"
	default:
		return "api"
	}
}

func userImpact(kind string) float64 {
	switch kind {
	case "ui":
		return 0.9
	case "mixed":
		return 0.7
	case "cli":
		return 0.6
	default:
		return 0.4
	}
}

// testStability is the failure rate over the last seven days, doubled and
// clipped to 1.0 so a 50% failure rate already saturates the factor.
func testStability(runs []models.RunRecord, now time.Time) float64 {
	var total, failed int
	for _, r := range runs {
		if now.Sub(r.Timestamp) > stabilityWindow {
			continue
		}
		switch r.Status {
		case models.StatusPassed:
			total++
		case models.StatusFailed, models.StatusError:
			total++
			failed++
		}
	}
	if total == 0 {
		return 0
	}
	return clamp(float64(failed)/float64(total)*2, 0, 1)
}

func businessPriority(scenario *models.Scenario) float64 {
	if scenario == nil {
		return 0.6
	}
	switch scenario.PriorityHint {
	case models.PriorityCritical:
		return 1.0
	case models.PriorityHigh:
		return 0.8
	case models.PriorityLow:
		return 0.4
	default:
		return 0.6
	}
}

func keywordFactor(failure models.TestFailure, scenario *models.Scenario, keywords []string, hit, miss float64) float64 {
	if matchesKeywords(failure, scenario, keywords) {
		return hit
	}
	return miss
}

func performanceImpact(failure models.TestFailure, scenario *models.Scenario) float64 {
	if matchesKeywords(failure, nil, performanceKeywords) {
		return 0.9
	}
	if scenario != nil && (scenario.HasTag("performance") || scenario.HasTag("perf")) {
		return 0.8
	}
	return 0.3
}

// regressionDetection: a scenario that passed within the last 30 days and
// fails now likely regressed.
func regressionDetection(runs []models.RunRecord, now time.Time) float64 {
	for _, r := range runs {
		if r.Status == models.StatusPassed && now.Sub(r.Timestamp) <= regressionWindow {
			return 0.9
		}
	}
	return 0.4
}

// fixEffort estimates hours to fix: base 2, scaled up for UI and mixed
// surfaces and by how severe and unstable the failure is. One decimal.
func fixEffort(kind string, severity, stability float64) float64 {
	effort := 2.0
	switch kind {
	case "ui":
		effort *= 1.5
	case "mixed":
		effort *= 1.3
	}
	effort *= 1 + severity
	effort *= 1 + stability
	return round1(effort)
}

func matchesKeywords(failure models.TestFailure, scenario *models.Scenario, keywords []string) bool {
	msg := strings.ToLower(failure.Message)
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return true
		}
		if scenario != nil {
			for _, tag := range scenario.Tags {
				if strings.Contains(strings.ToLower(tag), kw) {
					return true
				}
			}
		}
	}
	return false
}

// topFactors lists the n factor names with the largest weighted
// contribution, ties broken alphabetically for stable reasoning output.
func topFactors(factors, weights map[string]float64, n int) []string {
	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci := factors[names[i]] * weights[names[i]]
		cj := factors[names[j]] * weights[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
