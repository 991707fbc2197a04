package models

import "time"

// Priority classifies a failure's impact tier.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// PriorityFromScore maps an impact score in [0,100] to a tier.
// Thresholds: >=80 critical, >=60 high, >=40 medium, else low.
func PriorityFromScore(score float64) Priority {
	switch {
	case score >= 80:
		return PriorityCritical
	case score >= 60:
		return PriorityHigh
	case score >= 40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Rank orders priorities for sorting; lower is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// PriorityAssignment is the triage pipeline's verdict on one failure.
type PriorityAssignment struct {
	ScenarioID              string             `json:"scenarioId"`
	Priority                Priority           `json:"priority"`
	ImpactScore             float64            `json:"impactScore"`
	Confidence              float64            `json:"confidence"`
	Timestamp               time.Time          `json:"timestamp"`
	Reasoning               []string           `json:"reasoning,omitempty"`
	Factors                 map[string]float64 `json:"factors,omitempty"`
	EstimatedFixEffortHours float64            `json:"estimatedFixEffortHours"`
}

// FlakyAction is the recommended response to a flaky scenario.
type FlakyAction string

const (
	FlakyActionMonitor     FlakyAction = "monitor"
	FlakyActionStabilize   FlakyAction = "stabilize"
	FlakyActionInvestigate FlakyAction = "investigate"
	FlakyActionQuarantine  FlakyAction = "quarantine"
)

// ResultWindow bounds the historical results a flaky verdict was computed from.
type ResultWindow struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	TotalRuns int       `json:"totalRuns"`
}

// FlakyResult reports one scenario whose flakiness score crossed the
// configured threshold.
type FlakyResult struct {
	ScenarioID        string       `json:"scenarioId"`
	FlakinessScore    float64      `json:"flakinessScore"`
	FailureRate       float64      `json:"failureRate"`
	FlipCount         int          `json:"flipCount"`
	Window            ResultWindow `json:"window"`
	RecommendedAction FlakyAction  `json:"recommendedAction"`
}

// RunRecord is one historical scenario outcome fed to flaky detection and
// the stability/regression factors.
type RunRecord struct {
	ScenarioID string    `json:"scenarioId"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// FailurePattern is a recurring failure signature extracted from a batch of
// failures: a normalized message group, a category group, or a time cluster.
type FailurePattern struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Count       int       `json:"count"`
	ScenarioIDs []string  `json:"scenarioIds"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}
