package models

import "time"

// Status is the outcome of a step, a verification, or a whole scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status counts against a scenario's success.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusError
}

// StepResult records the outcome of one step. StepIndex always equals the
// step's position in the scenario's step list.
type StepResult struct {
	StepIndex      int    `json:"stepIndex"`
	Action         string `json:"action"`
	Status         Status `json:"status"`
	DurationMs     int64  `json:"durationMs"`
	ActualResult   string `json:"actualResult,omitempty"`
	Error          string `json:"error,omitempty"`
	ScreenshotPath string `json:"screenshotPath,omitempty"`
}

// TestResult aggregates one scenario attempt: the step results in execution
// order, any failures captured along the way, and timing. DurationMs is
// always EndTime minus StartTime in milliseconds.
type TestResult struct {
	ScenarioID   string         `json:"scenarioId"`
	ScenarioName string         `json:"scenarioName,omitempty"`
	Status       Status         `json:"status"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      time.Time      `json:"endTime"`
	DurationMs   int64          `json:"durationMs"`
	StepResults  []StepResult   `json:"stepResults"`
	Failures     []TestFailure  `json:"failures,omitempty"`
	Screenshots  []string       `json:"screenshots,omitempty"`
	Retries      int            `json:"retries"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Finalize stamps EndTime and derives Status and DurationMs from the step
// results when the caller has not already set a terminal status.
func (r *TestResult) Finalize(end time.Time) {
	r.EndTime = end
	r.DurationMs = end.Sub(r.StartTime).Milliseconds()
	if r.Status != "" {
		return
	}
	r.Status = StatusPassed
	for _, sr := range r.StepResults {
		if sr.Status == StatusError {
			r.Status = StatusError
			return
		}
		if sr.Status == StatusFailed {
			r.Status = StatusFailed
		}
	}
}

// TestFailure is the triage pipeline's view of one failure.
type TestFailure struct {
	ScenarioID   string            `json:"scenarioId"`
	ScenarioName string            `json:"scenarioName,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Message      string            `json:"message"`
	Category     string            `json:"category,omitempty"`
	FailedStep   *int              `json:"failedStep,omitempty"`
	StackTrace   string            `json:"stackTrace,omitempty"`
	Logs         []string          `json:"logs,omitempty"`
	Screenshots  []string          `json:"screenshots,omitempty"`
	IsKnownIssue bool              `json:"isKnownIssue,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
