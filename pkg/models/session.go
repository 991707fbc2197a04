package models

import "time"

// SessionSummary counts scenario outcomes for one orchestrator session.
// Total always equals Passed+Failed+Error+Skipped.
type SessionSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Error   int `json:"error"`
	Skipped int `json:"skipped"`
}

// TestSession is the record of one orchestrator invocation: every scenario
// result plus the aggregate summary.
type TestSession struct {
	SessionID string         `json:"sessionId"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Results   []*TestResult  `json:"results"`
	Summary   SessionSummary `json:"summary"`
}

// Summarize recomputes the summary from the result list.
func (s *TestSession) Summarize() {
	sum := SessionSummary{Total: len(s.Results)}
	for _, r := range s.Results {
		switch r.Status {
		case StatusPassed:
			sum.Passed++
		case StatusFailed:
			sum.Failed++
		case StatusError:
			sum.Error++
		case StatusSkipped:
			sum.Skipped++
		}
	}
	s.Summary = sum
}

// AllPassed reports whether no scenario ended failed or errored. Skipped
// scenarios do not count against success.
func (s *TestSession) AllPassed() bool {
	return s.Summary.Failed == 0 && s.Summary.Error == 0
}
