package triage

import (
	"sort"

	"github.com/agentic-hq/agentic/pkg/models"
)

// flakyActionFor maps a flakiness score to the recommended response.
func flakyActionFor(score float64) models.FlakyAction {
	switch {
	case score >= 0.7:
		return models.FlakyActionQuarantine
	case score >= 0.5:
		return models.FlakyActionInvestigate
	case score >= 0.3:
		return models.FlakyActionStabilize
	default:
		return models.FlakyActionMonitor
	}
}

// DetectFlaky scans recorded run history for scenarios whose outcomes
// alternate. A scenario needs at least MinSamplesForTrends terminal results;
// the score blends overall failure rate (0.6) with the flip rate between
// adjacent runs (0.4). Scenarios at or above the configured threshold are
// returned, most flaky first.
func (a *Analyzer) DetectFlaky() []models.FlakyResult {
	var results []models.FlakyResult
	for _, scenarioID := range a.store.ScenarioIDs() {
		if r, ok := a.flakiness(scenarioID); ok {
			results = append(results, r)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FlakinessScore != results[j].FlakinessScore {
			return results[i].FlakinessScore > results[j].FlakinessScore
		}
		return results[i].ScenarioID < results[j].ScenarioID
	})
	return results
}

// Flakiness computes the verdict for one scenario. ok is false when the
// scenario lacks enough samples or scores below the configured threshold.
func (a *Analyzer) Flakiness(scenarioID string) (models.FlakyResult, bool) {
	r, ok := a.flakiness(scenarioID)
	if !ok {
		return models.FlakyResult{}, false
	}
	return r, true
}

func (a *Analyzer) flakiness(scenarioID string) (models.FlakyResult, bool) {
	runs := terminalRuns(a.store.Runs(scenarioID))
	if len(runs) < a.cfg.MinSamplesForTrends {
		return models.FlakyResult{}, false
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})

	n := len(runs)
	var failures, flips int
	for i, r := range runs {
		if r.Status != models.StatusPassed {
			failures++
		}
		if i > 0 && passed(runs[i-1]) != passed(r) {
			flips++
		}
	}
	failureRate := float64(failures) / float64(n)
	flipRate := float64(flips) / float64(n-1)
	score := 0.6*failureRate + 0.4*flipRate

	if score < a.cfg.FlakyThreshold {
		return models.FlakyResult{}, false
	}
	return models.FlakyResult{
		ScenarioID:     scenarioID,
		FlakinessScore: round2(score),
		FailureRate:    round2(failureRate),
		FlipCount:      flips,
		Window: models.ResultWindow{
			StartDate: runs[0].Timestamp,
			EndDate:   runs[n-1].Timestamp,
			TotalRuns: n,
		},
		RecommendedAction: flakyActionFor(score),
	}, true
}

// terminalRuns drops skipped entries; only pass/fail/error outcomes say
// anything about stability.
func terminalRuns(runs []models.RunRecord) []models.RunRecord {
	out := runs[:0:0]
	for _, r := range runs {
		switch r.Status {
		case models.StatusPassed, models.StatusFailed, models.StatusError:
			out = append(out, r)
		}
	}
	return out
}

func passed(r models.RunRecord) bool {
	return r.Status == models.StatusPassed
}
