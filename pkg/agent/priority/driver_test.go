package priority

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
)

func testConfig(t *testing.T) *config.TriageConfig {
	t.Helper()
	cfg := config.DefaultTriageConfig()
	cfg.HistoryPath = filepath.Join(t.TempDir(), "history.json")
	return cfg
}

func newTestDriver(t *testing.T, cfg *config.TriageConfig) *Driver {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	d, err := NewDriver(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, d.Open(context.Background()))
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestDriver_Analyze(t *testing.T) {
	t.Run("scores a bare failure", func(t *testing.T) {
		cfg := testConfig(t)
		d := newTestDriver(t, cfg)

		out, err := d.Dispatch(context.Background(), models.Step{
			Action: "analyze",
			Value:  `{"scenarioId":"checkout-flow","message":"fatal crash on submit"}`,
		})
		require.NoError(t, err)
		assert.Equal(t, "checkout-flow", gjson.Get(out, "scenarioId").String())
		assert.NotEmpty(t, gjson.Get(out, "priority").String())
		assert.Greater(t, gjson.Get(out, "impactScore").Float(), 0.0)
		assert.NotEmpty(t, gjson.Get(out, "reasoning").Array())

		_, err = os.Stat(cfg.HistoryPath)
		assert.NoError(t, err, "assignment should be persisted")
	})

	t.Run("scenario descriptor raises confidence", func(t *testing.T) {
		d := newTestDriver(t, nil)

		out, err := d.Dispatch(context.Background(), models.Step{
			Action: "analyze",
			Value: `{"failure": {"scenarioId":"login","message":"button not found"},
				"scenario": {"id":"login","name":"Login","agents":{"main":{"type":"ui"}}}}`,
		})
		require.NoError(t, err)
		assert.Greater(t, gjson.Get(out, "confidence").Float(), 0.6)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		d := newTestDriver(t, nil)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "analyze", Value: "not json"})
		require.ErrorIs(t, err, agent.ErrAction)

		_, err = d.Dispatch(context.Background(), models.Step{Action: "analyze", Value: `{"message":"orphan"}`})
		require.ErrorIs(t, err, agent.ErrAction)

		_, err = d.Dispatch(context.Background(), models.Step{Action: "analyze"})
		require.ErrorIs(t, err, agent.ErrAction)
	})
}

func TestDriver_Rank(t *testing.T) {
	d := newTestDriver(t, nil)

	out, err := d.Dispatch(context.Background(), models.Step{
		Action: "rank",
		Value: `[{"scenarioId":"payments","message":"fatal crash in gateway"},
			{"scenarioId":"footer","message":"minor glitch in footer"}]`,
	})
	require.NoError(t, err)

	ranked := gjson.Parse(out).Array()
	require.Len(t, ranked, 2)
	assert.Equal(t, "payments", ranked[0].Get("scenarioId").String(),
		"the crash should outrank the glitch")
	assert.Greater(t, ranked[0].Get("impactScore").Float(), ranked[1].Get("impactScore").Float())

	_, err = d.Dispatch(context.Background(), models.Step{Action: "rank", Value: "[]"})
	require.ErrorIs(t, err, agent.ErrAction)
}

func TestDriver_DetectFlaky(t *testing.T) {
	d := newTestDriver(t, nil)

	statuses := []string{"passed", "failed", "passed", "failed", "passed", "failed"}
	for _, status := range statuses {
		_, err := d.Dispatch(context.Background(), models.Step{
			Action: "record_result", Target: "flappy", Value: status,
		})
		require.NoError(t, err)
	}
	for i := 0; i < 6; i++ {
		_, err := d.Dispatch(context.Background(), models.Step{
			Action: "record_result", Target: "steady", Value: "passed",
		})
		require.NoError(t, err)
	}

	t.Run("single scenario", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), models.Step{Action: "detect_flaky", Target: "flappy"})
		require.NoError(t, err)
		assert.InDelta(t, 0.7, gjson.Get(out, "flakinessScore").Float(), 0.01)
		assert.Equal(t, "flappy", gjson.Get(out, "scenarioId").String())
		assert.NotEmpty(t, gjson.Get(out, "recommendedAction").String())
	})

	t.Run("all scenarios", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), models.Step{Action: "detect_flaky"})
		require.NoError(t, err)

		results := gjson.Parse(out).Array()
		require.Len(t, results, 1, "the steady scenario must not be reported")
		assert.Equal(t, "flappy", results[0].Get("scenarioId").String())
	})

	t.Run("insufficient history", func(t *testing.T) {
		_, err := d.Dispatch(context.Background(), models.Step{Action: "detect_flaky", Target: "unknown"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient run history")
	})
}

func TestDriver_FixOrder(t *testing.T) {
	t.Run("orders session assignments", func(t *testing.T) {
		d := newTestDriver(t, nil)

		for _, payload := range []string{
			`{"scenarioId":"mild","message":"minor glitch"}`,
			`{"scenarioId":"severe","message":"fatal crash with data loss"}`,
		} {
			_, err := d.Dispatch(context.Background(), models.Step{Action: "analyze", Value: payload})
			require.NoError(t, err)
		}

		out, err := d.Dispatch(context.Background(), models.Step{Action: "fix_order"})
		require.NoError(t, err)

		ordered := gjson.Parse(out).Array()
		require.Len(t, ordered, 2)
		assert.Equal(t, "severe", ordered[0].Get("scenarioId").String())
	})

	t.Run("orders an explicit assignment list", func(t *testing.T) {
		d := newTestDriver(t, nil)

		out, err := d.Dispatch(context.Background(), models.Step{
			Action: "fix_order",
			Value: `[{"scenarioId":"low","priority":"low","impactScore":20,"estimatedFixEffortHours":1},
				{"scenarioId":"crit","priority":"critical","impactScore":90,"estimatedFixEffortHours":8}]`,
		})
		require.NoError(t, err)

		ordered := gjson.Parse(out).Array()
		require.Len(t, ordered, 2)
		assert.Equal(t, "crit", ordered[0].Get("scenarioId").String())
	})

	t.Run("nothing to order", func(t *testing.T) {
		d := newTestDriver(t, nil)
		_, err := d.Dispatch(context.Background(), models.Step{Action: "fix_order"})
		require.ErrorIs(t, err, agent.ErrNoResponse)
	})
}

func TestDriver_RecordResult(t *testing.T) {
	d := newTestDriver(t, nil)

	_, err := d.Dispatch(context.Background(), models.Step{
		Action: "record_result",
		Value:  `{"scenarioId":"checkout-flow","status":"FAILED"}`,
	})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), models.Step{
		Action: "record_result", Target: "checkout-flow", Value: "passed",
	})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), models.Step{
		Action: "record_result", Target: "checkout-flow", Value: "meandering",
	})
	require.ErrorIs(t, err, agent.ErrAction)

	_, err = d.Dispatch(context.Background(), models.Step{Action: "record_result"})
	require.ErrorIs(t, err, agent.ErrAction)
}

func TestDriver_Check(t *testing.T) {
	d := newTestDriver(t, nil)

	t.Run("before any step", func(t *testing.T) {
		vr := d.Check(context.Background(), models.Verification{Target: "priority"})
		assert.False(t, vr.Passed)
		assert.Contains(t, vr.Error, "NoResponseError")
	})

	t.Run("after an analysis", func(t *testing.T) {
		_, err := d.Dispatch(context.Background(), models.Step{
			Action: "analyze",
			Value:  `{"scenarioId":"checkout-flow","message":"fatal crash on submit"}`,
		})
		require.NoError(t, err)

		vr := d.Check(context.Background(), models.Verification{Target: "priority", Operator: "exists"})
		assert.True(t, vr.Passed)

		vr = d.Check(context.Background(), models.Verification{
			Target: "impactScore", Operator: "greaterThan", Expected: "0",
		})
		assert.True(t, vr.Passed)
	})
}

func TestNew_ThroughFactory(t *testing.T) {
	factory := agent.NewFactory()
	factory.Register(models.AgentTypePriority, New(testConfig(t)))

	a, err := factory.Create(models.AgentSpec{Type: models.AgentTypePriority})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))
	t.Cleanup(func() { _ = a.Cleanup(context.Background()) })

	result, err := a.Execute(context.Background(), &models.Scenario{
		ID:   "priority-smoke",
		Name: "Priority smoke",
		Steps: []models.Step{
			{Action: "analyze", Value: `{"scenarioId":"checkout-flow","message":"fatal crash on submit"}`},
		},
		Verifications: []models.Verification{
			{Target: "impactScore", Operator: "greaterThan", Expected: "0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPassed, result.Status)
}

func TestNewDriver_Overrides(t *testing.T) {
	base := testConfig(t)

	d, err := NewDriver(base, map[string]string{
		"historyPath":    "/tmp/elsewhere.json",
		"flakyThreshold": "0.5",
		"minSamples":     "3",
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere.json", d.cfg.HistoryPath)
	assert.InDelta(t, 0.5, d.cfg.FlakyThreshold, 0.001)
	assert.Equal(t, 3, d.cfg.MinSamplesForTrends)
	assert.InDelta(t, 0.3, base.FlakyThreshold, 0.001, "base configuration must stay untouched")

	_, err = NewDriver(base, map[string]string{"flakyThreshold": "1.5"})
	require.ErrorIs(t, err, agent.ErrConfig)

	_, err = NewDriver(base, map[string]string{"minSamples": "zero"})
	require.ErrorIs(t, err, agent.ErrConfig)
}
