package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/terminal"
)

func newTerminalDriver(t *testing.T, agentType models.AgentType) *Driver {
	t.Helper()
	cfg := config.DefaultTerminalConfig()
	cfg.Shell = "sh"
	cfg.GracePeriodMs = 500
	d, err := NewDriver(agentType, cfg, terminal.NewRegistry(cfg.GracePeriod()), nil)
	require.NoError(t, err)
	require.NoError(t, d.Open(context.Background()))
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestDriver_Run(t *testing.T) {
	t.Run("captures output and exit code", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)

		out, err := d.Dispatch(context.Background(), models.Step{Action: "run", Target: "echo hello"})
		require.NoError(t, err)
		assert.Contains(t, out, "hello")

		actual, err := d.Dispatch(context.Background(), models.Step{Action: "validate_exit_code", Expected: "0"})
		require.NoError(t, err)
		assert.Equal(t, "0", actual)
	})

	t.Run("non-zero exit does not fail the step", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "run", Target: "exit 3"})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), models.Step{Action: "validate_exit_code", Expected: "3"})
		require.NoError(t, err)

		actual, err := d.Dispatch(context.Background(), models.Step{Action: "validate_exit_code", Expected: "0"})
		require.Error(t, err)
		assert.Equal(t, "3", actual)
	})

	t.Run("keeps stdout and stderr apart in pipe mode", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)

		_, err := d.Dispatch(context.Background(), models.Step{
			Action: "run",
			Target: "echo to-stdout; echo to-stderr 1>&2",
		})
		require.NoError(t, err)

		vr := d.Check(context.Background(), models.Verification{
			Type: "stdout", Expected: "to-stdout", Operator: models.OperatorContains,
		})
		assert.True(t, vr.Passed)

		vr = d.Check(context.Background(), models.Verification{
			Type: "stderr", Expected: "to-stderr", Operator: models.OperatorContains,
		})
		assert.True(t, vr.Passed)

		vr = d.Check(context.Background(), models.Verification{
			Type: "stdout", Expected: "to-stderr", Operator: models.OperatorContains,
		})
		assert.False(t, vr.Passed)
	})

	t.Run("empty command is malformed", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)
		_, err := d.Dispatch(context.Background(), models.Step{Action: "run"})
		require.ErrorIs(t, err, agent.ErrAction)
	})
}

func TestDriver_InteractiveSession(t *testing.T) {
	t.Run("spawn send expect", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "spawn", Target: "cat"})
		require.NoError(t, err)
		require.NotNil(t, d.Session())

		_, err = d.Dispatch(context.Background(), models.Step{Action: "send", Value: "ping-marker"})
		require.NoError(t, err)

		out, err := d.Dispatch(context.Background(), models.Step{
			Action: "expect", Value: "ping-marker", TimeoutMs: 5_000,
		})
		require.NoError(t, err)
		assert.Contains(t, out, "ping-marker")
	})

	t.Run("expect times out", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "spawn", Target: "sleep 30"})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), models.Step{
			Action: "expect", Value: "never-printed", TimeoutMs: 300,
		})
		require.ErrorIs(t, err, agent.ErrTimeout)
		assert.Equal(t, "TimeoutError", agent.Kind(err))
	})

	t.Run("second spawn while running is rejected", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "spawn", Target: "sleep 30"})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), models.Step{Action: "spawn", Target: "sleep 30"})
		require.ErrorIs(t, err, agent.ErrAction)
	})

	t.Run("kill tears the session down", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "spawn", Target: "sleep 60"})
		require.NoError(t, err)
		require.Equal(t, 1, d.registry.Len())

		_, err = d.Dispatch(context.Background(), models.Step{Action: "kill"})
		require.NoError(t, err)
		assert.Nil(t, d.Session())
		assert.Equal(t, 0, d.registry.Len())
	})

	t.Run("send without a session is rejected", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)
		_, err := d.Dispatch(context.Background(), models.Step{Action: "send", Value: "hello"})
		require.ErrorIs(t, err, agent.ErrAction)
	})
}

func TestDriver_ValidateOutput(t *testing.T) {
	d := newTerminalDriver(t, models.AgentTypeCLI)
	_, err := d.Dispatch(context.Background(), models.Step{Action: "run", Target: "printf 'hello world'"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		expected string
		wantErr  bool
	}{
		{"plain equality", "hello world", false},
		{"contains prefix", "contains:world", false},
		{"regex is case-insensitive", "regex:HELLO", false},
		{"structured length", `{"type":"length","value":11}`, false},
		{"structured starts_with", `{"type":"starts_with","value":"hello"}`, false},
		{"mismatch fails", "goodbye", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), models.Step{
				Action: "validate_output", Expected: tt.expected,
			})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}

	t.Run("malformed regex carries ValidationError", func(t *testing.T) {
		_, err := d.Dispatch(context.Background(), models.Step{
			Action: "validate_output", Expected: "regex:[unclosed",
		})
		require.ErrorIs(t, err, agent.ErrValidation)
	})
}

func TestDriver_TUI(t *testing.T) {
	t.Run("send_keys translates key names", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeTUI)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "spawn", Target: "cat"})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), models.Step{Action: "send_keys", Value: "abc space xyz enter"})
		require.NoError(t, err)

		out, err := d.Dispatch(context.Background(), models.Step{
			Action: "expect", Value: "abc xyz", TimeoutMs: 5_000,
		})
		require.NoError(t, err)
		assert.Contains(t, out, "abc xyz")
	})

	t.Run("resize adjusts the window", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeTUI)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "spawn", Target: "cat"})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), models.Step{Action: "resize", Value: "40x120"})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), models.Step{Action: "resize", Value: "huge"})
		require.ErrorIs(t, err, agent.ErrAction)
	})

	t.Run("tui actions are unknown to the cli variant", func(t *testing.T) {
		d := newTerminalDriver(t, models.AgentTypeCLI)

		_, err := d.Dispatch(context.Background(), models.Step{Action: "send_keys", Value: "enter"})
		require.ErrorIs(t, err, agent.ErrAction)

		_, err = d.Dispatch(context.Background(), models.Step{Action: "resize", Value: "40x120"})
		require.ErrorIs(t, err, agent.ErrAction)
	})
}

func TestDriver_ThroughBaseAgent(t *testing.T) {
	cfg := config.DefaultTerminalConfig()
	cfg.Shell = "sh"

	factory := agent.NewFactory()
	factory.Register(models.AgentTypeCLI, New(models.AgentTypeCLI, cfg, terminal.NewRegistry(time.Second)))

	a, err := factory.Create(models.AgentSpec{Type: models.AgentTypeCLI})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))
	t.Cleanup(func() { _ = a.Cleanup(context.Background()) })

	result, err := a.Execute(context.Background(), &models.Scenario{
		ID:   "cli-smoke",
		Name: "CLI smoke",
		Environment: map[string]string{
			"GREETING": "bonjour",
		},
		Steps: []models.Step{
			{Action: "run", Target: "echo $GREETING"},
			{Action: "validate_output", Expected: "contains:bonjour"},
			{Action: "validate_exit_code", Expected: "0"},
		},
		Verifications: []models.Verification{
			{Type: "output", Expected: "bonjour", Operator: models.OperatorContains},
			{Type: "exit_code", Expected: "0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPassed, result.Status)
	assert.Len(t, result.StepResults, 3)
}

func TestNewDriver_RejectsOtherTypes(t *testing.T) {
	_, err := NewDriver(models.AgentTypeAPI, nil, nil, nil)
	require.ErrorIs(t, err, agent.ErrConfig)
}
