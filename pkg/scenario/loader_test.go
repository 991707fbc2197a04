package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/models"
)

func writeScenarioFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func scenarioIDs(scenarios []*models.Scenario) []string {
	out := make([]string, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, sc.ID)
	}
	return out
}

func TestLoadFileSingleScenario(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "login.yaml", `
id: login-flow
name: Login flow
tags: [auth, smoke]
agents:
  main:
    type: api
    config:
      baseURL: https://app.example.com
steps:
  - action: post
    target: /api/login
    value: '{"user":"admin"}'
  - action: get
    target: /api/profile
verifications:
  - type: response
    target: body.user
    expected: admin
cleanup:
  - action: post
    target: /api/logout
`)

	scenarios, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	sc := scenarios[0]
	assert.Equal(t, "login-flow", sc.ID)
	assert.Equal(t, "Login flow", sc.Name)
	assert.True(t, sc.HasTag("smoke"))
	assert.True(t, sc.IsEnabled())
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, "post", sc.Steps[0].Action)
	assert.Equal(t, "/api/login", sc.Steps[0].Target)
	require.Len(t, sc.Cleanup, 1)
	require.Contains(t, sc.Agents, "main")
	assert.Equal(t, models.AgentTypeAPI, sc.Agents["main"].Type)
	assert.Equal(t, "https://app.example.com", sc.Agents["main"].Config["baseURL"])
}

func TestLoadFileMultiDocument(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "suite.yaml", `
id: first
steps:
  - action: get
    target: /one
---
# A comment-only document is skipped, not an error.
---
id: second
steps:
  - action: get
    target: /two
`)

	scenarios, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, scenarioIDs(scenarios))
}

func TestLoadFileExpandsEnvironment(t *testing.T) {
	t.Setenv("SCENARIO_HOST", "https://staging.example.com")
	path := writeScenarioFile(t, t.TempDir(), "env.yaml", `
id: env-expansion
steps:
  - action: get
    target: "{{.SCENARIO_HOST}}/healthz"
`)

	scenarios, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "https://staging.example.com/healthz", scenarios[0].Steps[0].Target)
}

func TestLoadFileIgnoresUnknownFields(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "extra.yaml", `
id: forward-compatible
futureKnob: 42
steps:
  - action: get
    target: /
    someday: maybe
`)

	scenarios, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "forward-compatible", scenarios[0].ID)
}

func TestLoadFileInvalidYAML(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "broken.yaml", "id: [not closed")

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, path, loadErr.File)
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "missing id",
			content: "name: anonymous\nsteps:\n  - action: get\n",
			wantMsg: "missing id",
		},
		{
			name:    "no steps",
			content: "id: hollow\n",
			wantMsg: "has no steps",
		},
		{
			name:    "step without action",
			content: "id: blank-step\nsteps:\n  - target: /x\n",
			wantMsg: "step 1 has no action",
		},
		{
			name:    "cleanup without action",
			content: "id: blank-cleanup\nsteps:\n  - action: get\ncleanup:\n  - target: /x\n",
			wantMsg: "cleanup step 1 has no action",
		},
		{
			name:    "unknown agent type",
			content: "id: exotic\nagents:\n  main:\n    type: quantum\nsteps:\n  - action: get\n",
			wantMsg: `unknown type "quantum"`,
		},
		{
			name:    "negative retries",
			content: "id: pessimist\nretries: -1\nsteps:\n  - action: get\n",
			wantMsg: "negative retries",
		},
		{
			name:    "negative timeout",
			content: "id: hasty\ntimeoutMs: -5\nsteps:\n  - action: get\n",
			wantMsg: "negative timeoutMs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenarioFile(t, t.TempDir(), "bad.yaml", tt.content)
			_, err := LoadFile(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidScenario)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "20-second.yaml", "id: second\nsteps:\n  - action: get\n")
	writeScenarioFile(t, dir, "10-first.yml", "id: first\nsteps:\n  - action: get\n")
	writeScenarioFile(t, dir, "notes.txt", "not a scenario")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writeScenarioFile(t, filepath.Join(dir, "nested"), "30-hidden.yaml", "id: hidden\nsteps:\n  - action: get\n")

	scenarios, err := Load(dir)
	require.NoError(t, err)

	// File-name order, one level deep, non-YAML entries skipped.
	assert.Equal(t, []string{"first", "second"}, scenarioIDs(scenarios))
}

func TestLoadDirectoryWithoutScenarios(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "readme.md", "nothing here")

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoScenarios)
}

func TestLoadMissingPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilterApply(t *testing.T) {
	disabled := false
	scenarios := []*models.Scenario{
		{ID: "a", Tags: []string{"smoke"}},
		{ID: "b", Tags: []string{"regression"}, Enabled: &disabled},
		{ID: "c", Tags: []string{"smoke", "regression"}},
	}

	t.Run("default drops disabled", func(t *testing.T) {
		kept := Filter{}.Apply(scenarios)
		assert.Equal(t, []string{"a", "c"}, scenarioIDs(kept))
	})

	t.Run("include disabled", func(t *testing.T) {
		kept := Filter{IncludeDisabled: true}.Apply(scenarios)
		assert.Equal(t, []string{"a", "b", "c"}, scenarioIDs(kept))
	})

	t.Run("tag filter", func(t *testing.T) {
		kept := Filter{Tag: "regression", IncludeDisabled: true}.Apply(scenarios)
		assert.Equal(t, []string{"b", "c"}, scenarioIDs(kept))
	})

	t.Run("tag and enabled combine", func(t *testing.T) {
		kept := Filter{Tag: "regression"}.Apply(scenarios)
		assert.Equal(t, []string{"c"}, scenarioIDs(kept))
	})
}

func TestValidateStrict(t *testing.T) {
	base := func() *models.Scenario {
		return &models.Scenario{
			ID:    "strict",
			Steps: []models.Step{{Action: "get", Target: "/"}},
		}
	}

	t.Run("accepts complete verifications", func(t *testing.T) {
		sc := base()
		sc.Verifications = []models.Verification{
			{Type: "response", Target: "status", Operator: models.OperatorEquals, Expected: "200"},
			{Type: "response", Target: "body", Operator: models.OperatorMatches, Expected: `"ok":\s*true`},
			{Type: "response", Target: "body.count", Operator: models.OperatorGreaterThan, Expected: "3"},
			{Type: "response", Target: "body.token", Operator: models.OperatorExists},
		}
		assert.NoError(t, ValidateStrict(sc))
	})

	tests := []struct {
		name         string
		verification models.Verification
		wantMsg      string
	}{
		{
			name:         "missing type",
			verification: models.Verification{Target: "status"},
			wantMsg:      "has no type",
		},
		{
			name:         "missing target",
			verification: models.Verification{Type: "response"},
			wantMsg:      "has no target",
		},
		{
			name:         "unknown operator",
			verification: models.Verification{Type: "response", Target: "status", Operator: "approximately"},
			wantMsg:      `unknown operator "approximately"`,
		},
		{
			name:         "bad matches pattern",
			verification: models.Verification{Type: "response", Target: "body", Operator: models.OperatorMatches, Expected: "(["},
			wantMsg:      "does not compile",
		},
		{
			name:         "non-numeric comparison",
			verification: models.Verification{Type: "response", Target: "body.count", Operator: models.OperatorLessThan, Expected: "many"},
			wantMsg:      "expects numeric value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := base()
			sc.Verifications = []models.Verification{tt.verification}
			err := ValidateStrict(sc)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidScenario)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	t.Run("basic failures still surface", func(t *testing.T) {
		err := ValidateStrict(&models.Scenario{Name: "anonymous"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing id")
	})
}
