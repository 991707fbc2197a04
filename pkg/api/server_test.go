package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/orchestrator"
)

// testServer backs the API with stub agents that pass every step.
func testServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), "")
	require.NoError(t, err)
	cfg.Execution.MaxParallel = 2
	cfg.Reports.Dir = t.TempDir()

	factory := agent.NewFactory()
	for _, at := range models.ValidAgentTypes {
		factory.Register(at, func(spec models.AgentSpec) (agent.Agent, error) {
			return agent.NewBaseAgent(&agent.StubDriver{AgentType: spec.Type}), nil
		})
	}
	return NewServer(cfg, orchestrator.New(cfg, factory))
}

// startExecutor runs the queue consumer for the duration of the test.
func startExecutor(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.runLoop(ctx)
}

func postRun(t *testing.T, router http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, router http.Handler, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

// waitForRun polls until the run reaches a terminal state.
func waitForRun(t *testing.T, router http.Handler, id string) Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var run Run
		code := getJSON(t, router, "/api/v1/runs/"+id, &run)
		require.Equal(t, http.StatusOK, code)
		if run.State.terminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never finished", id)
	return Run{}
}

func inlineScenarios(ids ...string) []*models.Scenario {
	out := make([]*models.Scenario, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.Scenario{
			ID:     id,
			Agents: map[string]models.AgentSpec{"main": {Type: models.AgentTypeAPI}},
			Steps:  []models.Step{{Action: "noop"}},
		})
	}
	return out
}

func TestHealthz(t *testing.T) {
	router := testServer(t).Router()

	var body map[string]string
	code := getJSON(t, router, "/healthz", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body["version"], "agentic/")
}

func TestCreateRunExecutesBatch(t *testing.T) {
	srv := testServer(t)
	startExecutor(t, srv)
	router := srv.Router()

	rec := postRun(t, router, CreateRunRequest{Scenarios: inlineScenarios("a", "b")})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, RunStatePending, accepted.State)
	assert.Equal(t, []string{"a", "b"}, accepted.ScenarioIDs)

	run := waitForRun(t, router, accepted.ID)
	assert.Equal(t, RunStateFinished, run.State)
	require.NotNil(t, run.Session)
	assert.Equal(t, models.SessionSummary{Total: 2, Passed: 2}, run.Session.Summary)
}

func TestCreateRunFromPath(t *testing.T) {
	srv := testServer(t)
	startExecutor(t, srv)
	router := srv.Router()

	dir := t.TempDir()
	content := "id: from-file\nagents:\n  main:\n    type: api\nsteps:\n  - action: noop\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.yaml"), []byte(content), 0o644))

	rec := postRun(t, router, CreateRunRequest{Path: dir})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, []string{"from-file"}, accepted.ScenarioIDs)

	run := waitForRun(t, router, accepted.ID)
	assert.Equal(t, RunStateFinished, run.State)
}

func TestCreateRunValidation(t *testing.T) {
	router := testServer(t).Router()

	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{
			name:    "neither path nor scenarios",
			body:    CreateRunRequest{},
			wantMsg: "either path or scenarios",
		},
		{
			name: "both path and scenarios",
			body: CreateRunRequest{
				Path:      "/tmp/x.yaml",
				Scenarios: inlineScenarios("a"),
			},
			wantMsg: "either path or scenarios",
		},
		{
			name:    "invalid inline scenario",
			body:    CreateRunRequest{Scenarios: []*models.Scenario{{Name: "anonymous"}}},
			wantMsg: "missing id",
		},
		{
			name:    "missing path",
			body:    CreateRunRequest{Path: "/nonexistent/scenarios"},
			wantMsg: "not found",
		},
		{
			name: "tag matches nothing",
			body: CreateRunRequest{
				Scenarios: inlineScenarios("a"),
				Tag:       "nightly",
			},
			wantMsg: "no enabled scenarios",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postRun(t, router, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestListRuns(t *testing.T) {
	srv := testServer(t)
	startExecutor(t, srv)
	router := srv.Router()

	first := postRun(t, router, CreateRunRequest{Scenarios: inlineScenarios("a")})
	require.Equal(t, http.StatusAccepted, first.Code)
	var firstRun Run
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstRun))
	waitForRun(t, router, firstRun.ID)

	second := postRun(t, router, CreateRunRequest{Scenarios: inlineScenarios("b")})
	require.Equal(t, http.StatusAccepted, second.Code)
	var secondRun Run
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondRun))
	waitForRun(t, router, secondRun.ID)

	var body struct {
		Runs []struct {
			RunID   string                 `json:"runId"`
			State   RunState               `json:"state"`
			Summary *models.SessionSummary `json:"summary"`
		} `json:"runs"`
	}
	code := getJSON(t, router, "/api/v1/runs", &body)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Runs, 2)

	// Newest first, session trimmed to its summary.
	assert.Equal(t, secondRun.ID, body.Runs[0].RunID)
	assert.Equal(t, firstRun.ID, body.Runs[1].RunID)
	require.NotNil(t, body.Runs[0].Summary)
	assert.Equal(t, 1, body.Runs[0].Summary.Passed)
}

func TestGetRunNotFound(t *testing.T) {
	router := testServer(t).Router()
	code := getJSON(t, router, "/api/v1/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCancelRun(t *testing.T) {
	// No executor: the run stays pending so cancellation is immediate.
	srv := testServer(t)
	router := srv.Router()

	rec := postRun(t, router, CreateRunRequest{Scenarios: inlineScenarios("a")})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var run Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+run.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, del)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), string(RunStateCancelled))

	// Cancelling a finished run conflicts.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+run.ID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown run is a 404.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	startExecutor(t, srv)
	router := srv.Router()

	rec := postRun(t, router, CreateRunRequest{Scenarios: inlineScenarios("a")})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var run Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	waitForRun(t, router, run.ID)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	scrape := httptest.NewRecorder()
	router.ServeHTTP(scrape, req)

	require.Equal(t, http.StatusOK, scrape.Code)
	body := scrape.Body.String()
	assert.Contains(t, body, "agentic_scenarios_total")
	assert.Contains(t, body, "agentic_session_duration_seconds")
	assert.Contains(t, body, fmt.Sprintf(`agentic_scenarios_total{status=%q} 1`, "passed"))
}