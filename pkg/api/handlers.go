package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentic-hq/agentic/pkg/models"
	"github.com/agentic-hq/agentic/pkg/scenario"
	"github.com/agentic-hq/agentic/pkg/version"
)

// CreateRunRequest submits a batch: either a scenario path on the server
// host or inline scenario documents, with an optional tag filter.
type CreateRunRequest struct {
	Path      string             `json:"path,omitempty"`
	Tag       string             `json:"tag,omitempty"`
	Scenarios []*models.Scenario `json:"scenarios,omitempty"`
}

// runSummary is the list view: everything but the full session payload.
type runSummary struct {
	RunID       string                 `json:"runId"`
	State       RunState               `json:"state"`
	ScenarioIDs []string               `json:"scenarioIds"`
	SubmittedAt time.Time              `json:"submittedAt"`
	FinishedAt  *time.Time             `json:"finishedAt,omitempty"`
	Summary     *models.SessionSummary `json:"summary,omitempty"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Full()})
}

// createRun handles POST /api/v1/runs.
func (s *Server) createRun(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.Path == "") == (len(req.Scenarios) == 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide either path or scenarios, not both"})
		return
	}

	scenarios := req.Scenarios
	if req.Path != "" {
		loaded, err := scenario.Load(req.Path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		scenarios = loaded
	} else {
		for _, sc := range scenarios {
			if err := scenario.Validate(sc); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
	}

	scenarios = scenario.Filter{Tag: req.Tag}.Apply(scenarios)
	if len(scenarios) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no enabled scenarios matched the request"})
		return
	}

	run := s.store.Add(scenarios)
	if err := s.enqueue(run.ID); err != nil {
		_, _ = s.store.Cancel(run.ID)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	s.log.Info("Run accepted", "run_id", run.ID, "scenarios", len(scenarios))
	c.JSON(http.StatusAccepted, run)
}

// listRuns handles GET /api/v1/runs.
func (s *Server) listRuns(c *gin.Context) {
	runs := s.store.List()
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		item := runSummary{
			RunID:       run.ID,
			State:       run.State,
			ScenarioIDs: run.ScenarioIDs,
			SubmittedAt: run.SubmittedAt,
			FinishedAt:  run.FinishedAt,
		}
		if run.Session != nil {
			summary := run.Session.Summary
			item.Summary = &summary
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// getRun handles GET /api/v1/runs/:id.
func (s *Server) getRun(c *gin.Context) {
	run, err := s.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// cancelRun handles DELETE /api/v1/runs/:id. Cancelling a pending run is
// immediate; a running run drains through the orchestrator first.
func (s *Server) cancelRun(c *gin.Context) {
	run, err := s.store.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case errors.Is(err, ErrRunFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "run already finished", "state": run.State})
	default:
		s.log.Info("Run cancelled", "run_id", run.ID, "state", run.State)
		c.JSON(http.StatusAccepted, gin.H{"runId": run.ID, "state": run.State})
	}
}
