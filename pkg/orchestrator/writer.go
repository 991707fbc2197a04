package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-hq/agentic/pkg/models"
)

// WriteSessionReport persists the session as pretty-printed JSON under dir,
// named after the session id. The directory is created if missing.
func WriteSessionReport(dir string, session *models.TestSession) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode session %s: %w", session.SessionID, err)
	}

	path := filepath.Join(dir, "session-"+session.SessionID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write session report: %w", err)
	}
	return path, nil
}

// writeReport writes the session report to the configured directory. Report
// writing is best-effort: a write failure is logged, never propagated.
func (o *Orchestrator) writeReport(session *models.TestSession) {
	dir := "reports"
	if o.cfg.Reports != nil && o.cfg.Reports.Dir != "" {
		dir = o.cfg.Reports.Dir
	}

	path, err := WriteSessionReport(dir, session)
	if err != nil {
		o.log.Warn("Failed to write session report",
			"session_id", session.SessionID, "error", err)
		return
	}
	o.log.Info("Session report written", "path", path)
}
