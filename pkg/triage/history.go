package triage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/agentic-hq/agentic/pkg/models"
)

// DefaultHistoryFile is used when no history path is configured; it is
// resolved against the working directory.
const DefaultHistoryFile = ".priority-history.json"

// HistoryStore holds triage history. Priority assignments persist to a JSON
// file shaped scenarioID -> []PriorityAssignment; run records feed the
// stability and flakiness computations and live for the process lifetime
// only. All writes are serialised by the store's mutex.
type HistoryStore struct {
	path string
	log  *slog.Logger

	mu          sync.Mutex
	assignments map[string][]models.PriorityAssignment
	runs        map[string][]models.RunRecord
}

// NewHistoryStore creates a store backed by the given file. An empty path
// resolves to .priority-history.json in the working directory.
func NewHistoryStore(path string) *HistoryStore {
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = filepath.Join(cwd, DefaultHistoryFile)
		} else {
			path = DefaultHistoryFile
		}
	}
	return &HistoryStore{
		path:        path,
		log:         slog.With("component", "priority_history"),
		assignments: make(map[string][]models.PriorityAssignment),
		runs:        make(map[string][]models.RunRecord),
	}
}

// Path returns the backing file location.
func (s *HistoryStore) Path() string {
	return s.path
}

// Load reads persisted assignments. A missing file is an empty history.
func (s *HistoryStore) Load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read priority history %s: %w", s.path, err)
	}
	loaded := make(map[string][]models.PriorityAssignment)
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("failed to parse priority history %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.assignments = loaded
	s.mu.Unlock()
	return nil
}

// AddAssignment appends one assignment and persists the history.
func (s *HistoryStore) AddAssignment(a models.PriorityAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ScenarioID] = append(s.assignments[a.ScenarioID], a)
	return s.save()
}

// Assignments returns the recorded assignments for one scenario.
func (s *HistoryStore) Assignments(scenarioID string) []models.PriorityAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PriorityAssignment, len(s.assignments[scenarioID]))
	copy(out, s.assignments[scenarioID])
	return out
}

// AssignmentCount returns how many assignments a scenario has accumulated.
func (s *HistoryStore) AssignmentCount(scenarioID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assignments[scenarioID])
}

// AddRun records one scenario outcome.
func (s *HistoryStore) AddRun(r models.RunRecord) {
	if r.ScenarioID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ScenarioID] = append(s.runs[r.ScenarioID], r)
}

// Runs returns the recorded outcomes for one scenario in insertion order.
func (s *HistoryStore) Runs(scenarioID string) []models.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RunRecord, len(s.runs[scenarioID]))
	copy(out, s.runs[scenarioID])
	return out
}

// ScenarioIDs returns every scenario with recorded runs, sorted for
// deterministic iteration.
func (s *HistoryStore) ScenarioIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// save persists assignments. Callers hold the mutex.
func (s *HistoryStore) save() error {
	raw, err := json.MarshalIndent(s.assignments, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode priority history: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create history directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write priority history %s: %w", s.path, err)
	}
	return nil
}
