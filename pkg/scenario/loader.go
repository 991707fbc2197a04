// Package scenario loads scenario documents from YAML: read, environment
// expansion, parse, validate, plus the enabled/tag filtering the front-end
// commands apply. Unknown YAML fields are ignored; unknown step actions
// surface at execution time, not here.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
)

var (
	// ErrNotFound indicates the named scenario path does not exist.
	ErrNotFound = errors.New("scenario path not found")

	// ErrNoScenarios indicates a directory scan found no scenario files.
	ErrNoScenarios = errors.New("no scenario files found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrInvalidScenario indicates a parsed document fails validation.
	ErrInvalidScenario = errors.New("invalid scenario")
)

// LoadError wraps scenario loading errors with file context.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads scenarios from path: a single YAML file, or every *.yaml and
// *.yml file directly under a directory, in file-name order. Every loaded
// scenario passes basic validation; strict checks are a separate pass.
func Load(path string) ([]*models.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	if info.IsDir() {
		return loadDir(path)
	}
	return LoadFile(path)
}

// LoadFile reads one YAML file. A file may hold a single scenario document
// or several separated by ---; empty documents are skipped.
func LoadFile(path string) ([]*models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %s", ErrNotFound, path)}
		}
		return nil, &LoadError{File: path, Err: err}
	}

	data = config.ExpandEnv(data)

	var scenarios []*models.Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var sc models.Scenario
		if err := dec.Decode(&sc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
		}
		if isEmptyDocument(&sc) {
			continue
		}
		if err := Validate(&sc); err != nil {
			return nil, &LoadError{File: path, Err: err}
		}
		scenarios = append(scenarios, &sc)
	}

	slog.Debug("Scenario file loaded", "path", path, "scenarios", len(scenarios))
	return scenarios, nil
}

// loadDir loads every scenario file directly under dir. Subdirectories are
// not descended into; suites nest by invocation, not by tree walking.
func loadDir(dir string) ([]*models.Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no *.yaml or *.yml files under %s", ErrNoScenarios, dir)
	}
	sort.Strings(files)

	var scenarios []*models.Scenario
	for _, file := range files {
		loaded, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, loaded...)
	}
	return scenarios, nil
}

// isEmptyDocument reports whether a decoded document carries nothing, as
// produced by comment-only documents or stray --- separators.
func isEmptyDocument(sc *models.Scenario) bool {
	return sc.ID == "" && sc.Name == "" && len(sc.Steps) == 0 &&
		len(sc.Verifications) == 0 && len(sc.Agents) == 0
}
