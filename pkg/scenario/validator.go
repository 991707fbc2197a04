package scenario

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentic-hq/agentic/pkg/models"
)

// Validate checks the fields every command needs before a scenario can run:
// an id, steps with actions, agent declarations that name known types, and
// non-negative budgets. Loading applies this automatically.
func Validate(sc *models.Scenario) error {
	if strings.TrimSpace(sc.ID) == "" {
		return fmt.Errorf("%w: missing id (name %q)", ErrInvalidScenario, sc.Name)
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: scenario %q has no steps", ErrInvalidScenario, sc.ID)
	}
	for i, step := range sc.Steps {
		if strings.TrimSpace(step.Action) == "" {
			return fmt.Errorf("%w: scenario %q step %d has no action", ErrInvalidScenario, sc.ID, i+1)
		}
	}
	for i, step := range sc.Cleanup {
		if strings.TrimSpace(step.Action) == "" {
			return fmt.Errorf("%w: scenario %q cleanup step %d has no action", ErrInvalidScenario, sc.ID, i+1)
		}
	}
	for role, spec := range sc.Agents {
		if !spec.Type.IsValid() {
			return fmt.Errorf("%w: scenario %q agent %q has unknown type %q", ErrInvalidScenario, sc.ID, role, spec.Type)
		}
	}
	if sc.TimeoutMs < 0 {
		return fmt.Errorf("%w: scenario %q has negative timeoutMs", ErrInvalidScenario, sc.ID)
	}
	if sc.Retries != nil && *sc.Retries < 0 {
		return fmt.Errorf("%w: scenario %q has negative retries", ErrInvalidScenario, sc.ID)
	}
	for i, step := range sc.Steps {
		if step.TimeoutMs < 0 {
			return fmt.Errorf("%w: scenario %q step %d has negative timeoutMs", ErrInvalidScenario, sc.ID, i+1)
		}
	}
	return nil
}

// ValidateStrict layers verification sanity on top of Validate: every
// verification needs a type and target, operators must be known, matches
// patterns must compile the way the evaluator compiles them, and numeric
// comparisons need numeric expected values.
func ValidateStrict(sc *models.Scenario) error {
	if err := Validate(sc); err != nil {
		return err
	}
	for i, v := range sc.Verifications {
		if strings.TrimSpace(v.Type) == "" {
			return fmt.Errorf("%w: scenario %q verification %d has no type", ErrInvalidScenario, sc.ID, i+1)
		}
		if strings.TrimSpace(v.Target) == "" {
			return fmt.Errorf("%w: scenario %q verification %d has no target", ErrInvalidScenario, sc.ID, i+1)
		}
		switch v.Operator {
		case "", models.OperatorEquals, models.OperatorContains, models.OperatorExists:
		case models.OperatorMatches:
			// Compiled with (?i) at evaluation time; validate the same form.
			if _, err := regexp.Compile("(?i)" + v.Expected); err != nil {
				return fmt.Errorf("%w: scenario %q verification %d pattern %q does not compile: %v",
					ErrInvalidScenario, sc.ID, i+1, v.Expected, err)
			}
		case models.OperatorGreaterThan, models.OperatorLessThan:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v.Expected), 64); err != nil {
				return fmt.Errorf("%w: scenario %q verification %d expects numeric value, got %q",
					ErrInvalidScenario, sc.ID, i+1, v.Expected)
			}
		default:
			return fmt.Errorf("%w: scenario %q verification %d has unknown operator %q",
				ErrInvalidScenario, sc.ID, i+1, v.Operator)
		}
	}
	return nil
}
