package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentic-hq/agentic/pkg/models"
)

// EvaluateOperator applies a verification operator to an observed value.
// An empty operator means equals. matches compiles the expected value as a
// case-insensitive regular expression; greaterThan/lessThan parse both sides
// as floats. The returned error carries ErrValidation for malformed inputs;
// an ordinary miss is (false, nil).
func EvaluateOperator(op models.VerificationOperator, actual, expected string) (bool, error) {
	switch op {
	case models.OperatorEquals, "":
		return strings.TrimSpace(actual) == strings.TrimSpace(expected), nil
	case models.OperatorContains:
		return strings.Contains(actual, expected), nil
	case models.OperatorMatches:
		re, err := regexp.Compile("(?i)" + expected)
		if err != nil {
			return false, fmt.Errorf("%w: bad pattern %q: %v", ErrValidation, expected, err)
		}
		return re.MatchString(actual), nil
	case models.OperatorGreaterThan, models.OperatorLessThan:
		a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		e, errE := strconv.ParseFloat(strings.TrimSpace(expected), 64)
		if errA != nil || errE != nil {
			return false, fmt.Errorf("%w: non-numeric comparison of %q and %q", ErrValidation, actual, expected)
		}
		if op == models.OperatorGreaterThan {
			return a > e, nil
		}
		return a < e, nil
	case models.OperatorExists:
		return actual != "", nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrValidation, op)
	}
}

// CheckResult assembles a VerificationResult from an operator evaluation.
func CheckResult(v models.Verification, actual string, passed bool, err error) VerificationResult {
	vr := VerificationResult{
		Type:        v.Type,
		Target:      v.Target,
		Description: v.Description,
		Passed:      passed,
		Actual:      actual,
	}
	if err != nil {
		vr.Passed = false
		vr.Error = FormatError(err)
	}
	return vr
}
