package terminal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentic-hq/agentic/pkg/agent"
)

// ValidateOutput checks captured output against a polymorphic expectation:
//
//   - "regex:<pattern>"    case-insensitive regex test
//   - "contains:<text>"    substring test
//   - any other string     trimmed equality
//   - {type, value}        structured check (json, contains, not_contains,
//     starts_with, ends_with, length, empty, not_empty)
//
// An ordinary mismatch is (false, nil); malformed expectations carry
// ErrValidation.
func ValidateOutput(output string, expected any) (bool, error) {
	switch v := expected.(type) {
	case string:
		if pattern, ok := strings.CutPrefix(v, "regex:"); ok {
			re, err := regexp.Compile("(?i)" + strings.TrimSpace(pattern))
			if err != nil {
				return false, fmt.Errorf("%w: bad pattern %q: %v", agent.ErrValidation, pattern, err)
			}
			return re.MatchString(output), nil
		}
		if substr, ok := strings.CutPrefix(v, "contains:"); ok {
			return strings.Contains(output, strings.TrimSpace(substr)), nil
		}
		return strings.TrimSpace(output) == strings.TrimSpace(v), nil
	case map[string]any:
		return validateStructured(output, v)
	default:
		return false, fmt.Errorf("%w: unsupported expectation type %T", agent.ErrValidation, expected)
	}
}

func validateStructured(output string, check map[string]any) (bool, error) {
	typ, _ := check["type"].(string)
	value := check["value"]

	switch typ {
	case "json":
		var actual any
		if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &actual); err != nil {
			return false, nil
		}
		want, err := normalizeJSON(value)
		if err != nil {
			return false, fmt.Errorf("%w: expectation is not JSON-comparable: %v", agent.ErrValidation, err)
		}
		return reflect.DeepEqual(want, actual), nil
	case "contains":
		return strings.Contains(output, stringify(value)), nil
	case "not_contains":
		return !strings.Contains(output, stringify(value)), nil
	case "starts_with":
		return strings.HasPrefix(strings.TrimSpace(output), stringify(value)), nil
	case "ends_with":
		return strings.HasSuffix(strings.TrimSpace(output), stringify(value)), nil
	case "length":
		want, err := toInt(value)
		if err != nil {
			return false, fmt.Errorf("%w: length expects a number: %v", agent.ErrValidation, err)
		}
		return len(strings.TrimSpace(output)) == want, nil
	case "empty":
		return strings.TrimSpace(output) == "", nil
	case "not_empty":
		return strings.TrimSpace(output) != "", nil
	default:
		return false, fmt.Errorf("%w: unknown output check type %q", agent.ErrValidation, typ)
	}
}

// normalizeJSON round-trips a decoded YAML/JSON value through encoding/json
// so numeric types compare consistently with a parsed document.
func normalizeJSON(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func toInt(value any) (int, error) {
	switch n := value.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}
