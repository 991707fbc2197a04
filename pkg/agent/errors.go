package agent

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors covering every failure kind an agent surfaces. Callers
// classify with errors.Is; step results carry the kind name via FormatError.
var (
	// ErrConfig indicates invalid or missing configuration at initialize.
	ErrConfig = errors.New("configuration error")

	// ErrInitialization indicates an external resource was unreachable.
	// Scenarios depending on the agent are skipped.
	ErrInitialization = errors.New("initialization failed")

	// ErrAction indicates an unsupported or malformed step action.
	ErrAction = errors.New("unsupported action")

	// ErrTimeout indicates a per-step or per-scenario deadline elapsed.
	// context.DeadlineExceeded classifies the same way.
	ErrTimeout = errors.New("operation timed out")

	// ErrTransport indicates an HTTP or process I/O failure.
	ErrTransport = errors.New("transport error")

	// ErrValidation indicates a verification evaluated to false with a
	// malformed input. Ordinary verification misses return false, not this.
	ErrValidation = errors.New("validation failed")

	// ErrNoResponse indicates a validation action ran before any request or
	// command produced a response.
	ErrNoResponse = errors.New("no response recorded")

	// ErrInvalidSchema indicates a JSON Schema string does not parse.
	ErrInvalidSchema = errors.New("schema does not parse")

	// ErrNotInitialized indicates Execute was called before Initialize.
	ErrNotInitialized = errors.New("agent not initialized")

	// ErrInvalidTransition indicates a lifecycle call from the wrong state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// NewActionError wraps ErrAction with the offending action verb.
func NewActionError(action string) error {
	return fmt.Errorf("%w: %q", ErrAction, action)
}

// Kind names the error class for logs, step results, and triage keyword
// matching. Unknown errors yield "".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAction):
		return "ActionError"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, ErrTransport):
		return "TransportError"
	case errors.Is(err, ErrNoResponse):
		return "NoResponseError"
	case errors.Is(err, ErrInvalidSchema):
		return "InvalidSchemaError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrInitialization):
		return "InitializationError"
	case errors.Is(err, ErrConfig):
		return "ConfigError"
	case errors.Is(err, ErrNotInitialized):
		return "NotInitialized"
	default:
		return ""
	}
}

// FormatError renders an error for a step result, prefixed with its kind
// ("TimeoutError: context deadline exceeded"). Unclassified errors render
// bare.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	if kind := Kind(err); kind != "" {
		return kind + ": " + err.Error()
	}
	return err.Error()
}
