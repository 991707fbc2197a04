package request

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/agentic-hq/agentic/pkg/agent"
)

// Validators check the most recent response. An ordinary mismatch is
// (false, nil); ErrNoResponse is returned when no request completed yet.

// ValidateStatus reports whether the last response carries the expected
// status code.
func (c *Client) ValidateStatus(expected int) (bool, error) {
	resp, ok := c.LastResponse()
	if !ok {
		return false, agent.ErrNoResponse
	}
	return resp.Status == expected, nil
}

// ValidateHeaders reports whether every expected header is present on the
// last response with the expected value. Header names compare
// case-insensitively.
func (c *Client) ValidateHeaders(expected map[string]string) (bool, error) {
	resp, ok := c.LastResponse()
	if !ok {
		return false, agent.ErrNoResponse
	}
	for name, want := range expected {
		got, found := headerValue(resp.Headers, name)
		if !found || got != want {
			return false, nil
		}
	}
	return true, nil
}

// ValidateBody checks the last response body against expected: when expected
// parses as JSON the parsed payloads must be deeply equal, otherwise the raw
// body must contain expected as a substring.
func (c *Client) ValidateBody(expected string) (bool, error) {
	resp, ok := c.LastResponse()
	if !ok {
		return false, agent.ErrNoResponse
	}
	var want any
	if err := json.Unmarshal([]byte(expected), &want); err == nil {
		return reflect.DeepEqual(want, resp.Data), nil
	}
	return strings.Contains(resp.Body, expected), nil
}

// ValidateSchema validates the last response body against a JSON Schema
// document. A schema that does not parse is ErrInvalidSchema; a body that is
// not JSON is an ordinary mismatch. Passes trivially when schema validation
// is disabled in configuration.
func (c *Client) ValidateSchema(schemaJSON string) (bool, error) {
	if !c.cfg.Validation.IsEnabled() {
		c.log.Debug("Schema validation disabled, skipping check")
		return true, nil
	}
	resp, ok := c.LastResponse()
	if !ok {
		return false, agent.ErrNoResponse
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return false, fmt.Errorf("%w: %v", agent.ErrInvalidSchema, err)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(resp.Body))
	if err != nil {
		c.log.Debug("Response body is not valid JSON for schema validation", "error", err)
		return false, nil
	}
	if !result.Valid() {
		c.log.Debug("Schema validation failed", "violations", len(result.Errors()))
		return false, nil
	}
	return true, nil
}

func headerValue(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
