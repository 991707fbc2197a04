package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	t.Run("substitutes variables", func(t *testing.T) {
		out := Render("[{{priority}}] {{scenarioName}}", map[string]any{
			"priority":     "high",
			"scenarioName": "Checkout flow",
		})
		assert.Equal(t, "[high] Checkout flow", out)
	})

	t.Run("resolves dotted paths", func(t *testing.T) {
		out := Render("score {{assignment.impactScore}} ({{assignment.priority}})", map[string]any{
			"assignment": map[string]any{"impactScore": 72.5, "priority": "high"},
		})
		assert.Equal(t, "score 72.5 (high)", out)
	})

	t.Run("blanks unknown variables", func(t *testing.T) {
		out := Render("before {{missing}} after", map[string]any{})
		assert.Equal(t, "before  after", out)
	})

	t.Run("iterates array sections", func(t *testing.T) {
		out := Render("{{#logs}}> {{this}}\n{{/logs}}", map[string]any{
			"logs": []string{"first", "second"},
		})
		assert.Equal(t, "> first\n> second\n", out)
	})

	t.Run("collapses falsy sections", func(t *testing.T) {
		tmpl := "a{{#stackTrace}}TRACE{{/stackTrace}}b"

		assert.Equal(t, "ab", Render(tmpl, map[string]any{"stackTrace": ""}))
		assert.Equal(t, "ab", Render(tmpl, map[string]any{}))
		assert.Equal(t, "ab", Render(tmpl, map[string]any{"stackTrace": []string{}}))
	})

	t.Run("renders truthy scalar sections once", func(t *testing.T) {
		out := Render("{{#impactScore}}score {{impactScore}}{{/impactScore}}", map[string]any{
			"impactScore": 70.0,
		})
		assert.Equal(t, "score 70", out)
	})

	t.Run("keeps an unbalanced section opener", func(t *testing.T) {
		out := Render("{{#logs}}{{this}}", map[string]any{"logs": []string{"x"}})
		assert.Equal(t, "{{#logs}}", out)
	})
}

func TestRender_DefaultTemplates(t *testing.T) {
	ctx := map[string]any{
		"scenarioId":     "checkout-flow",
		"scenarioName":   "Checkout flow",
		"category":       "api",
		"priority":       "high",
		"timestamp":      "2025-03-01T10:30:00Z",
		"errorMessage":   "payment declined",
		"impactScore":    70.0,
		"stackTrace":     "at checkout.go:42",
		"stackTraceHash": "deadbeef",
		"logs":           []string{"request sent", "response 502"},
	}

	title := Render(DefaultTitleTemplate, ctx)
	assert.Equal(t, "[high] Test failure: Checkout flow", title)

	body := Render(DefaultBodyTemplate, ctx)
	assert.Contains(t, body, "**Scenario:** Checkout flow (checkout-flow)")
	assert.Contains(t, body, "**Impact score:** 70/100")
	assert.Contains(t, body, "**Stack trace** (deadbeef):")
	assert.Contains(t, body, "> request sent\n> response 502\n")
}

func TestRender_DefaultBodyOmitsEmptySections(t *testing.T) {
	body := Render(DefaultBodyTemplate, map[string]any{
		"scenarioId":   "checkout-flow",
		"scenarioName": "Checkout flow",
		"category":     "api",
		"priority":     "medium",
		"timestamp":    "2025-03-01T10:30:00Z",
		"errorMessage": "payment declined",
	})

	assert.NotContains(t, body, "Impact score")
	assert.NotContains(t, body, "Stack trace")
	assert.NotContains(t, body, "> ")
}
