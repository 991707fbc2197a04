package report

import (
	"fmt"
	"regexp"
	"strings"
)

// Default issue templates used when the configuration provides none.
const (
	DefaultTitleTemplate = "[{{priority}}] Test failure: {{scenarioName}}"

	DefaultBodyTemplate = `## Automated Failure Report

**Scenario:** {{scenarioName}} ({{scenarioId}})
**Category:** {{category}}
**Priority:** {{priority}}
**Detected:** {{timestamp}}

**Error:**

{{errorMessage}}

{{#impactScore}}**Impact score:** {{impactScore}}/100

{{/impactScore}}{{#stackTrace}}**Stack trace** ({{stackTraceHash}}):

{{stackTrace}}

{{/stackTrace}}{{#logs}}> {{this}}
{{/logs}}`
)

var varPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_.]+)\}\}`)

// Render substitutes a template against a context map:
//
//	{{var}}                     scalar substitution
//	{{obj.prop}}                nested property
//	{{#name}}...{{this}}...{{/name}}  iterate array elements
//
// Sections over non-array values act as conditionals: falsy values collapse
// the block to nothing, truthy values render it once. Unknown variables
// render empty.
func Render(template string, ctx map[string]any) string {
	return renderVars(renderSections(template, ctx), ctx)
}

func renderSections(template string, ctx map[string]any) string {
	for {
		start := strings.Index(template, "{{#")
		if start < 0 {
			return template
		}
		nameEnd := strings.Index(template[start:], "}}")
		if nameEnd < 0 {
			return template
		}
		name := template[start+3 : start+nameEnd]
		closeTag := "{{/" + name + "}}"
		bodyStart := start + nameEnd + 2
		closeIdx := strings.Index(template[bodyStart:], closeTag)
		if closeIdx < 0 {
			// Unbalanced section; leave the rest untouched.
			return template
		}
		body := template[bodyStart : bodyStart+closeIdx]
		rendered := renderSection(body, lookup(ctx, name), ctx)
		template = template[:start] + rendered + template[bodyStart+closeIdx+len(closeTag):]
	}
}

func renderSection(body string, value any, ctx map[string]any) string {
	items, isList := toList(value)
	if isList {
		if len(items) == 0 {
			return ""
		}
		var b strings.Builder
		for _, item := range items {
			b.WriteString(strings.ReplaceAll(body, "{{this}}", stringify(item)))
		}
		return b.String()
	}
	if isFalsy(value) {
		return ""
	}
	return body
}

func renderVars(template string, ctx map[string]any) string {
	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		value := lookup(ctx, name)
		if value == nil || isFalsy(value) && stringify(value) == "" {
			return ""
		}
		return stringify(value)
	})
}

// lookup resolves a dotted path through nested maps.
func lookup(ctx map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = ctx
	for _, part := range parts {
		switch m := current.(type) {
		case map[string]any:
			current = m[part]
		case map[string]string:
			current = m[part]
		default:
			return nil
		}
	}
	return current
}

func toList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func isFalsy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case int:
		return v == 0
	case int64:
		return v == 0
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// trim trailing zeros so scores read naturally
		s := fmt.Sprintf("%.2f", v)
		s = strings.TrimRight(s, "0")
		return strings.TrimRight(s, ".")
	default:
		return fmt.Sprintf("%v", v)
	}
}
