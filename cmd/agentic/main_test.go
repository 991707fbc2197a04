package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// testConfigFile writes a configuration that keeps every run artifact
// inside the test's temp space.
func testConfigFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return writeFile(t, dir, "agentic.yaml", fmt.Sprintf(`
execution:
  maxParallel: 1
reports:
  dir: %q
triage:
  historyPath: %q
logging:
  level: error
`, filepath.Join(dir, "reports"), filepath.Join(dir, "history.json")))
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentic/")
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shop.yaml", `
id: checkout
name: Checkout flow
description: Cart to confirmation
tags: [api, critical]
steps:
  - action: get
    target: /checkout
---
id: legacy-export
enabled: false
steps:
  - action: run
    target: exporter
`)

	t.Run("json emits name description and tags", func(t *testing.T) {
		out, err := runCommand(t, "list", "--directory", dir, "--json")
		require.NoError(t, err)

		var entries []listEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "Checkout flow", entries[0].Name)
		assert.Equal(t, "Cart to confirmation", entries[0].Description)
		assert.Equal(t, []string{"api", "critical"}, entries[0].Tags)
	})

	t.Run("all includes disabled scenarios", func(t *testing.T) {
		out, err := runCommand(t, "list", "--directory", dir, "--json", "--all")
		require.NoError(t, err)

		var entries []listEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "legacy-export", entries[1].Name)
	})

	t.Run("filter narrows by tag", func(t *testing.T) {
		out, err := runCommand(t, "list", "--directory", dir, "--json", "--filter", "critical")
		require.NoError(t, err)

		var entries []listEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 1)
	})

	t.Run("text marks disabled scenarios", func(t *testing.T) {
		out, err := runCommand(t, "list", "--directory", dir, "--all")
		require.NoError(t, err)
		assert.Contains(t, out, "Checkout flow")
		assert.Contains(t, out, "(disabled)")
	})
}

func TestValidateCommand(t *testing.T) {
	t.Run("well-formed directory passes", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", "id: one\nsteps:\n  - action: get\n    target: /\n")
		writeFile(t, dir, "b.yaml", "id: two\nsteps:\n  - action: get\n    target: /\n")

		out, err := runCommand(t, "validate", "--directory", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "2 scenarios valid")
	})

	t.Run("single file", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "a.yaml", "id: one\nsteps:\n  - action: get\n    target: /\n")

		out, err := runCommand(t, "validate", "--file", path)
		require.NoError(t, err)
		assert.Contains(t, out, "1 scenarios valid")
	})

	t.Run("duplicate ids across files fail", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", "id: one\nsteps:\n  - action: get\n    target: /\n")
		writeFile(t, dir, "b.yaml", "id: one\nname: Clone\nsteps:\n  - action: get\n    target: /\n")

		out, err := runCommand(t, "validate", "--directory", dir)
		require.Error(t, err)
		assert.Contains(t, out, `duplicate scenario id "one"`)
	})

	t.Run("strict rejects unknown operators", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", `
id: one
steps:
  - action: get
    target: /
verifications:
  - type: json
    target: total
    operator: approximately
    expected: "10"
`)

		out, err := runCommand(t, "validate", "--directory", dir)
		require.NoError(t, err, "non-strict validation accepts unknown operators")

		out, err = runCommand(t, "validate", "--directory", dir, "--strict")
		require.Error(t, err)
		assert.Contains(t, out, "unknown operator")
	})

	t.Run("unparseable yaml fails", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "bad.yaml", "id: [unclosed\n")

		_, err := runCommand(t, "validate", "--directory", dir)
		require.Error(t, err)
	})
}

func TestRunCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()
	t.Setenv("PING_URL", srv.URL)

	cfgPath := testConfigFile(t)
	dir := t.TempDir()
	writeFile(t, dir, "ping.yaml", `
id: ping
name: Ping
agents:
  checker:
    type: api
steps:
  - action: get
    target: "{{.PING_URL}}/healthz"
verifications:
  - type: status
    expected: "200"
  - type: json
    target: status
    expected: ok
`)

	t.Run("passing batch exits clean", func(t *testing.T) {
		out, err := runCommand(t, "run", "--directory", dir, "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "PASSED")
		assert.Contains(t, out, "Ping")
		assert.Contains(t, out, "1 scenarios: 1 passed, 0 failed")
	})

	t.Run("failing verification returns an error", func(t *testing.T) {
		failDir := t.TempDir()
		writeFile(t, failDir, "down.yaml", `
id: down
name: Down
agents:
  checker:
    type: api
steps:
  - action: get
    target: "{{.PING_URL}}/healthz"
verifications:
  - type: status
    expected: "503"
`)

		out, err := runCommand(t, "run", "--directory", failDir, "--config", cfgPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 1 scenarios did not pass")
		assert.Contains(t, out, "FAILED")
	})

	t.Run("unknown scenario name", func(t *testing.T) {
		_, err := runCommand(t, "run", "--directory", dir, "--config", cfgPath, "--scenario", "no-such")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no enabled scenario named "no-such"`)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := runCommand(t, "run", "--directory", filepath.Join(t.TempDir(), "absent"), "--config", cfgPath)
		require.Error(t, err)
	})
}
