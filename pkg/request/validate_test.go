package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/agent"
)

// primedClient issues one request against a canned JSON response so the
// validators have something to look at.
func primedClient(t *testing.T, status int, body string, headers map[string]string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, testConfig(server.URL))
	_, _ = client.Do(context.Background(), "GET", "/resource", "", nil)
	return client
}

func TestClient_ValidateStatus(t *testing.T) {
	t.Run("no prior request", func(t *testing.T) {
		client := newTestClient(t, testConfig("http://example.invalid"))
		_, err := client.ValidateStatus(200)
		require.ErrorIs(t, err, agent.ErrNoResponse)
	})

	t.Run("match and mismatch", func(t *testing.T) {
		client := primedClient(t, http.StatusCreated, `{}`, nil)

		ok, err := client.ValidateStatus(201)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = client.ValidateStatus(200)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestClient_ValidateHeaders(t *testing.T) {
	client := primedClient(t, http.StatusOK, `{}`, map[string]string{
		"Content-Type":  "application/json",
		"X-Api-Version": "v2",
	})

	t.Run("case-insensitive names", func(t *testing.T) {
		ok, err := client.ValidateHeaders(map[string]string{"content-type": "application/json"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("all expected headers must match", func(t *testing.T) {
		ok, err := client.ValidateHeaders(map[string]string{
			"X-Api-Version": "v2",
			"X-Missing":     "anything",
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("value mismatch fails", func(t *testing.T) {
		ok, err := client.ValidateHeaders(map[string]string{"X-Api-Version": "v1"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestClient_ValidateBody(t *testing.T) {
	client := primedClient(t, http.StatusOK, `{"user":{"id":7,"name":"ada"},"ok":true}`, nil)

	t.Run("json deep equality ignores key order", func(t *testing.T) {
		ok, err := client.ValidateBody(`{"ok":true,"user":{"name":"ada","id":7}}`)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("json mismatch", func(t *testing.T) {
		ok, err := client.ValidateBody(`{"ok":false}`)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("substring fallback for non-json expectations", func(t *testing.T) {
		ok, err := client.ValidateBody(`"name":"ada"`)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = client.ValidateBody("absent text")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no prior request", func(t *testing.T) {
		fresh := newTestClient(t, testConfig("http://example.invalid"))
		_, err := fresh.ValidateBody("x")
		require.ErrorIs(t, err, agent.ErrNoResponse)
	})
}

func TestClient_ValidateSchema(t *testing.T) {
	const userSchema = `{
		"type": "object",
		"properties": {
			"id": {"type": "integer"},
			"name": {"type": "string"}
		},
		"required": ["id", "name"]
	}`

	t.Run("valid document", func(t *testing.T) {
		client := primedClient(t, http.StatusOK, `{"id":1,"name":"ada"}`, nil)
		ok, err := client.ValidateSchema(userSchema)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("violating document", func(t *testing.T) {
		client := primedClient(t, http.StatusOK, `{"id":"not-a-number"}`, nil)
		ok, err := client.ValidateSchema(userSchema)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed schema", func(t *testing.T) {
		client := primedClient(t, http.StatusOK, `{}`, nil)
		_, err := client.ValidateSchema(`{"type": nonsense`)
		require.Error(t, err)
		assert.ErrorIs(t, err, agent.ErrInvalidSchema)
		assert.Equal(t, "InvalidSchemaError", agent.Kind(err))
	})

	t.Run("non-json body is a mismatch", func(t *testing.T) {
		client := primedClient(t, http.StatusOK, "plain text", nil)
		ok, err := client.ValidateSchema(userSchema)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("disabled validation passes trivially", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("whatever"))
		}))
		defer server.Close()

		cfg := testConfig(server.URL)
		disabled := false
		cfg.Validation.Enabled = &disabled

		client := newTestClient(t, cfg)
		_, err := client.Do(context.Background(), "GET", "/x", "", nil)
		require.NoError(t, err)

		ok, err := client.ValidateSchema(userSchema)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
