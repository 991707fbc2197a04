package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/models"
)

func sampleFailure() models.TestFailure {
	return models.TestFailure{
		ScenarioID:   "checkout-flow",
		ScenarioName: "Checkout flow",
		Timestamp:    time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		Message:      "payment declined: gateway error",
		Category:     "api",
	}
}

func TestNewFingerprint(t *testing.T) {
	t.Run("is stable for identical failures", func(t *testing.T) {
		a := NewFingerprint(sampleFailure())
		b := NewFingerprint(sampleFailure())

		require.Len(t, a.Hash, 16)
		assert.Equal(t, a.Hash, b.Hash)
	})

	t.Run("ignores fields outside the identity", func(t *testing.T) {
		base := NewFingerprint(sampleFailure())

		other := sampleFailure()
		other.Timestamp = other.Timestamp.Add(48 * time.Hour)
		other.Logs = []string{"retrying", "gave up"}
		other.StackTrace = "at checkout.go:42"

		assert.Equal(t, base.Hash, NewFingerprint(other).Hash)
	})

	t.Run("changes with the message", func(t *testing.T) {
		base := NewFingerprint(sampleFailure())

		other := sampleFailure()
		other.Message = "payment declined: card expired"

		assert.NotEqual(t, base.Hash, NewFingerprint(other).Hash)
	})

	t.Run("defaults category to unknown", func(t *testing.T) {
		failure := sampleFailure()
		failure.Category = ""

		fp := NewFingerprint(failure)
		assert.Equal(t, "unknown", fp.Category)
		assert.NotEqual(t, fp.Hash, NewFingerprint(sampleFailure()).Hash)
	})

	t.Run("hashes stack traces separately from the identity", func(t *testing.T) {
		failure := sampleFailure()
		require.Empty(t, NewFingerprint(failure).StackTraceHash)

		failure.StackTrace = "at checkout.go:42\nat main.go:10"
		fp := NewFingerprint(failure)
		assert.Len(t, fp.StackTraceHash, 8)
	})
}

func TestFingerprint_Marker(t *testing.T) {
	fp := NewFingerprint(sampleFailure())
	assert.Equal(t, "<!-- fingerprint:"+fp.Hash+" -->", fp.Marker())
}
