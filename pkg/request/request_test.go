package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeHeaders(t *testing.T) {
	assert.Empty(t, SerializeHeaders(nil))

	got := SerializeHeaders(map[string]string{
		"Content-Type": "application/json",
		"Accept":       "text/plain",
	})
	assert.Equal(t, "Accept: text/plain\nContent-Type: application/json", got)
}

func TestParseHeaders(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		headers := map[string]string{
			"Accept":        "application/json",
			"X-Api-Version": "v2",
			"Authorization": "Bearer abc",
		}
		assert.Equal(t, headers, ParseHeaders(SerializeHeaders(headers)))
	})

	t.Run("skips malformed lines", func(t *testing.T) {
		got := ParseHeaders("Accept: text/plain\nno colon here\n\nX-Id: 7")
		assert.Equal(t, map[string]string{"Accept": "text/plain", "X-Id": "7"}, got)
	})

	t.Run("value may contain colons", func(t *testing.T) {
		got := ParseHeaders("Referer: https://example.com/path")
		assert.Equal(t, map[string]string{"Referer": "https://example.com/path"}, got)
	})
}

func TestMaskHeaders(t *testing.T) {
	headers := map[string]string{
		"Authorization": "Bearer secret",
		"X-API-Key":     "k-123",
		"Accept":        "application/json",
	}

	masked := MaskHeaders(headers, []string{"authorization", "x-api-key"})

	assert.Equal(t, MaskedValue, masked["Authorization"])
	assert.Equal(t, MaskedValue, masked["X-API-Key"])
	assert.Equal(t, "application/json", masked["Accept"])

	// Originals stay untouched.
	assert.Equal(t, "Bearer secret", headers["Authorization"])
}
