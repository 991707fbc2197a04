// Package request implements the HTTP request subsystem backing API agents:
// request dispatch with retry and backoff, authentication header injection,
// response validation, and an in-memory request/response history.
package request

import (
	"sort"
	"strings"
	"time"
)

// Request is one underlying HTTP request as recorded in history. Retried
// calls record one Request per attempt, each with a fresh monotonic ID.
type Request struct {
	ID        string            `json:"id"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Response is the recorded outcome of one request attempt. Status 0 marks a
// synthetic entry for a pure transport failure (no HTTP response arrived).
// Data holds the parsed JSON payload when the body parses, otherwise the raw
// body string.
type Response struct {
	RequestID  string            `json:"requestId"`
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Data       any               `json:"data,omitempty"`
	DurationMs int64             `json:"durationMs"`
	SizeBytes  int64             `json:"sizeBytes"`
	Timestamp  time.Time         `json:"timestamp"`
}

// PerformanceRecord captures the timing of one successful request.
type PerformanceRecord struct {
	RequestID   string    `json:"requestId"`
	TotalTimeMs int64     `json:"totalTimeMs"`
	SizeBytes   int64     `json:"responseSizeBytes"`
	Timestamp   time.Time `json:"timestamp"`
}

// SerializeHeaders renders headers as "key: value" lines in sorted key order.
func SerializeHeaders(h map[string]string) string {
	if len(h) == 0 {
		return ""
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(h[k])
	}
	return b.String()
}

// ParseHeaders is the inverse of SerializeHeaders: one "key: value" pair per
// line. Lines without a colon are skipped. Round-trips for any header set
// whose keys contain no ":" or newline.
func ParseHeaders(s string) map[string]string {
	h := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		h[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return h
}

// cloneHeaders copies a header map so history snapshots stay immutable.
func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
