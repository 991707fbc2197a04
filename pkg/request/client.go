package request

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentic-hq/agentic/pkg/agent"
	"github.com/agentic-hq/agentic/pkg/config"
)

// Client issues HTTP requests on behalf of one API agent. It keeps a cookie
// jar, mutable default headers and auth, and an ordered request/response
// history. A request is attempted at most Retry.MaxRetries+1 times; every
// attempt appends one Request and one Response to history.
//
// Safe for concurrent use, though within a scenario steps run sequentially.
type Client struct {
	cfg        *config.HTTPConfig
	httpClient *http.Client
	log        *slog.Logger

	mu             sync.Mutex
	defaultHeaders map[string]string
	auth           config.AuthConfig
	nextID         int
	requests       []Request
	responses      []Response
	performance    []PerformanceRecord
	lastResponse   *Response
}

// NewClient creates a client from the HTTP subsystem configuration.
func NewClient(cfg *config.HTTPConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: http configuration is nil", agent.ErrConfig)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		log:            slog.With("component", "http_client"),
		defaultHeaders: cloneHeaders(cfg.DefaultHeaders),
		auth:           cfg.Auth,
	}
	if c.defaultHeaders == nil {
		c.defaultHeaders = make(map[string]string)
	}
	return c, nil
}

// Do issues one logical request: resolve the target against the base URL,
// merge headers and auth, then attempt it with retries on transport errors
// and retryable status codes. It returns the final response; the error is
// non-nil when the transport failed on the last attempt or the final status
// is 400 or above.
func (c *Client) Do(ctx context.Context, method, target, body string, headers map[string]string) (*Response, error) {
	fullURL, err := c.resolveURL(target)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request URL %q: %v", agent.ErrConfig, target, err)
	}
	merged := c.buildHeaders(body, headers)

	maxAttempts := c.cfg.Retry.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delays := c.newBackOff()

	var resp *Response
	var transportErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, transportErr = c.attempt(ctx, method, fullURL, body, merged)
		if transportErr == nil && !c.cfg.Retry.ShouldRetryStatus(resp.Status) {
			break
		}
		if attempt == maxAttempts {
			break
		}
		wait := delays.NextBackOff()
		c.log.Debug("Retrying request",
			"method", method,
			"url", fullURL,
			"attempt", attempt,
			"status", resp.Status,
			"delay", wait)
		if err := sleepContext(ctx, wait); err != nil {
			return resp, err
		}
	}

	if transportErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp, ctxErr
		}
		return resp, fmt.Errorf("%w: %v", agent.ErrTransport, transportErr)
	}
	if resp.Status >= 400 {
		return resp, fmt.Errorf("request failed with status %d %s", resp.Status, http.StatusText(resp.Status))
	}
	c.recordPerformance(resp)
	return resp, nil
}

// attempt issues one underlying request, appending it and its outcome to
// history. Transport failures append a synthetic status-0 response.
func (c *Client) attempt(ctx context.Context, method, fullURL, body string, headers map[string]string) (*Response, error) {
	id := c.nextRequestID()
	rec := Request{
		ID:        id,
		Method:    strings.ToUpper(method),
		URL:       fullURL,
		Headers:   cloneHeaders(headers),
		Body:      body,
		Timestamp: time.Now(),
	}
	c.appendRequest(rec)
	c.logRequest(rec)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, rec.Method, fullURL, reader)
	if err != nil {
		c.appendResponse(Response{RequestID: id, Status: 0, Timestamp: time.Now()})
		return c.snapshotLast(), err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.appendResponse(Response{
			RequestID:  id,
			Status:     0,
			DurationMs: elapsed.Milliseconds(),
			Timestamp:  time.Now(),
		})
		return c.snapshotLast(), err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.appendResponse(Response{
			RequestID:  id,
			Status:     httpResp.StatusCode,
			DurationMs: elapsed.Milliseconds(),
			Timestamp:  time.Now(),
		})
		return c.snapshotLast(), fmt.Errorf("reading response body: %w", err)
	}

	resp := Response{
		RequestID:  id,
		Status:     httpResp.StatusCode,
		Headers:    flattenHeader(httpResp.Header),
		Body:       string(raw),
		Data:       parseBody(raw),
		DurationMs: elapsed.Milliseconds(),
		SizeBytes:  int64(len(raw)),
		Timestamp:  time.Now(),
	}
	c.appendResponse(resp)
	c.logResponse(resp)
	return c.snapshotLast(), nil
}

// SetHeader sets a default header for all subsequent requests. An empty
// value removes the header.
func (c *Client) SetHeader(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		delete(c.defaultHeaders, name)
		return
	}
	c.defaultHeaders[name] = value
}

// SetTimeout adjusts the transport-level timeout for subsequent requests.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient.Timeout = d
}

// SetAuth replaces the authentication strategy for subsequent requests.
func (c *Client) SetAuth(auth config.AuthConfig) error {
	if !auth.Type.IsValid() {
		return fmt.Errorf("%w: unknown auth type %q", agent.ErrConfig, auth.Type)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = auth
	return nil
}

// ClearCookies discards the cookie jar.
func (c *Client) ClearCookies() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to recreate cookie jar: %w", err)
	}
	c.httpClient.Jar = jar
	return nil
}

// Reset clears the request and response histories and performance records.
// Called from agent cleanup between scenarios.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = nil
	c.responses = nil
	c.performance = nil
	c.lastResponse = nil
}

// RequestHistory returns a snapshot of all recorded requests in issue order.
func (c *Client) RequestHistory() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// ResponseHistory returns a snapshot of all recorded responses in completion
// order, synthetic transport-failure entries included.
func (c *Client) ResponseHistory() []Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Response, len(c.responses))
	copy(out, c.responses)
	return out
}

// PerformanceRecords returns a snapshot of recorded request timings.
func (c *Client) PerformanceRecords() []PerformanceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PerformanceRecord, len(c.performance))
	copy(out, c.performance)
	return out
}

// LastResponse returns the most recent response, including synthetic
// transport-failure entries. ok is false before any request completed.
func (c *Client) LastResponse() (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastResponse == nil {
		return Response{}, false
	}
	return *c.lastResponse, true
}

func (c *Client) resolveURL(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}
	base := c.cfg.BaseURL
	if base == "" {
		return "", fmt.Errorf("relative target %q without a base URL", target)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// buildHeaders merges default headers, auth injection, and per-call extras,
// in that precedence order. JSON content type is assumed for bodies unless
// the caller says otherwise.
func (c *Client) buildHeaders(body string, extra map[string]string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := make(map[string]string, len(c.defaultHeaders)+len(extra)+2)
	for k, v := range c.defaultHeaders {
		merged[k] = v
	}
	applyAuth(merged, &c.auth)
	for k, v := range extra {
		merged[k] = v
	}
	if body != "" && !hasHeader(merged, "Content-Type") {
		merged["Content-Type"] = "application/json"
	}
	return merged
}

func applyAuth(h map[string]string, a *config.AuthConfig) {
	switch a.Type {
	case config.AuthTypeBearer:
		if a.Token != "" {
			h["Authorization"] = "Bearer " + a.Token
		}
	case config.AuthTypeAPIKey:
		if a.Token != "" {
			name := a.Header
			if name == "" {
				name = "X-API-Key"
			}
			h[name] = a.Token
		}
	case config.AuthTypeBasic:
		if a.Username != "" || a.Password != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
			h["Authorization"] = "Basic " + cred
		}
	case config.AuthTypeCustom:
		for k, v := range a.Headers {
			h[k] = v
		}
	}
}

func hasHeader(h map[string]string, name string) bool {
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// newBackOff builds the retry delay sequence: constant RetryDelayMs, or
// doubling from RetryDelayMs capped at MaxBackoffDelayMs. No jitter, so
// retry timing stays reproducible across runs.
func (c *Client) newBackOff() backoff.BackOff {
	delay := time.Duration(c.cfg.Retry.RetryDelayMs) * time.Millisecond
	if !c.cfg.Retry.ExponentialBackoff {
		return backoff.NewConstantBackOff(delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(c.cfg.Retry.MaxBackoffDelayMs) * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) nextRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return fmt.Sprintf("req-%d", c.nextID)
}

func (c *Client) appendRequest(r Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, r)
}

func (c *Client) appendResponse(r Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, r)
	c.lastResponse = &r
}

func (c *Client) snapshotLast() *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastResponse == nil {
		return nil
	}
	snapshot := *c.lastResponse
	return &snapshot
}

func (c *Client) recordPerformance(resp *Response) {
	if !c.cfg.Performance.IsEnabled() || resp == nil {
		return
	}
	record := PerformanceRecord{
		RequestID:   resp.RequestID,
		TotalTimeMs: resp.DurationMs,
		SizeBytes:   resp.SizeBytes,
		Timestamp:   time.Now(),
	}
	c.mu.Lock()
	c.performance = append(c.performance, record)
	c.mu.Unlock()

	if limit := c.cfg.Performance.Thresholds.MaxResponseTimeMs; limit > 0 && record.TotalTimeMs > limit {
		c.log.Warn("Request exceeded response time threshold",
			"request_id", record.RequestID,
			"total_time_ms", record.TotalTimeMs,
			"threshold_ms", limit)
	}
}

func (c *Client) logRequest(r Request) {
	if !c.cfg.Logging.RequestsLogged() {
		return
	}
	attrs := []any{"id", r.ID, "method", r.Method, "url", r.URL}
	if c.cfg.Logging.LogHeaders {
		headers := r.Headers
		if c.cfg.Logging.Masked() {
			headers = MaskHeaders(headers, c.sensitiveHeaders())
		}
		attrs = append(attrs, "headers", SerializeHeaders(headers))
	}
	c.log.Debug("HTTP request", attrs...)
}

func (c *Client) logResponse(r Response) {
	if !c.cfg.Logging.LogResponses {
		return
	}
	c.log.Debug("HTTP response",
		"request_id", r.RequestID,
		"status", r.Status,
		"size_bytes", r.SizeBytes,
		"duration_ms", r.DurationMs)
}

func (c *Client) sensitiveHeaders() []string {
	if len(c.cfg.Logging.SensitiveHeaders) > 0 {
		return c.cfg.Logging.SensitiveHeaders
	}
	return config.DefaultSensitiveHeaders()
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, ", ")
	}
	return out
}

// parseBody decodes a JSON payload when it parses, otherwise keeps the raw
// text. Empty bodies yield nil.
func parseBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return string(raw)
	}
	return data
}
