// Package ui implements the UI agent variant. Concrete browser automation
// stays behind the Page interface; the built-in page fetches documents
// over plain HTTP and records interactions, which covers contract tests
// and headless smoke flows without binding to a browser protocol.
package ui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Interaction is one simulated user gesture against the current document.
type Interaction struct {
	Kind     string
	Selector string
	Value    string
}

// Page abstracts the document under test. Browser integrations implement
// this interface and are plugged in through NewWithPage; NewHTTPPage is
// the built-in reference.
type Page interface {
	// Navigate loads the document at url and makes it current.
	Navigate(ctx context.Context, url string) error
	// Interact performs one gesture against the current document.
	Interact(ctx context.Context, in Interaction) error
	// Location returns the current URL, empty before the first Navigate.
	Location() string
	// Content returns the current document source.
	Content() string
	// Snapshot writes a capture of the current document to path.
	Snapshot(ctx context.Context, path string) error
	// Close releases page resources.
	Close() error
}

// httpPage is the reference Page: documents are fetched with a plain HTTP
// GET and gestures are recorded rather than executed. It is deliberately
// free of any browser protocol.
type httpPage struct {
	client *http.Client

	mu       sync.Mutex
	location string
	content  string
	history  []Interaction
}

// NewHTTPPage returns the built-in reference page.
func NewHTTPPage(timeout time.Duration) Page {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpPage{client: &http.Client{Timeout: timeout}}
}

func (p *httpPage) Navigate(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid page URL %q: %w", url, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading page body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("page load failed with status %d", resp.StatusCode)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = url
	p.content = string(body)
	p.history = nil
	return nil
}

func (p *httpPage) Interact(ctx context.Context, in Interaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.location == "" {
		return fmt.Errorf("no page loaded")
	}
	p.history = append(p.history, in)
	return nil
}

func (p *httpPage) Location() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

func (p *httpPage) Content() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content
}

// Snapshot writes the current document plus a gesture log. The capture is
// an HTML file, not image bytes; downstream consumers only ever reference
// the local path.
func (p *httpPage) Snapshot(ctx context.Context, path string) error {
	p.mu.Lock()
	location := p.location
	content := p.content
	history := append([]Interaction(nil), p.history...)
	p.mu.Unlock()

	if location == "" {
		return fmt.Errorf("no page loaded")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	var b []byte
	b = fmt.Appendf(b, "<!-- capture of %s at %s -->\n", location, time.Now().Format(time.RFC3339))
	for _, in := range history {
		b = fmt.Appendf(b, "<!-- gesture: %s %s %q -->\n", in.Kind, in.Selector, in.Value)
	}
	b = append(b, content...)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}
	return nil
}

func (p *httpPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = ""
	p.content = ""
	p.history = nil
	return nil
}
