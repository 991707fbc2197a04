// Package terminal drives child processes for CLI and TUI agents: PTY and
// pipe sessions, timestamped output capture, expect/send interaction, and a
// lifecycle registry that tears down live processes.
package terminal

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// StreamKind labels where an output chunk came from. PTYs conflate the two
// streams, so PTY reads are recorded as stdout; pipe sessions keep them
// separate.
type StreamKind string

const (
	StreamStdout StreamKind = "stdout"
	StreamStderr StreamKind = "stderr"
)

// Entry is one captured output chunk.
type Entry struct {
	Kind      StreamKind `json:"kind"`
	Data      string     `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
}

// Capture is the assembled view of a session's output. Combined merges both
// streams in timestamp order.
type Capture struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Combined string `json:"combined"`
}

// OutputBuffer is an append-only, thread-safe sequence of output entries.
type OutputBuffer struct {
	mu      sync.Mutex
	entries []Entry
}

// NewOutputBuffer creates an empty buffer.
func NewOutputBuffer() *OutputBuffer {
	return &OutputBuffer{}
}

// Append records one chunk with the current timestamp.
func (b *OutputBuffer) Append(kind StreamKind, data string) {
	if data == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{Kind: kind, Data: data, Timestamp: time.Now()})
}

// Entries returns a snapshot of all recorded entries.
func (b *OutputBuffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of recorded entries.
func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Reset discards all recorded entries.
func (b *OutputBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// Capture assembles per-stream text and the timestamp-ordered merge.
func (b *OutputBuffer) Capture() Capture {
	entries := b.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	var stdout, stderr, combined strings.Builder
	for _, e := range entries {
		combined.WriteString(e.Data)
		switch e.Kind {
		case StreamStderr:
			stderr.WriteString(e.Data)
		default:
			stdout.WriteString(e.Data)
		}
	}
	return Capture{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
	}
}

// String returns the combined output.
func (b *OutputBuffer) String() string {
	return b.Capture().Combined
}
