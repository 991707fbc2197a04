package terminal

import (
	"log/slog"
	"sync"
	"time"
)

// Registry tracks live sessions for teardown. Sessions register on spawn and
// deregister when reaped; TerminateAll stops whatever is left, newest first.
// The lock is never held across process I/O: targets are collected under the
// lock and signalled outside it.
type Registry struct {
	grace time.Duration
	log   *slog.Logger

	mu       sync.Mutex
	sessions []*Session
}

// NewRegistry creates a registry with the given SIGTERM-to-SIGKILL grace
// period. Non-positive grace defaults to 5s.
func NewRegistry(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Registry{
		grace: grace,
		log:   slog.With("component", "terminal_registry"),
	}
}

// Register adds a session to the registry.
func (r *Registry) Register(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

// Deregister removes the session with the given PID, returning it when found.
func (r *Registry) Deregister(pid int) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sessions {
		if s.PID() == pid {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return s, true
		}
	}
	return nil, false
}

// Lookup finds a registered session by PID.
func (r *Registry) Lookup(pid int) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.PID() == pid {
			return s, true
		}
	}
	return nil, false
}

// Newest returns the most recently registered session.
func (r *Registry) Newest() (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil, false
	}
	return r.sessions[len(r.sessions)-1], true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// TerminateAll tears down every registered session in LIFO order and empties
// the registry.
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	targets := make([]*Session, len(r.sessions))
	copy(targets, r.sessions)
	r.sessions = nil
	r.mu.Unlock()

	for i := len(targets) - 1; i >= 0; i-- {
		s := targets[i]
		r.log.Debug("Terminating session", "pid", s.PID())
		s.Terminate(r.grace)
	}
}
