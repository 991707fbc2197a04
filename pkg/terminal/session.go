package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/agentic-hq/agentic/pkg/agent"
)

// pollInterval is how often WaitForOutput re-examines the buffer.
const pollInterval = 100 * time.Millisecond

// Options configures a session spawn.
type Options struct {
	// PTY allocates a pseudo-terminal. TUI sessions always set this; plain
	// CLI runs may use pipes and keep stdout/stderr apart.
	PTY bool
	// Rows and Cols set the initial PTY window size (default 24x80).
	Rows uint16
	Cols uint16
	// Env entries are appended to the parent environment as KEY=VALUE.
	Env []string
	// Dir is the child's working directory.
	Dir string
}

// Session owns one child process and its captured output. All exported
// methods are safe for concurrent use; the interactive expect/send flow is
// driven by a single step at a time.
type Session struct {
	cmd    *exec.Cmd
	buffer *OutputBuffer
	log    *slog.Logger

	ptmx  *os.File       // set in PTY mode
	stdin io.WriteCloser // set in pipe mode

	done chan struct{}

	mu       sync.Mutex
	exitCode int
	exited   bool
	closed   bool
}

// Start spawns a child process and begins capturing its output.
func Start(command string, args []string, opts Options) (*Session, error) {
	cmd := exec.Command(command, args...)
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	s := &Session{
		cmd:    cmd,
		buffer: NewOutputBuffer(),
		done:   make(chan struct{}),
		log:    slog.With("component", "terminal", "command", command),
	}

	var readers sync.WaitGroup
	if opts.PTY {
		rows, cols := opts.Rows, opts.Cols
		if rows == 0 {
			rows = 24
		}
		if cols == 0 {
			cols = 80
		}
		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
		if err != nil {
			return nil, fmt.Errorf("failed to start %q under pty: %w", command, err)
		}
		s.ptmx = ptmx
		readers.Add(1)
		go s.readLoop(&readers, ptmx, StreamStdout)
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start %q: %w", command, err)
		}
		s.stdin = stdin
		readers.Add(2)
		go s.readLoop(&readers, stdout, StreamStdout)
		go s.readLoop(&readers, stderr, StreamStderr)
	}

	go func() {
		readers.Wait()
		err := cmd.Wait()
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		s.mu.Lock()
		s.exitCode = code
		s.exited = true
		s.mu.Unlock()
		close(s.done)
	}()

	s.log.Debug("Session started", "pid", s.PID(), "pty", opts.PTY)
	return s, nil
}

// readLoop copies child output into the buffer until the stream closes.
// A closed PTY surfaces EIO on Linux; treated the same as EOF.
func (s *Session) readLoop(wg *sync.WaitGroup, r io.Reader, kind StreamKind) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.buffer.Append(kind, string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// PID returns the child's process ID, or 0 when it never started.
func (s *Session) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Buffer exposes the session's output buffer.
func (s *Session) Buffer() *OutputBuffer {
	return s.buffer
}

// Output returns the combined output captured so far.
func (s *Session) Output() string {
	return s.buffer.String()
}

// Running reports whether the child has not yet exited.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.exited
}

// ExitCode returns the child's exit code. ok is false while it still runs.
func (s *Session) ExitCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exited
}

// Write sends raw bytes to the child's input.
func (s *Session) Write(data string) error {
	w := s.writer()
	if w == nil {
		return fmt.Errorf("session has no input channel")
	}
	if _, err := io.WriteString(w, data); err != nil {
		return fmt.Errorf("failed to write to session: %w", err)
	}
	return nil
}

// SendLine writes data followed by a newline, the expect/send response shape.
func (s *Session) SendLine(data string) error {
	return s.Write(data + "\n")
}

func (s *Session) writer() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.ptmx != nil {
		return s.ptmx
	}
	if s.stdin != nil {
		return s.stdin
	}
	return nil
}

// WaitForOutput polls the buffer every 100ms until the case-insensitive
// pattern matches the accumulated combined output, returning that output.
// Elapsed timeout yields ErrTimeout; the pattern not compiling yields
// ErrValidation.
func (s *Session) WaitForOutput(ctx context.Context, pattern string, timeout time.Duration) (string, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return "", fmt.Errorf("%w: bad pattern %q: %v", agent.ErrValidation, pattern, err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if out := s.Output(); re.MatchString(out) {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return s.Output(), ctx.Err()
		case <-deadline.C:
			return s.Output(), fmt.Errorf("%w: pattern %q not seen within %s", agent.ErrTimeout, pattern, timeout)
		case <-ticker.C:
		}
	}
}

// WaitForExit blocks until the child exits and returns its exit code.
func (s *Session) WaitForExit(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.done:
		code, _ := s.ExitCode()
		return code, nil
	}
}

// Resize changes the PTY window size. Pipe sessions cannot resize.
func (s *Session) Resize(rows, cols uint16) error {
	if s.ptmx == nil {
		return fmt.Errorf("resize requires a pty session")
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("failed to resize pty: %w", err)
	}
	return nil
}

// Signal delivers a signal to the child process.
func (s *Session) Signal(sig os.Signal) error {
	if s.cmd.Process == nil {
		return fmt.Errorf("session has no process")
	}
	return s.cmd.Process.Signal(sig)
}

// Terminate stops the child: SIGTERM, then SIGKILL after the grace period.
// It waits for the process to be reaped and closes the session's files.
func (s *Session) Terminate(grace time.Duration) {
	if s.Running() && s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-s.done:
		case <-time.After(grace):
			s.log.Warn("Process ignored SIGTERM, sending SIGKILL", "pid", s.PID())
			_ = s.cmd.Process.Kill()
			select {
			case <-s.done:
			case <-time.After(grace):
				s.log.Warn("Process did not exit after SIGKILL", "pid", s.PID())
			}
		}
	}
	s.Close()
}

// Close releases the session's file handles. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.ptmx != nil {
		_ = s.ptmx.Close()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
}
