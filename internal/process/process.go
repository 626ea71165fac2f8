// Package process manages the language server child process.
//
// A Handle wraps an exec.Cmd with piped standard streams, exit
// tracking, and an optional termination callback. The launch contract
// is an explicit argv, environment, and working directory; any shell
// wrapping (login shells, interactive shells) is the caller's
// configuration concern and arrives here pre-expanded.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Sentinel errors.
var (
	// ErrNotStarted indicates an operation on a process that never
	// launched.
	ErrNotStarted = errors.New("process: not started")
)

// SpawnError wraps a failure to launch the executable.
type SpawnError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("process: spawn %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error { return e.Err }

// State represents the lifecycle state of the process.
type State int

const (
	// StateRunning indicates the process is running.
	StateRunning State = iota
	// StateExited indicates the process exited on its own.
	StateExited
	// StateKilled indicates the process was terminated by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Spec describes how to launch the child process.
type Spec struct {
	// Path is the executable path. Required.
	Path string
	// Args are the arguments, not including the executable name.
	Args []string
	// Env is the environment map. When nil the parent environment is
	// inherited unchanged; entries here are appended to it otherwise.
	Env map[string]string
	// Dir is the working directory. Empty means the parent's.
	Dir string
}

// Handle is a running child process with piped standard streams.
// It is safe for concurrent use.
type Handle struct {
	// Stdin is the process's standard input.
	Stdin io.WriteCloser
	// Stdout is the process's standard output.
	Stdout io.ReadCloser
	// Stderr is the process's standard error.
	Stderr io.ReadCloser

	cmd      *exec.Cmd
	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.Mutex
	exitErr error
	onExit  func(error)

	done chan struct{}
}

// Start launches the process described by spec with all three
// standard streams piped. Launch failures are reported as *SpawnError.
func Start(spec Spec) (*Handle, error) {
	if spec.Path == "" {
		return nil, &SpawnError{Path: spec.Path, Err: errors.New("empty executable path")}
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		env := os.Environ()
		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	h := &Handle{cmd: cmd, done: make(chan struct{})}
	h.exitCode.Store(-1)

	var err error
	if h.Stdin, err = cmd.StdinPipe(); err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}
	if h.Stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}
	if h.Stderr, err = cmd.StderrPipe(); err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}
	h.state.Store(int32(StateRunning))

	go h.wait()
	return h, nil
}

// OnExit registers a callback invoked once when the process exits,
// with the exit error if any. Registering after exit invokes the
// callback immediately.
func (h *Handle) OnExit(fn func(error)) {
	h.mu.Lock()
	select {
	case <-h.done:
		err := h.exitErr
		h.mu.Unlock()
		fn(err)
		return
	default:
	}
	h.onExit = fn
	h.mu.Unlock()
}

// Done returns a channel closed when the process exits.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Running reports whether the process is still running.
func (h *Handle) Running() bool { return h.State() == StateRunning }

// ExitCode returns the exit code, or -1 if the process has not exited.
func (h *Handle) ExitCode() int { return int(h.exitCode.Load()) }

// PID returns the process id, or -1 if unavailable.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Terminate asks the process to exit with SIGTERM, escalating to
// SIGKILL after the grace period. It blocks until the process is gone
// and is safe to call more than once.
func (h *Handle) Terminate(grace time.Duration) {
	if !h.Running() {
		return
	}
	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-h.done:
		return
	case <-time.After(grace):
	}

	_ = h.cmd.Process.Kill()
	<-h.done
}

func (h *Handle) wait() {
	err := h.cmd.Wait()

	state := StateExited
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				state = StateKilled
			}
		} else {
			code = -1
		}
	}
	h.exitCode.Store(int32(code))
	h.state.Store(int32(state))

	h.mu.Lock()
	h.exitErr = err
	fn := h.onExit
	h.onExit = nil
	close(h.done)
	h.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
