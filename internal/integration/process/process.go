package process

import (
	"context"
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

// State is the lifecycle state of a child process.
type State int

const (
	// StateCreated means the process has not been started.
	StateCreated State = iota
	// StateRunning means the process is running.
	StateRunning
	// StateExited means the process exited on its own.
	StateExited
	// StateKilled means the process was ended by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
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

// Spec describes a process to launch.
type Spec struct {
	// Name labels the process in logs, e.g. "gdb".
	Name string

	Path string
	Args []string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Env entries ("KEY=value") are appended to the parent's environment.
	Env []string
}

// Command builds the exec.Cmd for the spec.
func (s Spec) Command() *exec.Cmd {
	cmd := exec.Command(s.Path, s.Args...)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	return cmd
}

// Process is a supervised child process with piped standard streams.
// It is safe for concurrent use.
type Process struct {
	// ID is unique within the supervisor.
	ID   string
	Name string

	// Stdin, Stdout and Stderr are the process's pipes. A stream the
	// caller wired up on the exec.Cmd before starting is nil here.
	// Stdout and Stderr stay readable after exit until ClosePipes, so a
	// reader behind the process still sees every byte and then EOF.
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd     *exec.Cmd
	started time.Time

	// childEnds are the write ends handed to the child; the parent closes
	// its copies once the child has them.
	childEnds []*os.File

	state    atomic.Int32
	exitCode atomic.Int32
	done     chan struct{}

	mu      sync.Mutex // protects exitErr
	exitErr error
}

func newProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{
		ID:   id,
		Name: name,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

// State returns the current state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// IsRunning reports whether the process is running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// ExitCode returns the exit code, or -1 while the process runs or when it
// was killed by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns the error reported by the wait, if any.
func (p *Process) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Done is closed once the process has exited and its state is final.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.ExitError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PID returns the operating system process ID, or -1 before start.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Uptime returns how long the process has been running.
func (p *Process) Uptime() time.Duration {
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// Signal delivers sig to the process.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() || p.cmd.Process == nil {
		return fmt.Errorf("signal %s to %s: %w", sig, p.Name, ErrNotRunning)
	}
	return p.cmd.Process.Signal(sig)
}

// Interrupt sends SIGINT. A debugger in MI mode treats it like -exec-interrupt.
func (p *Process) Interrupt() error {
	return p.Signal(syscall.SIGINT)
}

// Terminate sends SIGTERM.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (p *Process) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

// Stop asks the process to exit and escalates to SIGKILL when it is still
// running after grace. It returns once the process has exited or ctx is done.
func (p *Process) Stop(ctx context.Context, grace time.Duration) error {
	if !p.IsRunning() {
		return nil
	}
	if err := p.Terminate(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.Kill(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClosePipes closes the parent's ends of every pipe. Call it once nothing
// reads from the process any more.
func (p *Process) ClosePipes() {
	closePipes(p)
}

// CloseInput closes stdin, which makes a debugger reading commands see EOF.
func (p *Process) CloseInput() error {
	if p.Stdin == nil {
		return nil
	}
	return p.Stdin.Close()
}

func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrAlreadyStarted
	}
	err := p.cmd.Start()
	p.closeChildEnds()
	if err != nil {
		return fmt.Errorf("start %s: %w", p.Name, err)
	}
	p.started = time.Now()
	p.state.Store(int32(StateRunning))
	go p.wait()
	return nil
}

func (p *Process) closeChildEnds() {
	for _, f := range p.childEnds {
		_ = f.Close()
	}
	p.childEnds = nil
}

// wait reaps the child. Stdout and Stderr are os.Pipe ends owned by the
// Process, so Wait does not close them under a slow reader.
func (p *Process) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	code, state := 0, StateExited
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			state = StateKilled
		}
	case err != nil:
		code = -1
	}

	p.exitCode.Store(int32(code))
	p.state.Store(int32(state))
	close(p.done)
}

// Errors returned by the process package.
var (
	// ErrNotRunning is returned when signalling a process that is not running.
	ErrNotRunning = errors.New("process not running")

	// ErrAlreadyStarted is returned when starting a process twice.
	ErrAlreadyStarted = errors.New("process already started")

	// ErrNotFound is returned when no process has the given ID.
	ErrNotFound = errors.New("process not found")

	// ErrSupervisorShutdown is returned when starting on a stopped supervisor.
	ErrSupervisorShutdown = errors.New("supervisor is shut down")

	// ErrProcessLimit is returned when the process limit is reached.
	ErrProcessLimit = errors.New("process limit reached")
)
