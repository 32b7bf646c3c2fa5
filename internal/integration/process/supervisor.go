package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/mictl/internal/logging"
)

// Supervisor starts child processes, tracks them until they exit, and
// stops whatever is left on shutdown. It is safe for concurrent use.
type Supervisor struct {
	logger       *slog.Logger
	maxProcesses int
	onExit       func(*Process)

	mu        sync.Mutex // protects processes and closed
	processes map[string]*Process
	closed    bool

	// monitors counts exit watchers still running.
	monitors sync.WaitGroup
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithMaxProcesses limits the number of live processes. Zero means no limit.
func WithMaxProcesses(n int) SupervisorOption {
	return func(s *Supervisor) {
		s.maxProcesses = n
	}
}

// WithExitHandler registers fn to run, on its own goroutine, after each
// process exits.
func WithExitHandler(fn func(*Process)) SupervisorOption {
	return func(s *Supervisor) {
		s.onExit = fn
	}
}

// WithLogger sets the supervisor's logger.
func WithLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		logger:    logging.NewNop(),
		processes: make(map[string]*Process),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches spec with a fresh ID.
func (s *Supervisor) Start(spec Spec) (*Process, error) {
	return s.StartCommand(uuid.NewString(), spec.Name, spec.Command())
}

// StartCommand launches cmd under id. Standard streams the caller has not
// set on cmd are piped and exposed on the Process.
func (s *Supervisor) StartCommand(id, name string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSupervisorShutdown
	}
	if s.maxProcesses > 0 && len(s.processes) >= s.maxProcesses {
		return nil, fmt.Errorf("start %s: %w (%d)", name, ErrProcessLimit, s.maxProcesses)
	}
	if _, exists := s.processes[id]; exists {
		return nil, fmt.Errorf("start %s: duplicate process ID %s", name, id)
	}

	proc := newProcess(id, name, cmd)
	if err := pipe(proc, cmd); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	if err := proc.start(); err != nil {
		closePipes(proc)
		return nil, err
	}

	s.processes[id] = proc
	s.monitors.Add(1)
	go s.monitor(proc)

	s.logger.Info("process started", "name", name, "id", id, "pid", proc.PID(), "path", cmd.Path)
	return proc, nil
}

func pipe(proc *Process, cmd *exec.Cmd) error {
	if cmd.Stdin == nil {
		w, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
		proc.Stdin = w
	}
	if cmd.Stdout == nil {
		r, err := outputPipe(proc, &cmd.Stdout)
		if err != nil {
			closePipes(proc)
			return fmt.Errorf("stdout pipe: %w", err)
		}
		proc.Stdout = r
	}
	if cmd.Stderr == nil {
		r, err := outputPipe(proc, &cmd.Stderr)
		if err != nil {
			closePipes(proc)
			return fmt.Errorf("stderr pipe: %w", err)
		}
		proc.Stderr = r
	}
	return nil
}

// outputPipe wires a fresh os.Pipe into dst. Unlike cmd.StdoutPipe, the
// read end is not closed by cmd.Wait.
func outputPipe(proc *Process, dst *io.Writer) (*os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	*dst = w
	proc.childEnds = append(proc.childEnds, w)
	return r, nil
}

func closePipes(proc *Process) {
	if proc.Stdin != nil {
		_ = proc.Stdin.Close()
	}
	if proc.Stdout != nil {
		_ = proc.Stdout.Close()
	}
	if proc.Stderr != nil {
		_ = proc.Stderr.Close()
	}
	proc.closeChildEnds()
}

func (s *Supervisor) monitor(proc *Process) {
	defer s.monitors.Done()
	<-proc.Done()

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()

	s.logger.Info("process exited",
		"name", proc.Name,
		"id", proc.ID,
		"state", proc.State().String(),
		"exit_code", proc.ExitCode(),
	)

	if s.onExit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("process exit handler panicked", "name", proc.Name, "panic", r)
		}
	}()
	s.onExit(proc)
}

// Get returns the process with the given ID.
func (s *Supervisor) Get(id string) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return p, nil
}

// List returns the live processes.
func (s *Supervisor) List() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		out = append(out, p)
	}
	return out
}

// Count returns the number of live processes.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processes)
}

// Stop stops one process, escalating to SIGKILL after grace.
func (s *Supervisor) Stop(ctx context.Context, id string, grace time.Duration) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	return p.Stop(ctx, grace)
}

// IsShutdown reports whether Shutdown was called.
func (s *Supervisor) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown rejects new processes, stops every live process (SIGTERM, then
// SIGKILL after grace) and waits for their exit handlers. It is idempotent.
func (s *Supervisor) Shutdown(ctx context.Context, grace time.Duration) error {
	s.mu.Lock()
	s.closed = true
	procs := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for _, p := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Stop(ctx, grace); err != nil {
				emu.Lock()
				errs = append(errs, fmt.Errorf("stop %s: %w", p.Name, err))
				emu.Unlock()
			}
		}()
	}
	wg.Wait()

	monitorsDone := make(chan struct{})
	go func() {
		s.monitors.Wait()
		close(monitorsDone)
	}()
	select {
	case <-monitorsDone:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
