package debug

import (
	"context"
	"io"
	"time"

	"github.com/dshills/mictl/internal/integration/process"
)

// Debugger is a running debugger process as seen by a session.
type Debugger interface {
	// Stdin receives MI commands.
	Stdin() io.WriteCloser

	// Stdout yields MI records, one per line.
	Stdout() io.Reader

	// Stderr yields the debugger's diagnostics. It may be nil.
	Stderr() io.Reader

	// Done is closed when the debugger process has exited.
	Done() <-chan struct{}

	// Stop terminates the process, escalating to a kill after grace.
	Stop(ctx context.Context, grace time.Duration) error

	// PID returns the operating system process ID, or -1 if unknown.
	PID() int
}

// Launcher starts debugger processes.
type Launcher interface {
	Launch(spec process.Spec) (Debugger, error)
}

// SupervisorLauncher launches debuggers as supervised child processes.
type SupervisorLauncher struct {
	Supervisor *process.Supervisor
}

// NewSupervisorLauncher returns a launcher backed by sup.
func NewSupervisorLauncher(sup *process.Supervisor) *SupervisorLauncher {
	return &SupervisorLauncher{Supervisor: sup}
}

// Launch implements Launcher.
func (l *SupervisorLauncher) Launch(spec process.Spec) (Debugger, error) {
	proc, err := l.Supervisor.Start(spec)
	if err != nil {
		return nil, err
	}
	return processDebugger{proc}, nil
}

type processDebugger struct {
	proc *process.Process
}

func (d processDebugger) Stdin() io.WriteCloser { return d.proc.Stdin }
func (d processDebugger) Stdout() io.Reader     { return d.proc.Stdout }
func (d processDebugger) Done() <-chan struct{} { return d.proc.Done() }
func (d processDebugger) PID() int              { return d.proc.PID() }

func (d processDebugger) Stderr() io.Reader {
	if d.proc.Stderr == nil {
		return nil
	}
	return d.proc.Stderr
}

// Stop ends the process and releases its pipes. The session stops its
// readers first, so nothing is lost by closing them here.
func (d processDebugger) Stop(ctx context.Context, grace time.Duration) error {
	defer d.proc.ClosePipes()
	return d.proc.Stop(ctx, grace)
}

// debuggerSpec builds the process description for cfg's debugger. The
// debuggee environment is applied with -gdb-set environment, not here.
func debuggerSpec(cfg LaunchConfig) process.Spec {
	return process.Spec{
		Name: "gdb",
		Path: cfg.Debugger.Path,
		Args: append([]string(nil), cfg.Debugger.Args...),
		Dir:  cfg.Cwd,
	}
}
