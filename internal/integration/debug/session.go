package debug

import (
	"errors"
	"fmt"
	"log/slog"
	rtdebug "runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/mictl/internal/dispatch"
	"github.com/dshills/mictl/internal/integration/debug/mi"
	"github.com/dshills/mictl/internal/integration/debug/service"
	"github.com/dshills/mictl/internal/logging"
)

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	// StateIdle is a session that has not been brought up.
	StateIdle SessionState = iota
	// StateStarting means the bring-up sequence is running.
	StateStarting
	// StateReady means bring-up succeeded and services are available.
	StateReady
	// StateStopping means the tear-down sequence is running.
	StateStopping
	// StateTerminated is a session that was torn down.
	StateTerminated
	// StateFailed is a session whose bring-up failed and was cleaned up.
	StateFailed
)

// String returns a string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TargetState is the execution state of the debuggee as last reported.
type TargetState int

const (
	// TargetNone means no process has been started or attached.
	TargetNone TargetState = iota
	// TargetRunning means threads are executing.
	TargetRunning
	// TargetStopped means the debuggee is halted.
	TargetStopped
	// TargetExited means the debuggee process ended.
	TargetExited
)

// String returns a string representation of the target state.
func (t TargetState) String() string {
	switch t {
	case TargetNone:
		return "none"
	case TargetRunning:
		return "running"
	case TargetStopped:
		return "stopped"
	case TargetExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Errors returned by sessions.
var (
	// ErrSessionStarted is returned when bringing up a session twice.
	ErrSessionStarted = errors.New("session already started")

	// ErrSessionClosed is returned for operations on a torn-down session.
	ErrSessionClosed = errors.New("session closed")
)

// Observer receives session telemetry. metrics.Collector implements it.
type Observer interface {
	mi.Observer

	// EventPublished is called for every event delivered to subscribers.
	EventPublished(reason string)

	// DecodeFailed is called for every debugger output line that could
	// not be decoded.
	DecodeFailed()

	// SessionState is called on each lifecycle transition.
	SessionState(state string)
}

// EventHandler receives session events on the session executor. Handlers
// must not block; long work belongs on another goroutine.
type EventHandler func(mi.Event)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger for the session and its components.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionObserver registers a telemetry observer.
func WithSessionObserver(o Observer) SessionOption {
	return func(s *Session) {
		s.observer = o
	}
}

// WithLauncher sets how the debugger process is started.
func WithLauncher(l Launcher) SessionOption {
	return func(s *Session) {
		s.launcher = l
	}
}

// WithStopGrace sets how long the debugger gets to exit before it is killed.
func WithStopGrace(d time.Duration) SessionOption {
	return func(s *Session) {
		s.stopGrace = d
	}
}

// WithTeardownCommandTimeout bounds each command issued during tear-down.
func WithTeardownCommandTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.teardownCommandTimeout = d
	}
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// Session is one debugger control session: a debugger process, the
// command channel to it, and the services built on that channel.
//
// All session state is confined to the session's executor. Commands may
// be issued from any goroutine; their continuations run on the executor.
type Session struct {
	id       string
	exec     *dispatch.Executor
	registry *service.Registry
	tokens   *mi.TokenCounter
	logger   *slog.Logger
	observer Observer
	launcher Launcher

	stopGrace              time.Duration
	teardownCommandTimeout time.Duration

	breakpoints *BreakpointTable

	mu     sync.Mutex // protects state and target
	state  SessionState
	target TargetState

	subMu       sync.Mutex // protects subscribers and nextSub
	subscribers map[int]EventHandler
	nextSub     int

	exited     chan struct{}
	exitedOnce sync.Once

	// Fields below are only touched on the executor.
	cfg             LaunchConfig
	dbg             Debugger
	cc              *CommandControl
	attached        bool
	inferiorStarted bool
	inserted        []int
	bringUp         *dispatch.Monitor
	bringUpErr      error
	tearingDown     bool
	teardownWaiters []*dispatch.Monitor
}

// NewSession creates an idle session with its own executor.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:                     uuid.NewString(),
		registry:               service.NewRegistry(),
		tokens:                 &mi.TokenCounter{},
		logger:                 logging.NewNop(),
		stopGrace:              3 * time.Second,
		teardownCommandTimeout: 5 * time.Second,
		breakpoints:            NewBreakpointTable(),
		subscribers:            make(map[int]EventHandler),
		exited:                 make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	s.exec = dispatch.NewExecutor(
		dispatch.WithName("session-"+s.id),
		dispatch.WithLogger(s.logger),
		dispatch.WithPanicHandler(func(v any, stack []byte) {
			s.logger.Error("debug: session task panicked", "panic", v, "stack", string(stack))
		}),
	)
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Executor returns the session executor.
func (s *Session) Executor() *dispatch.Executor {
	return s.exec
}

// Registry returns the session's service registry.
func (s *Session) Registry() *service.Registry {
	return s.registry
}

// Breakpoints returns the session's breakpoint table.
func (s *Session) Breakpoints() *BreakpointTable {
	return s.breakpoints
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TargetState returns the debuggee's last reported execution state.
func (s *Session) TargetState() TargetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Exited returns a channel closed when the debugger's output ends.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()

	if old == state {
		return
	}
	s.logger.Info("debug: session state changed", "from", old.String(), "to", state.String())
	if s.observer != nil {
		s.observer.SessionState(state.String())
	}
}

func (s *Session) setTarget(t TargetState) {
	s.mu.Lock()
	s.target = t
	s.mu.Unlock()
}

// Subscribe registers fn for every event the session decodes. The
// returned function removes the subscription.
func (s *Session) Subscribe(fn EventHandler) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// publish runs on the executor.
func (s *Session) publish(ev mi.Event) {
	s.track(ev)

	s.subMu.Lock()
	handlers := make([]EventHandler, 0, len(s.subscribers))
	for id := 0; id < s.nextSub; id++ {
		if h, ok := s.subscribers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	s.subMu.Unlock()

	for _, h := range handlers {
		s.deliver(h, ev)
	}
	if s.observer != nil {
		s.observer.EventPublished(ev.Reason())
	}
}

func (s *Session) deliver(h EventHandler, ev mi.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("debug: event handler panicked", "reason", ev.Reason(), "panic", r, "stack", string(rtdebug.Stack()))
		}
	}()
	h(ev)
}

// track follows the debuggee's execution state from events.
func (s *Session) track(ev mi.Event) {
	switch ev.(type) {
	case mi.Running:
		s.setTarget(TargetRunning)
	case mi.ThreadGroupStarted:
		s.inferiorStarted = true
	case mi.InferiorExited, mi.InferiorSignalExited:
		s.setTarget(TargetExited)
	case mi.ThreadGroupExited:
		s.setTarget(TargetExited)
	case mi.Stopped, mi.BreakpointHit, mi.CatchpointHit, mi.WatchpointTrigger,
		mi.WatchpointScope, mi.EndSteppingRange, mi.FunctionFinished,
		mi.LocationReached, mi.SignalReceived, mi.SharedLibraryStop:
		s.setTarget(TargetStopped)
	}
}

// Issue sends an MI command through the session's command channel.
func (s *Session) Issue(ctx mi.Context, operation string) *dispatch.DataMonitor[mi.CommandResult] {
	cc, err := service.Lookup[*CommandControl](s.registry, CommandControlService)
	if err != nil {
		return failed(s.exec, fmt.Errorf("%s: %w", operation, err))
	}
	return cc.Issue(ctx, operation)
}

// RunControl returns the run control service.
func (s *Session) RunControl() (*RunControl, error) {
	return service.Lookup[*RunControl](s.registry, RunControlService)
}

// BreakpointService returns the breakpoint service.
func (s *Session) BreakpointService() (*Breakpoints, error) {
	return service.Lookup[*Breakpoints](s.registry, BreakpointsService)
}

// runOrSubmit runs fn on the executor, or inline once it has shut down.
func (s *Session) runOrSubmit(fn func()) {
	if err := s.exec.Submit(fn); err != nil {
		fn()
	}
}

// debuggerExited runs on the executor when the debugger's output ends.
func (s *Session) debuggerExited() {
	s.exitedOnce.Do(func() { close(s.exited) })
	if s.State() == StateReady {
		s.logger.Warn("debug: debugger exited unexpectedly")
		s.TearDown()
	}
}
