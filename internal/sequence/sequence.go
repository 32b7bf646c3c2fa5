package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dshills/mictl/internal/dispatch"
	"github.com/dshills/mictl/internal/logging"
)

// Sequence runs an ordered list of steps on an executor, one at a time.
//
// When a step fails or is cancelled, forward progress stops and the steps
// that already succeeded are rolled back in reverse order. Rollback
// failures are logged and collected but never replace the original failure.
//
// A best-effort sequence (WithBestEffort) instead logs each failure and
// moves on to the next step; it reports the first failure at the end and
// never rolls back. Tear-down uses this mode.
//
// A Sequence is one-shot: Run may be called only once.
type Sequence struct {
	exec       *dispatch.Executor
	name       string
	steps      []Step
	logger     *slog.Logger
	bestEffort bool
	progress   func(index int, step string)

	started atomic.Bool

	// Fields below are only touched on the executor.
	ctx       context.Context
	rm        *dispatch.Monitor
	cursor    int
	failed    *dispatch.Monitor
	failIndex int

	mu           sync.Mutex // protects rollbackErrs and executed
	rollbackErrs []error
	executed     int
}

// Option configures a Sequence.
type Option func(*Sequence)

// WithName sets the sequence name used in logs and errors.
func WithName(name string) Option {
	return func(s *Sequence) {
		s.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequence) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBestEffort makes the sequence continue past failing steps.
func WithBestEffort() Option {
	return func(s *Sequence) {
		s.bestEffort = true
	}
}

// WithProgress sets a callback invoked on the executor before each step runs.
func WithProgress(fn func(index int, step string)) Option {
	return func(s *Sequence) {
		s.progress = fn
	}
}

// New creates a sequence over steps. The slice is copied.
func New(exec *dispatch.Executor, steps []Step, opts ...Option) *Sequence {
	s := &Sequence{
		exec:   exec,
		name:   "sequence",
		steps:  append([]Step(nil), steps...),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the sequence name.
func (s *Sequence) Name() string {
	return s.name
}

// Len returns the number of steps.
func (s *Sequence) Len() int {
	return len(s.steps)
}

// Executed returns how many steps completed successfully so far.
func (s *Sequence) Executed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

// RollbackErrors returns failures reported by rollback handlers.
func (s *Sequence) RollbackErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.rollbackErrs...)
}

// Run starts the sequence. rm is completed when the sequence finishes;
// cancelling rm stops the sequence before its next step.
func (s *Sequence) Run(ctx context.Context, rm *dispatch.Monitor) error {
	if s.started.Swap(true) {
		return ErrAlreadyStarted
	}

	return s.exec.Submit(func() {
		s.ctx = ctx
		s.rm = rm
		s.logger.Debug("sequence started", "sequence", s.name, "steps", len(s.steps))
		s.executeStep(0)
	})
}

// RunAndWait runs the sequence and blocks until it finishes. It must not
// be called from the executor's worker.
func (s *Sequence) RunAndWait(ctx context.Context) error {
	if s.exec.InExecutor() {
		return dispatch.ErrReentrantWait
	}

	rm := dispatch.NewMonitor(s.exec, nil)
	if err := s.Run(ctx, rm); err != nil {
		return err
	}

	// Blocking on the caller's ctx would leave the sequence running
	// unobserved; cancel it and wait for rollback instead.
	select {
	case <-rm.Completed():
	case <-ctx.Done():
		rm.Cancel()
		<-rm.Completed()
	}
	return rm.Err()
}

func (s *Sequence) executeStep(i int) {
	if i >= len(s.steps) {
		s.finish()
		return
	}

	if s.rm.IsCanceled() {
		stepRM := dispatch.NewMonitor(s.exec, nil)
		_ = stepRM.Complete(dispatch.StatusCancelled, ErrCancelled)
		s.stepFailed(i, stepRM)
		return
	}

	step := s.steps[i]
	if s.progress != nil {
		s.progress(i, step.Name())
	}
	s.logger.Debug("executing step", "sequence", s.name, "index", i, "step", step.Name())

	stepRM := dispatch.NewMonitor(s.exec, func(m *dispatch.Monitor) {
		if m.IsSuccess() {
			s.cursor = i + 1
			s.mu.Lock()
			s.executed = s.cursor
			s.mu.Unlock()
			s.executeStep(i + 1)
			return
		}
		s.stepFailed(i, m)
	})
	s.rm.AddCancelListener(stepRM.Cancel)

	s.invoke(step.Name(), stepRM, func() { step.Execute(s.ctx, stepRM) })
}

func (s *Sequence) stepFailed(i int, m *dispatch.Monitor) {
	s.logger.Warn("step failed",
		"sequence", s.name,
		"index", i,
		"step", s.steps[i].Name(),
		"status", m.Status().String(),
		"err", m.Err(),
	)

	if s.failed == nil {
		s.failed = m
		s.failIndex = i
	}

	if s.bestEffort {
		if s.rm.IsCanceled() {
			s.finish()
			return
		}
		s.executeStep(i + 1)
		return
	}

	s.rollback(s.cursor - 1)
}

func (s *Sequence) rollback(i int) {
	if i < 0 {
		s.finish()
		return
	}

	step := s.steps[i]
	s.logger.Debug("rolling back step", "sequence", s.name, "index", i, "step", step.Name())

	rbRM := dispatch.NewMonitor(s.exec, func(m *dispatch.Monitor) {
		if !m.IsSuccess() {
			err := &StepError{Sequence: s.name, Index: i, Step: step.Name(), Err: m.Err()}
			s.logger.Error("rollback failed", "sequence", s.name, "step", step.Name(), "err", m.Err())
			s.mu.Lock()
			s.rollbackErrs = append(s.rollbackErrs, err)
			s.mu.Unlock()
		}
		s.rollback(i - 1)
	})

	s.invoke(step.Name(), rbRM, func() { step.Rollback(s.ctx, rbRM) })
}

// invoke runs fn and fails rm if fn panics before completing it.
func (s *Sequence) invoke(step string, rm *dispatch.Monitor, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("step panicked", "sequence", s.name, "step", step, "panic", r)
			_ = rm.Fail(fmt.Errorf("%w: %v", ErrStepPanicked, r))
		}
	}()
	fn()
}

func (s *Sequence) finish() {
	if s.failed == nil {
		s.logger.Debug("sequence completed", "sequence", s.name)
		if err := s.rm.Done(); err != nil {
			s.logger.Error("sequence monitor already completed", "sequence", s.name, "err", err)
		}
		return
	}

	cause := s.failed.Err()
	err := &StepError{Sequence: s.name, Index: s.failIndex, Step: s.steps[s.failIndex].Name(), Err: cause}

	status := s.failed.Status()
	if errors.Is(cause, ErrCancelled) || errors.Is(cause, dispatch.ErrCancelled) {
		status = dispatch.StatusCancelled
	}
	if err := s.rm.Complete(status, err); err != nil {
		s.logger.Error("sequence monitor already completed", "sequence", s.name, "err", err)
	}
}
