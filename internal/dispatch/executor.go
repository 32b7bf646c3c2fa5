package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/mictl/internal/goroutineid"
	"github.com/dshills/mictl/internal/logging"
)

// Task is a unit of work run on an Executor's worker.
type Task func()

// PanicHandler is called when a task panics during execution.
// It receives the panic value and the stack trace.
type PanicHandler func(panicValue any, stack []byte)

// Executor runs submitted tasks one at a time, in submission order, on a
// single worker goroutine.
//
// All session-scoped state is confined to the worker, so code running inside
// a task needs no locks. Other goroutines interact with that state only by
// submitting tasks. Submission never blocks: the queue is unbounded.
//
// A panicking task is recovered and reported; the worker moves on to the
// next task.
type Executor struct {
	name         string
	logger       *slog.Logger
	panicHandler PanicHandler

	mu       sync.Mutex // protects queue and shutdown
	queue    []Task
	shutdown bool

	// wake has capacity one; a pending signal is enough to make the
	// worker re-check the queue.
	wake chan struct{}
	done chan struct{}

	// workerID is the goroutine ID of the worker, set once it starts.
	workerID atomic.Int64
	started  chan struct{}

	// Stats
	submitted atomic.Uint64
	executed  atomic.Uint64
	panicked  atomic.Uint64
	rejected  atomic.Uint64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithName sets the executor name used in log records.
func WithName(name string) ExecutorOption {
	return func(e *Executor) {
		e.name = name
	}
}

// WithLogger sets the logger for the executor.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPanicHandler sets the handler invoked when a task panics.
func WithPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates an executor and starts its worker.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		name:    "executor",
		logger:  logging.NewNop(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	go e.worker()
	<-e.started
	return e
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return e.name
}

// Submit queues a task for execution. It never blocks.
// Returns ErrExecutorShutdown once Shutdown has been called.
func (e *Executor) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		e.rejected.Add(1)
		return ErrExecutorShutdown
	}
	e.queue = append(e.queue, task)
	e.mu.Unlock()

	e.submitted.Add(1)
	e.signal()
	return nil
}

// SubmitAfter queues task once delay has elapsed. The returned function
// stops the timer; it reports whether the task was prevented from being
// queued.
func (e *Executor) SubmitAfter(delay time.Duration, task Task) (stop func() bool) {
	timer := time.AfterFunc(delay, func() {
		if err := e.Submit(task); err != nil {
			e.logger.Debug("delayed task dropped", "executor", e.name, "err", err)
		}
	})
	return timer.Stop
}

// SubmitAndWait runs fn on the worker and blocks until it returns.
//
// It must not be called from the worker itself: the worker cannot run fn
// while it is blocked waiting for fn. Such calls return ErrReentrantWait
// immediately.
func (e *Executor) SubmitAndWait(ctx context.Context, fn func() error) error {
	_, err := Call(ctx, e, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Call runs fn on the executor's worker and returns its result. It has the
// same restrictions as SubmitAndWait.
func Call[T any](ctx context.Context, e *Executor, fn func() (T, error)) (T, error) {
	var zero T
	if e.InExecutor() {
		return zero, ErrReentrantWait
	}

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)

	err := e.Submit(func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			}
			ch <- out
		}()
		out.val, out.err = fn()
	})
	if err != nil {
		return zero, err
	}

	select {
	case out := <-ch:
		return out.val, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// InExecutor reports whether the caller is running on the executor's worker.
func (e *Executor) InExecutor() bool {
	return goroutineid.Get() == e.workerID.Load()
}

// Shutdown stops accepting new tasks. Tasks already queued still run; the
// worker exits once the queue is drained. Shutdown is idempotent and does
// not block, so it is safe to call from a task.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return
	}
	e.shutdown = true
	e.mu.Unlock()

	e.signal()
}

// IsShutdown reports whether Shutdown has been called.
func (e *Executor) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

// Done returns a channel closed when the worker has exited.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// AwaitTermination blocks until the worker exits or ctx is done.
func (e *Executor) AwaitTermination(ctx context.Context) error {
	if e.InExecutor() {
		return ErrReentrantWait
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth returns the number of tasks waiting to run.
func (e *Executor) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Stats returns executor statistics.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Submitted:  e.submitted.Load(),
		Executed:   e.executed.Load(),
		Panicked:   e.panicked.Load(),
		Rejected:   e.rejected.Load(),
		QueueDepth: e.QueueDepth(),
	}
}

// ExecutorStats contains statistics for an executor.
type ExecutorStats struct {
	// Submitted is the number of tasks accepted.
	Submitted uint64

	// Executed is the number of tasks that have run, including those that panicked.
	Executed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Rejected is the number of submissions refused after shutdown.
	Rejected uint64

	// QueueDepth is the number of tasks waiting to run.
	QueueDepth int
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// worker dequeues and runs tasks until shutdown with an empty queue.
func (e *Executor) worker() {
	defer close(e.done)

	e.workerID.Store(goroutineid.Get())
	close(e.started)

	for {
		task, ok := e.next()
		if !ok {
			return
		}
		e.run(task)
	}
}

// next blocks until a task is available. It returns false when the
// executor is shut down and drained.
func (e *Executor) next() (Task, bool) {
	for {
		e.mu.Lock()
		if len(e.queue) > 0 {
			task := e.queue[0]
			e.queue[0] = nil
			e.queue = e.queue[1:]
			e.mu.Unlock()
			return task, true
		}
		if e.shutdown {
			e.mu.Unlock()
			return nil, false
		}
		e.mu.Unlock()

		<-e.wake
	}
}

// run executes a single task with panic recovery.
func (e *Executor) run(task Task) {
	defer func() {
		e.executed.Add(1)
		if r := recover(); r != nil {
			stack := debug.Stack()
			e.panicked.Add(1)
			e.logger.Error("task panicked", "executor", e.name, "panic", r)

			if e.panicHandler != nil {
				func() {
					defer func() {
						_ = recover()
					}()
					e.panicHandler(r, stack)
				}()
			}
		}
	}()

	task()
}
