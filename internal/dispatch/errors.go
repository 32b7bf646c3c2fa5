package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrExecutorShutdown is returned when a task is submitted after Shutdown.
	ErrExecutorShutdown = errors.New("executor is shut down")

	// ErrReentrantWait is returned when a blocking wait is attempted from the
	// executor's own worker, which would deadlock.
	ErrReentrantWait = errors.New("blocking wait called from executor worker")

	// ErrNilTask is returned when a nil task is submitted.
	ErrNilTask = errors.New("nil task")

	// ErrTaskPanicked wraps the panic value of a task run through Call.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrAlreadyCompleted is returned when a monitor is completed twice.
	ErrAlreadyCompleted = errors.New("monitor already completed")

	// ErrCallbackSet is returned when a second continuation is registered.
	ErrCallbackSet = errors.New("monitor callback already set")

	// ErrCancelled is the error reported by a monitor completed as cancelled
	// without a more specific cause.
	ErrCancelled = errors.New("request cancelled")
)
