// Package dispatch provides the single-threaded executor and the completion
// monitors that all session-scoped work in mictl is built on.
//
// # Executor
//
// An Executor owns one worker goroutine and an unbounded FIFO queue. Tasks
// run to completion one after another, so state touched only from tasks
// needs no locking. Any goroutine may Submit; Submit never blocks.
//
//	exec := dispatch.NewExecutor(dispatch.WithName("session"))
//	defer exec.Shutdown()
//
//	exec.Submit(func() {
//	    // runs on the worker
//	})
//
// SubmitAndWait and Call block the caller until the task has run. Calling
// them from the worker itself would deadlock, so they return
// ErrReentrantWait instead.
//
// # Monitors
//
// A Monitor is a one-shot completion handle. The code performing a request
// completes it exactly once with Done, Fail or Complete; a second attempt
// returns ErrAlreadyCompleted. The continuation registered with OnComplete
// runs on the monitor's executor.
//
//	rm := dispatch.NewDataMonitor(exec, func(rm *dispatch.DataMonitor[int]) {
//	    if rm.IsSuccess() {
//	        use(rm.Data())
//	    }
//	})
//	startRequest(rm)
//
// Child monitors forward their outcome to a parent. CountingMonitor waits
// for a fixed number of children and reports the first failure.
//
// Cancellation is cooperative: Cancel marks the monitor and runs cancel
// listeners; whoever serves the request completes it with StatusCancelled.
package dispatch
