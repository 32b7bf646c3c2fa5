package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Status is the completion state of a Monitor.
type Status int32

const (
	// StatusPending means the monitor has not completed yet.
	StatusPending Status = iota
	// StatusSuccess means the request completed successfully.
	StatusSuccess
	// StatusError means the request failed.
	StatusError
	// StatusCancelled means the request was cancelled before it could finish.
	StatusCancelled
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Parent receives the outcome of child monitors. It is implemented by
// Monitor and CountingMonitor.
type Parent interface {
	childDone(child *Monitor)
	canceled() bool
}

// Monitor is a one-shot completion handle for an asynchronous request.
//
// A Monitor transitions exactly once from StatusPending to a terminal
// status. Its continuation, if any, runs on the owning executor after
// completion. When a parent is set, the outcome is forwarded to it after
// the continuation runs; a parent that already failed keeps its first
// failure.
//
// Cancel only requests cancellation. The code serving the request observes
// IsCanceled at its next check point and completes the monitor itself.
type Monitor struct {
	exec *Executor

	mu              sync.Mutex
	status          Status
	err             error
	callback        func(*Monitor)
	parent          Parent
	cancelListeners []func()

	cancelRequested atomic.Bool
	completed       chan struct{}
}

// NewMonitor creates a pending monitor whose continuation runs on exec.
// A nil exec runs the continuation on the completing goroutine.
// callback may be nil and set later with OnComplete.
func NewMonitor(exec *Executor, callback func(*Monitor)) *Monitor {
	return &Monitor{
		exec:      exec,
		callback:  callback,
		completed: make(chan struct{}),
	}
}

// NewChildMonitor creates a monitor on the parent's executor whose outcome
// is forwarded to parent.
func NewChildMonitor(parent *Monitor) *Monitor {
	m := NewMonitor(parent.exec, nil)
	m.SetParent(parent)
	return m
}

// Executor returns the executor continuations run on.
func (m *Monitor) Executor() *Executor {
	return m.exec
}

// Done completes the monitor successfully.
func (m *Monitor) Done() error {
	return m.Complete(StatusSuccess, nil)
}

// Fail completes the monitor with an error.
func (m *Monitor) Fail(err error) error {
	return m.Complete(StatusError, err)
}

// Complete moves the monitor to a terminal status. It returns
// ErrAlreadyCompleted if the monitor already completed; that is a
// programming error in the caller.
func (m *Monitor) Complete(status Status, err error) error {
	switch status {
	case StatusPending:
		return errors.New("cannot complete monitor with pending status")
	case StatusSuccess:
		err = nil
	case StatusError:
		if err == nil {
			err = errors.New("request failed")
		}
	case StatusCancelled:
		if err == nil {
			err = ErrCancelled
		}
	}

	m.mu.Lock()
	if m.status != StatusPending {
		m.mu.Unlock()
		return ErrAlreadyCompleted
	}
	m.status = status
	m.err = err
	cb := m.callback
	parent := m.parent
	close(m.completed)
	m.mu.Unlock()

	m.deliver(cb, parent)
	return nil
}

// OnComplete registers the continuation. Only one continuation may be set.
// If the monitor already completed, the continuation is scheduled now.
func (m *Monitor) OnComplete(cb func(*Monitor)) error {
	m.mu.Lock()
	if m.callback != nil {
		m.mu.Unlock()
		return ErrCallbackSet
	}
	m.callback = cb
	finished := m.status != StatusPending
	m.mu.Unlock()

	if finished {
		m.deliver(cb, nil)
	}
	return nil
}

// SetParent forwards this monitor's outcome to parent. If the monitor
// already completed, the outcome is forwarded now.
func (m *Monitor) SetParent(parent Parent) {
	m.mu.Lock()
	m.parent = parent
	finished := m.status != StatusPending
	m.mu.Unlock()

	if finished && parent != nil {
		m.deliver(nil, parent)
	}
}

// deliver runs the continuation and then notifies the parent.
func (m *Monitor) deliver(cb func(*Monitor), parent Parent) {
	if cb == nil && parent == nil {
		return
	}

	fn := func() {
		if cb != nil {
			cb(m)
		}
		if parent != nil {
			parent.childDone(m)
		}
	}

	if m.exec == nil {
		fn()
		return
	}
	if err := m.exec.Submit(fn); err != nil {
		// The executor is gone; the continuation must still run once.
		fn()
	}
}

// childDone implements Parent.
func (m *Monitor) childDone(child *Monitor) {
	// First failure wins; a completed parent ignores later outcomes.
	_ = m.Complete(child.Status(), child.Err())
}

// canceled implements Parent.
func (m *Monitor) canceled() bool {
	return m.IsCanceled()
}

// Cancel requests cancellation. Registered cancel listeners run once.
func (m *Monitor) Cancel() {
	if m.cancelRequested.Swap(true) {
		return
	}

	m.mu.Lock()
	listeners := m.cancelListeners
	m.cancelListeners = nil
	m.mu.Unlock()

	for _, fn := range listeners {
		m.runListener(fn)
	}
}

// IsCanceled reports whether cancellation was requested on this monitor
// or any of its parents.
func (m *Monitor) IsCanceled() bool {
	if m.cancelRequested.Load() {
		return true
	}
	m.mu.Lock()
	parent := m.parent
	m.mu.Unlock()
	return parent != nil && parent.canceled()
}

// AddCancelListener registers fn to run when Cancel is called. If
// cancellation was already requested, fn is scheduled now.
func (m *Monitor) AddCancelListener(fn func()) {
	m.mu.Lock()
	if !m.cancelRequested.Load() {
		m.cancelListeners = append(m.cancelListeners, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.runListener(fn)
}

func (m *Monitor) runListener(fn func()) {
	if m.exec == nil {
		fn()
		return
	}
	if err := m.exec.Submit(fn); err != nil {
		fn()
	}
}

// Status returns the current status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Err returns the failure cause for StatusError and StatusCancelled, nil otherwise.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// IsSuccess reports whether the monitor completed successfully.
func (m *Monitor) IsSuccess() bool {
	return m.Status() == StatusSuccess
}

// IsDone reports whether the monitor has completed with any status.
func (m *Monitor) IsDone() bool {
	return m.Status() != StatusPending
}

// Completed returns a channel closed when the monitor completes.
func (m *Monitor) Completed() <-chan struct{} {
	return m.completed
}

// Wait blocks until the monitor completes or ctx is done, and returns the
// monitor's error. It refuses to block on the owning executor's worker.
func (m *Monitor) Wait(ctx context.Context) error {
	if m.exec != nil && m.exec.InExecutor() {
		return ErrReentrantWait
	}
	select {
	case <-m.completed:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DataMonitor is a Monitor that also carries a typed result.
type DataMonitor[T any] struct {
	*Monitor

	dataMu sync.Mutex
	data   T
}

// NewDataMonitor creates a pending data monitor whose continuation runs on exec.
func NewDataMonitor[T any](exec *Executor, callback func(*DataMonitor[T])) *DataMonitor[T] {
	dm := &DataMonitor[T]{}
	var cb func(*Monitor)
	if callback != nil {
		cb = func(*Monitor) { callback(dm) }
	}
	dm.Monitor = NewMonitor(exec, cb)
	return dm
}

// SetData stores the result. Call it before completing the monitor.
func (dm *DataMonitor[T]) SetData(v T) {
	dm.dataMu.Lock()
	dm.data = v
	dm.dataMu.Unlock()
}

// Data returns the stored result.
func (dm *DataMonitor[T]) Data() T {
	dm.dataMu.Lock()
	defer dm.dataMu.Unlock()
	return dm.data
}

// DoneWith stores v and completes the monitor successfully.
func (dm *DataMonitor[T]) DoneWith(v T) error {
	dm.SetData(v)
	return dm.Done()
}

// OnData registers a typed continuation.
func (dm *DataMonitor[T]) OnData(cb func(*DataMonitor[T])) error {
	return dm.OnComplete(func(*Monitor) { cb(dm) })
}

// WaitData blocks like Wait and returns the result alongside the error.
func (dm *DataMonitor[T]) WaitData(ctx context.Context) (T, error) {
	if err := dm.Wait(ctx); err != nil {
		var zero T
		if dm.IsDone() {
			return dm.Data(), err
		}
		return zero, err
	}
	return dm.Data(), nil
}

// CountingMonitor completes a target monitor once a fixed number of child
// monitors have completed. The target reports the first child failure, or
// success if every child succeeded.
type CountingMonitor struct {
	target *Monitor

	mu       sync.Mutex
	expected int // -1 until SetCount is called
	finished int
	status   Status
	err      error
	fired    bool
}

// NewCountingMonitor creates a counting monitor that completes target.
func NewCountingMonitor(target *Monitor) *CountingMonitor {
	return &CountingMonitor{
		target:   target,
		expected: -1,
		status:   StatusSuccess,
	}
}

// NewChild creates a monitor whose outcome is counted.
func (c *CountingMonitor) NewChild() *Monitor {
	m := NewMonitor(c.target.exec, nil)
	m.SetParent(c)
	return m
}

// SetCount sets the number of children to wait for. A count of zero
// completes the target immediately.
func (c *CountingMonitor) SetCount(n int) {
	c.mu.Lock()
	c.expected = n
	c.mu.Unlock()
	c.maybeFinish()
}

// childDone implements Parent.
func (c *CountingMonitor) childDone(child *Monitor) {
	c.mu.Lock()
	c.finished++
	if s := child.Status(); s != StatusSuccess && c.status == StatusSuccess {
		c.status = s
		c.err = child.Err()
	}
	c.mu.Unlock()
	c.maybeFinish()
}

// canceled implements Parent.
func (c *CountingMonitor) canceled() bool {
	return c.target.IsCanceled()
}

func (c *CountingMonitor) maybeFinish() {
	c.mu.Lock()
	if c.fired || c.expected < 0 || c.finished < c.expected {
		c.mu.Unlock()
		return
	}
	c.fired = true
	status, err := c.status, c.err
	c.mu.Unlock()

	_ = c.target.Complete(status, err)
}
