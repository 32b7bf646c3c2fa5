package debug

import (
	"github.com/dshills/mictl/internal/dispatch"
	"github.com/dshills/mictl/internal/integration/debug/mi"
)

// then returns a monitor completed with fn applied to src's result.
// A failure or cancellation of src is passed through unchanged, and
// cancelling the returned monitor cancels src.
func then[T, U any](exec *dispatch.Executor, src *dispatch.DataMonitor[T], fn func(T) (U, error)) *dispatch.DataMonitor[U] {
	out := dispatch.NewDataMonitor[U](exec, nil)
	out.AddCancelListener(src.Cancel)
	_ = src.OnData(func(m *dispatch.DataMonitor[T]) {
		if !m.IsSuccess() {
			_ = out.Complete(m.Status(), m.Err())
			return
		}
		v, err := fn(m.Data())
		if err != nil {
			_ = out.Fail(err)
			return
		}
		_ = out.DoneWith(v)
	})
	return out
}

// forward completes rm with the outcome of src.
func forward[T any](src *dispatch.DataMonitor[T], rm *dispatch.Monitor) {
	rm.AddCancelListener(src.Cancel)
	_ = src.OnComplete(func(m *dispatch.Monitor) {
		_ = rm.Complete(m.Status(), m.Err())
	})
}

// failed returns a command monitor already failed with err.
func failed(exec *dispatch.Executor, err error) *dispatch.DataMonitor[mi.CommandResult] {
	rm := dispatch.NewDataMonitor[mi.CommandResult](exec, nil)
	_ = rm.Fail(err)
	return rm
}

// issueAll issues ops one after another, each waiting for the previous
// result, and completes rm with the first failure or success at the end.
func issueAll(issue func(op string) *dispatch.DataMonitor[mi.CommandResult], ops []string, rm *dispatch.Monitor) {
	if len(ops) == 0 {
		_ = rm.Done()
		return
	}
	if rm.IsCanceled() {
		_ = rm.Complete(dispatch.StatusCancelled, nil)
		return
	}
	cmd := issue(ops[0])
	rm.AddCancelListener(cmd.Cancel)
	_ = cmd.OnComplete(func(m *dispatch.Monitor) {
		if !m.IsSuccess() {
			_ = rm.Complete(m.Status(), m.Err())
			return
		}
		issueAll(issue, ops[1:], rm)
	})
}
