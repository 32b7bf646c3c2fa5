package debug

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/mictl/internal/dispatch"
	"github.com/dshills/mictl/internal/integration/debug/mi"
)

// Commander issues MI commands. CommandControl implements it.
type Commander interface {
	Issue(ctx mi.Context, operation string) *dispatch.DataMonitor[mi.CommandResult]
}

// RunControl resumes, steps and interrupts the inferior.
type RunControl struct {
	cmd Commander
}

// NewRunControl returns run control over cmd.
func NewRunControl(cmd Commander) *RunControl {
	return &RunControl{cmd: cmd}
}

// Continue resumes execution. In non-stop mode ctx selects the thread.
func (r *RunControl) Continue(ctx mi.Context) *dispatch.DataMonitor[mi.CommandResult] {
	return r.cmd.Issue(ctx, "-exec-continue")
}

// Next steps over one source line.
func (r *RunControl) Next(ctx mi.Context) *dispatch.DataMonitor[mi.CommandResult] {
	return r.cmd.Issue(ctx, "-exec-next")
}

// Step steps into one source line.
func (r *RunControl) Step(ctx mi.Context) *dispatch.DataMonitor[mi.CommandResult] {
	return r.cmd.Issue(ctx, "-exec-step")
}

// NextInstruction steps over one machine instruction.
func (r *RunControl) NextInstruction(ctx mi.Context) *dispatch.DataMonitor[mi.CommandResult] {
	return r.cmd.Issue(ctx, "-exec-next-instruction")
}

// StepInstruction steps into one machine instruction.
func (r *RunControl) StepInstruction(ctx mi.Context) *dispatch.DataMonitor[mi.CommandResult] {
	return r.cmd.Issue(ctx, "-exec-step-instruction")
}

// Finish runs until the selected frame returns.
func (r *RunControl) Finish(ctx mi.Context) *dispatch.DataMonitor[mi.CommandResult] {
	return r.cmd.Issue(ctx, "-exec-finish")
}

// Until runs until location, or the next line past the current one when
// location is empty.
func (r *RunControl) Until(ctx mi.Context, location string) *dispatch.DataMonitor[mi.CommandResult] {
	op := "-exec-until"
	if location != "" {
		op += " " + location
	}
	return r.cmd.Issue(ctx, op)
}

// Interrupt stops the inferior. An unscoped context interrupts all threads.
func (r *RunControl) Interrupt(ctx mi.Context) *dispatch.DataMonitor[mi.CommandResult] {
	if ctx.Thread == "" && ctx.ThreadGroup == "" {
		return r.cmd.Issue(ctx, "-exec-interrupt --all")
	}
	return r.cmd.Issue(ctx, "-exec-interrupt")
}

// Shutdown implements service.Service.
func (r *RunControl) Shutdown(context.Context) error {
	return nil
}

// BreakpointSpec describes a breakpoint to insert.
type BreakpointSpec struct {
	// Location is a linespec such as "main", "hello.c:12" or "*0x401000".
	Location  string
	Temporary bool
	Hardware  bool
	Condition string

	// Pending allows a location that does not resolve yet.
	Pending bool

	Thread      string
	IgnoreCount int
}

// operation renders the -break-insert command.
func (b BreakpointSpec) operation() string {
	args := []string{"-break-insert"}
	if b.Temporary {
		args = append(args, "-t")
	}
	if b.Hardware {
		args = append(args, "-h")
	}
	if b.Pending {
		args = append(args, "-f")
	}
	if b.Condition != "" {
		args = append(args, "-c", quoteArg(b.Condition))
	}
	if b.IgnoreCount > 0 {
		args = append(args, "-i", strconv.Itoa(b.IgnoreCount))
	}
	if b.Thread != "" {
		args = append(args, "-p", b.Thread)
	}
	args = append(args, quoteArg(b.Location))
	return strings.Join(args, " ")
}

// WatchAccess selects the kind of watchpoint.
type WatchAccess int

const (
	// WatchWrite triggers when the expression is written.
	WatchWrite WatchAccess = iota
	// WatchRead triggers when the expression is read.
	WatchRead
	// WatchAccessAny triggers on read or write.
	WatchAccessAny
)

var errNoBreakpoint = errors.New("result carries no breakpoint")

// Breakpoints inserts and deletes breakpoints, watchpoints and catchpoints
// and keeps the session's table current.
type Breakpoints struct {
	exec  *dispatch.Executor
	cmd   Commander
	table *BreakpointTable
}

// NewBreakpoints returns a breakpoint service recording into table.
func NewBreakpoints(exec *dispatch.Executor, cmd Commander, table *BreakpointTable) *Breakpoints {
	return &Breakpoints{exec: exec, cmd: cmd, table: table}
}

// Insert adds a code breakpoint.
func (b *Breakpoints) Insert(spec BreakpointSpec) *dispatch.DataMonitor[mi.BreakpointInfo] {
	if spec.Location == "" {
		rm := dispatch.NewDataMonitor[mi.BreakpointInfo](b.exec, nil)
		_ = rm.Fail(errors.New("breakpoint location is empty"))
		return rm
	}
	return b.record(b.cmd.Issue(mi.Context{}, spec.operation()))
}

// Watch adds a watchpoint on expr.
func (b *Breakpoints) Watch(expr string, access WatchAccess) *dispatch.DataMonitor[mi.BreakpointInfo] {
	op := "-break-watch "
	switch access {
	case WatchRead:
		op += "-r "
	case WatchAccessAny:
		op += "-a "
	}
	return b.record(b.cmd.Issue(mi.Context{}, op+quoteArg(expr)))
}

// Catch adds a catchpoint for event, which names an MI -catch-* command
// such as "throw", "catch", "load" or "exception".
func (b *Breakpoints) Catch(event string, args ...string) *dispatch.DataMonitor[mi.BreakpointInfo] {
	op := "-catch-" + event
	if len(args) > 0 {
		op += " " + strings.Join(args, " ")
	}
	return b.record(b.cmd.Issue(mi.Context{}, op))
}

// Delete removes breakpoints by number.
func (b *Breakpoints) Delete(numbers ...int) *dispatch.Monitor {
	rm := dispatch.NewMonitor(b.exec, nil)
	if len(numbers) == 0 {
		_ = rm.Done()
		return rm
	}
	strs := make([]string, len(numbers))
	for i, n := range numbers {
		strs[i] = strconv.Itoa(n)
	}
	cmd := b.cmd.Issue(mi.Context{}, "-break-delete "+strings.Join(strs, " "))
	rm.AddCancelListener(cmd.Cancel)
	_ = cmd.OnComplete(func(m *dispatch.Monitor) {
		if m.IsSuccess() {
			for _, n := range numbers {
				b.table.Remove(n)
			}
		}
		_ = rm.Complete(m.Status(), m.Err())
	})
	return rm
}

// Table returns the breakpoint table.
func (b *Breakpoints) Table() *BreakpointTable {
	return b.table
}

// Shutdown implements service.Service.
func (b *Breakpoints) Shutdown(context.Context) error {
	return nil
}

func (b *Breakpoints) record(cmd *dispatch.DataMonitor[mi.CommandResult]) *dispatch.DataMonitor[mi.BreakpointInfo] {
	return then(b.exec, cmd, func(res mi.CommandResult) (mi.BreakpointInfo, error) {
		info, ok := b.table.RecordResult(res)
		if !ok {
			return mi.BreakpointInfo{}, fmt.Errorf("token %d: %w", res.Token, errNoBreakpoint)
		}
		return info, nil
	})
}

// quoteArg quotes an MI argument when it contains characters that would
// split it.
func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"\\") {
		return s
	}
	return strconv.Quote(s)
}
