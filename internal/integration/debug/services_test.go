package debug

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mictl/internal/dispatch"
	"github.com/dshills/mictl/internal/integration/debug/mi"
)

// scriptedCommander answers each command with a canned result line.
type scriptedCommander struct {
	t    *testing.T
	exec *dispatch.Executor

	mu      sync.Mutex
	ops     []string
	answers map[string]string
}

func newScriptedCommander(t *testing.T) *scriptedCommander {
	exec := dispatch.NewExecutor(dispatch.WithName("test"))
	t.Cleanup(exec.Shutdown)
	return &scriptedCommander{t: t, exec: exec, answers: make(map[string]string)}
}

func (c *scriptedCommander) Issue(ctx mi.Context, operation string) *dispatch.DataMonitor[mi.CommandResult] {
	cmd := mi.Command{Context: ctx, Operation: operation}
	c.mu.Lock()
	c.ops = append(c.ops, cmd.String())
	answer, ok := c.answers[cmd.Name()]
	c.mu.Unlock()
	if !ok {
		answer = "1^done"
	}

	rm := dispatch.NewDataMonitor[mi.CommandResult](c.exec, nil)
	res := parseResult(c.t, answer)
	if res.Outcome == mi.OutcomeError {
		rm.SetData(res)
		_ = rm.Fail(&mi.CommandError{Operation: cmd.Name(), Message: res.ErrorMessage})
		return rm
	}
	_ = rm.DoneWith(res)
	return rm
}

func (c *scriptedCommander) operations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func TestRunControl_Operations(t *testing.T) {
	cmd := newScriptedCommander(t)
	rc := NewRunControl(cmd)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	thread := mi.Context{Thread: "2"}
	for _, m := range []*dispatch.DataMonitor[mi.CommandResult]{
		rc.Continue(mi.Context{}),
		rc.Next(thread),
		rc.Step(thread),
		rc.NextInstruction(thread),
		rc.StepInstruction(thread),
		rc.Finish(thread.WithFrame("1")),
		rc.Until(thread, "hello.c:9"),
		rc.Until(thread, ""),
		rc.Interrupt(mi.Context{}),
		rc.Interrupt(thread),
	} {
		_, err := m.WaitData(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"-exec-continue",
		"-exec-next --thread 2",
		"-exec-step --thread 2",
		"-exec-next-instruction --thread 2",
		"-exec-step-instruction --thread 2",
		"-exec-finish --thread 2 --frame 1",
		"-exec-until --thread 2 hello.c:9",
		"-exec-until --thread 2",
		"-exec-interrupt --all",
		"-exec-interrupt --thread 2",
	}, cmd.operations())
}

func TestBreakpointSpec_Operation(t *testing.T) {
	tests := []struct {
		name string
		spec BreakpointSpec
		want string
	}{
		{"plain", BreakpointSpec{Location: "main"}, "-break-insert main"},
		{"temporary", BreakpointSpec{Location: "main", Temporary: true}, "-break-insert -t main"},
		{"hardware pending", BreakpointSpec{Location: "lib.c:3", Hardware: true, Pending: true}, "-break-insert -h -f lib.c:3"},
		{"condition", BreakpointSpec{Location: "loop", Condition: "i == 10"}, `-break-insert -c "i == 10" loop`},
		{"ignore and thread", BreakpointSpec{Location: "*0x401000", IgnoreCount: 3, Thread: "4"}, "-break-insert -i 3 -p 4 *0x401000"},
		{"spaces in path", BreakpointSpec{Location: "/my src/a.c:1"}, `-break-insert "/my src/a.c:1"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.operation())
		})
	}
}

func TestBreakpoints_InsertWatchCatchDelete(t *testing.T) {
	cmd := newScriptedCommander(t)
	cmd.answers["-break-insert"] = `1^done,bkpt={number="1",type="breakpoint",disp="keep",enabled="y",func="main",file="hello.c",line="4",times="0"}`
	cmd.answers["-break-watch"] = `2^done,hw-awpt={number="2",exp="total"}`
	cmd.answers["-catch-throw"] = `3^done,bkpt={number="3",type="catchpoint",disp="keep",enabled="y",what="exception throw",catch-type="throw",times="0"}`

	table := NewBreakpointTable()
	bp := NewBreakpoints(cmd.exec, cmd, table)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := bp.Insert(BreakpointSpec{Location: "main"}).WaitData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", info.Number)
	assert.Equal(t, mi.KindBreakpoint, info.Kind)

	info, err = bp.Watch("total", WatchAccessAny).WaitData(ctx)
	require.NoError(t, err)
	assert.Equal(t, mi.KindWatchpoint, info.Kind)
	assert.Equal(t, "total", info.What)

	info, err = bp.Catch("throw").WaitData(ctx)
	require.NoError(t, err)
	assert.Equal(t, mi.KindCatchpoint, info.Kind)

	assert.Equal(t, 3, table.Len())
	assert.Same(t, table, bp.Table())

	require.NoError(t, bp.Delete(1, 3).Wait(ctx))
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, mi.KindWatchpoint, table.BreakpointKind(2))

	require.NoError(t, bp.Delete().Wait(ctx))

	assert.Equal(t, []string{
		"-break-insert main",
		"-break-watch -a total",
		"-catch-throw",
		"-break-delete 1 3",
	}, cmd.operations())
}

func TestBreakpoints_Failures(t *testing.T) {
	cmd := newScriptedCommander(t)
	cmd.answers["-break-insert"] = `1^error,msg="Function \"nope\" not defined."`
	cmd.answers["-catch-load"] = `2^done`

	bp := NewBreakpoints(cmd.exec, cmd, NewBreakpointTable())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := bp.Insert(BreakpointSpec{Location: "nope"}).WaitData(ctx)
	var cmdErr *mi.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, `Function "nope" not defined.`, cmdErr.Message)

	_, err = bp.Catch("load", "libfoo").WaitData(ctx)
	assert.ErrorIs(t, err, errNoBreakpoint)

	_, err = bp.Insert(BreakpointSpec{}).WaitData(ctx)
	assert.Error(t, err)

	assert.Equal(t, []string{"-break-insert nope", "-catch-load libfoo"}, cmd.operations())
}

func TestConfigureCommands(t *testing.T) {
	cfg := DefaultLaunchConfig()
	cfg.PendingBreakpoints = false
	cfg.NonStop = true
	cfg.Env = map[string]string{"PATH": "/a b"}

	assert.Equal(t, []string{
		"-gdb-set confirm off",
		"-gdb-set pagination off",
		"-gdb-set breakpoint pending off",
		"-gdb-set non-stop on",
		`-gdb-set environment "PATH=/a b"`,
	}, configureCommands(cfg))
}

func TestThen_PropagatesCancel(t *testing.T) {
	exec := dispatch.NewExecutor()
	defer exec.Shutdown()

	src := dispatch.NewDataMonitor[int](exec, nil)
	out := then(exec, src, func(v int) (string, error) { return "never", nil })

	out.Cancel()
	require.Eventually(t, src.IsCanceled, time.Second, 5*time.Millisecond)

	_ = src.Complete(dispatch.StatusCancelled, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := out.WaitData(ctx)
	assert.ErrorIs(t, err, dispatch.ErrCancelled)
	assert.Equal(t, dispatch.StatusCancelled, out.Status())
}
