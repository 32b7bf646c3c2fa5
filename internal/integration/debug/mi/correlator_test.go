package mi

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mictl/internal/dispatch"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSuffix(b.buf.String(), "\n"), "\n")
}

type recordingObserver struct {
	mu        sync.Mutex
	issued    []string
	completed []string
	dropped   []string
}

func (o *recordingObserver) CommandIssued(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.issued = append(o.issued, op)
}

func (o *recordingObserver) CommandCompleted(op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, op+":"+outcome)
}

func (o *recordingObserver) ResultDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, reason)
}

func newTestCorrelator(t *testing.T, opts ...CorrelatorOption) (*Correlator, *syncBuffer) {
	t.Helper()
	exec := dispatch.NewExecutor(dispatch.WithName("mi-test"))
	t.Cleanup(exec.Shutdown)
	w := &syncBuffer{}
	return NewCorrelator(exec, w, &TokenCounter{}, opts...), w
}

func deliverLine(t *testing.T, c *Correlator, line string) error {
	t.Helper()
	rec, err := Parse(line)
	require.NoError(t, err)
	return c.Deliver(rec.(ResultRecord))
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCorrelator_DeliversResult(t *testing.T) {
	c, w := newTestCorrelator(t)

	rm := c.Issue(Context{Session: "s1"}, "-break-insert hello.c:4")
	assert.Equal(t, []string{"1-break-insert hello.c:4"}, w.Lines())
	assert.Equal(t, 1, c.Pending())

	require.NoError(t, deliverLine(t, c, `1^done,bkpt={number="2",type="breakpoint"}`))

	res, err := rm.WaitData(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Token)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	bkpt, ok := res.Results.Tuple("bkpt")
	require.True(t, ok)
	assert.Equal(t, "2", bkpt.Const("number"))
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_ErrorResult(t *testing.T) {
	c, _ := newTestCorrelator(t)
	c.counter.n.Store(29)

	rm := c.Issue(Context{}, "-data-read-memory 0x8020a3 x 1 1 1")
	require.NoError(t, deliverLine(t, c, `30^error,msg="Cannot access memory at address 0x8020a3"`))

	res, err := rm.WaitData(waitCtx(t))
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 30, ce.Token)
	assert.Equal(t, "-data-read-memory", ce.Operation)
	assert.Equal(t, "Cannot access memory at address 0x8020a3", ce.Message)
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, "Cannot access memory at address 0x8020a3", res.ErrorMessage)
	assert.Equal(t, dispatch.StatusError, rm.Status())
}

func TestCorrelator_ContextOptions(t *testing.T) {
	c, w := newTestCorrelator(t)

	c.Issue(Context{ThreadGroup: "i1", Thread: "2", Frame: "0"}, "-stack-list-locals 1")
	c.Issue(Context{Thread: "2"}, "info threads")

	assert.Equal(t, []string{
		"1-stack-list-locals --thread-group i1 --thread 2 --frame 0 1",
		"2info threads",
	}, w.Lines())
}

func TestCorrelator_TokensUnique(t *testing.T) {
	c, w := newTestCorrelator(t)

	const goroutines, perGoroutine = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				c.Issue(Context{}, "-thread-info")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*perGoroutine, c.Pending())
	seen := make(map[int]bool)
	for _, line := range w.Lines() {
		tok, err := strconv.Atoi(strings.TrimSuffix(line, "-thread-info"))
		require.NoError(t, err)
		assert.False(t, seen[tok], "token %d reused", tok)
		seen[tok] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestCorrelator_MissingAndUnmatchedTokens(t *testing.T) {
	obs := &recordingObserver{}
	c, _ := newTestCorrelator(t, WithObserver(obs))
	rm := c.Issue(Context{}, "-gdb-version")

	assert.ErrorIs(t, deliverLine(t, c, `^done`), ErrMissingToken)
	assert.ErrorIs(t, deliverLine(t, c, `xyz^done`), ErrMissingToken)
	assert.ErrorIs(t, deliverLine(t, c, `99^done`), ErrUnmatchedToken)
	assert.False(t, rm.IsDone())
	assert.Equal(t, []string{"missing-token", "missing-token", "unmatched"}, obs.dropped)
}

func TestCorrelator_CloseFailsPending(t *testing.T) {
	c, _ := newTestCorrelator(t)
	a := c.Issue(Context{}, "-exec-continue")
	b := c.Issue(Context{}, "-thread-info")

	c.Close(nil)

	for _, rm := range []*dispatch.DataMonitor[CommandResult]{a, b} {
		err := rm.Wait(waitCtx(t))
		assert.ErrorIs(t, err, ErrDebuggerExited)
	}
	assert.Equal(t, 0, c.Pending())
	assert.True(t, c.Closed())

	late := c.Issue(Context{}, "-thread-info")
	err := late.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrCorrelatorClosed)
	assert.ErrorIs(t, err, ErrDebuggerExited)
}

func TestCorrelator_CancelAbandons(t *testing.T) {
	obs := &recordingObserver{}
	c, _ := newTestCorrelator(t, WithObserver(obs))
	rm := c.Issue(Context{}, "-exec-next")

	rm.Cancel()
	err := rm.Wait(waitCtx(t))
	assert.ErrorIs(t, err, dispatch.ErrCancelled)
	assert.Equal(t, dispatch.StatusCancelled, rm.Status())
	assert.Equal(t, 0, c.Pending())

	require.NoError(t, deliverLine(t, c, `1^done`))
	assert.Equal(t, dispatch.StatusCancelled, rm.Status())
	assert.Equal(t, []string{"abandoned"}, obs.dropped)
	assert.Equal(t, []string{"-exec-next:cancelled"}, obs.completed)
}

func TestCorrelator_Timeout(t *testing.T) {
	c, _ := newTestCorrelator(t, WithCommandTimeout(20*time.Millisecond))
	rm := c.Issue(Context{}, "-target-select remote :1234")

	err := rm.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrCommandTimeout)
	assert.Equal(t, 0, c.Pending())

	require.NoError(t, deliverLine(t, c, `1^connected`))
}

func abandonedCount(c *Correlator) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.abandoned)
}

func TestCorrelator_AbandonedTokensBounded(t *testing.T) {
	c, _ := newTestCorrelator(t)
	for i := 0; i < maxAbandoned+10; i++ {
		rm := c.Issue(Context{}, "-data-evaluate-expression x")
		rm.Cancel()
		require.Error(t, rm.Wait(waitCtx(t)))
	}
	assert.Equal(t, maxAbandoned, abandonedCount(c))

	// The oldest tokens were forgotten; the newest are still discarded quietly.
	assert.ErrorIs(t, deliverLine(t, c, `1^done`), ErrUnmatchedToken)
	require.NoError(t, deliverLine(t, c, strconv.Itoa(maxAbandoned+10)+`^done`))

	c.Close(nil)
	assert.Equal(t, 0, abandonedCount(c))
}

func TestCorrelator_TimeoutStoppedByResult(t *testing.T) {
	c, _ := newTestCorrelator(t, WithCommandTimeout(50*time.Millisecond))
	rm := c.Issue(Context{}, "-gdb-version")
	require.NoError(t, deliverLine(t, c, `1^done`))
	require.NoError(t, rm.Wait(waitCtx(t)))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, rm.IsSuccess())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestCorrelator_WriteError(t *testing.T) {
	exec := dispatch.NewExecutor()
	t.Cleanup(exec.Shutdown)
	c := NewCorrelator(exec, failingWriter{}, &TokenCounter{})

	rm := c.Issue(Context{}, "-gdb-exit")
	err := rm.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_ObserverOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	c, _ := newTestCorrelator(t, WithObserver(obs))

	ok := c.Issue(Context{}, "-gdb-set confirm off")
	bad := c.Issue(Context{}, "-bogus")
	require.NoError(t, deliverLine(t, c, `1^done`))
	require.NoError(t, deliverLine(t, c, `2^error,msg="Undefined MI command: bogus",code="undefined-command"`))
	require.NoError(t, ok.Wait(waitCtx(t)))
	require.Error(t, bad.Wait(waitCtx(t)))

	assert.Equal(t, []string{"-gdb-set", "-bogus"}, obs.issued)
	assert.Equal(t, []string{"-gdb-set:success", "-bogus:error"}, obs.completed)
}
