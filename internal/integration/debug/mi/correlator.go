package mi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/mictl/internal/dispatch"
	"github.com/dshills/mictl/internal/logging"
)

// Observer is notified of command traffic. Implementations must be safe for
// concurrent use.
type Observer interface {
	// CommandIssued is called when a command is assigned its token, just
	// before it is written. Every call is followed by one CommandCompleted.
	CommandIssued(operation string)

	// CommandCompleted is called once per issued command with its outcome:
	// "success", "error", "cancelled", "timeout" or "exited".
	CommandCompleted(operation, outcome string, elapsed time.Duration)

	// ResultDropped is called for a result record that matched no command.
	// reason is "missing-token", "unmatched" or "abandoned".
	ResultDropped(reason string)
}

// CorrelatorOption configures a Correlator.
type CorrelatorOption func(*Correlator)

// WithCorrelatorLogger sets the diagnostic logger.
func WithCorrelatorLogger(logger *slog.Logger) CorrelatorOption {
	return func(c *Correlator) {
		c.logger = logger
	}
}

// WithCommandTimeout fails commands that get no result within d. Zero
// disables the timeout.
func WithCommandTimeout(d time.Duration) CorrelatorOption {
	return func(c *Correlator) {
		c.timeout = d
	}
}

// WithObserver registers an observer for command traffic.
func WithObserver(o Observer) CorrelatorOption {
	return func(c *Correlator) {
		c.observer = o
	}
}

// Correlator writes commands to the debugger and matches result records
// to them by token.
//
// Issue may be called from any goroutine. Results are delivered by the
// session on its executor, and each command's monitor completes there.
type Correlator struct {
	exec     *dispatch.Executor
	counter  *TokenCounter
	logger   *slog.Logger
	timeout  time.Duration
	observer Observer

	mu        sync.Mutex // protects w, pending, abandoned, abandonLog and closed
	w         io.Writer
	pending   map[int]*pendingCommand
	abandoned map[int]struct{}
	// abandonLog holds abandoned tokens oldest first, bounding abandoned.
	abandonLog []int
	closed     error
}

// maxAbandoned bounds how many abandoned tokens are remembered. A result
// older than that is reported as unmatched instead of silently dropped.
const maxAbandoned = 256

type pendingCommand struct {
	cmd       Command
	rm        *dispatch.DataMonitor[CommandResult]
	issued    time.Time
	stopTimer func() bool
}

// NewCorrelator creates a correlator writing to w. Tokens are drawn from
// counter, which the session shares with anything else that numbers commands.
func NewCorrelator(exec *dispatch.Executor, w io.Writer, counter *TokenCounter, opts ...CorrelatorOption) *Correlator {
	c := &Correlator{
		exec:      exec,
		counter:   counter,
		logger:    logging.NewNop(),
		w:         w,
		pending:   make(map[int]*pendingCommand),
		abandoned: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue assigns a token to operation, writes it scoped to ctx, and returns
// a monitor completed with the command's result.
//
// The monitor fails with a *CommandError for ^error results, with the
// close error when the debugger goes away first, and with ErrCommandTimeout
// when a timeout is configured and expires. Cancelling the monitor abandons
// the command; a late result for it is discarded.
func (c *Correlator) Issue(ctx Context, operation string) *dispatch.DataMonitor[CommandResult] {
	cmd := Command{Token: c.counter.Next(), Context: ctx, Operation: operation}
	rm := dispatch.NewDataMonitor[CommandResult](c.exec, nil)

	c.mu.Lock()
	if c.closed != nil {
		err := c.closed
		c.mu.Unlock()
		_ = rm.Fail(fmt.Errorf("%s: %w", cmd.Name(), errors.Join(ErrCorrelatorClosed, err)))
		return rm
	}

	p := &pendingCommand{cmd: cmd, rm: rm, issued: time.Now()}
	c.pending[cmd.Token] = p
	if c.observer != nil {
		c.observer.CommandIssued(cmd.Name())
	}

	line := cmd.String()
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		delete(c.pending, cmd.Token)
		c.mu.Unlock()
		c.logger.Error("mi: write command", "token", cmd.Token, "command", line, "error", err)
		_ = rm.Fail(fmt.Errorf("%s: write: %w", cmd.Name(), err))
		c.completed(p, "error")
		return rm
	}
	if c.timeout > 0 {
		token := cmd.Token
		p.stopTimer = c.exec.SubmitAfter(c.timeout, func() {
			c.abandon(token, dispatch.StatusError, ErrCommandTimeout, "timeout")
		})
	}
	c.mu.Unlock()

	c.logger.Debug("mi: command issued", "token", cmd.Token, "command", line)

	token := cmd.Token
	rm.AddCancelListener(func() {
		c.abandon(token, dispatch.StatusCancelled, nil, "cancelled")
	})
	return rm
}

// abandon removes a pending command and completes its monitor. A result
// arriving for the token later is discarded.
func (c *Correlator) abandon(token int, status dispatch.Status, err error, outcome string) {
	c.mu.Lock()
	p, ok := c.pending[token]
	if ok {
		delete(c.pending, token)
		c.abandoned[token] = struct{}{}
		c.abandonLog = append(c.abandonLog, token)
		if len(c.abandonLog) > maxAbandoned {
			delete(c.abandoned, c.abandonLog[0])
			c.abandonLog = c.abandonLog[1:]
		}
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if p.stopTimer != nil {
		p.stopTimer()
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", p.cmd.Name(), err)
	}
	c.logger.Debug("mi: command abandoned", "token", token, "command", p.cmd.Name(), "outcome", outcome)
	c.completed(p, outcome)
	_ = p.rm.Complete(status, err)
}

// Deliver routes a result record to the command that carries its token.
//
// It returns ErrMissingToken for a record with no token and
// ErrUnmatchedToken for a token nobody is waiting for. Results for
// abandoned commands are dropped without error.
func (c *Correlator) Deliver(rec ResultRecord) error {
	if !rec.HasToken || rec.Token == 0 {
		c.logger.Warn("mi: result without token", "class", string(rec.Class), "results", rec.Results.String())
		c.dropped("missing-token")
		return ErrMissingToken
	}

	c.mu.Lock()
	p, ok := c.pending[rec.Token]
	if ok {
		delete(c.pending, rec.Token)
	}
	_, wasAbandoned := c.abandoned[rec.Token]
	if wasAbandoned {
		delete(c.abandoned, rec.Token)
	}
	c.mu.Unlock()

	if !ok {
		if wasAbandoned {
			c.logger.Debug("mi: discarding result for abandoned command", "token", rec.Token)
			c.dropped("abandoned")
			return nil
		}
		c.logger.Warn("mi: result for unknown token", "token", rec.Token, "class", string(rec.Class))
		c.dropped("unmatched")
		return fmt.Errorf("token %d: %w", rec.Token, ErrUnmatchedToken)
	}

	if p.stopTimer != nil {
		p.stopTimer()
	}

	res := NewCommandResult(rec)
	p.rm.SetData(res)
	if res.Outcome == OutcomeError {
		_ = p.rm.Fail(&CommandError{
			Token:     res.Token,
			Operation: p.cmd.Name(),
			Message:   res.ErrorMessage,
			Code:      res.ErrorCode,
		})
		c.completed(p, "error")
		return nil
	}
	_ = p.rm.Done()
	c.completed(p, "success")
	return nil
}

// Close fails every pending command with err and rejects later Issue
// calls. A nil err means ErrDebuggerExited. Close is idempotent; only the
// first error is kept.
func (c *Correlator) Close(err error) {
	if err == nil {
		err = ErrDebuggerExited
	}

	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return
	}
	c.closed = err
	pending := c.pending
	c.pending = make(map[int]*pendingCommand)
	c.abandoned = make(map[int]struct{})
	c.abandonLog = nil
	c.mu.Unlock()

	for _, p := range pending {
		if p.stopTimer != nil {
			p.stopTimer()
		}
		_ = p.rm.Fail(fmt.Errorf("%s: %w", p.cmd.Name(), err))
		c.completed(p, "exited")
	}
	if len(pending) > 0 {
		c.logger.Info("mi: failed pending commands", "count", len(pending), "error", err)
	}
}

// Pending returns the number of commands awaiting a result.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Closed reports whether Close has been called.
func (c *Correlator) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed != nil
}

func (c *Correlator) completed(p *pendingCommand, outcome string) {
	if c.observer != nil {
		c.observer.CommandCompleted(p.cmd.Name(), outcome, time.Since(p.issued))
	}
}

func (c *Correlator) dropped(reason string) {
	if c.observer != nil {
		c.observer.ResultDropped(reason)
	}
}
