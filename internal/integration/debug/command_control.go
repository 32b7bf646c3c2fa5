package debug

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dshills/mictl/internal/dispatch"
	"github.com/dshills/mictl/internal/integration/debug/mi"
)

// Service names registered by a session.
const (
	CommandControlService = "command-control"
	RunControlService     = "run-control"
	BreakpointsService    = "breakpoints"
)

// maxLineSize bounds a single MI record. Large -data-read-memory or
// -stack-list-variables answers can run to megabytes.
const maxLineSize = 16 << 20

// CommandControl owns the command channel to the debugger: it writes
// commands through the correlator and runs the reader loop that feeds
// output lines to the session's executor.
type CommandControl struct {
	session *Session
	dbg     Debugger
	corr    *mi.Correlator
	decoder *mi.Decoder
	logger  *slog.Logger

	readerDone chan struct{}
	stopOnce   sync.Once
}

func newCommandControl(s *Session, dbg Debugger, timeout time.Duration) *CommandControl {
	opts := []mi.CorrelatorOption{
		mi.WithCorrelatorLogger(s.logger),
		mi.WithCommandTimeout(timeout),
	}
	if s.observer != nil {
		opts = append(opts, mi.WithObserver(s.observer))
	}
	return &CommandControl{
		session:    s,
		dbg:        dbg,
		corr:       mi.NewCorrelator(s.exec, dbg.Stdin(), s.tokens, opts...),
		decoder:    mi.NewDecoder(s.id),
		logger:     s.logger,
		readerDone: make(chan struct{}),
	}
}

// Issue sends operation scoped to ctx. The monitor's continuation runs on
// the session executor.
func (c *CommandControl) Issue(ctx mi.Context, operation string) *dispatch.DataMonitor[mi.CommandResult] {
	if ctx.Session == "" {
		ctx.Session = c.session.id
	}
	return c.corr.Issue(ctx, operation)
}

// Pending returns the number of commands awaiting a result.
func (c *CommandControl) Pending() int {
	return c.corr.Pending()
}

func (c *CommandControl) start() {
	go c.readLoop()
	if r := c.dbg.Stderr(); r != nil {
		go c.drainStderr(r)
	}
}

// drainStderr publishes the debugger's diagnostics as log events until the
// stream ends. The debugger blocks once an unread stderr pipe fills, so the
// stream is discarded rather than abandoned if a line is too long to scan.
func (c *CommandControl) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4<<10), maxLineSize)
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		c.logger.Info("debug: debugger stderr", "line", text)
		ev := mi.LogOutput{
			Base: mi.NewBase("log", mi.Context{Session: c.session.id}, 0, mi.Tuple{}),
			Text: text,
		}
		_ = c.session.exec.Submit(func() { c.session.publish(ev) })
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		c.logger.Warn("debug: reading debugger stderr", "err", err)
		_, _ = io.Copy(io.Discard, r)
	}
}

// readLoop hands every output line to the executor. It is the only
// goroutine reading the debugger's stdout.
func (c *CommandControl) readLoop() {
	defer close(c.readerDone)

	scanner := bufio.NewScanner(c.dbg.Stdout())
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := c.session.exec.Submit(func() { c.handleLine(line) }); err != nil {
			c.logger.Debug("debug: dropping output after executor shutdown", "line", line)
		}
	}

	cause := mi.ErrDebuggerExited
	if err := scanner.Err(); err != nil {
		c.logger.Warn("debug: reading debugger output", "err", err)
		cause = fmt.Errorf("%w: %w", mi.ErrDebuggerExited, err)
	}
	c.session.runOrSubmit(func() {
		c.corr.Close(cause)
		c.session.debuggerExited()
	})
}

// handleLine runs on the executor.
func (c *CommandControl) handleLine(line string) {
	d, err := c.decoder.Decode(line, c.session.breakpoints)
	if err != nil {
		c.logger.Warn("debug: undecodable output", "err", err)
		if c.session.observer != nil {
			c.session.observer.DecodeFailed()
		}
		return
	}

	if rec, ok := d.Record.(mi.ResultRecord); ok {
		if err := c.corr.Deliver(rec); err != nil {
			c.logger.Warn("debug: uncorrelated result", "err", err)
		}
		return
	}
	if d.Event != nil {
		c.session.breakpoints.Apply(d.Event)
		c.session.publish(d.Event)
	}
}

// stop fails pending commands, closes the debugger's input and waits for
// the reader loop to see end of output or ctx to expire.
func (c *CommandControl) stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.corr.Close(mi.ErrDebuggerExited)
		if cerr := c.dbg.Stdin().Close(); cerr != nil {
			err = fmt.Errorf("close debugger input: %w", cerr)
		}
	})
	select {
	case <-c.readerDone:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("waiting for reader: %w", ctx.Err()))
	}
	return err
}

// Shutdown implements service.Service.
func (c *CommandControl) Shutdown(ctx context.Context) error {
	return c.stop(ctx)
}
