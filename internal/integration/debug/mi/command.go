package mi

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Context identifies what a command or event applies to: a session, a
// thread group (inferior) within it, a thread, and a stack frame. Empty
// fields are unscoped.
type Context struct {
	Session     string
	ThreadGroup string
	Thread      string
	Frame       string
}

// String returns a compact description such as "s1/i1/t2/f0".
func (c Context) String() string {
	parts := []string{c.Session}
	if c.ThreadGroup != "" {
		parts = append(parts, c.ThreadGroup)
	}
	if c.Thread != "" {
		parts = append(parts, "t"+c.Thread)
	}
	if c.Frame != "" {
		parts = append(parts, "f"+c.Frame)
	}
	return strings.Join(parts, "/")
}

// WithThread returns a copy scoped to thread.
func (c Context) WithThread(thread string) Context {
	c.Thread = thread
	return c
}

// WithThreadGroup returns a copy scoped to group.
func (c Context) WithThreadGroup(group string) Context {
	c.ThreadGroup = group
	return c
}

// WithFrame returns a copy scoped to frame.
func (c Context) WithFrame(frame string) Context {
	c.Frame = frame
	return c
}

// Command is one request written to the debugger.
type Command struct {
	Token     int
	Context   Context
	Operation string
}

// Name returns the operation name, e.g. "-break-insert".
func (c Command) Name() string {
	name, _, _ := strings.Cut(strings.TrimSpace(c.Operation), " ")
	return name
}

// String renders the command line without the trailing newline. MI
// operations get --thread-group, --thread and --frame options from the
// context inserted after the operation name.
func (c Command) String() string {
	var sb strings.Builder
	if c.Token > 0 {
		sb.WriteString(strconv.Itoa(c.Token))
	}

	op := strings.TrimSpace(c.Operation)
	if !strings.HasPrefix(op, "-") {
		sb.WriteString(op)
		return sb.String()
	}

	name, rest, _ := strings.Cut(op, " ")
	sb.WriteString(name)
	if c.Context.ThreadGroup != "" {
		sb.WriteString(" --thread-group ")
		sb.WriteString(c.Context.ThreadGroup)
	}
	if c.Context.Thread != "" {
		sb.WriteString(" --thread ")
		sb.WriteString(c.Context.Thread)
	}
	if c.Context.Frame != "" {
		sb.WriteString(" --frame ")
		sb.WriteString(c.Context.Frame)
	}
	if rest != "" {
		sb.WriteByte(' ')
		sb.WriteString(rest)
	}
	return sb.String()
}

// Outcome is the success or failure of a command.
type Outcome int

const (
	// OutcomeSuccess covers ^done, ^running, ^connected and ^exit.
	OutcomeSuccess Outcome = iota
	// OutcomeError is ^error.
	OutcomeError
)

// String returns "success" or "error".
func (o Outcome) String() string {
	if o == OutcomeError {
		return "error"
	}
	return "success"
}

// CommandResult is the decoded answer to a command.
type CommandResult struct {
	Token   int
	Outcome Outcome
	Class   ResultClass

	// Results holds the result list, e.g. bkpt={...} for -break-insert.
	Results Tuple

	// ErrorMessage and ErrorCode are set for OutcomeError.
	ErrorMessage string
	ErrorCode    string
}

// NewCommandResult builds a CommandResult from a result record.
func NewCommandResult(rec ResultRecord) CommandResult {
	res := CommandResult{
		Token:   rec.Token,
		Outcome: OutcomeSuccess,
		Class:   rec.Class,
		Results: rec.Results,
	}
	if rec.Class == ClassError {
		res.Outcome = OutcomeError
		res.ErrorMessage = rec.Results.Const("msg")
		res.ErrorCode = rec.Results.Const("code")
	}
	return res
}

// TokenCounter hands out command tokens. A session owns one counter and
// shares it with its correlator; tokens start at 1 and never repeat.
type TokenCounter struct {
	n atomic.Int64
}

// Next returns the next token.
func (c *TokenCounter) Next() int {
	return int(c.n.Add(1))
}
