package mi

import (
	"slices"
	"strconv"
)

// Event is a typed, immutable out-of-band notification from the debugger.
//
// Concrete events are value types; subscribers receive copies.
type Event interface {
	// Reason is the stop reason, notify class, or exec class that selected
	// the event type.
	Reason() string

	// Context is the session/group/thread the event applies to.
	Context() Context

	// Token is the token of the command that caused the event, or 0 when
	// the event was unsolicited.
	Token() int

	// Raw is the record's full result list.
	Raw() Tuple
}

// Base carries the fields common to all events.
type Base struct {
	reason string
	ctx    Context
	token  int
	raw    Tuple
}

// NewBase creates the common part of an event.
func NewBase(reason string, ctx Context, token int, raw Tuple) Base {
	return Base{reason: reason, ctx: ctx, token: token, raw: raw}
}

// Reason implements Event.
func (b Base) Reason() string { return b.reason }

// Context implements Event.
func (b Base) Context() Context { return b.ctx }

// Token implements Event.
func (b Base) Token() int { return b.token }

// Raw implements Event.
func (b Base) Raw() Tuple { return b.raw }

// Arg is a function argument shown in a frame.
type Arg struct {
	Name  string
	Value string
}

// Frame describes a stack frame as reported in stop events.
type Frame struct {
	Level    int
	Addr     string
	Func     string
	File     string
	Fullname string
	Line     int
	From     string
	args     []Arg
}

// Args returns a copy of the frame's arguments.
func (f Frame) Args() []Arg {
	return slices.Clone(f.args)
}

// ParseFrame decodes a frame={...} tuple.
func ParseFrame(t Tuple) Frame {
	f := Frame{
		Level:    atoi(t.Const("level")),
		Addr:     t.Const("addr"),
		Func:     t.Const("func"),
		File:     t.Const("file"),
		Fullname: t.Const("fullname"),
		Line:     atoi(t.Const("line")),
		From:     t.Const("from"),
	}
	if args, ok := t.List("args"); ok {
		for _, v := range args.Values() {
			if at, ok := v.(Tuple); ok {
				f.args = append(f.args, Arg{Name: at.Const("name"), Value: at.Const("value")})
			}
		}
		for _, r := range args.Results() {
			if at, ok := r.Value.(Tuple); ok {
				f.args = append(f.args, Arg{Name: at.Const("name"), Value: at.Const("value")})
			}
		}
	}
	return f
}

// frameOf returns the frame={...} tuple of t, if any.
func frameOf(t Tuple) (Frame, bool) {
	ft, ok := t.Tuple("frame")
	if !ok {
		return Frame{}, false
	}
	return ParseFrame(ft), true
}

// BreakpointKind is the kind of a breakpoint number in the session's table.
type BreakpointKind int

const (
	// KindUnknown means the number is not in the table.
	KindUnknown BreakpointKind = iota
	// KindBreakpoint is an ordinary code breakpoint.
	KindBreakpoint
	// KindWatchpoint is a data watchpoint.
	KindWatchpoint
	// KindCatchpoint is an event catchpoint (exception, fork, syscall...).
	KindCatchpoint
	// KindTracepoint is a tracepoint.
	KindTracepoint
	// KindDprintf is a dynamic printf.
	KindDprintf
)

// String returns a human-readable kind name.
func (k BreakpointKind) String() string {
	switch k {
	case KindBreakpoint:
		return "breakpoint"
	case KindWatchpoint:
		return "watchpoint"
	case KindCatchpoint:
		return "catchpoint"
	case KindTracepoint:
		return "tracepoint"
	case KindDprintf:
		return "dprintf"
	default:
		return "unknown"
	}
}

// ParseBreakpointKind maps the type field of a breakpoint tuple to a kind.
func ParseBreakpointKind(typ string) BreakpointKind {
	switch typ {
	case "breakpoint", "hw breakpoint":
		return KindBreakpoint
	case "watchpoint", "hw watchpoint", "read watchpoint", "acc watchpoint":
		return KindWatchpoint
	case "catchpoint":
		return KindCatchpoint
	case "tracepoint", "fast tracepoint", "static tracepoint":
		return KindTracepoint
	case "dprintf":
		return KindDprintf
	}
	return KindUnknown
}

// KindResolver looks up the kind of a breakpoint number. The decoder uses
// it to tell catchpoint hits from breakpoint hits; the table behind it is
// maintained by the caller.
type KindResolver interface {
	BreakpointKind(number int) BreakpointKind
}

// KindResolverFunc adapts a function to KindResolver.
type KindResolverFunc func(number int) BreakpointKind

// BreakpointKind implements KindResolver.
func (f KindResolverFunc) BreakpointKind(number int) BreakpointKind {
	return f(number)
}

// atoi parses a decimal field, yielding 0 when it is absent or malformed.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
