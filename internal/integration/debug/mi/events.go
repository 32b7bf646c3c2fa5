package mi

// StopInfo holds the fields every *stopped record may carry.
type StopInfo struct {
	ThreadID       string
	StoppedThreads string
	Core           string
	Frame          Frame
	HasFrame       bool
}

func parseStopInfo(t Tuple) StopInfo {
	info := StopInfo{
		ThreadID:       t.Const("thread-id"),
		StoppedThreads: t.Const("stopped-threads"),
		Core:           t.Const("core"),
	}
	info.Frame, info.HasFrame = frameOf(t)
	return info
}

// Stopped is a stop with no reason, or a reason that has no dedicated type
// but is known to halt execution (e.g. an interrupt in all-stop mode).
type Stopped struct {
	Base
	StopInfo
}

// BreakpointHit reports a stop at a breakpoint. Whether the breakpoint is
// known to the session is for the subscriber to resolve.
type BreakpointHit struct {
	Base
	StopInfo
	Number      int
	Disposition string
}

// CatchpointHit reports a stop at a catchpoint. GDB reports most
// catchpoints as breakpoint-hit; the decoder produces this type when the
// caller's KindResolver or the preceding console text identifies one.
type CatchpointHit struct {
	Base
	StopInfo
	Number int

	// CatchReason is the parenthesized description, e.g. "exception thrown",
	// or the stop reason for fork/vfork/syscall/exec catchpoints.
	CatchReason string

	details map[string]string
}

// Detail returns a reason-specific value such as "newpid" or "syscall-name".
func (c CatchpointHit) Detail(key string) string {
	return c.details[key]
}

// WatchpointTrigger reports a stop caused by a watchpoint.
type WatchpointTrigger struct {
	Base
	StopInfo
	Number     int
	Expression string

	// Access is "write", "read" or "access".
	Access   string
	OldValue string
	NewValue string
}

// WatchpointScope reports that a watchpoint went out of scope.
type WatchpointScope struct {
	Base
	StopInfo
	Number int
}

// EndSteppingRange reports the end of a step or next.
type EndSteppingRange struct {
	Base
	StopInfo
}

// FunctionFinished reports the end of -exec-finish.
type FunctionFinished struct {
	Base
	StopInfo
	ReturnValue string
	ResultVar   string
}

// LocationReached reports the end of -exec-until.
type LocationReached struct {
	Base
	StopInfo
}

// SignalReceived reports a stop caused by a signal.
type SignalReceived struct {
	Base
	StopInfo
	Name    string
	Meaning string
}

// InferiorExited reports that the debuggee exited. ExitCode is passed
// through as reported ("04" stays "04"); it is empty for exited-normally.
type InferiorExited struct {
	Base
	ExitCode string
	Normal   bool
}

// InferiorSignalExited reports that the debuggee was killed by a signal.
type InferiorSignalExited struct {
	Base
	Name    string
	Meaning string
}

// SharedLibraryStop reports a stop on a shared library event.
type SharedLibraryStop struct {
	Base
	StopInfo
}

// Running reports that threads resumed execution.
type Running struct {
	Base
	ThreadID string
}

// ThreadGroupAdded reports a new inferior.
type ThreadGroupAdded struct {
	Base
	GroupID string
}

// ThreadGroupStarted reports that an inferior started a process.
type ThreadGroupStarted struct {
	Base
	GroupID string
	PID     string
}

// ThreadGroupExited reports that an inferior's process exited.
type ThreadGroupExited struct {
	Base
	GroupID  string
	ExitCode string
}

// ThreadCreated reports a new thread.
type ThreadCreated struct {
	Base
	ThreadID string
	GroupID  string
}

// ThreadExited reports a thread exit.
type ThreadExited struct {
	Base
	ThreadID string
	GroupID  string
}

// ThreadSelected reports a change of the selected thread or frame.
type ThreadSelected struct {
	Base
	ThreadID string
	Frame    Frame
	HasFrame bool
}

// LibraryLoaded reports a shared library load.
type LibraryLoaded struct {
	Base
	ID            string
	TargetName    string
	HostName      string
	SymbolsLoaded bool
	GroupID       string
}

// LibraryUnloaded reports a shared library unload.
type LibraryUnloaded struct {
	Base
	ID         string
	TargetName string
	HostName   string
	GroupID    string
}

// BreakpointInfo is the decoded bkpt={...} tuple.
type BreakpointInfo struct {
	Number      string
	Type        string
	Kind        BreakpointKind
	Disposition string
	Enabled     bool
	Addr        string
	Func        string
	File        string
	Fullname    string
	Line        int
	Times       int
	Condition   string

	// What is set for catchpoints and watchpoints, e.g. "exception throw".
	What string
}

// ParseBreakpoint decodes a bkpt={...} tuple.
func ParseBreakpoint(t Tuple) BreakpointInfo {
	typ := t.Const("type")
	kind := ParseBreakpointKind(typ)
	if kind == KindUnknown && t.Const("catch-type") != "" {
		kind = KindCatchpoint
	}
	return BreakpointInfo{
		Number:      t.Const("number"),
		Type:        typ,
		Kind:        kind,
		Disposition: t.Const("disp"),
		Enabled:     t.Const("enabled") == "y",
		Addr:        t.Const("addr"),
		Func:        t.Const("func"),
		File:        t.Const("file"),
		Fullname:    t.Const("fullname"),
		Line:        atoi(t.Const("line")),
		Times:       atoi(t.Const("times")),
		Condition:   t.Const("cond"),
		What:        t.Const("what"),
	}
}

// BreakpointCreated reports a breakpoint created outside MI (e.g. from the console).
type BreakpointCreated struct {
	Base
	Breakpoint BreakpointInfo
}

// BreakpointModified reports a change to a breakpoint, including hit counts.
type BreakpointModified struct {
	Base
	Breakpoint BreakpointInfo
}

// BreakpointDeleted reports a breakpoint deletion. GDB deletes whole
// breakpoints, so Number never names a sub-location.
type BreakpointDeleted struct {
	Base
	Number int
}

// ParamChanged reports a "set" of a debugger parameter.
type ParamChanged struct {
	Base
	Param string
	Value string
}

// ConsoleOutput is text on the debugger's console stream.
type ConsoleOutput struct {
	Base
	Text string
}

// TargetOutput is text produced by the debuggee.
type TargetOutput struct {
	Base
	Text string
}

// LogOutput is the debugger's internal log stream.
type LogOutput struct {
	Base
	Text string
}

// Generic carries a record whose reason or class has no dedicated type.
type Generic struct {
	Base
	Type  RecordKind
	Class string
}
