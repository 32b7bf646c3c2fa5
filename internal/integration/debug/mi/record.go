package mi

// RecordKind classifies one line of MI output by its leading sigil.
type RecordKind int

const (
	// KindResult is a command result record ("^").
	KindResult RecordKind = iota
	// KindExecAsync is an execution state change ("*").
	KindExecAsync
	// KindStatusAsync is progress information for a slow operation ("+").
	KindStatusAsync
	// KindNotifyAsync is supplementary notification ("=").
	KindNotifyAsync
	// KindConsoleStream is CLI console output ("~").
	KindConsoleStream
	// KindTargetStream is output produced by the debuggee ("@"), or any
	// line that is not an MI record at all.
	KindTargetStream
	// KindLogStream is debugger internal diagnostics ("&").
	KindLogStream
	// KindPrompt is the "(gdb)" end-of-output marker.
	KindPrompt
)

// String returns a human-readable kind name.
func (k RecordKind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindExecAsync:
		return "exec-async"
	case KindStatusAsync:
		return "status-async"
	case KindNotifyAsync:
		return "notify-async"
	case KindConsoleStream:
		return "console-stream"
	case KindTargetStream:
		return "target-stream"
	case KindLogStream:
		return "log-stream"
	case KindPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// Record is one parsed line of MI output.
type Record interface {
	Kind() RecordKind
}

// ResultClass is the class of a result record.
type ResultClass string

// Result classes emitted by the debugger.
const (
	ClassDone      ResultClass = "done"
	ClassRunning   ResultClass = "running"
	ClassConnected ResultClass = "connected"
	ClassError     ResultClass = "error"
	ClassExit      ResultClass = "exit"
)

// ResultRecord answers the command carrying the same token.
type ResultRecord struct {
	// Token is the correlation token; 0 when absent or not numeric.
	Token int

	// HasToken is true when the line carried any token text.
	HasToken bool

	Class   ResultClass
	Results Tuple
}

// Kind implements Record.
func (ResultRecord) Kind() RecordKind { return KindResult }

// AsyncRecord is an out-of-band exec, status or notify record.
type AsyncRecord struct {
	// Token is the token of the command that caused the record, or 0.
	Token int

	// Type is one of KindExecAsync, KindStatusAsync, KindNotifyAsync.
	Type RecordKind

	// Class is the async class, e.g. "stopped" or "thread-group-exited".
	Class string

	Results Tuple
}

// Kind implements Record.
func (r AsyncRecord) Kind() RecordKind { return r.Type }

// StreamRecord is free text on the console, target or log channel.
type StreamRecord struct {
	Type RecordKind
	Text string
}

// Kind implements Record.
func (r StreamRecord) Kind() RecordKind { return r.Type }

// PromptRecord marks the end of one batch of output.
type PromptRecord struct{}

// Kind implements Record.
func (PromptRecord) Kind() RecordKind { return KindPrompt }
