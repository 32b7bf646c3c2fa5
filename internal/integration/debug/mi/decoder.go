package mi

import (
	"regexp"
)

// maxRetainedStreams bounds the stream text kept for the next async record.
const maxRetainedStreams = 32

// Decoded is the outcome of decoding one line. Record is always set; at
// most one of Result and Event is set (neither for a prompt).
type Decoded struct {
	Record Record
	Result *CommandResult
	Event  Event
}

// Decoder turns lines of MI output into command results and events.
//
// It remembers the stream records seen since the last structured record
// because some stop reasons can only be told apart by the console text
// that precedes them. A Decoder is not safe for concurrent use; a session
// only uses it on its executor.
type Decoder struct {
	session string
	streams []StreamRecord
}

// NewDecoder creates a decoder that stamps events with the session ID.
func NewDecoder(session string) *Decoder {
	return &Decoder{session: session}
}

// Decode parses line and classifies it. resolver may be nil.
//
// A malformed line returns a *DecodeError and leaves the decoder's state
// untouched, so the caller can log it and carry on with the next line.
func (d *Decoder) Decode(line string, resolver KindResolver) (Decoded, error) {
	rec, err := Parse(line)
	if err != nil {
		return Decoded{}, err
	}

	out := Decoded{Record: rec}
	switch r := rec.(type) {
	case PromptRecord:
		d.streams = d.streams[:0]

	case StreamRecord:
		if len(d.streams) == maxRetainedStreams {
			copy(d.streams, d.streams[1:])
			d.streams = d.streams[:len(d.streams)-1]
		}
		d.streams = append(d.streams, r)
		out.Event = streamEvent(d.session, r)

	case ResultRecord:
		res := NewCommandResult(r)
		out.Result = &res
		d.streams = d.streams[:0]

	case AsyncRecord:
		out.Event = BuildEvent(d.session, r, d.streams, resolver)
		d.streams = d.streams[:0]
	}
	return out, nil
}

// Pending returns a copy of the stream records retained for the next
// async record.
func (d *Decoder) Pending() []StreamRecord {
	return append([]StreamRecord(nil), d.streams...)
}

func streamEvent(session string, r StreamRecord) Event {
	ctx := Context{Session: session}
	switch r.Type {
	case KindConsoleStream:
		return ConsoleOutput{Base: NewBase("console", ctx, 0, Tuple{}), Text: r.Text}
	case KindLogStream:
		return LogOutput{Base: NewBase("log", ctx, 0, Tuple{}), Text: r.Text}
	default:
		return TargetOutput{Base: NewBase("target", ctx, 0, Tuple{}), Text: r.Text}
	}
}

// BuildEvent maps an async record onto its event type. preceding holds the
// stream records received since the previous structured record; resolver
// identifies catchpoints by breakpoint number and may be nil.
func BuildEvent(session string, rec AsyncRecord, preceding []StreamRecord, resolver KindResolver) Event {
	t := rec.Results
	ctx := Context{Session: session, Thread: t.Const("thread-id")}

	switch rec.Type {
	case KindExecAsync:
		switch rec.Class {
		case "stopped":
			reason := t.Const("reason")
			b := NewBase(reason, ctx, rec.Token, t)
			if reason == "" {
				return Stopped{Base: NewBase("stopped", ctx, rec.Token, t), StopInfo: parseStopInfo(t)}
			}
			if build, ok := stopReasons[reason]; ok {
				return build(b, t, preceding, resolver)
			}
		case "running":
			return Running{Base: NewBase("running", ctx, rec.Token, t), ThreadID: t.Const("thread-id")}
		}

	case KindNotifyAsync:
		if build, ok := notifyClasses[rec.Class]; ok {
			return build(Context{Session: session}, rec.Token, t)
		}
	}

	reason := rec.Class
	if r := t.Const("reason"); r != "" {
		reason = r
	}
	return Generic{Base: NewBase(reason, ctx, rec.Token, t), Type: rec.Type, Class: rec.Class}
}

type stopBuilder func(b Base, t Tuple, preceding []StreamRecord, resolver KindResolver) Event

var stopReasons = map[string]stopBuilder{
	"breakpoint-hit":            breakpointHit,
	"watchpoint-trigger":        watchpointTrigger("write", "wpt", "hw-wpt"),
	"read-watchpoint-trigger":   watchpointTrigger("read", "hw-rwpt"),
	"access-watchpoint-trigger": watchpointTrigger("access", "hw-awpt"),
	"watchpoint-scope": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return WatchpointScope{Base: b, StopInfo: parseStopInfo(t), Number: atoi(t.Const("wpnum"))}
	},
	"end-stepping-range": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return EndSteppingRange{Base: b, StopInfo: parseStopInfo(t)}
	},
	"function-finished": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return FunctionFinished{
			Base:        b,
			StopInfo:    parseStopInfo(t),
			ReturnValue: t.Const("return-value"),
			ResultVar:   t.Const("gdb-result-var"),
		}
	},
	"location-reached": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return LocationReached{Base: b, StopInfo: parseStopInfo(t)}
	},
	"signal-received": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return SignalReceived{
			Base:     b,
			StopInfo: parseStopInfo(t),
			Name:     t.Const("signal-name"),
			Meaning:  t.Const("signal-meaning"),
		}
	},
	"exited-normally": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return InferiorExited{Base: b, Normal: true}
	},
	"exited": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return InferiorExited{Base: b, ExitCode: t.Const("exit-code")}
	},
	"exited-signalled": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return InferiorSignalExited{Base: b, Name: t.Const("signal-name"), Meaning: t.Const("signal-meaning")}
	},
	"solib-event": func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		return SharedLibraryStop{Base: b, StopInfo: parseStopInfo(t)}
	},
	"fork":           catchReason("newpid"),
	"vfork":          catchReason("newpid"),
	"syscall-entry":  catchReason("syscall-number", "syscall-name"),
	"syscall-return": catchReason("syscall-number", "syscall-name"),
	"exec":           catchReason("new-exec"),
}

var catchpointLine = regexp.MustCompile(`(?i)catchpoint (\d+) \(([^)]*)\)`)

// catchpointFromStreams looks for "Catchpoint N (reason)" in console text.
func catchpointFromStreams(preceding []StreamRecord) (int, string, bool) {
	for i := len(preceding) - 1; i >= 0; i-- {
		if preceding[i].Type != KindConsoleStream {
			continue
		}
		if m := catchpointLine.FindStringSubmatch(preceding[i].Text); m != nil {
			return atoi(m[1]), m[2], true
		}
	}
	return 0, "", false
}

func breakpointHit(b Base, t Tuple, preceding []StreamRecord, resolver KindResolver) Event {
	number := atoi(t.Const("bkptno"))
	info := parseStopInfo(t)

	kind := KindUnknown
	if resolver != nil {
		kind = resolver.BreakpointKind(number)
	}
	streamNum, streamReason, seen := catchpointFromStreams(preceding)

	switch {
	case kind == KindCatchpoint:
		reason := ""
		if seen && streamNum == number {
			reason = streamReason
		}
		return CatchpointHit{Base: b, StopInfo: info, Number: number, CatchReason: reason}
	case kind == KindUnknown && seen && streamNum == number:
		return CatchpointHit{Base: b, StopInfo: info, Number: number, CatchReason: streamReason}
	}

	return BreakpointHit{Base: b, StopInfo: info, Number: number, Disposition: t.Const("disp")}
}

func watchpointTrigger(access string, keys ...string) stopBuilder {
	return func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		ev := WatchpointTrigger{Base: b, StopInfo: parseStopInfo(t), Access: access}
		for _, k := range keys {
			if wpt, ok := t.Tuple(k); ok {
				ev.Number = atoi(wpt.Const("number"))
				ev.Expression = wpt.Const("exp")
				break
			}
		}
		if val, ok := t.Tuple("value"); ok {
			ev.OldValue = val.Const("old")
			ev.NewValue = val.Const("new")
			if v := val.Const("value"); v != "" {
				ev.NewValue = v
			}
		}
		return ev
	}
}

func catchReason(keys ...string) stopBuilder {
	return func(b Base, t Tuple, _ []StreamRecord, _ KindResolver) Event {
		details := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := t.Const(k); v != "" {
				details[k] = v
			}
		}
		return CatchpointHit{
			Base:        b,
			StopInfo:    parseStopInfo(t),
			Number:      atoi(t.Const("bkptno")),
			CatchReason: b.Reason(),
			details:     details,
		}
	}
}

type notifyBuilder func(ctx Context, token int, t Tuple) Event

var notifyClasses = map[string]notifyBuilder{
	"thread-group-added": func(ctx Context, token int, t Tuple) Event {
		id := t.Const("id")
		return ThreadGroupAdded{Base: NewBase("thread-group-added", ctx.WithThreadGroup(id), token, t), GroupID: id}
	},
	"thread-group-started": func(ctx Context, token int, t Tuple) Event {
		id := t.Const("id")
		return ThreadGroupStarted{
			Base:    NewBase("thread-group-started", ctx.WithThreadGroup(id), token, t),
			GroupID: id,
			PID:     t.Const("pid"),
		}
	},
	"thread-group-exited": func(ctx Context, token int, t Tuple) Event {
		id := t.Const("id")
		return ThreadGroupExited{
			Base:     NewBase("thread-group-exited", ctx.WithThreadGroup(id), token, t),
			GroupID:  id,
			ExitCode: t.Const("exit-code"),
		}
	},
	"thread-created": func(ctx Context, token int, t Tuple) Event {
		id, group := t.Const("id"), t.Const("group-id")
		return ThreadCreated{
			Base:     NewBase("thread-created", ctx.WithThreadGroup(group).WithThread(id), token, t),
			ThreadID: id,
			GroupID:  group,
		}
	},
	"thread-exited": func(ctx Context, token int, t Tuple) Event {
		id, group := t.Const("id"), t.Const("group-id")
		return ThreadExited{
			Base:     NewBase("thread-exited", ctx.WithThreadGroup(group).WithThread(id), token, t),
			ThreadID: id,
			GroupID:  group,
		}
	},
	"thread-selected": func(ctx Context, token int, t Tuple) Event {
		id := t.Const("id")
		ev := ThreadSelected{Base: NewBase("thread-selected", ctx.WithThread(id), token, t), ThreadID: id}
		ev.Frame, ev.HasFrame = frameOf(t)
		return ev
	},
	"library-loaded": func(ctx Context, token int, t Tuple) Event {
		group := t.Const("thread-group")
		return LibraryLoaded{
			Base:          NewBase("library-loaded", ctx.WithThreadGroup(group), token, t),
			ID:            t.Const("id"),
			TargetName:    t.Const("target-name"),
			HostName:      t.Const("host-name"),
			SymbolsLoaded: t.Const("symbols-loaded") == "1",
			GroupID:       group,
		}
	},
	"library-unloaded": func(ctx Context, token int, t Tuple) Event {
		group := t.Const("thread-group")
		return LibraryUnloaded{
			Base:       NewBase("library-unloaded", ctx.WithThreadGroup(group), token, t),
			ID:         t.Const("id"),
			TargetName: t.Const("target-name"),
			HostName:   t.Const("host-name"),
			GroupID:    group,
		}
	},
	"breakpoint-created": func(ctx Context, token int, t Tuple) Event {
		bkpt, _ := t.Tuple("bkpt")
		return BreakpointCreated{Base: NewBase("breakpoint-created", ctx, token, t), Breakpoint: ParseBreakpoint(bkpt)}
	},
	"breakpoint-modified": func(ctx Context, token int, t Tuple) Event {
		bkpt, _ := t.Tuple("bkpt")
		return BreakpointModified{Base: NewBase("breakpoint-modified", ctx, token, t), Breakpoint: ParseBreakpoint(bkpt)}
	},
	"breakpoint-deleted": func(ctx Context, token int, t Tuple) Event {
		return BreakpointDeleted{Base: NewBase("breakpoint-deleted", ctx, token, t), Number: atoi(t.Const("id"))}
	},
	"cmd-param-changed": func(ctx Context, token int, t Tuple) Event {
		return ParamChanged{
			Base:  NewBase("cmd-param-changed", ctx, token, t),
			Param: t.Const("param"),
			Value: t.Const("value"),
		}
	},
}
