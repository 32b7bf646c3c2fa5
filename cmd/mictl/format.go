package main

import (
	"fmt"
	"strings"

	"github.com/dshills/mictl/internal/integration/debug/mi"
)

// formatEvent renders an event as one line for the terminal. Stream text
// is returned as the debugger sent it.
func formatEvent(ev mi.Event) string {
	switch e := ev.(type) {
	case mi.ConsoleOutput:
		return strings.TrimRight(e.Text, "\n")
	case mi.TargetOutput:
		return strings.TrimRight(e.Text, "\n")
	case mi.LogOutput:
		return strings.TrimRight(e.Text, "\n")
	}

	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(ev.Reason())
	sb.WriteString("]")

	switch e := ev.(type) {
	case mi.BreakpointHit:
		fmt.Fprintf(&sb, " breakpoint %d", e.Number)
	case mi.CatchpointHit:
		fmt.Fprintf(&sb, " catchpoint %d (%s)", e.Number, e.CatchReason)
	case mi.WatchpointTrigger:
		fmt.Fprintf(&sb, " %s: %s -> %s", e.Expression, e.OldValue, e.NewValue)
	case mi.SignalReceived:
		fmt.Fprintf(&sb, " %s (%s)", e.Name, e.Meaning)
	case mi.InferiorExited:
		if e.ExitCode != "" {
			fmt.Fprintf(&sb, " code %s", e.ExitCode)
		}
	case mi.InferiorSignalExited:
		fmt.Fprintf(&sb, " %s", e.Name)
	case mi.BreakpointCreated:
		fmt.Fprintf(&sb, " %s %s", e.Breakpoint.Number, e.Breakpoint.Kind)
	case mi.BreakpointModified:
		fmt.Fprintf(&sb, " %s hits=%d", e.Breakpoint.Number, e.Breakpoint.Times)
	case mi.BreakpointDeleted:
		fmt.Fprintf(&sb, " %d", e.Number)
	case mi.Generic:
		fmt.Fprintf(&sb, " %s", e.Raw().String())
	}

	raw := ev.Raw()
	if tid := raw.Const("thread-id"); tid != "" {
		fmt.Fprintf(&sb, " thread=%s", tid)
	}
	if ft, ok := raw.Tuple("frame"); ok {
		f := mi.ParseFrame(ft)
		fmt.Fprintf(&sb, " at %s", f.Func)
		if f.File != "" {
			fmt.Fprintf(&sb, " (%s:%d)", f.File, f.Line)
		}
	}
	return sb.String()
}

// formatResult renders a command result.
func formatResult(res mi.CommandResult) string {
	if res.Outcome == mi.OutcomeError {
		if res.ErrorCode != "" {
			return fmt.Sprintf("%d^error %s (%s)", res.Token, res.ErrorMessage, res.ErrorCode)
		}
		return fmt.Sprintf("%d^error %s", res.Token, res.ErrorMessage)
	}
	if res.Results.Len() == 0 {
		return fmt.Sprintf("%d^%s", res.Token, res.Class)
	}
	body := res.Results.String()
	return fmt.Sprintf("%d^%s %s", res.Token, res.Class, body[1:len(body)-1])
}
