// Package mi speaks the GDB/MI machine interface.
//
// Parse turns one line of debugger output into a Record: a result record
// answering a command, an async record (exec, status or notify), a stream
// record, or the prompt. Values inside records form an immutable tree of
// Const, Tuple and List.
//
// A Decoder goes one step further and classifies records into
// CommandResults and typed Events. Some events cannot be classified from a
// single line: GDB reports catchpoints as breakpoint-hit, so the decoder
// consults a caller-supplied KindResolver and the console text that
// preceded the stop.
//
// A Correlator writes Commands with fresh tokens and completes each
// command's monitor when the result record carrying the same token
// arrives. Results are delivered on the session's executor.
package mi
