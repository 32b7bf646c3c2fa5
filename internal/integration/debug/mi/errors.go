package mi

import (
	"errors"
	"fmt"
)

// Sentinel errors for the mi package.
var (
	// ErrDebuggerExited is reported to every command still pending when the
	// debugger's output stream ends.
	ErrDebuggerExited = errors.New("debugger exited")

	// ErrCommandTimeout is reported when a command exceeds the configured timeout.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrMissingToken is reported for a result record that carries no token
	// and therefore cannot be correlated.
	ErrMissingToken = errors.New("result record without token")

	// ErrUnmatchedToken is reported for a result whose token has no pending command.
	ErrUnmatchedToken = errors.New("no pending command for token")

	// ErrCorrelatorClosed is returned when issuing on a closed correlator.
	ErrCorrelatorClosed = errors.New("command correlator closed")
)

// DecodeError describes a line that could not be parsed.
type DecodeError struct {
	Line   string
	Offset int
	Reason string
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed MI record at offset %d: %s: %q", e.Offset, e.Reason, e.Line)
}

// CommandError is the failure reported by a ^error result record.
type CommandError struct {
	Token     int
	Operation string
	Message   string

	// Code is the optional error code, e.g. "undefined-command".
	Code string
}

// Error implements error.
func (e *CommandError) Error() string {
	if e.Operation == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}
