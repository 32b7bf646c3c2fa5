package sequence

import (
	"errors"
	"fmt"
)

// Sentinel errors for the sequence package.
var (
	// ErrAlreadyStarted is returned when a sequence is run a second time.
	ErrAlreadyStarted = errors.New("sequence already started")

	// ErrCancelled is reported when the sequence was cancelled between steps.
	ErrCancelled = errors.New("sequence cancelled")

	// ErrStepPanicked wraps the panic value of a step.
	ErrStepPanicked = errors.New("step panicked")
)

// StepError reports which step of a sequence failed.
type StepError struct {
	Sequence string
	Index    int
	Step     string
	Err      error
}

// Error implements error.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d (%s): %v", e.Sequence, e.Index, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}
