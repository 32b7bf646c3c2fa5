package sequence

import (
	"context"

	"github.com/dshills/mictl/internal/dispatch"
)

// Step is one stage of a Sequence.
//
// Execute and Rollback run on the sequence's executor. Each must complete
// the monitor it is given exactly once, possibly later from a continuation
// after issuing asynchronous work.
type Step interface {
	// Name identifies the step in logs and errors.
	Name() string

	// Execute performs the step.
	Execute(ctx context.Context, rm *dispatch.Monitor)

	// Rollback undoes a successfully executed step.
	Rollback(ctx context.Context, rm *dispatch.Monitor)
}

// StepFunc is a Step assembled from a pair of functions.
// A nil Undo makes rollback a no-op.
type StepFunc struct {
	Label string
	Do    func(ctx context.Context, rm *dispatch.Monitor)
	Undo  func(ctx context.Context, rm *dispatch.Monitor)
}

// NewStep returns a Step from an execute function and an optional rollback.
func NewStep(name string, do, undo func(ctx context.Context, rm *dispatch.Monitor)) *StepFunc {
	return &StepFunc{Label: name, Do: do, Undo: undo}
}

// Name implements Step.
func (s *StepFunc) Name() string {
	return s.Label
}

// Execute implements Step.
func (s *StepFunc) Execute(ctx context.Context, rm *dispatch.Monitor) {
	if s.Do == nil {
		_ = rm.Done()
		return
	}
	s.Do(ctx, rm)
}

// Rollback implements Step.
func (s *StepFunc) Rollback(ctx context.Context, rm *dispatch.Monitor) {
	if s.Undo == nil {
		_ = rm.Done()
		return
	}
	s.Undo(ctx, rm)
}
