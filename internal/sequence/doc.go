// Package sequence runs ordered, rollback-capable multi-step operations on a
// dispatch executor.
//
// Debug session bring-up and tear-down are linear dependency chains: the
// target must be selected before symbols are loaded, symbols before the
// inferior starts. A Sequence executes its steps strictly in order, starting
// step N+1 only after step N's monitor reports success. If a step fails,
// the steps that already succeeded are rolled back newest first, so a
// failed bring-up leaves nothing half-initialized.
//
//	seq := sequence.New(exec, []sequence.Step{
//	    sequence.NewStep("start", startFn, stopFn),
//	    sequence.NewStep("configure", configureFn, nil),
//	}, sequence.WithName("bring-up"))
//
//	rm := dispatch.NewMonitor(exec, func(rm *dispatch.Monitor) {
//	    // sequence finished
//	})
//	seq.Run(ctx, rm)
//
// Steps may finish asynchronously: Execute returns immediately after issuing
// work and completes its monitor later from a continuation.
package sequence
