// Package debug drives a GDB/MI debugger session.
//
// A Session owns a single-worker executor on which all of its state
// lives. Bring-up runs as a sequence of steps, each with a rollback:
//
//	startDebugger -> startCommandControl -> registerServices ->
//	configureDebugger -> loadSymbols -> selectTarget ->
//	insertBreakpoints -> startInferior
//
// A failed step rolls back the completed ones in reverse order, and the
// best-effort tear-down sequence then releases whatever is left:
//
//	detachOrKill -> gdbExit -> stopCommandControl -> shutdownServices ->
//	reapDebugger
//
// Once up, capabilities are looked up by name in the session's service
// registry: CommandControl issues raw MI commands, RunControl resumes and
// steps the inferior, Breakpoints manages breakpoints, watchpoints and
// catchpoints. Every command returns a monitor whose continuation runs on
// the session executor.
//
// Decoded events are published to subscribers registered with Subscribe.
// The session's BreakpointTable is kept current from command results and
// breakpoint notifications; the decoder consults it to tell catchpoint
// hits from breakpoint hits.
//
// # Usage
//
//	s := debug.NewSession(
//	    debug.WithLauncher(debug.NewSupervisorLauncher(process.NewSupervisor())),
//	    debug.WithSessionLogger(logger),
//	)
//	if err := s.Start(ctx, cfg); err != nil {
//	    return err
//	}
//	defer s.Close(context.Background())
//
//	rc, _ := s.RunControl()
//	res, err := rc.Next(mi.Context{Thread: "1"}).WaitData(ctx)
//
// # Subpackages
//
//   - mi: MI record parser, event model, decoder and token correlator
//   - service: the per-session service registry
package debug
