package debug

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/mictl/internal/dispatch"
	"github.com/dshills/mictl/internal/integration/debug/mi"
	"github.com/dshills/mictl/internal/integration/debug/service"
	"github.com/dshills/mictl/internal/sequence"
)

// teardownTimeout bounds the whole tear-down sequence.
const teardownTimeout = 30 * time.Second

// Start brings the session up and waits for the outcome.
func (s *Session) Start(ctx context.Context, cfg LaunchConfig) error {
	return s.BringUp(cfg).Wait(ctx)
}

// Close tears the session down and waits for it to finish.
func (s *Session) Close(ctx context.Context) error {
	return s.TearDown().Wait(ctx)
}

// BringUp starts the debugger, registers the session services and starts
// the debuggee as cfg describes. The returned monitor completes when the
// session is ready or bring-up has failed.
//
// A failed step rolls back the steps before it; the tear-down sequence
// then runs to release anything left, and the monitor reports the
// original failure. Cancelling the monitor aborts bring-up the same way.
func (s *Session) BringUp(cfg LaunchConfig) *dispatch.Monitor {
	rm := dispatch.NewMonitor(s.exec, nil)
	if err := cfg.Validate(); err != nil {
		_ = rm.Fail(err)
		return rm
	}

	err := s.exec.Submit(func() {
		if s.State() != StateIdle {
			_ = rm.Fail(ErrSessionStarted)
			return
		}
		s.cfg = cfg
		s.setState(StateStarting)

		seqRM := dispatch.NewMonitor(s.exec, func(m *dispatch.Monitor) {
			if m.IsSuccess() {
				s.bringUp = nil
				s.setState(StateReady)
				_ = rm.Done()
				if len(s.teardownWaiters) > 0 {
					// Tear-down was requested after the last step started.
					s.startTearDown()
				}
				return
			}
			s.bringUpErr = m.Err()
			s.logger.Error("debug: bring-up failed", "err", m.Err())
			s.teardownWaiters = append(s.teardownWaiters, dispatch.NewMonitor(s.exec, func(*dispatch.Monitor) {
				_ = rm.Complete(m.Status(), m.Err())
			}))
			s.startTearDown()
		})
		rm.AddCancelListener(seqRM.Cancel)
		s.bringUp = seqRM

		seq := sequence.New(s.exec, s.bringUpSteps(),
			sequence.WithName("bring-up"),
			sequence.WithLogger(s.logger),
		)
		if err := seq.Run(context.Background(), seqRM); err != nil {
			_ = seqRM.Fail(err)
		}
	})
	if err != nil {
		_ = rm.Fail(fmt.Errorf("bring-up: %w", ErrSessionClosed))
	}
	return rm
}

// TearDown releases everything the session holds: the debuggee is
// detached or killed, the debugger is told to exit, the command channel
// and services are shut down and the debugger process is reaped. Every
// step runs even when earlier ones fail.
//
// Calling TearDown while a tear-down is in progress returns a monitor for
// the same tear-down. The session executor is shut down when it finishes.
func (s *Session) TearDown() *dispatch.Monitor {
	rm := dispatch.NewMonitor(s.exec, nil)
	err := s.exec.Submit(func() {
		switch s.State() {
		case StateTerminated, StateFailed:
			_ = rm.Done()
			return
		case StateIdle:
			s.setState(StateTerminated)
			_ = rm.Done()
			s.exec.Shutdown()
			return
		}

		s.teardownWaiters = append(s.teardownWaiters, rm)
		if s.State() == StateStarting {
			// The bring-up failure path runs the tear-down.
			s.bringUp.Cancel()
			return
		}
		s.startTearDown()
	})
	if err != nil {
		// The executor is gone, so a tear-down already finished.
		_ = rm.Done()
	}
	return rm
}

// startTearDown runs on the executor. It starts the tear-down sequence
// unless one is already running.
func (s *Session) startTearDown() {
	if s.tearingDown {
		return
	}
	s.tearingDown = true
	s.bringUp = nil
	s.setState(StateStopping)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	seqRM := dispatch.NewMonitor(s.exec, func(m *dispatch.Monitor) {
		cancel()
		s.finishTearDown(m)
	})
	seq := sequence.New(s.exec, s.tearDownSteps(),
		sequence.WithName("tear-down"),
		sequence.WithLogger(s.logger),
		sequence.WithBestEffort(),
	)
	if err := seq.Run(ctx, seqRM); err != nil {
		_ = seqRM.Fail(err)
	}
}

func (s *Session) finishTearDown(m *dispatch.Monitor) {
	if m.IsSuccess() {
		s.logger.Info("debug: session torn down")
	} else {
		s.logger.Warn("debug: tear-down finished with errors", "err", m.Err())
	}

	if s.bringUpErr != nil {
		s.setState(StateFailed)
	} else {
		s.setState(StateTerminated)
	}
	s.exitedOnce.Do(func() { close(s.exited) })

	waiters := s.teardownWaiters
	s.teardownWaiters = nil
	for _, w := range waiters {
		_ = w.Complete(m.Status(), m.Err())
	}
	s.exec.Shutdown()
}

func (s *Session) bringUpSteps() []sequence.Step {
	return []sequence.Step{
		sequence.NewStep("startDebugger", s.startDebugger, s.reapDebugger),
		sequence.NewStep("startCommandControl", s.startCommandControl, s.stopCommandControl),
		sequence.NewStep("registerServices", s.registerServices, s.unregisterServices),
		sequence.NewStep("configureDebugger", s.configureDebugger, nil),
		sequence.NewStep("loadSymbols", s.loadSymbols, nil),
		sequence.NewStep("selectTarget", s.selectTarget, s.detachTarget),
		sequence.NewStep("insertBreakpoints", s.insertBreakpoints, s.deleteBreakpoints),
		sequence.NewStep("startInferior", s.startInferior, nil),
	}
}

func (s *Session) tearDownSteps() []sequence.Step {
	return []sequence.Step{
		sequence.NewStep("detachOrKill", s.detachOrKill, nil),
		sequence.NewStep("gdbExit", s.gdbExit, nil),
		sequence.NewStep("stopCommandControl", s.stopCommandControl, nil),
		sequence.NewStep("shutdownServices", s.shutdownServices, nil),
		sequence.NewStep("reapDebugger", s.reapDebugger, nil),
	}
}

func (s *Session) startDebugger(_ context.Context, rm *dispatch.Monitor) {
	if s.launcher == nil {
		_ = rm.Fail(errors.New("no debugger launcher configured"))
		return
	}
	dbg, err := s.launcher.Launch(debuggerSpec(s.cfg))
	if err != nil {
		_ = rm.Fail(fmt.Errorf("start debugger: %w", err))
		return
	}
	s.dbg = dbg
	s.logger.Info("debug: debugger started", "path", s.cfg.Debugger.Path, "pid", dbg.PID())
	_ = rm.Done()
}

// reapDebugger stops the debugger process off the executor.
func (s *Session) reapDebugger(ctx context.Context, rm *dispatch.Monitor) {
	dbg := s.dbg
	s.dbg = nil
	if dbg == nil {
		_ = rm.Done()
		return
	}
	grace := s.stopGrace
	go func() {
		if err := dbg.Stop(ctx, grace); err != nil {
			_ = rm.Fail(fmt.Errorf("stop debugger: %w", err))
			return
		}
		_ = rm.Done()
	}()
}

func (s *Session) startCommandControl(_ context.Context, rm *dispatch.Monitor) {
	cc := newCommandControl(s, s.dbg, s.cfg.CommandTimeout)
	if err := s.registry.Register(CommandControlService, cc); err != nil {
		_ = rm.Fail(err)
		return
	}
	s.cc = cc
	cc.start()
	_ = rm.Done()
}

// stopCommandControl fails pending commands and waits for the reader loop.
func (s *Session) stopCommandControl(ctx context.Context, rm *dispatch.Monitor) {
	cc := s.cc
	s.cc = nil
	if cc == nil {
		_ = rm.Done()
		return
	}
	_, _ = s.registry.Unregister(CommandControlService)

	waitCtx, cancel := context.WithTimeout(ctx, s.stopGrace)
	go func() {
		defer cancel()
		if err := cc.stop(waitCtx); err != nil {
			_ = rm.Fail(err)
			return
		}
		_ = rm.Done()
	}()
}

func (s *Session) registerServices(_ context.Context, rm *dispatch.Monitor) {
	cc, err := service.Lookup[*CommandControl](s.registry, CommandControlService)
	if err != nil {
		_ = rm.Fail(err)
		return
	}
	if err := s.registry.Register(RunControlService, NewRunControl(cc)); err != nil {
		_ = rm.Fail(err)
		return
	}
	if err := s.registry.Register(BreakpointsService, NewBreakpoints(s.exec, cc, s.breakpoints)); err != nil {
		_, _ = s.registry.Unregister(RunControlService)
		_ = rm.Fail(err)
		return
	}
	_ = rm.Done()
}

func (s *Session) unregisterServices(_ context.Context, rm *dispatch.Monitor) {
	_, _ = s.registry.Unregister(BreakpointsService)
	_, _ = s.registry.Unregister(RunControlService)
	_ = rm.Done()
}

// commands looks up the command channel for a step, failing rm when it
// is not registered.
func (s *Session) commands(rm *dispatch.Monitor) (func(op string) *dispatch.DataMonitor[mi.CommandResult], bool) {
	cc, err := service.Lookup[*CommandControl](s.registry, CommandControlService)
	if err != nil {
		_ = rm.Fail(err)
		return nil, false
	}
	return func(op string) *dispatch.DataMonitor[mi.CommandResult] {
		return cc.Issue(mi.Context{}, op)
	}, true
}

func (s *Session) configureDebugger(_ context.Context, rm *dispatch.Monitor) {
	issue, ok := s.commands(rm)
	if !ok {
		return
	}
	issueAll(issue, configureCommands(s.cfg), rm)
}

func configureCommands(cfg LaunchConfig) []string {
	pending := "off"
	if cfg.PendingBreakpoints {
		pending = "on"
	}
	ops := []string{
		"-gdb-set confirm off",
		"-gdb-set pagination off",
		"-gdb-set breakpoint pending " + pending,
	}
	if cfg.NonStop {
		ops = append(ops, "-gdb-set non-stop on")
	}
	if cfg.Cwd != "" {
		ops = append(ops, "-environment-cd "+quoteArg(cfg.Cwd))
	}
	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ops = append(ops, "-gdb-set environment "+quoteArg(k+"="+cfg.Env[k]))
	}
	return ops
}

func (s *Session) loadSymbols(_ context.Context, rm *dispatch.Monitor) {
	if s.cfg.Program == "" {
		if s.cfg.attaching() {
			_ = rm.Done()
			return
		}
		_ = rm.Fail(ErrMissingProgram)
		return
	}
	issue, ok := s.commands(rm)
	if !ok {
		return
	}
	forward(issue("-file-exec-and-symbols "+quoteArg(s.cfg.Program)), rm)
}

func (s *Session) selectTarget(_ context.Context, rm *dispatch.Monitor) {
	var op string
	switch {
	case s.cfg.Remote != "":
		op = "-target-select remote " + s.cfg.Remote
	case s.cfg.AttachPID > 0:
		op = "-target-attach " + strconv.Itoa(s.cfg.AttachPID)
	default:
		_ = rm.Done()
		return
	}
	issue, ok := s.commands(rm)
	if !ok {
		return
	}
	cmd := issue(op)
	rm.AddCancelListener(cmd.Cancel)
	_ = cmd.OnComplete(func(m *dispatch.Monitor) {
		if m.IsSuccess() {
			s.attached = true
			s.setTarget(TargetStopped)
		}
		_ = rm.Complete(m.Status(), m.Err())
	})
}

// detachOperation returns the command releasing an attached target.
func (s *Session) detachOperation() string {
	if s.cfg.Remote != "" {
		return "-target-disconnect"
	}
	return "-target-detach"
}

func (s *Session) detachTarget(_ context.Context, rm *dispatch.Monitor) {
	if !s.attached {
		_ = rm.Done()
		return
	}
	issue, ok := s.commands(rm)
	if !ok {
		return
	}
	s.attached = false
	forward(s.bounded(issue(s.detachOperation())), rm)
}

func (s *Session) insertBreakpoints(_ context.Context, rm *dispatch.Monitor) {
	specs := make([]BreakpointSpec, 0, len(s.cfg.Breakpoints)+1)
	for _, loc := range s.cfg.Breakpoints {
		specs = append(specs, BreakpointSpec{Location: loc, Pending: s.cfg.PendingBreakpoints})
	}
	if s.cfg.StopOnEntry && !s.cfg.attaching() {
		specs = append(specs, BreakpointSpec{Location: s.cfg.StopSymbol, Temporary: true})
	}
	if len(specs) == 0 {
		_ = rm.Done()
		return
	}

	bp, err := s.BreakpointService()
	if err != nil {
		_ = rm.Fail(err)
		return
	}

	counter := dispatch.NewCountingMonitor(rm)
	for _, spec := range specs {
		child := counter.NewChild()
		ins := bp.Insert(spec)
		rm.AddCancelListener(ins.Cancel)
		_ = ins.OnData(func(m *dispatch.DataMonitor[mi.BreakpointInfo]) {
			if m.IsSuccess() {
				if n, ok := majorNumber(m.Data().Number); ok {
					s.inserted = append(s.inserted, n)
				}
				s.logger.Debug("debug: breakpoint inserted", "location", spec.Location, "number", m.Data().Number)
			}
			_ = child.Complete(m.Status(), m.Err())
		})
	}
	counter.SetCount(len(specs))
}

func (s *Session) deleteBreakpoints(_ context.Context, rm *dispatch.Monitor) {
	numbers := s.inserted
	s.inserted = nil
	if len(numbers) == 0 {
		_ = rm.Done()
		return
	}
	bp, err := s.BreakpointService()
	if err != nil {
		_ = rm.Fail(err)
		return
	}
	del := bp.Delete(numbers...)
	_ = del.OnComplete(func(m *dispatch.Monitor) {
		_ = rm.Complete(m.Status(), m.Err())
	})
}

func (s *Session) startInferior(_ context.Context, rm *dispatch.Monitor) {
	issue, ok := s.commands(rm)
	if !ok {
		return
	}

	var ops []string
	if len(s.cfg.Args) > 0 {
		args := make([]string, len(s.cfg.Args))
		for i, a := range s.cfg.Args {
			args[i] = quoteArg(a)
		}
		ops = append(ops, "-exec-arguments "+strings.Join(args, " "))
	}
	switch {
	case !s.cfg.attaching():
		ops = append(ops, "-exec-run")
	case !s.cfg.StopOnEntry:
		ops = append(ops, "-exec-continue")
	}

	started := dispatch.NewMonitor(s.exec, func(m *dispatch.Monitor) {
		if m.IsSuccess() {
			s.inferiorStarted = true
		}
		_ = rm.Complete(m.Status(), m.Err())
	})
	rm.AddCancelListener(started.Cancel)
	issueAll(issue, ops, started)
}

// bounded cancels cmd if it has not completed within the tear-down
// command timeout.
func (s *Session) bounded(cmd *dispatch.DataMonitor[mi.CommandResult]) *dispatch.DataMonitor[mi.CommandResult] {
	if s.teardownCommandTimeout <= 0 {
		return cmd
	}
	stop := s.exec.SubmitAfter(s.teardownCommandTimeout, cmd.Cancel)
	go func() {
		<-cmd.Completed()
		stop()
	}()
	return cmd
}

func (s *Session) detachOrKill(_ context.Context, rm *dispatch.Monitor) {
	if s.cc == nil {
		_ = rm.Done()
		return
	}
	issue, ok := s.commands(rm)
	if !ok {
		return
	}

	switch {
	case s.attached:
		s.attached = false
		forward(s.bounded(issue(s.detachOperation())), rm)
	case s.inferiorStarted && s.TargetState() != TargetExited:
		s.inferiorStarted = false
		forward(s.bounded(issue("kill")), rm)
	default:
		_ = rm.Done()
	}
}

// gdbExit asks the debugger to quit. Losing the debugger before its
// ^exit arrives counts as success.
func (s *Session) gdbExit(_ context.Context, rm *dispatch.Monitor) {
	if s.cc == nil {
		_ = rm.Done()
		return
	}
	issue, ok := s.commands(rm)
	if !ok {
		return
	}
	cmd := s.bounded(issue("-gdb-exit"))
	_ = cmd.OnComplete(func(m *dispatch.Monitor) {
		if !m.IsSuccess() && errors.Is(m.Err(), mi.ErrDebuggerExited) {
			_ = rm.Done()
			return
		}
		_ = rm.Complete(m.Status(), m.Err())
	})
}

func (s *Session) shutdownServices(ctx context.Context, rm *dispatch.Monitor) {
	reg := s.registry
	go func() {
		if err := reg.ShutdownAll(ctx, BreakpointsService, RunControlService); err != nil {
			_ = rm.Fail(err)
			return
		}
		_ = rm.Done()
	}()
}
