// Package process supervises child processes.
//
// A debug session launches its debugger through a Supervisor:
//
//	sup := process.NewSupervisor(process.WithLogger(logger))
//	proc, err := sup.Start(process.Spec{Name: "gdb", Path: "gdb", Args: []string{"--interpreter=mi2"}})
//	if err != nil {
//	    return err
//	}
//	// write commands to proc.Stdin, read records from proc.Stdout
//
// Shutdown sends SIGTERM to whatever is still running, escalates to SIGKILL
// after a grace period, and waits until every exit has been observed.
package process
