// Package service holds the per-session service registry.
//
// A debug session registers each capability it brings up (command control,
// run control, breakpoints) under a fixed name. Steps that need a
// capability look it up by name with Lookup, which also checks the type.
// Tear-down shuts the services down newest first.
package service
