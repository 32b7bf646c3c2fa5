package debug

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DebuggerConfig selects the debugger executable.
type DebuggerConfig struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`
}

// LaunchConfig is the typed form of a session's launch configuration.
type LaunchConfig struct {
	Debugger DebuggerConfig `mapstructure:"debugger"`

	// Program is the executable to debug. It may be empty when attaching
	// or connecting to a remote target that provides symbols itself.
	Program string            `mapstructure:"program"`
	Args    []string          `mapstructure:"args"`
	Cwd     string            `mapstructure:"cwd"`
	Env     map[string]string `mapstructure:"env"`

	// StopOnEntry inserts a temporary breakpoint at StopSymbol.
	StopOnEntry bool   `mapstructure:"stop_on_entry"`
	StopSymbol  string `mapstructure:"stop_symbol"`

	// AttachPID attaches to a running process instead of starting one.
	AttachPID int `mapstructure:"attach_pid"`

	// Remote is a host:port for -target-select remote.
	Remote string `mapstructure:"remote"`

	NonStop            bool `mapstructure:"non_stop"`
	PendingBreakpoints bool `mapstructure:"pending_breakpoints"`

	// CommandTimeout fails commands that get no result in time. Zero
	// waits until the debugger exits.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	// Breakpoints are locations inserted during bring-up.
	Breakpoints []string `mapstructure:"breakpoints"`
}

// DefaultDebuggerArgs starts gdb in MI mode without reading init files.
var DefaultDebuggerArgs = []string{"--interpreter=mi2", "--nx", "-q"}

// DefaultLaunchConfig returns the configuration used for absent keys.
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		Debugger: DebuggerConfig{
			Path: "gdb",
			Args: append([]string(nil), DefaultDebuggerArgs...),
		},
		StopSymbol:         "main",
		PendingBreakpoints: true,
	}
}

// Errors reported for invalid launch configurations.
var (
	// ErrConflictingTarget is returned when both attach_pid and remote are set.
	ErrConflictingTarget = errors.New("attach_pid and remote are mutually exclusive")

	// ErrMissingProgram is reported by bring-up when there is nothing to
	// load symbols from and no process to attach to.
	ErrMissingProgram = errors.New("program is required unless attaching")
)

// DecodeLaunchConfig decodes a configuration bag, as produced by the config
// loaders, on top of DefaultLaunchConfig. Values are weakly typed, so
// "true" and "1" decode into bools and "5s" into durations.
func DecodeLaunchConfig(bag map[string]any) (LaunchConfig, error) {
	cfg := DefaultLaunchConfig()
	// Slices decode into existing elements; start them empty so a shorter
	// configured list does not keep trailing defaults.
	cfg.Debugger.Args = nil

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return LaunchConfig{}, fmt.Errorf("launch config decoder: %w", err)
	}
	if err := dec.Decode(bag); err != nil {
		return LaunchConfig{}, fmt.Errorf("decode launch config: %w", err)
	}

	if cfg.Debugger.Args == nil {
		cfg.Debugger.Args = append([]string(nil), DefaultDebuggerArgs...)
	}
	if err := cfg.Validate(); err != nil {
		return LaunchConfig{}, err
	}
	return cfg, nil
}

// Validate checks settings that are wrong regardless of the target.
func (c LaunchConfig) Validate() error {
	if c.Debugger.Path == "" {
		return errors.New("debugger.path is empty")
	}
	if c.AttachPID < 0 {
		return fmt.Errorf("attach_pid %d is negative", c.AttachPID)
	}
	if c.AttachPID > 0 && c.Remote != "" {
		return ErrConflictingTarget
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout %s is negative", c.CommandTimeout)
	}
	if c.StopOnEntry && c.StopSymbol == "" {
		return errors.New("stop_on_entry requires stop_symbol")
	}
	return nil
}

// attaching reports whether the session connects to an existing process
// instead of starting the program.
func (c LaunchConfig) attaching() bool {
	return c.AttachPID > 0 || c.Remote != ""
}
