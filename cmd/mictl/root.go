package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/mictl/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "mictl",
	Short: "mictl controls a GDB/MI debugger session",
	Long: `mictl brings up a debugger session over the GDB machine interface,
prints the events it decodes and tears the session down on exit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
}

// newLogger builds the stderr logger from the persistent flags.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	formatName, _ := cmd.Flags().GetString("log-format")

	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	format := logging.Format(formatName)
	switch format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return nil, fmt.Errorf("invalid log format %q (must be text or json)", formatName)
	}
	return logging.NewWithWriter(cmd.ErrOrStderr(), format, level), nil
}
