package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/mictl/internal/config/loader"
	"github.com/dshills/mictl/internal/integration/debug"
	"github.com/dshills/mictl/internal/integration/debug/mi"
	"github.com/dshills/mictl/internal/integration/process"
	"github.com/dshills/mictl/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run [program [args...]]",
	Short: "Debug a program until it exits or mictl is interrupted",
	Long: `Brings up a debugger session from the launch configuration, prints every
event the debugger reports and tears the session down when the program
exits, the debugger goes away, or mictl receives SIGINT or SIGTERM.

The configuration is read from --config (TOML or YAML) and MICTL_*
environment variables; a program given on the command line overrides both.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}

		bag, err := loadLaunchConfig(cmd, args)
		if err != nil {
			return err
		}
		cfg, err := debug.DecodeLaunchConfig(bag)
		if err != nil {
			return err
		}

		collector := metrics.New()
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			stop := serveMetrics(addr, collector, logger)
			defer stop()
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runSession(ctx, cmd.OutOrStdout(), cfg, collector, logger)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("config", "c", "", "Launch configuration file (.toml, .yaml)")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().String("gdb", "", "Debugger executable (overrides debugger.path)")
	runCmd.Flags().Bool("stop-on-entry", false, "Stop at the entry symbol")
}

// loadLaunchConfig layers the config file, the environment and the
// command line, later layers winning.
func loadLaunchConfig(cmd *cobra.Command, args []string) (map[string]any, error) {
	var layers []loader.Loader
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		l, err := loader.FileLoaderFor(loader.DefaultFS(), path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	layers = append(layers, loader.NewEnvLoader(loader.DefaultEnvPrefix))

	bag, err := loader.LoadLayers(layers...)
	if err != nil {
		return nil, err
	}

	overrides := map[string]any{}
	if len(args) > 0 {
		overrides["program"] = args[0]
		rest := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			rest = append(rest, a)
		}
		overrides["args"] = rest
	}
	if cmd.Flags().Changed("gdb") {
		gdb, _ := cmd.Flags().GetString("gdb")
		overrides["debugger"] = map[string]any{"path": gdb}
	}
	if cmd.Flags().Changed("stop-on-entry") {
		v, _ := cmd.Flags().GetBool("stop-on-entry")
		overrides["stop_on_entry"] = v
	}
	return loader.DeepMerge(bag, overrides), nil
}

func runSession(ctx context.Context, out io.Writer, cfg debug.LaunchConfig, collector *metrics.Collector, logger *slog.Logger) error {
	sup := process.NewSupervisor(process.WithLogger(logger))
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sup.Shutdown(sctx, 3*time.Second); err != nil {
			logger.Warn("supervisor shutdown", "err", err)
		}
	}()

	session := debug.NewSession(
		debug.WithLauncher(debug.NewSupervisorLauncher(sup)),
		debug.WithSessionLogger(logger),
		debug.WithSessionObserver(collector),
	)

	inferiorDone := make(chan struct{}, 1)
	session.Subscribe(func(ev mi.Event) {
		fmt.Fprintln(out, formatEvent(ev))
		switch ev.(type) {
		case mi.InferiorExited, mi.InferiorSignalExited:
			select {
			case inferiorDone <- struct{}{}:
			default:
			}
		}
	})

	startErr := session.Start(ctx, cfg)
	if startErr == nil {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, tearing down")
		case <-inferiorDone:
			logger.Info("program exited, tearing down")
		case <-session.Exited():
			logger.Warn("debugger exited")
		}
	}

	tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := session.Close(tctx)
	if startErr != nil {
		return fmt.Errorf("bring-up: %w", startErr)
	}
	return closeErr
}

// serveMetrics exposes collector on addr and returns a function that
// stops the server.
func serveMetrics(addr string, collector *metrics.Collector, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "err", err)
		}
	}
}
