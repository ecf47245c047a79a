// Package cmd provides the CLI commands for treewatch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/treewatch/internal/config"
	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/logging"
	"github.com/Aman-CERP/treewatch/internal/profiling"
	"github.com/Aman-CERP/treewatch/pkg/version"
)

// Logging flags
var (
	debugMode      bool
	logLevel       string
	loggingCleanup func()
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     *profiling.Session
)

// NewRootCmd creates the root command for the treewatch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treewatch",
		Short: "Watch directory trees and print settled changes",
		Long: `treewatch watches one or more directory trees and reports each changed
path once it has been quiet for the debounce window.

Paths matching ignore globs (doublestar syntax, e.g. "**/*.tmp") are never
reported. Changed paths go to stdout, one per line; status goes to stderr.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("treewatch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.treewatch/logs/")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config, else info)")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts any requested profiles, then logging.
func startProfilingAndLogging(cmd *cobra.Command, args []string) error {
	opts := profiling.Options{CPU: profileCPU, Heap: profileMem, Trace: profileTrace}
	if opts.Enabled() {
		s, err := profiling.Start(opts)
		if err != nil {
			return twerrors.New(twerrors.ErrCodeInvalidInput, "failed to start profiling", err)
		}
		profiler = s
	}
	return startLogging(cmd, args)
}

// stopProfilingAndLogging writes the heap profile if requested and stops
// logging.
func stopProfilingAndLogging(cmd *cobra.Command, args []string) error {
	err := stopProfiling()
	_ = stopLogging(cmd, args)
	if err != nil {
		return twerrors.New(twerrors.ErrCodeInternal, "failed to write profiles", err)
	}
	return nil
}

func stopProfiling() error {
	if profiler == nil {
		return nil
	}
	err := profiler.Stop()
	profiler = nil
	return err
}

// startLogging installs the default logger. --debug adds the rotating JSON
// log file; otherwise logs are text on stderr.
func startLogging(cmd *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.Stderr = cmd.ErrOrStderr()

	if debugMode {
		cfg = logging.DebugConfig()
		cfg.Stderr = cmd.ErrOrStderr()
	} else if logLevel != "" {
		cfg.Level = logLevel
	} else if wd, err := os.Getwd(); err == nil {
		// A broken config is reported by the commands that need it
		if loaded, err := config.Load(wd); err == nil {
			cfg.Level = loaded.Logging.Level
			cfg.MaxSizeMB = loaded.Logging.MaxSizeMB
			cfg.MaxFiles = loaded.Logging.MaxFiles
		}
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return twerrors.ConfigError("invalid logging setup", err).
			WithSuggestion("Use --log-level debug, info, warn or error")
	}
	loggingCleanup = cleanup

	if debugMode {
		slog.Debug("debug logging enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Version))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints a formatted error on failure.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), twerrors.FormatForCLI(err))
		_ = stopProfiling()
		_ = stopLogging(root, nil)
	}
	return err
}
