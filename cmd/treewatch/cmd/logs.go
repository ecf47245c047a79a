package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/logging"
	"github.com/Aman-CERP/treewatch/internal/output"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View treewatch debug logs",
		Long: `View and tail the JSON log written by "treewatch --debug".

By default, shows the last 50 lines. Use -f to follow new entries.

Examples:
  treewatch logs                  # Show last 50 lines
  treewatch logs -n 100           # Show last 100 lines
  treewatch logs -f               # Follow logs in real-time
  treewatch logs --level warn     # Only warnings and errors
  treewatch logs --filter rescan  # Filter by pattern`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines matching this regex")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file (default ~/.treewatch/logs/treewatch.log)")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return twerrors.New(twerrors.ErrCodeConfigNotFound, err.Error(), err).
			WithSuggestion("Run treewatch with --debug to write a log file")
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return twerrors.ValidationError("invalid filter pattern", err)
		}
	}

	stdout := cmd.OutOrStdout()
	noColor := opts.noColor || !output.ColorEnabled(stdout)
	viewer, err := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: noColor,
	}, stdout)
	if err != nil {
		return twerrors.ValidationError("invalid --level", err).
			WithSuggestion("Use debug, info, warn or error")
	}

	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(stderr, "Log file: %s\n", path)

	if opts.follow {
		_, _ = fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
		_, _ = fmt.Fprintln(stderr, "---")
		return followLogs(ctx, viewer, path, stdout, stderr)
	}
	_, _ = fmt.Fprintln(stderr, "---")

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return twerrors.Wrap(twerrors.ErrCodeInternal, err)
	}
	viewer.Print(entries)
	return nil
}

func followLogs(ctx context.Context, viewer *logging.Viewer, path string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)

	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			_, _ = fmt.Fprintln(stdout, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(stderr, "\n---")
			_, _ = fmt.Fprintln(stderr, "Stopped.")
			return nil
		}
	}
}
