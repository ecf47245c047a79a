package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/treewatch/internal/config"
	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/lock"
	"github.com/Aman-CERP/treewatch/internal/output"
	"github.com/Aman-CERP/treewatch/internal/session"
	"github.com/Aman-CERP/treewatch/internal/telemetry"
)

type watchFlags struct {
	ignore          []string
	ignoreFile      string
	debounce        time.Duration
	lookback        time.Duration
	pollInterval    time.Duration
	poll            bool
	replay          bool
	caseInsensitive bool
	once            bool
	relative        bool
	noLock          bool
	metricsAddr     string
}

func newWatchCmd() *cobra.Command {
	var flags watchFlags

	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "Watch directory trees and print changed paths",
		Long: `Watch one or more directory trees (default: the current directory) and
print each settled, non-ignored change on its own line.

Settings come from defaults, ~/.config/treewatch/config.yaml, .treewatch.yaml,
TREEWATCH_* environment variables and finally these flags.`,
		Example: `  # Watch the current directory
  treewatch watch

  # Ignore temp files and exit after the first change
  treewatch watch --ignore '**/*.tmp' --once src

  # Rebuild on change
  treewatch watch --relative . | while read -r f; do make; done`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args, flags)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&flags.ignore, "ignore", nil, "Ignore glob, repeatable (appended to configured patterns)")
	f.StringVar(&flags.ignoreFile, "ignore-file", "", "Read ignore globs from file, one per line")
	f.DurationVar(&flags.debounce, "debounce", 0, "Quiet period before a change is reported (default 300ms)")
	f.DurationVar(&flags.lookback, "lookback", 0, "Drop events older than start minus this (default 10s)")
	f.DurationVar(&flags.pollInterval, "poll-interval", 0, "Polling interval when polling (default 1s)")
	f.BoolVar(&flags.poll, "poll", false, "Force the polling backend")
	f.BoolVar(&flags.replay, "replay", false, "Report files modified within the lookback window at start")
	f.BoolVar(&flags.caseInsensitive, "case-insensitive", false, "Match ignore globs case-insensitively")
	f.BoolVar(&flags.once, "once", false, "Exit after the first reported change")
	f.BoolVar(&flags.relative, "relative", false, "Print paths relative to the working directory")
	f.BoolVar(&flags.noLock, "no-lock", false, "Allow another treewatch process on the same roots")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")

	return cmd
}

// applyFlags layers explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config, args []string, flags watchFlags) {
	changed := cmd.Flags().Changed
	if len(args) > 0 {
		cfg.Watch.Roots = args
	}
	cfg.Watch.Ignore = append(cfg.Watch.Ignore, flags.ignore...)
	if changed("ignore-file") {
		cfg.Watch.IgnoreFile = flags.ignoreFile
	}
	if changed("debounce") {
		cfg.Watch.Debounce = flags.debounce.String()
	}
	if changed("lookback") {
		cfg.Watch.Lookback = flags.lookback.String()
	}
	if changed("poll-interval") {
		cfg.Watch.PollInterval = flags.pollInterval.String()
	}
	if changed("poll") {
		cfg.Watch.ForcePolling = flags.poll
	}
	if changed("replay") {
		cfg.Watch.ReplayRecent = flags.replay
	}
	if changed("case-insensitive") {
		cfg.Watch.CaseInsensitive = flags.caseInsensitive
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}
}

// sessionConfig converts the effective configuration for internal/session.
func sessionConfig(cfg *config.Config, stats *telemetry.Stats) (session.Config, error) {
	opts, err := cfg.WatchOptions()
	if err != nil {
		return session.Config{}, err
	}
	rescan, err := cfg.RescanInterval()
	if err != nil {
		return session.Config{}, err
	}

	sc := session.Config{
		Roots:           cfg.Watch.Roots,
		Ignore:          cfg.Watch.Ignore,
		CaseInsensitive: cfg.Watch.CaseInsensitive,
		Options:         opts,
		RescanInterval:  rescan,
		Logger:          slog.Default(),
		Stats:           stats,
	}
	if cfg.Watch.IgnoreFile != "" {
		sc.IgnoreFiles = []string{cfg.Watch.IgnoreFile}
	}
	return sc, nil
}

func runWatch(ctx context.Context, cmd *cobra.Command, args []string, flags watchFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	status := output.New(cmd.ErrOrStderr())
	paths := output.New(cmd.OutOrStdout())

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, args, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	stats := telemetry.NewStats()
	sc, err := sessionConfig(cfg, stats)
	if err != nil {
		return err
	}
	s, err := session.New(sc)
	if err != nil {
		return err
	}

	if !flags.noLock {
		lk := lock.ForRoots(lock.DefaultDir(), s.Roots())
		if err := lk.Acquire(ctx, lock.DefaultRetry()); err != nil {
			return err
		}
		defer func() { _ = lk.Unlock() }()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	var fired atomic.Bool
	react := func(_ context.Context, path string) error {
		if flags.once && fired.Swap(true) {
			return nil
		}
		paths.Path(displayPath(wd, path, flags.relative))
		if flags.once {
			cancelWatch()
		}
		return nil
	}

	h, err := s.Start(watchCtx, react)
	if err != nil {
		return err
	}
	status.Statusf("", "watching %s (%s)", strings.Join(h.Roots(), ", "), h.Backend())

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(metricsCtx)

	if cfg.Metrics.Addr != "" {
		registry, err := telemetry.NewRegistry(stats, prometheus.Labels{"roots": strings.Join(h.Roots(), ",")})
		if err != nil {
			h.Cancel()
			stopMetrics()
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		g.Go(func() error {
			return telemetry.Serve(gctx, cfg.Metrics.Addr, registry)
		})
		status.Statusf("", "metrics on http://%s/metrics", cfg.Metrics.Addr)
	}

	// A failing metrics server ends the watch
	g.Go(func() error {
		<-gctx.Done()
		h.Cancel()
		return nil
	})

	for err := range h.Errors() {
		if twerrors.IsFatal(err) {
			// Terminal; returned below
			continue
		}
		status.Warning(strings.TrimSpace(twerrors.FormatForUser(err, debugMode)))
	}
	<-h.Done()

	stopMetrics()
	metricsErr := g.Wait()

	snap := h.Stats()
	slog.Debug("watch finished",
		slog.Uint64("delivered", snap.Delivered),
		slog.Uint64("ignored", snap.Ignored),
		slog.Uint64("react_errors", snap.ReactErrors),
		slog.Duration("uptime", snap.Uptime()))

	if err := h.Err(); err != nil {
		return err
	}
	if metricsErr != nil {
		return twerrors.New(twerrors.ErrCodeConfigInvalid, "metrics server failed", metricsErr).
			WithDetail("addr", cfg.Metrics.Addr)
	}
	return nil
}

// displayPath renders an absolute path for output.
func displayPath(wd, path string, relative bool) string {
	if !relative {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
