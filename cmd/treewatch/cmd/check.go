package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/matcher"
	"github.com/Aman-CERP/treewatch/internal/output"
)

func newCheckCmd() *cobra.Command {
	var (
		paths           []string
		ignoreFile      string
		caseInsensitive bool
	)

	cmd := &cobra.Command{
		Use:   "check PATTERN...",
		Short: "Validate ignore globs and test paths against them",
		Long: `Compile ignore globs exactly as watch does and report, for each --path,
whether it would be ignored. Paths are relative to a watch root; a trailing
slash tests a directory (everything below it).`,
		Example: `  treewatch check '**/*.tmp' 'build/**' --path src/a.go --path build/out.bin
  treewatch check --ignore-file .watchignore --path node_modules/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, ignoreFile, caseInsensitive, paths)
		},
	}

	cmd.Flags().StringArrayVar(&paths, "path", nil, "Relative path to test, repeatable")
	cmd.Flags().StringVar(&ignoreFile, "ignore-file", "", "Read additional globs from file")
	cmd.Flags().BoolVar(&caseInsensitive, "case-insensitive", false, "Match case-insensitively")

	return cmd
}

func runCheck(cmd *cobra.Command, patterns []string, ignoreFile string, caseInsensitive bool, paths []string) error {
	if ignoreFile != "" {
		fromFile, err := matcher.LoadFile(ignoreFile)
		if err != nil {
			return twerrors.ConfigError("cannot read ignore file "+ignoreFile, err)
		}
		patterns = append(patterns, fromFile...)
	}
	if len(patterns) == 0 {
		return twerrors.ValidationError("no patterns given", nil).
			WithSuggestion("Pass globs as arguments or use --ignore-file")
	}

	var opts []matcher.Option
	if caseInsensitive {
		opts = append(opts, matcher.WithCaseInsensitive())
	}
	m, err := matcher.Compile(patterns, opts...)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	status := output.New(cmd.ErrOrStderr())
	status.Successf("%d pattern(s) valid", m.Len())

	for _, p := range paths {
		rel := filepath.ToSlash(p)
		var ignored bool
		if strings.HasSuffix(rel, "/") {
			ignored = m.TestDir(strings.TrimSuffix(rel, "/"))
		} else {
			ignored = m.Test(rel)
		}
		out.Verdict(p, ignored)
	}
	return nil
}
