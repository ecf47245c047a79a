package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/treewatch/internal/config"
	"github.com/Aman-CERP/treewatch/internal/lock"
	"github.com/Aman-CERP/treewatch/internal/logging"
	"github.com/Aman-CERP/treewatch/internal/output"
	"github.com/Aman-CERP/treewatch/pkg/version"
)

type versionFormat int

const (
	versionText versionFormat = iota
	versionShort
	versionJSON
	versionVerbose
)

func newVersionCmd() *cobra.Command {
	var asJSON, short, verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the treewatch version with its commit, build date and Go version.
--verbose also lists where treewatch keeps its config, logs and locks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format := versionText
			switch {
			case short:
				format = versionShort
			case asJSON:
				format = versionJSON
			case verbose:
				format = versionVerbose
			}
			return printVersion(cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Output only the version number")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Also show state and config locations")
	cmd.MarkFlagsMutuallyExclusive("json", "short", "verbose")

	return cmd
}

func printVersion(w io.Writer, format versionFormat) error {
	switch format {
	case versionShort:
		_, err := fmt.Fprintln(w, version.Short())
		return err
	case versionJSON:
		data, err := json.MarshalIndent(version.GetInfo(), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if _, err := fmt.Fprintln(w, version.String()); err != nil {
		return err
	}
	if format == versionVerbose {
		out := output.New(w)
		out.Newline()
		out.KeyValues(map[string]string{
			"home":        logging.HomeDir(),
			"debug log":   logging.DefaultLogPath(),
			"locks":       lock.DefaultDir(),
			"user config": config.GetUserConfigPath(),
		})
	}
	return nil
}
