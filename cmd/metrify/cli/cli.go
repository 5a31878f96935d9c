// Package cli implements the metrify command tree: project scaffolding,
// registry inspection, metric runs, the scheduler, and the inspection
// server.
package cli

import (
	"github.com/spf13/cobra"

	"metrify/internal/version"
)

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "metrify",
		Short:         "Metric orchestration over declarative project configuration",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("config-root", "", "project configuration root (default: METRIFY_CONFIG_ROOT or .)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default: LOG_LEVEL)")
	root.PersistentFlags().Bool("json-logs", false, "emit JSON logs instead of text")

	root.AddCommand(
		newInitCmd(),
		newInspectCmd(),
		newSourcesCmd(),
		newMetricsCmd(),
		newTargetsCmd(),
		newRunsCmd(),
		newServeCmd(),
		newWatchCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			p := newPrinter(outputFormat(cmd))
			if p.format == "json" {
				return p.json(info)
			}
			p.kv([][2]string{
				{"version", info.Version},
				{"commit", info.Commit},
				{"built", info.BuildDate},
				{"go", info.GoVersion},
			})
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "table", "output format: table or json")
	return cmd
}
