package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent metric runs from the trace log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newRunnerApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			rows, err := a.trace.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			p := newPrinter(outputFormat(cmd))
			if p.format == "json" {
				return p.json(rows)
			}
			var out [][]string
			for _, row := range rows {
				out = append(out, []string{
					row.StartedAt,
					row.MetricID,
					row.TargetID,
					row.Outcome,
					strconv.Itoa(row.RowsWritten),
					row.Error,
				})
			}
			p.table([]string{"STARTED", "METRIC", "TARGET", "OUTCOME", "ROWS", "ERROR"}, out)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	cmd.Flags().StringP("output", "o", "table", "output format: table or json")
	return cmd
}
