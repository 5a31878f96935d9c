package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"metrify/internal/orchestrator"
)

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "List and run discovered metrics",
	}
	cmd.AddCommand(newMetricsListCmd(), newMetricsRunCmd())
	return cmd
}

func newMetricsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if p.format == "json" {
				return p.json(a.reg.Metrics.IDs())
			}
			var rows [][]string
			for id, spec := range a.reg.Metrics.All() {
				rows = append(rows, []string{id, spec.SourceID, strings.Join(spec.Required(), ","), spec.Schedule})
			}
			p.table([]string{"ID", "SOURCE", "COLUMNS", "SCHEDULE"}, rows)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "table", "output format: table or json")
	return cmd
}

func newMetricsRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [id | pattern...]",
		Short: "Run metrics against a target",
		Long: "Run a single metric by id, every metric matching the given glob\n" +
			"patterns, or all registered metrics with --all. One metric's failure\n" +
			"does not stop the rest of the batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newRunnerApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			shutdown, err := initTelemetry(cmd, a)
			if err != nil {
				return err
			}
			defer shutdown()

			targetID, err := resolveTarget(cmd, a)
			if err != nil {
				return err
			}

			sel, err := buildSelection(cmd, args)
			if err != nil {
				return err
			}

			result, err := a.runner.RunBatch(cmd.Context(), sel, targetID)
			if err != nil {
				return err
			}

			printBatch(result)
			return result.Err()
		},
	}
	cmd.Flags().Bool("all", false, "run every registered metric")
	cmd.Flags().String("target", "", "target id (defaults to the only registered target)")
	return cmd
}

func buildSelection(cmd *cobra.Command, args []string) (orchestrator.Selection, error) {
	all, _ := cmd.Flags().GetBool("all")
	if all {
		if len(args) > 0 {
			return orchestrator.Selection{}, fmt.Errorf("--all does not take metric arguments")
		}
		return orchestrator.Selection{All: true}, nil
	}
	if len(args) == 0 {
		return orchestrator.Selection{}, fmt.Errorf("give metric ids or patterns, or use --all")
	}
	if len(args) == 1 && !strings.ContainsAny(args[0], "*?[{") {
		return orchestrator.Selection{MetricID: args[0]}, nil
	}
	return orchestrator.Selection{Patterns: args}, nil
}

// resolveTarget returns the --target flag, or the sole registered
// target when the flag is empty.
func resolveTarget(cmd *cobra.Command, a *app) (string, error) {
	targetID, _ := cmd.Flags().GetString("target")
	if targetID != "" {
		return targetID, nil
	}
	ids := a.reg.Targets.IDs()
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no targets registered: add a target manifest")
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("multiple targets registered (%s): pass --target", strings.Join(ids, ", "))
	}
}

func printBatch(result orchestrator.BatchResult) {
	p := newPrinter("table")
	var rows [][]string
	for _, rec := range result.Records {
		status := string(rec.Outcome)
		detail := ""
		if rec.Err != nil {
			status = status + " (" + rec.Stage + ")"
			detail = rec.Err.Error()
		}
		rows = append(rows, []string{
			rec.MetricID,
			status,
			strconv.Itoa(rec.RowsWritten),
			rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String(),
			detail,
		})
	}
	p.table([]string{"METRIC", "OUTCOME", "ROWS", "TOOK", "ERROR"}, rows)
	fmt.Printf("\n%d attempted, %d succeeded, %d failed (target %s)\n",
		result.Attempted, result.Succeeded, len(result.Failures), result.TargetID)
}
