package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"metrify/internal/scaffold"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")

			written, err := scaffold.Write(cfg.ConfigRoot, force)
			if err != nil {
				return err
			}
			if len(written) == 0 {
				fmt.Println("Nothing to do: starter files already exist (use --force to overwrite).")
				return nil
			}
			for _, path := range written {
				fmt.Println("wrote", path)
			}
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite existing files")
	return cmd
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Discover the project and summarize what was registered",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			typeFilter, _ := cmd.Flags().GetString("type")
			verbose, _ := cmd.Flags().GetBool("verbose")

			show := func(kind string) bool {
				return typeFilter == "" || typeFilter == kind
			}

			if show("source") {
				fmt.Printf("Sources (%d):\n", a.reg.Sources.Len())
				for id, src := range a.reg.Sources.All() {
					if verbose {
						fmt.Printf("  %s  [%s]\n", id, typeName(src))
					} else {
						fmt.Printf("  %s\n", id)
					}
				}
			}
			if show("metric") {
				fmt.Printf("Metrics (%d):\n", a.reg.Metrics.Len())
				for id, spec := range a.reg.Metrics.All() {
					if verbose {
						fmt.Printf("  %s  source=%s columns=%s\n", id, spec.SourceID, strings.Join(spec.Required(), ","))
						if spec.Description != "" {
							fmt.Printf("      %s\n", spec.Description)
						}
					} else {
						fmt.Printf("  %s\n", id)
					}
				}
			}
			if show("target") {
				fmt.Printf("Targets (%d):\n", a.reg.Targets.Len())
				for id, tgt := range a.reg.Targets.All() {
					if verbose {
						fmt.Printf("  %s  [%s]\n", id, typeName(tgt))
					} else {
						fmt.Printf("  %s\n", id)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().String("type", "", "limit to one kind: source, metric, or target")
	cmd.Flags().BoolP("verbose", "v", false, "show details per entry")
	return cmd
}

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage discovered sources",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if p.format == "json" {
				return p.json(a.reg.Sources.IDs())
			}
			var rows [][]string
			for id, src := range a.reg.Sources.All() {
				rows = append(rows, []string{id, typeName(src)})
			}
			p.table([]string{"ID", "KIND"}, rows)
			return nil
		},
	}
	list.Flags().StringP("output", "o", "table", "output format: table or json")
	cmd.AddCommand(list)
	return cmd
}

func newTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage discovered targets",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			p := newPrinter(outputFormat(cmd))
			if p.format == "json" {
				return p.json(a.reg.Targets.IDs())
			}
			var rows [][]string
			for id, tgt := range a.reg.Targets.All() {
				rows = append(rows, []string{id, typeName(tgt)})
			}
			p.table([]string{"ID", "KIND"}, rows)
			return nil
		},
	}
	list.Flags().StringP("output", "o", "table", "output format: table or json")
	cmd.AddCommand(list)
	return cmd
}

// typeName reports a short type name for a registry entry, e.g. "CSV"
// for *source.CSV.
func typeName(v any) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
