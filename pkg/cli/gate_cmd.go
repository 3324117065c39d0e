package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/quality"
	"loan-pipeline/internal/store"
)

func newGateCmd(a *app) *cobra.Command {
	var (
		storePath  string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Check that every layer holds enough rows",
		Long: `Count the rows of the canonical raw, silver and gold tables and fail with
EmptyLayer when any of them falls below its minimum. Duplicate business keys
are reported as warnings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf, err := pipelineFile(configPath)
			if err != nil {
				return err
			}
			thresholds, err := pf.Thresholds()
			if err != nil {
				return err
			}
			paths := pf.ApplyPaths(a.cfg.Paths())
			st := store.New(stringFlag(cmd.Flags(), "store", storePath, paths.StorePath))

			report, checkErr := quality.NewGate(a.logger).Check(cmd.Context(), st, thresholds)
			if report != nil {
				if err := a.printQuality(report); err != nil {
					return err
				}
			}
			return checkErr
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "Analytical store path (default <root>/dbt/data_challenge.duckdb)")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML pipeline file")
	return cmd
}

func (a *app) printQuality(report *domain.QualityReport) error {
	if a.output == "json" {
		layers := make([]map[string]any, 0, len(report.Layers))
		for _, l := range report.Layers {
			layers = append(layers, map[string]any{
				"layer":          string(l.Layer),
				"table":          l.Table,
				"exists":         l.Exists,
				"rows":           l.Rows,
				"min_rows":       l.MinRows,
				"key_column":     l.KeyColumn,
				"duplicate_keys": l.DuplicateKeys,
			})
		}
		return printJSON(a.stdout, map[string]any{"layers": layers, "warnings": report.Warnings})
	}

	rows := make([][]string, 0, len(report.Layers))
	for _, l := range report.Layers {
		status := "ok"
		if l.Rows < l.MinRows {
			status = "EMPTY"
		}
		dups := "-"
		if l.KeyColumn != "" {
			dups = strconv.FormatInt(l.DuplicateKeys, 10)
		}
		rows = append(rows, []string{
			string(l.Layer),
			l.Table,
			strconv.FormatInt(l.Rows, 10),
			strconv.FormatInt(l.MinRows, 10),
			dups,
			status,
		})
	}
	printTable(a.stdout, []string{"LAYER", "TABLE", "ROWS", "MIN", "DUPLICATES", "STATUS"}, rows)
	return nil
}
