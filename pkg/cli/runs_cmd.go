package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"loan-pipeline/internal/domain"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		table      string
		status     string
		limit      int
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded ingestion runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return domain.ErrInvalidConfiguration("--limit must not be negative")
			}
			pf, err := pipelineFile(configPath)
			if err != nil {
				return err
			}
			led, err := openLedger(pf.ApplyPaths(a.cfg.Paths()).LedgerPath)
			if err != nil {
				return err
			}
			defer led.Close() //nolint:errcheck

			filter := domain.IngestionRunFilter{Limit: limit}
			if table != "" {
				filter.Table = &table
			}
			if status != "" {
				s := strings.ToUpper(status)
				filter.Status = &s
			}
			runs, err := led.Reader.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return a.printRuns(runs)
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Only runs that loaded this table")
	cmd.Flags().StringVar(&status, "status", "", "Only runs with this status (running, success, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML pipeline file")
	return cmd
}

func (a *app) printRuns(runs []domain.IngestionRun) error {
	if a.output == "json" {
		out := make([]map[string]any, 0, len(runs))
		for _, r := range runs {
			out = append(out, map[string]any{
				"id":            r.ID,
				"table":         r.Table,
				"mode":          string(r.Mode),
				"status":        r.Status,
				"action":        r.Action,
				"source_files":  r.SourceFiles,
				"snapshot_path": r.SnapshotPath,
				"mirror_uri":    r.MirrorURI,
				"snapshot_rows": r.SnapshotRows,
				"table_rows":    r.TableRows,
				"error_kind":    r.ErrorKind,
				"error_message": r.ErrorMessage,
				"started_at":    r.StartedAt,
				"finished_at":   r.FinishedAt,
			})
		}
		return printJSON(a.stdout, out)
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		errText := ""
		if r.ErrorKind != nil {
			errText = *r.ErrorKind
			if r.ErrorMessage != nil {
				errText += ": " + *r.ErrorMessage
			}
		}
		rows = append(rows, []string{
			r.ID,
			r.Table,
			string(r.Mode),
			r.Status,
			r.Action,
			strconv.FormatInt(r.TableRows, 10),
			r.StartedAt.Local().Format(time.DateTime),
			errText,
		})
	}
	printTable(a.stdout, []string{"ID", "TABLE", "MODE", "STATUS", "ACTION", "ROWS", "STARTED", "ERROR"}, rows)
	return nil
}
