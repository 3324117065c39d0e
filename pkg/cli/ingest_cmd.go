package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"loan-pipeline/internal/config"
	"loan-pipeline/internal/domain"
)

type ingestFlags struct {
	source        string
	sourceDir     string
	sourcePattern string
	store         string
	rawDir        string
	table         string
	mode          string
	publish       bool
	bucket        string
	prefix        string
	configPath    string
}

func newIngestCmd(a *app) *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest spreadsheets into the RAW layer",
		Long: `Read one spreadsheet (--source) or every matching file in a directory
(--source_dir), write an immutable Parquet snapshot, optionally mirror it to
object storage, and load it into raw.<table> according to --mode.`,
		Example: `  loanctl ingest --source "data/Data Engineer Challenge.xlsx" --mode full_refresh
  loanctl ingest --source_dir data --source_pattern "loans_*.xlsx" --mode incremental --publish`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, pf, err := f.request(cmd, a.cfg)
			if err != nil {
				return err
			}

			svc, led := a.ingestionService(pf.ApplyPaths(a.cfg.Paths()).LedgerPath, pf.SourceWorkers())
			defer led.Close() //nolint:errcheck

			res, err := svc.Ingest(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printIngestion(res)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.source, "source", "", "Spreadsheet to ingest (.xlsx, .xlsm or .csv)")
	fl.StringVar(&f.sourceDir, "source_dir", "", "Directory of spreadsheets to ingest; wins over --source")
	fl.StringVar(&f.sourcePattern, "source_pattern", "", "Glob selecting files in --source_dir (default *.xlsx, *.xlsm, *.csv)")
	fl.StringVar(&f.store, "store", "", "Analytical store path (default <root>/dbt/data_challenge.duckdb)")
	fl.StringVar(&f.rawDir, "raw_dir", "", "Snapshot directory (default <root>/raw_data)")
	fl.StringVar(&f.table, "table", "", "RAW table name (default "+config.DefaultTable+")")
	fl.StringVar(&f.mode, "mode", "", "Ingestion mode: full_refresh or incremental (required)")
	fl.BoolVar(&f.publish, "publish", false, "Mirror the snapshot to object storage. S3 uses static credentials only: KEY_ID, SECRET and REGION (or AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION); instance roles and shared AWS config are not read")
	fl.StringVar(&f.bucket, "bucket", "", "Mirror bucket, optionally gs:// or az:// (default $RAW_S3_BUCKET)")
	fl.StringVar(&f.prefix, "prefix", "", "Object key prefix (default $RAW_S3_PREFIX or "+config.DefaultRawPrefix+")")
	fl.StringVar(&f.configPath, "config", "", "YAML pipeline file")

	return cmd
}

// request resolves flags, the pipeline file and the environment into an
// ingestion request. Command-line flags win over the file, which wins over
// the environment. The pipeline file is returned as loaded, nil when none
// was given.
func (f *ingestFlags) request(cmd *cobra.Command, cfg *config.Config) (domain.IngestionRequest, *config.PipelineFile, error) {
	if f.mode == "" {
		return domain.IngestionRequest{}, nil, domain.ErrInvalidConfiguration("--mode is required: use %q or %q",
			domain.ModeFullRefresh, domain.ModeIncremental)
	}
	mode, err := domain.ParseMode(f.mode)
	if err != nil {
		return domain.IngestionRequest{}, nil, err
	}
	pf, err := pipelineFile(f.configPath)
	if err != nil {
		return domain.IngestionRequest{}, nil, err
	}
	paths := pf.ApplyPaths(cfg.Paths())

	table := config.DefaultTable
	if pf != nil && pf.Table != "" {
		table = pf.Table
	}

	flags := cmd.Flags()
	req := domain.IngestionRequest{
		Source: domain.SourceSpec{
			Path:    f.source,
			Dir:     f.sourceDir,
			Pattern: f.sourcePattern,
		},
		StorePath: stringFlag(flags, "store", f.store, paths.StorePath),
		RawDir:    stringFlag(flags, "raw_dir", f.rawDir, paths.RawDir),
		Table:     stringFlag(flags, "table", f.table, table),
		Mode:      mode,
		Publish:   f.publish,
		Bucket:    stringFlag(flags, "bucket", f.bucket, cfg.RawBucket),
		Prefix:    stringFlag(flags, "prefix", f.prefix, cfg.RawPrefix),
	}
	return req, pf, nil
}

func (a *app) printIngestion(res *domain.IngestionResult) error {
	if a.output == "json" {
		files := make([]map[string]any, 0, len(res.Files))
		for _, sf := range res.Files {
			files = append(files, map[string]any{"name": sf.Name, "path": sf.Path, "rows": sf.Rows})
		}
		return printJSON(a.stdout, map[string]any{
			"run_id":        res.RunID,
			"files":         files,
			"snapshot":      res.Snapshot.Path,
			"snapshot_rows": res.Snapshot.Rows,
			"mirror_uri":    res.MirrorURI,
			"table":         res.Load.Table,
			"action":        res.Load.Action.String(),
			"table_rows":    res.Load.RowCount,
			"added_columns": res.Load.AddedColumns,
		})
	}

	rows := [][]string{
		{"run", res.RunID},
		{"files", strconv.Itoa(len(res.Files))},
		{"snapshot", res.Snapshot.Path},
		{"snapshot rows", strconv.FormatInt(res.Snapshot.Rows, 10)},
	}
	if res.MirrorURI != "" {
		rows = append(rows, []string{"mirror", res.MirrorURI})
	}
	rows = append(rows,
		[]string{"table", res.Load.Table},
		[]string{"action", res.Load.Action.String()},
		[]string{"table rows", strconv.FormatInt(res.Load.RowCount, 10)},
	)
	printDetail(a.stdout, rows)
	return nil
}
