package cli

import (
	"context"

	"github.com/spf13/cobra"

	"loan-pipeline/internal/config"
	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/quality"
	"loan-pipeline/internal/service/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		mode          string
		configPath    string
		skipTransform bool
		publish       bool
		bucket        string
		prefix        string
		schedule      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full local pipeline: ingest, transform, quality gate",
		Long: `Run the local pipeline. full_refresh ingests the single source file,
incremental every spreadsheet in the source directory. The transform commands
(default "dbt deps", "dbt run", "dbt test"; override with transform.commands
in --config) run in order in the transform directory, then the quality gate
checks every layer. The chain stops at the first failed step; failed steps
are retried with exponential backoff when transform.retries is set.

With --schedule the pipeline runs on a cron schedule until interrupted.`,
		Example: `  loanctl run
  INGESTION_MODE=incremental loanctl run --skip-transform
  loanctl run --schedule "0 6 * * *"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := domain.ParseMode(stringFlag(cmd.Flags(), "mode", mode, a.cfg.IngestionMode))
			if err != nil {
				return err
			}
			pf, err := pipelineFile(configPath)
			if err != nil {
				return err
			}
			thresholds, err := pf.Thresholds()
			if err != nil {
				return err
			}
			paths := pf.ApplyPaths(a.cfg.Paths())

			opts := pipeline.RunOptions{
				Mode:          m,
				Paths:         paths,
				Table:         config.DefaultTable,
				Thresholds:    thresholds,
				Publish:       publish || (!cmd.Flags().Changed("publish") && a.cfg.IsProduction() && a.cfg.RawBucket != ""),
				Bucket:        stringFlag(cmd.Flags(), "bucket", bucket, a.cfg.RawBucket),
				Prefix:        stringFlag(cmd.Flags(), "prefix", prefix, a.cfg.RawPrefix),
				SkipTransform: skipTransform,
			}
			if pf != nil && pf.Table != "" {
				opts.Table = pf.Table
			}

			svc, led := a.ingestionService(paths.LedgerPath, pf.SourceWorkers())
			defer led.Close() //nolint:errcheck

			var spec config.TransformSpec
			if pf != nil {
				spec = pf.Transform
			}
			local := pipeline.NewLocalPipeline(
				svc,
				quality.NewGate(a.logger),
				pipeline.NewTransforms(spec.CommandLines(), "", a.stderr),
				pipeline.NewRunner(spec.Retries, a.logger),
				a.logger,
			)

			job := func(ctx context.Context) error {
				summary, err := local.Run(ctx, opts)
				if summary != nil && summary.Quality != nil {
					if perr := a.printQuality(summary.Quality); perr != nil {
						return perr
					}
				}
				return err
			}

			if schedule == "" {
				return job(cmd.Context())
			}
			sched, err := pipeline.NewScheduler(schedule, job, a.logger)
			if err != nil {
				return err
			}
			return sched.Run(cmd.Context())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&mode, "mode", "", "Ingestion mode (default $INGESTION_MODE or full_refresh)")
	fl.StringVar(&configPath, "config", "", "YAML pipeline file")
	fl.BoolVar(&skipTransform, "skip-transform", false, "Skip the transform step")
	fl.BoolVar(&publish, "publish", false, "Mirror the snapshot to object storage (default on in production when a bucket is set). S3 needs static KEY_ID, SECRET and REGION or their AWS_* equivalents")
	fl.StringVar(&bucket, "bucket", "", "Mirror bucket (default $RAW_S3_BUCKET)")
	fl.StringVar(&prefix, "prefix", "", "Object key prefix (default $RAW_S3_PREFIX)")
	fl.StringVar(&schedule, "schedule", "", "Cron schedule; run repeatedly until interrupted")
	return cmd
}
