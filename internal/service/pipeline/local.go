package pipeline

import (
	"context"
	"log/slog"

	"loan-pipeline/internal/config"
	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/quality"
	"loan-pipeline/internal/service/ingestion"
	"loan-pipeline/internal/store"
)

// Step names, in execution order. Each transform command runs as its own
// step named after StepTransform and the command line.
const (
	StepIngest    = "ingest"
	StepTransform = "transform"
	StepQuality   = "quality"
)

// RunOptions configures one local pipeline run.
type RunOptions struct {
	Mode          domain.Mode
	Paths         config.Paths
	Table         string
	Thresholds    domain.QualityThresholds
	Publish       bool
	Bucket        string
	Prefix        string
	SkipTransform bool
}

// Summary collects the outputs of a local pipeline run. Fields stay nil for
// steps that did not complete.
type Summary struct {
	Ingestion *domain.IngestionResult
	Quality   *domain.QualityReport
}

// LocalPipeline chains ingestion, the transformation commands and the
// quality gate the way the scheduled pipeline does.
type LocalPipeline struct {
	ingest     *ingestion.IngestionService
	gate       *quality.Gate
	transforms []Transform
	runner     *Runner
	logger     *slog.Logger
}

// NewLocalPipeline creates a new LocalPipeline. The transforms run in order
// between ingestion and the quality gate.
func NewLocalPipeline(ingest *ingestion.IngestionService, gate *quality.Gate, transforms []Transform, runner *Runner, logger *slog.Logger) *LocalPipeline {
	return &LocalPipeline{
		ingest:     ingest,
		gate:       gate,
		transforms: transforms,
		runner:     runner,
		logger:     logger,
	}
}

// SourceFor returns the source a mode reads: full_refresh reads the single
// source file, incremental scans the source directory.
func SourceFor(mode domain.Mode, paths config.Paths) domain.SourceSpec {
	if mode == domain.ModeIncremental {
		return domain.SourceSpec{Dir: paths.SourceDir}
	}
	return domain.SourceSpec{Path: paths.SourceFile}
}

// Run executes ingest, every transform command and quality in order. The summary is
// returned alongside any error and holds whatever completed.
func (p *LocalPipeline) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	req := domain.IngestionRequest{
		Source:    SourceFor(opts.Mode, opts.Paths),
		StorePath: opts.Paths.StorePath,
		RawDir:    opts.Paths.RawDir,
		Table:     opts.Table,
		Mode:      opts.Mode,
		Publish:   opts.Publish,
		Bucket:    opts.Bucket,
		Prefix:    opts.Prefix,
	}
	if err := ingestion.Validate(req); err != nil {
		return &Summary{}, err
	}

	summary := &Summary{}
	steps := []Step{{
		Name: StepIngest,
		Run: func(ctx context.Context) error {
			res, err := p.ingest.Ingest(ctx, req)
			summary.Ingestion = res
			return err
		},
	}}
	if !opts.SkipTransform {
		for _, transform := range p.transforms {
			if transform.Dir == "" {
				transform.Dir = opts.Paths.TransformDir
			}
			steps = append(steps, Step{
				Name: transform.StepName(),
				Run:  func(ctx context.Context) error { return transform.Run(ctx, p.logger) },
			})
		}
	}
	steps = append(steps, Step{
		Name: StepQuality,
		Run: func(ctx context.Context) error {
			report, err := p.gate.Check(ctx, store.New(opts.Paths.StorePath), opts.Thresholds)
			summary.Quality = report
			return err
		},
	})

	p.logger.Info("pipeline started", "mode", string(opts.Mode), "steps", len(steps))
	if err := p.runner.Run(ctx, steps); err != nil {
		return summary, err
	}
	p.logger.Info("pipeline succeeded")
	return summary, nil
}
