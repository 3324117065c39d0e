// Package ingestion runs one ingestion: read the sources, write a snapshot,
// optionally mirror it, and load it into the RAW layer.
package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loan-pipeline/internal/ddl"
	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/loader"
	"loan-pipeline/internal/mirror"
	"loan-pipeline/internal/snapshot"
	"loan-pipeline/internal/source"
	"loan-pipeline/internal/store"
)

// MirrorFactory returns the object mirror for bucket.
type MirrorFactory func(ctx context.Context, bucket string) (domain.ObjectMirror, error)

// IngestionService runs ingestions and records them in the run ledger.
//
//nolint:revive // Name chosen for clarity across package boundaries
type IngestionService struct {
	sources   *source.Loader
	snapshots *snapshot.Writer
	loader    *loader.Loader
	runs      domain.IngestionRunRepository // may be nil
	mirrors   MirrorFactory                 // may be nil when publishing is never requested
	logger    *slog.Logger
	now       func() time.Time
}

// NewIngestionService creates a new IngestionService.
func NewIngestionService(
	sources *source.Loader,
	snapshots *snapshot.Writer,
	ldr *loader.Loader,
	runs domain.IngestionRunRepository,
	mirrors MirrorFactory,
	logger *slog.Logger,
) *IngestionService {
	return &IngestionService{
		sources:   sources,
		snapshots: snapshots,
		loader:    ldr,
		runs:      runs,
		mirrors:   mirrors,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate checks a request before any work is done.
func Validate(req domain.IngestionRequest) error {
	if req.Source.Path == "" && req.Source.Dir == "" {
		return domain.ErrInvalidConfiguration("either --source or --source_dir is required")
	}
	if !req.Mode.Valid() {
		return domain.ErrInvalidConfiguration("--mode must be %q or %q, got %q",
			domain.ModeFullRefresh, domain.ModeIncremental, req.Mode)
	}
	if err := ddl.ValidateIdentifier(req.Table); err != nil {
		return domain.ErrInvalidConfiguration("invalid table name %q: %v", req.Table, err)
	}
	if req.StorePath == "" {
		return domain.ErrInvalidConfiguration("--store is required")
	}
	if req.RawDir == "" {
		return domain.ErrInvalidConfiguration("--raw_dir is required")
	}
	if req.Publish && req.Bucket == "" {
		return domain.ErrInvalidConfiguration("--publish requires --bucket or RAW_S3_BUCKET")
	}
	return nil
}

// Ingest runs one ingestion. Stages run in order and the first failure
// aborts the run with that stage's typed error.
func (s *IngestionService) Ingest(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	logger := s.logger.With("table", req.Table, "mode", string(req.Mode))
	run := s.startRun(ctx, req, logger)
	result := &domain.IngestionResult{}
	if run != nil {
		result.RunID = run.ID
	}

	err := s.ingest(ctx, req, result, logger)
	s.finishRun(ctx, run, result, err, logger)
	if err != nil {
		logger.Error("ingestion failed", "kind", domain.ErrorKind(err), "error", err)
		return nil, err
	}

	logger.Info("ingestion complete",
		"run_id", result.RunID,
		"files", len(result.Files),
		"snapshot", result.Snapshot.Path,
		"action", result.Load.Action.String(),
		"row_count", result.Load.RowCount,
	)
	return result, nil
}

func (s *IngestionService) ingest(ctx context.Context, req domain.IngestionRequest, result *domain.IngestionResult, logger *slog.Logger) error {
	table, files, err := s.sources.Load(ctx, req.Source)
	if err != nil {
		return err
	}
	result.Files = files

	snap, err := s.snapshots.Write(ctx, table, req.RawDir, req.Table, req.Mode)
	if err != nil {
		return err
	}
	result.Snapshot = snap

	if req.Publish {
		if s.mirrors == nil {
			return domain.ErrMirrorUpload(nil, "publishing is not configured")
		}
		m, err := s.mirrors(ctx, req.Bucket)
		if err != nil {
			return err
		}
		uri, err := m.Upload(ctx, snap.Path, mirror.ObjectKey(req.Prefix, snap.Name))
		if err != nil {
			var mu *domain.MirrorUploadError
			if !errors.As(err, &mu) {
				err = domain.ErrMirrorUpload(err, "upload %s", snap.Name)
			}
			return err
		}
		result.MirrorURI = uri
		logger.Info("snapshot mirrored", "uri", uri)
	}

	res, err := s.loader.Load(ctx, store.New(req.StorePath), snap.Path, req.Table, req.Mode)
	if err != nil {
		return err
	}
	result.Load = res
	return nil
}

// startRun records the run as RUNNING. Ledger failures never fail the run.
func (s *IngestionService) startRun(ctx context.Context, req domain.IngestionRequest, logger *slog.Logger) *domain.IngestionRun {
	if s.runs == nil {
		return nil
	}
	run, err := s.runs.Create(ctx, &domain.IngestionRun{
		Table:     req.Table,
		Mode:      req.Mode,
		Status:    domain.RunStatusRunning,
		StartedAt: s.now(),
	})
	if err != nil {
		logger.Warn("could not record ingestion run", "error", err)
		return nil
	}
	return run
}

func (s *IngestionService) finishRun(ctx context.Context, run *domain.IngestionRun, result *domain.IngestionResult, runErr error, logger *slog.Logger) {
	if run == nil {
		return
	}
	for _, f := range result.Files {
		run.SourceFiles = append(run.SourceFiles, f.Name)
	}
	if result.Snapshot != nil {
		run.SnapshotPath = result.Snapshot.Path
		run.SnapshotRows = result.Snapshot.Rows
	}
	run.MirrorURI = result.MirrorURI
	if result.Load != nil {
		run.Action = result.Load.Action.String()
		run.TableRows = result.Load.RowCount
	}

	finished := s.now()
	run.FinishedAt = &finished
	run.Status = domain.RunStatusSuccess
	if runErr != nil {
		kind, msg := domain.ErrorKind(runErr), runErr.Error()
		run.Status = domain.RunStatusFailed
		run.ErrorKind = &kind
		run.ErrorMessage = &msg
	}

	// The ledger write must not be lost to a cancelled run context.
	if err := s.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("could not record ingestion outcome", "run_id", run.ID, "error", err)
	}
}
