package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"loan-pipeline/internal/domain"
)

var _ domain.IngestionRunRepository = (*IngestionRunRepo)(nil)

// defaultListLimit caps ledger listings when the filter sets no limit.
const defaultListLimit = 50

// IngestionRunRepo stores the ingestion run ledger in SQLite.
type IngestionRunRepo struct {
	db *sql.DB
}

// NewIngestionRunRepo creates a new IngestionRunRepo.
func NewIngestionRunRepo(db *sql.DB) *IngestionRunRepo {
	return &IngestionRunRepo{db: db}
}

const runColumns = `id, table_name, mode, source_files, snapshot_path, mirror_uri, action,
	snapshot_rows, table_rows, status, error_kind, error_message, started_at, finished_at`

// Create inserts a new run in RUNNING state.
func (r *IngestionRunRepo) Create(ctx context.Context, run *domain.IngestionRun) (*domain.IngestionRun, error) {
	if run == nil {
		return nil, domain.ErrInvalidConfiguration("ingestion run is required")
	}
	if run.ID == "" {
		run.ID = domain.NewID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	files, err := json.Marshal(nonNil(run.SourceFiles))
	if err != nil {
		return nil, fmt.Errorf("marshal source files: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, table_name, mode, source_files, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Table, string(run.Mode), string(files), run.Status, run.StartedAt.UTC())
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, run.ID)
}

// Finish records the outcome of a run.
func (r *IngestionRunRepo) Finish(ctx context.Context, run *domain.IngestionRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}
	files, err := json.Marshal(nonNil(run.SourceFiles))
	if err != nil {
		return fmt.Errorf("marshal source files: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE ingestion_runs
		SET source_files = ?, snapshot_path = ?, mirror_uri = ?, action = ?,
		    snapshot_rows = ?, table_rows = ?, status = ?, error_kind = ?, error_message = ?,
		    finished_at = ?
		WHERE id = ?
	`, string(files), run.SnapshotPath, run.MirrorURI, run.Action,
		run.SnapshotRows, run.TableRows, run.Status, nullString(run.ErrorKind), nullString(run.ErrorMessage),
		nullTime(run.FinishedAt), run.ID)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound("ingestion run %q not found", run.ID)
	}
	return nil
}

// GetByID returns a run by ID.
func (r *IngestionRunRepo) GetByID(ctx context.Context, id string) (*domain.IngestionRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs WHERE id = ?`, id))
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return nil, domain.ErrNotFound("ingestion run %q not found", id)
	}
	return run, err
}

// List returns runs newest first.
func (r *IngestionRunRepo) List(ctx context.Context, filter domain.IngestionRunFilter) ([]domain.IngestionRun, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Table != nil {
		where = append(where, "table_name = ?")
		args = append(args, *filter.Table)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, strings.ToUpper(*filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	stmt := `SELECT ` + runColumns + ` FROM ingestion_runs`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []domain.IngestionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*domain.IngestionRun, error) {
	var (
		run                     domain.IngestionRun
		mode, files             string
		errorKind, errorMessage sql.NullString
		finishedAt              sql.NullTime
	)
	err := s.Scan(
		&run.ID,
		&run.Table,
		&mode,
		&files,
		&run.SnapshotPath,
		&run.MirrorURI,
		&run.Action,
		&run.SnapshotRows,
		&run.TableRows,
		&run.Status,
		&errorKind,
		&errorMessage,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}

	run.Mode = domain.Mode(mode)
	if err := json.Unmarshal([]byte(files), &run.SourceFiles); err != nil {
		return nil, fmt.Errorf("unmarshal source files: %w", err)
	}
	if errorKind.Valid {
		k := errorKind.String
		run.ErrorKind = &k
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		run.ErrorMessage = &msg
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
