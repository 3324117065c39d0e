package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/loader"
	"loan-pipeline/internal/snapshot"
	"loan-pipeline/internal/source"
	"loan-pipeline/internal/store"
	"loan-pipeline/internal/testutil"
)

type env struct {
	root   string
	data   string
	runs   *testutil.MockIngestionRunRepo
	mirror *testutil.MockObjectMirror
	svc    *IngestionService
}

func setup(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(data, 0o755))

	logger := slog.New(slog.DiscardHandler)
	e := &env{
		root:   root,
		data:   data,
		runs:   &testutil.MockIngestionRunRepo{},
		mirror: &testutil.MockObjectMirror{BucketName: "loans-raw"},
	}
	e.svc = NewIngestionService(
		source.NewLoader(logger),
		snapshot.NewWriter(logger),
		loader.New(logger),
		e.runs,
		func(context.Context, string) (domain.ObjectMirror, error) { return e.mirror, nil },
		logger,
	)
	return e
}

func (e *env) request(mode domain.Mode) domain.IngestionRequest {
	return domain.IngestionRequest{
		Source:    domain.SourceSpec{Dir: e.data},
		StorePath: filepath.Join(e.root, "dbt", "data_challenge.duckdb"),
		RawDir:    filepath.Join(e.root, "raw_data"),
		Table:     "raw_loans",
		Mode:      mode,
	}
}

// workbook writes rows loans starting at id start, with a Purpose column when withPurpose is set.
func (e *env) workbook(t *testing.T, name string, rows, start int, withPurpose bool) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck
	sheet := f.GetSheetName(0)

	header := []any{"loan_id", "Loan Amount", "Issue Date"}
	if withPurpose {
		header = append(header, "Purpose")
	}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i := 0; i < rows; i++ {
		row := []any{fmt.Sprintf("L%05d", start+i), 1000 + i, "2024-01-15"}
		if withPurpose {
			row = append(row, "debt_consolidation")
		}
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row))
	}
	path := filepath.Join(e.data, name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func (e *env) query(t *testing.T, stmt string, dest ...any) {
	t.Helper()
	st := store.New(filepath.Join(e.root, "dbt", "data_challenge.duckdb"))
	err := st.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, stmt).Scan(dest...)
	})
	require.NoError(t, err)
}

func TestIngest_DirectoryWithMissingColumn(t *testing.T) {
	e := setup(t)
	e.workbook(t, "loans_2024_01.xlsx", 100, 1, true)
	e.workbook(t, "loans_2024_02.xlsx", 50, 101, false)

	res, err := e.svc.Ingest(context.Background(), e.request(domain.ModeIncremental))
	require.NoError(t, err)

	require.Len(t, res.Files, 2)
	assert.Equal(t, int64(150), res.Snapshot.Rows)
	assert.Equal(t, domain.ActionCreate, res.Load.Action)
	assert.Equal(t, int64(150), res.Load.RowCount)

	var nulls, fromSecond int64
	e.query(t, `SELECT COUNT(*) FILTER (WHERE "Purpose" IS NULL),
		COUNT(*) FILTER (WHERE "Purpose" IS NULL AND source_file = 'loans_2024_02.xlsx')
		FROM raw.raw_loans`, &nulls, &fromSecond)
	assert.Equal(t, int64(50), nulls)
	assert.Equal(t, int64(50), fromSecond)

	var missingProvenance int64
	e.query(t, `SELECT COUNT(*) FROM raw.raw_loans WHERE source_file IS NULL OR ingestion_timestamp IS NULL`, &missingProvenance)
	assert.Zero(t, missingProvenance)

	last := e.runs.Last()
	require.NotNil(t, last)
	assert.Equal(t, domain.RunStatusSuccess, last.Status)
	assert.Equal(t, []string{"loans_2024_01.xlsx", "loans_2024_02.xlsx"}, last.SourceFiles)
	assert.Equal(t, int64(150), last.TableRows)
	assert.Equal(t, "create", last.Action)
	assert.Equal(t, res.RunID, last.ID)
}

func TestIngest_FullRefreshTwice(t *testing.T) {
	e := setup(t)
	path := e.workbook(t, "Data Engineer Challenge.xlsx", 20, 1, true)
	req := e.request(domain.ModeFullRefresh)
	req.Source = domain.SourceSpec{Path: path}

	first, err := e.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	second, err := e.svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Snapshot.Path, second.Snapshot.Path)
	assert.Equal(t, domain.ActionReplace, second.Load.Action)
	assert.Equal(t, int64(20), second.Load.RowCount)

	entries, err := os.ReadDir(req.RawDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "every run keeps its snapshot")
}

func TestIngest_IncrementalAccumulates(t *testing.T) {
	e := setup(t)
	e.workbook(t, "a.xlsx", 10, 1, true)
	_, err := e.svc.Ingest(context.Background(), e.request(domain.ModeIncremental))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(e.data, "a.xlsx")))
	e.workbook(t, "b.xlsx", 15, 100, true)
	res, err := e.svc.Ingest(context.Background(), e.request(domain.ModeIncremental))
	require.NoError(t, err)

	assert.Equal(t, domain.ActionAppend, res.Load.Action)
	assert.Equal(t, int64(25), res.Load.RowCount)
}

func TestIngest_Publish(t *testing.T) {
	e := setup(t)
	e.workbook(t, "a.xlsx", 3, 1, true)
	req := e.request(domain.ModeFullRefresh)
	req.Publish = true
	req.Bucket = "loans-raw"
	req.Prefix = "raw/loans"

	res, err := e.svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, e.mirror.Uploads, 1)
	assert.Equal(t, res.Snapshot.Path, e.mirror.Uploads[0].LocalPath)
	assert.Equal(t, "raw/loans/"+res.Snapshot.Name, e.mirror.Uploads[0].Key)
	assert.Equal(t, "s3://loans-raw/raw/loans/"+res.Snapshot.Name, res.MirrorURI)
	assert.Equal(t, res.MirrorURI, e.runs.Last().MirrorURI)
}

func TestIngest_MirrorFailureStopsBeforeLoad(t *testing.T) {
	e := setup(t)
	e.workbook(t, "a.xlsx", 3, 1, true)
	e.mirror.UploadFn = func(context.Context, string, string) (string, error) {
		return "", errors.New("access denied")
	}
	req := e.request(domain.ModeFullRefresh)
	req.Publish = true
	req.Bucket = "loans-raw"

	_, err := e.svc.Ingest(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.KindMirrorUpload, domain.ErrorKind(err))

	var exists bool
	st := store.New(req.StorePath)
	require.NoError(t, st.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		var err error
		exists, err = store.TableExists(ctx, conn, "raw", "raw_loans")
		return err
	}))
	assert.False(t, exists, "nothing is loaded after a failed mirror")

	entries, err := os.ReadDir(req.RawDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "local snapshot is kept for a re-run")

	last := e.runs.Last()
	assert.Equal(t, domain.RunStatusFailed, last.Status)
	require.NotNil(t, last.ErrorKind)
	assert.Equal(t, domain.KindMirrorUpload, *last.ErrorKind)
	assert.NotEmpty(t, last.SnapshotPath)
}

func TestIngest_SourceNotFoundIsRecorded(t *testing.T) {
	e := setup(t)
	_, err := e.svc.Ingest(context.Background(), e.request(domain.ModeIncremental))
	require.Error(t, err)
	assert.Equal(t, domain.KindSourceNotFound, domain.ErrorKind(err))

	last := e.runs.Last()
	require.NotNil(t, last)
	assert.Equal(t, domain.RunStatusFailed, last.Status)
	assert.Equal(t, domain.KindSourceNotFound, *last.ErrorKind)
}

func TestIngest_LedgerFailureDoesNotFailRun(t *testing.T) {
	e := setup(t)
	e.workbook(t, "a.xlsx", 2, 1, true)
	e.runs.CreateFn = func(context.Context, *domain.IngestionRun) (*domain.IngestionRun, error) {
		return nil, errors.New("database is locked")
	}

	res, err := e.svc.Ingest(context.Background(), e.request(domain.ModeIncremental))
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.Equal(t, int64(2), res.Load.RowCount)
}

func TestValidate(t *testing.T) {
	valid := domain.IngestionRequest{
		Source:    domain.SourceSpec{Path: "data/loans.xlsx"},
		StorePath: "lake.duckdb",
		RawDir:    "raw_data",
		Table:     "raw_loans",
		Mode:      domain.ModeFullRefresh,
	}
	require.NoError(t, Validate(valid))

	tests := []struct {
		name   string
		mutate func(r *domain.IngestionRequest)
	}{
		{"no source", func(r *domain.IngestionRequest) { r.Source = domain.SourceSpec{} }},
		{"bad mode", func(r *domain.IngestionRequest) { r.Mode = "FULL_REFRESH" }},
		{"empty mode", func(r *domain.IngestionRequest) { r.Mode = "" }},
		{"bad table", func(r *domain.IngestionRequest) { r.Table = "raw-loans" }},
		{"no store", func(r *domain.IngestionRequest) { r.StorePath = "" }},
		{"no raw dir", func(r *domain.IngestionRequest) { r.RawDir = "" }},
		{"publish without bucket", func(r *domain.IngestionRequest) { r.Publish = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := Validate(req)
			require.Error(t, err)
			assert.Equal(t, domain.KindInvalidConfiguration, domain.ErrorKind(err))
		})
	}
}
