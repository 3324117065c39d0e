// Package snapshot persists a unified table as an immutable Parquet file.
package snapshot

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"loan-pipeline/internal/ddl"
	"loan-pipeline/internal/domain"
)

// maxNameAttempts bounds how often a new suffix is drawn when a snapshot
// name is already taken.
const maxNameAttempts = 5

// stagingTable is the in-memory table the snapshot is assembled in.
const stagingTable = "snapshot"

// Writer is the SnapshotWriter. Snapshots are never overwritten.
type Writer struct {
	logger *slog.Logger
	now    func() time.Time
	suffix func() string
}

// NewWriter creates a new Writer.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger, now: time.Now, suffix: randomSuffix}
}

// FileName returns the snapshot file name for table and mode:
// {table}_{mode}_{yyyymmdd_HHMMSS}_{suffix}.parquet.
func FileName(table string, mode domain.Mode, at time.Time, suffix string) string {
	return fmt.Sprintf("%s_%s_%s_%s.parquet", table, mode, at.Format("20060102_150405"), suffix)
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Write writes table as a new Parquet file under rawDir and returns its
// descriptor. rawDir is created if missing.
func (w *Writer) Write(ctx context.Context, table *domain.Table, rawDir, name string, mode domain.Mode) (*domain.Snapshot, error) {
	if table == nil || len(table.Columns) == 0 {
		return nil, fmt.Errorf("snapshot of %s has no columns", name)
	}
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw directory: %w", err)
	}

	// Written under a hidden name, then hard-linked into place so a reader
	// never observes a partial file and an existing name is never replaced.
	tmpPath := filepath.Join(rawDir, ".snapshot-"+uuid.NewString()+".parquet")
	defer func() { _ = os.Remove(tmpPath) }()

	if err := writeParquet(ctx, table, tmpPath); err != nil {
		return nil, err
	}

	createdAt := w.now()
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		fileName := FileName(name, mode, createdAt, w.suffix())
		final := filepath.Join(rawDir, fileName)
		err := os.Link(tmpPath, final)
		if errors.Is(err, fs.ErrExist) {
			w.logger.Warn("snapshot name taken, drawing a new suffix", "file", fileName, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("publish snapshot: %w", err)
		}

		snap := &domain.Snapshot{
			Path:      final,
			Name:      fileName,
			Table:     name,
			Mode:      mode,
			Rows:      int64(table.NumRows()),
			CreatedAt: createdAt,
		}
		w.logger.Info("snapshot written", "path", final, "rows", snap.Rows, "columns", len(table.Columns))
		return snap, nil
	}
	return nil, fmt.Errorf("no free snapshot name for %s after %d attempts", name, maxNameAttempts)
}

// writeParquet loads table into an in-memory DuckDB and copies it to path.
func writeParquet(ctx context.Context, table *domain.Table, path string) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close() //nolint:errcheck

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire duckdb conn: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	if _, err := conn.ExecContext(ctx, createStatement(table.Columns)); err != nil {
		return fmt.Errorf("create snapshot table: %w", err)
	}

	err = conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}
		appender, err := duckdb.NewAppenderFromConn(driverConn, "", stagingTable)
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}
		for i, row := range table.Rows {
			vals := make([]driver.Value, len(row))
			for j, v := range row {
				vals[j] = v
			}
			if err := appender.AppendRow(vals...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("append row %d: %w", i+1, err)
			}
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush appender: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	copyStmt := fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET)",
		ddl.QuoteIdentifier(stagingTable), ddl.QuoteLiteral(filepath.ToSlash(path)))
	if _, err := conn.ExecContext(ctx, copyStmt); err != nil {
		return fmt.Errorf("copy snapshot to parquet: %w", err)
	}
	return nil
}

func createStatement(columns []domain.Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = ddl.QuoteIdentifier(c.Name) + " " + c.Type.DuckDBType()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", ddl.QuoteIdentifier(stagingTable), strings.Join(defs, ", "))
}
