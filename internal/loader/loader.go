package loader

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"loan-pipeline/internal/ddl"
	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/store"
)

// Loader is the LayerLoader. Calls for the same table must be serialized by
// the caller: a replace racing an append on one table is not guarded here.
type Loader struct {
	logger *slog.Logger

	// beforeCommit runs inside the load transaction after the row count
	// check. Tests use it to fail a load after the table was mutated.
	beforeCommit func(ctx context.Context, tx *sql.Tx) error
}

// New creates a new Loader.
func New(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load applies the Parquet snapshot at snapshotPath to raw.<table> according
// to mode and returns the resulting row count.
//
// The snapshot is read and counted before anything is mutated, and the
// mutation runs in one transaction that commits only after the table holds
// the expected number of rows. On any failure the table keeps its previous
// contents and a LoadFailure is returned.
func (l *Loader) Load(ctx context.Context, st *store.Store, snapshotPath, table string, mode domain.Mode) (*domain.LoadResult, error) {
	if !mode.Valid() {
		return nil, domain.ErrInvalidConfiguration("unsupported ingestion mode %q", mode)
	}
	if err := ddl.ValidateIdentifier(table); err != nil {
		return nil, domain.ErrInvalidConfiguration("invalid table name %q: %v", table, err)
	}

	schema := domain.LayerRaw.Schema()
	logger := l.logger.With("table", schema+"."+table, "mode", string(mode), "snapshot", filepath.Base(snapshotPath))

	var result *domain.LoadResult
	err := st.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		if err := store.EnsureSchemas(ctx, conn); err != nil {
			return err
		}

		var snapshotRows int64
		if err := conn.QueryRowContext(ctx, ddl.CountParquet(snapshotPath)).Scan(&snapshotRows); err != nil {
			return fmt.Errorf("snapshot %s is not readable: %w", filepath.Base(snapshotPath), err)
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := l.apply(ctx, tx, schema, table, snapshotPath, mode, snapshotRows)
		if err != nil {
			return err
		}
		if l.beforeCommit != nil {
			if err := l.beforeCommit(ctx, tx); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit load: %w", err)
		}
		result = res
		return nil
	})
	if err != nil {
		if domain.ErrorKind(err) == domain.KindInvalidConfiguration {
			return nil, err
		}
		logger.Error("load failed", "error", err)
		return nil, domain.ErrLoadFailure(err, "load into %s.%s failed", schema, table)
	}

	logger.Info("raw table loaded",
		"action", result.Action.String(),
		"snapshot_rows", result.SnapshotRows,
		"previous_rows", result.PreviousRows,
		"row_count", result.RowCount,
	)
	return result, nil
}

// apply decides and executes the action inside tx and verifies the row count.
func (l *Loader) apply(ctx context.Context, tx *sql.Tx, schema, table, snapshotPath string, mode domain.Mode, snapshotRows int64) (*domain.LoadResult, error) {
	exists, err := store.TableExists(ctx, tx, schema, table)
	if err != nil {
		return nil, err
	}
	var previous int64
	if exists {
		if previous, err = store.CountRows(ctx, tx, schema, table); err != nil {
			return nil, err
		}
	}

	res := &domain.LoadResult{
		Table:        schema + "." + table,
		Action:       DecideAction(exists, mode),
		SnapshotRows: snapshotRows,
		PreviousRows: previous,
	}

	var (
		stmt     string
		expected int64
	)
	switch res.Action {
	case domain.ActionCreate:
		stmt, err = ddl.CreateTableFromParquet(schema, table, snapshotPath)
		expected = snapshotRows
	case domain.ActionReplace:
		// The old table is only discarded when the transaction commits.
		stmt, err = ddl.CreateOrReplaceTableFromParquet(schema, table, snapshotPath)
		expected = snapshotRows
	case domain.ActionAppend:
		if res.AddedColumns, err = addMissingColumns(ctx, tx, schema, table, snapshotPath); err != nil {
			return nil, err
		}
		stmt, err = ddl.InsertFromParquet(schema, table, snapshotPath)
		expected = previous + snapshotRows
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("%s %s.%s: %w", res.Action, schema, table, err)
	}

	if res.RowCount, err = store.CountRows(ctx, tx, schema, table); err != nil {
		return nil, err
	}
	if res.RowCount != expected {
		return nil, fmt.Errorf("%s %s.%s left %d rows, expected %d", res.Action, schema, table, res.RowCount, expected)
	}
	return res, nil
}

// addMissingColumns adds the snapshot columns the table lacks so that an
// append tolerates schema drift between source files.
func addMissingColumns(ctx context.Context, tx *sql.Tx, schema, table, snapshotPath string) ([]string, error) {
	existing, err := store.TableColumns(ctx, tx, schema, table)
	if err != nil {
		return nil, err
	}
	incoming, err := store.ParquetColumns(ctx, tx, snapshotPath)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, c := range incoming {
		if _, ok := store.FindColumn(existing, c.Name); ok {
			continue
		}
		stmt, err := ddl.AddColumn(schema, table, c.Name, c.Type)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("add column %q: %w", c.Name, err)
		}
		added = append(added, c.Name)
	}
	return added, nil
}
