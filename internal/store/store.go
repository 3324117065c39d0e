// Package store is the handle on the analytical store: one DuckDB database
// file holding the raw, silver and gold schemas.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // register the duckdb driver

	"loan-pipeline/internal/ddl"
	"loan-pipeline/internal/domain"
)

// Querier is satisfied by *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store addresses a DuckDB database file. It holds no connection; every call
// opens its own and releases it before returning.
type Store struct {
	path string
}

// New returns a Store for the database file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// WithConn opens the database, runs fn on a single connection and closes
// everything on every exit path. The parent directory is created if missing.
func (s *Store) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if s.path == "" {
		return domain.ErrInvalidConfiguration("store path is required")
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	return s.withConn(ctx, s.path, fn)
}

// WithReadConn is WithConn for readers: the database must already exist and
// is opened read-only, so a mistyped path never creates an empty store.
func (s *Store) WithReadConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if s.path == "" {
		return domain.ErrInvalidConfiguration("store path is required")
	}
	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return domain.ErrInvalidConfiguration("store not found: %s", s.path)
	case err != nil:
		return fmt.Errorf("stat store: %w", err)
	case info.IsDir():
		return domain.ErrInvalidConfiguration("store %s is a directory", s.path)
	}
	return s.withConn(ctx, s.path+"?access_mode=read_only", fn)
}

func (s *Store) withConn(ctx context.Context, dsn string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("open duckdb %s: %w", s.path, err)
	}
	defer db.Close() //nolint:errcheck

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("connect duckdb %s: %w", s.path, err)
	}
	defer conn.Close() //nolint:errcheck

	return fn(ctx, conn)
}

// EnsureSchemas creates the raw, silver and gold schemas if missing.
func EnsureSchemas(ctx context.Context, q Querier) error {
	for _, l := range domain.Layers {
		stmt, err := ddl.CreateSchema(l.Schema())
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema %s: %w", l.Schema(), err)
		}
	}
	return nil
}

// TableExists reports whether schema.table exists. Names match
// case-insensitively, as DuckDB resolves them.
func TableExists(ctx context.Context, q Querier, schema, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE lower(table_schema) = lower(?) AND lower(table_name) = lower(?)`,
		schema, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schema, table, err)
	}
	return n > 0, nil
}

// CountRows returns the number of rows in schema.table.
func CountRows(ctx context.Context, q Querier, schema, table string) (int64, error) {
	stmt, err := ddl.CountRows(schema, table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", schema, table, err)
	}
	return n, nil
}

// ColumnInfo is a column name and its DuckDB type.
type ColumnInfo struct {
	Name string
	Type string
}

// TableColumns lists the columns of schema.table in ordinal order.
func TableColumns(ctx context.Context, q Querier, schema, table string) ([]ColumnInfo, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE lower(table_schema) = lower(?) AND lower(table_name) = lower(?)
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s.%s: %w", schema, table, err)
	}
	return scanColumns(rows)
}

// ParquetColumns lists the columns of the Parquet file at path.
func ParquetColumns(ctx context.Context, q Querier, path string) ([]ColumnInfo, error) {
	rows, err := q.QueryContext(ctx, ddl.DescribeParquet(path))
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", filepath.Base(path), err)
	}
	return scanColumns(rows)
}

func scanColumns(rows *sql.Rows) ([]ColumnInfo, error) {
	defer rows.Close() //nolint:errcheck
	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// FindColumn returns the column in cols named name, ignoring case.
func FindColumn(cols []ColumnInfo, name string) (ColumnInfo, bool) {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnInfo{}, false
}
