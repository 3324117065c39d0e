// Package ddl builds the DuckDB statements used to mutate and inspect layer tables.
package ddl

import (
	"fmt"
	"path/filepath"
)

func validateNames(schema, table string) error {
	if err := ValidateIdentifier(schema); err != nil {
		return fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return fmt.Errorf("invalid table name: %w", err)
	}
	return nil
}

// ReadParquet returns a read_parquet() table function call for path.
func ReadParquet(path string) string {
	return fmt.Sprintf("read_parquet(%s)", QuoteLiteral(filepath.ToSlash(path)))
}

// CreateSchema returns: CREATE SCHEMA IF NOT EXISTS "<name>".
func CreateSchema(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", QuoteIdentifier(name)), nil
}

// CreateTableFromParquet returns:
// CREATE TABLE "<schema>"."<table>" AS SELECT * FROM read_parquet('<path>').
func CreateTableFromParquet(schema, table, path string) (string, error) {
	if err := validateNames(schema, table); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", Qualified(schema, table), ReadParquet(path)), nil
}

// InsertFromParquet returns:
// INSERT INTO "<schema>"."<table>" BY NAME SELECT * FROM read_parquet('<path>').
//
// Matching by name tolerates column order drift between snapshots; table
// columns missing from the snapshot are filled with null.
func InsertFromParquet(schema, table, path string) (string, error) {
	if err := validateNames(schema, table); err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT INTO %s BY NAME SELECT * FROM %s", Qualified(schema, table), ReadParquet(path)), nil
}

// CreateOrReplaceTableFromParquet returns:
// CREATE OR REPLACE TABLE "<schema>"."<table>" AS SELECT * FROM read_parquet('<path>').
func CreateOrReplaceTableFromParquet(schema, table, path string) (string, error) {
	if err := validateNames(schema, table); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", Qualified(schema, table), ReadParquet(path)), nil
}

// CountParquet returns a query yielding the number of rows in the Parquet file at path.
func CountParquet(path string) string {
	return "SELECT COUNT(*) FROM " + ReadParquet(path)
}

// DescribeParquet returns a query listing the column names and types of the
// Parquet file at path.
func DescribeParquet(path string) string {
	return "SELECT column_name, column_type FROM (DESCRIBE SELECT * FROM " + ReadParquet(path) + ")"
}

// AddColumn returns: ALTER TABLE "<schema>"."<table>" ADD COLUMN "<column>" <type>.
// columnType must come from a trusted source (DESCRIBE output).
func AddColumn(schema, table, column, columnType string) (string, error) {
	if err := validateNames(schema, table); err != nil {
		return "", err
	}
	if column == "" {
		return "", fmt.Errorf("column name is required")
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", Qualified(schema, table), QuoteIdentifier(column), columnType), nil
}

// CountRows returns: SELECT COUNT(*) FROM "<schema>"."<table>".
func CountRows(schema, table string) (string, error) {
	if err := validateNames(schema, table); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", Qualified(schema, table)), nil
}

// CountDuplicateKeys returns a query yielding the number of rows whose
// non-null key repeats an earlier row: COUNT(key) - COUNT(DISTINCT key).
func CountDuplicateKeys(schema, table, key string) (string, error) {
	if err := validateNames(schema, table); err != nil {
		return "", err
	}
	k := QuoteIdentifier(key)
	return fmt.Sprintf("SELECT COUNT(%s) - COUNT(DISTINCT %s) FROM %s", k, k, Qualified(schema, table)), nil
}
