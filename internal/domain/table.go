package domain

import "time"

// Provenance columns appended to every row by SourceLoader.
const (
	ColumnSourceFile         = "source_file"
	ColumnIngestionTimestamp = "ingestion_timestamp"
)

// ColumnType is the scalar type of a column in the unified table.
type ColumnType int

// Column types. Values held in Table.Rows are nil (null), string, float64
// or time.Time depending on the column type.
const (
	TypeString ColumnType = iota
	TypeNumber
	TypeDate
	TypeTimestamp
)

// DuckDBType returns the store type used for the column.
func (t ColumnType) DuckDBType() string {
	switch t {
	case TypeNumber:
		return "DOUBLE"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func (t ColumnType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "string"
	}
}

// Column is a named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Table is the unified in-memory representation of the ingested sources.
// Every row has exactly len(Columns) values.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the value of column name in row i, or nil if the column is unknown.
func (t *Table) Value(i int, name string) any {
	idx := t.ColumnIndex(name)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return nil
	}
	return t.Rows[i][idx]
}

// CountNulls returns how many rows hold null in the named column.
func (t *Table) CountNulls(name string) int {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return 0
	}
	n := 0
	for _, row := range t.Rows {
		if row[idx] == nil {
			n++
		}
	}
	return n
}

// IngestedAt returns the provenance timestamp of row i.
func (t *Table) IngestedAt(i int) (time.Time, bool) {
	ts, ok := t.Value(i, ColumnIngestionTimestamp).(time.Time)
	return ts, ok
}
