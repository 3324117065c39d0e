package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"loan-pipeline/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// writeWorkbook saves header and rows to the first sheet of a new workbook.
func writeWorkbook(t *testing.T, path string, header []string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck
	sheet := f.GetSheetName(0)

	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &cells))
	for i, row := range rows {
		r := row
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &r))
	}
	require.NoError(t, f.SaveAs(path))
}

func loanRows(n, start int, withPurpose bool) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		id := fmt.Sprintf("L%04d", start+i)
		if withPurpose {
			rows[i] = []any{id, 1000 + i, "car"}
		} else {
			rows[i] = []any{id, 1000 + i}
		}
	}
	return rows
}

func TestLoad_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loans.xlsx")
	writeWorkbook(t, path, []string{"loan_id", "amount", "Purpose"}, loanRows(3, 1, true))

	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewLoader(discardLogger(), WithClock(func() time.Time { return fixed }))

	table, files, err := l.Load(context.Background(), domain.SourceSpec{Path: path})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "loans.xlsx", files[0].Name)
	assert.Equal(t, 3, files[0].Rows)

	assert.Equal(t, 3, table.NumRows())
	names := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"loan_id", "amount", "Purpose", domain.ColumnSourceFile, domain.ColumnIngestionTimestamp}, names)
	assert.Equal(t, domain.TypeString, table.Columns[0].Type)
	assert.Equal(t, domain.TypeNumber, table.Columns[1].Type)

	assert.Equal(t, "L0001", table.Value(0, "loan_id"))
	assert.InDelta(t, 1000.0, table.Value(0, "amount"), 0.001)
	assert.Equal(t, "loans.xlsx", table.Value(2, domain.ColumnSourceFile))
	ts, ok := table.IngestedAt(2)
	require.True(t, ok)
	assert.Equal(t, fixed, ts)
}

func TestLoad_DirectoryUnionsColumns(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, filepath.Join(dir, "a_loans.xlsx"), []string{"loan_id", "amount", "Purpose"}, loanRows(100, 1, true))
	writeWorkbook(t, filepath.Join(dir, "b_loans.xlsx"), []string{"loan_id", "amount"}, loanRows(50, 101, false))

	l := NewLoader(discardLogger())
	table, files, err := l.Load(context.Background(), domain.SourceSpec{Dir: dir, Pattern: "*.xlsx"})
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "a_loans.xlsx", files[0].Name)
	assert.Equal(t, "b_loans.xlsx", files[1].Name)

	assert.Equal(t, 150, table.NumRows())
	assert.Equal(t, 50, table.CountNulls("Purpose"))
	for i := 0; i < table.NumRows(); i++ {
		if table.Value(i, "Purpose") == nil {
			assert.Equal(t, "b_loans.xlsx", table.Value(i, domain.ColumnSourceFile))
		}
	}
	assert.Zero(t, table.CountNulls(domain.ColumnSourceFile))
	assert.Zero(t, table.CountNulls(domain.ColumnIngestionTimestamp))
}

func TestLoad_SingleWorkerKeepsDiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"c_loans.xlsx", "a_loans.xlsx", "b_loans.xlsx"} {
		writeWorkbook(t, filepath.Join(dir, name), []string{"loan_id", "amount"}, loanRows(2, i*10, false))
	}

	l := NewLoader(discardLogger(), WithWorkers(1))
	assert.Equal(t, 1, l.workers)
	_, files, err := l.Load(context.Background(), domain.SourceSpec{Dir: dir})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a_loans.xlsx", files[0].Name)
	assert.Equal(t, "b_loans.xlsx", files[1].Name)
	assert.Equal(t, "c_loans.xlsx", files[2].Name)

	assert.Equal(t, defaultWorkers, NewLoader(discardLogger(), WithWorkers(0)).workers)
}

func TestLoad_DirectoryWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, filepath.Join(dir, "loans.xlsx"), []string{"loan_id"}, [][]any{{"L1"}, {"L2"}})

	l := NewLoader(discardLogger())
	table, _, err := l.Load(context.Background(), domain.SourceSpec{
		Path: filepath.Join(dir, "missing.xlsx"),
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, table.NumRows())
}

func TestLoad_CSVAndDefaultPatterns(t *testing.T) {
	dir := t.TempDir()
	csv := "\ufeffloan_id,amount,issue_date\nL1,\"1,250.50\",2024-01-15\nL2,300,2024-02-01\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loans.csv"), []byte(csv), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$loans.xlsx"), []byte("lock"), 0o644))

	l := NewLoader(discardLogger())
	table, files, err := l.Load(context.Background(), domain.SourceSpec{Dir: dir})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "loans.csv", files[0].Name)

	require.Equal(t, 2, table.NumRows())
	assert.Equal(t, "loan_id", table.Columns[0].Name)
	assert.InDelta(t, 1250.5, table.Value(0, "amount"), 0.001)
	assert.Equal(t, domain.TypeDate, table.Columns[table.ColumnIndex("issue_date")].Type)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), table.Value(1, "issue_date"))
}

func TestLoad_WorkbookStoredValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := []any{"loan_id", "rate", "ratio", "issued", "funded_at", "settled", "active"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	rows := [][]any{
		{"L1", 0.0725, 2.0 / 3, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), 45306, true},
		{"L2", 0.08, 0.5, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 17, 0, 0, 0, time.UTC), 45323, false},
	}
	for i, row := range rows {
		r := row
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &r))
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(sheet, "B2", "B3", percent))
	isoDate := "yyyy-mm-dd"
	custom, err := f.NewStyle(&excelize.Style{CustomNumFmt: &isoDate})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(sheet, "F2", "F3", custom))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, _, err := NewLoader(discardLogger()).Load(context.Background(), domain.SourceSpec{Path: path})
	require.NoError(t, err)
	require.Equal(t, 2, table.NumRows())

	typeOf := func(name string) domain.ColumnType {
		return table.Columns[table.ColumnIndex(name)].Type
	}
	assert.Equal(t, domain.TypeNumber, typeOf("rate"))
	assert.InDelta(t, 0.0725, table.Value(0, "rate"), 1e-12)
	assert.InDelta(t, 0.08, table.Value(1, "rate"), 1e-12)

	assert.Equal(t, domain.TypeNumber, typeOf("ratio"))
	assert.Equal(t, 2.0/3, table.Value(0, "ratio"))

	assert.Equal(t, domain.TypeDate, typeOf("issued"))
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), table.Value(0, "issued"))
	assert.Equal(t, domain.TypeTimestamp, typeOf("funded_at"))
	assert.Equal(t, time.Date(2024, 2, 1, 17, 0, 0, 0, time.UTC), table.Value(1, "funded_at"))
	assert.Equal(t, domain.TypeDate, typeOf("settled"))
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), table.Value(0, "settled"))

	assert.Equal(t, domain.TypeString, typeOf("active"))
	assert.Equal(t, "TRUE", table.Value(0, "active"))
	assert.Equal(t, "FALSE", table.Value(1, "active"))
}

func TestIsDateFormat(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"yyyy-mm-dd", true},
		{"dd/mm/yyyy hh:mm", true},
		{"0.00%", false},
		{"#,##0.00", false},
		{`0.0 "days"`, false},
		{"[Red]#,##0", false},
		{"[h]:mm", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, isDateFormat(tt.code))
		})
	}
}

func TestLoad_HeaderNormalization(t *testing.T) {
	dir := t.TempDir()
	csv := "\n id ,,id,source_file\n1,x,2,orig.xlsx\n,,,\n"
	path := filepath.Join(dir, "odd.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	l := NewLoader(discardLogger())
	table, _, err := l.Load(context.Background(), domain.SourceSpec{Path: path})
	require.NoError(t, err)

	require.Equal(t, 1, table.NumRows())
	assert.GreaterOrEqual(t, table.ColumnIndex("id"), 0)
	assert.GreaterOrEqual(t, table.ColumnIndex("unnamed_2"), 0)
	assert.GreaterOrEqual(t, table.ColumnIndex("id_2"), 0)
	assert.Equal(t, "orig.xlsx", table.Value(0, "source_file_original"))
	assert.Equal(t, "odd.csv", table.Value(0, domain.ColumnSourceFile))
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))
	file := filepath.Join(dir, "plain.csv")
	require.NoError(t, os.WriteFile(file, []byte("a\n1\n"), 0o644))

	tests := []struct {
		name string
		spec domain.SourceSpec
		kind string
	}{
		{"nothing given", domain.SourceSpec{}, domain.KindInvalidConfiguration},
		{"missing file", domain.SourceSpec{Path: filepath.Join(dir, "nope.xlsx")}, domain.KindSourceNotFound},
		{"file is a directory", domain.SourceSpec{Path: empty}, domain.KindInvalidConfiguration},
		{"missing directory", domain.SourceSpec{Dir: filepath.Join(dir, "nope")}, domain.KindSourceNotFound},
		{"directory is a file", domain.SourceSpec{Dir: file}, domain.KindInvalidConfiguration},
		{"no matches", domain.SourceSpec{Dir: empty}, domain.KindSourceNotFound},
		{"bad pattern", domain.SourceSpec{Dir: dir, Pattern: "[x"}, domain.KindInvalidConfiguration},
	}
	l := NewLoader(discardLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := l.Load(context.Background(), tt.spec)
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.ErrorKind(err))
		})
	}
}
