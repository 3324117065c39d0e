package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// readFile parses one source file into a header and its data rows. Rows are
// padded to the header width; fully blank rows are dropped.
func readFile(path string) ([]string, [][]string, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		records, err = readWorkbook(path)
	case ".csv":
		records, err = readCSV(path)
	default:
		return nil, nil, fmt.Errorf("unsupported source format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, nil, err
	}
	return splitHeader(records)
}

// readWorkbook returns the cells of the first worksheet, which is the sheet
// spreadsheet exports put their data on. Cells are read as stored rather than
// as displayed, so percentages and long fractions keep their full value.
// Numbers styled as dates become ISO dates and booleans TRUE/FALSE.
func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	wb := &workbookCells{f: f, sheet: sheet, dateStyles: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wb.date1904 = *props.Date1904
	}
	for r, row := range rows {
		for c, v := range row {
			if v == "" {
				continue
			}
			if row[c], err = wb.value(r, c, v); err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

// workbookCells converts stored cell values that need their style to be read.
type workbookCells struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool // style index -> number format is a date
}

func (w *workbookCells) value(r, c int, raw string) (string, error) {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw, nil
	}
	cell, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return "", err
	}
	typ, err := w.f.GetCellType(w.sheet, cell)
	if err != nil {
		return "", fmt.Errorf("cell %s: %w", cell, err)
	}
	switch typ {
	case excelize.CellTypeBool:
		if n != 0 {
			return "TRUE", nil
		}
		return "FALSE", nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return raw, nil
	}

	idx, err := w.f.GetCellStyle(w.sheet, cell)
	if err != nil {
		return "", fmt.Errorf("cell %s: %w", cell, err)
	}
	isDate, ok := w.dateStyles[idx]
	if !ok {
		isDate = w.isDateStyle(idx)
		w.dateStyles[idx] = isDate
	}
	if !isDate {
		return raw, nil
	}
	t, err := excelize.ExcelDateToTime(n, w.date1904)
	if err != nil {
		return raw, nil
	}
	if isMidnight(t) {
		return t.Format(time.DateOnly), nil
	}
	return t.Format(time.DateTime), nil
}

func (w *workbookCells) isDateStyle(idx int) bool {
	if idx == 0 {
		return false
	}
	style, err := w.f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormat(*style.CustomNumFmt)
	}
	return isBuiltInDateFormat(style.NumFmt)
}

// isBuiltInDateFormat reports whether a built-in number format id renders a
// date or time of day.
func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

var (
	quotedRe  = regexp.MustCompile(`"[^"]*"|\\.`)
	bracketRe = regexp.MustCompile(`\[[^\]]*\]`)
)

// isDateFormat reports whether a custom number format code renders a date.
// Quoted literals and bracketed sections (colors, locales, elapsed time) are
// ignored.
func isDateFormat(code string) bool {
	code = strings.ToLower(bracketRe.ReplaceAllString(quotedRe.ReplaceAllString(code, ""), ""))
	return strings.ContainsAny(code, "ydhs")
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from source discovery
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		out = append(out, rec)
	}
	if len(out) > 0 && len(out[0]) > 0 {
		out[0][0] = strings.TrimPrefix(out[0][0], "\ufeff")
	}
	return out, nil
}

// splitHeader takes the first non-blank record as the header and returns the
// remaining non-blank records padded to the header width.
func splitHeader(records [][]string) ([]string, [][]string, error) {
	start := -1
	for i, rec := range records {
		if !isBlank(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, nil, fmt.Errorf("no header row found")
	}

	header := append([]string(nil), records[start]...)
	var rows [][]string
	for _, rec := range records[start+1:] {
		if isBlank(rec) {
			continue
		}
		for len(header) < len(rec) {
			header = append(header, "")
		}
		rows = append(rows, rec)
	}

	header = normalizeHeader(header)
	for i, rec := range rows {
		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			rows[i] = padded
		}
	}
	return header, rows, nil
}

// normalizeHeader trims names, names blank columns by position and
// disambiguates repeats with a numeric suffix. Names compare
// case-insensitively, as the store does.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "unnamed_" + strconv.Itoa(i+1)
		}
		key := strings.ToLower(name)
		if seen[key] {
			base := name
			for n := 2; seen[key]; n++ {
				name = base + "_" + strconv.Itoa(n)
				key = strings.ToLower(name)
			}
		}
		seen[key] = true
		out[i] = name
	}
	return out
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
