package source

import (
	"strings"
	"time"

	"loan-pipeline/internal/domain"
)

// unify concatenates sheets in order over the union of their columns,
// types each column and appends the provenance columns. Column names match
// case-insensitively; the first spelling seen is kept. A column absent
// from a sheet is null for that sheet's rows.
func unify(sheets []sheet) *domain.Table {
	var names []string
	index := make(map[string]int)
	positions := make([][]int, len(sheets))
	for i, s := range sheets {
		positions[i] = make([]int, len(s.header))
		for j, h := range s.header {
			if strings.EqualFold(h, domain.ColumnSourceFile) || strings.EqualFold(h, domain.ColumnIngestionTimestamp) {
				h += "_original"
			}
			key := strings.ToLower(h)
			pos, ok := index[key]
			if !ok {
				pos = len(names)
				index[key] = pos
				names = append(names, h)
			}
			positions[i][j] = pos
		}
	}

	width := len(names)
	var (
		rows    [][]any
		files   []string
		readAts []time.Time
	)
	for i, s := range sheets {
		for _, rec := range s.rows {
			vals := make([]any, width, width+2)
			for j, cell := range rec {
				if j >= len(positions[i]) {
					break
				}
				if v := strings.TrimSpace(cell); v != "" {
					vals[positions[i][j]] = v
				}
			}
			rows = append(rows, vals)
			files = append(files, s.file.Name)
			readAts = append(readAts, s.readAt)
		}
	}

	columns := make([]domain.Column, 0, width+2)
	for c, name := range names {
		typ := inferType(rows, c)
		columns = append(columns, domain.Column{Name: name, Type: typ})
		convertColumn(rows, c, typ)
	}
	columns = append(columns,
		domain.Column{Name: domain.ColumnSourceFile, Type: domain.TypeString},
		domain.Column{Name: domain.ColumnIngestionTimestamp, Type: domain.TypeTimestamp},
	)
	for r := range rows {
		rows[r] = append(rows[r], files[r], readAts[r])
	}

	return &domain.Table{Columns: columns, Rows: rows}
}

// inferType picks the narrowest type every non-null cell of column c fits.
// Columns with no values at all are strings.
func inferType(rows [][]any, c int) domain.ColumnType {
	allNumber, allDate, anyTime, anyValue := true, true, false, false
	for _, row := range rows {
		s, ok := row[c].(string)
		if !ok {
			continue
		}
		anyValue = true
		if allNumber {
			if _, ok := parseNumber(s); !ok {
				allNumber = false
			}
		}
		if allDate {
			_, hasTime, ok := parseDate(s)
			if !ok {
				allDate = false
			} else if hasTime {
				anyTime = true
			}
		}
		if !allNumber && !allDate {
			return domain.TypeString
		}
	}
	switch {
	case !anyValue:
		return domain.TypeString
	case allNumber:
		return domain.TypeNumber
	case allDate && anyTime:
		return domain.TypeTimestamp
	case allDate:
		return domain.TypeDate
	default:
		return domain.TypeString
	}
}

// convertColumn replaces the text cells of column c with typed values.
func convertColumn(rows [][]any, c int, typ domain.ColumnType) {
	if typ == domain.TypeString {
		return
	}
	for _, row := range rows {
		s, ok := row[c].(string)
		if !ok {
			continue
		}
		switch typ {
		case domain.TypeNumber:
			row[c], _ = parseNumber(s)
		case domain.TypeDate, domain.TypeTimestamp:
			row[c], _, _ = parseDate(s)
		}
	}
}
