// Package quality implements the gate run after transformation: every layer
// table must meet its minimum row count, and duplicate business keys are
// reported.
package quality

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"loan-pipeline/internal/ddl"
	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/store"
)

// Gate is the QualityGate.
type Gate struct {
	logger *slog.Logger
}

// NewGate creates a new Gate.
func NewGate(logger *slog.Logger) *Gate {
	return &Gate{logger: logger}
}

// Check counts the rows of every configured layer table and compares them
// with the thresholds. The report is returned even when the gate fails.
//
// The store is opened read-only and must already exist. A missing table
// counts as zero rows. The first layer below its minimum, in
// raw, silver, gold order, fails the gate with an EmptyLayerError. Duplicate
// business keys above the maximum are logged and reported; they fail the gate
// only when FailOnDuplicates is set.
func (g *Gate) Check(ctx context.Context, st *store.Store, thresholds domain.QualityThresholds) (*domain.QualityReport, error) {
	layers := slices.Clone(thresholds.Layers)
	for _, lt := range layers {
		if err := ddl.ValidateIdentifier(lt.Table); err != nil {
			return nil, domain.ErrInvalidConfiguration("invalid %s table name %q: %v", lt.Layer, lt.Table, err)
		}
	}
	slices.SortStableFunc(layers, func(a, b domain.LayerThreshold) int {
		return slices.Index(domain.Layers, a.Layer) - slices.Index(domain.Layers, b.Layer)
	})

	report := &domain.QualityReport{}
	err := st.WithReadConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		for _, lt := range layers {
			lr, err := inspect(ctx, conn, lt, thresholds.BusinessKey)
			if err != nil {
				return err
			}
			report.Layers = append(report.Layers, lr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("quality check: %w", err)
	}

	var dupErr error
	for _, lr := range report.Layers {
		g.logger.Info("layer checked", "layer", string(lr.Layer), "table", lr.Table,
			"exists", lr.Exists, "rows", lr.Rows, "min_rows", lr.MinRows)

		if lr.KeyColumn == "" || lr.DuplicateKeys <= thresholds.MaxDuplicateKeys {
			continue
		}
		msg := fmt.Sprintf("%s has %d duplicate %s values (maximum %d)",
			lr.Table, lr.DuplicateKeys, lr.KeyColumn, thresholds.MaxDuplicateKeys)
		report.Warnings = append(report.Warnings, msg)
		g.logger.Warn("duplicate business keys", "layer", string(lr.Layer), "table", lr.Table,
			"key", lr.KeyColumn, "duplicates", lr.DuplicateKeys, "maximum", thresholds.MaxDuplicateKeys)
		if thresholds.FailOnDuplicates && dupErr == nil {
			dupErr = &domain.DuplicateKeysError{
				Layer:      lr.Layer,
				Table:      lr.Table,
				Key:        lr.KeyColumn,
				Duplicates: lr.DuplicateKeys,
				Maximum:    thresholds.MaxDuplicateKeys,
			}
		}
	}

	for _, lr := range report.Layers {
		if lr.Rows < lr.MinRows {
			g.logger.Error("quality gate failed", "layer", string(lr.Layer), "table", lr.Table,
				"rows", lr.Rows, "min_rows", lr.MinRows)
			return report, &domain.EmptyLayerError{Layer: lr.Layer, Table: lr.Table, Count: lr.Rows, Minimum: lr.MinRows}
		}
	}
	if dupErr != nil {
		return report, dupErr
	}

	g.logger.Info("quality gate passed", "layers", len(report.Layers), "warnings", len(report.Warnings))
	return report, nil
}

func inspect(ctx context.Context, q store.Querier, lt domain.LayerThreshold, key string) (domain.LayerReport, error) {
	schema := lt.Layer.Schema()
	lr := domain.LayerReport{Layer: lt.Layer, Table: lt.QualifiedTable(), MinRows: lt.MinRows}

	exists, err := store.TableExists(ctx, q, schema, lt.Table)
	if err != nil || !exists {
		return lr, err
	}
	lr.Exists = true

	if lr.Rows, err = store.CountRows(ctx, q, schema, lt.Table); err != nil {
		return lr, err
	}
	if key == "" {
		return lr, nil
	}

	cols, err := store.TableColumns(ctx, q, schema, lt.Table)
	if err != nil {
		return lr, err
	}
	col, ok := store.FindColumn(cols, key)
	if !ok {
		return lr, nil
	}
	lr.KeyColumn = col.Name

	stmt, err := ddl.CountDuplicateKeys(schema, lt.Table, col.Name)
	if err != nil {
		return lr, err
	}
	if err := q.QueryRowContext(ctx, stmt).Scan(&lr.DuplicateKeys); err != nil {
		return lr, fmt.Errorf("count duplicate %s in %s: %w", col.Name, lr.Table, err)
	}
	return lr, nil
}
