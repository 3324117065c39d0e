package quality

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-pipeline/internal/domain"
	"loan-pipeline/internal/store"
)

// seed creates schema.table with rows loans whose ids repeat after distinct values.
func seed(t *testing.T, st *store.Store, schema, table, keyColumn string, rows, distinct int) {
	t.Helper()
	err := st.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		if err := store.EnsureSchemas(ctx, conn); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s.%s (%s VARCHAR, amount DOUBLE)`, schema, table, keyColumn)); err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		_, err := conn.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s.%s SELECT 'L' || CAST(i %% %d AS VARCHAR), i FROM range(%d) t(i)`, schema, table, distinct, rows))
		return err
	})
	require.NoError(t, err)
}

// newStore returns an existing, empty store.
func newStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "lake.duckdb"))
	require.NoError(t, st.WithConn(context.Background(), func(context.Context, *sql.Conn) error { return nil }))
	return st
}

func TestCheck_EmptyRawFails(t *testing.T) {
	st := newStore(t)
	seed(t, st, "raw", "raw_loans", "loan_id", 0, 1)
	seed(t, st, "silver", "silver_loans", "loan_id", 10, 10)
	seed(t, st, "gold", "fact_loan", "loan_id", 10, 10)

	report, err := NewGate(slog.New(slog.DiscardHandler)).Check(context.Background(), st, domain.DefaultQualityThresholds())
	require.Error(t, err)
	assert.Equal(t, domain.KindEmptyLayer, domain.ErrorKind(err))

	var empty *domain.EmptyLayerError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, domain.LayerRaw, empty.Layer)
	assert.Equal(t, int64(0), empty.Count)

	require.NotNil(t, report)
	silver, ok := report.Layer(domain.LayerSilver)
	require.True(t, ok)
	assert.Equal(t, int64(10), silver.Rows)
}

func TestCheck_AllLayersPopulated(t *testing.T) {
	st := newStore(t)
	seed(t, st, "raw", "raw_loans", "loan_id", 12, 12)
	seed(t, st, "silver", "silver_loans", "loan_id", 10, 10)
	seed(t, st, "gold", "fact_loan", "loan_id", 10, 10)

	report, err := NewGate(slog.New(slog.DiscardHandler)).Check(context.Background(), st, domain.DefaultQualityThresholds())
	require.NoError(t, err)
	require.Len(t, report.Layers, 3)
	assert.Empty(t, report.Warnings)
	for _, lr := range report.Layers {
		assert.True(t, lr.Exists)
		assert.Equal(t, "loan_id", lr.KeyColumn)
		assert.Zero(t, lr.DuplicateKeys)
	}
}

func TestCheck_MissingTablesCountAsEmpty(t *testing.T) {
	st := newStore(t)
	seed(t, st, "raw", "raw_loans", "loan_id", 5, 5)

	report, err := NewGate(slog.New(slog.DiscardHandler)).Check(context.Background(), st, domain.DefaultQualityThresholds())
	var empty *domain.EmptyLayerError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, domain.LayerSilver, empty.Layer)

	silver, _ := report.Layer(domain.LayerSilver)
	assert.False(t, silver.Exists)
	assert.Zero(t, silver.Rows)
}

func TestCheck_LayerOrderIgnoresConfigOrder(t *testing.T) {
	st := newStore(t)
	th := domain.DefaultQualityThresholds()
	th.Layers = []domain.LayerThreshold{th.Layers[2], th.Layers[1], th.Layers[0]}

	_, err := NewGate(slog.New(slog.DiscardHandler)).Check(context.Background(), st, th)
	var empty *domain.EmptyLayerError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, domain.LayerRaw, empty.Layer)
}

func TestCheck_MissingStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lake.duckdb")

	report, err := NewGate(slog.New(slog.DiscardHandler)).Check(context.Background(), store.New(path), domain.DefaultQualityThresholds())
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.ErrorKind(err))
	assert.Nil(t, report)
	assert.NoFileExists(t, path)
}

func TestCheck_Duplicates(t *testing.T) {
	st := newStore(t)
	// 10 rows over 7 distinct ids: 3 duplicates. The key column matches case-insensitively.
	seed(t, st, "raw", "raw_loans", "LOAN_ID", 10, 7)
	seed(t, st, "silver", "silver_loans", "loan_id", 10, 10)
	seed(t, st, "gold", "fact_loan", "loan_id", 10, 10)
	gate := NewGate(slog.New(slog.DiscardHandler))

	t.Run("reported as warning", func(t *testing.T) {
		report, err := gate.Check(context.Background(), st, domain.DefaultQualityThresholds())
		require.NoError(t, err)
		raw, _ := report.Layer(domain.LayerRaw)
		assert.Equal(t, "LOAN_ID", raw.KeyColumn)
		assert.Equal(t, int64(3), raw.DuplicateKeys)
		require.Len(t, report.Warnings, 1)
		assert.Contains(t, report.Warnings[0], "raw.raw_loans")
	})

	t.Run("within tolerance", func(t *testing.T) {
		th := domain.DefaultQualityThresholds()
		th.MaxDuplicateKeys = 3
		report, err := gate.Check(context.Background(), st, th)
		require.NoError(t, err)
		assert.Empty(t, report.Warnings)
	})

	t.Run("fails when configured", func(t *testing.T) {
		th := domain.DefaultQualityThresholds()
		th.FailOnDuplicates = true
		_, err := gate.Check(context.Background(), st, th)
		require.Error(t, err)
		assert.Equal(t, domain.KindDuplicateKeys, domain.ErrorKind(err))
	})
}

func TestCheck_InvalidTableName(t *testing.T) {
	th := domain.DefaultQualityThresholds()
	th.Layers[1].Table = "silver loans"
	_, err := NewGate(slog.New(slog.DiscardHandler)).Check(context.Background(), newStore(t), th)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.ErrorKind(err))
}
