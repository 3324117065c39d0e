package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-pipeline/internal/domain"
)

func TestParsePipelineFile_Overrides(t *testing.T) {
	pf, err := ParsePipelineFile([]byte(`
table: loans_landing
paths:
  store: /data/store.duckdb
  raw_dir: /data/raw
quality:
  business_key: LoanID
  max_duplicate_keys: 3
  fail_on_duplicates: true
  layers:
    - layer: gold
      table: fact_loans
      min_rows: 10
transform:
  command: dbt
  args: [run, --select, silver+]
  retries: 2
`))
	require.NoError(t, err)

	th, err := pf.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, "LoanID", th.BusinessKey)
	assert.Equal(t, int64(3), th.MaxDuplicateKeys)
	assert.True(t, th.FailOnDuplicates)

	raw, ok := th.Threshold(domain.LayerRaw)
	require.True(t, ok)
	assert.Equal(t, "loans_landing", raw.Table)
	assert.Equal(t, int64(1), raw.MinRows)

	gold, ok := th.Threshold(domain.LayerGold)
	require.True(t, ok)
	assert.Equal(t, "fact_loans", gold.Table)
	assert.Equal(t, int64(10), gold.MinRows)

	paths := pf.ApplyPaths(NewPaths("/srv"))
	assert.Equal(t, "/data/store.duckdb", paths.StorePath)
	assert.Equal(t, "/data/raw", paths.RawDir)
	assert.Equal(t, filepath.Join("/srv", "data"), paths.SourceDir)

	assert.Equal(t, [][]string{{"dbt", "run", "--select", "silver+"}}, pf.Transform.CommandLines())
	assert.Equal(t, 2, pf.Transform.Retries)
}

func TestTransformSpec_CommandLines(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want [][]string
	}{
		{name: "default", yaml: "", want: [][]string{{"dbt", "deps"}, {"dbt", "run"}, {"dbt", "test"}}},
		{name: "single", yaml: "transform:\n  command: make\n  args: [models]\n", want: [][]string{{"make", "models"}}},
		{
			name: "list",
			yaml: "transform:\n  commands:\n    - [dbt, run, --target, prod]\n    - [dbt, test]\n",
			want: [][]string{{"dbt", "run", "--target", "prod"}, {"dbt", "test"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf, err := ParsePipelineFile([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, pf.Transform.CommandLines())
		})
	}
}

func TestParsePipelineFile_SourceWorkers(t *testing.T) {
	pf, err := ParsePipelineFile([]byte("source:\n  workers: 8\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, pf.SourceWorkers())

	var none *PipelineFile
	assert.Zero(t, none.SourceWorkers())
}

func TestParsePipelineFile_Empty(t *testing.T) {
	pf, err := ParsePipelineFile(nil)
	require.NoError(t, err)

	th, err := pf.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultQualityThresholds(), th)
}

func TestParsePipelineFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown_field", yaml: "qualty:\n  business_key: x\n"},
		{name: "unknown_layer", yaml: "quality:\n  layers:\n    - layer: bronze\n      table: x\n"},
		{name: "negative_min_rows", yaml: "quality:\n  layers:\n    - layer: raw\n      min_rows: -1\n"},
		{name: "negative_duplicates", yaml: "quality:\n  max_duplicate_keys: -2\n"},
		{name: "negative_retries", yaml: "transform:\n  retries: -1\n"},
		{name: "commands_and_command", yaml: "transform:\n  command: dbt\n  commands: [[dbt, run]]\n"},
		{name: "empty_command", yaml: "transform:\n  commands: [[dbt, deps], []]\n"},
		{name: "args_without_command", yaml: "transform:\n  args: [run]\n"},
		{name: "negative_workers", yaml: "source:\n  workers: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipelineFile([]byte(tt.yaml))
			require.Error(t, err)
			assert.Equal(t, domain.KindInvalidConfiguration, domain.ErrorKind(err))
		})
	}
}

func TestLoadPipelineFile_Missing(t *testing.T) {
	_, err := LoadPipelineFile(filepath.Join(t.TempDir(), "pipeline.yaml"))
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidConfiguration, domain.ErrorKind(err))
}

func TestLoadPipelineFile_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("table: raw_loans_v2\n"), 0o644))

	pf, err := LoadPipelineFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw_loans_v2", pf.Table)
}
