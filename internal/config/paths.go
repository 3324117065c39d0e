package config

import "path/filepath"

// Paths holds every file location a pipeline run touches. It is built once per
// run and passed down so tests can point each component at a temp directory.
type Paths struct {
	Root         string
	SourceFile   string // single spreadsheet used by full_refresh runs
	SourceDir    string // directory scanned by incremental runs
	StorePath    string // DuckDB analytical store
	RawDir       string // snapshot archive
	LedgerPath   string // SQLite run ledger
	TransformDir string // working directory of the transformation command
}

// NewPaths returns the conventional project layout under root.
func NewPaths(root string) Paths {
	if root == "" {
		root = "."
	}
	return Paths{
		Root:         root,
		SourceFile:   filepath.Join(root, "data", "Data Engineer Challenge.xlsx"),
		SourceDir:    filepath.Join(root, "data"),
		StorePath:    filepath.Join(root, "dbt", "data_challenge.duckdb"),
		RawDir:       filepath.Join(root, "raw_data"),
		LedgerPath:   filepath.Join(root, DefaultMetaDB),
		TransformDir: filepath.Join(root, "dbt"),
	}
}

// merge overrides p with every non-empty field of o.
func (p Paths) merge(o Paths) Paths {
	if o.Root != "" {
		p.Root = o.Root
	}
	if o.SourceFile != "" {
		p.SourceFile = o.SourceFile
	}
	if o.SourceDir != "" {
		p.SourceDir = o.SourceDir
	}
	if o.StorePath != "" {
		p.StorePath = o.StorePath
	}
	if o.RawDir != "" {
		p.RawDir = o.RawDir
	}
	if o.LedgerPath != "" {
		p.LedgerPath = o.LedgerPath
	}
	if o.TransformDir != "" {
		p.TransformDir = o.TransformDir
	}
	return p
}
