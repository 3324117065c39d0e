package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"loan-pipeline/internal/domain"
)

// PipelineFile is the optional YAML description of a pipeline.
type PipelineFile struct {
	Paths     PathsSpec     `yaml:"paths"`
	Table     string        `yaml:"table,omitempty"`
	Source    SourceOptions `yaml:"source"`
	Quality   QualitySpec   `yaml:"quality"`
	Transform TransformSpec `yaml:"transform"`
}

// SourceOptions tunes how source files are read.
type SourceOptions struct {
	// Workers bounds how many files are parsed at once; 0 keeps the default.
	Workers int `yaml:"workers,omitempty"`
}

// PathsSpec overrides the conventional project layout.
type PathsSpec struct {
	Root         string `yaml:"root,omitempty"`
	SourceFile   string `yaml:"source_file,omitempty"`
	SourceDir    string `yaml:"source_dir,omitempty"`
	Store        string `yaml:"store,omitempty"`
	RawDir       string `yaml:"raw_dir,omitempty"`
	Ledger       string `yaml:"ledger,omitempty"`
	TransformDir string `yaml:"transform_dir,omitempty"`
}

// QualitySpec overrides the quality gate thresholds.
type QualitySpec struct {
	BusinessKey      string      `yaml:"business_key,omitempty"`
	MaxDuplicateKeys *int64      `yaml:"max_duplicate_keys,omitempty"`
	FailOnDuplicates bool        `yaml:"fail_on_duplicates,omitempty"`
	Layers           []LayerSpec `yaml:"layers,omitempty"`
}

// LayerSpec configures one layer's canonical table.
type LayerSpec struct {
	Layer   string `yaml:"layer"`
	Table   string `yaml:"table"`
	MinRows *int64 `yaml:"min_rows,omitempty"`
}

// DefaultTransformCommands install dbt packages, build the silver and gold
// models and run the dbt tests, in that order.
var DefaultTransformCommands = [][]string{
	{"dbt", "deps"},
	{"dbt", "run"},
	{"dbt", "test"},
}

// TransformSpec describes the external transformation commands. Each command
// is the program followed by its arguments and runs as its own step.
// Command and Args are shorthand for a single command.
type TransformSpec struct {
	Commands [][]string `yaml:"commands,omitempty"`
	Command  string     `yaml:"command,omitempty"`
	Args     []string   `yaml:"args,omitempty"`
	Retries  int        `yaml:"retries,omitempty"`
}

// CommandLines returns the commands to run, falling back to
// DefaultTransformCommands when none are configured.
func (t TransformSpec) CommandLines() [][]string {
	switch {
	case len(t.Commands) > 0:
		return t.Commands
	case t.Command != "":
		return [][]string{append([]string{t.Command}, t.Args...)}
	default:
		return DefaultTransformCommands
	}
}

func (t TransformSpec) validate() error {
	if t.Retries < 0 {
		return domain.ErrInvalidConfiguration("transform.retries must not be negative")
	}
	if len(t.Commands) > 0 && t.Command != "" {
		return domain.ErrInvalidConfiguration("transform: use either commands or command, not both")
	}
	if t.Command == "" && len(t.Args) > 0 {
		return domain.ErrInvalidConfiguration("transform.args given without transform.command")
	}
	for i, c := range t.Commands {
		if len(c) == 0 || c[0] == "" {
			return domain.ErrInvalidConfiguration("transform.commands[%d] is empty", i)
		}
	}
	return nil
}

// LoadPipelineFile reads and validates a YAML pipeline file. Unknown fields
// are rejected so typos do not silently fall back to defaults.
func LoadPipelineFile(path string) (*PipelineFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrInvalidConfiguration("pipeline file %s not found", path)
		}
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	return ParsePipelineFile(data)
}

// ParsePipelineFile decodes YAML pipeline configuration.
func ParsePipelineFile(data []byte) (*PipelineFile, error) {
	var pf PipelineFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.ErrInvalidConfiguration("parse pipeline file: %v", err)
	}
	if _, err := pf.Thresholds(); err != nil {
		return nil, err
	}
	if err := pf.Transform.validate(); err != nil {
		return nil, err
	}
	if pf.Source.Workers < 0 {
		return nil, domain.ErrInvalidConfiguration("source.workers must not be negative")
	}
	return &pf, nil
}

// ApplyPaths overlays the file's paths onto base.
func (pf *PipelineFile) ApplyPaths(base Paths) Paths {
	if pf == nil {
		return base
	}
	if pf.Paths.Root != "" && pf.Paths.Root != base.Root {
		base = NewPaths(pf.Paths.Root)
	}
	return base.merge(Paths{
		SourceFile:   pf.Paths.SourceFile,
		SourceDir:    pf.Paths.SourceDir,
		StorePath:    pf.Paths.Store,
		RawDir:       pf.Paths.RawDir,
		LedgerPath:   pf.Paths.Ledger,
		TransformDir: pf.Paths.TransformDir,
	})
}

// SourceWorkers returns source.workers, 0 when pf is nil.
func (pf *PipelineFile) SourceWorkers() int {
	if pf == nil {
		return 0
	}
	return pf.Source.Workers
}

// Thresholds returns the quality thresholds, starting from the defaults and
// applying every override in the file.
func (pf *PipelineFile) Thresholds() (domain.QualityThresholds, error) {
	th := domain.DefaultQualityThresholds()
	if pf == nil {
		return th, nil
	}
	q := pf.Quality
	if q.BusinessKey != "" {
		th.BusinessKey = q.BusinessKey
	}
	if q.MaxDuplicateKeys != nil {
		if *q.MaxDuplicateKeys < 0 {
			return th, domain.ErrInvalidConfiguration("quality.max_duplicate_keys must not be negative")
		}
		th.MaxDuplicateKeys = *q.MaxDuplicateKeys
	}
	th.FailOnDuplicates = q.FailOnDuplicates

	for _, ls := range q.Layers {
		layer, err := domain.ParseLayer(ls.Layer)
		if err != nil {
			return th, err
		}
		idx := -1
		for i := range th.Layers {
			if th.Layers[i].Layer == layer {
				idx = i
			}
		}
		if ls.Table != "" {
			th.Layers[idx].Table = ls.Table
		}
		if ls.MinRows != nil {
			if *ls.MinRows < 0 {
				return th, domain.ErrInvalidConfiguration("quality.layers[%s].min_rows must not be negative", layer)
			}
			th.Layers[idx].MinRows = *ls.MinRows
		}
	}

	// The RAW table follows the ingestion table unless the layer list names it.
	if pf.Table != "" && !pf.namesLayer(domain.LayerRaw) {
		th.Layers[0].Table = pf.Table
	}
	return th, nil
}

func (pf *PipelineFile) namesLayer(l domain.Layer) bool {
	for _, ls := range pf.Quality.Layers {
		if parsed, err := domain.ParseLayer(ls.Layer); err == nil && parsed == l && ls.Table != "" {
			return true
		}
	}
	return false
}
