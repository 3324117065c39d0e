package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the ingestion mode. It is fixed for the duration of one run and
// selects both the snapshot name and the RAW mutation policy.
type Mode string

// Supported ingestion modes.
const (
	ModeFullRefresh Mode = "full_refresh"
	ModeIncremental Mode = "incremental"
)

// ParseMode accepts exactly the two literal mode values.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFullRefresh, ModeIncremental:
		return Mode(s), nil
	}
	return "", ErrInvalidConfiguration("unsupported mode %q: use %q or %q", s, ModeFullRefresh, ModeIncremental)
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	return m == ModeFullRefresh || m == ModeIncremental
}

func (m Mode) String() string { return string(m) }

// Layer names one of the three logical schemas of the analytical store.
type Layer string

// Store layers, in promotion order.
const (
	LayerRaw    Layer = "raw"
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// Layers lists every layer in promotion order.
var Layers = []Layer{LayerRaw, LayerSilver, LayerGold}

// ParseLayer resolves a layer name case-insensitively.
func ParseLayer(s string) (Layer, error) {
	l := Layer(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Layers {
		if l == known {
			return l, nil
		}
	}
	return "", ErrInvalidConfiguration("unknown layer %q", s)
}

// Schema returns the store schema backing the layer.
func (l Layer) Schema() string { return string(l) }

// SourceSpec selects where SourceLoader reads from. Dir takes precedence over
// Path when both are set.
type SourceSpec struct {
	Path    string
	Dir     string
	Pattern string
}

// SourceFile describes one file read by SourceLoader.
type SourceFile struct {
	Name string
	Path string
	Rows int
}

// Snapshot is an immutable columnar artifact produced by one ingestion run.
type Snapshot struct {
	Path      string
	Name      string
	Table     string
	Mode      Mode
	Rows      int64
	CreatedAt time.Time
}

// LoadAction is the mutation LayerLoader applies to a RAW table.
type LoadAction int

// Load actions.
const (
	ActionCreate LoadAction = iota + 1
	ActionReplace
	ActionAppend
)

func (a LoadAction) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionReplace:
		return "replace"
	case ActionAppend:
		return "append"
	default:
		return fmt.Sprintf("LoadAction(%d)", int(a))
	}
}

// LoadResult describes the outcome of applying a snapshot to a RAW table.
type LoadResult struct {
	Table        string // qualified, e.g. raw.raw_loans
	Action       LoadAction
	SnapshotRows int64
	PreviousRows int64
	RowCount     int64
	AddedColumns []string
}

// IngestionRequest holds everything one ingestion run needs.
type IngestionRequest struct {
	Source    SourceSpec
	StorePath string
	RawDir    string
	Table     string
	Mode      Mode
	Publish   bool
	Bucket    string
	Prefix    string
}

// IngestionResult summarizes a completed ingestion run.
type IngestionResult struct {
	RunID     string
	Files     []SourceFile
	Snapshot  *Snapshot
	MirrorURI string
	Load      *LoadResult
}
