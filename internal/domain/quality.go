package domain

// LayerThreshold names a layer's canonical table and its minimum row count.
type LayerThreshold struct {
	Layer   Layer
	Table   string
	MinRows int64
}

// QualifiedTable returns schema.table for the threshold.
func (t LayerThreshold) QualifiedTable() string {
	return t.Layer.Schema() + "." + t.Table
}

// QualityThresholds is the fixed configuration the quality gate enforces.
type QualityThresholds struct {
	Layers           []LayerThreshold
	BusinessKey      string
	MaxDuplicateKeys int64
	FailOnDuplicates bool
}

// DefaultQualityThresholds returns the canonical loan tables with a minimum of
// one row per layer and no tolerated duplicate loan identifiers.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		Layers: []LayerThreshold{
			{Layer: LayerRaw, Table: "raw_loans", MinRows: 1},
			{Layer: LayerSilver, Table: "silver_loans", MinRows: 1},
			{Layer: LayerGold, Table: "fact_loan", MinRows: 1},
		},
		BusinessKey:      "loan_id",
		MaxDuplicateKeys: 0,
	}
}

// Threshold returns the threshold configured for layer l.
func (q QualityThresholds) Threshold(l Layer) (LayerThreshold, bool) {
	for _, t := range q.Layers {
		if t.Layer == l {
			return t, true
		}
	}
	return LayerThreshold{}, false
}

// LayerReport is the quality gate's observation of one layer table.
type LayerReport struct {
	Layer         Layer
	Table         string
	Exists        bool
	Rows          int64
	MinRows       int64
	KeyColumn     string // empty when the business key is absent from the table
	DuplicateKeys int64
}

// QualityReport is the outcome of one quality gate evaluation.
type QualityReport struct {
	Layers   []LayerReport
	Warnings []string
}

// Layer returns the report entry for l.
func (r *QualityReport) Layer(l Layer) (LayerReport, bool) {
	for _, lr := range r.Layers {
		if lr.Layer == l {
			return lr, true
		}
	}
	return LayerReport{}, false
}
