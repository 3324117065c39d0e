// Package loader applies snapshots to RAW layer tables.
package loader

import "loan-pipeline/internal/domain"

// DecideAction maps the state of the RAW table and the ingestion mode to the
// mutation to apply:
//
//	exists  mode          action
//	no      full_refresh  create
//	yes     full_refresh  replace
//	no      incremental   create
//	yes     incremental   append
func DecideAction(exists bool, mode domain.Mode) domain.LoadAction {
	switch {
	case !exists:
		return domain.ActionCreate
	case mode == domain.ModeIncremental:
		return domain.ActionAppend
	default:
		return domain.ActionReplace
	}
}
