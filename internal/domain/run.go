package domain

import "time"

// Ingestion run status constants.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// IngestionRun is the ledger record of one ingestion run.
type IngestionRun struct {
	ID           string
	Table        string
	Mode         Mode
	SourceFiles  []string
	SnapshotPath string
	MirrorURI    string
	Action       string
	SnapshotRows int64
	TableRows    int64
	Status       string
	ErrorKind    *string
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// IngestionRunFilter restricts ledger listings.
type IngestionRunFilter struct {
	Table  *string
	Status *string
	Limit  int
}
