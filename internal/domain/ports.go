package domain

import "context"

// IngestionRunRepository persists the ingestion run ledger.
type IngestionRunRepository interface {
	Create(ctx context.Context, run *IngestionRun) (*IngestionRun, error)
	Finish(ctx context.Context, run *IngestionRun) error
	GetByID(ctx context.Context, id string) (*IngestionRun, error)
	List(ctx context.Context, filter IngestionRunFilter) ([]IngestionRun, error)
}

// ObjectMirror copies a local snapshot to remote object storage.
// Implementations: S3Mirror, GCSMirror, AzureMirror.
type ObjectMirror interface {
	// Upload copies localPath to key and returns the remote URI.
	Upload(ctx context.Context, localPath, key string) (string, error)
	// Bucket returns the bucket (or container) objects are written to.
	Bucket() string
}
