package mirror

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"loan-pipeline/internal/config"
	"loan-pipeline/internal/domain"
)

var _ domain.ObjectMirror = (*GCSMirror)(nil)

// GCSMirror uploads to Google Cloud Storage.
type GCSMirror struct {
	client *storage.Client
	target Target
}

// NewGCSMirror creates a GCS mirror authenticated with the service account
// key file named by cfg.GCSKeyFile.
func NewGCSMirror(ctx context.Context, cfg *config.Config, target Target) (*GCSMirror, error) {
	if cfg.GCSKeyFile == "" {
		return nil, domain.ErrMirrorUpload(nil, "GCS_KEY_FILE is required to publish to %s", target.URI(""))
	}

	client, err := storage.NewClient(ctx, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.GCSKeyFile))
	if err != nil {
		return nil, domain.ErrMirrorUpload(err, "create GCS client")
	}
	return &GCSMirror{client: client, target: target}, nil
}

// Upload writes the file at localPath to key and returns its gs:// URI.
func (m *GCSMirror) Upload(ctx context.Context, localPath, key string) (string, error) {
	key = ObjectKey(m.target.Path, key)
	f, err := os.Open(localPath) //nolint:gosec // snapshot path produced by the writer
	if err != nil {
		return "", domain.ErrMirrorUpload(err, "open %s", localPath)
	}
	defer f.Close() //nolint:errcheck

	w := m.client.Bucket(m.target.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", domain.ErrMirrorUpload(err, "upload %s to %s", localPath, m.target.URI(key))
	}
	if err := w.Close(); err != nil {
		return "", domain.ErrMirrorUpload(err, "finalize upload to %s", m.target.URI(key))
	}
	return m.target.URI(key), nil
}

// Bucket returns the destination bucket name.
func (m *GCSMirror) Bucket() string {
	return m.target.Bucket
}
