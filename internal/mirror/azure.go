package mirror

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"loan-pipeline/internal/config"
	"loan-pipeline/internal/domain"
)

var _ domain.ObjectMirror = (*AzureMirror)(nil)

// AzureMirror uploads to an Azure Blob Storage container.
type AzureMirror struct {
	client *azblob.Client
	target Target
}

// NewAzureMirror creates an Azure mirror using shared-key authentication.
func NewAzureMirror(cfg *config.Config, target Target) (*AzureMirror, error) {
	if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
		return nil, domain.ErrMirrorUpload(nil, "AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY are required to publish to %s", target.URI(""))
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
	if err != nil {
		return nil, domain.ErrMirrorUpload(err, "create shared key credential")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, domain.ErrMirrorUpload(err, "create Azure blob client")
	}
	return &AzureMirror{client: client, target: target}, nil
}

// Upload writes the file at localPath to key and returns its az:// URI.
func (m *AzureMirror) Upload(ctx context.Context, localPath, key string) (string, error) {
	key = ObjectKey(m.target.Path, key)
	f, err := os.Open(localPath) //nolint:gosec // snapshot path produced by the writer
	if err != nil {
		return "", domain.ErrMirrorUpload(err, "open %s", localPath)
	}
	defer f.Close() //nolint:errcheck

	if _, err := m.client.UploadFile(ctx, m.target.Bucket, key, f, nil); err != nil {
		return "", domain.ErrMirrorUpload(err, "upload %s to %s", localPath, m.target.URI(key))
	}
	return m.target.URI(key), nil
}

// Bucket returns the destination container name.
func (m *AzureMirror) Bucket() string {
	return m.target.Bucket
}
