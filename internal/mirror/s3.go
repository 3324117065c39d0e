package mirror

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"loan-pipeline/internal/config"
	"loan-pipeline/internal/domain"
)

var _ domain.ObjectMirror = (*S3Mirror)(nil)

// S3Mirror uploads to AWS S3 or an S3-compatible store.
type S3Mirror struct {
	client *s3.Client
	target Target
}

// NewS3Mirror creates an S3 mirror from the static credentials in cfg.
func NewS3Mirror(cfg *config.Config, target Target) (*S3Mirror, error) {
	if !cfg.HasS3Config() {
		return nil, domain.ErrMirrorUpload(nil, "S3 credentials are not configured (KEY_ID, SECRET, REGION)")
	}

	opts := s3.Options{
		Region: *cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			*cfg.S3KeyID, *cfg.S3Secret, "",
		),
		UsePathStyle: cfg.S3URLStyle != "vhost",
	}
	if cfg.S3Endpoint != nil {
		endpoint := *cfg.S3Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}

	return &S3Mirror{client: s3.New(opts), target: target}, nil
}

// Upload puts the file at localPath under key and returns its s3:// URI.
func (m *S3Mirror) Upload(ctx context.Context, localPath, key string) (string, error) {
	key = ObjectKey(m.target.Path, key)
	f, err := os.Open(localPath) //nolint:gosec // snapshot path produced by the writer
	if err != nil {
		return "", domain.ErrMirrorUpload(err, "open %s", localPath)
	}
	defer f.Close() //nolint:errcheck

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.target.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", domain.ErrMirrorUpload(err, "upload %s to %s", localPath, m.target.URI(key))
	}
	return m.target.URI(key), nil
}

// Bucket returns the destination bucket name.
func (m *S3Mirror) Bucket() string {
	return m.target.Bucket
}
