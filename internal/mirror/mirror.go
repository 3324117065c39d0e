// Package mirror uploads snapshots to object storage. S3 (and S3-compatible
// stores), Google Cloud Storage and Azure Blob Storage are supported; the
// backend is picked from the bucket's URI scheme.
package mirror

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"loan-pipeline/internal/config"
	"loan-pipeline/internal/domain"
)

// Target is a parsed bucket reference.
type Target struct {
	Scheme string // s3, gs or az
	Bucket string // bucket or container name
	Path   string // optional key prefix carried in the bucket URI
}

// ParseTarget parses a bucket reference. A bare name ("loans-raw") means S3;
// "s3://", "gs://" and "az://" URIs select the backend and may carry a path.
func ParseTarget(bucket string) (Target, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return Target{}, domain.ErrMirrorUpload(nil, "no destination bucket configured")
	}
	if !strings.Contains(bucket, "://") {
		return Target{Scheme: "s3", Bucket: strings.Trim(bucket, "/")}, nil
	}

	u, err := url.Parse(bucket)
	if err != nil {
		return Target{}, domain.ErrMirrorUpload(err, "parse bucket %q", bucket)
	}
	switch u.Scheme {
	case "s3", "gs", "az":
	default:
		return Target{}, domain.ErrMirrorUpload(nil, "unsupported bucket scheme %q in %q", u.Scheme, bucket)
	}
	if u.Host == "" {
		return Target{}, domain.ErrMirrorUpload(nil, "empty bucket name in %q", bucket)
	}
	return Target{Scheme: u.Scheme, Bucket: u.Host, Path: strings.Trim(u.Path, "/")}, nil
}

// ObjectKey joins the non-empty key segments with "/".
func ObjectKey(parts ...string) string {
	var clean []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return path.Join(clean...)
}

// URI returns the scheme://bucket/key form of an uploaded object.
func (t Target) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s", t.Scheme, t.Bucket, key)
}

// New returns the mirror for bucket, configured with the credentials in cfg.
func New(ctx context.Context, cfg *config.Config, bucket string) (domain.ObjectMirror, error) {
	target, err := ParseTarget(bucket)
	if err != nil {
		return nil, err
	}
	var m domain.ObjectMirror
	switch target.Scheme {
	case "gs":
		m, err = NewGCSMirror(ctx, cfg, target)
	case "az":
		m, err = NewAzureMirror(cfg, target)
	default:
		m, err = NewS3Mirror(cfg, target)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
