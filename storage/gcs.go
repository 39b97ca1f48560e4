package storage

import (
	"context"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// GCSStore is a BlobStore backed by Google Cloud Storage.
type GCSStore struct {
	client *gcs.Client
}

// NewGCSStore creates a client using application default credentials, or
// credentialsFile when set.
func NewGCSStore(ctx context.Context, endpoint, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create gcs client")
	}
	return &GCSStore{client: client}, nil
}

// Download implements BlobStore.
func (s *GCSStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return gcsError(err, "open", bucket, key)
	}
	defer r.Close()
	_, err = io.Copy(w, r)
	return errors.Wrapf(err, "read gs://%s/%s", bucket, key)
}

// Upload implements BlobStore.
func (s *GCSStore) Upload(ctx context.Context, r io.Reader, bucket, key string) error {
	w := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "write gs://%s/%s", bucket, key)
	}
	// アップロードは Close で確定する
	if err := w.Close(); err != nil {
		return gcsError(err, "upload", bucket, key)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func gcsError(err error, op, bucket, key string) error {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return errors.Wrapf(ErrBlobNotFound, "gs://%s/%s", bucket, key)
	}
	return errors.Wrapf(err, "%s gs://%s/%s", op, bucket, key)
}
