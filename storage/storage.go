// Package storage は成果物やデータセットを保管するオブジェクトストアを抽象化します。
// バックエンドは GCS・S3・ローカルディレクトリ（afero）で、WithRetry で再試行を付与できます。
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// ErrBlobNotFound is returned when the bucket or the object does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore reads and writes named blobs in buckets.
type BlobStore interface {
	// Download streams the object at bucket/key into w.
	Download(ctx context.Context, bucket, key string, w io.Writer) error
	// Upload stores the content of r at bucket/key, replacing any existing object.
	Upload(ctx context.Context, r io.Reader, bucket, key string) error
}

// Backend names accepted by New.
const (
	BackendGCS   = "gcs"
	BackendS3    = "s3"
	BackendLocal = "local"
)

// Options configures New.
type Options struct {
	Backend         string
	Region          string // s3
	Endpoint        string // gcs, s3; empty means the provider default
	CredentialsFile string // gcs
	LocalRoot       string // local
	RetryAttempts   uint
	Fs              afero.Fs // local; defaults to the OS filesystem
}

// New creates the configured backend, wrapped with retries when
// RetryAttempts > 1.
func New(ctx context.Context, opts Options) (BlobStore, error) {
	var (
		store BlobStore
		err   error
	)
	switch opts.Backend {
	case BackendGCS, "":
		store, err = NewGCSStore(ctx, opts.Endpoint, opts.CredentialsFile)
	case BackendS3:
		store, err = NewS3Store(opts.Region, opts.Endpoint)
	case BackendLocal:
		fs := opts.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		store = NewFsStore(fs, opts.LocalRoot)
	default:
		return nil, errors.NewConfigurationError("storage.backend", "unknown backend", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if opts.RetryAttempts > 1 {
		store = WithRetry(store, opts.RetryAttempts)
	}
	return store, nil
}

// DownloadFile downloads bucket/key to path on fs. The object is written to a
// temporary file first and renamed into place, so path only ever holds a
// complete download.
func DownloadFile(ctx context.Context, store BlobStore, fs afero.Fs, bucket, key, path string) (err error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "create temporary file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmpName)
		}
	}()

	if err := store.Download(ctx, bucket, key, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	return errors.Wrapf(fs.Rename(tmpName, path), "rename %s", tmpName)
}

// UploadFile uploads the file at path on fs to bucket/key.
func UploadFile(ctx context.Context, store BlobStore, fs afero.Fs, path, bucket, key string) error {
	f, err := fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return store.Upload(ctx, f, bucket, key)
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
