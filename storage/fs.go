package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// FsStore keeps blobs as files under Root/<bucket>/<key> on an afero filesystem.
// It serves local development and tests.
type FsStore struct {
	Fs   afero.Fs
	Root string
}

// NewFsStore creates a store rooted at root.
func NewFsStore(fs afero.Fs, root string) *FsStore {
	return &FsStore{Fs: fs, Root: root}
}

func (s *FsStore) path(bucket, key string) string {
	return filepath.Join(s.Root, bucket, filepath.FromSlash(key))
}

// Download implements BlobStore.
func (s *FsStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := s.Fs.Open(s.path(bucket, key))
	if err != nil {
		if isNotExist(err) {
			return errors.Wrapf(ErrBlobNotFound, "%s/%s", bucket, key)
		}
		return errors.Wrapf(err, "open %s/%s", bucket, key)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return errors.Wrapf(err, "read %s/%s", bucket, key)
}

// Upload implements BlobStore.
func (s *FsStore) Upload(ctx context.Context, r io.Reader, bucket, key string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(bucket, key)
	if err := s.Fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "create bucket directory for %s/%s", bucket, key)
	}
	f, err := s.Fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create %s/%s", bucket, key)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s/%s", bucket, key)
		}
	}()
	_, err = io.Copy(f, r)
	return errors.Wrapf(err, "write %s/%s", bucket, key)
}
