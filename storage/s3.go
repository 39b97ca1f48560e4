package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// S3Store is a BlobStore backed by Amazon S3 or an S3 compatible endpoint.
type S3Store struct {
	cli *s3.S3
	up  *s3manager.Uploader
}

// NewS3Store creates a store from the default credential chain. A non-empty
// endpoint switches to path-style addressing, as S3 compatible servers expect.
func NewS3Store(region, endpoint string) (*S3Store, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}
	return NewS3StoreWithClient(s3.New(sess)), nil
}

// NewS3StoreWithStaticCredentials is NewS3Store with fixed credentials.
func NewS3StoreWithStaticCredentials(region, endpoint, id, secret string) (*S3Store, error) {
	sess, err := session.NewSession(aws.NewConfig().
		WithRegion(region).
		WithEndpoint(endpoint).
		WithS3ForcePathStyle(true).
		WithCredentials(credentials.NewStaticCredentials(id, secret, "")))
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}
	return NewS3StoreWithClient(s3.New(sess)), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(cli *s3.S3) *S3Store {
	return &S3Store{cli: cli, up: s3manager.NewUploaderWithClient(cli)}
}

// Download implements BlobStore.
func (s *S3Store) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	out, err := s.cli.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s3Error(err, "get", bucket, key)
	}
	defer out.Body.Close()
	_, err = io.Copy(w, out.Body)
	return errors.Wrapf(err, "read s3://%s/%s", bucket, key)
}

// Upload implements BlobStore.
func (s *S3Store) Upload(ctx context.Context, r io.Reader, bucket, key string) error {
	_, err := s.up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return s3Error(err, "upload", bucket, key)
	}
	return nil
}

func s3Error(err error, op, bucket, key string) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return errors.Wrapf(ErrBlobNotFound, "s3://%s/%s", bucket, key)
		}
	}
	return errors.Wrapf(err, "%s s3://%s/%s", op, bucket, key)
}
