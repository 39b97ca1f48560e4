package storage

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/avast/retry-go"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
)

// DefaultRetryDelay is the base delay between attempts.
var DefaultRetryDelay = 200 * time.Millisecond

type retryStore struct {
	next     BlobStore
	attempts uint
	delay    time.Duration
	logger   log.Logger
}

// WithRetry retries failed transfers up to attempts times with exponential
// backoff. ErrBlobNotFound and context cancellation are not retried.
// Downloads are buffered per attempt so a failed attempt never reaches w.
func WithRetry(next BlobStore, attempts uint) BlobStore {
	return &retryStore{
		next:     next,
		attempts: attempts,
		delay:    DefaultRetryDelay,
		logger:   log.GetLoggerWithName("storage"),
	}
}

func (s *retryStore) options(ctx context.Context, op, bucket, key string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("Retrying blob transfer", err,
				log.OperationKey, op,
				log.BucketKey, bucket,
				log.BlobKeyKey, key,
				"attempt", n+1,
			)
		}),
	}
}

func retryable(err error) bool {
	return !errors.Is(err, ErrBlobNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (s *retryStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	var buf bytes.Buffer
	err := retry.Do(func() error {
		buf.Reset()
		return s.next.Download(ctx, bucket, key, &buf)
	}, s.options(ctx, "download", bucket, key)...)
	if err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return errors.Wrapf(err, "write %s/%s", bucket, key)
}

func (s *retryStore) Upload(ctx context.Context, r io.Reader, bucket, key string) error {
	// 再試行のためにボディを保持する
	body, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "read upload body for %s/%s", bucket, key)
	}
	return retry.Do(func() error {
		return s.next.Upload(ctx, bytes.NewReader(body), bucket, key)
	}, s.options(ctx, "upload", bucket, key)...)
}
