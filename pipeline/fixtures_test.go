package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/gumutzkn/MLOPS-PROJECT-1/config"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/model_selection"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
	"github.com/gumutzkn/MLOPS-PROJECT-1/tracking"
)

const (
	testBucket  = "hotel-data"
	testBlobKey = "Hotel_Reservations.csv"
)

var rawHeader = []string{
	"Booking_ID", "no_of_adults", "no_of_children", "no_of_weekend_nights", "no_of_week_nights",
	"type_of_meal_plan", "required_car_parking_space", "room_type_reserved", "lead_time",
	"arrival_year", "arrival_month", "arrival_date", "market_segment_type", "repeated_guest",
	"no_of_previous_cancellations", "no_of_previous_bookings_not_canceled", "avg_price_per_room",
	"no_of_special_requests", "booking_status",
}

// rawBookingsCSV returns n synthetic reservations in the raw dataset layout.
// Short lead times are kept, long ones cancelled.
func rawBookingsCSV(n int) string {
	meals := []string{"Meal Plan 1", "Not Selected", "Meal Plan 2"}
	rooms := []string{"Room_Type 1", "Room_Type 4", "Room_Type 2"}
	segments := []string{"Online", "Offline", "Corporate"}

	var b strings.Builder
	b.WriteString(strings.Join(rawHeader, ",") + "\n")
	for i := 0; i < n; i++ {
		lead := (i * 37) % 300
		status := "Canceled"
		if lead < 150 {
			status = "Not_Canceled"
		}
		fmt.Fprintf(&b, "INN%05d,2,0,%d,%d,%s,0,%s,%d,2018,%d,%d,%s,0,0,0,%.2f,%d,%s\n",
			i, i%3, (i*7)%5, meals[i%3], rooms[(i/3)%3], lead,
			1+i%12, 1+i%28, segments[(i/2)%3], 80+float64(i%50)*1.5, i%4, status)
	}
	return b.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataIngestion.BucketName = testBucket
	cfg.DataIngestion.BucketFileName = testBlobKey
	cfg.Search = config.SearchConfig{NIter: 2, CV: 2, NJobs: 2, Scoring: "accuracy", RandomState: 42, Verbose: 1}
	cfg.ParamDistributions = map[string]config.DistributionConfig{
		"n_estimators": {Type: model_selection.KindRandInt, Low: 5, High: 15},
		"num_leaves":   {Type: model_selection.KindRandInt, Low: 4, High: 16},
	}
	return &cfg
}

// newEnv seeds an in-memory blob store with n raw rows.
func newEnv(t *testing.T, n int) (afero.Fs, *storage.FsStore) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := storage.NewFsStore(fs, "/blobs")
	require.NoError(t, store.Upload(context.Background(), strings.NewReader(rawBookingsCSV(n)), testBucket, testBlobKey))
	return fs, store
}

func testLogger() log.Logger {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return logger
}

// countingStore records calls and optionally fails uploads.
type countingStore struct {
	storage.BlobStore
	mu        sync.Mutex
	downloads int
	uploads   int
	uploadErr error
}

func (s *countingStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	s.mu.Lock()
	s.downloads++
	s.mu.Unlock()
	if s.BlobStore == nil {
		return storage.ErrBlobNotFound
	}
	return s.BlobStore.Download(ctx, bucket, key, w)
}

func (s *countingStore) Upload(ctx context.Context, r io.Reader, bucket, key string) error {
	s.mu.Lock()
	s.uploads++
	s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	if s.BlobStore == nil {
		return nil
	}
	return s.BlobStore.Upload(ctx, r, bucket, key)
}

type fakeRecorder struct {
	mu         sync.Mutex
	runs       []*fakeRun
	startErr   error
	metricsErr error
}

func (r *fakeRecorder) StartRun(_ context.Context, name string) (tracking.Run, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run := &fakeRun{
		id:         fmt.Sprintf("run-%d", len(r.runs)),
		name:       name,
		params:     map[string]string{},
		metrics:    map[string]float64{},
		artifacts:  map[string][]byte{},
		metricsErr: r.metricsErr,
	}
	r.runs = append(r.runs, run)
	return run, nil
}

func (r *fakeRecorder) only(t *testing.T) *fakeRun {
	t.Helper()
	require.Len(t, r.runs, 1)
	return r.runs[0]
}

type fakeRun struct {
	id, name   string
	params     map[string]string
	metrics    map[string]float64
	artifacts  map[string][]byte
	status     tracking.RunStatus
	ends       int
	metricsErr error
}

func (r *fakeRun) ID() string { return r.id }

func (r *fakeRun) LogParams(_ context.Context, params map[string]string) error {
	for k, v := range params {
		r.params[k] = v
	}
	return nil
}

func (r *fakeRun) LogMetrics(_ context.Context, metrics map[string]float64) error {
	if r.metricsErr != nil {
		return r.metricsErr
	}
	for k, v := range metrics {
		r.metrics[k] = v
	}
	return nil
}

func (r *fakeRun) LogArtifact(_ context.Context, path string, rd io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rd); err != nil {
		return err
	}
	r.artifacts[path] = buf.Bytes()
	return nil
}

func (r *fakeRun) End(_ context.Context, status tracking.RunStatus) error {
	r.ends++
	r.status = status
	return nil
}

var errInjected = errors.New("injected failure")
