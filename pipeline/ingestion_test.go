package pipeline

import (
	"context"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gumutzkn/MLOPS-PROJECT-1/dataset"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
)

func TestNewDataIngestionRejectsBadConfigWithoutIO(t *testing.T) {
	cases := map[string]func(c *IngestionConfig){
		"empty bucket":       func(c *IngestionConfig) { c.BucketName = "" },
		"placeholder bucket": func(c *IngestionConfig) { c.BucketName = "PLACEHOLDER_BUCKET" },
		"ratio one":          func(c *IngestionConfig) { c.TrainRatio = 1 },
		"ratio zero":         func(c *IngestionConfig) { c.TrainRatio = 0 },
		"empty blob key":     func(c *IngestionConfig) { c.BlobKey = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := IngestionConfigFrom(testConfig(t))
			mutate(&cfg)
			store := &countingStore{}
			fs := afero.NewMemMapFs()

			_, err := NewDataIngestion(cfg, store, fs, testLogger())
			var ce *errors.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Zero(t, store.downloads)
			entries, _ := afero.ReadDir(fs, "/")
			assert.Empty(t, entries)
		})
	}
}

func TestNewDataIngestionRequiresStore(t *testing.T) {
	ing, err := NewDataIngestion(IngestionConfigFrom(testConfig(t)), nil, afero.NewMemMapFs(), testLogger())
	var ce *errors.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "storage.backend", ce.Field)
	assert.Nil(t, ing)
}

func TestDataIngestionRun(t *testing.T) {
	fs, store := newEnv(t, 100)
	cfg := IngestionConfigFrom(testConfig(t))
	ing, err := NewDataIngestion(cfg, store, fs, testLogger())
	require.NoError(t, err)

	require.NoError(t, ing.Run(context.Background()))

	train, err := dataset.ReadCSVFile(fs, cfg.TrainPath)
	require.NoError(t, err)
	test, err := dataset.ReadCSVFile(fs, cfg.TestPath)
	require.NoError(t, err)
	assert.Equal(t, 80, train.Len())
	assert.Equal(t, 20, test.Len())
	assert.Equal(t, rawHeader, train.Header)

	all := append(append([]int{}, train.Index...), test.Index...)
	sort.Ints(all)
	for i, idx := range all {
		require.Equal(t, i, idx)
	}

	// 同じシードで再実行すると同じ分割になる
	require.NoError(t, ing.Run(context.Background()))
	again, err := dataset.ReadCSVFile(fs, cfg.TestPath)
	require.NoError(t, err)
	assert.Equal(t, test.Index, again.Index)
}

func TestDataIngestionDownloadMissingBlob(t *testing.T) {
	fs, store := newEnv(t, 10)
	ing, err := NewDataIngestion(IngestionConfigFrom(testConfig(t)), store, fs, testLogger())
	require.NoError(t, err)

	err = ing.Download(context.Background(), "absent.csv", "artifacts/raw/raw.csv")
	var ie *errors.IngestionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "download", ie.Op)
	assert.True(t, errors.Is(err, storage.ErrBlobNotFound))

	exists, _ := afero.Exists(fs, "artifacts/raw/raw.csv")
	assert.False(t, exists)
}

func TestDataIngestionSplitFailures(t *testing.T) {
	fs, store := newEnv(t, 10)
	ing, err := NewDataIngestion(IngestionConfigFrom(testConfig(t)), store, fs, testLogger())
	require.NoError(t, err)

	var ie *errors.IngestionError
	err = ing.Split("missing.csv", "train.csv", "test.csv", 0.8, 42)
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "read", ie.Op)

	require.NoError(t, afero.WriteFile(fs, "ragged.csv", []byte("a,b\n1\n"), 0o644))
	err = ing.Split("ragged.csv", "train.csv", "test.csv", 0.8, 42)
	require.True(t, errors.As(err, &ie))

	require.NoError(t, afero.WriteFile(fs, "one.csv", []byte("a,b\n1,2\n"), 0o644))
	err = ing.Split("one.csv", "train.csv", "test.csv", 0.8, 42)
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "split", ie.Op)
}
