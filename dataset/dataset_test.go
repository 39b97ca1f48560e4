package dataset

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

func numberedFrame(n int) *Frame {
	f := &Frame{Header: []string{"lead_time", "booking_status"}}
	for i := 0; i < n; i++ {
		f.Index = append(f.Index, i)
		f.Rows = append(f.Rows, []string{strconv.Itoa(i * 3), "Canceled"})
	}
	return f
}

func TestReadCSVWithAndWithoutIndex(t *testing.T) {
	plain, err := ReadCSV(strings.NewReader("a,b\n1,2\n3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, plain.Header)
	assert.Equal(t, []int{0, 1}, plain.Index)

	indexed, err := ReadCSV(strings.NewReader(",a,b\n7,1,2\n3,3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, indexed.Header)
	assert.Equal(t, []int{7, 3}, indexed.Index)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, indexed.Rows)

	_, err = ReadCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = ReadCSV(strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)
}

func TestWriteCSVKeepsIndex(t *testing.T) {
	f := numberedFrame(3).Take([]int{2, 0})
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, f))
	assert.Equal(t, ",lead_time,booking_status\n2,6,Canceled\n0,0,Canceled\n", buf.String())

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, f, back)
}

func TestCSVFileOnMemFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := numberedFrame(4)
	require.NoError(t, WriteCSVFile(fs, "artifacts/raw/train.csv", f))

	got, err := ReadCSVFile(fs, "artifacts/raw/train.csv")
	require.NoError(t, err)
	assert.Equal(t, f, got)

	_, err = ReadCSVFile(fs, "missing.csv")
	assert.Error(t, err)
}

func TestTrainTestSplitSizes(t *testing.T) {
	train, test, err := TrainTestSplit(numberedFrame(10), 0.8, DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, test.Len())

	// ceil(7 * 0.2) = 2
	train, test, err = TrainTestSplit(numberedFrame(7), 0.8, DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, 5, train.Len())
	assert.Equal(t, 2, test.Len())
}

func TestTrainTestSplitRejectsBadInput(t *testing.T) {
	for _, ratio := range []float64{0, 1, -0.5, 1.5} {
		_, _, err := TrainTestSplit(numberedFrame(10), ratio, DefaultSeed)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve), "ratio %v", ratio)
	}
	_, _, err := TrainTestSplit(numberedFrame(1), 0.8, DefaultSeed)
	assert.Error(t, err)
}

func TestTrainTestSplitProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 300).Draw(t, "n")
		ratio := rapid.Float64Range(0.05, 0.95).Draw(t, "ratio")
		seed := rapid.IntRange(0, 1<<20).Draw(t, "seed")
		f := numberedFrame(n)

		train, test, err := TrainTestSplit(f, ratio, seed)
		if err != nil {
			// only degenerate sizes may fail
			require.True(t, n < 20)
			return
		}

		all := append(append([]int(nil), train.Index...), test.Index...)
		sort.Ints(all)
		require.Equal(t, f.Index, all, "train ∪ test must equal the raw rows exactly once")

		again, againTest, err := TrainTestSplit(f, ratio, seed)
		require.NoError(t, err)
		require.Equal(t, train, again)
		require.Equal(t, test, againTest)
	})
}

func TestRecordsRoundTrip(t *testing.T) {
	records := []*BookingRecord{
		{LeadTime: 224, SpecialRequests: 0, AvgPricePerRoom: 65, ArrivalMonth: 10, ArrivalDate: 2,
			MarketSegmentType: 3, WeekNights: 2, WeekendNights: 1, MealPlanType: 0, RoomType: 0, BookingStatus: 1},
		{LeadTime: 5, SpecialRequests: 1, AvgPricePerRoom: 106.68, ArrivalMonth: 2, ArrivalDate: 28,
			MarketSegmentType: 4, WeekNights: 3, WeekendNights: 2, MealPlanType: 1, RoomType: 3, BookingStatus: 0},
	}
	fs := afero.NewMemMapFs()
	require.NoError(t, WriteRecordsFile(fs, "p/processed_train.csv", records))

	raw, err := afero.ReadFile(fs, "p/processed_train.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "lead_time,no_of_special_requests,avg_price_per_room"))

	got, err := ReadRecordsFile(fs, "p/processed_train.csv")
	require.NoError(t, err)
	assert.Equal(t, records, got)

	X, y, err := ToMatrix(got)
	require.NoError(t, err)
	r, c := X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, len(FeatureNames), c)
	assert.Equal(t, 106.68, X.At(1, 2))
	assert.Equal(t, 1.0, y.At(0, 0))
}

func TestFeaturesOrder(t *testing.T) {
	r := &BookingRecord{LeadTime: 1, SpecialRequests: 2, AvgPricePerRoom: 3.5, ArrivalMonth: 4, ArrivalDate: 5,
		MarketSegmentType: 6, WeekNights: 7, WeekendNights: 8, MealPlanType: 9, RoomType: 10}
	assert.Equal(t, []float64{1, 2, 3.5, 4, 5, 6, 7, 8, 9, 10}, r.Features())
	assert.Len(t, RawFeatureColumns, len(FeatureNames))
}
