package dataset

import (
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/spf13/afero"
	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// LabelColumn is the target column of the booking dataset.
const LabelColumn = "booking_status"

// FeatureNames は推論時に組み立てる特徴量ベクトルの順序です。この順序は契約の一部です。
var FeatureNames = []string{
	"lead_time",
	"special_requests_count",
	"avg_price_per_room",
	"arrival_month",
	"arrival_date",
	"market_segment_type",
	"week_nights",
	"weekend_nights",
	"meal_plan_type",
	"room_type",
}

// RawFeatureColumns are the dataset column names of FeatureNames, in the same order.
var RawFeatureColumns = []string{
	"lead_time",
	"no_of_special_requests",
	"avg_price_per_room",
	"arrival_month",
	"arrival_date",
	"market_segment_type",
	"no_of_week_nights",
	"no_of_weekend_nights",
	"type_of_meal_plan",
	"room_type_reserved",
}

// CategoricalColumns are label-encoded by the processing stage.
var CategoricalColumns = []string{
	"type_of_meal_plan",
	"room_type_reserved",
	"market_segment_type",
	LabelColumn,
}

// BookingRecord は前処理済みの1予約です。
// csv タグはデータセットの列名、schema タグは推論フォームのフィールド名です。
type BookingRecord struct {
	LeadTime          int     `csv:"lead_time" schema:"lead_time,required"`
	SpecialRequests   int     `csv:"no_of_special_requests" schema:"special_requests_count,required"`
	AvgPricePerRoom   float64 `csv:"avg_price_per_room" schema:"avg_price_per_room,required"`
	ArrivalMonth      int     `csv:"arrival_month" schema:"arrival_month,required"`
	ArrivalDate       int     `csv:"arrival_date" schema:"arrival_date,required"`
	MarketSegmentType int     `csv:"market_segment_type" schema:"market_segment_type,required"`
	WeekNights        int     `csv:"no_of_week_nights" schema:"week_nights,required"`
	WeekendNights     int     `csv:"no_of_weekend_nights" schema:"weekend_nights,required"`
	MealPlanType      int     `csv:"type_of_meal_plan" schema:"meal_plan_type,required"`
	RoomType          int     `csv:"room_type_reserved" schema:"room_type,required"`
	BookingStatus     int     `csv:"booking_status" schema:"-"`
}

// Features returns the feature vector in FeatureNames order.
func (r *BookingRecord) Features() []float64 {
	return []float64{
		float64(r.LeadTime),
		float64(r.SpecialRequests),
		r.AvgPricePerRoom,
		float64(r.ArrivalMonth),
		float64(r.ArrivalDate),
		float64(r.MarketSegmentType),
		float64(r.WeekNights),
		float64(r.WeekendNights),
		float64(r.MealPlanType),
		float64(r.RoomType),
	}
}

// ReadRecords decodes processed records from CSV.
func ReadRecords(r io.Reader) ([]*BookingRecord, error) {
	var records []*BookingRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, errors.Wrap(err, "decode booking records")
	}
	return records, nil
}

// WriteRecords encodes records as CSV with a header row.
func WriteRecords(w io.Writer, records []*BookingRecord) error {
	return errors.Wrap(gocsv.Marshal(&records, w), "encode booking records")
}

// ReadRecordsFile reads processed records from path on fs.
func ReadRecordsFile(fs afero.Fs, path string) ([]*BookingRecord, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	return ReadRecords(file)
}

// WriteRecordsFile writes records to path on fs, creating parent directories.
func WriteRecordsFile(fs afero.Fs, path string, records []*BookingRecord) (err error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	file, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return WriteRecords(file, records)
}

// ToMatrix builds the feature matrix (n×10) and the label column (n×1).
func ToMatrix(records []*BookingRecord) (*mat.Dense, *mat.Dense, error) {
	if len(records) == 0 {
		return nil, nil, errors.Wrap(errors.ErrEmptyData, "ToMatrix")
	}
	X := mat.NewDense(len(records), len(FeatureNames), nil)
	y := mat.NewDense(len(records), 1, nil)
	for i, r := range records {
		X.SetRow(i, r.Features())
		y.Set(i, 0, float64(r.BookingStatus))
	}
	return X, y, nil
}
