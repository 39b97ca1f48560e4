package pipeline

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/gumutzkn/MLOPS-PROJECT-1/config"
	"github.com/gumutzkn/MLOPS-PROJECT-1/dataset"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/preprocessing"
)

// ProcessingConfig configures DataProcessor.
type ProcessingConfig struct {
	TrainPath      string
	TestPath       string
	ProcessedTrain string
	ProcessedTest  string
}

// ProcessingConfigFrom extracts the processing paths from cfg.
func ProcessingConfigFrom(cfg *config.Config) ProcessingConfig {
	return ProcessingConfig{
		TrainPath:      cfg.Paths.TrainFile,
		TestPath:       cfg.Paths.TestFile,
		ProcessedTrain: cfg.Paths.ProcessedTrain,
		ProcessedTest:  cfg.Paths.ProcessedTest,
	}
}

// DataProcessor label-encodes the categorical columns of the split
// partitions and writes typed booking records.
type DataProcessor struct {
	cfg    ProcessingConfig
	fs     afero.Fs
	logger log.Logger

	// Encoders holds the fitted encoder of every categorical column after Run.
	Encoders map[string]*preprocessing.LabelEncoder
}

func NewDataProcessor(cfg ProcessingConfig, fs afero.Fs, logger log.Logger) *DataProcessor {
	if logger == nil {
		logger = log.GetLoggerWithName("processing")
	}
	return &DataProcessor{cfg: cfg, fs: fs, logger: logger}
}

// Run processes both partitions. Encoders are fitted on the union of the
// train and test values so both files share one encoding.
func (p *DataProcessor) Run() error {
	p.logger.Info("Starting data processing", log.StageKey, errors.StageProcessing)

	train, err := p.read(p.cfg.TrainPath)
	if err != nil {
		return err
	}
	test, err := p.read(p.cfg.TestPath)
	if err != nil {
		return err
	}

	encoders := make(map[string]*preprocessing.LabelEncoder, len(dataset.CategoricalColumns))
	for _, col := range dataset.CategoricalColumns {
		trainValues, _ := train.Column(col)
		testValues, _ := test.Column(col)
		enc := preprocessing.NewLabelEncoder()
		if err := enc.Fit(trainValues, testValues); err != nil {
			return errors.NewIngestionError("process", p.cfg.TrainPath, errors.Wrapf(err, "encode %s", col))
		}
		encoders[col] = enc
		p.logger.Debug("Column encoded", "column", col, "classes", enc.Classes)
	}
	p.Encoders = encoders

	for _, part := range []struct {
		frame    *dataset.Frame
		src, dst string
	}{
		{train, p.cfg.TrainPath, p.cfg.ProcessedTrain},
		{test, p.cfg.TestPath, p.cfg.ProcessedTest},
	} {
		records, err := toRecords(part.frame, encoders)
		if err != nil {
			return errors.NewIngestionError("process", part.src, err)
		}
		if err := dataset.WriteRecordsFile(p.fs, part.dst, records); err != nil {
			return errors.NewIngestionError("process", part.dst, err)
		}
		p.logger.Info("Processed partition written",
			log.PathKey, part.dst,
			log.SamplesKey, len(records),
		)
	}

	p.logger.Info("Data processing completed", log.StageKey, errors.StageProcessing)
	return nil
}

func (p *DataProcessor) read(path string) (*dataset.Frame, error) {
	f, err := dataset.ReadCSVFile(p.fs, path)
	if err != nil {
		return nil, errors.NewIngestionError("process", path, err)
	}
	for _, col := range requiredColumns() {
		if f.ColumnIndex(col) < 0 {
			return nil, errors.NewIngestionError("process", path, errors.Newf("missing column %q", col))
		}
	}
	if f.Len() == 0 {
		return nil, errors.NewIngestionError("process", path, errors.ErrEmptyData)
	}
	return f, nil
}

func requiredColumns() []string {
	cols := make([]string, 0, len(dataset.RawFeatureColumns)+1)
	cols = append(cols, dataset.RawFeatureColumns...)
	return append(cols, dataset.LabelColumn)
}

func toRecords(f *dataset.Frame, encoders map[string]*preprocessing.LabelEncoder) ([]*dataset.BookingRecord, error) {
	encoded := make(map[string][]int, len(encoders))
	for col, enc := range encoders {
		values, err := f.Column(col)
		if err != nil {
			return nil, err
		}
		codes, err := enc.Transform(values)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", col)
		}
		encoded[col] = codes
	}

	positions := make([]int, len(dataset.RawFeatureColumns))
	for j, col := range dataset.RawFeatureColumns {
		positions[j] = f.ColumnIndex(col)
	}

	records := make([]*dataset.BookingRecord, f.Len())
	vals := make([]float64, len(dataset.RawFeatureColumns))
	for i, row := range f.Rows {
		for j, col := range dataset.RawFeatureColumns {
			if codes, ok := encoded[col]; ok {
				vals[j] = float64(codes[i])
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[positions[j]]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Newf("row %d: column %q: invalid number %q", f.Index[i], col, row[positions[j]])
			}
			vals[j] = v
		}
		rec, err := newRecord(vals, encoded[dataset.LabelColumn][i])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", f.Index[i])
		}
		records[i] = rec
	}
	return records, nil
}

// newRecord builds a record from values in RawFeatureColumns order.
func newRecord(vals []float64, label int) (*dataset.BookingRecord, error) {
	ints := make([]int, len(vals))
	for j, v := range vals {
		if j == priceColumn {
			continue
		}
		if v != math.Trunc(v) {
			return nil, errors.Newf("column %q: expected an integer, got %g", dataset.RawFeatureColumns[j], v)
		}
		ints[j] = int(v)
	}
	return &dataset.BookingRecord{
		LeadTime:          ints[0],
		SpecialRequests:   ints[1],
		AvgPricePerRoom:   vals[priceColumn],
		ArrivalMonth:      ints[3],
		ArrivalDate:       ints[4],
		MarketSegmentType: ints[5],
		WeekNights:        ints[6],
		WeekendNights:     ints[7],
		MealPlanType:      ints[8],
		RoomType:          ints[9],
		BookingStatus:     label,
	}, nil
}

// priceColumn is the only fractional feature.
const priceColumn = 2
