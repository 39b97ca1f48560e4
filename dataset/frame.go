// Package dataset は予約データの表形式表現、決定的な学習/テスト分割、
// および型付きレコード（BookingRecord）を提供します。
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// Frame は文字列セルの表です。Index は元データでの行番号を保持します。
type Frame struct {
	Header []string
	Index  []int
	Rows   [][]string
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// ColumnIndex returns the position of name in Header, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, h := range f.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns all values of the named column.
func (f *Frame) Column(name string) ([]string, error) {
	j := f.ColumnIndex(name)
	if j < 0 {
		return nil, errors.NewValueError("Frame.Column", "missing column "+strconv.Quote(name))
	}
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[j]
	}
	return out, nil
}

// Take returns a new frame with the rows at positions, keeping their index.
func (f *Frame) Take(positions []int) *Frame {
	out := &Frame{
		Header: append([]string(nil), f.Header...),
		Index:  make([]int, len(positions)),
		Rows:   make([][]string, len(positions)),
	}
	for i, p := range positions {
		out.Index[i] = f.Index[p]
		out.Rows[i] = f.Rows[p]
	}
	return out
}

// ReadCSV parses a CSV table. A leading empty header cell marks a
// pandas-style index column, which is parsed into Index.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "read csv: missing header")
	}

	header := records[0]
	hasIndex := len(header) > 0 && header[0] == ""
	f := &Frame{}
	if hasIndex {
		f.Header = append([]string(nil), header[1:]...)
	} else {
		f.Header = append([]string(nil), header...)
	}

	for i, rec := range records[1:] {
		if hasIndex {
			idx, err := strconv.Atoi(rec[0])
			if err != nil {
				return nil, errors.Wrapf(err, "read csv: row %d: invalid index", i+1)
			}
			f.Index = append(f.Index, idx)
			f.Rows = append(f.Rows, rec[1:])
			continue
		}
		f.Index = append(f.Index, i)
		f.Rows = append(f.Rows, rec)
	}
	return f, nil
}

// WriteCSV writes the frame with its index as the first, unnamed column.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{""}, f.Header...)); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for i, row := range f.Rows {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, strconv.Itoa(f.Index[i]))
		rec = append(rec, row...)
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "write csv row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// ReadCSVFile reads a frame from path on fs.
func ReadCSVFile(fs afero.Fs, path string) (*Frame, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	return ReadCSV(file)
}

// WriteCSVFile writes f to path on fs, creating parent directories.
func WriteCSVFile(fs afero.Fs, path string, f *Frame) (err error) {
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
	return WriteCSV(file, f)
}
