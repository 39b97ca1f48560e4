package model

import (
	"encoding/gob"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// SaveModel gob-encodes m into filename on fs. A failed Close is reported
// because the artifact would otherwise be truncated silently.
//
//	err := model.SaveModel(afero.NewOsFs(), clf, "artifacts/models/lgbm_model.gob")
func SaveModel(fs afero.Fs, m interface{}, filename string) (err error) {
	f, err := fs.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create %s", filename)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", filename)
		}
	}()
	return Encode(f, m)
}

// LoadModel decodes the artifact at filename into m.
func LoadModel(fs afero.Fs, m interface{}, filename string) error {
	f, err := fs.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "open %s", filename)
	}
	defer f.Close()
	return Decode(f, m)
}

// Encode writes m to w in gob format.
func Encode(w io.Writer, m interface{}) error {
	return errors.Wrap(gob.NewEncoder(w).Encode(m), "gob encode model")
}

// Decode は gob 形式のモデルを r から m に読み込む
func Decode(r io.Reader, m interface{}) error {
	return errors.Wrap(gob.NewDecoder(r).Decode(m), "gob decode model")
}
