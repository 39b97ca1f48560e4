// Package preprocessing はカテゴリ列を数値に変換する前処理器を提供します。
package preprocessing

import (
	"sort"
	"strconv"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// LabelEncoder はscikit-learn互換のラベルエンコーダー
// 学習時に観測した値をソートし、0..k-1 の整数に対応付ける
type LabelEncoder struct {
	model.BaseEstimator

	// Classes はソート済みのユニークな値
	Classes []string

	index map[string]int
}

// NewLabelEncoder は新しいLabelEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewLabelEncoder()
//	err := enc.Fit(trainValues, testValues)
//	codes, err := enc.Transform(trainValues)
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{}
}

// Fit は与えられた全ての値の集合からクラス一覧を学習する。
// 複数のスライスを渡すと、その和集合で1つの符号化を共有できる。
func (e *LabelEncoder) Fit(values ...[]string) error {
	seen := make(map[string]struct{})
	for _, vs := range values {
		for _, v := range vs {
			seen[v] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LabelEncoder.Fit")
	}

	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sortClasses(classes)

	e.Classes = classes
	e.index = make(map[string]int, len(classes))
	for i, c := range classes {
		e.index[c] = i
	}
	e.SetFitted()
	return nil
}

// Transform は値を整数コードに変換する。未知の値はエラー。
func (e *LabelEncoder) Transform(values []string) ([]int, error) {
	if err := e.CheckFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}
	out := make([]int, len(values))
	for i, v := range values {
		code, ok := e.index[v]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform", "y contains previously unseen label "+strconv.Quote(v))
		}
		out[i] = code
	}
	return out, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (e *LabelEncoder) FitTransform(values []string) ([]int, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// InverseTransform は整数コードを元の値に戻す
func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	if err := e.CheckFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.Classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", "code out of range: "+strconv.Itoa(c))
		}
		out[i] = e.Classes[c]
	}
	return out, nil
}

// sortClasses は全て数値なら数値順、そうでなければ文字列順に並べる。
// pandas の数値列は数値として、文字列列は辞書順で符号化されるのと同じ結果になる。
func sortClasses(classes []string) {
	nums := make([]float64, len(classes))
	numeric := true
	for i, c := range classes {
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = f
	}
	if !numeric {
		sort.Strings(classes)
		return
	}
	sort.Sort(byNumber{classes, nums})
}

type byNumber struct {
	s []string
	f []float64
}

func (b byNumber) Len() int           { return len(b.s) }
func (b byNumber) Less(i, j int) bool { return b.f[i] < b.f[j] }
func (b byNumber) Swap(i, j int) {
	b.s[i], b.s[j] = b.s[j], b.s[i]
	b.f[i], b.f[j] = b.f[j], b.f[i]
}
