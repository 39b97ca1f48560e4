package metrics

import (
	"math"
	"sort"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// logLossEpsilon は log(0) を避けるためのクリッピング幅
const logLossEpsilon = 1e-15

// validatePair は2つのベクトルの長さを検証し、要素数を返す
func validatePair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinaryLabels はラベルが 0/1 のみであることを確認する
func checkBinaryLabels(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		v := y.AtVec(i)
		if v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be binary (0 or 1)")
		}
	}
	return nil
}

// firstColumn は行列の先頭列を VecDense として取り出す
func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	if v, ok := m.(*mat.VecDense); ok {
		return v, nil
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validatePair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// confusion は陽性ラベルに対する TP/FP/FN を数える
func confusion(yTrue, yPred *mat.VecDense, n int, posLabel float64) (tp, fp, fn int) {
	for i := 0; i < n; i++ {
		t := yTrue.AtVec(i) == posLabel
		p := yPred.AtVec(i) == posLabel
		switch {
		case t && p:
			tp++
		case !t && p:
			fp++
		case t && !p:
			fn++
		}
	}
	return tp, fp, fn
}

// ratio はゼロ除算時に 0 を返し、UndefinedMetricWarning を発行する
func ratio(metric, condition string, num, den int) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(metric, condition, 0))
		return 0
	}
	return float64(num) / float64(den)
}

// Precision は陽性ラベル posLabel に対する適合率 TP/(TP+FP) を計算する。
// 陽性予測が一つもない場合は 0 を返す。
func Precision(yTrue, yPred *mat.VecDense, posLabel float64) (float64, error) {
	n, err := validatePair("Precision", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, fp, _ := confusion(yTrue, yPred, n, posLabel)
	return ratio("precision", "no predicted samples", tp, tp+fp), nil
}

// Recall は陽性ラベル posLabel に対する再現率 TP/(TP+FN) を計算する
func Recall(yTrue, yPred *mat.VecDense, posLabel float64) (float64, error) {
	n, err := validatePair("Recall", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, _, fn := confusion(yTrue, yPred, n, posLabel)
	return ratio("recall", "no true samples", tp, tp+fn), nil
}

// F1Score は適合率と再現率の調和平均 2TP/(2TP+FP+FN) を計算する
func F1Score(yTrue, yPred *mat.VecDense, posLabel float64) (float64, error) {
	n, err := validatePair("F1Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, fp, fn := confusion(yTrue, yPred, n, posLabel)
	return ratio("f1", "no true nor predicted samples", 2*tp, 2*tp+fp+fn), nil
}

// AUC はROC曲線下面積を順位統計（Mann-Whitney U）で計算する。
// 同順位には平均順位を割り当てる。全ラベルが同一クラスの場合は 0.5 を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := validatePair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var nPos, nNeg int
	var rankSum float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5, nil
	}

	u := rankSum - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// BinaryLogLoss は二値交差エントロピーを計算する。
// 予測確率は [eps, 1-eps] にクリップされる。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := validatePair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), logLossEpsilon, 1-logLossEpsilon)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// ClassificationReport は評価ステージの出力です。
type ClassificationReport struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
}

// AsMap は実験記録用にメトリクス名をキーとするマップを返す
func (r ClassificationReport) AsMap() map[string]float64 {
	return map[string]float64{
		"accuracy":  r.Accuracy,
		"precision": r.Precision,
		"recall":    r.Recall,
		"f1":        r.F1,
	}
}

// Report はラベル列同士から ClassificationReport を組み立てる
func Report(yTrue, yPred *mat.VecDense, posLabel float64) (ClassificationReport, error) {
	var r ClassificationReport
	var err error
	if r.Accuracy, err = Accuracy(yTrue, yPred); err != nil {
		return ClassificationReport{}, err
	}
	if r.Precision, err = Precision(yTrue, yPred, posLabel); err != nil {
		return ClassificationReport{}, err
	}
	if r.Recall, err = Recall(yTrue, yPred, posLabel); err != nil {
		return ClassificationReport{}, err
	}
	if r.F1, err = F1Score(yTrue, yPred, posLabel); err != nil {
		return ClassificationReport{}, err
	}
	return r, nil
}

// Evaluate は学習済みモデルでテスト特徴量を予測し、4指標を計算する。
// 予測や指標計算の失敗は EvaluationError として返される。
func Evaluate(m model.Predictor, X mat.Matrix, y *mat.VecDense, posLabel float64) (ClassificationReport, error) {
	if m == nil {
		return ClassificationReport{}, errors.NewEvaluationError("predict", errors.New("nil model"))
	}
	pred, err := m.Predict(X)
	if err != nil {
		return ClassificationReport{}, errors.NewEvaluationError("predict", err)
	}
	yPred, err := firstColumn("Evaluate", pred)
	if err != nil {
		return ClassificationReport{}, errors.NewEvaluationError("predict", err)
	}
	r, err := Report(y, yPred, posLabel)
	if err != nil {
		return ClassificationReport{}, errors.NewEvaluationError("score", err)
	}
	return r, nil
}
