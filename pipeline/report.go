package pipeline

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/model_selection"
)

// WriteSearchChart renders the mean cross-validation score of every
// candidate as a PNG bar chart, with the per-fold scores as points.
func WriteSearchChart(w io.Writer, res model_selection.CVResults, scoring string) error {
	n := len(res.MeanTestScore)
	if n == 0 {
		return errors.Wrap(errors.ErrEmptyData, "WriteSearchChart")
	}

	p := plot.New()
	p.Title.Text = "Randomized search"
	p.X.Label.Text = "candidate"
	p.Y.Label.Text = fmt.Sprintf("mean CV %s", scoring)

	bars, err := plotter.NewBarChart(plotter.Values(res.MeanTestScore), vg.Points(18))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	var folds plotter.XYs
	for i, scores := range res.SplitScores {
		for _, s := range scores {
			folds = append(folds, plotter.XY{X: float64(i), Y: s})
		}
	}
	if len(folds) > 0 {
		points, err := plotter.NewScatter(folds)
		if err != nil {
			return errors.Wrap(err, "build fold scatter")
		}
		p.Add(points)
	}

	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("#%d (rank %d)", i, res.RankTestScore[i])
	}
	p.NominalX(names...)

	img := vgimg.New(6*vg.Inch, 4*vg.Inch)
	p.Draw(draw.New(img))
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return errors.Wrap(err, "encode png")
	}
	return nil
}
