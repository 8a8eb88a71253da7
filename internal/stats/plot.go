package stats

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"songevo/internal/model"
)

var ErrEmptySeries = errors.New("fitness series is empty")

// WriteFitnessPlot draws best and mean fitness per generation. The image
// format follows the file extension of path.
func WriteFitnessPlot(path, title string, diagnostics []model.GenerationDiagnostics) error {
	if len(diagnostics) == 0 {
		return ErrEmptySeries
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"

	bestPts := make(plotter.XYs, len(diagnostics))
	meanPts := make(plotter.XYs, len(diagnostics))
	for i, d := range diagnostics {
		bestPts[i].X = float64(d.Generation)
		bestPts[i].Y = d.BestFitness
		meanPts[i].X = float64(d.Generation)
		meanPts[i].Y = d.MeanFitness
	}

	bestLine, err := plotter.NewLine(bestPts)
	if err != nil {
		return fmt.Errorf("best fitness line: %w", err)
	}
	bestLine.Color = color.RGBA{R: 200, A: 255}

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return fmt.Errorf("mean fitness line: %w", err)
	}
	meanLine.Color = color.RGBA{B: 200, A: 255}
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(bestLine, meanLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("mean", meanLine)
	p.Legend.Top = true
	p.Legend.Left = true

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
