package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// WriteProfilePlot renders the three PAVD estimates of one position against
// height as a PNG next to the CSV artifacts. Plotting goes straight to the
// OS filesystem (the plot backend writes files itself).
func (w *Writer) WriteProfilePlot(r *canopy.ProfileResult) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s", r.Position, r.ScanName)
	p.X.Label.Text = "PAVD (m²/m³)"
	p.Y.Label.Text = "height (m)"

	series := []struct {
		name  string
		pavd  []float64
		color color.RGBA
	}{
		{"hinge", r.HingePAVD, color.RGBA{R: 214, G: 69, B: 65, A: 255}},
		{"linear", r.LinearPAVD, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"weighted", r.WeightedPAVD, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
	}
	for _, s := range series {
		xys := make(plotter.XYs, len(s.pavd))
		for i := range s.pavd {
			xys[i].X = s.pavd[i]
			xys[i].Y = r.HeightBin[i]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return "", fmt.Errorf("plotting %s profile: %w", s.name, err)
		}
		line.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s_pavd.png", r.Position, r.ScanName))
	if err := p.Save(5*vg.Inch, 7*vg.Inch, path); err != nil {
		return "", fmt.Errorf("saving plot: %w", err)
	}
	return path, nil
}
