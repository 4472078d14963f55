// Package report renders stored readings as plots, charts and the small
// web dashboard served by the serve subcommand.
package report

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pressure.report/internal/series"
)

// SavePNG renders the series as a line plot with a time axis and writes it
// to path.
func SavePNG(points []series.Point, summary series.Summary, q series.Query, path string) error {
	if len(points) == 0 {
		return fmt.Errorf("no readings to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Gauge readings (n=%d, mean %.1f, stddev %.1f)",
		summary.Count, summary.Mean, summary.StdDev)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = q.Unit.Label()
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}

	pts := make(plotter.XYs, len(points))
	for i, pt := range points {
		pts[i] = plotter.XY{X: float64(pt.Timestamp.Unix()), Y: pt.Value}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.Radius = vg.Points(1.5)
	p.Add(scatter)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
