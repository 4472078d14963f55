package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pressure.report/internal/series"
)

// RenderChartHTML writes a self-contained ECharts line chart of the series.
func RenderChartHTML(w io.Writer, points []series.Point, summary series.Summary, q series.Query) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Gauge Readings",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Gauge readings",
			Subtitle: fmt.Sprintf("n=%d mean=%.1f stddev=%.1f min=%.1f max=%.1f",
				summary.Count, summary.Mean, summary.StdDev, summary.Min, summary.Max),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: q.Unit.Label()}),
	)

	x := make([]string, len(points))
	data := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = p.Timestamp.Format("01-02 15:04")
		data[i] = opts.LineData{Value: p.Value}
	}

	line.SetXAxis(x).AddSeries(string(q.Unit), data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return line.Render(w)
}
