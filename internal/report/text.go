package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/banshee-data/pressure.report/internal/db"
	"github.com/banshee-data/pressure.report/internal/series"
)

// Options selects report outputs. Out always receives the text table; the
// file outputs are produced when their paths are set.
type Options struct {
	Out      io.Writer
	PNGPath  string
	HTMLPath string
}

// Write queries the store, prints the series as a table with summary
// statistics, and optionally renders PNG and HTML outputs.
func Write(ctx context.Context, store *db.DB, q series.Query, opts Options) error {
	readings, err := store.Readings(ctx, q.Since())
	if err != nil {
		return fmt.Errorf("failed to query readings: %w", err)
	}

	points := series.Aggregate(readings, q)
	summary := series.Summarize(readings, q.Unit)

	if opts.Out != nil {
		writeTable(opts.Out, points, summary, q)
	}

	if opts.PNGPath != "" {
		if err := SavePNG(points, summary, q, opts.PNGPath); err != nil {
			return err
		}
	}
	if opts.HTMLPath != "" {
		f, err := os.Create(opts.HTMLPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.HTMLPath, err)
		}
		defer f.Close()
		if err := RenderChartHTML(f, points, summary, q); err != nil {
			return fmt.Errorf("failed to render chart: %w", err)
		}
	}
	return nil
}

func writeTable(out io.Writer, points []series.Point, summary series.Summary, q series.Query) {
	if len(points) == 0 {
		fmt.Fprintln(out, "No readings in the selected window.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if q.Average {
		fmt.Fprintf(w, "bucket\t%s\tstddev\tcount\n", q.Unit)
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%d\n",
				p.Timestamp.Format("2006-01-02 15:04"), p.Value, p.StdDev, p.Count)
		}
	} else {
		fmt.Fprintf(w, "time\t%s\n", q.Unit)
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%.2f\n", p.Timestamp.Format("2006-01-02 15:04"), p.Value)
		}
	}
	w.Flush()

	fmt.Fprintf(out, "\nreadings: %d  mean: %.2f  stddev: %.2f  min: %.2f  max: %.2f\n",
		summary.Count, summary.Mean, summary.StdDev, summary.Min, summary.Max)
	if summary.Count > 0 {
		fmt.Fprintf(out, "from %s to %s\n",
			summary.First.Format("2006-01-02 15:04"), summary.Last.Format("2006-01-02 15:04"))
	}
}
