package report

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/banshee-data/pressure.report/internal/config"
	"github.com/banshee-data/pressure.report/internal/db"
	"github.com/banshee-data/pressure.report/internal/httputil"
	"github.com/banshee-data/pressure.report/internal/series"
)

// Server exposes stored readings over HTTP: a JSON series API, an ECharts
// view, and the admin endpoints (live SQL console, backup).
type Server struct {
	store *db.DB
	cfg   *config.Config
	mux   *http.ServeMux
}

// NewServer wires the routes onto a fresh mux.
func NewServer(store *db.DB, cfg *config.Config) *Server {
	s := &Server{
		store: store,
		cfg:   cfg,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.handleDashboard)
	s.mux.HandleFunc("/api/series", s.handleSeries)
	s.mux.HandleFunc("/chart", s.handleChart)
	store.AttachAdminRoutes(s.mux)
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// queryFromRequest builds a series query from URL parameters, falling back
// to the configured report defaults.
func (s *Server) queryFromRequest(r *http.Request) (series.Query, error) {
	q := series.Query{
		WindowDays: s.cfg.GetDefaultWindowDays(),
		Period:     series.Period(s.cfg.GetDefaultAveragePeriod()),
		Value:      s.cfg.GetDefaultAverageValue(),
		Unit:       series.Unit(s.cfg.GetDefaultUnit()),
	}

	params := r.URL.Query()
	if v := params.Get("window"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			return q, fmt.Errorf("bad window %q", v)
		}
		q.WindowDays = days
	}
	if v := params.Get("all"); v == "1" || v == "true" {
		q.AllTime = true
	}
	if v := params.Get("average"); v == "1" || v == "true" {
		q.Average = true
	}
	if v := params.Get("period"); v != "" {
		period, err := series.ParsePeriod(v)
		if err != nil {
			return q, err
		}
		q.Period = period
		q.Average = true
	}
	if v := params.Get("value"); v != "" {
		value, err := strconv.Atoi(v)
		if err != nil || value < 1 {
			return q, fmt.Errorf("bad value %q", v)
		}
		q.Value = value
	}
	if v := params.Get("unit"); v != "" {
		unit, err := series.ParseUnit(v)
		if err != nil {
			return q, err
		}
		q.Unit = unit
	}
	return q, nil
}

// seriesResponse is the /api/series payload.
type seriesResponse struct {
	Unit    series.Unit    `json:"unit"`
	Points  []series.Point `json:"points"`
	Count   int            `json:"count"`
	Mean    float64        `json:"mean"`
	StdDev  float64        `json:"std_dev"`
	Min     float64        `json:"min"`
	Max     float64        `json:"max"`
	Average bool           `json:"average"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q, err := s.queryFromRequest(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	readings, err := s.store.Readings(r.Context(), q.Since())
	if err != nil {
		log.Printf("series query failed: %v", err)
		httputil.InternalServerError(w, "failed to query readings")
		return
	}

	summary := series.Summarize(readings, q.Unit)
	httputil.WriteJSONOK(w, seriesResponse{
		Unit:    q.Unit,
		Points:  series.Aggregate(readings, q),
		Count:   summary.Count,
		Mean:    summary.Mean,
		StdDev:  summary.StdDev,
		Min:     summary.Min,
		Max:     summary.Max,
		Average: q.Average,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q, err := s.queryFromRequest(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	readings, err := s.store.Readings(r.Context(), q.Since())
	if err != nil {
		log.Printf("chart query failed: %v", err)
		httputil.InternalServerError(w, "failed to query readings")
		return
	}

	points := series.Aggregate(readings, q)
	summary := series.Summarize(readings, q.Unit)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderChartHTML(w, points, summary, q); err != nil {
		log.Printf("failed to render chart: %v", err)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, dashboardHTML,
		s.cfg.GetDefaultWindowDays(), s.cfg.GetDefaultUnit())
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><title>Gauge Readings</title>
<style>
body { font-family: sans-serif; margin: 2em; background: #111; color: #ddd; }
a { color: #6cf; }
iframe { border: 1px solid #444; width: 100%%; height: 680px; margin-top: 1em; }
</style>
</head>
<body>
<h1>Gauge Readings</h1>
<p>Showing the last %d days in %s.
   <a href="/api/series">series JSON</a> |
   <a href="/chart">full chart</a> |
   <a href="/debug/">admin</a></p>
<iframe src="/chart"></iframe>
</body>
</html>
`
