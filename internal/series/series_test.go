package series

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/pressure.report/internal/db"
)

func reading(ts time.Time, angle, psi, bar float64) db.GaugeReading {
	return db.GaugeReading{
		ImageName:   ts.Format("060102_1504") + ".jpg",
		Angle:       angle,
		Timestamp:   ts,
		PressurePSI: psi,
		PressureBar: bar,
	}
}

func TestParseUnit(t *testing.T) {
	for _, s := range []string{"angle", "psi", "bar"} {
		if _, err := ParseUnit(s); err != nil {
			t.Errorf("ParseUnit(%q): %v", s, err)
		}
	}
	if _, err := ParseUnit("kPa"); err == nil {
		t.Error("ParseUnit accepted kPa")
	}
}

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"minute", "hour", "day"} {
		if _, err := ParsePeriod(s); err != nil {
			t.Errorf("ParsePeriod(%q): %v", s, err)
		}
	}
	if _, err := ParsePeriod("week"); err == nil {
		t.Error("ParsePeriod accepted week")
	}
}

func TestQuerySince(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	q := Query{WindowDays: 7, Now: now}
	want := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	if got := q.Since(); !got.Equal(want) {
		t.Errorf("Since() = %v, want %v", got, want)
	}

	all := Query{AllTime: true, Now: now}
	if got := all.Since(); !got.IsZero() {
		t.Errorf("all-time Since() = %v, want zero", got)
	}
}

func TestAggregateRaw(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	readings := []db.GaugeReading{
		reading(base, 100, 15.3, 1.06),
		reading(base.Add(10*time.Minute), 110, 17.5, 1.21),
	}

	points := Aggregate(readings, Query{Unit: UnitPSI})
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(points))
	}
	if points[0].Value != 15.3 || points[1].Value != 17.5 {
		t.Errorf("psi values = %v, %v", points[0].Value, points[1].Value)
	}
	if points[0].Count != 1 || points[0].StdDev != 0 {
		t.Errorf("raw point = %+v, want count 1 stddev 0", points[0])
	}

	angles := Aggregate(readings, Query{Unit: UnitAngle})
	if angles[0].Value != 100 {
		t.Errorf("angle value = %v, want 100", angles[0].Value)
	}
	bars := Aggregate(readings, Query{Unit: UnitBar})
	if bars[1].Value != 1.21 {
		t.Errorf("bar value = %v, want 1.21", bars[1].Value)
	}
}

func TestAggregateHourlyBuckets(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	readings := []db.GaugeReading{
		reading(day.Add(9*time.Hour+10*time.Minute), 90, 0, 0),
		reading(day.Add(9*time.Hour+40*time.Minute), 94, 0, 0),
		reading(day.Add(10*time.Hour+30*time.Minute), 92, 0, 0),
	}

	points := Aggregate(readings, Query{
		Average: true,
		Period:  PeriodHour,
		Value:   1,
		Unit:    UnitAngle,
	})
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(points))
	}

	first := points[0]
	if !first.Timestamp.Equal(day.Add(9 * time.Hour)) {
		t.Errorf("bucket start = %v, want 09:00", first.Timestamp)
	}
	if first.Value != 92 || first.Count != 2 {
		t.Errorf("bucket = %+v, want mean 92 of 2", first)
	}
	// Sample deviation of {90, 94}.
	if math.Abs(first.StdDev-math.Sqrt(8)) > 1e-9 {
		t.Errorf("stddev = %v, want sqrt(8)", first.StdDev)
	}

	second := points[1]
	if second.Count != 1 || second.StdDev != 0 {
		t.Errorf("single-reading bucket = %+v, want stddev 0", second)
	}
}

func TestAggregateMultiPeriodBucket(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	readings := []db.GaugeReading{
		reading(day.Add(8*time.Hour+10*time.Minute), 90, 0, 0),
		reading(day.Add(8*time.Hour+40*time.Minute), 94, 0, 0),
		reading(day.Add(9*time.Hour+30*time.Minute), 92, 0, 0),
	}

	points := Aggregate(readings, Query{
		Average: true,
		Period:  PeriodHour,
		Value:   2,
		Unit:    UnitAngle,
	})
	if len(points) != 1 {
		t.Fatalf("len(points) = %d, want one 2-hour bucket", len(points))
	}
	p := points[0]
	if !p.Timestamp.Equal(day.Add(8 * time.Hour)) {
		t.Errorf("bucket start = %v, want 08:00", p.Timestamp)
	}
	if p.Value != 92 || p.Count != 3 {
		t.Errorf("bucket = %+v, want mean 92 of 3", p)
	}
	if math.Abs(p.StdDev-2) > 1e-9 {
		t.Errorf("stddev = %v, want 2", p.StdDev)
	}
}

func TestAggregateOmitsEmptyBuckets(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	readings := []db.GaugeReading{
		reading(day.Add(1*time.Hour), 90, 0, 0),
		reading(day.Add(6*time.Hour), 94, 0, 0),
	}

	points := Aggregate(readings, Query{
		Average: true,
		Period:  PeriodHour,
		Value:   1,
		Unit:    UnitAngle,
	})
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2 (gap hours omitted)", len(points))
	}
	if !points[0].Timestamp.Before(points[1].Timestamp) {
		t.Error("points out of time order")
	}
}

func TestAggregateEmpty(t *testing.T) {
	if points := Aggregate(nil, Query{Average: true, Period: PeriodHour, Value: 1}); points != nil {
		t.Errorf("Aggregate(nil) = %v, want nil", points)
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	readings := []db.GaugeReading{
		reading(base, 90, 0, 0),
		reading(base.Add(time.Hour), 94, 0, 0),
		reading(base.Add(2*time.Hour), 92, 0, 0),
	}

	s := Summarize(readings, UnitAngle)
	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if s.Mean != 92 {
		t.Errorf("Mean = %v, want 92", s.Mean)
	}
	if math.Abs(s.StdDev-2) > 1e-9 {
		t.Errorf("StdDev = %v, want 2", s.StdDev)
	}
	if s.Min != 90 || s.Max != 94 {
		t.Errorf("Min/Max = %v/%v, want 90/94", s.Min, s.Max)
	}
	if !s.First.Equal(base) || !s.Last.Equal(base.Add(2*time.Hour)) {
		t.Errorf("First/Last = %v/%v", s.First, s.Last)
	}

	empty := Summarize(nil, UnitAngle)
	if empty.Count != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}
