// Package series turns stored gauge readings into time series: raw points
// or fixed-width bucket averages over a query window.
package series

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pressure.report/internal/db"
)

// Unit selects which value of a reading the series reports.
type Unit string

const (
	UnitAngle Unit = "angle"
	UnitPSI   Unit = "psi"
	UnitBar   Unit = "bar"
)

// ParseUnit validates a unit name from the CLI or API.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitAngle, UnitPSI, UnitBar:
		return Unit(s), nil
	}
	return "", fmt.Errorf("unknown unit %q (want angle, psi or bar)", s)
}

// Label returns the axis label for the unit.
func (u Unit) Label() string {
	switch u {
	case UnitAngle:
		return "Needle angle (degrees)"
	case UnitPSI:
		return "Pressure (PSI)"
	case UnitBar:
		return "Pressure (bar)"
	}
	return string(u)
}

// Period is the base granularity for averaging buckets.
type Period string

const (
	PeriodMinute Period = "minute"
	PeriodHour   Period = "hour"
	PeriodDay    Period = "day"
)

// ParsePeriod validates a period name from the CLI or API.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodMinute, PeriodHour, PeriodDay:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown period %q (want minute, hour or day)", s)
}

// Duration returns the period's base width.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodMinute:
		return time.Minute
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	}
	return 0
}

// Query describes one series request.
type Query struct {
	WindowDays int  // lookback window; ignored when AllTime is set
	AllTime    bool // no lower time bound
	Average    bool // bucket and average instead of raw points
	Period     Period
	Value      int // bucket width multiplier, e.g. 2 hours
	Unit       Unit
	Now        time.Time // window reference; zero means time.Now
}

// Since returns the window's lower bound, or the zero time for all-time
// queries.
func (q Query) Since() time.Time {
	if q.AllTime {
		return time.Time{}
	}
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	return now.UTC().Add(-time.Duration(q.WindowDays) * 24 * time.Hour)
}

// BucketWidth returns the averaging bucket width.
func (q Query) BucketWidth() time.Duration {
	value := q.Value
	if value < 1 {
		value = 1
	}
	return time.Duration(value) * q.Period.Duration()
}

// Point is one element of a reported series. For raw series Count is 1 and
// StdDev is 0; for averaged series Timestamp is the bucket start.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	StdDev    float64   `json:"std_dev"`
	Count     int       `json:"count"`
}

func valueOf(r db.GaugeReading, u Unit) float64 {
	switch u {
	case UnitPSI:
		return r.PressurePSI
	case UnitBar:
		return r.PressureBar
	default:
		return r.Angle
	}
}

// Aggregate converts readings (assumed sorted by timestamp, as the store
// returns them) into a series. With Average set, readings are grouped into
// UTC-aligned buckets of BucketWidth; empty buckets are omitted. The
// standard deviation is the sample deviation, 0 for single-reading buckets.
func Aggregate(readings []db.GaugeReading, q Query) []Point {
	if len(readings) == 0 {
		return nil
	}

	if !q.Average {
		points := make([]Point, len(readings))
		for i, r := range readings {
			points[i] = Point{
				Timestamp: r.Timestamp.UTC(),
				Value:     valueOf(r, q.Unit),
				Count:     1,
			}
		}
		return points
	}

	width := q.BucketWidth()
	var points []Point
	var bucketStart time.Time
	var values []float64

	flush := func() {
		if len(values) == 0 {
			return
		}
		p := Point{
			Timestamp: bucketStart,
			Value:     stat.Mean(values, nil),
			Count:     len(values),
		}
		if len(values) > 1 {
			p.StdDev = stat.StdDev(values, nil)
		}
		points = append(points, p)
		values = values[:0]
	}

	for _, r := range readings {
		start := r.Timestamp.UTC().Truncate(width)
		if len(values) > 0 && !start.Equal(bucketStart) {
			flush()
		}
		bucketStart = start
		values = append(values, valueOf(r, q.Unit))
	}
	flush()

	return points
}

// Summary is the descriptive statistics block printed under a report.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	First  time.Time
	Last   time.Time
}

// Summarize computes descriptive statistics over the readings in the given
// unit.
func Summarize(readings []db.GaugeReading, unit Unit) Summary {
	if len(readings) == 0 {
		return Summary{}
	}

	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = valueOf(r, unit)
	}

	s := Summary{
		Count: len(values),
		Mean:  stat.Mean(values, nil),
		Min:   values[0],
		Max:   values[0],
		First: readings[0].Timestamp.UTC(),
		Last:  readings[len(readings)-1].Timestamp.UTC(),
	}
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	for _, v := range values {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	return s
}
