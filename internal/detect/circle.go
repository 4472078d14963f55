// Package detect locates the gauge face and the needle in a grayscale
// image. Both detectors are deterministic: candidates are ranked by a total
// order so repeated runs over the same image always pick the same geometry.
package detect

import (
	"context"
	"errors"
	"image"
	"math"
	"sort"

	"github.com/banshee-data/pressure.report/internal/geometry"
	"github.com/banshee-data/pressure.report/internal/raster"
)

// ErrNotFound is returned when no circle or needle satisfies the detection
// constraints. It is a per-image condition, not a fault.
var ErrNotFound = errors.New("detect: no candidate found")

// ctxCheckInterval controls how often the inner voting loops poll the
// context for cancellation.
const ctxCheckInterval = 4096

// CircleParams bounds the gauge-face search.
type CircleParams struct {
	MinRadius            int
	MaxRadius            int
	EdgeThreshold        float64 // Sobel magnitude gate for edge pixels
	AccumulatorThreshold int     // minimum center votes for a candidate
	MinCenterDistance    int     // suppression distance between candidate centers
	MaxCandidates        int     // candidate centers to evaluate for radius support
	BlurRadius           int     // Gaussian kernel radius applied before gradients
	MinRimCoverage       float64 // fraction of angular sectors that must hold rim edges
}

// DefaultCircleParams returns the detection defaults tuned for the deployed
// camera geometry.
func DefaultCircleParams() CircleParams {
	return CircleParams{
		MinRadius:            100,
		MaxRadius:            1000,
		EdgeThreshold:        60,
		AccumulatorThreshold: 30,
		MinCenterDistance:    100,
		MaxCandidates:        8,
		BlurRadius:           4, // 9x9 kernel
		MinRimCoverage:       0.6,
	}
}

type centerCandidate struct {
	x, y  int
	votes int32
}

// LocateCircle finds the gauge face as the best-supported circle with radius
// in [MinRadius, MaxRadius] whose full extent lies inside the frame.
//
// The search follows the gradient Hough method: edge pixels vote for centers
// along their gradient normal at every radius in range, candidate centers
// are ranked by votes, and each candidate's radius is recovered from the
// histogram of edge distances. A candidate must be supported around most of
// its circumference (MinRimCoverage), not just by a strong distance band.
// Ties are broken by rim support descending, then radius descending, then
// center (y, x) ascending.
func LocateCircle(ctx context.Context, gray *image.Gray, p CircleParams) (geometry.Circle, error) {
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = 8
	}
	if p.MinRimCoverage <= 0 {
		p.MinRimCoverage = 0.6
	}
	blurred := raster.GaussianBlur(gray, p.BlurRadius)
	grad := raster.Sobel(blurred)
	edges := raster.EdgePoints(grad, p.EdgeThreshold)
	if len(edges) == 0 {
		return geometry.Circle{}, ErrNotFound
	}

	w, h := grad.Width, grad.Height
	acc := make([]int32, w*h)

	// Each edge pixel votes along its gradient normal in both directions:
	// the rim of a dark bezel on a bright face produces inward-pointing
	// normals on one side and outward on the other.
	for i, e := range edges {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return geometry.Circle{}, err
			}
		}
		for _, sign := range [2]float64{1, -1} {
			for r := p.MinRadius; r <= p.MaxRadius; r++ {
				cx := e.X + int(math.Round(sign*e.NX*float64(r)))
				cy := e.Y + int(math.Round(sign*e.NY*float64(r)))
				if cx < 0 || cy < 0 || cx >= w || cy >= h {
					break
				}
				acc[cy*w+cx]++
			}
		}
	}

	candidates := topCenters(acc, w, h, p)
	if len(candidates) == 0 {
		return geometry.Circle{}, ErrNotFound
	}

	type scored struct {
		circle  geometry.Circle
		support int
	}
	var best []scored
	for _, c := range candidates {
		radius, support := bestRadius(edges, c.x, c.y, p.MinRadius, p.MaxRadius)
		if support < p.AccumulatorThreshold {
			continue
		}
		// Raw rim support is not enough: a needle or a rim seen from the
		// wrong center can pile edge pixels into a narrow distance band. A
		// genuine bezel surrounds its center, so its support must spread
		// around most of the turn.
		if rimCoverage(edges, c.x, c.y, radius) < p.MinRimCoverage {
			continue
		}
		best = append(best, scored{
			circle:  geometry.Circle{X: c.x, Y: c.y, Radius: radius},
			support: support,
		})
	}

	sort.Slice(best, func(i, j int) bool {
		if best[i].support != best[j].support {
			return best[i].support > best[j].support
		}
		if best[i].circle.Radius != best[j].circle.Radius {
			return best[i].circle.Radius > best[j].circle.Radius
		}
		if best[i].circle.Y != best[j].circle.Y {
			return best[i].circle.Y < best[j].circle.Y
		}
		return best[i].circle.X < best[j].circle.X
	})

	for _, s := range best {
		if s.circle.InsideFrame(w, h) {
			return s.circle, nil
		}
	}
	return geometry.Circle{}, ErrNotFound
}

// topCenters extracts candidate centers from the accumulator, strongest
// first, suppressing centers closer than MinCenterDistance to an already
// accepted one.
func topCenters(acc []int32, w, h int, p CircleParams) []centerCandidate {
	var cells []centerCandidate
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if v := acc[y*w+x]; v >= int32(p.AccumulatorThreshold) {
				cells = append(cells, centerCandidate{x: x, y: y, votes: v})
			}
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].votes != cells[j].votes {
			return cells[i].votes > cells[j].votes
		}
		if cells[i].y != cells[j].y {
			return cells[i].y < cells[j].y
		}
		return cells[i].x < cells[j].x
	})

	minDistSq := p.MinCenterDistance * p.MinCenterDistance
	var picked []centerCandidate
	for _, c := range cells {
		tooClose := false
		for _, q := range picked {
			dx, dy := c.x-q.x, c.y-q.y
			if dx*dx+dy*dy < minDistSq {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		picked = append(picked, c)
		if len(picked) >= p.MaxCandidates {
			break
		}
	}
	return picked
}

// bestRadius builds a histogram of edge-point distances from (cx, cy) and
// returns the radius with the most rim support. Adjacent bins are pooled to
// tolerate one pixel of rim jitter. Ties prefer the larger radius.
func bestRadius(edges []raster.EdgePoint, cx, cy, minR, maxR int) (radius, support int) {
	hist := make([]int, maxR+2)
	for _, e := range edges {
		d := int(math.Round(math.Hypot(float64(e.X-cx), float64(e.Y-cy))))
		if d >= minR && d <= maxR {
			hist[d]++
		}
	}
	for r := minR; r <= maxR; r++ {
		s := hist[r]
		if r > 0 {
			s += hist[r-1]
		}
		s += hist[r+1]
		if s > support || (s == support && r > radius) {
			support = s
			radius = r
		}
	}
	return radius, support
}

// rimCoverage reports the fraction of angular sectors around (cx, cy) that
// contain an edge pixel within the pooled rim band at the given radius.
func rimCoverage(edges []raster.EdgePoint, cx, cy, radius int) float64 {
	const sectors = 36
	var seen [sectors]bool
	for _, e := range edges {
		dx := float64(e.X - cx)
		dy := float64(e.Y - cy)
		if math.Abs(math.Hypot(dx, dy)-float64(radius)) > 1.5 {
			continue
		}
		s := int((math.Atan2(dy, dx) + math.Pi) / (2 * math.Pi) * sectors)
		if s >= sectors {
			s = sectors - 1
		}
		seen[s] = true
	}
	covered := 0
	for _, ok := range seen {
		if ok {
			covered++
		}
	}
	return float64(covered) / sectors
}
