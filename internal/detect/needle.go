package detect

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/banshee-data/pressure.report/internal/geometry"
	"github.com/banshee-data/pressure.report/internal/raster"
)

// NeedleParams bounds the needle search inside a located gauge face.
type NeedleParams struct {
	BinaryThreshold      uint8   // inverse-binary gate; the needle is dark on a bright dial
	EdgeThreshold        float64 // Sobel magnitude gate on the binarized image
	HoughThreshold       int     // minimum accumulator votes for a line
	MinLineLengthFactor  float64 // minimum segment length as a fraction of the radius
	MaxLineGap           int     // pixels of gap tolerated when joining collinear runs
	CenterDistanceFactor float64 // max distance from center to the needle line, as a fraction of the radius
}

// DefaultNeedleParams returns the line-detection defaults.
func DefaultNeedleParams() NeedleParams {
	return NeedleParams{
		BinaryThreshold:      140,
		EdgeThreshold:        300,
		HoughThreshold:       25,
		MinLineLengthFactor:  0.25,
		MaxLineGap:           20,
		CenterDistanceFactor: 0.125,
	}
}

// ExtractNeedle finds the needle as a line segment inside the circle.
//
// The masked region is binarized (dark pixels become foreground), edges are
// extracted, and a Hough line transform proposes segments. A segment
// qualifies as a needle candidate when the infinite line through it passes
// within radius*CenterDistanceFactor of the circle center (needles pivot at
// the center) and its length is at least radius*MinLineLengthFactor.
// Among qualifying segments the longest wins; ties break on smaller
// center distance, then endpoint coordinates.
func ExtractNeedle(ctx context.Context, gray *image.Gray, circle geometry.Circle, p NeedleParams) (geometry.Segment, error) {
	bounds := gray.Bounds()
	bin := raster.ThresholdInv(gray, p.BinaryThreshold, func(x, y int) bool {
		return circle.Contains(x-bounds.Min.X, y-bounds.Min.Y)
	})
	grad := raster.Sobel(bin)

	w, h := grad.Width, grad.Height
	edge := make([]bool, w*h)
	edgeCount := 0
	for i, m := range grad.Mag {
		if m >= p.EdgeThreshold {
			edge[i] = true
			edgeCount++
		}
	}
	if edgeCount == 0 {
		return geometry.Segment{}, ErrNotFound
	}

	minLineLength := float64(circle.Radius) * p.MinLineLengthFactor
	segments, err := houghSegments(ctx, edge, w, h, p.HoughThreshold, minLineLength, p.MaxLineGap)
	if err != nil {
		return geometry.Segment{}, err
	}

	maxCenterDist := float64(circle.Radius) * p.CenterDistanceFactor
	type candidate struct {
		seg        geometry.Segment
		length     float64
		centerDist float64
	}
	var candidates []candidate
	for _, s := range segments {
		dist := geometry.DistanceToLine(float64(circle.X), float64(circle.Y), s)
		if dist > maxCenterDist {
			continue
		}
		if length := s.Length(); length >= minLineLength {
			candidates = append(candidates, candidate{seg: s, length: length, centerDist: dist})
		}
	}
	if len(candidates) == 0 {
		return geometry.Segment{}, ErrNotFound
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].length != candidates[j].length {
			return candidates[i].length > candidates[j].length
		}
		if candidates[i].centerDist != candidates[j].centerDist {
			return candidates[i].centerDist < candidates[j].centerDist
		}
		a, b := candidates[i].seg, candidates[j].seg
		if a.Y1 != b.Y1 {
			return a.Y1 < b.Y1
		}
		if a.X1 != b.X1 {
			return a.X1 < b.X1
		}
		if a.Y2 != b.Y2 {
			return a.Y2 < b.Y2
		}
		return a.X2 < b.X2
	})
	return candidates[0].seg, nil
}

// houghSegments runs a deterministic variant of the probabilistic line
// transform: a standard (theta, rho) accumulator proposes lines, strongest
// first, and each proposed line is walked across the image collecting runs
// of unconsumed edge pixels. Consumed pixels stop voting for weaker lines.
func houghSegments(ctx context.Context, edge []bool, w, h, votesMin int, minLength float64, maxGap int) ([]geometry.Segment, error) {
	const thetaSteps = 180
	diag := int(math.Ceil(math.Hypot(float64(w), float64(h))))
	rhoSpan := 2*diag + 1

	sins := make([]float64, thetaSteps)
	coss := make([]float64, thetaSteps)
	for t := 0; t < thetaSteps; t++ {
		rad := float64(t) * math.Pi / float64(thetaSteps)
		sins[t] = math.Sin(rad)
		coss[t] = math.Cos(rad)
	}

	acc := make([]int32, thetaSteps*rhoSpan)
	processed := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !edge[y*w+x] {
				continue
			}
			processed++
			if processed%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			for t := 0; t < thetaSteps; t++ {
				rho := int(math.Round(float64(x)*coss[t] + float64(y)*sins[t]))
				acc[t*rhoSpan+(rho+diag)]++
			}
		}
	}

	type cell struct {
		theta, rho int
		votes      int32
	}
	var cells []cell
	for t := 0; t < thetaSteps; t++ {
		for r := 0; r < rhoSpan; r++ {
			if v := acc[t*rhoSpan+r]; v >= int32(votesMin) {
				cells = append(cells, cell{theta: t, rho: r - diag, votes: v})
			}
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].votes != cells[j].votes {
			return cells[i].votes > cells[j].votes
		}
		if cells[i].theta != cells[j].theta {
			return cells[i].theta < cells[j].theta
		}
		return cells[i].rho < cells[j].rho
	})

	var segments []geometry.Segment
	for _, c := range cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments = append(segments, walkLine(edge, w, h, coss[c.theta], sins[c.theta], c.rho, diag, minLength, maxGap)...)
	}
	return segments, nil
}

// walkLine traces the line x*cos+y*sin = rho across the frame and splits the
// edge pixels on it into segments, joining runs separated by at most maxGap
// pixels. Pixels belonging to an emitted segment are consumed.
func walkLine(edge []bool, w, h int, cosT, sinT float64, rho, diag int, minLength float64, maxGap int) []geometry.Segment {
	baseX := float64(rho) * cosT
	baseY := float64(rho) * sinT
	// Direction along the line is the normal rotated 90 degrees.
	dirX, dirY := -sinT, cosT

	type pix struct{ x, y int }
	var segments []geometry.Segment
	var run []pix
	gap := 0
	lastX, lastY := math.MinInt32, math.MinInt32

	flush := func() {
		if len(run) >= 2 {
			s := geometry.Segment{
				X1: run[0].x, Y1: run[0].y,
				X2: run[len(run)-1].x, Y2: run[len(run)-1].y,
			}
			if s.Length() >= minLength {
				segments = append(segments, s)
				for _, q := range run {
					edge[q.y*w+q.x] = false
				}
			}
		}
		run = run[:0]
		gap = 0
	}

	for t := -diag; t <= diag; t++ {
		x := int(math.Round(baseX + float64(t)*dirX))
		y := int(math.Round(baseY + float64(t)*dirY))
		if x < 0 || y < 0 || x >= w || y >= h {
			continue
		}
		if x == lastX && y == lastY {
			continue
		}
		lastX, lastY = x, y
		if edge[y*w+x] {
			run = append(run, pix{x, y})
			gap = 0
			continue
		}
		if len(run) > 0 {
			gap++
			if gap > maxGap {
				flush()
			}
		}
	}
	flush()
	return segments
}
