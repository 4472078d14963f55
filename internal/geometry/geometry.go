// Package geometry holds the pure angle and line math shared by the gauge
// detectors and the measurement pipeline. It performs no I/O.
//
// Angle convention: all angles are in degrees, measured in image coordinates
// (y grows downward). 0 degrees points right (+x) and angles increase
// clockwise on screen, normalized into [0, 360). The needle angle is the
// direction of the vector from the circle center to the needle tip.
package geometry

import "math"

// Circle is a gauge face located in a raster image, in pixel coordinates.
type Circle struct {
	X      int // center x
	Y      int // center y
	Radius int
}

// Contains reports whether the pixel (x, y) lies inside the circle.
func (c Circle) Contains(x, y int) bool {
	dx := float64(x - c.X)
	dy := float64(y - c.Y)
	return dx*dx+dy*dy <= float64(c.Radius)*float64(c.Radius)
}

// InsideFrame reports whether the circle's full extent lies strictly inside
// a width x height frame. Circles touching or crossing the frame edge are
// rejected as gauge candidates.
func (c Circle) InsideFrame(width, height int) bool {
	return c.X-c.Radius >= 0 && c.Y-c.Radius >= 0 &&
		c.X+c.Radius < width && c.Y+c.Radius < height
}

// Segment is a detected line segment in pixel coordinates.
type Segment struct {
	X1, Y1 int
	X2, Y2 int
}

// Length returns the segment length in pixels.
func (s Segment) Length() float64 {
	dx := float64(s.X2 - s.X1)
	dy := float64(s.Y2 - s.Y1)
	return math.Hypot(dx, dy)
}

// NormalizeDegrees maps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// DirectionDegrees returns the normalized direction of the vector from
// (fromX, fromY) to (toX, toY).
func DirectionDegrees(fromX, fromY, toX, toY float64) float64 {
	return NormalizeDegrees(math.Atan2(toY-fromY, toX-fromX) * 180 / math.Pi)
}

// NeedleAngle computes the needle angle for a segment pivoting at the circle
// center. The tip is the endpoint farther from the center; the angle is the
// direction from the center to the tip. When both endpoints are equidistant
// the (X2, Y2) endpoint is treated as the tip.
func NeedleAngle(s Segment, c Circle) float64 {
	cx, cy := float64(c.X), float64(c.Y)
	d1 := math.Hypot(float64(s.X1)-cx, float64(s.Y1)-cy)
	d2 := math.Hypot(float64(s.X2)-cx, float64(s.Y2)-cy)
	if d1 > d2 {
		return DirectionDegrees(cx, cy, float64(s.X1), float64(s.Y1))
	}
	return DirectionDegrees(cx, cy, float64(s.X2), float64(s.Y2))
}

// SmallestChange returns the signed angular change from prev to next,
// normalized into (-180, 180]. A gauge needle moving from 350 to 10 degrees
// reads as +20, not -340.
func SmallestChange(prev, next float64) float64 {
	change := math.Mod(next-prev, 360)
	if change > 180 {
		change -= 360
	} else if change <= -180 {
		change += 360
	}
	return change
}

// DistanceToLine returns the perpendicular distance from point (px, py) to
// the infinite line through s. Degenerate zero-length segments return the
// distance to the point itself.
func DistanceToLine(px, py float64, s Segment) float64 {
	x1, y1 := float64(s.X1), float64(s.Y1)
	x2, y2 := float64(s.X2), float64(s.Y2)
	length := math.Hypot(x2-x1, y2-y1)
	if length == 0 {
		return math.Hypot(px-x1, py-y1)
	}
	// cross product of (p - p1) and (p2 - p1), over the segment length
	return math.Abs((px-x1)*(y2-y1)-(py-y1)*(x2-x1)) / length
}
