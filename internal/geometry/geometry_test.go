package geometry

import (
	"math"
	"testing"
)

func TestNormalizeDegrees(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{359.5, 359.5},
		{360, 0},
		{720, 0},
		{-90, 270},
		{-450, 270},
		{45, 45},
	}
	for _, c := range cases {
		if got := NormalizeDegrees(c.in); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("NormalizeDegrees(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDirectionDegrees(t *testing.T) {
	// Image coordinates: y grows downward, so "down" is 90 degrees.
	cases := []struct {
		name           string
		toX, toY, want float64
	}{
		{"right", 10, 0, 0},
		{"down", 0, 10, 90},
		{"left", -10, 0, 180},
		{"up", 0, -10, 270},
		{"down-right", 10, 10, 45},
	}
	for _, c := range cases {
		if got := DirectionDegrees(0, 0, c.toX, c.toY); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("%s: DirectionDegrees = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNeedleAngleUsesFarEndpoint(t *testing.T) {
	c := Circle{X: 100, Y: 100, Radius: 50}

	// One endpoint near the pivot, tip pointing right.
	s := Segment{X1: 102, Y1: 100, X2: 145, Y2: 100}
	if got := NeedleAngle(s, c); math.Abs(got-0) > 1e-9 {
		t.Errorf("NeedleAngle = %v, want 0", got)
	}

	// Same segment with endpoints swapped must give the same answer.
	s = Segment{X1: 145, Y1: 100, X2: 102, Y2: 100}
	if got := NeedleAngle(s, c); math.Abs(got-0) > 1e-9 {
		t.Errorf("NeedleAngle (swapped) = %v, want 0", got)
	}

	// Tip pointing straight up on screen.
	s = Segment{X1: 100, Y1: 98, X2: 100, Y2: 55}
	if got := NeedleAngle(s, c); math.Abs(got-270) > 1e-9 {
		t.Errorf("NeedleAngle (up) = %v, want 270", got)
	}
}

func TestSmallestChange(t *testing.T) {
	cases := []struct {
		prev, next, want float64
	}{
		{40, 46, 6},
		{46, 40, -6},
		{350, 10, 20},
		{10, 350, -20},
		{0, 180, 180},
		{90, 90, 0},
	}
	for _, c := range cases {
		if got := SmallestChange(c.prev, c.next); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("SmallestChange(%v, %v) = %v, want %v", c.prev, c.next, got, c.want)
		}
	}
}

func TestDistanceToLine(t *testing.T) {
	s := Segment{X1: 0, Y1: 0, X2: 10, Y2: 0}
	if got := DistanceToLine(5, 3, s); math.Abs(got-3) > 1e-9 {
		t.Errorf("DistanceToLine = %v, want 3", got)
	}
	// Point on the line.
	if got := DistanceToLine(20, 0, s); math.Abs(got) > 1e-9 {
		t.Errorf("DistanceToLine (collinear) = %v, want 0", got)
	}
	// Degenerate segment.
	deg := Segment{X1: 2, Y1: 2, X2: 2, Y2: 2}
	if got := DistanceToLine(5, 6, deg); math.Abs(got-5) > 1e-9 {
		t.Errorf("DistanceToLine (degenerate) = %v, want 5", got)
	}
}

func TestCircleInsideFrame(t *testing.T) {
	c := Circle{X: 100, Y: 100, Radius: 50}
	if !c.InsideFrame(200, 200) {
		t.Error("expected circle inside 200x200 frame")
	}
	if c.InsideFrame(149, 200) {
		t.Error("circle touching right edge should be rejected")
	}
	if (Circle{X: 40, Y: 100, Radius: 50}).InsideFrame(200, 200) {
		t.Error("circle crossing left edge should be rejected")
	}
}
