// Package pressure converts needle angles to calibrated pressure values.
package pressure

import "fmt"

// Calibration maps the gauge's functional arc [MinAngle, MaxAngle] linearly
// onto [0, MaxPSI] and [0, MaxBar]. It is immutable and shared by every
// conversion in a run.
type Calibration struct {
	MinAngle float64
	MaxAngle float64
	MaxPSI   float64
	MaxBar   float64
}

// Validate rejects calibrations that cannot define a linear mapping. A bad
// calibration is fatal at startup, before any image is processed.
func (c Calibration) Validate() error {
	if c.MinAngle >= c.MaxAngle {
		return fmt.Errorf("min_angle (%.1f) must be less than max_angle (%.1f)", c.MinAngle, c.MaxAngle)
	}
	if c.MaxPSI <= 0 {
		return fmt.Errorf("max_psi must be positive, got %.2f", c.MaxPSI)
	}
	if c.MaxBar <= 0 {
		return fmt.Errorf("max_bar must be positive, got %.2f", c.MaxBar)
	}
	return nil
}

// Fraction returns the needle's position along the calibrated arc, clamped
// to [0, 1]. Angles outside the arc saturate at the nearest bound rather
// than erroring: geometry failures fail the image elsewhere, but a needle
// resting past zero is still a valid (zero) reading.
func (c Calibration) Fraction(angle float64) float64 {
	f := (angle - c.MinAngle) / (c.MaxAngle - c.MinAngle)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Convert maps an angle to (psi, bar).
func (c Calibration) Convert(angle float64) (psi, bar float64) {
	f := c.Fraction(angle)
	return f * c.MaxPSI, f * c.MaxBar
}
