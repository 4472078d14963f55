// Package config loads the gauge reader configuration from a JSON file.
// Fields omitted from the file keep their defaults, so partial configs are
// safe. All tunables flow from here into component constructors; nothing in
// the pipeline reads ambient configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the root configuration. Every field is optional in the
// JSON file; the Get* methods supply the deployed defaults.
type Config struct {
	// Input and storage
	ImageDir     *string `json:"image_dir,omitempty"`
	ImagePattern *string `json:"image_pattern,omitempty"`
	DBFile       *string `json:"db_file,omitempty"`

	// Gauge face detection
	BinaryThreshold      *int     `json:"binary_threshold,omitempty"`
	MinRadius            *int     `json:"min_radius,omitempty"`
	MaxRadius            *int     `json:"max_radius,omitempty"`
	EdgeThreshold        *float64 `json:"edge_threshold,omitempty"`
	AccumulatorThreshold *int     `json:"accumulator_threshold,omitempty"`

	// Needle detection
	HoughThreshold           *int     `json:"hough_threshold,omitempty"`
	MinLineLengthFactor      *float64 `json:"min_line_length_factor,omitempty"`
	MaxLineGap               *int     `json:"max_line_gap,omitempty"`
	LineCenterDistanceFactor *float64 `json:"line_center_distance_factor,omitempty"`

	// Pressure calibration
	MinAngle *float64 `json:"min_angle,omitempty"`
	MaxAngle *float64 `json:"max_angle,omitempty"`
	MaxPSI   *float64 `json:"max_psi,omitempty"`
	MaxBar   *float64 `json:"max_bar,omitempty"`

	// Change detection
	ChangeThreshold *float64 `json:"change_threshold,omitempty"`

	// Reporting
	DefaultWindowDays    *int    `json:"default_window_days,omitempty"`
	DefaultAveragePeriod *string `json:"default_average_period,omitempty"`
	DefaultAverageValue  *int    `json:"default_average_value,omitempty"`
	DefaultUnit          *string `json:"default_unit,omitempty"`

	// Maintenance
	LargeAngleThreshold *float64 `json:"large_angle_threshold,omitempty"`

	// Batch processing
	PerImageTimeout *string `json:"per_image_timeout,omitempty"` // duration string like "30s"
	Workers         *int    `json:"workers,omitempty"`
}

// Default returns a Config with all fields unset, which resolves to the
// deployed defaults through the Get* accessors.
func Default() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and stay under the size cap. Fields omitted from the JSON
// retain their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set fields can form a working pipeline. Errors here
// are fatal at startup, before any image is processed.
func (c *Config) Validate() error {
	if c.MinAngle != nil && c.MaxAngle != nil && *c.MinAngle >= *c.MaxAngle {
		return fmt.Errorf("min_angle (%.1f) must be less than max_angle (%.1f)", *c.MinAngle, *c.MaxAngle)
	}
	if c.MinRadius != nil && c.MaxRadius != nil && *c.MinRadius >= *c.MaxRadius {
		return fmt.Errorf("min_radius (%d) must be less than max_radius (%d)", *c.MinRadius, *c.MaxRadius)
	}
	if c.BinaryThreshold != nil && (*c.BinaryThreshold < 0 || *c.BinaryThreshold > 255) {
		return fmt.Errorf("binary_threshold must be in 0..255, got %d", *c.BinaryThreshold)
	}
	if c.ChangeThreshold != nil && *c.ChangeThreshold < 0 {
		return fmt.Errorf("change_threshold must be non-negative, got %f", *c.ChangeThreshold)
	}
	if c.PerImageTimeout != nil && *c.PerImageTimeout != "" {
		if _, err := time.ParseDuration(*c.PerImageTimeout); err != nil {
			return fmt.Errorf("invalid per_image_timeout '%s': %w", *c.PerImageTimeout, err)
		}
	}
	if c.DefaultAveragePeriod != nil {
		switch *c.DefaultAveragePeriod {
		case "minute", "hour", "day":
		default:
			return fmt.Errorf("default_average_period must be minute, hour or day, got %q", *c.DefaultAveragePeriod)
		}
	}
	if c.DefaultUnit != nil {
		switch *c.DefaultUnit {
		case "angle", "psi", "bar":
		default:
			return fmt.Errorf("default_unit must be angle, psi or bar, got %q", *c.DefaultUnit)
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	return nil
}

// GetImageDir returns the image directory or the default.
func (c *Config) GetImageDir() string {
	if c.ImageDir == nil {
		return "dial_images"
	}
	return *c.ImageDir
}

// GetImagePattern returns the image filename glob or the default.
func (c *Config) GetImagePattern() string {
	if c.ImagePattern == nil {
		return "*.jpg"
	}
	return *c.ImagePattern
}

// GetDBFile returns the sqlite database path or the default.
func (c *Config) GetDBFile() string {
	if c.DBFile == nil {
		return "gauge_data.db"
	}
	return *c.DBFile
}

// GetBinaryThreshold returns the binarization threshold or the default.
func (c *Config) GetBinaryThreshold() int {
	if c.BinaryThreshold == nil {
		return 140
	}
	return *c.BinaryThreshold
}

// GetMinRadius returns the minimum gauge radius or the default.
func (c *Config) GetMinRadius() int {
	if c.MinRadius == nil {
		return 100
	}
	return *c.MinRadius
}

// GetMaxRadius returns the maximum gauge radius or the default.
func (c *Config) GetMaxRadius() int {
	if c.MaxRadius == nil {
		return 1000
	}
	return *c.MaxRadius
}

// GetEdgeThreshold returns the gradient magnitude gate or the default.
func (c *Config) GetEdgeThreshold() float64 {
	if c.EdgeThreshold == nil {
		return 60
	}
	return *c.EdgeThreshold
}

// GetAccumulatorThreshold returns the circle vote threshold or the default.
func (c *Config) GetAccumulatorThreshold() int {
	if c.AccumulatorThreshold == nil {
		return 30
	}
	return *c.AccumulatorThreshold
}

// GetHoughThreshold returns the line vote threshold or the default.
func (c *Config) GetHoughThreshold() int {
	if c.HoughThreshold == nil {
		return 25
	}
	return *c.HoughThreshold
}

// GetMinLineLengthFactor returns the minimum needle length as a fraction of
// the gauge radius, or the default.
func (c *Config) GetMinLineLengthFactor() float64 {
	if c.MinLineLengthFactor == nil {
		return 0.25
	}
	return *c.MinLineLengthFactor
}

// GetMaxLineGap returns the line-joining gap tolerance or the default.
func (c *Config) GetMaxLineGap() int {
	if c.MaxLineGap == nil {
		return 20
	}
	return *c.MaxLineGap
}

// GetLineCenterDistanceFactor returns the needle center-proximity bound as a
// fraction of the gauge radius, or the default.
func (c *Config) GetLineCenterDistanceFactor() float64 {
	if c.LineCenterDistanceFactor == nil {
		return 0.125
	}
	return *c.LineCenterDistanceFactor
}

// GetMinAngle returns the calibrated zero angle or the default.
func (c *Config) GetMinAngle() float64 {
	if c.MinAngle == nil {
		return 30
	}
	return *c.MinAngle
}

// GetMaxAngle returns the calibrated full-scale angle or the default.
func (c *Config) GetMaxAngle() float64 {
	if c.MaxAngle == nil {
		return 295
	}
	return *c.MaxAngle
}

// GetMaxPSI returns the full-scale PSI value or the default.
func (c *Config) GetMaxPSI() float64 {
	if c.MaxPSI == nil {
		return 58
	}
	return *c.MaxPSI
}

// GetMaxBar returns the full-scale bar value or the default.
func (c *Config) GetMaxBar() float64 {
	if c.MaxBar == nil {
		return 4.0
	}
	return *c.MaxBar
}

// GetChangeThreshold returns the notable-change threshold in degrees or the
// default.
func (c *Config) GetChangeThreshold() float64 {
	if c.ChangeThreshold == nil {
		return 5.0
	}
	return *c.ChangeThreshold
}

// GetDefaultWindowDays returns the report window in days or the default.
func (c *Config) GetDefaultWindowDays() int {
	if c.DefaultWindowDays == nil {
		return 7
	}
	return *c.DefaultWindowDays
}

// GetDefaultAveragePeriod returns the averaging period name or the default.
func (c *Config) GetDefaultAveragePeriod() string {
	if c.DefaultAveragePeriod == nil {
		return "hour"
	}
	return *c.DefaultAveragePeriod
}

// GetDefaultAverageValue returns the averaging multiplier or the default.
func (c *Config) GetDefaultAverageValue() int {
	if c.DefaultAverageValue == nil {
		return 1
	}
	return *c.DefaultAverageValue
}

// GetDefaultUnit returns the report unit name or the default.
func (c *Config) GetDefaultUnit() string {
	if c.DefaultUnit == nil {
		return "psi"
	}
	return *c.DefaultUnit
}

// GetLargeAngleThreshold returns the repair threshold or the default.
func (c *Config) GetLargeAngleThreshold() float64 {
	if c.LargeAngleThreshold == nil {
		return 200
	}
	return *c.LargeAngleThreshold
}

// GetPerImageTimeout parses and returns the per-image processing timeout.
func (c *Config) GetPerImageTimeout() time.Duration {
	if c.PerImageTimeout == nil || *c.PerImageTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.PerImageTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetWorkers returns the batch worker count. The default is one worker: the
// deployment target is a constrained embedded device where predictable
// resource use beats throughput.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}
