// Package pipeline drives images through detection, conversion and
// persistence. Each image ends as exactly one of: a stored reading, a
// stored detection failure, or (only when the batch itself is cancelled)
// unrecorded.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pressure.report/internal/config"
	"github.com/banshee-data/pressure.report/internal/db"
	"github.com/banshee-data/pressure.report/internal/detect"
	"github.com/banshee-data/pressure.report/internal/geometry"
	"github.com/banshee-data/pressure.report/internal/pressure"
	"github.com/banshee-data/pressure.report/internal/raster"
	"github.com/banshee-data/pressure.report/internal/security"
)

// Status classifies the outcome of one image.
type Status int

const (
	// StatusPending means the image was not recorded: the batch was
	// cancelled or the store rejected the write.
	StatusPending Status = iota
	// StatusSucceeded means a reading was extracted and stored.
	StatusSucceeded
	// StatusFailed means detection gave up and a failure row was stored.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome reports what happened to one image.
type Outcome struct {
	ImageName  string
	Status     Status
	Reading    *db.GaugeReading
	Err        error
	Change     float64 // signed degrees since the previous reading
	RatePerMin float64
	Notable    bool // change magnitude reached the configured threshold
}

// Pipeline holds the tuned detection and conversion stages plus the store
// they feed.
type Pipeline struct {
	Store           *db.DB
	Circle          detect.CircleParams
	Needle          detect.NeedleParams
	Calibration     pressure.Calibration
	ChangeThreshold float64
	PerImageTimeout time.Duration
	History         *History

	// Now is the clock used for timestamp fallbacks; tests override it.
	Now func() time.Time
}

// New builds a Pipeline from configuration.
func New(cfg *config.Config, store *db.DB) *Pipeline {
	circle := detect.DefaultCircleParams()
	circle.MinRadius = cfg.GetMinRadius()
	circle.MaxRadius = cfg.GetMaxRadius()
	circle.EdgeThreshold = cfg.GetEdgeThreshold()
	circle.AccumulatorThreshold = cfg.GetAccumulatorThreshold()

	needle := detect.DefaultNeedleParams()
	needle.BinaryThreshold = uint8(cfg.GetBinaryThreshold())
	needle.HoughThreshold = cfg.GetHoughThreshold()
	needle.MinLineLengthFactor = cfg.GetMinLineLengthFactor()
	needle.MaxLineGap = cfg.GetMaxLineGap()
	needle.CenterDistanceFactor = cfg.GetLineCenterDistanceFactor()

	return &Pipeline{
		Store:  store,
		Circle: circle,
		Needle: needle,
		Calibration: pressure.Calibration{
			MinAngle: cfg.GetMinAngle(),
			MaxAngle: cfg.GetMaxAngle(),
			MaxPSI:   cfg.GetMaxPSI(),
			MaxBar:   cfg.GetMaxBar(),
		},
		ChangeThreshold: cfg.GetChangeThreshold(),
		PerImageTimeout: cfg.GetPerImageTimeout(),
		History:         &History{},
		Now:             time.Now,
	}
}

// ProcessImage runs one image through the full pipeline. Detection errors
// (including the per-image timeout) are recorded as failures; cancellation
// of the parent context leaves the image unrecorded.
func (p *Pipeline) ProcessImage(ctx context.Context, path string) Outcome {
	name := filepath.Base(path)
	out := Outcome{ImageName: name}

	timestamp := TimestampForImage(name, path, p.Now)

	imgCtx, cancel := context.WithTimeout(ctx, p.PerImageTimeout)
	defer cancel()

	reading, err := p.read(imgCtx, path, name, timestamp)
	if err != nil {
		if ctx.Err() != nil {
			// The batch itself was cancelled; leave no record.
			out.Err = ctx.Err()
			return out
		}
		out.Status = StatusFailed
		out.Err = err
		if saveErr := p.Store.SaveFailure(ctx, name, timestamp); saveErr != nil {
			out.Status = StatusPending
			out.Err = fmt.Errorf("%w (and failed to record failure: %v)", err, saveErr)
		}
		return out
	}

	if err := p.Store.SaveSuccess(ctx, *reading); err != nil {
		out.Err = fmt.Errorf("failed to store reading: %w", err)
		return out
	}

	out.Status = StatusSucceeded
	out.Reading = reading
	if change, rate, ok := p.History.Observe(Entry{Timestamp: timestamp, Angle: reading.Angle}); ok {
		out.Change = change
		out.RatePerMin = rate
		out.Notable = math.Abs(change) >= p.ChangeThreshold
	}
	return out
}

// read decodes the image and extracts a reading from it.
func (p *Pipeline) read(ctx context.Context, path, name string, timestamp time.Time) (*db.GaugeReading, error) {
	gray, err := raster.Decode(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	circle, err := detect.LocateCircle(ctx, gray, p.Circle)
	if err != nil {
		return nil, fmt.Errorf("no gauge face in %s: %w", name, err)
	}

	segment, err := detect.ExtractNeedle(ctx, gray, circle, p.Needle)
	if err != nil {
		return nil, fmt.Errorf("no needle in %s: %w", name, err)
	}

	angle := geometry.NeedleAngle(segment, circle)
	psi, bar := p.Calibration.Convert(angle)

	return &db.GaugeReading{
		ImageName:   name,
		Angle:       angle,
		CenterX:     circle.X,
		CenterY:     circle.Y,
		Radius:      circle.Radius,
		Timestamp:   timestamp,
		PressurePSI: psi,
		PressureBar: bar,
	}, nil
}

// BatchOptions selects which images a batch run covers.
type BatchOptions struct {
	Dir           string
	Pattern       string
	Force         bool // reprocess images that already have a row
	RetryFailures bool // reprocess images currently classified as failures
	Workers       int
}

// Summary aggregates one batch run.
type Summary struct {
	RunID     string
	Total     int // images matching the pattern
	Skipped   int // already processed
	Processed int
	Succeeded int
	Failed    int
	Notable   []Outcome
}

// Run processes every matching image in the directory. Images are visited
// in filename order; already-processed ones are skipped unless forced or,
// for failures, retried. The run is bookkept in process_runs.
func (p *Pipeline) Run(ctx context.Context, opts BatchOptions) (*Summary, error) {
	matches, err := filepath.Glob(filepath.Join(opts.Dir, opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("bad image pattern %q: %w", opts.Pattern, err)
	}
	sort.Strings(matches)

	summary := &Summary{RunID: uuid.New().String(), Total: len(matches)}

	failures := map[string]bool{}
	if opts.RetryFailures {
		if failures, err = p.Store.FailureNames(ctx); err != nil {
			return nil, err
		}
	}

	var queue []string
	for _, path := range matches {
		// Symlinked entries must not reach outside the image directory.
		if err := security.ValidatePathWithinDirectory(path, opts.Dir); err != nil {
			log.Printf("%s: skipped: %v", filepath.Base(path), err)
			continue
		}
		name := filepath.Base(path)
		if !opts.Force {
			processed, err := p.Store.HasBeenProcessed(ctx, name)
			if err != nil {
				return nil, err
			}
			if processed && !(opts.RetryFailures && failures[name]) {
				summary.Skipped++
				continue
			}
		}
		queue = append(queue, path)
	}

	p.seedHistory(ctx)

	if err := p.Store.StartRun(ctx, summary.RunID, len(queue)); err != nil {
		return nil, err
	}
	log.Printf("Run %s: %d images to process (%d matched, %d skipped)",
		summary.RunID, len(queue), summary.Total, summary.Skipped)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]Outcome, len(queue))
	type job struct {
		i    int
		path string
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcomes[j.i] = p.ProcessImage(ctx, j.path)
			}
		}()
	}

feed:
	for i, path := range queue {
		select {
		case jobs <- job{i: i, path: path}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for _, out := range outcomes {
		switch out.Status {
		case StatusSucceeded:
			summary.Processed++
			summary.Succeeded++
			if out.Notable {
				summary.Notable = append(summary.Notable, out)
				log.Printf("%s: angle %.1f (change %+.1f, %.2f deg/min)",
					out.ImageName, out.Reading.Angle, out.Change, out.RatePerMin)
			}
		case StatusFailed:
			summary.Processed++
			summary.Failed++
			log.Printf("%s: detection failed: %v", out.ImageName, out.Err)
		case StatusPending:
			if out.Err != nil {
				log.Printf("%s: not recorded: %v", out.ImageName, out.Err)
			}
		}
	}

	// Record the run outcome even when the batch was cancelled midway.
	finishCtx := context.WithoutCancel(ctx)
	if err := p.Store.FinishRun(finishCtx, summary.RunID, summary.Processed, summary.Succeeded, summary.Failed); err != nil {
		return summary, err
	}

	return summary, ctx.Err()
}

// seedHistory primes change detection with the newest stored reading so the
// first image of this batch is compared against prior runs.
func (p *Pipeline) seedHistory(ctx context.Context) {
	readings, err := p.Store.Readings(ctx, time.Time{})
	if err != nil || len(readings) == 0 {
		return
	}
	last := readings[len(readings)-1]
	p.History.Seed(Entry{Timestamp: last.Timestamp, Angle: last.Angle})
}
