// Package batch runs the tracking pipeline over every stack of a folder.
package batch

import (
	"context"
	"path/filepath"

	"github.com/LdDl/spotmate/internal/export"
	"github.com/LdDl/spotmate/internal/stack"
	"github.com/LdDl/spotmate/mot"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of one stack
type Status uint16

const (
	StatusProcessed Status = iota
	// Input could not be read
	StatusSkipped
	// Processing or export error
	StatusFailed
)

func (status Status) String() string {
	switch status {
	case StatusProcessed:
		return "processed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// OpenFunc reads a stack file
type OpenFunc func(path string) (*stack.Stack, error)

// Options tunes a Batch. Zero value processes stacks one at a time and exports nothing.
type Options struct {
	// Maximal number of stacks processed at once
	Workers   int
	Open      OpenFunc
	Exporters []export.Exporter
	Renderer  export.Renderer
	// Positive fields replace calibration found in files
	Calibration mot.Calibration
}

// StackResult describes what happened to one stack
type StackResult struct {
	Path          string
	Name          string
	Status        Status
	Err           error
	SpotsDetected int
	SpotsVisible  int
	TracksFound   int
	TracksVisible int
	Outputs       []string
}

// Report holds results in input order
type Report struct {
	RunID   uuid.UUID
	Results []StackResult
}

func (report *Report) count(status Status) int {
	n := 0
	for _, result := range report.Results {
		if result.Status == status {
			n++
		}
	}
	return n
}

// Processed returns number of stacks processed successfully
func (report *Report) Processed() int {
	return report.count(StatusProcessed)
}

// Skipped returns number of unreadable stacks
func (report *Report) Skipped() int {
	return report.count(StatusSkipped)
}

// Failed returns number of stacks that failed processing or export
func (report *Report) Failed() int {
	return report.count(StatusFailed)
}

// Batch processes stacks independently with one shared, validated pipeline
type Batch struct {
	runID    uuid.UUID
	pipeline *mot.Pipeline
	options  Options
}

// New validates settings once for the whole run
func New(settings mot.Settings, options Options) (*Batch, error) {
	pipeline, err := mot.NewPipeline(settings)
	if err != nil {
		return nil, err
	}
	if options.Workers < 1 {
		options.Workers = 1
	}
	if options.Open == nil {
		options.Open = stack.Open
	}
	if err := validateOverride(options.Calibration); err != nil {
		return nil, err
	}
	return &Batch{
		runID:    uuid.New(),
		pipeline: pipeline,
		options:  options,
	}, nil
}

func validateOverride(cal mot.Calibration) error {
	if cal.PixelSize < 0 || cal.FrameInterval < 0 {
		return errors.Wrapf(mot.ErrInvalidSettings, "calibration override must be >= 0, got pixel size %v, frame interval %v", cal.PixelSize, cal.FrameInterval)
	}
	return nil
}

// RunID identifies this batch in exported results
func (b *Batch) RunID() uuid.UUID {
	return b.runID
}

// Run processes every path. A stack failure is recorded in its result and never stops other stacks.
// Cancelling ctx fails stacks that have not finished.
func (b *Batch) Run(ctx context.Context, paths []string) *Report {
	report := &Report{
		RunID:   b.runID,
		Results: make([]StackResult, len(paths)),
	}
	var group errgroup.Group
	group.SetLimit(b.options.Workers)
	for i, path := range paths {
		group.Go(func() error {
			report.Results[i] = b.process(ctx, path)
			return nil
		})
	}
	group.Wait()
	Logf("Batch %s done: %d processed, %d skipped, %d failed", b.runID, report.Processed(), report.Skipped(), report.Failed())
	return report
}

func (b *Batch) process(ctx context.Context, path string) StackResult {
	result := StackResult{
		Path: path,
		Name: filepath.Base(path),
	}
	if err := ctx.Err(); err != nil {
		return b.fail(result, err)
	}
	Logf("Processing %s", result.Name)
	s, err := b.options.Open(path)
	if err != nil {
		if isInputError(err) {
			result.Status = StatusSkipped
			result.Err = err
			Logf("Skipped %s: %v", result.Name, err)
			return result
		}
		return b.fail(result, err)
	}
	cal := b.calibration(s.Calibration)
	Logf("%s: %d frame(s), %d channel(s), pixel size %g %s, frame interval %g %s", result.Name, len(s.Frames), s.NumChannels, cal.PixelSize, cal.SpaceUnit, cal.FrameInterval, cal.TimeUnit)

	model, err := b.pipeline.Process(ctx, s.Frames, cal)
	if err != nil {
		return b.fail(result, err)
	}
	result.SpotsDetected = model.Spots.Count(false)
	result.SpotsVisible = model.Spots.Count(true)
	result.TracksFound = model.Graph.NumTracks()
	result.TracksVisible = model.NumVisibleTracks()
	Logf("%s: %d spot(s) detected, %d visible", result.Name, result.SpotsDetected, result.SpotsVisible)
	Logf("%s: found %d track(s), %d visible", result.Name, result.TracksFound, result.TracksVisible)

	for _, exporter := range b.options.Exporters {
		output, err := exporter.Export(s, model)
		if err != nil {
			return b.fail(result, errors.Wrap(err, "export"))
		}
		result.Outputs = append(result.Outputs, output)
		Logf("%s: saved %s", result.Name, output)
	}
	if b.options.Renderer != nil {
		if err := b.options.Renderer.Render(s, model); err != nil {
			return b.fail(result, errors.Wrap(err, "render"))
		}
	}
	result.Status = StatusProcessed
	Logf("Successfully processed %s", result.Name)
	return result
}

func (b *Batch) fail(result StackResult, err error) StackResult {
	result.Status = StatusFailed
	result.Err = err
	Logf("Failed %s: %v", result.Name, err)
	return result
}

func (b *Batch) calibration(found mot.Calibration) mot.Calibration {
	cal := found
	if b.options.Calibration.PixelSize > 0 {
		cal.PixelSize = b.options.Calibration.PixelSize
	}
	if b.options.Calibration.FrameInterval > 0 {
		cal.FrameInterval = b.options.Calibration.FrameInterval
	}
	if !(cal.PixelSize > 0) {
		cal.PixelSize = 1.0
	}
	if !(cal.FrameInterval > 0) {
		cal.FrameInterval = 1.0
	}
	return cal
}

func isInputError(err error) bool {
	return errors.Is(err, stack.ErrOpenFailed) || errors.Is(err, stack.ErrNoFrames) || errors.Is(err, stack.ErrUnsupportedFormat)
}
