package mot

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// TrackerSettings holds parameters of SparseLAPTracker
type TrackerSettings struct {
	// Maximal distance between spots of consecutive frames to be linked, physical units
	MaxLinkingDistance float64
	// Maximal distance between a segment end and a segment start to be bridged, physical units
	MaxGapClosingDistance float64
	// Maximal frame index difference of a link. Gap closing bridges differences in [2, MaxFrameGap].
	MaxFrameGap     int
	AllowGapClosing bool
	// Multiply gap-closing distance by frame difference so that shorter gaps are preferred
	ScaleGapCost bool
	// Birth/death cost is AlternativeCostFactor times the maximal feasible cost of a problem
	AlternativeCostFactor float64
	Solver                SolverKind
	GapMotion             GapMotionModel
}

// DefaultTrackerSettings returns the usual defaults of the sparse LAP tracker
func DefaultTrackerSettings() TrackerSettings {
	return TrackerSettings{
		MaxLinkingDistance:    15.0,
		MaxGapClosingDistance: 15.0,
		MaxFrameGap:           2,
		AllowGapClosing:       true,
		ScaleGapCost:          false,
		AlternativeCostFactor: DefaultAlternativeCostFactor,
		Solver:                SolverJV,
		GapMotion:             GapMotionStatic,
	}
}

// Validate checks tracker parameters
func (settings TrackerSettings) Validate() error {
	if !(settings.MaxLinkingDistance > 0) || !isFinite(settings.MaxLinkingDistance) {
		return errors.Wrapf(ErrInvalidSettings, "max linking distance must be positive, got %v", settings.MaxLinkingDistance)
	}
	if settings.MaxFrameGap < 1 {
		return errors.Wrapf(ErrInvalidSettings, "max frame gap must be >= 1, got %d", settings.MaxFrameGap)
	}
	if settings.AllowGapClosing && (!(settings.MaxGapClosingDistance > 0) || !isFinite(settings.MaxGapClosingDistance)) {
		return errors.Wrapf(ErrInvalidSettings, "max gap closing distance must be positive, got %v", settings.MaxGapClosingDistance)
	}
	if settings.AlternativeCostFactor < 1 || !isFinite(settings.AlternativeCostFactor) {
		return errors.Wrapf(ErrInvalidSettings, "alternative cost factor must be >= 1, got %v", settings.AlternativeCostFactor)
	}
	if settings.Solver.String() == "unknown" {
		return errors.Wrapf(ErrInvalidSettings, "unknown solver kind %d", settings.Solver)
	}
	if settings.GapMotion.String() == "unknown" {
		return errors.Wrapf(ErrInvalidSettings, "unknown gap motion model %d", settings.GapMotion)
	}
	return nil
}

// SparseLAPTracker links spots frame to frame by solving sparse assignment problems,
// then bridges detection gaps with a second assignment problem over segment ends and starts.
// The tracker is stateless between calls.
type SparseLAPTracker struct {
	settings TrackerSettings
	solver   Solver
}

// NewSparseLAPTracker creates tracker with validated settings
func NewSparseLAPTracker(settings TrackerSettings) (*SparseLAPTracker, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	solver, err := NewSolver(settings.Solver, settings.AlternativeCostFactor)
	if err != nil {
		return nil, err
	}
	return &SparseLAPTracker{
		settings: settings,
		solver:   solver,
	}, nil
}

// Track links visible spots of collection into a track graph
func (tracker *SparseLAPTracker) Track(ctx context.Context, spots *SpotCollection, cal Calibration) (*TrackGraph, error) {
	direct, err := tracker.linkFrames(ctx, spots)
	if err != nil {
		return nil, err
	}
	links := direct
	if tracker.settings.AllowGapClosing && tracker.settings.MaxFrameGap >= 2 {
		segments := buildSegments(spots, direct)
		gapLinks, err := tracker.closeGaps(ctx, segments, cal)
		if err != nil {
			return nil, err
		}
		links = append(links, gapLinks...)
	}
	return newTrackGraph(spots, links), nil
}

// linkFrames solves one assignment problem per pair of consecutive frames
func (tracker *SparseLAPTracker) linkFrames(ctx context.Context, spots *SpotCollection) ([]Link, error) {
	links := make([]Link, 0)
	for _, frame := range spots.Frames() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sources := spots.InFrame(frame, true)
		targets := spots.InFrame(frame+1, true)
		if len(sources) == 0 || len(targets) == 0 {
			// Open segments terminate here
			continue
		}
		costs := NewCostMatrix(len(sources), len(targets))
		for i, source := range sources {
			for j, target := range targets {
				dist := source.DistanceTo(target)
				if dist <= tracker.settings.MaxLinkingDistance {
					costs.Set(i, j, dist)
				}
			}
		}
		if costs.Len() == 0 {
			continue
		}
		assignments, err := tracker.solver.Solve(costs)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d: can't link to frame %d", frame, frame+1)
		}
		for _, a := range assignments {
			links = append(links, Link{
				Source: sources[a.Row].ID,
				Target: targets[a.Col].ID,
				Cost:   a.Cost,
			})
		}
	}
	return links, nil
}

// buildSegments chains direct links. Every visible spot belongs to exactly one segment.
// Segments are ordered by first spot frame, then identifier.
func buildSegments(spots *SpotCollection, links []Link) [][]*Spot {
	next := make(map[int]int, len(links))
	hasPrev := make(map[int]struct{}, len(links))
	for _, link := range links {
		next[link.Source] = link.Target
		hasPrev[link.Target] = struct{}{}
	}
	segments := make([][]*Spot, 0)
	for _, frame := range spots.Frames() {
		for _, spot := range spots.InFrame(frame, true) {
			if _, ok := hasPrev[spot.ID]; ok {
				continue
			}
			segment := []*Spot{spot}
			current := spot.ID
			for {
				target, ok := next[current]
				if !ok {
					break
				}
				s, ok := spots.Get(target)
				if !ok {
					break
				}
				segment = append(segment, s)
				current = target
			}
			segments = append(segments, segment)
		}
	}
	// Frames ascend and spots of a frame are in identifier order, so segments need no sorting
	return segments
}

// closeGaps solves the assignment problem between segment ends (rows) and segment starts (columns).
// Direct links are never revisited.
func (tracker *SparseLAPTracker) closeGaps(ctx context.Context, segments [][]*Spot, cal Calibration) ([]Link, error) {
	if len(segments) < 2 {
		return []Link{}, nil
	}
	maxGap := tracker.settings.MaxFrameGap
	motions := make([]segmentMotion, len(segments))
	for i, segment := range segments {
		last := segment[len(segment)-1]
		switch tracker.settings.GapMotion {
		case GapMotionKalman:
			motion, err := newKalmanMotion(segment, cal.FrameInterval, maxGap)
			if err != nil {
				return nil, errors.Wrapf(err, "frame %d: can't build motion model", last.Frame)
			}
			motions[i] = motion
		default:
			motions[i] = staticMotion{last: last.Position}
		}
	}

	// Segment starts sorted by frame so that candidates of an end are a contiguous window
	starts := make([]int, len(segments))
	for i := range starts {
		starts[i] = i
	}
	sort.SliceStable(starts, func(i, j int) bool {
		return segments[starts[i]][0].Frame < segments[starts[j]][0].Frame
	})

	costs := NewCostMatrix(len(segments), len(segments))
	for i, segment := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := segment[len(segment)-1]
		lo := sort.Search(len(starts), func(k int) bool {
			return segments[starts[k]][0].Frame >= end.Frame+2
		})
		for k := lo; k < len(starts); k++ {
			j := starts[k]
			start := segments[j][0]
			gap := start.Frame - end.Frame
			if gap > maxGap {
				break
			}
			predicted := motions[i].PredictAfter(gap)
			if !predicted.IsFinite() {
				return nil, errors.Wrapf(ErrSolver, "frame %d: non-finite predicted position for spot %d", end.Frame, end.ID)
			}
			dist := euclideanDistance(predicted, start.Position)
			if dist > tracker.settings.MaxGapClosingDistance {
				continue
			}
			cost := dist
			if tracker.settings.ScaleGapCost {
				cost *= float64(gap)
			}
			costs.Set(i, j, cost)
		}
	}
	if costs.Len() == 0 {
		return []Link{}, nil
	}
	assignments, err := tracker.solver.Solve(costs)
	if err != nil {
		return nil, errors.Wrap(err, "can't close gaps")
	}
	links := make([]Link, 0, len(assignments))
	for _, a := range assignments {
		links = append(links, Link{
			Source:     segments[a.Row][len(segments[a.Row])-1].ID,
			Target:     segments[a.Col][0].ID,
			Cost:       a.Cost,
			GapClosing: true,
		})
	}
	return links, nil
}
