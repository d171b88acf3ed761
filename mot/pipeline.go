package mot

import (
	"context"

	"github.com/pkg/errors"
)

// Model is the outcome of processing one stack
type Model struct {
	Calibration Calibration
	// Every detected spot that survived the initial quality filter; visibility reflects spot filters
	Spots *SpotCollection
	// Track graph built from visible spots
	Graph *TrackGraph
	// Features of every track in Graph, filtered or not
	Features   map[int]TrackFeatures
	visible    []int
	visibleSet map[int]struct{}
}

// VisibleTracks returns tracks that passed track filters, in linker order
func (model *Model) VisibleTracks() []*Track {
	ans := make([]*Track, 0, len(model.visible))
	for _, id := range model.visible {
		if track, ok := model.Graph.Track(id); ok {
			ans = append(ans, track)
		}
	}
	return ans
}

// NumVisibleTracks returns number of tracks that passed track filters
func (model *Model) NumVisibleTracks() int {
	return len(model.visible)
}

// IsVisible reports whether track passed track filters
func (model *Model) IsVisible(trackID int) bool {
	_, ok := model.visibleSet[trackID]
	return ok
}

// Pipeline runs detection, spot filtering, linking, feature computation and track filtering of a stack.
// A Pipeline holds no per-stack state and can be shared by concurrent stacks.
type Pipeline struct {
	settings Settings
	tracker  *SparseLAPTracker
}

// NewPipeline validates settings once, before any frame is seen
func NewPipeline(settings Settings) (*Pipeline, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	tracker, err := NewSparseLAPTracker(settings.Tracker)
	if err != nil {
		return nil, errors.Wrap(err, "tracker")
	}
	return &Pipeline{
		settings: settings,
		tracker:  tracker,
	}, nil
}

// Process runs every stage on frames of one stack.
// Track features are computed once on the linked (gap-closed) tracks and track filters read those values.
func (pipeline *Pipeline) Process(ctx context.Context, frames []Frame, cal Calibration) (*Model, error) {
	if err := cal.Validate(); err != nil {
		return nil, errors.Wrap(err, "calibration")
	}
	if err := validateFrameSequence(frames); err != nil {
		return nil, err
	}
	spots, err := pipeline.detect(ctx, frames, cal)
	if err != nil {
		return nil, err
	}
	spots.Crop(pipeline.settings.InitialSpotQuality)
	spots.Filter(pipeline.settings.SpotFilters)

	graph, err := pipeline.tracker.Track(ctx, spots, cal)
	if err != nil {
		return nil, errors.Wrap(err, "tracking")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model := &Model{
		Calibration: cal,
		Spots:       spots,
		Graph:       graph,
		Features:    make(map[int]TrackFeatures, graph.NumTracks()),
		visible:     make([]int, 0, graph.NumTracks()),
		visibleSet:  make(map[int]struct{}, graph.NumTracks()),
	}
	for _, track := range graph.Tracks() {
		features := ComputeTrackFeatures(track, cal)
		model.Features[track.ID] = features
		if pipeline.settings.TrackFilters.Accept(features.Get) {
			model.visible = append(model.visible, track.ID)
			model.visibleSet[track.ID] = struct{}{}
		}
	}
	return model, nil
}

// detect segments every frame and assigns spot identifiers in frame order.
// Identifiers are unique within one Process call: every stack numbers its spots from zero,
// so stacks processed in parallel share no counter.
func (pipeline *Pipeline) detect(ctx context.Context, frames []Frame, cal Calibration) (*SpotCollection, error) {
	spots := NewSpotCollection()
	nextID := 0
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		detected, err := pipeline.settings.Detector.Detect(frame, cal)
		if err != nil {
			return nil, errors.Wrapf(err, "detection in frame %d", frame.Index)
		}
		for _, spot := range detected {
			spot.ID = nextID
			nextID++
			spots.Add(spot)
		}
	}
	return spots, nil
}
