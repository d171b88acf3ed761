package mot

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

type spotAt struct {
	frame int
	x, y  float64
}

// spotsAt creates collection where identifiers follow the given order
func spotsAt(points ...spotAt) *SpotCollection {
	sc := NewSpotCollection()
	for i, p := range points {
		sc.Add(&Spot{
			ID:       i,
			Frame:    p.frame,
			Position: NewPoint(p.x, p.y),
			Quality:  1,
		})
	}
	return sc
}

func trackSpotIDs(graph *TrackGraph) [][]int {
	ans := make([][]int, 0, graph.NumTracks())
	for _, track := range graph.Tracks() {
		ids := make([]int, 0, track.Len())
		for _, spot := range track.Spots {
			ids = append(ids, spot.ID)
		}
		ans = append(ans, ids)
	}
	return ans
}

func mustTracker(t *testing.T, settings TrackerSettings) *SparseLAPTracker {
	t.Helper()
	tracker, err := NewSparseLAPTracker(settings)
	if err != nil {
		t.Fatalf("Can't create tracker: %v", err)
	}
	return tracker
}

func TestTrackTwoFramesGlobalOptimum(t *testing.T) {
	spots := spotsAt(
		spotAt{0, 0, 0}, spotAt{0, 2, 0},
		spotAt{1, 1.9, 0}, spotAt{1, 3.9, 0},
	)
	settings := DefaultTrackerSettings()
	settings.MaxLinkingDistance = 2.5
	settings.AllowGapClosing = false
	graph, err := mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	expected := [][]int{{0, 2}, {1, 3}}
	if diff := cmp.Diff(expected, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Wrong tracks (-want +got):\n%s", diff)
	}
	for _, link := range graph.Links() {
		if math.Abs(link.Cost-1.9) > eps {
			t.Errorf("Link %d -> %d: expected cost 1.9, got %f", link.Source, link.Target, link.Cost)
		}
		if link.GapClosing {
			t.Errorf("Link %d -> %d must be direct", link.Source, link.Target)
		}
	}
}

func TestTrackGapClosingWindow(t *testing.T) {
	settings := DefaultTrackerSettings()
	settings.MaxLinkingDistance = 2
	settings.MaxGapClosingDistance = 2
	settings.MaxFrameGap = 2

	// Frame difference equal to MaxFrameGap is bridged
	within := spotsAt(spotAt{0, 0, 0}, spotAt{1, 1, 0}, spotAt{3, 2, 0})
	graph, err := mustTracker(t, settings).Track(context.Background(), within, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]int{{0, 1, 2}}, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Wrong tracks (-want +got):\n%s", diff)
	}
	links := graph.Links()
	if len(links) != 2 || links[0].GapClosing || !links[1].GapClosing {
		t.Errorf("Expected direct then gap-closing link, got %+v", links)
	}

	// One frame more is not
	beyond := spotsAt(spotAt{0, 0, 0}, spotAt{1, 1, 0}, spotAt{4, 2, 0})
	graph, err = mustTracker(t, settings).Track(context.Background(), beyond, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]int{{0, 1}}, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Wrong tracks (-want +got):\n%s", diff)
	}
}

func TestTrackGapClosingDistance(t *testing.T) {
	settings := DefaultTrackerSettings()
	settings.MaxLinkingDistance = 2
	settings.MaxGapClosingDistance = 1.5
	spots := spotsAt(spotAt{0, 0, 0}, spotAt{2, 1.6, 0})
	graph, err := mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if graph.NumTracks() != 0 {
		t.Errorf("Gap longer than max gap-closing distance must not be bridged, got %v", trackSpotIDs(graph))
	}
}

func TestTrackSingleFrame(t *testing.T) {
	spots := spotsAt(spotAt{0, 0, 0}, spotAt{0, 5, 5}, spotAt{0, 9, 1})
	graph, err := mustTracker(t, DefaultTrackerSettings()).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if graph.NumTracks() != 0 || graph.NumLinks() != 0 {
		t.Errorf("Expected empty graph, got %d tracks and %d links", graph.NumTracks(), graph.NumLinks())
	}
}

func TestTrackEmptyFrameSplitsWithoutGapClosing(t *testing.T) {
	spots := spotsAt(
		spotAt{0, 0, 0}, spotAt{1, 1, 0},
		spotAt{3, 3, 0}, spotAt{4, 4, 0},
	)
	settings := DefaultTrackerSettings()
	settings.MaxLinkingDistance = 1.5
	settings.MaxGapClosingDistance = 3
	settings.AllowGapClosing = false
	graph, err := mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]int{{0, 1}, {2, 3}}, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Wrong tracks without gap closing (-want +got):\n%s", diff)
	}

	settings.AllowGapClosing = true
	graph, err = mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]int{{0, 1, 2, 3}}, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Wrong tracks with gap closing (-want +got):\n%s", diff)
	}
}

func TestTrackGapClosingKeepsDirectLinks(t *testing.T) {
	// Spot 3 loses spot 1 to spot 0 and is within gap-closing reach of spot 2, which is not a segment start
	spots := spotsAt(
		spotAt{0, 0, 0},
		spotAt{1, 0, 0},
		spotAt{2, 0, 0},
		spotAt{0, 0.5, 0},
	)
	settings := DefaultTrackerSettings()
	settings.MaxLinkingDistance = 1
	settings.MaxGapClosingDistance = 1
	graph, err := mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]int{{0, 1, 2}}, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Wrong tracks (-want +got):\n%s", diff)
	}
	if _, ok := graph.TrackOf(3); ok {
		t.Error("Spot 3 must stay untracked")
	}
}

func TestTrackScaleGapCostPrefersShorterGap(t *testing.T) {
	// End 0 at frame 0 may bridge to start 1 (gap 2, distance 1.2) or start 2 (gap 3, distance 1)
	spots := spotsAt(
		spotAt{0, 0, 0},
		spotAt{2, 1.2, 0},
		spotAt{3, 0, 1},
	)
	settings := DefaultTrackerSettings()
	settings.MaxLinkingDistance = 0.1
	settings.MaxGapClosingDistance = 2
	settings.MaxFrameGap = 3

	graph, err := mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]int{{0, 2}}, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Unscaled cost must prefer the nearer start (-want +got):\n%s", diff)
	}

	settings.ScaleGapCost = true
	graph, err = mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]int{{0, 1}}, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Scaled cost must prefer the shorter gap (-want +got):\n%s", diff)
	}
}

func TestTrackKalmanGapMotion(t *testing.T) {
	// Particle moves 2 units per frame and is missed at frame 4
	spots := spotsAt(
		spotAt{0, 0, 0},
		spotAt{1, 2, 0},
		spotAt{2, 4, 0},
		spotAt{3, 6, 0},
		spotAt{5, 10, 0},
	)
	settings := DefaultTrackerSettings()
	settings.MaxLinkingDistance = 2.5
	settings.MaxGapClosingDistance = 2.5

	graph, err := mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := graph.TrackOf(4); ok {
		t.Error("Static model must not bridge a gap of distance 4")
	}

	settings.GapMotion = GapMotionKalman
	graph, err = mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]int{{0, 1, 2, 3, 4}}, trackSpotIDs(graph)); diff != "" {
		t.Errorf("Kalman model must bridge the gap (-want +got):\n%s", diff)
	}
}

func TestTrackIgnoresInvisibleSpots(t *testing.T) {
	spots := spotsAt(spotAt{0, 0, 0}, spotAt{1, 1, 0}, spotAt{2, 2, 0})
	spots.visible[1] = false
	settings := DefaultTrackerSettings()
	settings.MaxLinkingDistance = 1.5
	settings.MaxGapClosingDistance = 1.5
	graph, err := mustTracker(t, settings).Track(context.Background(), spots, DefaultCalibration())
	if err != nil {
		t.Fatal(err)
	}
	if graph.NumTracks() != 0 {
		t.Errorf("Expected no tracks, got %v", trackSpotIDs(graph))
	}
	if _, ok := graph.TrackOf(1); ok {
		t.Error("Invisible spot must not be linked")
	}
}

func TestTrackCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	spots := spotsAt(spotAt{0, 0, 0}, spotAt{1, 1, 0})
	_, err := mustTracker(t, DefaultTrackerSettings()).Track(ctx, spots, DefaultCalibration())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTrackerSettingsValidate(t *testing.T) {
	mutations := map[string]func(*TrackerSettings){
		"zero linking distance": func(s *TrackerSettings) { s.MaxLinkingDistance = 0 },
		"NaN linking distance":  func(s *TrackerSettings) { s.MaxLinkingDistance = math.NaN() },
		"zero frame gap":        func(s *TrackerSettings) { s.MaxFrameGap = 0 },
		"negative gap distance": func(s *TrackerSettings) { s.MaxGapClosingDistance = -1 },
		"small factor":          func(s *TrackerSettings) { s.AlternativeCostFactor = 0.9 },
		"unknown solver":        func(s *TrackerSettings) { s.Solver = SolverKind(42) },
		"unknown motion":        func(s *TrackerSettings) { s.GapMotion = GapMotionModel(42) },
	}
	for name, mutate := range mutations {
		settings := DefaultTrackerSettings()
		mutate(&settings)
		if _, err := NewSparseLAPTracker(settings); !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("%s: expected ErrInvalidSettings, got %v", name, err)
		}
	}
	settings := DefaultTrackerSettings()
	settings.AllowGapClosing = false
	settings.MaxGapClosingDistance = 0
	if _, err := NewSparseLAPTracker(settings); err != nil {
		t.Errorf("Gap-closing distance must be ignored when gap closing is off: %v", err)
	}
}
