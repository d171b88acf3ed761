package mot

import (
	"sort"
)

// Spot feature names
const (
	SpotPositionX     = "POSITION_X"
	SpotPositionY     = "POSITION_Y"
	SpotFrame         = "FRAME"
	SpotQuality       = "QUALITY"
	SpotArea          = "AREA"
	SpotPerimeter     = "PERIMETER"
	SpotCircularity   = "CIRCULARITY"
	SpotRadius        = "RADIUS"
	SpotMeanIntensity = "MEAN_INTENSITY"
	SpotTotal         = "TOTAL_INTENSITY"
	SpotMaxIntensity  = "MAX_INTENSITY"
	SpotMinIntensity  = "MIN_INTENSITY"
)

// SpotFeatures lists every feature a Spot provides
var SpotFeatures = []string{
	SpotPositionX,
	SpotPositionY,
	SpotFrame,
	SpotQuality,
	SpotArea,
	SpotPerimeter,
	SpotCircularity,
	SpotRadius,
	SpotMeanIntensity,
	SpotTotal,
	SpotMaxIntensity,
	SpotMinIntensity,
}

// Spot is a particle detected in a single frame.
// All geometric values are in physical units. Spots are never mutated after detection.
type Spot struct {
	ID    int
	Frame int
	// Geometric centroid of the member pixels
	Position Point
	BBox     Rectangle
	// Outer boundary through pixel centers, possibly simplified
	Contour []Point

	PixelCount     int
	Area           float64
	Perimeter      float64
	Circularity    float64
	Radius         float64
	Quality        float64
	MeanIntensity  float64
	TotalIntensity float64
	MaxIntensity   float64
	MinIntensity   float64
}

// Feature returns value of named feature
func (spot *Spot) Feature(name string) (float64, bool) {
	switch name {
	case SpotPositionX:
		return spot.Position.X, true
	case SpotPositionY:
		return spot.Position.Y, true
	case SpotFrame:
		return float64(spot.Frame), true
	case SpotQuality:
		return spot.Quality, true
	case SpotArea:
		return spot.Area, true
	case SpotPerimeter:
		return spot.Perimeter, true
	case SpotCircularity:
		return spot.Circularity, true
	case SpotRadius:
		return spot.Radius, true
	case SpotMeanIntensity:
		return spot.MeanIntensity, true
	case SpotTotal:
		return spot.TotalIntensity, true
	case SpotMaxIntensity:
		return spot.MaxIntensity, true
	case SpotMinIntensity:
		return spot.MinIntensity, true
	}
	return 0, false
}

// DistanceTo returns distance to other spot (center to center)
func (spot *Spot) DistanceTo(other *Spot) float64 {
	return euclideanDistance(spot.Position, other.Position)
}

// SpotCollection stores spots of one stack grouped by frame.
// Spots excluded by filters stay addressable by ID but are not visible.
type SpotCollection struct {
	byFrame map[int][]*Spot
	byID    map[int]*Spot
	visible map[int]bool
	frames  []int
}

// NewSpotCollection creates empty collection
func NewSpotCollection() *SpotCollection {
	return &SpotCollection{
		byFrame: make(map[int][]*Spot),
		byID:    make(map[int]*Spot),
		visible: make(map[int]bool),
	}
}

// Add appends spot to its frame. Newly added spots are visible.
func (sc *SpotCollection) Add(spot *Spot) {
	if _, ok := sc.byFrame[spot.Frame]; !ok {
		sc.frames = append(sc.frames, spot.Frame)
		sort.Ints(sc.frames)
	}
	sc.byFrame[spot.Frame] = append(sc.byFrame[spot.Frame], spot)
	sc.byID[spot.ID] = spot
	sc.visible[spot.ID] = true
}

// Frames returns indices of frames holding at least one spot, ascending
func (sc *SpotCollection) Frames() []int {
	return sc.frames
}

// InFrame returns spots of frame in insertion order
func (sc *SpotCollection) InFrame(frame int, visibleOnly bool) []*Spot {
	spots := sc.byFrame[frame]
	if !visibleOnly {
		return spots
	}
	ans := make([]*Spot, 0, len(spots))
	for _, spot := range spots {
		if sc.visible[spot.ID] {
			ans = append(ans, spot)
		}
	}
	return ans
}

// Get returns spot by identifier
func (sc *SpotCollection) Get(id int) (*Spot, bool) {
	spot, ok := sc.byID[id]
	return spot, ok
}

// IsVisible reports whether spot passed filtering
func (sc *SpotCollection) IsVisible(id int) bool {
	return sc.visible[id]
}

// Count returns number of spots
func (sc *SpotCollection) Count(visibleOnly bool) int {
	if !visibleOnly {
		return len(sc.byID)
	}
	n := 0
	for _, ok := range sc.visible {
		if ok {
			n++
		}
	}
	return n
}

// Crop removes spots whose quality is below minQuality
func (sc *SpotCollection) Crop(minQuality float64) {
	frames := sc.frames[:0]
	for _, frame := range sc.frames {
		kept := sc.byFrame[frame][:0]
		for _, spot := range sc.byFrame[frame] {
			if spot.Quality >= minQuality {
				kept = append(kept, spot)
				continue
			}
			delete(sc.byID, spot.ID)
			delete(sc.visible, spot.ID)
		}
		if len(kept) == 0 {
			delete(sc.byFrame, frame)
			continue
		}
		sc.byFrame[frame] = kept
		frames = append(frames, frame)
	}
	sc.frames = frames
}

// Filter sets visibility of every spot to the conjunction of filters
func (sc *SpotCollection) Filter(filters Filters) {
	for id, spot := range sc.byID {
		sc.visible[id] = filters.Accept(spot.Feature)
	}
}
