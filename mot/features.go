package mot

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Track feature names
const (
	TrackMeanSpeed             = "TRACK_MEAN_SPEED"
	TrackMaxSpeed              = "TRACK_MAX_SPEED"
	TrackMinSpeed              = "TRACK_MIN_SPEED"
	TrackMedianSpeed           = "TRACK_MEDIAN_SPEED"
	TrackStdSpeed              = "TRACK_STD_SPEED"
	TrackMeanStraightLineSpeed = "MEAN_STRAIGHT_LINE_SPEED"
	TrackDisplacement          = "TRACK_DISPLACEMENT"
	TrackTotalDistance         = "TOTAL_DISTANCE_TRAVELED"
	TrackMaxDistance           = "MAX_DISTANCE_TRAVELED"
	TrackConfinementRatio      = "CONFINEMENT_RATIO"
	TrackDuration              = "TRACK_DURATION"
	TrackStart                 = "TRACK_START"
	TrackStop                  = "TRACK_STOP"
	TrackNumberSpots           = "NUMBER_SPOTS"
	TrackNumberGaps            = "NUMBER_GAPS"
	TrackLongestGap            = "LONGEST_GAP"
	TrackXLocation             = "TRACK_X_LOCATION"
	TrackYLocation             = "TRACK_Y_LOCATION"
	TrackMeanQuality           = "TRACK_MEAN_QUALITY"
)

// TrackFeatureNames lists every feature ComputeTrackFeatures provides
var TrackFeatureNames = []string{
	TrackMeanSpeed,
	TrackMaxSpeed,
	TrackMinSpeed,
	TrackMedianSpeed,
	TrackStdSpeed,
	TrackMeanStraightLineSpeed,
	TrackDisplacement,
	TrackTotalDistance,
	TrackMaxDistance,
	TrackConfinementRatio,
	TrackDuration,
	TrackStart,
	TrackStop,
	TrackNumberSpots,
	TrackNumberGaps,
	TrackLongestGap,
	TrackXLocation,
	TrackYLocation,
	TrackMeanQuality,
}

// TrackFeatures maps feature name to value. Immutable once computed.
type TrackFeatures map[string]float64

// Get implements FeatureGetter
func (features TrackFeatures) Get(name string) (float64, bool) {
	v, ok := features[name]
	return v, ok
}

// ComputeTrackFeatures derives motion statistics of a track.
// Speed between consecutive spots is distance over (frame difference x frame interval), so gaps do not inflate speeds.
func ComputeTrackFeatures(track *Track, cal Calibration) TrackFeatures {
	features := make(TrackFeatures, len(TrackFeatureNames))
	n := track.Len()
	features[TrackNumberSpots] = float64(n)
	if n == 0 {
		return features
	}
	first, last := track.First(), track.Last()

	speeds := make([]float64, 0, n-1)
	xs := make([]float64, n)
	ys := make([]float64, n)
	qualities := make([]float64, n)
	totalDistance := 0.0
	maxDistance := 0.0
	gaps := 0
	longestGap := 0
	for i, spot := range track.Spots {
		xs[i] = spot.Position.X
		ys[i] = spot.Position.Y
		qualities[i] = spot.Quality
		maxDistance = maxFloat64(maxDistance, euclideanDistance(first.Position, spot.Position))
		if i == 0 {
			continue
		}
		prev := track.Spots[i-1]
		frameGap := spot.Frame - prev.Frame
		dist := euclideanDistance(prev.Position, spot.Position)
		totalDistance += dist
		speeds = append(speeds, dist/(float64(frameGap)*cal.FrameInterval))
		if frameGap > 1 {
			gaps++
			longestGap = maxInt(longestGap, frameGap-1)
		}
	}

	duration := float64(last.Frame-first.Frame) * cal.FrameInterval
	displacement := euclideanDistance(first.Position, last.Position)

	features[TrackDuration] = duration
	features[TrackStart] = float64(first.Frame) * cal.FrameInterval
	features[TrackStop] = float64(last.Frame) * cal.FrameInterval
	features[TrackDisplacement] = displacement
	features[TrackTotalDistance] = totalDistance
	features[TrackMaxDistance] = maxDistance
	features[TrackNumberGaps] = float64(gaps)
	features[TrackLongestGap] = float64(longestGap)
	features[TrackXLocation] = stat.Mean(xs, nil)
	features[TrackYLocation] = stat.Mean(ys, nil)
	features[TrackMeanQuality] = stat.Mean(qualities, nil)
	features[TrackConfinementRatio] = 0
	if totalDistance > 0 {
		features[TrackConfinementRatio] = displacement / totalDistance
	}
	features[TrackMeanStraightLineSpeed] = 0
	if duration > 0 {
		features[TrackMeanStraightLineSpeed] = displacement / duration
	}

	if len(speeds) == 0 {
		for _, name := range []string{TrackMeanSpeed, TrackMaxSpeed, TrackMinSpeed, TrackMedianSpeed, TrackStdSpeed} {
			features[name] = 0
		}
		return features
	}
	features[TrackMeanSpeed] = stat.Mean(speeds, nil)
	features[TrackMaxSpeed] = floats.Max(speeds)
	features[TrackMinSpeed] = floats.Min(speeds)
	features[TrackMedianSpeed] = median(speeds)
	features[TrackStdSpeed] = 0
	if len(speeds) > 1 {
		features[TrackStdSpeed] = stat.StdDev(speeds, nil)
	}
	return features
}

// median returns middle value, averaging the two middle values for even counts
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}
