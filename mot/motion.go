package mot

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// GapMotionModel selects where a segment is expected to be after a gap
type GapMotionModel uint16

const (
	// GapMotionStatic measures gap-closing distance from the last spot of a segment
	GapMotionStatic GapMotionModel = iota
	// GapMotionKalman measures gap-closing distance from the position a constant-velocity Kalman filter predicts across the gap
	GapMotionKalman
)

func (model GapMotionModel) String() string {
	switch model {
	case GapMotionStatic:
		return "static"
	case GapMotionKalman:
		return "kalman"
	}
	return "unknown"
}

// ParseGapMotionModel converts configuration name to GapMotionModel
func ParseGapMotionModel(name string) (GapMotionModel, error) {
	switch name {
	case "static", "":
		return GapMotionStatic, nil
	case "kalman":
		return GapMotionKalman, nil
	}
	return GapMotionStatic, errors.Wrapf(ErrInvalidSettings, "unknown gap motion model %q", name)
}

// segmentMotion predicts the position of a segment's particle a number of frames after its last spot
type segmentMotion interface {
	PredictAfter(frames int) Point
}

type staticMotion struct {
	last Point
}

func (motion staticMotion) PredictAfter(frames int) Point {
	return motion.last
}

// kalmanMotion replays the segment through a 2D Kalman filter and extrapolates the filtered state
type kalmanMotion struct {
	predictions []Point
}

// newKalmanMotion builds predictions for 1..maxFrames frames after the last spot
func newKalmanMotion(segment []*Spot, dt float64, maxFrames int) (*kalmanMotion, error) {
	first := segment[0]
	/* Kalman filter props */
	ux := 0.0
	uy := 0.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(first.Position.X, first.Position.Y))
	for i := 1; i < len(segment); i++ {
		for f := segment[i-1].Frame; f < segment[i].Frame; f++ {
			kf.Predict()
		}
		err := kf.Update(segment[i].Position.X, segment[i].Position.Y)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't update motion model with spot %d", segment[i].ID)
		}
	}
	motion := &kalmanMotion{
		predictions: make([]Point, maxFrames+1),
	}
	stateX, stateY := kf.GetState()
	motion.predictions[0] = NewPoint(stateX, stateY)
	for f := 1; f <= maxFrames; f++ {
		kf.Predict()
		stateX, stateY = kf.GetState()
		motion.predictions[f] = NewPoint(stateX, stateY)
	}
	return motion, nil
}

func (motion *kalmanMotion) PredictAfter(frames int) Point {
	if frames >= len(motion.predictions) {
		frames = len(motion.predictions) - 1
	}
	if frames < 0 {
		frames = 0
	}
	return motion.predictions[frames]
}
