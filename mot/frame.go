package mot

import (
	"github.com/pkg/errors"
)

// Calibration carries the physical scale of a stack
type Calibration struct {
	// Pixel width in space units (e.g. micrometers)
	PixelSize float64
	// Time between consecutive frames in time units (e.g. seconds)
	FrameInterval float64
	SpaceUnit     string
	TimeUnit      string
}

// DefaultCalibration is used when a stack carries no calibration at all
func DefaultCalibration() Calibration {
	return Calibration{
		PixelSize:     1.0,
		FrameInterval: 1.0,
		SpaceUnit:     "pixel",
		TimeUnit:      "frame",
	}
}

// Validate checks that both scalars are usable as divisors
func (cal Calibration) Validate() error {
	if !(cal.PixelSize > 0) || !isFinite(cal.PixelSize) {
		return errors.Wrapf(ErrInvalidSettings, "pixel size must be positive, got %v", cal.PixelSize)
	}
	if !(cal.FrameInterval > 0) || !isFinite(cal.FrameInterval) {
		return errors.Wrapf(ErrInvalidSettings, "frame interval must be positive, got %v", cal.FrameInterval)
	}
	return nil
}

// Frame is a single time point of a stack. Channels[c][y*Width+x] is the intensity of pixel (x, y) in channel c.
// Frames are immutable once handed to the pipeline.
type Frame struct {
	Index    int
	Width    int
	Height   int
	Channels [][]float64
}

// NewFrame creates a frame with numChannels zero-filled channels
func NewFrame(index, width, height, numChannels int) Frame {
	channels := make([][]float64, numChannels)
	for c := range channels {
		channels[c] = make([]float64, width*height)
	}
	return Frame{
		Index:    index,
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// NumChannels returns number of channels in frame
func (frame Frame) NumChannels() int {
	return len(frame.Channels)
}

// At returns intensity of pixel (x, y) in zero-based channel c
func (frame Frame) At(c, x, y int) float64 {
	return frame.Channels[c][y*frame.Width+x]
}

// Set sets intensity of pixel (x, y) in zero-based channel c
func (frame Frame) Set(c, x, y int, value float64) {
	frame.Channels[c][y*frame.Width+x] = value
}

// Validate checks frame geometry
func (frame Frame) Validate() error {
	if frame.Width <= 0 || frame.Height <= 0 {
		return errors.Wrapf(ErrMalformedFrame, "frame %d: bad dimensions %dx%d", frame.Index, frame.Width, frame.Height)
	}
	if len(frame.Channels) == 0 {
		return errors.Wrapf(ErrMalformedFrame, "frame %d: no channels", frame.Index)
	}
	for c, data := range frame.Channels {
		if len(data) != frame.Width*frame.Height {
			return errors.Wrapf(ErrMalformedFrame, "frame %d: channel %d has %d values, expected %d", frame.Index, c+1, len(data), frame.Width*frame.Height)
		}
	}
	return nil
}

// validateFrameSequence checks every frame and the strict ordering of indices
func validateFrameSequence(frames []Frame) error {
	for i := range frames {
		if err := frames[i].Validate(); err != nil {
			return err
		}
		if i > 0 && frames[i].Index <= frames[i-1].Index {
			return errors.Wrapf(ErrMalformedFrame, "frame %d: index is not greater than previous index %d", frames[i].Index, frames[i-1].Index)
		}
	}
	return nil
}
