package mot

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ThresholdDetector segments a frame into 8-connected regions of pixels with intensity >= Threshold.
// Pixels exactly at the threshold belong to spots.
type ThresholdDetector struct {
	// 1-based channel used for detection
	Channel   int
	Threshold float64
	// Simplify traced contours with Ramer-Douglas-Peucker
	SimplifyContours bool
	// Simplification tolerance in pixels
	ContourTolerance float64
}

// NewThresholdDetectorDefault creates detector on first channel with threshold 1.0
func NewThresholdDetectorDefault() ThresholdDetector {
	return ThresholdDetector{
		Channel:          1,
		Threshold:        1.0,
		SimplifyContours: true,
		ContourTolerance: 0.5,
	}
}

// Validate checks detector parameters which do not depend on a particular stack
func (detector ThresholdDetector) Validate() error {
	if detector.Channel < 1 {
		return errors.Wrapf(ErrInvalidSettings, "target channel must be >= 1, got %d", detector.Channel)
	}
	if !isFinite(detector.Threshold) {
		return errors.Wrapf(ErrInvalidSettings, "intensity threshold must be finite, got %v", detector.Threshold)
	}
	if detector.ContourTolerance < 0 || !isFinite(detector.ContourTolerance) {
		return errors.Wrapf(ErrInvalidSettings, "contour tolerance must be >= 0, got %v", detector.ContourTolerance)
	}
	return nil
}

// Detect returns spots of frame in order of their first pixel in raster order.
// Spot identifiers are left zero: they are assigned by the caller once every frame is detected.
func (detector ThresholdDetector) Detect(frame Frame, cal Calibration) ([]*Spot, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if detector.Channel > frame.NumChannels() {
		return nil, errors.Wrapf(ErrInvalidSettings, "target channel %d is out of range, frame %d has %d channel(s)", detector.Channel, frame.Index, frame.NumChannels())
	}
	data := frame.Channels[detector.Channel-1]
	width, height := frame.Width, frame.Height

	mask := make([]bool, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := frame.At(detector.Channel-1, x, y)
			if !isFinite(v) {
				return nil, errors.Wrapf(ErrMalformedFrame, "frame %d: non-finite intensity %v at (%d, %d)", frame.Index, v, x, y)
			}
			mask[y*width+x] = v >= detector.Threshold
		}
	}

	labels := make([]int, len(data))
	spots := make([]*Spot, 0)
	queue := make([]int, 0, 64)
	nextLabel := 1
	for idx := range mask {
		if !mask[idx] || labels[idx] != 0 {
			continue
		}
		label := nextLabel
		nextLabel++
		labels[idx] = label
		queue = append(queue[:0], idx)
		pixels := make([]int, 0, 16)
		for len(queue) > 0 {
			p := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			pixels = append(pixels, p)
			px, py := p%width, p/width
			for _, dir := range mooreDirections {
				nx, ny := px+dir.X, py+dir.Y
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				n := ny*width + nx
				if mask[n] && labels[n] == 0 {
					labels[n] = label
					queue = append(queue, n)
				}
			}
		}
		inside := func(pt image.Point) bool {
			if pt.X < 0 || pt.Y < 0 || pt.X >= width || pt.Y >= height {
				return false
			}
			return labels[pt.Y*width+pt.X] == label
		}
		start := image.Point{X: idx % width, Y: idx / width}
		spots = append(spots, detector.measure(frame.Index, data, width, pixels, start, inside, cal))
	}
	return spots, nil
}

// measure computes spot features from member pixels and the traced contour
func (detector ThresholdDetector) measure(frameIndex int, data []float64, width int, pixels []int, start image.Point, inside func(image.Point) bool, cal Calibration) *Spot {
	values := make([]float64, len(pixels))
	sumX, sumY := 0.0, 0.0
	bounds := image.Rect(start.X, start.Y, start.X+1, start.Y+1)
	for i, p := range pixels {
		x, y := p%width, p/width
		values[i] = data[p]
		sumX += float64(x)
		sumY += float64(y)
		bounds = bounds.Union(image.Rect(x, y, x+1, y+1))
	}
	n := float64(len(pixels))
	area := n * cal.PixelSize * cal.PixelSize

	traced := traceContour(start, inside, len(pixels))
	contourPx := make([]Point, len(traced))
	for i, pt := range traced {
		contourPx[i] = NewPointFrom(pt)
	}
	if detector.SimplifyContours {
		contourPx = simplifyClosed(contourPx, detector.ContourTolerance)
	}
	contour := make([]Point, len(contourPx))
	for i, pt := range contourPx {
		contour[i] = pt.Scale(cal.PixelSize)
	}
	perimeter := polygonPerimeter(contour)
	circularity := 0.0
	if perimeter > 0 {
		circularity = minFloat64(1.0, 4*math.Pi*polygonArea(contour)/(perimeter*perimeter))
	}

	return &Spot{
		Frame:          frameIndex,
		Position:       NewPoint(sumX/n, sumY/n).Scale(cal.PixelSize),
		BBox:           NewRectFrom(bounds, cal.PixelSize),
		Contour:        contour,
		PixelCount:     len(pixels),
		Area:           area,
		Perimeter:      perimeter,
		Circularity:    circularity,
		Radius:         math.Sqrt(area / math.Pi),
		Quality:        n,
		MeanIntensity:  stat.Mean(values, nil),
		TotalIntensity: floats.Sum(values),
		MaxIntensity:   floats.Max(values),
		MinIntensity:   floats.Min(values),
	}
}
