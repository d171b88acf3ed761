package mot

import (
	"image"
	"math"
)

// Rectangle is an axis-aligned box in physical units
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// NewRectFrom converts pixel bounds to physical units. Max is exclusive as in image.Rectangle.
func NewRectFrom(rect image.Rectangle, pixelSize float64) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X) * pixelSize,
		Y:      float64(rect.Min.Y) * pixelSize,
		Width:  float64(rect.Dx()) * pixelSize,
		Height: float64(rect.Dy()) * pixelSize,
	}
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func NewPointFrom(point image.Point) Point {
	return Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

// Scale multiplies both coordinates by factor
func (p Point) Scale(factor float64) Point {
	return Point{X: p.X * factor, Y: p.Y * factor}
}

// IsFinite reports whether both coordinates are neither NaN nor infinite
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}
