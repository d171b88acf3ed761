package mot

import (
	"image"
	"math"
)

// Clockwise neighbourhood in image coordinates (y grows downwards)
var mooreDirections = [8]image.Point{
	{X: 1, Y: 0},
	{X: 1, Y: 1},
	{X: 0, Y: 1},
	{X: -1, Y: 1},
	{X: -1, Y: 0},
	{X: -1, Y: -1},
	{X: 0, Y: -1},
	{X: 1, Y: -1},
}

func mooreDirection(d image.Point) int {
	for i, dir := range mooreDirections {
		if dir == d {
			return i
		}
	}
	return -1
}

// traceContour walks the outer boundary of the component containing start with Moore-neighbour tracing.
// start must be the first pixel of the component in raster order, so its west and northern neighbours are background.
// inside reports membership of the component. Tracing stops when start is about to be left towards the same pixel as on the first step.
func traceContour(start image.Point, inside func(p image.Point) bool, pixelCount int) []image.Point {
	contour := []image.Point{start}
	current := start
	// Backtrack cell: west of start
	backtrack := 4
	var second image.Point
	limit := 4*pixelCount + 8
	for step := 0; step < limit; step++ {
		next, nextBacktrack, ok := mooreStep(current, backtrack, inside)
		if !ok {
			// Isolated pixel
			return contour
		}
		if step == 0 {
			second = next
		} else if current == start && next == second {
			break
		}
		if next != start {
			contour = append(contour, next)
		}
		current = next
		backtrack = nextBacktrack
	}
	return contour
}

// mooreStep scans neighbours of current clockwise starting after the backtrack direction
func mooreStep(current image.Point, backtrack int, inside func(p image.Point) bool) (image.Point, int, bool) {
	for k := 1; k <= 8; k++ {
		nd := (backtrack + k) % 8
		candidate := current.Add(mooreDirections[nd])
		if !inside(candidate) {
			continue
		}
		prev := current.Add(mooreDirections[(nd+7)%8])
		return candidate, mooreDirection(prev.Sub(candidate)), true
	}
	return image.Point{}, 0, false
}

// simplifyClosed applies Ramer-Douglas-Peucker to a closed polygon
func simplifyClosed(points []Point, tolerance float64) []Point {
	if len(points) < 4 || tolerance <= 0 {
		return points
	}
	// Split at the vertex farthest from the first one so both chains are open
	far := 0
	farDist := -1.0
	for i := 1; i < len(points); i++ {
		d := euclideanDistance(points[0], points[i])
		if d > farDist {
			farDist = d
			far = i
		}
	}
	first := simplifyOpen(points[:far+1], tolerance)
	closing := append(append([]Point{}, points[far:]...), points[0])
	second := simplifyOpen(closing, tolerance)
	ans := make([]Point, 0, len(first)+len(second))
	ans = append(ans, first...)
	// Drop the shared split vertex and the repeated first point
	ans = append(ans, second[1:len(second)-1]...)
	return ans
}

func simplifyOpen(points []Point, tolerance float64) []Point {
	if len(points) < 3 {
		return points
	}
	a, b := points[0], points[len(points)-1]
	idx := -1
	maxDist := tolerance
	for i := 1; i < len(points)-1; i++ {
		d := segmentDistance(points[i], a, b)
		if d > maxDist {
			maxDist = d
			idx = i
		}
	}
	if idx < 0 {
		return []Point{a, b}
	}
	left := simplifyOpen(points[:idx+1], tolerance)
	right := simplifyOpen(points[idx:], tolerance)
	return append(left[:len(left)-1:len(left)-1], right...)
}

// segmentDistance returns distance from p to segment [a, b]
func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return euclideanDistance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lengthSq
	t = maxFloat64(0, minFloat64(1, t))
	return euclideanDistance(p, Point{X: a.X + t*dx, Y: a.Y + t*dy})
}

// polygonPerimeter returns length of the closed polygon
func polygonPerimeter(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	perimeter := 0.0
	for i := range points {
		perimeter += euclideanDistance(points[i], points[(i+1)%len(points)])
	}
	return perimeter
}

// polygonArea returns absolute shoelace area of the closed polygon
func polygonArea(points []Point) float64 {
	if len(points) < 3 {
		return 0
	}
	sum := 0.0
	for i := range points {
		j := (i + 1) % len(points)
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return math.Abs(sum) / 2.0
}
