package export

import (
	"image"
	"image/color"
	"math"
	"path/filepath"

	"github.com/LdDl/spotmate/internal/stack"
	"github.com/LdDl/spotmate/mot"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

const goldenAngle = 137.50776405003785

// PNGRenderer draws visible tracks over the maximum-intensity projection of one channel.
// Output goes to <Dir>/<base>_tracks.png, next to the stack when Dir is empty.
type PNGRenderer struct {
	Dir string
	// 1-based channel used for the background
	Channel int
	// Output pixels per image pixel
	Scale int
}

// NewPNGRenderer creates renderer with 4x upscaling
func NewPNGRenderer(dir string, channel int) *PNGRenderer {
	return &PNGRenderer{
		Dir:     dir,
		Channel: channel,
		Scale:   4,
	}
}

// Output returns path Render writes to
func (renderer *PNGRenderer) Output(s *stack.Stack) string {
	dir := renderer.Dir
	if dir == "" {
		dir = filepath.Dir(s.Path)
	}
	return filepath.Join(dir, s.BaseName()+"_tracks.png")
}

// Render implements Renderer
func (renderer *PNGRenderer) Render(s *stack.Stack, model *mot.Model) error {
	if len(s.Frames) == 0 {
		return errors.Wrap(stack.ErrNoFrames, "nothing to render")
	}
	scale := renderer.Scale
	if scale < 1 {
		scale = 1
	}
	background, err := maxProjection(s.Frames, renderer.Channel-1)
	if err != nil {
		return err
	}
	canvas := imaging.Resize(background, background.Bounds().Dx()*scale, background.Bounds().Dy()*scale, imaging.NearestNeighbor)

	toPixel := func(p mot.Point) image.Point {
		return image.Point{
			X: int(math.Round(p.X/model.Calibration.PixelSize*float64(scale))) + scale/2,
			Y: int(math.Round(p.Y/model.Calibration.PixelSize*float64(scale))) + scale/2,
		}
	}
	for _, track := range model.VisibleTracks() {
		c := trackColor(track.ID)
		for i := 1; i < track.Len(); i++ {
			drawLine(canvas, toPixel(track.Spots[i-1].Position), toPixel(track.Spots[i].Position), c)
		}
	}
	path := renderer.Output(s)
	if err := imaging.Save(canvas, path); err != nil {
		return errors.Wrapf(err, "can't save %q", path)
	}
	return nil
}

// trackColor spreads hues by the golden angle so neighbouring identifiers differ
func trackColor(trackID int) color.NRGBA {
	hue := math.Mod(float64(trackID)*goldenAngle, 360)
	r, g, b := colorful.Hsv(hue, 0.85, 1.0).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// maxProjection returns per-pixel maximum over frames, stretched to the 8-bit range
func maxProjection(frames []mot.Frame, c int) (*image.NRGBA, error) {
	width, height := frames[0].Width, frames[0].Height
	if c < 0 || c >= frames[0].NumChannels() {
		return nil, errors.Wrapf(mot.ErrInvalidSettings, "render channel %d is out of range", c+1)
	}
	projection := make([]float64, width*height)
	copy(projection, frames[0].Channels[c])
	for _, frame := range frames[1:] {
		for i, v := range frame.Channels[c] {
			if v > projection[i] {
				projection[i] = v
			}
		}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range projection {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	img := imaging.New(width, height, color.Black)
	for i, v := range projection {
		level := uint8(0)
		if hi > lo {
			level = uint8(math.Round((v - lo) / (hi - lo) * 255))
		}
		img.SetNRGBA(i%width, i/width, color.NRGBA{R: level, G: level, B: level, A: 255})
	}
	return img, nil
}

// drawLine rasterizes segment with Bresenham's algorithm
func drawLine(img *image.NRGBA, from, to image.Point, c color.NRGBA) {
	dx := absInt(to.X - from.X)
	dy := -absInt(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}
	err := dx + dy
	x, y := from.X, from.Y
	bounds := img.Bounds()
	for {
		if (image.Point{X: x, Y: y}).In(bounds) {
			img.SetNRGBA(x, y, c)
		}
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
