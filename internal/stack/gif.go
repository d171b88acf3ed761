package stack

import (
	"bytes"
	"image"
	"image/draw"
	"image/gif"

	"github.com/LdDl/spotmate/mot"
	"github.com/pkg/errors"
)

// decodeGIF composes animation frames onto the logical screen. GIF carries no calibration.
func decodeGIF(data []byte) (*Stack, error) {
	anim, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrOpenFailed, "gif: %v", err)
	}
	stack := &Stack{
		Frames:      make([]mot.Frame, 0, len(anim.Image)),
		Calibration: mot.DefaultCalibration(),
	}
	if len(anim.Image) == 0 {
		return stack, nil
	}
	screen := image.Rect(0, 0, anim.Config.Width, anim.Config.Height)
	if screen.Empty() {
		screen = anim.Image[0].Bounds()
	}
	// Frames are drawn over the previous ones; disposal methods are not honoured
	canvas := image.NewRGBA(screen)
	gray := true
	for _, img := range anim.Image {
		gray = gray && isGray(img)
	}
	for i, img := range anim.Image {
		draw.Draw(canvas, img.Bounds(), img, img.Bounds().Min, draw.Over)
		var channels [][]float64
		if gray {
			channels = [][]float64{grayValues(canvas)}
		} else {
			channels = imageChannels(canvas)
		}
		stack.Frames = append(stack.Frames, mot.Frame{
			Index:    i,
			Width:    screen.Dx(),
			Height:   screen.Dy(),
			Channels: channels,
		})
	}
	return stack, nil
}
