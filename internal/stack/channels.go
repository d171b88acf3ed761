package stack

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/channel"
)

// isGray reports whether every pixel of img has equal red, green and blue components
func isGray(img image.Image) bool {
	switch src := img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	case *image.Paletted:
		for _, c := range src.Palette {
			r, g, b, _ := c.RGBA()
			if r != g || g != b {
				return false
			}
		}
		return true
	}
	return false
}

// grayValues returns intensities of a single-channel image in row-major order.
// 16-bit images keep their full range.
func grayValues(img image.Image) []float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	values := make([]float64, width*height)
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				values[y*width+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				values[y*width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				gray := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				values[y*width+x] = float64(gray.Y)
			}
		}
	}
	return values
}

// imageChannels splits a page into intensity planes: one for gray images, red, green and blue otherwise
func imageChannels(img image.Image) [][]float64 {
	if isGray(img) {
		return [][]float64{grayValues(img)}
	}
	return [][]float64{
		grayValues(channel.Extract(img, channel.Red)),
		grayValues(channel.Extract(img, channel.Green)),
		grayValues(channel.Extract(img, channel.Blue)),
	}
}
