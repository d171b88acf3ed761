package stack

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

const eps = 0.00001

type tiffPage struct {
	width, height int
	pixels        []uint8
}

func constPage(width, height int, value uint8) tiffPage {
	pixels := make([]uint8, width*height)
	for i := range pixels {
		pixels[i] = value
	}
	return tiffPage{width: width, height: height, pixels: pixels}
}

// writeMultiPageTIFF writes uncompressed 8-bit gray pages. Description and resolution go to the first IFD.
func writeMultiPageTIFF(t *testing.T, path string, pages []tiffPage, description string, xres [2]uint32) {
	t.Helper()
	le := binary.LittleEndian
	buf := &bytes.Buffer{}
	buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})
	nextPtr := 4
	u16 := func(v uint16) []byte { b := make([]byte, 2); le.PutUint16(b, v); return b }
	u32 := func(v uint32) []byte { b := make([]byte, 4); le.PutUint32(b, v); return b }
	for i, page := range pages {
		dataOffset := uint32(buf.Len())
		buf.Write(page.pixels)
		type entry struct {
			tag, typ uint16
			count    uint32
			value    []byte
		}
		entries := []entry{
			{256, 3, 1, append(u16(uint16(page.width)), 0, 0)},
			{257, 3, 1, append(u16(uint16(page.height)), 0, 0)},
			{258, 3, 1, append(u16(8), 0, 0)},
			{259, 3, 1, append(u16(1), 0, 0)},
			{262, 3, 1, append(u16(1), 0, 0)},
		}
		if i == 0 && description != "" {
			text := append([]byte(description), 0)
			offset := uint32(buf.Len())
			buf.Write(text)
			entries = append(entries, entry{270, 2, uint32(len(text)), u32(offset)})
		}
		entries = append(entries,
			entry{273, 4, 1, u32(dataOffset)},
			entry{277, 3, 1, append(u16(1), 0, 0)},
			entry{278, 3, 1, append(u16(uint16(page.height)), 0, 0)},
			entry{279, 4, 1, u32(uint32(len(page.pixels)))},
		)
		if i == 0 && xres[1] != 0 {
			offset := uint32(buf.Len())
			buf.Write(u32(xres[0]))
			buf.Write(u32(xres[1]))
			entries = append(entries, entry{282, 5, 1, u32(offset)}, entry{296, 3, 1, append(u16(1), 0, 0)})
		}
		if buf.Len()%2 == 1 {
			buf.WriteByte(0)
		}
		ifdOffset := uint32(buf.Len())
		data := buf.Bytes()
		le.PutUint32(data[nextPtr:nextPtr+4], ifdOffset)
		buf.Write(u16(uint16(len(entries))))
		for _, e := range entries {
			buf.Write(u16(e.tag))
			buf.Write(u16(e.typ))
			buf.Write(u32(e.count))
			buf.Write(e.value)
		}
		nextPtr = buf.Len()
		buf.Write(u32(0))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOpenImageJHyperstack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cells.tif")
	pages := make([]tiffPage, 0, 6)
	for k := 0; k < 6; k++ {
		pages = append(pages, constPage(4, 3, uint8(k*10)))
	}
	description := "ImageJ=1.53t\nimages=6\nchannels=2\nframes=3\nhyperstack=true\nunit=\\u00B5m\nfinterval=0.5\n"
	writeMultiPageTIFF(t, path, pages, description, [2]uint32{4, 1})

	stack, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if stack.Name != "cells.tif" || stack.BaseName() != "cells" {
		t.Errorf("Wrong names: %q %q", stack.Name, stack.BaseName())
	}
	if len(stack.Frames) != 3 || stack.NumChannels != 2 {
		t.Fatalf("Expected 3 frames of 2 channels, got %d frames of %d", len(stack.Frames), stack.NumChannels)
	}
	for ti, frame := range stack.Frames {
		if frame.Index != ti || frame.Width != 4 || frame.Height != 3 {
			t.Errorf("Frame %d: wrong geometry %+v", ti, frame)
		}
		for c := 0; c < 2; c++ {
			want := float64((2*ti + c) * 10)
			if got := frame.At(c, 3, 2); got != want {
				t.Errorf("Frame %d channel %d: expected %v, got %v", ti, c, want, got)
			}
		}
	}
	cal := stack.Calibration
	if math.Abs(cal.PixelSize-0.25) > eps || math.Abs(cal.FrameInterval-0.5) > eps {
		t.Errorf("Wrong calibration: %+v", cal)
	}
	if cal.SpaceUnit != "µm" {
		t.Errorf("Wrong space unit: %q", cal.SpaceUnit)
	}
}

func TestOpenPlainMultiPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.TIF")
	writeMultiPageTIFF(t, path, []tiffPage{constPage(2, 2, 1), constPage(2, 2, 2), constPage(2, 2, 3)}, "", [2]uint32{})
	stack, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(stack.Frames) != 3 || stack.NumChannels != 1 {
		t.Fatalf("Expected 3 single-channel frames, got %d of %d", len(stack.Frames), stack.NumChannels)
	}
	for i, frame := range stack.Frames {
		if frame.At(0, 1, 1) != float64(i+1) {
			t.Errorf("Frame %d: wrong value %v", i, frame.At(0, 1, 1))
		}
	}
	if stack.Calibration.PixelSize != 1 || stack.Calibration.FrameInterval != 1 {
		t.Errorf("Uncalibrated stack must fall back to 1.0: %+v", stack.Calibration)
	}
}

func TestOpenSwappedSlices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zstack.tif")
	writeMultiPageTIFF(t, path, []tiffPage{constPage(2, 2, 1), constPage(2, 2, 2), constPage(2, 2, 3)}, "ImageJ=1.53t\nimages=3\nslices=3\n", [2]uint32{})
	stack, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(stack.Frames) != 3 {
		t.Errorf("Slices of a single time point must become frames, got %d frames", len(stack.Frames))
	}
}

func TestOpenEncodedTIFF(t *testing.T) {
	dir := t.TempDir()

	gray := image.NewGray16(image.Rect(0, 0, 3, 2))
	gray.SetGray16(1, 1, color.Gray16{Y: 1000})
	grayPath := filepath.Join(dir, "gray16.tiff")
	writeEncoded(t, grayPath, gray)
	stack, err := Open(grayPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(stack.Frames) != 1 || stack.NumChannels != 1 {
		t.Fatalf("Expected one single-channel frame, got %d of %d", len(stack.Frames), stack.NumChannels)
	}
	if got := stack.Frames[0].At(0, 1, 1); got != 1000 {
		t.Errorf("16-bit intensity must keep its range, got %v", got)
	}

	rgb := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgb.Set(0, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	rgbPath := filepath.Join(dir, "rgb.tif")
	writeEncoded(t, rgbPath, rgb)
	stack, err = Open(rgbPath)
	if err != nil {
		t.Fatal(err)
	}
	if stack.NumChannels != 3 {
		t.Fatalf("Expected 3 channels, got %d", stack.NumChannels)
	}
	for c, want := range []float64{200, 100, 50} {
		if got := stack.Frames[0].At(c, 0, 1); got != want {
			t.Errorf("Channel %d: expected %v, got %v", c+1, want, got)
		}
	}
}

func writeEncoded(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func writeGIF(t *testing.T, path string, palette color.Palette, indices ...uint8) {
	t.Helper()
	anim := &gif.GIF{}
	for _, index := range indices {
		frame := image.NewPaletted(image.Rect(0, 0, 3, 3), palette)
		frame.SetColorIndex(1, 1, index)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, anim); err != nil {
		t.Fatal(err)
	}
}

func TestOpenGIF(t *testing.T) {
	dir := t.TempDir()
	grayPath := filepath.Join(dir, "gray.gif")
	writeGIF(t, grayPath, color.Palette{color.Gray{Y: 0}, color.Gray{Y: 120}, color.Gray{Y: 240}}, 1, 2)
	stack, err := Open(grayPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(stack.Frames) != 2 || stack.NumChannels != 1 {
		t.Fatalf("Expected 2 single-channel frames, got %d of %d", len(stack.Frames), stack.NumChannels)
	}
	if stack.Frames[0].At(0, 1, 1) != 120 || stack.Frames[1].At(0, 1, 1) != 240 {
		t.Errorf("Wrong intensities: %v %v", stack.Frames[0].At(0, 1, 1), stack.Frames[1].At(0, 1, 1))
	}

	colourPath := filepath.Join(dir, "colour.gif")
	writeGIF(t, colourPath, color.Palette{color.RGBA{A: 255}, color.RGBA{R: 255, A: 255}}, 1)
	stack, err = Open(colourPath)
	if err != nil {
		t.Fatal(err)
	}
	if stack.NumChannels != 3 {
		t.Fatalf("Expected 3 channels, got %d", stack.NumChannels)
	}
	if stack.Frames[0].At(0, 1, 1) != 255 || stack.Frames[0].At(1, 1, 1) != 0 {
		t.Errorf("Wrong colour split: red %v green %v", stack.Frames[0].At(0, 1, 1), stack.Frames[0].At(1, 1, 1))
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(filepath.Join(dir, "notes.txt")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := Open(filepath.Join(dir, "absent.tif")); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Expected ErrOpenFailed for missing file, got %v", err)
	}
	garbage := filepath.Join(dir, "garbage.tif")
	if err := os.WriteFile(garbage, []byte("definitely not a tiff file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(garbage); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Expected ErrOpenFailed for garbage, got %v", err)
	}
	empty := filepath.Join(dir, "empty.tif")
	if err := os.WriteFile(empty, []byte{'I', 'I', 42, 0, 0, 0, 0, 0}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(empty); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Expected ErrNoFrames, got %v", err)
	}
}

func TestIsStack(t *testing.T) {
	cases := map[string]bool{
		"a.tif":        true,
		"b.TIFF":       true,
		"c.gif":        true,
		"d.png":        false,
		"e.tif.csv":    false,
		"no_extension": false,
	}
	for name, want := range cases {
		if got := IsStack(name); got != want {
			t.Errorf("IsStack(%q): expected %v, got %v", name, want, got)
		}
	}
}

func TestParseImageJ(t *testing.T) {
	info := parseImageJ("ImageJ=1.54f\nchannels=3\nslices=2\nframes=7\nfinterval=0.25\ntunit=min\nunit=micron\n")
	expected := imageJInfo{channels: 3, slices: 2, frames: 7, interval: 0.25, unit: "micron", timeUnit: "min", isImageJ: true}
	if info != expected {
		t.Errorf("Expected %+v, got %+v", expected, info)
	}
	if parseImageJ("Scanner software v2").isImageJ {
		t.Error("Foreign description must not be taken for ImageJ metadata")
	}
}
