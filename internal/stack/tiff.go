package stack

import (
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/LdDl/spotmate/mot"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

const (
	tagImageDescription = 270
	tagXResolution      = 282

	typeASCII    = 2
	typeRational = 5

	// Upper bound on pages to walk. Guards against cyclic IFD chains.
	maxPages = 1 << 20
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	// Offset of the value field inside file
	valuePos int64
}

// tiffFile walks the IFD chain of an in-memory classic TIFF file
type tiffFile struct {
	data  []byte
	order binary.ByteOrder
}

func newTIFFFile(data []byte) (*tiffFile, error) {
	if len(data) < 8 {
		return nil, errors.Wrap(ErrOpenFailed, "tiff: file is too short")
	}
	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errors.Wrap(ErrOpenFailed, "tiff: bad byte order mark")
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, errors.Wrap(ErrOpenFailed, "tiff: bad magic number (BigTIFF is not supported)")
	}
	return &tiffFile{data: data, order: order}, nil
}

// offsets returns positions of every IFD in chain order
func (f *tiffFile) offsets() ([]uint32, error) {
	ans := make([]uint32, 0)
	seen := make(map[uint32]struct{})
	offset := f.order.Uint32(f.data[4:8])
	for offset != 0 {
		if _, ok := seen[offset]; ok || len(ans) >= maxPages {
			return nil, errors.Wrapf(ErrOpenFailed, "tiff: IFD chain loops at offset %d", offset)
		}
		seen[offset] = struct{}{}
		pos := int64(offset)
		if pos+2 > int64(len(f.data)) {
			return nil, errors.Wrapf(ErrOpenFailed, "tiff: IFD offset %d is out of file", offset)
		}
		n := int64(f.order.Uint16(f.data[pos : pos+2]))
		next := pos + 2 + 12*n
		if next+4 > int64(len(f.data)) {
			return nil, errors.Wrapf(ErrOpenFailed, "tiff: IFD at offset %d is truncated", offset)
		}
		ans = append(ans, offset)
		offset = f.order.Uint32(f.data[next : next+4])
	}
	return ans, nil
}

func (f *tiffFile) entries(offset uint32) []ifdEntry {
	pos := int64(offset)
	n := int(f.order.Uint16(f.data[pos : pos+2]))
	ans := make([]ifdEntry, 0, n)
	for i := 0; i < n; i++ {
		p := pos + 2 + 12*int64(i)
		ans = append(ans, ifdEntry{
			tag:      f.order.Uint16(f.data[p : p+2]),
			typ:      f.order.Uint16(f.data[p+2 : p+4]),
			count:    f.order.Uint32(f.data[p+4 : p+8]),
			valuePos: p + 8,
		})
	}
	return ans
}

// value returns raw bytes of entry value, following the offset when it does not fit into 4 bytes
func (f *tiffFile) value(e ifdEntry, size int64) ([]byte, bool) {
	total := size * int64(e.count)
	start := e.valuePos
	if total > 4 {
		start = int64(f.order.Uint32(f.data[e.valuePos : e.valuePos+4]))
	}
	if start < 0 || start+total > int64(len(f.data)) {
		return nil, false
	}
	return f.data[start : start+total], true
}

func (f *tiffFile) description(offset uint32) string {
	for _, e := range f.entries(offset) {
		if e.tag != tagImageDescription || e.typ != typeASCII {
			continue
		}
		raw, ok := f.value(e, 1)
		if !ok {
			return ""
		}
		return strings.TrimRight(string(raw), "\x00")
	}
	return ""
}

func (f *tiffFile) xResolution(offset uint32) float64 {
	for _, e := range f.entries(offset) {
		if e.tag != tagXResolution || e.typ != typeRational || e.count < 1 {
			continue
		}
		raw, ok := f.value(e, 8)
		if !ok {
			return 0
		}
		num := f.order.Uint32(raw[0:4])
		den := f.order.Uint32(raw[4:8])
		if den == 0 {
			return 0
		}
		return float64(num) / float64(den)
	}
	return 0
}

// page decodes IFD at offset. x/image/tiff reads the first IFD only, so the header is re-pointed.
func (f *tiffFile) page(offset uint32) *pageReader {
	reader := &pageReader{data: f.data}
	copy(reader.header[:], f.data[:8])
	f.order.PutUint32(reader.header[4:8], offset)
	return reader
}

// pageReader serves file bytes with a patched 8-byte header
type pageReader struct {
	data   []byte
	header [8]byte
	pos    int64
}

func (r *pageReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("tiff: negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	for i := 0; i < n; i++ {
		if at := off + int64(i); at < int64(len(r.header)) {
			p[i] = r.header[at]
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *pageReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}

// imageJInfo is the subset of ImageJ hyperstack metadata that shapes frames
type imageJInfo struct {
	channels int
	slices   int
	frames   int
	interval float64
	unit     string
	timeUnit string
	isImageJ bool
}

func parseImageJ(description string) imageJInfo {
	info := imageJInfo{channels: 1, slices: 1, frames: 1}
	if !strings.HasPrefix(description, "ImageJ=") {
		return info
	}
	info.isImageJ = true
	for _, line := range strings.Split(description, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "channels":
			info.channels = atoiOr(value, 1)
		case "slices":
			info.slices = atoiOr(value, 1)
		case "frames":
			info.frames = atoiOr(value, 1)
		case "finterval":
			if v, err := strconv.ParseFloat(value, 64); err == nil && v > 0 && !math.IsInf(v, 0) {
				info.interval = v
			}
		case "unit":
			info.unit = unescapeUnit(value)
		case "tunit":
			info.timeUnit = unescapeUnit(value)
		}
	}
	return info
}

func atoiOr(value string, fallback int) int {
	v, err := strconv.Atoi(value)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

// unescapeUnit decodes ImageJ's µ escapes
func unescapeUnit(value string) string {
	if unquoted, err := strconv.Unquote(`"` + value + `"`); err == nil {
		return unquoted
	}
	return value
}

func decodeTIFF(data []byte) (*Stack, error) {
	file, err := newTIFFFile(data)
	if err != nil {
		return nil, err
	}
	offsets, err := file.offsets()
	if err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return &Stack{Calibration: mot.DefaultCalibration()}, nil
	}

	planes := make([][]float64, 0, len(offsets))
	width, height, planesPerPage := 0, 0, 1
	for i, offset := range offsets {
		img, err := tiff.Decode(file.page(offset))
		if err != nil {
			return nil, errors.Wrapf(ErrOpenFailed, "tiff: page %d: %v", i, err)
		}
		bounds := img.Bounds()
		pagePlanes := imageChannels(img)
		if i == 0 {
			width, height, planesPerPage = bounds.Dx(), bounds.Dy(), len(pagePlanes)
		} else if len(pagePlanes) != planesPerPage {
			return nil, errors.Wrapf(ErrOpenFailed, "tiff: page %d mixes gray and colour pages", i)
		} else if bounds.Dx() != width || bounds.Dy() != height {
			return nil, errors.Wrapf(ErrOpenFailed, "tiff: page %d is %dx%d, first page is %dx%d", i, bounds.Dx(), bounds.Dy(), width, height)
		}
		planes = append(planes, pagePlanes...)
	}

	info := parseImageJ(file.description(offsets[0]))
	cal := mot.DefaultCalibration()
	if info.isImageJ {
		if xres := file.xResolution(offsets[0]); xres > 0 && info.unit != "" && info.unit != "pixel" {
			cal.PixelSize = 1.0 / xres
			cal.SpaceUnit = info.unit
		}
		if info.interval > 0 {
			cal.FrameInterval = info.interval
			cal.TimeUnit = "sec"
			if info.timeUnit != "" {
				cal.TimeUnit = info.timeUnit
			}
		}
	}
	if planesPerPage > 1 {
		// Colour pages carry their own channels
		info = imageJInfo{channels: planesPerPage, slices: 1, frames: len(offsets), isImageJ: true}
	}
	frames, err := groupPlanes(planes, width, height, info)
	if err != nil {
		return nil, err
	}
	return &Stack{Frames: frames, Calibration: cal}, nil
}

// groupPlanes turns planes into frames. ImageJ orders planes channel first, then slice, then frame.
// Only the first slice of every time point is used.
// A stack with slices but a single frame is treated as a time series, as ImageJ does when dimensions are swapped.
func groupPlanes(planes [][]float64, width, height int, info imageJInfo) ([]mot.Frame, error) {
	channels, slices, frames := info.channels, info.slices, info.frames
	if !info.isImageJ || channels*slices*frames != len(planes) {
		// Plain multi-page file or inconsistent metadata: every plane is a frame
		channels, slices, frames = 1, 1, len(planes)
		if info.isImageJ && info.channels > 1 && len(planes)%info.channels == 0 {
			channels, frames = info.channels, len(planes)/info.channels
		}
	}
	if frames == 1 && slices > 1 {
		frames, slices = slices, 1
	}
	ans := make([]mot.Frame, 0, frames)
	for t := 0; t < frames; t++ {
		frame := mot.Frame{
			Index:    t,
			Width:    width,
			Height:   height,
			Channels: make([][]float64, 0, channels),
		}
		for c := 0; c < channels; c++ {
			idx := t*slices*channels + c
			if idx >= len(planes) {
				return nil, errors.Wrapf(ErrOpenFailed, "tiff: plane %d is missing", idx)
			}
			frame.Channels = append(frame.Channels, planes[idx])
		}
		ans = append(ans, frame)
	}
	return ans, nil
}
