// Package stack reads microscopy image stacks into frames.
package stack

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/LdDl/spotmate/mot"
	"github.com/pkg/errors"
)

var (
	ErrOpenFailed        = errors.New("can't open stack")
	ErrNoFrames          = errors.New("stack has no frames")
	ErrUnsupportedFormat = errors.New("unsupported stack format")
)

// Stack is an ordered sequence of frames with the calibration found in the file
type Stack struct {
	// File name without directory
	Name        string
	Path        string
	Frames      []mot.Frame
	Calibration mot.Calibration
	NumChannels int
}

// BaseName returns file name without extension
func (s *Stack) BaseName() string {
	return strings.TrimSuffix(s.Name, filepath.Ext(s.Name))
}

var extensions = map[string]struct{}{
	".tif":  {},
	".tiff": {},
	".gif":  {},
}

// IsStack reports whether file name has a recognized stack extension
func IsStack(name string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Open reads every frame of a stack file
func Open(path string) (*Stack, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := extensions[ext]; !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrOpenFailed, "%v", err)
	}
	var stack *Stack
	switch ext {
	case ".gif":
		stack, err = decodeGIF(data)
	default:
		stack, err = decodeTIFF(data)
	}
	if err != nil {
		return nil, err
	}
	if len(stack.Frames) == 0 {
		return nil, errors.Wrapf(ErrNoFrames, "%q", filepath.Base(path))
	}
	stack.Name = filepath.Base(path)
	stack.Path = path
	stack.NumChannels = stack.Frames[0].NumChannels()
	return stack, nil
}
