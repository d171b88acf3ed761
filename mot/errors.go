package mot

import "github.com/pkg/errors"

var (
	// ErrInvalidSettings is returned when pipeline parameters are infeasible.
	// It is reported once at setup, before any frame is processed.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrUnknownFeature is returned when a filter references a feature that no analyzer provides
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrMalformedFrame is returned when a frame can't be segmented
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrSolver is returned when an assignment problem can't be solved
	ErrSolver = errors.New("assignment solver failure")
)
