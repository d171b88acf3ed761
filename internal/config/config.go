package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/LdDl/spotmate/mot"
	"github.com/pkg/errors"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the file representation of batch settings.
// Fields omitted from the JSON file keep the values of Default.
type Config struct {
	Detector           Detector    `json:"detector"`
	InitialSpotQuality float64     `json:"initial_spot_quality"`
	SpotFilters        []Filter    `json:"spot_filters"`
	Linking            Linking     `json:"linking"`
	TrackFilters       []Filter    `json:"track_filters"`
	Calibration        Calibration `json:"calibration"`
}

type Detector struct {
	TargetChannel      int     `json:"target_channel"`
	IntensityThreshold float64 `json:"intensity_threshold"`
	SimplifyContours   bool    `json:"simplify_contours"`
	ContourTolerance   float64 `json:"contour_tolerance"`
}

type Filter struct {
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold"`
	IsAbove   bool    `json:"is_above"`
}

type Linking struct {
	MaxLinkingDistance    float64 `json:"max_linking_distance"`
	MaxGapClosingDistance float64 `json:"max_gap_closing_distance"`
	MaxFrameGap           int     `json:"max_frame_gap"`
	AllowGapClosing       bool    `json:"allow_gap_closing"`
	ScaleGapCost          bool    `json:"scale_gap_cost"`
	AlternativeCostFactor float64 `json:"alternative_cost_factor"`
	// One of "jv", "munkres", "greedy"
	Solver string `json:"solver"`
	// One of "static", "kalman"
	GapMotionModel string `json:"gap_motion_model"`
}

// Calibration overrides what stacks carry. Zero means "use the stack's own value".
type Calibration struct {
	PixelSize     float64 `json:"pixel_size"`
	FrameInterval float64 `json:"frame_interval"`
}

// Default reproduces the thresholds and filters of the reference batch script
func Default() *Config {
	return &Config{
		Detector: Detector{
			TargetChannel:      1,
			IntensityThreshold: 1.0,
			SimplifyContours:   true,
			ContourTolerance:   0.5,
		},
		InitialSpotQuality: 1.0,
		SpotFilters: []Filter{
			{Feature: mot.SpotArea, Threshold: 1, IsAbove: true},
			{Feature: mot.SpotArea, Threshold: 6, IsAbove: false},
		},
		Linking: Linking{
			MaxLinkingDistance:    2.0,
			MaxGapClosingDistance: 2.0,
			MaxFrameGap:           2,
			AllowGapClosing:       true,
			ScaleGapCost:          false,
			AlternativeCostFactor: mot.DefaultAlternativeCostFactor,
			Solver:                mot.SolverJV.String(),
			GapMotionModel:        mot.GapMotionStatic.String(),
		},
		TrackFilters: []Filter{
			{Feature: mot.TrackDisplacement, Threshold: 0, IsAbove: true},
			{Feature: mot.TrackDuration, Threshold: 1, IsAbove: true},
			{Feature: mot.TrackMeanSpeed, Threshold: 0, IsAbove: true},
		},
	}
}

// Load reads configuration from a JSON file.
// The file must have .json extension and be under 1MB. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes JSON on top of Default and validates the result.
// A filter list given in the file replaces the default list as a whole: omitted filter fields are zero.
func Parse(data []byte) (*Config, error) {
	defaults := Default()
	cfg := Default()
	// json reuses existing slice elements, so filter lists start empty
	cfg.SpotFilters = nil
	cfg.TrackFilters = nil
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}
	if decoder.More() {
		return nil, errors.New("failed to parse config JSON: trailing data")
	}
	if cfg.SpotFilters == nil {
		cfg.SpotFilters = defaults.SpotFilters
	}
	if cfg.TrackFilters == nil {
		cfg.TrackFilters = defaults.TrackFilters
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks the configuration by building pipeline settings from it
func (c *Config) Validate() error {
	settings, err := c.Settings()
	if err != nil {
		return err
	}
	if c.Calibration.PixelSize < 0 || c.Calibration.FrameInterval < 0 {
		return errors.Wrapf(mot.ErrInvalidSettings, "calibration overrides must be >= 0, got pixel_size=%v frame_interval=%v", c.Calibration.PixelSize, c.Calibration.FrameInterval)
	}
	return settings.Validate()
}

// Settings converts configuration to typed pipeline settings
func (c *Config) Settings() (mot.Settings, error) {
	solver, err := mot.ParseSolverKind(c.Linking.Solver)
	if err != nil {
		return mot.Settings{}, errors.Wrap(err, "linking.solver")
	}
	motion, err := mot.ParseGapMotionModel(c.Linking.GapMotionModel)
	if err != nil {
		return mot.Settings{}, errors.Wrap(err, "linking.gap_motion_model")
	}
	return mot.Settings{
		Detector: mot.ThresholdDetector{
			Channel:          c.Detector.TargetChannel,
			Threshold:        c.Detector.IntensityThreshold,
			SimplifyContours: c.Detector.SimplifyContours,
			ContourTolerance: c.Detector.ContourTolerance,
		},
		InitialSpotQuality: c.InitialSpotQuality,
		SpotFilters:        toFilters(c.SpotFilters),
		Tracker: mot.TrackerSettings{
			MaxLinkingDistance:    c.Linking.MaxLinkingDistance,
			MaxGapClosingDistance: c.Linking.MaxGapClosingDistance,
			MaxFrameGap:           c.Linking.MaxFrameGap,
			AllowGapClosing:       c.Linking.AllowGapClosing,
			ScaleGapCost:          c.Linking.ScaleGapCost,
			AlternativeCostFactor: c.Linking.AlternativeCostFactor,
			Solver:                solver,
			GapMotion:             motion,
		},
		TrackFilters: toFilters(c.TrackFilters),
	}, nil
}

// CalibrationOverride returns configured calibration; zero fields are left to the stack
func (c *Config) CalibrationOverride() mot.Calibration {
	return mot.Calibration{
		PixelSize:     c.Calibration.PixelSize,
		FrameInterval: c.Calibration.FrameInterval,
	}
}

func toFilters(filters []Filter) mot.Filters {
	ans := make(mot.Filters, 0, len(filters))
	for _, f := range filters {
		ans = append(ans, mot.NewFeatureFilter(f.Feature, f.Threshold, f.IsAbove))
	}
	return ans
}
