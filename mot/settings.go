package mot

import (
	"github.com/pkg/errors"
)

// Settings is the complete, typed configuration of a Pipeline
type Settings struct {
	Detector ThresholdDetector
	// Spots with QUALITY below this value are removed before feature filtering
	InitialSpotQuality float64
	SpotFilters        Filters
	Tracker            TrackerSettings
	TrackFilters       Filters
}

// DefaultSettings returns detector and tracker defaults without any filters
func DefaultSettings() Settings {
	return Settings{
		Detector:           NewThresholdDetectorDefault(),
		InitialSpotQuality: 0,
		SpotFilters:        Filters{},
		Tracker:            DefaultTrackerSettings(),
		TrackFilters:       Filters{},
	}
}

// Validate reports the first configuration error. Nothing stack-specific is checked here.
func (settings Settings) Validate() error {
	if err := settings.Detector.Validate(); err != nil {
		return errors.Wrap(err, "detector")
	}
	if !isFinite(settings.InitialSpotQuality) {
		return errors.Wrapf(ErrInvalidSettings, "initial spot quality must be finite, got %v", settings.InitialSpotQuality)
	}
	if err := settings.SpotFilters.Validate(SpotFeatures); err != nil {
		return errors.Wrap(err, "spot filters")
	}
	if err := settings.Tracker.Validate(); err != nil {
		return errors.Wrap(err, "tracker")
	}
	if err := settings.TrackFilters.Validate(TrackFeatureNames); err != nil {
		return errors.Wrap(err, "track filters")
	}
	return nil
}
