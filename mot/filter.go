package mot

import (
	"fmt"

	"github.com/pkg/errors"
)

// FeatureFilter is a threshold predicate over a named feature.
// IsAbove keeps values >= Threshold, otherwise values <= Threshold are kept.
type FeatureFilter struct {
	Feature   string
	Threshold float64
	IsAbove   bool
}

// NewFeatureFilter creates new filter
func NewFeatureFilter(feature string, threshold float64, isAbove bool) FeatureFilter {
	return FeatureFilter{
		Feature:   feature,
		Threshold: threshold,
		IsAbove:   isAbove,
	}
}

// Test reports whether value satisfies the filter
func (filter FeatureFilter) Test(value float64) bool {
	if filter.IsAbove {
		return value >= filter.Threshold
	}
	return value <= filter.Threshold
}

func (filter FeatureFilter) String() string {
	op := "<="
	if filter.IsAbove {
		op = ">="
	}
	return fmt.Sprintf("%s %s %g", filter.Feature, op, filter.Threshold)
}

// FeatureGetter returns value of a named feature and whether it exists
type FeatureGetter func(name string) (float64, bool)

// Filters is a conjunction of independent predicates
type Filters []FeatureFilter

// Validate checks that each filter references one of known features
func (filters Filters) Validate(known []string) error {
	set := make(map[string]struct{}, len(known))
	for _, name := range known {
		set[name] = struct{}{}
	}
	for i, filter := range filters {
		if _, ok := set[filter.Feature]; !ok {
			return errors.Wrapf(ErrUnknownFeature, "filter #%d references %q", i+1, filter.Feature)
		}
		if !isFinite(filter.Threshold) {
			return errors.Wrapf(ErrInvalidSettings, "filter #%d (%s) has non-finite threshold", i+1, filter.Feature)
		}
	}
	return nil
}

// Accept reports whether every filter holds. A missing feature value fails its filter.
// Empty Filters accept everything.
func (filters Filters) Accept(get FeatureGetter) bool {
	for _, filter := range filters {
		value, ok := get(filter.Feature)
		if !ok || !filter.Test(value) {
			return false
		}
	}
	return true
}
