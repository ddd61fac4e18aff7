package config

import (
	"fmt"
)

// Section names read by the filter
const (
	SectionDelta  = "delta"
	SectionFilter = "filter"
)

// Flattened setting keys, "section.option"
const (
	KeyDiagonalRod     = "delta.diagonal_rod"
	KeySmoothRodOffset = "delta.smooth_rod_offset"
	KeyEffectorOffset  = "delta.effector_offset"
	KeyCarriageOffset  = "delta.carriage_offset"
	KeyTowerAngles     = "delta.tower_angles"
	KeyMotionVerb      = "filter.motion_verb"
	KeyPrecision       = "filter.precision"
	KeyAnnotate        = "filter.annotate"
	KeyOnMalformed     = "filter.on_malformed"
)

// MaxPrecision is the largest accepted number of fractional digits.
const MaxPrecision = 10

// MalformedPolicies are the accepted values of on_malformed.
var MalformedPolicies = []string{"abort", "skip"}

// Settings validates the [delta] and [filter] sections and returns the
// options they set as a flat map keyed by Key* constants. Options that are
// not present are left out so lower-priority layers keep their values.
func Settings(c *Config) (map[string]interface{}, error) {
	out := make(map[string]interface{})

	if sec := c.GetSectionOptional(SectionDelta); sec != nil {
		positive := FloatBounds{Above: Float(0)}
		nonNegative := FloatBounds{MinVal: Float(0)}
		floats := []struct {
			key    string
			option string
			bounds FloatBounds
		}{
			{KeyDiagonalRod, "diagonal_rod", positive},
			{KeySmoothRodOffset, "smooth_rod_offset", positive},
			{KeyEffectorOffset, "effector_offset", nonNegative},
			{KeyCarriageOffset, "carriage_offset", nonNegative},
		}
		for _, f := range floats {
			if !sec.HasOption(f.option) {
				continue
			}
			v, err := sec.GetFloatWithBounds(f.option, f.bounds)
			if err != nil {
				return nil, err
			}
			out[f.key] = v
		}

		if sec.HasOption("tower_angles") {
			angles, err := sec.GetFloatList("tower_angles", ",")
			if err != nil {
				return nil, err
			}
			if len(angles) != 3 {
				return nil, ErrInvalidValue(SectionDelta, "tower_angles",
					fmt.Sprint(angles), "three comma-separated angles")
			}
			out[KeyTowerAngles] = angles
		}
	}

	if sec := c.GetSectionOptional(SectionFilter); sec != nil {
		if sec.HasOption("motion_verb") {
			v, err := sec.Get("motion_verb")
			if err != nil {
				return nil, err
			}
			out[KeyMotionVerb] = v
		}
		if sec.HasOption("precision") {
			v, err := sec.GetIntWithBounds("precision", 0, MaxPrecision)
			if err != nil {
				return nil, err
			}
			out[KeyPrecision] = v
		}
		if sec.HasOption("annotate") {
			v, err := sec.GetBool("annotate")
			if err != nil {
				return nil, err
			}
			out[KeyAnnotate] = v
		}
		if sec.HasOption("on_malformed") {
			v, err := sec.GetChoice("on_malformed", MalformedPolicies)
			if err != nil {
				return nil, err
			}
			out[KeyOnMalformed] = v
		}
	}

	return out, nil
}
