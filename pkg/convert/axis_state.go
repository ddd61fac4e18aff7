// Package convert turns cartesian motion commands into delta tower commands,
// carrying omitted axis values forward from earlier commands.
package convert

import (
	"klipper-delta-filter/pkg/errors"
	"klipper-delta-filter/pkg/gcode"
)

// AxisState remembers the last observed value of each axis in one frame.
// Values persist until reset; nothing defaults to zero.
type AxisState struct {
	values map[gcode.Axis]float64
}

// NewAxisState returns a state with no known axes.
func NewAxisState() *AxisState {
	return &AxisState{values: make(map[gcode.Axis]float64)}
}

// Observe records every axis the command sets.
func (s *AxisState) Observe(cmd *gcode.MotionCommand) {
	for _, a := range cmd.Axes() {
		v, _ := cmd.Get(a)
		s.values[a] = v
	}
}

// Effective returns the command's value for a if present, else the stored
// value, else an UNRESOLVED_AXIS error.
func (s *AxisState) Effective(a gcode.Axis, cmd *gcode.MotionCommand) (float64, error) {
	if v, ok := cmd.Get(a); ok {
		return v, nil
	}
	if v, ok := s.values[a]; ok {
		return v, nil
	}
	return 0, errors.UnresolvedAxisError(a.Letter())
}

// Reset forgets the given axes.
func (s *AxisState) Reset(axes ...gcode.Axis) {
	for _, a := range axes {
		delete(s.values, a)
	}
}

// Value returns the stored value of a.
func (s *AxisState) Value(a gcode.Axis) (float64, bool) {
	v, ok := s.values[a]
	return v, ok
}

// Snapshot returns a copy of the known values.
func (s *AxisState) Snapshot() map[gcode.Axis]float64 {
	snap := make(map[gcode.Axis]float64, len(s.values))
	for a, v := range s.values {
		snap[a] = v
	}
	return snap
}
