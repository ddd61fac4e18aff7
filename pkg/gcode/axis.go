// Package gcode parses and renders the motion commands handled by the delta filter.
package gcode

import (
	"strings"

	"klipper-delta-filter/pkg/errors"
)

// Axis identifies one motion parameter. The canonical form is lowercase.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
	AxisE Axis = "e" // Extrusion
	AxisF Axis = "f" // Feed rate
)

// GeometricAxes are the axes that take part in the kinematic transform,
// in tower order.
var GeometricAxes = [3]Axis{AxisX, AxisY, AxisZ}

// ParseAxis converts an axis letter in either case to an Axis.
func ParseAxis(s string) (Axis, error) {
	if a := Axis(strings.ToLower(s)); a.IsValid() {
		return a, nil
	}
	return "", errors.MalformedCommandError(s, "unknown axis")
}

// IsValid reports whether a is one of the canonical axes.
func (a Axis) IsValid() bool {
	switch a {
	case AxisX, AxisY, AxisZ, AxisE, AxisF:
		return true
	}
	return false
}

// Letter returns the uppercase G-code letter of the axis.
func (a Axis) Letter() string {
	return strings.ToUpper(string(a))
}

// IsGeometric reports whether the axis is X, Y or Z.
func (a Axis) IsGeometric() bool {
	return a == AxisX || a == AxisY || a == AxisZ
}
