package gcode

import (
	"fmt"
	"math"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"klipper-delta-filter/pkg/errors"
)

// AxisValues is an insertion-ordered mapping from axis to value.
// Setting an existing axis keeps its original position.
type AxisValues struct {
	m *linkedhashmap.Map
}

// NewAxisValues returns an empty mapping.
func NewAxisValues() *AxisValues {
	return &AxisValues{m: linkedhashmap.New()}
}

// Set stores v for axis a.
func (v *AxisValues) Set(a Axis, value float64) {
	v.m.Put(a, value)
}

// Get returns the value stored for a.
func (v *AxisValues) Get(a Axis) (float64, bool) {
	value, found := v.m.Get(a)
	if !found {
		return 0, false
	}
	return value.(float64), true
}

// Delete removes a.
func (v *AxisValues) Delete(a Axis) {
	v.m.Remove(a)
}

// Keys returns the axes in insertion order.
func (v *AxisValues) Keys() []Axis {
	keys := make([]Axis, 0, v.m.Size())
	for _, k := range v.m.Keys() {
		keys = append(keys, k.(Axis))
	}
	return keys
}

// Len returns the number of axes.
func (v *AxisValues) Len() int {
	return v.m.Size()
}

// Clone returns an independent copy.
func (v *AxisValues) Clone() *AxisValues {
	c := NewAxisValues()
	it := v.m.Iterator()
	for it.Next() {
		c.m.Put(it.Key(), it.Value())
	}
	return c
}

// MotionCommand is a verb plus the axes it explicitly sets. It is immutable.
type MotionCommand struct {
	verb string
	axes *AxisValues
}

// NewMotionCommand copies axes into a new command. Every key must be a
// canonical axis and every value finite.
func NewMotionCommand(verb string, axes *AxisValues) (*MotionCommand, error) {
	if axes == nil {
		axes = NewAxisValues()
	}
	for _, a := range axes.Keys() {
		if !a.IsValid() {
			return nil, errors.MalformedCommandError(string(a), "unknown axis")
		}
		value, _ := axes.Get(a)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, errors.MalformedCommandError(a.Letter(), fmt.Sprintf("value %v is not finite", value))
		}
	}
	return &MotionCommand{verb: verb, axes: axes.Clone()}, nil
}

// Verb returns the command verb as given.
func (c *MotionCommand) Verb() string {
	return c.verb
}

// Get returns the value of axis a if the command sets it.
func (c *MotionCommand) Get(a Axis) (float64, bool) {
	return c.axes.Get(a)
}

// Has reports whether the command sets axis a.
func (c *MotionCommand) Has(a Axis) bool {
	_, ok := c.axes.Get(a)
	return ok
}

// Axes returns the axes set by the command in insertion order.
func (c *MotionCommand) Axes() []Axis {
	return c.axes.Keys()
}

// Len returns the number of axes set by the command.
func (c *MotionCommand) Len() int {
	return c.axes.Len()
}

// CloneAxes returns a mutable copy of the command's axes.
func (c *MotionCommand) CloneAxes() *AxisValues {
	return c.axes.Clone()
}

// String renders the command with default formatting.
func (c *MotionCommand) String() string {
	return DefaultFormatter().Format(c)
}
