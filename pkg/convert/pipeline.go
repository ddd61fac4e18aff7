package convert

import (
	"klipper-delta-filter/pkg/errors"
	"klipper-delta-filter/pkg/gcode"
	"klipper-delta-filter/pkg/kinematics"
)

// State is the lifecycle state of a Pipeline.
type State int

const (
	StateReady  State = iota // Accepting commands
	StateFailed              // Terminal; every call returns PIPELINE_FAILED
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Pipeline converts one command at a time, keeping the cartesian and actuator
// axis state between commands. It is not safe for concurrent use.
type Pipeline struct {
	transform kinematics.Transformer
	cartesian *AxisState
	actuator  *AxisState
	state     State
	err       error // First failure, set in StateFailed
}

// NewPipeline returns a ready pipeline with empty state.
func NewPipeline(t kinematics.Transformer) *Pipeline {
	return &Pipeline{
		transform: t,
		cartesian: NewAxisState(),
		actuator:  NewAxisState(),
		state:     StateReady,
	}
}

// Process converts cmd into tower space. The output keeps the input verb and
// axis order; X, Y and Z carry towers 1, 2 and 3, and any tower axis the input
// omitted is appended in that order. Other axes are copied unchanged.
// E and F are forgotten before every command so they never carry forward.
func (p *Pipeline) Process(cmd *gcode.MotionCommand) (*gcode.MotionCommand, error) {
	if p.state == StateFailed {
		return nil, errors.PipelineFailedError(p.err)
	}

	// A failing command leaves both frames untouched, E/F reset included.
	out, err := p.convert(cmd)
	if err != nil {
		p.state = StateFailed
		p.err = err
		return nil, err
	}

	p.cartesian.Reset(gcode.AxisE, gcode.AxisF)
	p.actuator.Reset(gcode.AxisE, gcode.AxisF)
	p.cartesian.Observe(cmd)
	p.actuator.Observe(out)
	return out, nil
}

func (p *Pipeline) convert(cmd *gcode.MotionCommand) (*gcode.MotionCommand, error) {
	var pos [3]float64
	for i, a := range gcode.GeometricAxes {
		v, err := p.cartesian.Effective(a, cmd)
		if err != nil {
			return nil, err
		}
		pos[i] = v
	}

	towers, err := p.transform.Transform(pos[0], pos[1], pos[2])
	if err != nil {
		return nil, err
	}

	axes := cmd.CloneAxes()
	for i, a := range gcode.GeometricAxes {
		axes.Set(a, towers[i])
	}
	return gcode.NewMotionCommand(cmd.Verb(), axes)
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return p.state
}

// Err returns the failure that stopped the pipeline, or nil.
func (p *Pipeline) Err() error {
	return p.err
}

// CartesianState returns the effector-space axis memory.
func (p *Pipeline) CartesianState() *AxisState {
	return p.cartesian
}

// ActuatorState returns the tower-space axis memory.
func (p *Pipeline) ActuatorState() *AxisState {
	return p.actuator
}

// Position returns the effective cartesian XYZ after the last successful command.
func (p *Pipeline) Position() ([3]float64, bool) {
	var pos [3]float64
	for i, a := range gcode.GeometricAxes {
		v, ok := p.cartesian.Value(a)
		if !ok {
			return pos, false
		}
		pos[i] = v
	}
	return pos, true
}
