// Delta kinematics for linear delta printers.
package kinematics

import (
	"fmt"
	"math"

	"klipper-delta-filter/pkg/errors"
)

// Params are the physical dimensions a delta geometry is derived from.
type Params struct {
	DiagonalRod     float64    // Length of the diagonal rods
	SmoothRodOffset float64    // Horizontal distance from the center to the smooth rods
	EffectorOffset  float64    // Horizontal offset of the rod joints on the effector
	CarriageOffset  float64    // Horizontal offset of the rod joints on the carriages
	TowerAngles     [3]float64 // Tower angles in degrees [1, 2, 3]
}

// DefaultParams returns the dimensions of the reference machine.
// Towers 1 and 2 are front left and front right, tower 3 is at the back.
func DefaultParams() Params {
	return Params{
		DiagonalRod:     213.0,
		SmoothRodOffset: 146.5,
		EffectorOffset:  19.9,
		CarriageOffset:  19.5,
		TowerAngles:     [3]float64{210.0, 330.0, 90.0},
	}
}

// Radius returns the horizontal distance from the center to each tower's rod joint.
func (p Params) Radius() float64 {
	return p.SmoothRodOffset - p.EffectorOffset - p.CarriageOffset
}

// Validate checks that the parameters describe a buildable machine.
func (p Params) Validate() error {
	dims := []struct {
		option string
		value  float64
	}{
		{"diagonal_rod", p.DiagonalRod},
		{"smooth_rod_offset", p.SmoothRodOffset},
		{"effector_offset", p.EffectorOffset},
		{"carriage_offset", p.CarriageOffset},
	}
	for _, d := range dims {
		if !isFinite(d.value) {
			return errors.ConfigValidationError(d.option, fmt.Sprintf("%v is not a finite number", d.value))
		}
	}
	for i, a := range p.TowerAngles {
		if !isFinite(a) {
			return errors.ConfigValidationError("tower_angles",
				fmt.Sprintf("angle of tower %d is %v", i+1, a))
		}
	}
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if sameDirection(p.TowerAngles[i], p.TowerAngles[j]) {
				return errors.ConfigValidationError("tower_angles",
					fmt.Sprintf("towers %d and %d share the angle %v", i+1, j+1, p.TowerAngles[i]))
			}
		}
	}

	if p.DiagonalRod <= 0 {
		return errors.ConfigValidationError("diagonal_rod", "must be positive")
	}
	radius := p.Radius()
	if radius <= 0 {
		return errors.ConfigValidationError("smooth_rod_offset",
			fmt.Sprintf("delta radius %.3f must be positive", radius))
	}
	if p.DiagonalRod <= radius {
		return errors.ConfigValidationError("diagonal_rod",
			fmt.Sprintf("must be greater than delta radius %.3f", radius))
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sameDirection reports whether two angles in degrees point the same way.
func sameDirection(a, b float64) bool {
	diff := math.Mod(math.Abs(a-b), 360)
	return diff < angleEpsilon || 360-diff < angleEpsilon
}

// angleEpsilon is the smallest distinguishable difference between tower angles, in degrees.
const angleEpsilon = 1e-9

// Transformer maps an effective cartesian position to the three tower positions.
type Transformer interface {
	Transform(x, y, z float64) ([3]float64, error)
}

// Geometry holds the constants derived from Params. It is immutable once built
// and safe to share.
type Geometry struct {
	params  Params
	radius  float64
	rod2    float64       // Squared diagonal rod length
	towers  [3][2]float64 // Tower XY positions
	zOffset float64       // Carriage height above the effector at the center
}

// NewGeometry derives the tower positions and vertical offset from p.
func NewGeometry(p Params) (*Geometry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	radius := p.Radius()
	var towers [3][2]float64
	for i, angle := range p.TowerAngles {
		rad := angle * math.Pi / 180.0
		towers[i] = [2]float64{
			math.Cos(rad) * radius,
			math.Sin(rad) * radius,
		}
	}

	rod2 := p.DiagonalRod * p.DiagonalRod
	return &Geometry{
		params:  p,
		radius:  radius,
		rod2:    rod2,
		towers:  towers,
		zOffset: math.Sqrt(rod2 - radius*radius),
	}, nil
}

// Params returns the parameters the geometry was built from.
func (g *Geometry) Params() Params {
	return g.params
}

// Radius returns the delta radius.
func (g *Geometry) Radius() float64 {
	return g.radius
}

// ZOffset returns the constant added to every tower position.
func (g *Geometry) ZOffset() float64 {
	return g.zOffset
}

// Tower returns the XY position of tower 1, 2 or 3.
func (g *Geometry) Tower(tower int) (x, y float64, err error) {
	if tower < 1 || tower > 3 {
		return 0, 0, errors.KinematicsError(fmt.Sprintf("tower index %d out of range 1..3", tower))
	}
	t := g.towers[tower-1]
	return t[0], t[1], nil
}

// TowerPosition returns the carriage height of tower 1, 2 or 3 for the
// effector position (x, y, z):
//
//	sqrt(rod^2 - (towerX - x)^2 - (towerY - y)^2) + z + zOffset
func (g *Geometry) TowerPosition(tower int, x, y, z float64) (float64, error) {
	tx, ty, err := g.Tower(tower)
	if err != nil {
		return 0, err
	}
	dx := tx - x
	dy := ty - y
	dist2 := g.rod2 - dx*dx - dy*dy
	if dist2 < 0 {
		return 0, errors.UnreachablePositionError(tower, x, y)
	}
	return math.Sqrt(dist2) + z + g.zOffset, nil
}

// Transform returns the positions of towers 1, 2 and 3 for (x, y, z).
// The first unreachable tower aborts the calculation.
func (g *Geometry) Transform(x, y, z float64) ([3]float64, error) {
	var pos [3]float64
	for i := range pos {
		p, err := g.TowerPosition(i+1, x, y, z)
		if err != nil {
			return [3]float64{}, err
		}
		pos[i] = p
	}
	return pos, nil
}

// Reachable reports whether every tower's rod can reach (x, y).
func (g *Geometry) Reachable(x, y float64) bool {
	for _, t := range g.towers {
		dx := t[0] - x
		dy := t[1] - y
		if g.rod2-dx*dx-dy*dy < 0 {
			return false
		}
	}
	return true
}

// CartesianPosition inverts Transform, returning the effector position for
// the given tower positions.
func (g *Geometry) CartesianPosition(towerPos [3]float64) ([3]float64, error) {
	spos := [3]float64{
		towerPos[0] - g.zOffset,
		towerPos[1] - g.zOffset,
		towerPos[2] - g.zOffset,
	}
	pos, ok := trilateration(g.towers, spos, g.rod2)
	if !ok {
		return [3]float64{}, errors.KinematicsError(
			fmt.Sprintf("tower positions %.4f, %.4f, %.4f have no common solution",
				towerPos[0], towerPos[1], towerPos[2]))
	}
	return pos, nil
}

// trilateration calculates the intersection point of three spheres of radius
// sqrt(rod2) centered on the carriages.
// towers: XY positions of the three tower bases
// spos: Z positions of the three carriages
func trilateration(towers [3][2]float64, spos [3]float64, rod2 float64) ([3]float64, bool) {
	s1 := [3]float64{towers[0][0], towers[0][1], spos[0]}
	s2 := [3]float64{towers[1][0], towers[1][1], spos[1]}
	s3 := [3]float64{towers[2][0], towers[2][1], spos[2]}

	s21 := sub(s2, s1)
	s31 := sub(s3, s1)

	d := norm(s21)
	ex := scale(s21, 1/d)
	i := dot(ex, s31)
	vectEy := sub(s31, scale(ex, i))
	ey := scale(vectEy, 1/norm(vectEy))
	ez := cross(ex, ey)
	j := dot(ey, s31)

	// Equal rod lengths cancel out of x and y
	x := d / 2.0
	y := (i*i + j*j - 2*i*x) / (2.0 * j)
	z2 := rod2 - x*x - y*y
	if z2 < 0 || math.IsNaN(z2) {
		return [3]float64{}, false
	}
	z := -math.Sqrt(z2)

	// result = sphere1 + ex*x + ey*y + ez*z
	var result [3]float64
	for k := range result {
		result[k] = s1[k] + ex[k]*x + ey[k]*y + ez[k]*z
	}
	return result, true
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func scale(a [3]float64, f float64) [3]float64 {
	return [3]float64{a[0] * f, a[1] * f, a[2] * f}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
