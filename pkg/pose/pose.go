// Package pose is planar rigid-body geometry for the agent: composing
// relative motions and recovering odometry between two poses.
package pose

import (
	"fmt"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// lastIndex numbers poses in creation order.
var lastIndex atomic.Int64

// Pose is a position in the plane and a heading in radians.
type Pose struct {
	X, Y float64
	Yaw  float64

	// Index is unique per pose made by New, Compose, Mul or Odom, in
	// creation order starting at 1. The zero Pose has index 0.
	Index int64
}

// New returns a pose with the next index.
func New(x, y, yaw float64) Pose {
	return Pose{X: x, Y: y, Yaw: yaw, Index: lastIndex.Add(1)}
}

// Compose applies rel, expressed in p's frame, on top of p. The resulting
// yaw is reduced with math.Mod into (-2π, 2π).
func (p Pose) Compose(rel Pose) Pose {
	d := EvalMatMul(rotation(p.Yaw), [2]float64{rel.X, rel.Y})
	return New(p.X+d[0], p.Y+d[1], math.Mod(p.Yaw+rel.Yaw, 2*math.Pi))
}

// Mul is other.Compose(p): p treated as a motion relative to other.
func (p Pose) Mul(other Pose) Pose {
	return other.Compose(p)
}

// Odom returns the motion from old to cur expressed in old's frame, so
// that old.Compose(Odom(cur, old)) lands on cur. Yaw is the plain
// difference and is not wrapped.
func Odom(cur, old Pose) Pose {
	d := EvalMatMul(rotation(-old.Yaw), [2]float64{cur.X - old.X, cur.Y - old.Y})
	return New(d[0], d[1], cur.Yaw-old.Yaw)
}

// EvalMatMul returns the product of a 2x2 matrix and a 2-vector.
func EvalMatMul(m [2][2]float64, v [2]float64) [2]float64 {
	a := mat.NewDense(2, 2, []float64{m[0][0], m[0][1], m[1][0], m[1][1]})
	var out mat.VecDense
	out.MulVec(a, mat.NewVecDense(2, []float64{v[0], v[1]}))
	return [2]float64{out.AtVec(0), out.AtVec(1)}
}

// rotation is the counter-clockwise rotation matrix for yaw.
func rotation(yaw float64) [2][2]float64 {
	sin, cos := math.Sincos(yaw)
	return [2][2]float64{
		{cos, -sin},
		{sin, cos},
	}
}

func (p Pose) String() string {
	return fmt.Sprintf("Pose(x=%.3f, y=%.3f, yaw=%.3f)", p.X, p.Y, p.Yaw)
}
