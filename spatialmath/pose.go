package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/dualquat"
	"gonum.org/v1/gonum/num/quat"
)

// Pose represents a 6dof pose: a position and an orientation. It is the rigid
// transform mapping the frame it describes into its parent frame.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

// pose packs a rigid transform as a unit dual quaternion: the real part carries the
// rotation and the dual part carries half the translation composed with the rotation.
type pose struct {
	q dualquat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return &pose{dualquat.Number{Real: quat.Number{Real: 1}}}
}

// NewPose creates a pose from a point and an orientation.
func NewPose(p r3.Vector, o Orientation) Pose {
	r := Normalize(o.Quaternion())
	return &pose{dualquat.Number{
		Real: r,
		Dual: quat.Mul(quat.Number{Imag: p.X / 2, Jmag: p.Y / 2, Kmag: p.Z / 2}, r),
	}}
}

// NewPoseFromPoint creates a pose with the given point and no rotation.
func NewPoseFromPoint(p r3.Vector) Pose {
	return NewPose(p, NewZeroOrientation())
}

// NewPoseFromOrientation creates a pose at the origin with the given orientation.
func NewPoseFromOrientation(o Orientation) Pose {
	return NewPose(r3.Vector{}, o)
}

// Point returns the pose's position. Multiplying the dual quaternion by its own
// conjugate leaves an identity real part and a dual part holding the world-frame
// translation as a pure quaternion.
func (p *pose) Point() r3.Vector {
	t := dualquat.Mul(p.q, dualquat.Conj(p.q))
	return r3.Vector{X: t.Dual.Imag, Y: t.Dual.Jmag, Z: t.Dual.Kmag}
}

// Orientation returns the pose's orientation.
func (p *pose) Orientation() Orientation {
	q := quaternion(p.q.Real)
	return &q
}

// Compose treats a and b as transforms and returns the transform of first applying b,
// then applying a, i.e. a∘b.
func Compose(a, b Pose) Pose {
	return &pose{dualquat.Mul(dualQuat(a), dualQuat(b))}
}

// PoseInverse returns the transform that undoes p. For a unit dual quaternion this is
// the quaternion conjugate of both parts.
func PoseInverse(p Pose) Pose {
	return &pose{dualquat.ConjQuat(dualQuat(p))}
}

// PoseDelta returns the difference between two poses: the position difference in the
// shared parent frame, and the rotation taking a's orientation to b's.
func PoseDelta(a, b Pose) Pose {
	return NewPose(
		b.Point().Sub(a.Point()),
		OrientationBetween(a.Orientation(), b.Orientation()),
	)
}

// PoseBetween returns the pose of b relative to a, i.e. a⁻¹∘b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// Interpolate returns a new Pose that is an interpolation between p1 and p2 by the
// given amount: 0 returns p1 and 1 returns p2, with amounts outside [0,1]
// extrapolating along the same path. Positions blend linearly and orientations
// spherically.
func Interpolate(p1, p2 Pose, amount float64) Pose {
	pt := p1.Point().Add(p2.Point().Sub(p1.Point()).Mul(amount))
	q := Slerp(p1.Orientation().Quaternion(), p2.Orientation().Quaternion(), amount)
	return NewPose(pt, NewOrientationFromQuaternion(q))
}

// PoseAlmostEqual checks whether two poses are within 1e-6 of each other in both
// position and orientation.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-6)
}

// PoseAlmostEqualEps checks pose equality within the given positional tolerance;
// orientations compare with the package's standard orientation tolerance.
func PoseAlmostEqualEps(a, b Pose, epsilon float64) bool {
	diff := a.Point().Sub(b.Point())
	return diff.Norm() < epsilon && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}

func dualQuat(p Pose) dualquat.Number {
	if dq, ok := p.(*pose); ok {
		return dq.q
	}
	pt := p.Point()
	r := Normalize(p.Orientation().Quaternion())
	return dualquat.Number{
		Real: r,
		Dual: quat.Mul(quat.Number{Imag: pt.X / 2, Jmag: pt.Y / 2, Kmag: pt.Z / 2}, r),
	}
}
