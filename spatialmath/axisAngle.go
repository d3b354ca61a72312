package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// See here for a thorough explanation: https://en.wikipedia.org/wiki/Axis%E2%80%93angle_representation
// Basic explanation: Imagine a 3d cartesian grid centered at 0,0,0, and a sphere of radius 1 centered at
// that same point. An orientation can be expressed by first specifying an axis, i.e. a line from the origin
// to a point on that sphere, represented by (rx, ry, rz), and a rotation around that axis, theta.
// These four numbers can be used as-is (R4), or they can be converted to R3, where theta is multiplied by each of
// the unit sphere components to give a vector whose length is theta and whose direction is the original axis.

// R4AA represents an R4 axis angle.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// NewR4AA creates an empty R4AA struct.
func NewR4AA() *R4AA {
	return &R4AA{Theta: 0, RX: 0, RY: 0, RZ: 1}
}

// AxisAngles returns the orientation in axis angle representation.
func (r4 *R4AA) AxisAngles() *R4AA {
	return r4
}

// Quaternion returns orientation in quaternion representation.
func (r4 *R4AA) Quaternion() quat.Number {
	return r4.ToQuat()
}

// EulerAngles returns orientation in Euler angle representation.
func (r4 *R4AA) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(r4.Quaternion())
}

// ToR3 converts an R4 angle axis to R3.
func (r4 *R4AA) ToR3() R3AA {
	return R3AA{RX: r4.RX * r4.Theta, RY: r4.RY * r4.Theta, RZ: r4.RZ * r4.Theta}
}

// ToQuat converts an R4 axis angle to a unit quaternion
// See: https://www.euclideanspace.com/maths/geometry/rotations/conversions/angleToQuaternion/index.htm
func (r4 *R4AA) ToQuat() quat.Number {
	sinA := math.Sin(r4.Theta / 2)
	// Ensure that point xyz is on the unit sphere
	r4.Normalize()

	// Get the unit-sphere components
	ax := r4.RX * sinA
	ay := r4.RY * sinA
	az := r4.RZ * sinA
	w := math.Cos(r4.Theta / 2)
	return quat.Number{Real: w, Imag: ax, Jmag: ay, Kmag: az}
}

// Normalize scales the x, y, and z components of a R4 axis angle to be on the unit sphere.
func (r4 *R4AA) Normalize() {
	norm := math.Sqrt(r4.RX*r4.RX + r4.RY*r4.RY + r4.RZ*r4.RZ)
	if norm == 0.0 { // prevent division by 0
		panic("cannot normalize R4AA, divide by zero")
	}
	r4.RX /= norm
	r4.RY /= norm
	r4.RZ /= norm
}

// R3AA represents an R3 axis angle, a rotation vector whose direction is the rotation
// axis and whose length is the rotation angle.
type R3AA struct {
	RX float64
	RY float64
	RZ float64
}

// Mul returns the R3 axis angle scaled uniformly by t.
func (r R3AA) Mul(t float64) R3AA {
	return R3AA{RX: r.RX * t, RY: r.RY * t, RZ: r.RZ * t}
}

// Norm returns the angle magnitude of the rotation vector.
func (r R3AA) Norm() float64 {
	return math.Sqrt(r.Norm2())
}

// Norm2 returns the square of the angle magnitude.
func (r R3AA) Norm2() float64 {
	return r.RX*r.RX + r.RY*r.RY + r.RZ*r.RZ
}

// ToR4 converts an R3 angle axis to R4.
func (r R3AA) ToR4() *R4AA {
	theta := r.Norm()
	if theta == 0 {
		return NewR4AA()
	}
	return &R4AA{Theta: theta, RX: r.RX / theta, RY: r.RY / theta, RZ: r.RZ / theta}
}

// R3ToR4 converts an R3 angle axis given as a vector to R4.
func R3ToR4(aa r3.Vector) *R4AA {
	return R3AA{RX: aa.X, RY: aa.Y, RZ: aa.Z}.ToR4()
}
