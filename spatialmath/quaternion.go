// Package spatialmath defines the spatial mathematical operations the pose graph is
// built on: unit quaternion rotations, axis-angle conversions, and rigid poses backed
// by dual quaternions.
package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// If the dot product of two unit quaternions exceeds 1 minus this amount, the arc
// between them is too small for a stable sine division and Slerp blends linearly.
const slerpEpsilon = 1e-11

type quaternion quat.Number

// Quaternion returns orientation in quaternion representation.
func (q *quaternion) Quaternion() quat.Number {
	return quat.Number(*q)
}

// AxisAngles returns the orientation in axis angle representation.
func (q *quaternion) AxisAngles() *R4AA {
	aa := QuatToR4AA(q.Quaternion())
	return &aa
}

// EulerAngles returns orientation in Euler angle representation.
func (q *quaternion) EulerAngles() *EulerAngles {
	return QuatToEulerAngles(q.Quaternion())
}

// Norm returns the norm of the quaternion, i.e. the sqrt of the squares of the imaginary parts.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same
// orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// Normalize scales a quaternion to unit length.
func Normalize(q quat.Number) quat.Number {
	return quat.Scale(1/quat.Abs(q), q)
}

// QuaternionAlmostEqual is an equality test for all the float components of a quaternion.
// Quaternions that differ only by a global sign compare equal: they represent the same
// orientation.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	if quatDot(a, b) < 0 {
		b = Flip(b)
	}
	return math.Abs(a.Real-b.Real) < tol &&
		math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol &&
		math.Abs(a.Kmag-b.Kmag) < tol
}

// Slerp performs spherical interpolation between two unit quaternions. Amount 0 yields
// q1 and amount 1 yields q2; amounts outside [0,1] extrapolate along the same arc. The
// shorter of the two great-circle arcs is always taken.
func Slerp(q1, q2 quat.Number, amount float64) quat.Number {
	d := quatDot(q1, q2)
	if d < 0 {
		q2 = Flip(q2)
		d = -d
	}
	if d > 1-slerpEpsilon {
		lin := quat.Add(quat.Scale(1-amount, q1), quat.Scale(amount, q2))
		return Normalize(lin)
	}
	sinTheta := math.Sqrt(1 - d*d)
	theta := math.Atan2(sinTheta, d)
	s1 := math.Sin((1-amount)*theta) / sinTheta
	s2 := math.Sin(amount*theta) / sinTheta
	return quat.Add(quat.Scale(s1, q1), quat.Scale(s2, q2))
}

// QuatToR4AA converts a quat to an R4 axis angle in the same way the C++ Eigen library does.
// https://eigen.tuxfamily.org/dox/AngleAxis_8h_source.html
func QuatToR4AA(q quat.Number) R4AA {
	denom := Norm(q)

	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		angle *= -1
	}

	if denom < 1e-6 {
		return R4AA{Theta: angle, RX: 1, RY: 0, RZ: 0}
	}
	return R4AA{Theta: angle, RX: q.Imag / denom, RY: q.Jmag / denom, RZ: q.Kmag / denom}
}

// QuatToR3AA converts a quat to an R3 axis angle in the same way the C++ Eigen library does.
// https://eigen.tuxfamily.org/dox/AngleAxis_8h_source.html
func QuatToR3AA(q quat.Number) R3AA {
	denom := Norm(q)

	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		angle *= -1
	}

	if denom < 1e-6 {
		return R3AA{RX: 1, RY: 0, RZ: 0}
	}
	return R3AA{RX: angle * q.Imag / denom, RY: angle * q.Jmag / denom, RZ: angle * q.Kmag / denom}
}

// QuatToEulerAngles converts a rotation unit quaternion to euler angles.
// See the following wikipedia page for the formulas used here:
// https://en.wikipedia.org/wiki/Conversion_between_quaternions_and_Euler_angles
func QuatToEulerAngles(q quat.Number) *EulerAngles {
	angles := EulerAngles{}

	// roll (x-axis rotation)
	sinrCosp := 2 * (q.Real*q.Imag + q.Jmag*q.Kmag)
	cosrCosp := 1 - 2*(q.Imag*q.Imag+q.Jmag*q.Jmag)
	angles.Roll = math.Atan2(sinrCosp, cosrCosp)

	// pitch (y-axis rotation)
	sinp := 2 * (q.Real*q.Jmag - q.Kmag*q.Imag)
	if math.Abs(sinp) >= 1 {
		angles.Pitch = math.Copysign(math.Pi/2., sinp) // clamp to 90 degrees at the pole
	} else {
		angles.Pitch = math.Asin(sinp)
	}

	// yaw (z-axis rotation)
	sinyCosp := 2 * (q.Real*q.Kmag + q.Imag*q.Jmag)
	cosyCosp := 1 - 2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag)
	angles.Yaw = math.Atan2(sinyCosp, cosyCosp)

	return &angles
}

func quatDot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}
