package costfunction

import (
	"math"

	"go.viam.com/posegraph/autodiff"
)

// Arcs whose unit quaternion dot product exceeds 1 minus this amount are blended
// linearly instead of spherically. Matches the guard in spatialmath.Slerp.
const slerpEpsilon = 1e-11

// Quaternions are held as [4]T in (w, x, y, z) component order throughout this
// package, matching the landmark rotation parameter block layout.

func quatProduct[T autodiff.Scalar[T]](a, b [4]T) [4]T {
	return [4]T{
		a[0].Mul(b[0]).Sub(a[1].Mul(b[1])).Sub(a[2].Mul(b[2])).Sub(a[3].Mul(b[3])),
		a[0].Mul(b[1]).Add(a[1].Mul(b[0])).Add(a[2].Mul(b[3])).Sub(a[3].Mul(b[2])),
		a[0].Mul(b[2]).Sub(a[1].Mul(b[3])).Add(a[2].Mul(b[0])).Add(a[3].Mul(b[1])),
		a[0].Mul(b[3]).Add(a[1].Mul(b[2])).Sub(a[2].Mul(b[1])).Add(a[3].Mul(b[0])),
	}
}

func quatConjugate[T autodiff.Scalar[T]](q [4]T) [4]T {
	return [4]T{q[0], q[1].Neg(), q[2].Neg(), q[3].Neg()}
}

func quatNorm[T autodiff.Scalar[T]](q [4]T) T {
	return q[0].Mul(q[0]).Add(q[1].Mul(q[1])).Add(q[2].Mul(q[2])).Add(q[3].Mul(q[3])).Sqrt()
}

func quatNormalize[T autodiff.Scalar[T]](q [4]T) [4]T {
	n := quatNorm(q)
	return [4]T{q[0].Div(n), q[1].Div(n), q[2].Div(n), q[3].Div(n)}
}

// quatRotate rotates v by the unit quaternion q via the sandwich product q v q*.
func quatRotate[T autodiff.Scalar[T]](q [4]T, v [3]T) [3]T {
	p := [4]T{q[0].Const(0), v[0], v[1], v[2]}
	r := quatProduct(quatProduct(q, p), quatConjugate(q))
	return [3]T{r[1], r[2], r[3]}
}

// liftQuat promotes plain quaternion components to the scalar type in use. ref only
// supplies the shape (for jets, the gradient width).
func liftQuat[T autodiff.Scalar[T]](ref T, q [4]float64) [4]T {
	return [4]T{ref.Const(q[0]), ref.Const(q[1]), ref.Const(q[2]), ref.Const(q[3])}
}

// quatSlerp spherically interpolates between two unit quaternions along the shorter
// arc. The arc-length branches inspect only value parts; flipping q2's sign leaves
// the represented rotation unchanged.
func quatSlerp[T autodiff.Scalar[T]](q1, q2 [4]T, amount float64) [4]T {
	dot := q1[0].Mul(q2[0]).Add(q1[1].Mul(q2[1])).Add(q1[2].Mul(q2[2])).Add(q1[3].Mul(q2[3]))
	if dot.Value() < 0 {
		for i := range q2 {
			q2[i] = q2[i].Neg()
		}
		dot = dot.Neg()
	}
	if dot.Value() > 1-slerpEpsilon {
		var lin [4]T
		for i := range lin {
			lin[i] = q1[i].Scale(1 - amount).Add(q2[i].Scale(amount))
		}
		return quatNormalize(lin)
	}
	sinTheta := dot.Const(1).Sub(dot.Mul(dot)).Sqrt()
	theta := sinTheta.Atan2(dot)
	s1 := theta.Scale(1 - amount).Sin().Div(sinTheta)
	s2 := theta.Scale(amount).Sin().Div(sinTheta)
	var out [4]T
	for i := range out {
		out[i] = q1[i].Mul(s1).Add(q2[i].Mul(s2))
	}
	return out
}

// quatToRotationVector extracts the rotation vector (axis times angle, in radians) of
// a quaternion. The input need not be unit length and is normalized first; the sign
// is then fixed so the extracted angle is the minimal one.
//
// For vanishing rotations sin²θ hits exact zero and the general formula divides 0 by
// 0; there the exact linearization angle_axis = 2·vec(q) is used instead, which keeps
// derivatives finite and maps the identity to an exact zero vector.
func quatToRotationVector[T autodiff.Scalar[T]](q [4]T) [3]T {
	q = quatNormalize(q)
	if q[0].Value() < 0 {
		for i := range q {
			q[i] = q[i].Neg()
		}
	}
	sinSquared := q[1].Mul(q[1]).Add(q[2].Mul(q[2])).Add(q[3].Mul(q[3]))
	if sinSquared.Value() > 0 {
		sinTheta := sinSquared.Sqrt()
		k := sinTheta.Atan2(q[0]).Scale(2).Div(sinTheta)
		return [3]T{q[1].Mul(k), q[2].Mul(k), q[3].Mul(k)}
	}
	return [3]T{q[1].Scale(2), q[2].Scale(2), q[3].Scale(2)}
}

// embedYaw builds the full 3D rotation of a planar pose: the yaw rotation about the
// vertical axis composed with the node's constant gravity alignment.
func embedYaw[T autodiff.Scalar[T]](yaw T, gravityAlignment [4]float64) [4]T {
	half := yaw.Scale(0.5)
	yawQuat := [4]T{half.Cos(), half.Const(0), half.Const(0), half.Sin()}
	return quatProduct(yawQuat, liftQuat(yaw, gravityAlignment))
}

// interpolateNodes blends two embedded node poses at the given fraction of the time
// between them: translations linearly, rotations spherically. Each pose block holds
// (x, y, yaw). The fraction is a plain constant, so derivatives flow only through the
// pose parameters.
func interpolateNodes[T autodiff.Scalar[T]](
	prevPose []T, prevGravityAlignment [4]float64,
	nextPose []T, nextGravityAlignment [4]float64,
	fraction float64,
) (rotation [4]T, translation [3]T) {
	prevRotation := embedYaw(prevPose[2], prevGravityAlignment)
	nextRotation := embedYaw(nextPose[2], nextGravityAlignment)
	rotation = quatSlerp(prevRotation, nextRotation, fraction)
	translation = [3]T{
		prevPose[0].Add(nextPose[0].Sub(prevPose[0]).Scale(fraction)),
		prevPose[1].Add(nextPose[1].Sub(prevPose[1]).Scale(fraction)),
		prevPose[0].Const(0),
	}
	return rotation, translation
}

// computeUnscaledError compares the observed transform against the relative pose of
// end with respect to start. The first three components are the translation error in
// the start frame, the last three the rotation error as a rotation vector.
func computeUnscaledError[T autodiff.Scalar[T]](
	observedRotation [4]float64, observedTranslation [3]float64,
	startRotation [4]T, startTranslation [3]T,
	endRotation [4]T, endTranslation [3]T,
) [6]T {
	delta := [3]T{
		endTranslation[0].Sub(startTranslation[0]),
		endTranslation[1].Sub(startTranslation[1]),
		endTranslation[2].Sub(startTranslation[2]),
	}
	hTranslation := quatRotate(quatConjugate(startRotation), delta)
	hRotationInverse := quatProduct(quatConjugate(endRotation), startRotation)
	rotationError := quatToRotationVector(quatProduct(hRotationInverse, liftQuat(startRotation[0], observedRotation)))
	ref := startRotation[0]
	return [6]T{
		ref.Const(observedTranslation[0]).Sub(hTranslation[0]),
		ref.Const(observedTranslation[1]).Sub(hTranslation[1]),
		ref.Const(observedTranslation[2]).Sub(hTranslation[2]),
		rotationError[0],
		rotationError[1],
		rotationError[2],
	}
}

// scaleError maps the raw 6-vector through the inverse covariance (row-major 6x6)
// and then applies the scalar weights, translation on components 0-2 and rotation on
// components 3-5.
func scaleError[T autodiff.Scalar[T]](e [6]T, inverseCovariance *[36]float64, translationWeight, rotationWeight float64) [6]T {
	var out [6]T
	for i := range out {
		mapped := e[0].Scale(inverseCovariance[6*i])
		for j := 1; j < 6; j++ {
			mapped = mapped.Add(e[j].Scale(inverseCovariance[6*i+j]))
		}
		weight := translationWeight
		if i >= 3 {
			weight = rotationWeight
		}
		out[i] = mapped.Scale(weight)
	}
	return out
}

// normalizeAngleDifference wraps an angle difference into (-π, π]. The loop guards
// inspect only value parts; each 2π shift leaves derivatives untouched.
func normalizeAngleDifference[T autodiff.Scalar[T]](d T) T {
	twoPi := d.Const(2 * math.Pi)
	for d.Value() > math.Pi {
		d = d.Sub(twoPi)
	}
	for d.Value() < -math.Pi {
		d = d.Add(twoPi)
	}
	return d
}

// floatParams copies a plain parameter block into Scalar form for generic evaluation.
func floatParams(values []float64) []autodiff.Float {
	out := make([]autodiff.Float, len(values))
	for i, v := range values {
		out[i] = autodiff.Float(v)
	}
	return out
}
