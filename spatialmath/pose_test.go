package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func yawPose(x, y, yaw float64) Pose {
	return NewPose(r3.Vector{X: x, Y: y}, NewOrientationFromQuaternion((&R4AA{yaw, 0., 0., 1.}).ToQuat()))
}

func TestNewPose(t *testing.T) {
	zero := NewZeroPose()
	test.That(t, zero.Point(), test.ShouldResemble, r3.Vector{})
	test.That(t, OrientationAlmostEqual(zero.Orientation(), NewZeroOrientation()), test.ShouldBeTrue)

	pt := r3.Vector{X: 1, Y: 2, Z: 3}
	p := NewPose(pt, NewOrientationFromQuaternion(q90z))
	test.That(t, p.Point().X, test.ShouldAlmostEqual, pt.X)
	test.That(t, p.Point().Y, test.ShouldAlmostEqual, pt.Y)
	test.That(t, p.Point().Z, test.ShouldAlmostEqual, pt.Z)
	test.That(t, QuaternionAlmostEqual(p.Orientation().Quaternion(), q90z, 1e-12), test.ShouldBeTrue)

	test.That(t, PoseAlmostEqual(NewPoseFromPoint(pt), NewPose(pt, NewZeroOrientation())), test.ShouldBeTrue)
	fromOrient := NewPoseFromOrientation(p.Orientation())
	test.That(t, fromOrient.Point(), test.ShouldResemble, r3.Vector{})
	test.That(t, OrientationAlmostEqual(fromOrient.Orientation(), p.Orientation()), test.ShouldBeTrue)
}

func TestComposeAndInverse(t *testing.T) {
	a := yawPose(1, 0, math.Pi/2)
	b := NewPoseFromPoint(r3.Vector{X: 1})

	// applying b then a carries b's translation through a's rotation
	ab := Compose(a, b)
	test.That(t, ab.Point().X, test.ShouldAlmostEqual, 1)
	test.That(t, ab.Point().Y, test.ShouldAlmostEqual, 1)
	test.That(t, ab.Point().Z, test.ShouldAlmostEqual, 0)
	test.That(t, OrientationAlmostEqual(ab.Orientation(), a.Orientation()), test.ShouldBeTrue)

	test.That(t, PoseAlmostEqual(Compose(a, NewZeroPose()), a), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(NewZeroPose(), a), a), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(a, PoseInverse(a)), NewZeroPose()), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(PoseInverse(a), a), NewZeroPose()), test.ShouldBeTrue)
}

func TestPoseBetween(t *testing.T) {
	a := yawPose(1, -2, 0.7)
	c := yawPose(0.5, 0.25, -0.2)

	between := PoseBetween(a, Compose(a, c))
	test.That(t, PoseAlmostEqualEps(between, c, 1e-8), test.ShouldBeTrue)

	self := PoseBetween(a, a)
	test.That(t, PoseAlmostEqual(self, NewZeroPose()), test.ShouldBeTrue)
}

func TestPoseDelta(t *testing.T) {
	a := yawPose(1, 1, 0)
	b := NewPose(r3.Vector{X: 3, Y: 2, Z: 1}, NewOrientationFromQuaternion(q90z))

	delta := PoseDelta(a, b)
	test.That(t, delta.Point().X, test.ShouldAlmostEqual, 2)
	test.That(t, delta.Point().Y, test.ShouldAlmostEqual, 1)
	test.That(t, delta.Point().Z, test.ShouldAlmostEqual, 1)
	test.That(t, delta.Orientation().AxisAngles().Theta, test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, delta.Orientation().AxisAngles().RZ, test.ShouldAlmostEqual, 1)
}

func TestInterpolate(t *testing.T) {
	p1 := NewZeroPose()
	p2 := NewPose(r3.Vector{X: 2, Z: 4}, NewOrientationFromQuaternion(q90z))

	test.That(t, PoseAlmostEqual(Interpolate(p1, p2, 0), p1), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Interpolate(p1, p2, 1), p2), test.ShouldBeTrue)

	mid := Interpolate(p1, p2, 0.5)
	test.That(t, mid.Point().X, test.ShouldAlmostEqual, 1)
	test.That(t, mid.Point().Y, test.ShouldAlmostEqual, 0)
	test.That(t, mid.Point().Z, test.ShouldAlmostEqual, 2)
	test.That(t, QuaternionAlmostEqual(mid.Orientation().Quaternion(), q45z, 1e-12), test.ShouldBeTrue)
}

func TestPoseAlmostEqualEps(t *testing.T) {
	p := yawPose(1, 2, 0.3)
	nudged := yawPose(1+1e-8, 2, 0.3)
	shifted := yawPose(1.001, 2, 0.3)

	test.That(t, PoseAlmostEqual(p, nudged), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(p, shifted), test.ShouldBeFalse)
	test.That(t, PoseAlmostEqualEps(p, shifted, 1e-2), test.ShouldBeTrue)
}
