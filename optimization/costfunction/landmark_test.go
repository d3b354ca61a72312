package costfunction

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/posegraph/autodiff"
	"go.viam.com/posegraph/landmark"
	"go.viam.com/posegraph/spatialmath"
	"go.viam.com/posegraph/trajectory"
)

func residualsOf(c *LandmarkCostFunction, prev, next, rotation, translation []float64) []float64 {
	out := make([]float64, 6)
	c.Residuals([][]float64{prev, next, rotation, translation}, out)
	return out
}

func quatArray(q quat.Number) []float64 {
	return []float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

func TestZeroResidualAtPerfectEstimate(t *testing.T) {
	base := time.Unix(1000, 0)
	prevNode := trajectory.Node{
		Time: base, Pose: trajectory.Pose2D{X: 0.5, Y: -0.25, Theta: 0.3},
		GravityAlignment: spatialmath.Normalize(quat.Number{Real: 1, Imag: 0.02, Jmag: -0.01}),
	}
	nextNode := trajectory.Node{
		Time: base.Add(10 * time.Second), Pose: trajectory.Pose2D{X: 1.5, Y: 0.75, Theta: 0.9},
		GravityAlignment: spatialmath.Normalize(quat.Number{Real: 1, Imag: -0.03, Jmag: 0.015}),
	}
	truth := spatialmath.NewPose(
		r3.Vector{X: 2, Y: -1, Z: 0.5},
		spatialmath.NewOrientationFromQuaternion(quat.Number{Real: 0.9, Imag: 0.2, Jmag: -0.3, Kmag: 0.15}),
	)
	interpolated := spatialmath.Interpolate(prevNode.EmbeddedPose(), nextNode.EmbeddedPose(), 0.4)
	prev := []float64{0.5, -0.25, 0.3}
	next := []float64{1.5, 0.75, 0.9}
	rotation := quatArray(truth.Orientation().Quaternion())
	translation := []float64{2, -1, 0.5}

	// measured from the tracking frame
	obs := landmark.Observation{
		Time:                 base.Add(4 * time.Second),
		LandmarkToTracking:   spatialmath.PoseBetween(interpolated, truth),
		TranslationWeight:    1.2,
		RotationWeight:       0.7,
		ObservedFromTracking: true,
	}
	res := residualsOf(NewLandmarkCostFunction(obs, prevNode, nextNode), prev, next, rotation, translation)
	for i := 0; i < 6; i++ {
		test.That(t, res[i], test.ShouldAlmostEqual, 0, 1e-9)
	}

	// measured from the landmark frame
	obs.LandmarkToTracking = spatialmath.PoseBetween(truth, interpolated)
	obs.ObservedFromTracking = false
	res = residualsOf(NewLandmarkCostFunction(obs, prevNode, nextNode), prev, next, rotation, translation)
	for i := 0; i < 6; i++ {
		test.That(t, res[i], test.ShouldAlmostEqual, 0, 1e-9)
	}
}

func TestMidpointTranslationError(t *testing.T) {
	base := time.Unix(1000, 0)
	prevNode := trajectory.NewNode(base, trajectory.Pose2D{})
	nextNode := trajectory.NewNode(base.Add(10*time.Second), trajectory.Pose2D{X: 2})
	obs := landmark.Observation{
		Time:                 base.Add(5 * time.Second),
		LandmarkToTracking:   spatialmath.NewZeroPose(),
		TranslationWeight:    1,
		RotationWeight:       1,
		ObservedFromTracking: true,
	}
	c := NewLandmarkCostFunction(obs, prevNode, nextNode)

	// the interpolated pose is (1, 0) with identity rotation; an estimate sitting
	// exactly there has nothing to correct, and every step is exact in float64
	res := residualsOf(c, []float64{0, 0, 0}, []float64{2, 0, 0}, []float64{1, 0, 0, 0}, []float64{1, 0, 0})
	for i := 0; i < 6; i++ {
		test.That(t, res[i], test.ShouldEqual, 0)
	}

	// moving the estimate shows up negated in the translation components
	res = residualsOf(c, []float64{0, 0, 0}, []float64{2, 0, 0}, []float64{1, 0, 0, 0}, []float64{1.4, 0.3, -0.2})
	test.That(t, res[0], test.ShouldAlmostEqual, -0.4, 1e-12)
	test.That(t, res[1], test.ShouldAlmostEqual, -0.3, 1e-12)
	test.That(t, res[2], test.ShouldAlmostEqual, 0.2, 1e-12)
	test.That(t, res[3], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, res[4], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, res[5], test.ShouldAlmostEqual, 0, 1e-12)
}

func TestDirectionFlagNegatesError(t *testing.T) {
	base := time.Unix(1000, 0)

	// translation offset with matching rotations everywhere
	prevNode := trajectory.NewNode(base, trajectory.Pose2D{Theta: 0.4})
	nextNode := trajectory.NewNode(base.Add(10*time.Second), trajectory.Pose2D{Theta: 0.4})
	yaw := quat.Number{Real: math.Cos(0.2), Kmag: math.Sin(0.2)}
	obs := landmark.Observation{
		Time:                 base.Add(5 * time.Second),
		LandmarkToTracking:   spatialmath.NewZeroPose(),
		TranslationWeight:    1,
		RotationWeight:       1,
		ObservedFromTracking: true,
	}
	prev := []float64{0, 0, 0.4}
	next := []float64{0, 0, 0.4}
	rotation := quatArray(yaw)
	translation := []float64{0.6, -0.2, 0.1}

	forward := residualsOf(NewLandmarkCostFunction(obs, prevNode, nextNode), prev, next, rotation, translation)
	obs.ObservedFromTracking = false
	backward := residualsOf(NewLandmarkCostFunction(obs, prevNode, nextNode), prev, next, rotation, translation)
	for i := 0; i < 6; i++ {
		test.That(t, forward[i], test.ShouldAlmostEqual, -backward[i], 1e-12)
	}
	// with equal rotations the re-expressed error is the global offset, negated
	test.That(t, forward[0], test.ShouldAlmostEqual, -0.6, 1e-12)
	test.That(t, forward[1], test.ShouldAlmostEqual, 0.2, 1e-12)
	test.That(t, forward[2], test.ShouldAlmostEqual, -0.1, 1e-12)

	// rotation offset with zero translations
	prevNode = trajectory.NewNode(base, trajectory.Pose2D{})
	nextNode = trajectory.NewNode(base.Add(10*time.Second), trajectory.Pose2D{})
	yaw = quat.Number{Real: math.Cos(0.25), Kmag: math.Sin(0.25)}
	obs.ObservedFromTracking = true
	prev = []float64{0, 0, 0}
	next = []float64{0, 0, 0}
	rotation = quatArray(yaw)
	translation = []float64{0, 0, 0}

	forward = residualsOf(NewLandmarkCostFunction(obs, prevNode, nextNode), prev, next, rotation, translation)
	obs.ObservedFromTracking = false
	backward = residualsOf(NewLandmarkCostFunction(obs, prevNode, nextNode), prev, next, rotation, translation)
	for i := 0; i < 6; i++ {
		test.That(t, forward[i], test.ShouldAlmostEqual, -backward[i], 1e-12)
	}
	test.That(t, forward[5], test.ShouldAlmostEqual, -0.5, 1e-12)
	test.That(t, backward[5], test.ShouldAlmostEqual, 0.5, 1e-12)
}

func TestWeightScaling(t *testing.T) {
	base := time.Unix(1000, 0)
	prevNode := trajectory.NewNode(base, trajectory.Pose2D{})
	nextNode := trajectory.NewNode(base.Add(10*time.Second), trajectory.Pose2D{X: 2})
	obs := landmark.Observation{
		Time:                 base.Add(5 * time.Second),
		LandmarkToTracking:   spatialmath.NewZeroPose(),
		TranslationWeight:    1,
		RotationWeight:       1,
		ObservedFromTracking: true,
	}
	prev := []float64{0, 0, 0}
	next := []float64{2, 0, 0}
	rotation := quatArray(quat.Number{Real: math.Cos(0.35), Kmag: math.Sin(0.35)})
	translation := []float64{1.4, 0.3, -0.2}

	res1 := residualsOf(NewLandmarkCostFunction(obs, prevNode, nextNode), prev, next, rotation, translation)

	obs.TranslationWeight = 2
	obs.RotationWeight = 3
	res2 := residualsOf(NewLandmarkCostFunction(obs, prevNode, nextNode), prev, next, rotation, translation)
	for i := 0; i < 3; i++ {
		test.That(t, res2[i], test.ShouldAlmostEqual, 2*res1[i], 1e-12)
	}
	for i := 3; i < 6; i++ {
		test.That(t, res2[i], test.ShouldAlmostEqual, 3*res1[i], 1e-12)
	}
}

func TestNinetyDegreeRotationError(t *testing.T) {
	base := time.Unix(1000, 0)
	prevNode := trajectory.NewNode(base, trajectory.Pose2D{})
	nextNode := trajectory.NewNode(base.Add(10*time.Second), trajectory.Pose2D{})
	obs := landmark.Observation{
		Time:                 base.Add(5 * time.Second),
		LandmarkToTracking:   spatialmath.NewZeroPose(),
		TranslationWeight:    1,
		RotationWeight:       1,
		ObservedFromTracking: true,
	}
	c := NewLandmarkCostFunction(obs, prevNode, nextNode)
	rotation := quatArray(quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)})
	res := residualsOf(c, []float64{0, 0, 0}, []float64{0, 0, 0}, rotation, []float64{0, 0, 0})

	for i := 0; i < 3; i++ {
		test.That(t, res[i], test.ShouldAlmostEqual, 0, 1e-12)
	}
	test.That(t, res[3], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, res[4], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, math.Abs(res[5]), test.ShouldAlmostEqual, math.Pi/2, 1e-12)
}

func TestInverseCovarianceMixesComponents(t *testing.T) {
	base := time.Unix(1000, 0)
	prevNode := trajectory.NewNode(base, trajectory.Pose2D{})
	nextNode := trajectory.NewNode(base.Add(10*time.Second), trajectory.Pose2D{})

	flat := make([]float64, 36)
	for i := 0; i < 6; i++ {
		flat[6*i+i] = 1
	}
	flat[0*6+1], flat[1*6+0] = 0.5, 0.5
	flat[0*6+5], flat[5*6+0] = 0.2, 0.2
	invCov, err := landmark.NewInverseCovariance(flat)
	test.That(t, err, test.ShouldBeNil)

	obs := landmark.Observation{
		Time:                 base.Add(5 * time.Second),
		LandmarkToTracking:   spatialmath.NewZeroPose(),
		TranslationWeight:    1,
		RotationWeight:       1,
		InverseCovariance:    invCov,
		ObservedFromTracking: true,
	}
	c := NewLandmarkCostFunction(obs, prevNode, nextNode)
	res := residualsOf(c, []float64{0, 0, 0}, []float64{0, 0, 0}, []float64{1, 0, 0, 0}, []float64{0.3, 0.5, 0})

	// raw error is (-0.3, -0.5, 0, 0, 0, 0); the matrix mixes it across rows,
	// including into the rotation rows
	test.That(t, res[0], test.ShouldAlmostEqual, -0.3+0.5*-0.5, 1e-12)
	test.That(t, res[1], test.ShouldAlmostEqual, 0.5*-0.3+-0.5, 1e-12)
	test.That(t, res[2], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, res[5], test.ShouldAlmostEqual, 0.2*-0.3, 1e-12)
}

func TestConstructionSnapshotsInputs(t *testing.T) {
	base := time.Unix(1000, 0)
	prevNode := trajectory.NewNode(base, trajectory.Pose2D{})
	nextNode := trajectory.NewNode(base.Add(10*time.Second), trajectory.Pose2D{X: 2})
	invCov := landmark.IdentityInverseCovariance()
	obs := landmark.Observation{
		Time:                 base.Add(5 * time.Second),
		LandmarkToTracking:   spatialmath.NewPoseFromPoint(r3.Vector{X: 0.4}),
		TranslationWeight:    1.5,
		RotationWeight:       0.5,
		InverseCovariance:    invCov,
		ObservedFromTracking: true,
	}
	c := NewLandmarkCostFunction(obs, prevNode, nextNode)
	prev := []float64{0, 0, 0}
	next := []float64{2, 0, 0}
	rotation := []float64{1, 0, 0, 0}
	translation := []float64{1.2, 0.1, 0}

	before := residualsOf(c, prev, next, rotation, translation)

	// mutating the inputs after construction must not leak into the term
	invCov.SetSym(0, 0, 99)
	obs.TranslationWeight = 99
	after := residualsOf(c, prev, next, rotation, translation)
	test.That(t, after, test.ShouldResemble, before)
}

func TestJetGradientsMatchFiniteDifferences(t *testing.T) {
	base := time.Unix(1000, 0)
	prevNode := trajectory.Node{
		Time: base, Pose: trajectory.Pose2D{X: 0.5, Y: -0.25, Theta: 0.3},
		GravityAlignment: spatialmath.Normalize(quat.Number{Real: 1, Imag: 0.02, Jmag: -0.01}),
	}
	nextNode := trajectory.Node{
		Time: base.Add(10 * time.Second), Pose: trajectory.Pose2D{X: 1.5, Y: 0.75, Theta: 0.9},
		GravityAlignment: spatialmath.Normalize(quat.Number{Real: 1, Imag: -0.03, Jmag: 0.015}),
	}
	flat := make([]float64, 36)
	for i := 0; i < 6; i++ {
		flat[6*i+i] = 1
	}
	flat[1*6+2], flat[2*6+1] = 0.3, 0.3
	flat[3*6+4], flat[4*6+3] = 0.1, 0.1
	invCov, err := landmark.NewInverseCovariance(flat)
	test.That(t, err, test.ShouldBeNil)
	obs := landmark.Observation{
		Time: base.Add(4 * time.Second),
		LandmarkToTracking: spatialmath.NewPose(
			r3.Vector{X: 0.4, Y: -0.6, Z: 0.2},
			spatialmath.NewOrientationFromQuaternion(quat.Number{Real: 0.8, Imag: -0.1, Jmag: 0.25, Kmag: 0.4}),
		),
		TranslationWeight:    1.2,
		RotationWeight:       0.7,
		InverseCovariance:    invCov,
		ObservedFromTracking: true,
	}
	c := NewLandmarkCostFunction(obs, prevNode, nextNode)

	estimate := spatialmath.Normalize(quat.Number{Real: 0.9, Imag: 0.2, Jmag: -0.3, Kmag: 0.15})
	blocks := [][]float64{
		{0.5, -0.25, 0.3},
		{1.5, 0.75, 0.9},
		quatArray(estimate),
		{2, -1, 0.5},
	}

	const width = 13
	jetBlocks := make([][]autodiff.Jet, len(blocks))
	slot := 0
	for b, vals := range blocks {
		jets := make([]autodiff.Jet, len(vals))
		for i, v := range vals {
			jets[i] = autodiff.NewVariable(v, width, slot)
			slot++
		}
		jetBlocks[b] = jets
	}
	jetOut := make([]autodiff.Jet, 6)
	c.JetResiduals(jetBlocks, jetOut)

	plain := make([]float64, 6)
	c.Residuals(blocks, plain)
	for r := 0; r < 6; r++ {
		test.That(t, jetOut[r].Val, test.ShouldAlmostEqual, plain[r], 1e-12)
	}

	const h = 1e-6
	slot = 0
	for b := range blocks {
		for i := range blocks[b] {
			bump := func(delta float64) []float64 {
				perturbed := make([][]float64, len(blocks))
				for k := range blocks {
					perturbed[k] = append([]float64(nil), blocks[k]...)
				}
				perturbed[b][i] += delta
				out := make([]float64, 6)
				c.Residuals(perturbed, out)
				return out
			}
			plus := bump(h)
			minus := bump(-h)
			for r := 0; r < 6; r++ {
				fd := (plus[r] - minus[r]) / (2 * h)
				test.That(t, jetOut[r].Grad[slot], test.ShouldAlmostEqual, fd, 1e-6)
			}
			slot++
		}
	}
}

func TestJetGradientsFiniteAtZeroRotationError(t *testing.T) {
	base := time.Unix(1000, 0)
	prevNode := trajectory.NewNode(base, trajectory.Pose2D{})
	nextNode := trajectory.NewNode(base.Add(10*time.Second), trajectory.Pose2D{})
	obs := landmark.Observation{
		Time:                 base.Add(5 * time.Second),
		LandmarkToTracking:   spatialmath.NewZeroPose(),
		TranslationWeight:    1,
		RotationWeight:       1,
		ObservedFromTracking: true,
	}
	c := NewLandmarkCostFunction(obs, prevNode, nextNode)

	blocks := [][]float64{{0, 0, 0}, {0, 0, 0}, {1, 0, 0, 0}, {0, 0, 0}}
	const width = 13
	jetBlocks := make([][]autodiff.Jet, len(blocks))
	slot := 0
	for b, vals := range blocks {
		jets := make([]autodiff.Jet, len(vals))
		for i, v := range vals {
			jets[i] = autodiff.NewVariable(v, width, slot)
			slot++
		}
		jetBlocks[b] = jets
	}
	jetOut := make([]autodiff.Jet, 6)
	c.JetResiduals(jetBlocks, jetOut)

	for r := 0; r < 6; r++ {
		test.That(t, jetOut[r].Val, test.ShouldAlmostEqual, 0, 1e-12)
		for k := 0; k < width; k++ {
			test.That(t, math.IsNaN(jetOut[r].Grad[k]), test.ShouldBeFalse)
			test.That(t, math.IsInf(jetOut[r].Grad[k], 0), test.ShouldBeFalse)
		}
	}
}
