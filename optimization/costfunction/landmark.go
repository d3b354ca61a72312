// Package costfunction implements the residual terms of a pose graph: cost functions
// that map the current pose estimates to weighted error vectors whose summed squares
// the optimizer minimizes. Every term evaluates through the same generic arithmetic
// whether it runs on plain floats or on derivative-carrying jets.
package costfunction

import (
	"go.viam.com/posegraph/autodiff"
	"go.viam.com/posegraph/landmark"
	"go.viam.com/posegraph/spatialmath"
	"go.viam.com/posegraph/trajectory"
)

// compositionOrder selects which pose leads the frame comparison. It is resolved
// once at construction from the observation's frame flag, so evaluation performs a
// single value-independent swap.
type compositionOrder uint8

const (
	// the transform was measured from the tracking frame toward the landmark
	trackingLeads compositionOrder = iota
	// the transform was measured from the landmark frame toward the tracking frame
	landmarkLeads
)

// LandmarkCostFunction measures how far a landmark's current pose estimate is from
// where one observation says it should be, relative to the trajectory pose
// interpolated at the observation time. It produces six residuals: three weighted
// translation errors re-expressed in the gravity-referenced global frame, then three
// weighted rotation errors as a rotation vector.
//
// Everything the evaluation needs is copied out of the observation and the two
// bracketing nodes at construction; the originals are never read again. prev.Time
// must be strictly before next.Time, and the observation time should lie between
// them.
type LandmarkCostFunction struct {
	observedRotation       [4]float64
	observedTranslation    [3]float64
	prevGravityAlignment   [4]float64
	nextGravityAlignment   [4]float64
	translationWeight      float64
	rotationWeight         float64
	interpolationParameter float64
	inverseCovariance      [36]float64
	order                  compositionOrder
}

// NewLandmarkCostFunction builds the residual term for one observation bracketed by
// two trajectory nodes. A nil inverse covariance on the observation is treated as
// the identity.
func NewLandmarkCostFunction(obs landmark.Observation, prev, next trajectory.Node) *LandmarkCostFunction {
	rotation := spatialmath.Normalize(obs.LandmarkToTracking.Orientation().Quaternion())
	pt := obs.LandmarkToTracking.Point()
	prevGravity := spatialmath.Normalize(prev.GravityAlignment)
	nextGravity := spatialmath.Normalize(next.GravityAlignment)

	c := &LandmarkCostFunction{
		observedRotation:       [4]float64{rotation.Real, rotation.Imag, rotation.Jmag, rotation.Kmag},
		observedTranslation:    [3]float64{pt.X, pt.Y, pt.Z},
		prevGravityAlignment:   [4]float64{prevGravity.Real, prevGravity.Imag, prevGravity.Jmag, prevGravity.Kmag},
		nextGravityAlignment:   [4]float64{nextGravity.Real, nextGravity.Imag, nextGravity.Jmag, nextGravity.Kmag},
		translationWeight:      obs.TranslationWeight,
		rotationWeight:         obs.RotationWeight,
		interpolationParameter: trajectory.InterpolationParameter(prev, next, obs.Time),
		order:                  landmarkLeads,
	}
	if obs.ObservedFromTracking {
		c.order = trackingLeads
	}
	if obs.InverseCovariance != nil {
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				c.inverseCovariance[6*i+j] = obs.InverseCovariance.At(i, j)
			}
		}
	} else {
		for i := 0; i < 6; i++ {
			c.inverseCovariance[6*i+i] = 1
		}
	}
	return c
}

// EvaluateLandmark computes the six residual components for the given parameter
// blocks. It is generic over the scalar representation so the identical arithmetic
// serves plain evaluation and derivative propagation.
//
// prevNodePose and nextNodePose hold (x, y, yaw) of the bracketing trajectory nodes,
// landmarkRotation the landmark's unit quaternion estimate as (w, x, y, z), and
// landmarkTranslation its position. residuals receives exactly six values.
func EvaluateLandmark[T autodiff.Scalar[T]](
	c *LandmarkCostFunction,
	prevNodePose, nextNodePose, landmarkRotation, landmarkTranslation []T,
	residuals []T,
) {
	interpolatedRotation, interpolatedTranslation := interpolateNodes(
		prevNodePose, c.prevGravityAlignment,
		nextNodePose, c.nextGravityAlignment,
		c.interpolationParameter,
	)
	estimateRotation := [4]T{landmarkRotation[0], landmarkRotation[1], landmarkRotation[2], landmarkRotation[3]}
	estimateTranslation := [3]T{landmarkTranslation[0], landmarkTranslation[1], landmarkTranslation[2]}

	startRotation, startTranslation := interpolatedRotation, interpolatedTranslation
	endRotation, endTranslation := estimateRotation, estimateTranslation
	if c.order == landmarkLeads {
		startRotation, endRotation = endRotation, startRotation
		startTranslation, endTranslation = endTranslation, startTranslation
	}

	e := computeUnscaledError(
		c.observedRotation, c.observedTranslation,
		startRotation, startTranslation,
		endRotation, endTranslation,
	)

	// re-express the translation error in the gravity-referenced global frame the
	// covariance is specified in
	enu := quatRotate(interpolatedRotation, [3]T{e[0], e[1], e[2]})
	e[0], e[1], e[2] = enu[0], enu[1], enu[2]

	e = scaleError(e, &c.inverseCovariance, c.translationWeight, c.rotationWeight)
	copy(residuals, e[:])
}

// NumResiduals returns the residual dimension.
func (c *LandmarkCostFunction) NumResiduals() int { return 6 }

// BlockSizes returns the expected parameter block sizes: the two bracketing node
// poses (x, y, yaw), the landmark rotation quaternion (w, x, y, z), and the landmark
// translation.
func (c *LandmarkCostFunction) BlockSizes() []int { return []int{3, 3, 4, 3} }

// Residuals evaluates the term on plain float64 parameter blocks.
func (c *LandmarkCostFunction) Residuals(blocks [][]float64, residuals []float64) {
	out := make([]autodiff.Float, 6)
	EvaluateLandmark(c, floatParams(blocks[0]), floatParams(blocks[1]), floatParams(blocks[2]), floatParams(blocks[3]), out)
	for i, v := range out {
		residuals[i] = v.Value()
	}
}

// JetResiduals evaluates the term on jets, propagating first-order derivatives.
func (c *LandmarkCostFunction) JetResiduals(blocks [][]autodiff.Jet, residuals []autodiff.Jet) {
	EvaluateLandmark(c, blocks[0], blocks[1], blocks[2], blocks[3], residuals)
}
