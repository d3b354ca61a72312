package costfunction

import (
	"go.viam.com/posegraph/autodiff"
	"go.viam.com/posegraph/trajectory"
)

// RelativePoseCostFunction penalizes deviation between an observed relative pose of
// two trajectory nodes and the relative pose implied by their current estimates. It
// keeps consecutive nodes from drifting apart while landmark terms pull on them.
//
// It produces three residuals: the weighted planar translation error expressed in
// the start node's frame, then the weighted heading error wrapped into (-π, π].
type RelativePoseCostFunction struct {
	observed          [3]float64
	translationWeight float64
	rotationWeight    float64
}

// NewRelativePoseCostFunction builds the residual term for an observed relative pose
// of the end node with respect to the start node.
func NewRelativePoseCostFunction(observed trajectory.Pose2D, translationWeight, rotationWeight float64) *RelativePoseCostFunction {
	return &RelativePoseCostFunction{
		observed:          [3]float64{observed.X, observed.Y, observed.Theta},
		translationWeight: translationWeight,
		rotationWeight:    rotationWeight,
	}
}

// EvaluateRelativePose computes the three residual components for the given
// parameter blocks, each holding (x, y, yaw). residuals receives exactly three
// values.
func EvaluateRelativePose[T autodiff.Scalar[T]](
	c *RelativePoseCostFunction,
	startNodePose, endNodePose []T,
	residuals []T,
) {
	cosTheta := startNodePose[2].Cos()
	sinTheta := startNodePose[2].Sin()
	deltaX := endNodePose[0].Sub(startNodePose[0])
	deltaY := endNodePose[1].Sub(startNodePose[1])

	hX := cosTheta.Mul(deltaX).Add(sinTheta.Mul(deltaY))
	hY := sinTheta.Neg().Mul(deltaX).Add(cosTheta.Mul(deltaY))
	hTheta := endNodePose[2].Sub(startNodePose[2])

	ref := startNodePose[0]
	residuals[0] = ref.Const(c.observed[0]).Sub(hX).Scale(c.translationWeight)
	residuals[1] = ref.Const(c.observed[1]).Sub(hY).Scale(c.translationWeight)
	residuals[2] = normalizeAngleDifference(ref.Const(c.observed[2]).Sub(hTheta)).Scale(c.rotationWeight)
}

// NumResiduals returns the residual dimension.
func (c *RelativePoseCostFunction) NumResiduals() int { return 3 }

// BlockSizes returns the expected parameter block sizes: the start and end node
// poses (x, y, yaw).
func (c *RelativePoseCostFunction) BlockSizes() []int { return []int{3, 3} }

// Residuals evaluates the term on plain float64 parameter blocks.
func (c *RelativePoseCostFunction) Residuals(blocks [][]float64, residuals []float64) {
	out := make([]autodiff.Float, 3)
	EvaluateRelativePose(c, floatParams(blocks[0]), floatParams(blocks[1]), out)
	for i, v := range out {
		residuals[i] = v.Value()
	}
}

// JetResiduals evaluates the term on jets, propagating first-order derivatives.
func (c *RelativePoseCostFunction) JetResiduals(blocks [][]autodiff.Jet, residuals []autodiff.Jet) {
	EvaluateRelativePose(c, blocks[0], blocks[1], residuals)
}
