package optimization

import "math"

// Loss reshapes how much a residual block contributes to the total cost, limiting
// the influence of outlier observations.
type Loss interface {
	// Reweight returns the factor to scale a residual block and its Jacobian rows
	// by, given the block's unweighted Euclidean norm. Solvers treat the factor as
	// locally constant when differentiating.
	Reweight(norm float64) float64
}

// HuberLoss leaves residual blocks whose norm is within Delta untouched and scales
// larger ones down so their cost grows linearly in the norm instead of
// quadratically.
type HuberLoss struct {
	Delta float64
}

// NewHuberLoss returns a Huber loss with the given inlier threshold.
func NewHuberLoss(delta float64) *HuberLoss {
	return &HuberLoss{Delta: delta}
}

// Reweight scales an outlier block so its squared norm becomes the Huber cost
// delta*(2*norm - delta).
func (l *HuberLoss) Reweight(norm float64) float64 {
	if norm <= l.Delta {
		return 1
	}
	return math.Sqrt(l.Delta*(2*norm-l.Delta)) / norm
}
