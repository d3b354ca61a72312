// Package optimization assembles pose graph least-squares problems and solves them.
// A problem is a set of parameter blocks plus residual terms over those blocks; the
// solvers drive the summed squared residuals toward a minimum by repeated linearized
// steps.
package optimization

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/posegraph/autodiff"
)

// CostFunction is one residual term: it maps a fixed arrangement of parameter blocks
// to an error vector. Implementations run the identical arithmetic on plain floats
// and on jets; solvers use the former to score trial steps and the latter to build
// Jacobians.
type CostFunction interface {
	NumResiduals() int
	BlockSizes() []int
	Residuals(blocks [][]float64, residuals []float64)
	JetResiduals(blocks [][]autodiff.Jet, residuals []autodiff.Jet)
}

// ParameterBlock is one contiguous group of optimization variables, such as a node
// pose or a landmark rotation.
type ParameterBlock struct {
	values    []float64
	constant  bool
	normalize func([]float64)
}

// ParameterBlockOption configures a parameter block at registration.
type ParameterBlockOption func(*ParameterBlock)

// WithConstant marks the block as fixed: solvers read it but never move it.
func WithConstant() ParameterBlockOption {
	return func(b *ParameterBlock) {
		b.constant = true
	}
}

// WithNormalization registers a hook solvers run on the block's values after every
// accepted step, pulling the block back onto its manifold.
func WithNormalization(normalize func([]float64)) ParameterBlockOption {
	return func(b *ParameterBlock) {
		b.normalize = normalize
	}
}

// Values returns the block's backing storage. Solvers write optimized values into
// it; treat it as read-only while a solve is running.
func (b *ParameterBlock) Values() []float64 {
	return b.values
}

// Size returns the number of variables in the block.
func (b *ParameterBlock) Size() int {
	return len(b.values)
}

// Constant reports whether the block is fixed.
func (b *ParameterBlock) Constant() bool {
	return b.constant
}

// NormalizeQuaternion is the normalization hook for rotation blocks kept Euclidean
// during solves: it rescales the block to unit length. An all-zero block is left
// untouched.
func NormalizeQuaternion(values []float64) {
	var sum float64
	for _, v := range values {
		sum += v * v
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return
	}
	for i := range values {
		values[i] /= n
	}
}

type residualBlock struct {
	cost   CostFunction
	loss   Loss
	blocks []*ParameterBlock
	row    int
}

// Problem is a least-squares problem under assembly: parameter blocks in
// registration order and the residual terms tying them together.
type Problem struct {
	parameterBlocks []*ParameterBlock
	residualBlocks  []*residualBlock
	numResiduals    int
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{}
}

// AddParameterBlock registers values as an optimizable block and returns its handle.
// The problem aliases the slice; solvers write optimized values back into it.
func (p *Problem) AddParameterBlock(values []float64, opts ...ParameterBlockOption) *ParameterBlock {
	b := &ParameterBlock{values: values}
	for _, opt := range opts {
		opt(b)
	}
	p.parameterBlocks = append(p.parameterBlocks, b)
	return b
}

// AddResidualBlock registers a residual term over blocks previously returned by
// AddParameterBlock. The blocks must match the cost function's expected count and
// sizes. A nil loss means the term contributes its squared norm unmodified.
func (p *Problem) AddResidualBlock(cost CostFunction, loss Loss, blocks ...*ParameterBlock) error {
	sizes := cost.BlockSizes()
	if len(blocks) != len(sizes) {
		return errors.Errorf("cost function expects %d parameter blocks, got %d", len(sizes), len(blocks))
	}
	for i, b := range blocks {
		if len(b.values) != sizes[i] {
			return errors.Errorf("parameter block %d has size %d, cost function expects %d", i, len(b.values), sizes[i])
		}
	}
	p.residualBlocks = append(p.residualBlocks, &residualBlock{cost: cost, loss: loss, blocks: blocks, row: p.numResiduals})
	p.numResiduals += cost.NumResiduals()
	return nil
}

// NumResiduals returns the total residual dimension.
func (p *Problem) NumResiduals() int {
	return p.numResiduals
}

// NumFreeParameters returns the number of variables solvers may move.
func (p *Problem) NumFreeParameters() int {
	n := 0
	for _, b := range p.parameterBlocks {
		if !b.constant {
			n += len(b.values)
		}
	}
	return n
}

// normalizeBlocks runs the normalization hooks of all free blocks.
func (p *Problem) normalizeBlocks() {
	for _, b := range p.parameterBlocks {
		if b.normalize != nil && !b.constant {
			b.normalize(b.values)
		}
	}
}
