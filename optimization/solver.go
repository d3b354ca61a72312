package optimization

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posegraph/autodiff"
	"go.viam.com/posegraph/logging"
)

const (
	// damping adjustment on accepted and rejected steps
	lambdaShrink = 0.1
	lambdaGrowth = 10
	minLambda    = 1e-12
	// floor for the damping diagonal, keeping steps bounded along directions the
	// residuals are locally insensitive to
	minDiagonal = 1e-6
	// consecutive rejected steps before the iteration gives up
	maxStepRetries = 20
)

// Solver minimizes the summed squared residuals of a problem with damped
// Gauss-Newton (Levenberg-Marquardt) iterations: linearize all residual terms,
// solve the damped normal equations for a step, and accept the step only if it
// lowers the cost, adjusting the damping either way.
type Solver struct {
	Options Options
	Logger  logging.Logger
	Clock   clock.Clock
}

// NewSolver returns a solver with the given options.
func NewSolver(opts Options, logger logging.Logger) *Solver {
	return &Solver{Options: opts, Logger: logger, Clock: clock.New()}
}

// Solve iterates until convergence, the iteration cap, or ctx cancellation. The
// optimized values are left in the problem's parameter blocks; the report describes
// the run either way.
func (s *Solver) Solve(ctx context.Context, p *Problem) (Report, error) {
	if p.NumResiduals() == 0 {
		return Report{}, errors.New("problem has no residual blocks")
	}
	lay := newLayout(p)
	if lay.total == 0 {
		return Report{}, errors.New("problem has no free parameters")
	}
	workers := s.Options.Workers
	if workers < 1 {
		workers = 1
	}

	m, n := p.NumResiduals(), lay.total
	residuals := mat.NewVecDense(m, nil)
	trial := mat.NewVecDense(m, nil)
	jacobian := mat.NewDense(m, n, nil)
	jtj := mat.NewSymDense(n, nil)
	damped := mat.NewSymDense(n, nil)
	gradient := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)

	start := s.Clock.Now()
	cost, err := evaluateJacobian(ctx, p, lay, workers, residuals, jacobian)
	if err != nil {
		report := Report{}
		if ctx.Err() != nil {
			report.Reason = ReasonCancelled
		}
		return report, err
	}
	report := Report{InitialCost: cost, Reason: ReasonMaxIterations}
	lambda := s.Options.InitialLambda

	for iter := 0; iter < s.Options.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			report.Reason = ReasonCancelled
			s.finish(&report, cost, start, residuals)
			return report, err
		}
		report.Iterations = iter + 1

		jtj.SymOuterK(1, jacobian.T())
		gradient.MulVec(jacobian.T(), residuals)
		rhs.ScaleVec(-1, gradient)

		accepted := false
		var costDrop, stepNorm float64
		for try := 0; try < maxStepRetries; try++ {
			dampNormalEquations(damped, jtj, lambda)
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= lambdaGrowth
				continue
			}
			if err := chol.SolveVecTo(step, rhs); err != nil {
				lambda *= lambdaGrowth
				continue
			}
			backup := lay.snapshot()
			lay.applyStep(step)
			trialCost, err := evaluateResiduals(ctx, p, workers, trial)
			if err != nil {
				lay.restore(backup)
				s.finish(&report, cost, start, residuals)
				return report, err
			}
			if trialCost < cost {
				accepted = true
				costDrop = cost - trialCost
				stepNorm = math.Sqrt(mat.Dot(step, step))
				cost = trialCost
				residuals.CopyVec(trial)
				p.normalizeBlocks()
				lambda = math.Max(lambda*lambdaShrink, minLambda)
				break
			}
			lay.restore(backup)
			lambda *= lambdaGrowth
		}

		s.Logger.Debugw("iteration complete",
			"iteration", iter+1,
			"cost", cost,
			"lambda", lambda,
			"accepted", accepted,
		)

		if !accepted {
			report.Reason = ReasonNoProgress
			break
		}
		if costDrop <= s.Options.FunctionTolerance*cost {
			report.Reason = ReasonFunctionTolerance
			break
		}
		if stepNorm <= s.Options.ParameterTolerance*(lay.norm()+s.Options.ParameterTolerance) {
			report.Reason = ReasonParameterTolerance
			break
		}

		cost, err = evaluateJacobian(ctx, p, lay, workers, residuals, jacobian)
		if err != nil {
			s.finish(&report, cost, start, residuals)
			return report, err
		}
	}

	s.finish(&report, cost, start, residuals)
	s.Logger.Infow("solve finished",
		"initialCost", report.InitialCost,
		"finalCost", report.FinalCost,
		"iterations", report.Iterations,
		"reason", report.Reason.String(),
	)
	return report, nil
}

func (s *Solver) finish(report *Report, cost float64, start time.Time, residuals *mat.VecDense) {
	report.FinalCost = cost
	report.TotalDuration = s.Clock.Since(start)
	if report.Iterations > 0 {
		report.MeanIterationDuration = report.TotalDuration / time.Duration(report.Iterations)
	}
	report.ResidualP50, report.ResidualP90, report.ResidualP99 = residualPercentiles(residuals)
}

// dampNormalEquations forms JᵀJ + λD where D is the JᵀJ diagonal clamped below.
func dampNormalEquations(dst, jtj *mat.SymDense, lambda float64) {
	dst.CopySym(jtj)
	n, _ := jtj.Dims()
	for i := 0; i < n; i++ {
		d := jtj.At(i, i)
		if d < minDiagonal {
			d = minDiagonal
		}
		dst.SetSym(i, i, jtj.At(i, i)+lambda*d)
	}
}

// layout flattens a problem's free parameter blocks into one global vector with a
// stable column order.
type layout struct {
	free    []*ParameterBlock
	offsets map[*ParameterBlock]int
	total   int
}

func newLayout(p *Problem) *layout {
	l := &layout{offsets: map[*ParameterBlock]int{}}
	for _, b := range p.parameterBlocks {
		if b.constant {
			continue
		}
		l.offsets[b] = l.total
		l.free = append(l.free, b)
		l.total += len(b.values)
	}
	return l
}

func (l *layout) snapshot() []float64 {
	x := make([]float64, 0, l.total)
	for _, b := range l.free {
		x = append(x, b.values...)
	}
	return x
}

func (l *layout) restore(x []float64) {
	i := 0
	for _, b := range l.free {
		copy(b.values, x[i:i+len(b.values)])
		i += len(b.values)
	}
}

func (l *layout) applyStep(step *mat.VecDense) {
	for _, b := range l.free {
		off := l.offsets[b]
		for k := range b.values {
			b.values[k] += step.AtVec(off + k)
		}
	}
}

func (l *layout) norm() float64 {
	var sum float64
	for _, b := range l.free {
		for _, v := range b.values {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// evaluateResiduals fills dst with the weighted residual vector at the blocks'
// current values and returns the cost, half the squared norm. Residual blocks
// evaluate concurrently, bounded by workers; each writes a disjoint row range.
func evaluateResiduals(ctx context.Context, p *Problem, workers int, dst *mat.VecDense) (float64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rb := range p.residualBlocks {
		rb := rb
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			params := make([][]float64, len(rb.blocks))
			for i, b := range rb.blocks {
				params[i] = b.values
			}
			out := make([]float64, rb.cost.NumResiduals())
			rb.cost.Residuals(params, out)
			if rb.loss != nil {
				floats.Scale(rb.loss.Reweight(floats.Norm(out, 2)), out)
			}
			for i, v := range out {
				dst.SetVec(rb.row+i, v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return 0.5 * mat.Dot(dst, dst), nil
}

// evaluateJacobian fills dst and jacobian at the blocks' current values by running
// every residual block on jets, and returns the cost. Columns follow the layout;
// constant blocks contribute no columns.
func evaluateJacobian(ctx context.Context, p *Problem, lay *layout, workers int, dst *mat.VecDense, jacobian *mat.Dense) (float64, error) {
	jacobian.Zero()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rb := range p.residualBlocks {
		rb := rb
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			width := 0
			for _, b := range rb.blocks {
				if !b.constant {
					width += len(b.values)
				}
			}
			params := make([][]autodiff.Jet, len(rb.blocks))
			slot := 0
			for i, b := range rb.blocks {
				jets := make([]autodiff.Jet, len(b.values))
				for k, v := range b.values {
					if b.constant {
						jets[k] = autodiff.NewJet(v, width)
					} else {
						jets[k] = autodiff.NewVariable(v, width, slot)
						slot++
					}
				}
				params[i] = jets
			}
			out := make([]autodiff.Jet, rb.cost.NumResiduals())
			rb.cost.JetResiduals(params, out)
			if rb.loss != nil {
				vals := make([]float64, len(out))
				for i, jet := range out {
					vals[i] = jet.Val
				}
				w := rb.loss.Reweight(floats.Norm(vals, 2))
				for i := range out {
					out[i] = out[i].Scale(w)
				}
			}
			slot = 0
			for _, b := range rb.blocks {
				if b.constant {
					continue
				}
				col := lay.offsets[b]
				for k := 0; k < len(b.values); k++ {
					for ri := range out {
						jacobian.Set(rb.row+ri, col+k, out[ri].Grad[slot])
					}
					slot++
				}
			}
			for i, jet := range out {
				dst.SetVec(rb.row+i, jet.Val)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return 0.5 * mat.Dot(dst, dst), nil
}
