//go:build !windows && !no_cgo

package optimization

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posegraph/logging"
)

// nlopt counts objective evaluations rather than outer iterations; give each
// configured iteration this many.
const nloptEvalsPerIteration = 10

// NloptSolver minimizes the total squared residual with nlopt's gradient-based
// SLSQP implementation. It consumes the same problems as Solver and exists as a
// cross-check for it; the Jacobian feeding the gradient comes from the same jet
// evaluation.
type NloptSolver struct {
	Options Options
	Logger  logging.Logger
	Clock   clock.Clock
}

// NewNloptSolver returns an nlopt-backed solver with the given options.
func NewNloptSolver(opts Options, logger logging.Logger) *NloptSolver {
	return &NloptSolver{Options: opts, Logger: logger, Clock: clock.New()}
}

type nloptResult struct {
	solution []float64
	score    float64
	err      error
}

// Solve implements the same contract as Solver.Solve.
func (s *NloptSolver) Solve(ctx context.Context, p *Problem) (Report, error) {
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

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(lay.total))
	if err != nil {
		return Report{}, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	m := p.NumResiduals()
	residuals := mat.NewVecDense(m, nil)
	jacobian := mat.NewDense(m, lay.total, nil)
	gradient := mat.NewVecDense(lay.total, nil)

	start := s.Clock.Now()
	initialCost, err := evaluateResiduals(ctx, p, workers, residuals)
	if err != nil {
		return Report{}, err
	}

	evaluations := 0
	var evalErr error
	// gradient is, under the hood, an unsafe C structure to mutate in place.
	objective := func(x, grad []float64) float64 {
		evaluations++
		lay.restore(x)
		cost, err := evaluateJacobian(ctx, p, lay, workers, residuals, jacobian)
		if err != nil {
			evalErr = multierr.Combine(evalErr, err)
			if stopErr := opt.ForceStop(); stopErr != nil {
				s.Logger.Errorw("forcestop error", "error", stopErr)
			}
			return 0
		}
		if len(grad) > 0 {
			gradient.MulVec(jacobian.T(), residuals)
			for i := range grad {
				grad[i] = gradient.AtVec(i)
			}
		}
		return cost
	}

	err = multierr.Combine(
		opt.SetFtolRel(s.Options.FunctionTolerance),
		opt.SetXtolRel(s.Options.ParameterTolerance),
		opt.SetMinObjective(objective),
		opt.SetMaxEval(s.Options.MaxIterations*nloptEvalsPerIteration),
	)
	if err != nil {
		return Report{}, errors.Wrap(err, "error configuring nlopt optimizer")
	}

	solveChan := make(chan *nloptResult, 1)
	utils.PanicCapturingGo(func() {
		solution, score, err := opt.Optimize(lay.snapshot())
		solveChan <- &nloptResult{solution: solution, score: score, err: err}
	})

	var result *nloptResult
	select {
	case <-ctx.Done():
		err = opt.ForceStop()
		<-solveChan
		return Report{InitialCost: initialCost, Reason: ReasonCancelled}, multierr.Combine(err, ctx.Err())
	case result = <-solveChan:
	}
	if evalErr != nil {
		return Report{InitialCost: initialCost}, evalErr
	}
	if result.err != nil {
		if result.solution == nil {
			return Report{InitialCost: initialCost}, errors.Wrap(result.err, "error running nlopt optimizer")
		}
		// nlopt reports roundoff-limited convergence as an error; the solution is
		// still usable
		s.Logger.Debugw("nlopt finished with a nonfatal error", "error", result.err)
	}

	lay.restore(result.solution)
	p.normalizeBlocks()
	finalCost, err := evaluateResiduals(ctx, p, workers, residuals)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		InitialCost:   initialCost,
		FinalCost:     finalCost,
		Iterations:    evaluations,
		Reason:        ReasonFunctionTolerance,
		TotalDuration: s.Clock.Since(start),
	}
	if evaluations > 0 {
		report.MeanIterationDuration = report.TotalDuration / time.Duration(evaluations)
	}
	report.ResidualP50, report.ResidualP90, report.ResidualP99 = residualPercentiles(residuals)
	s.Logger.Infow("nlopt solve finished",
		"initialCost", report.InitialCost,
		"finalCost", report.FinalCost,
		"evaluations", evaluations,
	)
	return report, nil
}
