package optimization

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// ConvergenceReason explains why a solve stopped.
type ConvergenceReason int

const (
	// ReasonMaxIterations means the iteration cap ran out first.
	ReasonMaxIterations ConvergenceReason = iota
	// ReasonFunctionTolerance means an accepted step barely lowered the cost.
	ReasonFunctionTolerance
	// ReasonParameterTolerance means an accepted step barely moved the parameters.
	ReasonParameterTolerance
	// ReasonNoProgress means no amount of damping produced a cost-reducing step.
	ReasonNoProgress
	// ReasonCancelled means the context ended the solve.
	ReasonCancelled
)

func (r ConvergenceReason) String() string {
	switch r {
	case ReasonMaxIterations:
		return "max iterations reached"
	case ReasonFunctionTolerance:
		return "function tolerance reached"
	case ReasonParameterTolerance:
		return "parameter tolerance reached"
	case ReasonNoProgress:
		return "no progress"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Report summarizes a solve: the cost before and after, how many iterations ran and
// why they stopped, the distribution of final residual magnitudes, and timing.
type Report struct {
	InitialCost float64
	FinalCost   float64
	Iterations  int
	Reason      ConvergenceReason

	ResidualP50 float64
	ResidualP90 float64
	ResidualP99 float64

	TotalDuration         time.Duration
	MeanIterationDuration time.Duration
}

func residualPercentiles(residuals *mat.VecDense) (p50, p90, p99 float64) {
	abs := make([]float64, residuals.Len())
	for i := range abs {
		abs[i] = math.Abs(residuals.AtVec(i))
	}
	return percentile(abs, 50), percentile(abs, 90), percentile(abs, 99)
}

func percentile(data []float64, p float64) float64 {
	v, err := stats.Percentile(data, p)
	if err != nil {
		return math.NaN()
	}
	return v
}
