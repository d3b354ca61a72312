//go:build windows || no_cgo

package optimization

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/posegraph/logging"
)

// NloptSolver is unavailable without cgo; Solve always errors. Solver remains the
// pure-Go path on these builds.
type NloptSolver struct {
	Options Options
	Logger  logging.Logger
}

// NewNloptSolver returns an nlopt-backed solver with the given options.
func NewNloptSolver(opts Options, logger logging.Logger) *NloptSolver {
	return &NloptSolver{Options: opts, Logger: logger}
}

// Solve implements the same contract as Solver.Solve.
func (s *NloptSolver) Solve(ctx context.Context, p *Problem) (Report, error) {
	return Report{}, errors.New("nlopt is not supported on this build")
}
