package optimization

import (
	"encoding/json"
	"runtime"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Options configure a solve. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	// MaxIterations caps the number of outer iterations.
	MaxIterations int `json:"max_iterations"`
	// FunctionTolerance stops the solve once an accepted step decreases the cost by
	// less than this fraction of the current cost.
	FunctionTolerance float64 `json:"function_tolerance"`
	// ParameterTolerance stops the solve once an accepted step moves the parameters
	// by less than this relative amount.
	ParameterTolerance float64 `json:"parameter_tolerance"`
	// InitialLambda seeds the Levenberg-Marquardt damping factor.
	InitialLambda float64 `json:"initial_lambda"`
	// Workers bounds how many residual blocks evaluate concurrently.
	Workers int `json:"workers"`
}

// DefaultOptions returns the options solves are expected to start from.
func DefaultOptions() Options {
	return Options{
		MaxIterations:      50,
		FunctionTolerance:  1e-6,
		ParameterTolerance: 1e-8,
		InitialLambda:      1e-4,
		Workers:            runtime.NumCPU(),
	}
}

// Validate returns every configuration problem at once.
func (o Options) Validate() error {
	var err error
	if o.MaxIterations < 1 {
		err = multierr.Append(err, errors.New("max_iterations must be at least 1"))
	}
	if o.FunctionTolerance <= 0 {
		err = multierr.Append(err, errors.New("function_tolerance must be positive"))
	}
	if o.ParameterTolerance <= 0 {
		err = multierr.Append(err, errors.New("parameter_tolerance must be positive"))
	}
	if o.InitialLambda <= 0 {
		err = multierr.Append(err, errors.New("initial_lambda must be positive"))
	}
	if o.Workers < 1 {
		err = multierr.Append(err, errors.New("workers must be at least 1"))
	}
	return err
}

// ReadOptions loads options from a JSON file, substituting ${ENV_VAR} references in
// the file before decoding. Fields absent from the file keep their defaults.
func ReadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	contents, err := envsubst.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrapf(err, "error reading options file %q", path)
	}
	if err := json.Unmarshal(contents, &opts); err != nil {
		return Options{}, errors.Wrapf(err, "error parsing options file %q", path)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, errors.Wrapf(err, "invalid options in %q", path)
	}
	return opts, nil
}
