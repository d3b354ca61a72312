// Package landmark stores landmark observations and the evolving pose estimates of
// the landmarks they refer to. Observations are what sensors reported; estimates are
// what the optimizer refines.
package landmark

import (
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/posegraph/spatialmath"
)

// covarianceDim is the residual dimension an inverse covariance weights: three
// translation components followed by three rotation components.
const covarianceDim = 6

// Observation is a single sighting of a landmark at a point in time between two
// trajectory nodes.
//
// LandmarkToTracking is the observed transform between the landmark frame and the
// tracking frame at the observation time. ObservedFromTracking records which frame
// the sensor measured from: true means the transform maps landmark coordinates into
// the tracking frame, false means the inverse direction was measured.
//
// InverseCovariance weights the six residual components; nil means identity. The
// scalar weights apply on top of it, translation on the first three components and
// rotation on the last three.
type Observation struct {
	Time                 time.Time
	LandmarkToTracking   spatialmath.Pose
	TranslationWeight    float64
	RotationWeight       float64
	InverseCovariance    *mat.SymDense
	ObservedFromTracking bool
}

// NewInverseCovariance builds a 6x6 inverse covariance from a row-major flattening.
// The data must describe a symmetric matrix; only the upper triangle is referenced.
func NewInverseCovariance(flat []float64) (*mat.SymDense, error) {
	if len(flat) != covarianceDim*covarianceDim {
		return nil, errors.Errorf("inverse covariance needs %d values, got %d", covarianceDim*covarianceDim, len(flat))
	}
	return mat.NewSymDense(covarianceDim, flat), nil
}

// IdentityInverseCovariance returns the 6x6 identity, the weighting used when an
// observation carries no covariance of its own.
func IdentityInverseCovariance() *mat.SymDense {
	m := mat.NewSymDense(covarianceDim, nil)
	for i := 0; i < covarianceDim; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}
